package transcript

import "log"

// Library holds the transcripts of one case and builds an Index per source on
// first use. Replace drops every built index, so the next lookup reflects
// refetched data.
type Library struct {
	payloads map[string][]byte
	built    map[string]*Index
}

// NewLibrary creates a library over raw stored payloads keyed by source.
func NewLibrary(payloads map[string][]byte) *Library {
	l := &Library{}
	l.Replace(payloads)
	return l
}

// Replace swaps in a new set of payloads.
func (l *Library) Replace(payloads map[string][]byte) {
	l.payloads = payloads
	l.built = make(map[string]*Index)
}

// Index returns the index for source, or false when the case has no
// transcript for it.
func (l *Library) Index(source string) (*Index, bool) {
	if idx, ok := l.built[source]; ok {
		return idx, true
	}
	data, ok := l.payloads[source]
	if !ok {
		return nil, false
	}
	payload, err := DecodePayload(data)
	if err != nil {
		// a broken payload still yields a reviewable, empty transcript
		log.Printf("Transcript for %s could not be decoded: %v", source, err)
		payload = RawLines(nil)
	}
	idx := NewIndex(source, payload)
	l.built[source] = idx
	return idx, true
}
