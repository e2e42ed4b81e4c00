// Package transcript maps a playback time to the transcript segment being
// spoken at that time.
package transcript

import (
	"math"
	"sort"

	"github.com/codebuildervaibhav/case-review/internal/timecode"
	"github.com/codebuildervaibhav/case-review/internal/types"
)

// Payload is a transcript as delivered by the processing pipeline: either
// RawLines or Segments.
type Payload interface {
	isPayload()
}

// RawLines is a transcript of text lines, each expected to carry an embedded
// SRT timecode.
type RawLines []string

// Segments is a pre-segmented transcript.
type Segments []types.Segment

func (RawLines) isPayload() {}
func (Segments) isPayload() {}

// Index answers "which segment is active at time t" for one audio source.
// It is immutable once built.
type Index struct {
	source   string
	segments []types.Segment
	// keys[i] is the search key of segment i: its start, raised to the
	// previous key when the input is out of order, so keys never decrease.
	keys []float64
}

// NewIndex builds the index for source from payload.
func NewIndex(source string, payload Payload) *Index {
	idx := &Index{source: source}

	switch p := payload.(type) {
	case RawLines:
		idx.segments = make([]types.Segment, len(p))
		for i, line := range p {
			idx.segments[i] = types.Segment{Start: timecode.ParseSRT(line), Text: line}
		}
		idx.buildKeys()
		// A raw line ends where the next one starts; the last never ends.
		for i := range idx.segments {
			if i+1 < len(idx.keys) {
				idx.segments[i].End = idx.keys[i+1]
			} else {
				idx.segments[i].End = math.Inf(1)
			}
		}
	case Segments:
		idx.segments = make([]types.Segment, len(p))
		copy(idx.segments, p)
		idx.buildKeys()
	}

	return idx
}

func (idx *Index) buildKeys() {
	idx.keys = make([]float64, len(idx.segments))
	prev := math.Inf(-1)
	for i, seg := range idx.segments {
		k := seg.Start
		if math.IsNaN(k) || k < prev {
			k = prev
		}
		if math.IsInf(k, -1) {
			k = 0
		}
		idx.keys[i] = k
		prev = k
	}
}

// Source is the audio source this index was built for.
func (idx *Index) Source() string { return idx.source }

// Len returns the number of segments.
func (idx *Index) Len() int { return len(idx.segments) }

// Segment returns segment i.
func (idx *Index) Segment(i int) types.Segment { return idx.segments[i] }

// Segments returns a copy of all segments in transcript order.
func (idx *Index) Segments() []types.Segment {
	out := make([]types.Segment, len(idx.segments))
	copy(out, idx.segments)
	return out
}

// ActiveSegmentIndex returns the last segment whose start is <= t. Segments
// are closed-open, so at a boundary the segment starting there wins. Times
// before the first segment map to 0; -1 is returned only for an empty index.
func (idx *Index) ActiveSegmentIndex(t float64) int {
	n := len(idx.keys)
	if n == 0 {
		return -1
	}
	if math.IsNaN(t) {
		t = 0
	}
	i := sort.Search(n, func(i int) bool { return idx.keys[i] > t }) - 1
	if i < 0 {
		return 0
	}
	return i
}

// ActiveSegmentIndexFrom is ActiveSegmentIndex with a hint, usually the
// previous result. During normal playback t has only moved a little, so the
// hint or its successor is checked before falling back to a binary search.
func (idx *Index) ActiveSegmentIndexFrom(hint int, t float64) int {
	n := len(idx.keys)
	if hint >= 0 && hint < n && !math.IsNaN(t) {
		for i := hint; i < n && i <= hint+1; i++ {
			if idx.contains(i, t) {
				return i
			}
		}
	}
	return idx.ActiveSegmentIndex(t)
}

// contains reports whether t falls in [keys[i], keys[i+1]).
func (idx *Index) contains(i int, t float64) bool {
	if t < idx.keys[i] {
		return i == 0
	}
	return i+1 == len(idx.keys) || t < idx.keys[i+1]
}
