// Package views binds the transcript, graph mentions and chat citations of a
// case to a playback cursor.
//
// Views are functions of (segments, cursor time). They observe the cursor and
// route every click through the cursor's seek requests, never through the
// player, so clamping and deferred seeks apply no matter which view a seek
// came from.
package views

import (
	"github.com/codebuildervaibhav/case-review/internal/cursor"
	"github.com/codebuildervaibhav/case-review/internal/transcript"
)

// IndexProvider returns the transcript index of a source.
type IndexProvider interface {
	Index(source string) (*transcript.Index, bool)
}

// HighlightFunc is the scroll-into-view side effect. It runs only when the
// active segment actually changes; index is -1 when nothing is active.
type HighlightFunc func(source string, index int)

// TranscriptView tracks the active transcript segment of the selected source.
type TranscriptView struct {
	cursor      *cursor.Cursor
	provider    IndexProvider
	onHighlight HighlightFunc

	index       *transcript.Index
	source      string
	active      int
	unsubscribe func()
}

// NewTranscriptView subscribes a view to c.
func NewTranscriptView(c *cursor.Cursor, provider IndexProvider, onHighlight HighlightFunc) *TranscriptView {
	v := &TranscriptView{
		cursor:      c,
		provider:    provider,
		onHighlight: onHighlight,
		active:      -1,
	}
	v.unsubscribe = c.Subscribe(v.handle)
	v.Refresh()
	return v
}

func (v *TranscriptView) handle(ev cursor.Event) {
	switch ev.Kind {
	case cursor.SourceChanged:
		v.Refresh()
	case cursor.TimeChanged:
		v.update(ev.Snapshot.CurrentTime)
	}
}

// Refresh rebuilds the view from the provider for the cursor's current source.
// Call it after the case data behind the provider was refetched.
func (v *TranscriptView) Refresh() {
	v.index = nil
	if src := v.cursor.Source(); src != "" {
		if idx, ok := v.provider.Index(src); ok {
			v.index = idx
		}
	}
	v.update(v.cursor.CurrentTime())
}

func (v *TranscriptView) update(t float64) {
	src := v.cursor.Source()
	next := -1
	if v.index != nil {
		hint := v.active
		if src != v.source {
			hint = -1
		}
		next = v.index.ActiveSegmentIndexFrom(hint, t)
	}
	if next == v.active && src == v.source {
		return
	}
	v.active, v.source = next, src
	if v.onHighlight != nil {
		v.onHighlight(src, next)
	}
}

// Index returns the index currently shown, nil when there is none.
func (v *TranscriptView) Index() *transcript.Index { return v.index }

// Active returns the highlighted segment, -1 when none.
func (v *TranscriptView) Active() int { return v.active }

// Click seeks to the start of segment i. It reports false for an index
// outside the transcript.
func (v *TranscriptView) Click(i int) bool {
	if v.index == nil || i < 0 || i >= v.index.Len() {
		return false
	}
	v.cursor.RequestSeekToSource(v.index.Source(), v.index.Segment(i).Start)
	return true
}

// Close detaches the view from the cursor.
func (v *TranscriptView) Close() {
	if v.unsubscribe != nil {
		v.unsubscribe()
		v.unsubscribe = nil
	}
}
