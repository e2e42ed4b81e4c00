package session

import (
	"math"

	"github.com/codebuildervaibhav/case-review/internal/cursor"
	"github.com/codebuildervaibhav/case-review/internal/timecode"
	"github.com/codebuildervaibhav/case-review/internal/types"
)

// Inbound message types sent by the review client
const (
	MsgTime     = "time"
	MsgDuration = "duration"
	MsgEnded    = "ended"
	MsgSelect   = "select"
	MsgSeek     = "seek"
	MsgScrub    = "scrub"
	MsgToggle   = "toggle"
	MsgSegment  = "segment"
	MsgNode     = "node"
	MsgMention  = "mention"
	MsgCitation = "citation"
	MsgRefresh  = "refresh"
)

// Message is one inbound client message. Which fields are used depends on
// Type.
type Message struct {
	Type     string  `json:"type"`
	Gen      uint64  `json:"gen,omitempty"`
	T        float64 `json:"t,omitempty"`
	D        float64 `json:"d,omitempty"`
	Infinite bool    `json:"infinite,omitempty"`
	Fraction float64 `json:"fraction,omitempty"`
	Index    int     `json:"index,omitempty"`
	Source   string  `json:"source,omitempty"`
	Node     string  `json:"node,omitempty"`
	Raw      string  `json:"raw,omitempty"`
	URL      string  `json:"url,omitempty"`
}

// Out is one outbound message. Every Out has a "type" key.
type Out map[string]any

// Type returns the message type.
func (o Out) Type() string {
	t, _ := o["type"].(string)
	return t
}

// SegmentView is a transcript segment as sent to clients. End is nil for an
// open-ended segment.
type SegmentView struct {
	Start float64  `json:"start"`
	End   *float64 `json:"end"`
	Text  string   `json:"text"`
	Label string   `json:"label"`
}

// SegmentViews converts segments for the wire
func SegmentViews(segs []types.Segment) []SegmentView {
	out := make([]SegmentView, len(segs))
	for i, s := range segs {
		out[i] = SegmentView{Start: s.Start, Text: s.Text, Label: timecode.Format(s.Start)}
		// JSON has no Inf: an open-ended segment has a null end
		if !math.IsInf(s.End, 0) && !math.IsNaN(s.End) {
			end := s.End
			out[i].End = &end
		}
	}
	return out
}

func stateOut(snap cursor.Snapshot, progress float64) Out {
	duration := snap.Duration
	if math.IsInf(duration, 0) || math.IsNaN(duration) {
		duration = 0
	}
	display := timecode.Format(snap.CurrentTime) + " / " + timecode.Format(duration)
	return Out{
		"type":     "state",
		"source":   snap.Source,
		"state":    snap.State.String(),
		"playing":  snap.IsPlaying(),
		"time":     snap.CurrentTime,
		"duration": duration,
		"ready":    snap.DurationKnown,
		"progress": progress,
		"display":  display,
		"gen":      snap.Generation,
	}
}
