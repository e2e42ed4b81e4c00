package transcript

import (
	"math"
	"testing"

	"github.com/codebuildervaibhav/case-review/internal/types"
)

func TestActiveSegmentIndexRawLines(t *testing.T) {
	idx := NewIndex("a.mp3", RawLines{"00:00:01,000 Hello", "00:00:05,500 World"})

	cases := []struct {
		t    float64
		want int
	}{
		{0, 0},
		{3.0, 0},
		{5.499, 0},
		{5.5, 1},
		{100, 1},
	}
	for _, c := range cases {
		if got := idx.ActiveSegmentIndex(c.t); got != c.want {
			t.Errorf("ActiveSegmentIndex(%v) = %d, want %d", c.t, got, c.want)
		}
	}

	if end := idx.Segment(0).End; end != 5.5 {
		t.Errorf("first segment end = %v, want 5.5", end)
	}
	if end := idx.Segment(1).End; !math.IsInf(end, 1) {
		t.Errorf("last segment end = %v, want +Inf", end)
	}
}

func TestActiveSegmentIndexTrailingNewline(t *testing.T) {
	for _, text := range []string{
		"00:00:01,000 Hello\n00:00:05,500 World\n",
		"00:00:01,000 Hello\r\n00:00:05,500 World\r\n\r\n",
	} {
		p, err := DecodePayload([]byte(text))
		if err != nil {
			t.Fatalf("DecodePayload(%q): %v", text, err)
		}
		idx := NewIndex("a.mp3", p)
		if idx.Len() != 2 {
			t.Fatalf("%q: got %d segments, want 2", text, idx.Len())
		}
		for _, at := range []float64{5.5, 100} {
			if got := idx.ActiveSegmentIndex(at); got != 1 {
				t.Errorf("%q: ActiveSegmentIndex(%v) = %d, want 1", text, at, got)
			}
		}
		if last := idx.Segment(1); last.Text != "00:00:05,500 World" || !math.IsInf(last.End, 1) {
			t.Errorf("%q: last segment = %+v", text, last)
		}
	}
}

func TestActiveSegmentIndexEmpty(t *testing.T) {
	for _, idx := range []*Index{NewIndex("a", RawLines{}), NewIndex("a", Segments(nil))} {
		if got := idx.ActiveSegmentIndex(10); got != -1 {
			t.Fatalf("empty index returned %d, want -1", got)
		}
		if got := idx.ActiveSegmentIndexFrom(0, 10); got != -1 {
			t.Fatalf("empty index with hint returned %d, want -1", got)
		}
	}
}

func TestStructuredSegmentsUsedAsIs(t *testing.T) {
	segs := Segments{
		{Start: 0, End: 4, Text: "one"},
		{Start: 4, End: 9, Text: "two"},
		{Start: 12, End: 15, Text: "three"},
	}
	idx := NewIndex("b.mp3", segs)
	if idx.Segment(1).End != 9 {
		t.Fatalf("structured end was recomputed: %v", idx.Segment(1).End)
	}
	// 10 falls in the gap after "two"; the last segment starting <= 10 is active.
	if got := idx.ActiveSegmentIndex(10); got != 1 {
		t.Fatalf("gap lookup = %d, want 1", got)
	}
	if got := idx.ActiveSegmentIndex(4); got != 1 {
		t.Fatalf("boundary lookup = %d, want 1", got)
	}
	segs[0].Text = "mutated"
	if idx.Segment(0).Text != "one" {
		t.Fatalf("index shares memory with its input")
	}
}

func TestActiveSegmentIndexMonotonic(t *testing.T) {
	lines := RawLines{
		"header without timecode",
		"00:00:02,000 a",
		"00:00:02,000 b",
		"garbage",
		"00:00:07,250 c",
		"00:00:06,000 out of order",
		"00:01:00,000 d",
	}
	idx := NewIndex("c.mp3", lines)
	prev := -1
	hint := -1
	for step := 0; step <= 7000; step++ {
		tv := float64(step) / 100
		got := idx.ActiveSegmentIndex(tv)
		if got < prev {
			t.Fatalf("index decreased at t=%v: %d -> %d", tv, prev, got)
		}
		if h := idx.ActiveSegmentIndexFrom(hint, tv); h != got {
			t.Fatalf("hinted lookup at t=%v = %d, want %d", tv, h, got)
		}
		prev, hint = got, got
	}
}

func TestActiveSegmentIndexFromArbitraryHint(t *testing.T) {
	idx := NewIndex("d.mp3", Segments{{Start: 0}, {Start: 10}, {Start: 20}, {Start: 30}})
	for hint := -1; hint <= 5; hint++ {
		for _, tv := range []float64{0, 9.9, 10, 25, 31, 1e9} {
			if got, want := idx.ActiveSegmentIndexFrom(hint, tv), idx.ActiveSegmentIndex(tv); got != want {
				t.Errorf("hint %d t=%v: got %d want %d", hint, tv, got, want)
			}
		}
	}
}

func TestDecodePayload(t *testing.T) {
	p, err := DecodePayload([]byte("00:00:01,000 Hello\r\n00:00:02,000 World"))
	if err != nil {
		t.Fatalf("plain text: %v", err)
	}
	if lines, ok := p.(RawLines); !ok || len(lines) != 2 || lines[1] != "00:00:02,000 World" {
		t.Fatalf("plain text decoded to %#v", p)
	}

	p, err = DecodePayload([]byte(`"00:00:01,000 a\n00:00:03,000 b"`))
	if err != nil {
		t.Fatalf("json string: %v", err)
	}
	if lines, ok := p.(RawLines); !ok || len(lines) != 2 {
		t.Fatalf("json string decoded to %#v", p)
	}

	p, err = DecodePayload([]byte(`[{"start":1.5,"end":2,"text":"x"}]`))
	if err != nil {
		t.Fatalf("segments: %v", err)
	}
	if segs, ok := p.(Segments); !ok || len(segs) != 1 || segs[0].Start != 1.5 {
		t.Fatalf("segments decoded to %#v", p)
	}

	p, err = DecodePayload([]byte(`{"text":"hi","language":"en","segments":[{"id":0,"start":0,"end":1,"text":" hi "}]}`))
	if err != nil {
		t.Fatalf("whisper: %v", err)
	}
	if segs, ok := p.(Segments); !ok || segs[0].Text != "hi" {
		t.Fatalf("whisper decoded to %#v", p)
	}

	p, err = DecodePayload([]byte(`"00:00:01,000 a\n"`))
	if err != nil {
		t.Fatalf("json string with newline: %v", err)
	}
	if lines, ok := p.(RawLines); !ok || len(lines) != 1 {
		t.Fatalf("json string with newline decoded to %#v", p)
	}

	if _, err := DecodePayload([]byte(`[{"start":"x"}]`)); err == nil {
		t.Fatalf("expected error for malformed segments")
	}
}

func TestEncodePayloadRoundTrip(t *testing.T) {
	data, err := EncodePayload(RawLines{"00:00:01,000 a", "b"})
	if err != nil {
		t.Fatalf("encode lines: %v", err)
	}
	p, err := DecodePayload(data)
	if err != nil {
		t.Fatalf("decode lines: %v", err)
	}
	if lines := p.(RawLines); len(lines) != 2 || lines[1] != "b" {
		t.Fatalf("lines round trip = %#v", lines)
	}

	data, err = EncodePayload(Segments{{Start: 1, End: 2, Text: "x"}})
	if err != nil {
		t.Fatalf("encode segments: %v", err)
	}
	p, err = DecodePayload(data)
	if err != nil {
		t.Fatalf("decode segments: %v", err)
	}
	if segs := p.(Segments); segs[0] != (types.Segment{Start: 1, End: 2, Text: "x"}) {
		t.Fatalf("segments round trip = %#v", segs)
	}
}

func TestDecodePayloadBracketedText(t *testing.T) {
	p, err := DecodePayload([]byte("[Music] 00:00:01,000\n00:00:04,000 Hello"))
	if err != nil {
		t.Fatalf("bracketed text: %v", err)
	}
	if lines, ok := p.(RawLines); !ok || len(lines) != 2 {
		t.Fatalf("bracketed text decoded to %#v", p)
	}
}
