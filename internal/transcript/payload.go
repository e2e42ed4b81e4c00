package transcript

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/codebuildervaibhav/case-review/internal/types"
)

// whisperOutput matches Whisper's JSON output format
type whisperOutput struct {
	Text     string           `json:"text"`
	Language string           `json:"language"`
	Segments []whisperSegment `json:"segments"`
}

type whisperSegment struct {
	ID    int     `json:"id"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// SplitLines splits raw transcript text into lines, tolerating CRLF endings.
// Trailing newlines do not produce empty lines.
func SplitLines(text string) RawLines {
	text = strings.TrimRight(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if text == "" {
		return RawLines(nil)
	}
	return RawLines(strings.Split(text, "\n"))
}

// DecodePayload accepts the transcript shapes the pipeline produces:
//   - plain text or a JSON string: raw SRT-style lines
//   - a JSON array of {start,end,text}: structured segments
//   - Whisper's JSON output object with a "segments" array
func DecodePayload(data []byte) (Payload, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return RawLines(nil), nil
	}
	// Text such as "[Music] 00:00:01,000 ..." only looks like JSON.
	if !json.Valid(trimmed) {
		return SplitLines(string(data)), nil
	}

	switch trimmed[0] {
	case '"':
		var text string
		if err := json.Unmarshal(trimmed, &text); err != nil {
			return nil, fmt.Errorf("failed to parse transcript text: %w", err)
		}
		return SplitLines(text), nil
	case '[':
		var segs []types.Segment
		if err := json.Unmarshal(trimmed, &segs); err != nil {
			return nil, fmt.Errorf("failed to parse transcript segments: %w", err)
		}
		return Segments(segs), nil
	case '{':
		var out whisperOutput
		if err := json.Unmarshal(trimmed, &out); err != nil {
			return nil, fmt.Errorf("failed to parse whisper JSON: %w", err)
		}
		segs := make(Segments, len(out.Segments))
		for i, seg := range out.Segments {
			segs[i] = types.Segment{
				Start: seg.Start,
				End:   seg.End,
				Text:  strings.TrimSpace(seg.Text),
			}
		}
		return segs, nil
	}

	return SplitLines(string(data)), nil
}

// EncodePayload is the storage form of a payload: raw lines become a JSON
// string, segments a JSON array.
func EncodePayload(p Payload) ([]byte, error) {
	switch v := p.(type) {
	case RawLines:
		return json.Marshal(strings.Join(v, "\n"))
	case Segments:
		if v == nil {
			v = Segments{}
		}
		return json.Marshal([]types.Segment(v))
	}
	return nil, fmt.Errorf("unsupported transcript payload %T", p)
}
