package chat

import (
	"fmt"
	"log"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/codebuildervaibhav/case-review/internal/timecode"
	"github.com/codebuildervaibhav/case-review/internal/transcript"
	"github.com/codebuildervaibhav/case-review/internal/types"
)

// Chunk is one timed piece of transcript offered to the model. Name is the
// chunk's citation identifier, "<file>__minMM_SS.txt".
type Chunk struct {
	Name   string
	Source string
	Start  float64
	Text   string
}

// Content is the chunk body as shown to the model
func (c Chunk) Content() string {
	return fmt.Sprintf("Time: %s\nText: %s\n", timecode.Format(c.Start), c.Text)
}

// BuildChunks cuts every transcript of a case into per-segment chunks in file
// order. Segments starting in the same second share a chunk.
func BuildChunks(c *types.Case) []Chunk {
	var chunks []Chunk
	for _, file := range c.Files {
		data, ok := c.Transcripts[file]
		if !ok {
			continue
		}
		payload, err := transcript.DecodePayload(data)
		if err != nil {
			log.Printf("Chat: skipping transcript %s: %v", file, err)
			continue
		}
		idx := transcript.NewIndex(file, payload)

		byName := make(map[string]int)
		for _, seg := range idx.Segments() {
			text := strings.TrimSpace(seg.Text)
			if text == "" {
				continue
			}
			start := seg.Start
			if math.IsNaN(start) || math.IsInf(start, 0) || start < 0 {
				start = 0
			}
			name := timecode.FormatOffsetToken(file, start) + ".txt"
			if i, ok := byName[name]; ok {
				chunks[i].Text += " " + text
				continue
			}
			byName[name] = len(chunks)
			chunks = append(chunks, Chunk{Name: name, Source: file, Start: math.Floor(start), Text: text})
		}
	}
	return chunks
}

// selectChunks returns up to limit chunks ranked by word overlap with query,
// restored to transcript order. With no overlap at all the first chunks are
// used.
func selectChunks(chunks []Chunk, query string, limit int) []Chunk {
	if limit <= 0 || len(chunks) <= limit {
		return chunks
	}

	terms := words(query)
	type scored struct {
		pos   int
		score int
	}
	ranked := make([]scored, len(chunks))
	for i, c := range chunks {
		text := strings.ToLower(c.Text)
		n := 0
		for _, t := range terms {
			if strings.Contains(text, t) {
				n++
			}
		}
		ranked[i] = scored{pos: i, score: n}
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].score > ranked[j].score })

	picked := ranked[:limit]
	sort.Slice(picked, func(i, j int) bool { return picked[i].pos < picked[j].pos })
	out := make([]Chunk, len(picked))
	for i, p := range picked {
		out[i] = chunks[p.pos]
	}
	return out
}

func words(s string) []string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	seen := make(map[string]bool)
	var out []string
	for _, f := range fields {
		if len([]rune(f)) < 3 || seen[f] {
			continue
		}
		seen[f] = true
		out = append(out, f)
	}
	return out
}
