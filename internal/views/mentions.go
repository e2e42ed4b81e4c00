package views

import (
	"path"
	"strings"

	"github.com/codebuildervaibhav/case-review/internal/cursor"
	"github.com/codebuildervaibhav/case-review/internal/timecode"
	"github.com/codebuildervaibhav/case-review/internal/types"
)

// Mention is a decoded reference to a moment in a case's audio. When OK is
// false the identifier did not decode (or named no known source): Label is
// the raw identifier and jumping to it does nothing.
type Mention struct {
	Raw    string  `json:"raw"`
	Label  string  `json:"label"`
	Source string  `json:"source,omitempty"`
	Time   float64 `json:"time"`
	OK     bool    `json:"ok"`
}

// offsetResolver decodes offset tokens against the sources of a case.
type offsetResolver struct {
	cursor  *cursor.Cursor
	sources []string
}

func (r offsetResolver) resolve(raw string) Mention {
	m := Mention{Raw: raw, Label: raw}
	tok, ok := timecode.ParseOffsetToken(raw)
	if !ok {
		return m
	}
	src, ok := matchSource(tok.Name, r.sources)
	if !ok {
		return m
	}
	m.Source = src
	m.Time = tok.Time()
	m.Label = tok.Label()
	m.OK = true
	return m
}

func (r offsetResolver) jump(raw string) (Mention, bool) {
	m := r.resolve(raw)
	if !m.OK {
		return m, false
	}
	r.cursor.RequestSeekToSource(m.Source, m.Time)
	return m, true
}

// matchSource maps a token name to one of the case's sources. Tokens usually
// carry the full filename; a name without extension also matches. With no
// known sources the name is taken as is.
func matchSource(name string, sources []string) (string, bool) {
	if len(sources) == 0 {
		return name, name != ""
	}
	for _, s := range sources {
		if s == name {
			return s, true
		}
	}
	stem := strings.TrimSuffix(name, path.Ext(name))
	for _, s := range sources {
		if strings.TrimSuffix(s, path.Ext(s)) == stem {
			return s, true
		}
	}
	return "", false
}

// GraphMentionResolver turns a graph node's recorded mentions into seekable
// moments.
type GraphMentionResolver struct {
	offsetResolver
	timecodes map[string][]string
}

// NewGraphMentionResolver creates a resolver over graph for a case with the
// given audio sources.
func NewGraphMentionResolver(c *cursor.Cursor, graph types.Graph, sources []string) *GraphMentionResolver {
	return &GraphMentionResolver{
		offsetResolver: offsetResolver{cursor: c, sources: sources},
		timecodes:      graph.Timecodes,
	}
}

// Mentions returns every mention of node in recorded order.
func (r *GraphMentionResolver) Mentions(node string) []Mention {
	raws := r.timecodes[node]
	out := make([]Mention, 0, len(raws))
	for _, raw := range raws {
		out = append(out, r.resolve(raw))
	}
	return out
}

// Resolve decodes a single mention identifier.
func (r *GraphMentionResolver) Resolve(raw string) Mention { return r.resolve(raw) }

// Jump switches to the mention's source and seeks to it. It reports false,
// without touching the cursor, when raw has no association.
func (r *GraphMentionResolver) Jump(raw string) (Mention, bool) { return r.jump(raw) }

// CitationResolver turns chat citation URLs into seekable moments.
type CitationResolver struct {
	offsetResolver
}

// NewCitationResolver creates a resolver for a case with the given sources.
func NewCitationResolver(c *cursor.Cursor, sources []string) *CitationResolver {
	return &CitationResolver{offsetResolver{cursor: c, sources: sources}}
}

// Resolve decodes a citation URL.
func (r *CitationResolver) Resolve(url string) Mention { return r.resolve(url) }

// Jump switches to the cited source and seeks to it. It reports false,
// without touching the cursor, when url has no association.
func (r *CitationResolver) Jump(url string) (Mention, bool) { return r.jump(url) }
