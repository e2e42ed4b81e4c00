package types

import "time"

// Case status constants
const (
	StatusCreated    = "created"
	StatusQueued     = "queued"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusError      = "error"
	StatusUnknown    = "unknown"
)

// IsTerminal reports whether a case status will not change without a new import.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusError
}

// Segment represents a timestamped segment of a transcript
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Node is an entity in the extracted knowledge graph
type Node struct {
	ID         string            `json:"id"`
	Type       string            `json:"type"`
	Properties map[string]string `json:"properties,omitempty"`
}

// Relationship is a directed edge between two graph nodes
type Relationship struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Type   string `json:"type"`
}

// Graph is the entity/relationship graph of a case. Timecodes maps a node id to
// the offset tokens where it is mentioned.
type Graph struct {
	Nodes         []Node              `json:"nodes"`
	Relationships []Relationship      `json:"relationships"`
	Timecodes     map[string][]string `json:"timecodes,omitempty"`
}

// Citation is a reference returned by the chat assistant
type Citation struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Content string `json:"content,omitempty"`
}

// Case is everything the review core needs about one case
type Case struct {
	ID          string
	Description string
	Status      string
	Files       []string
	Transcripts map[string][]byte
	Summaries   map[string]string
	Graph       Graph
	CreatedAt   time.Time
	UpdatedAt   time.Time
}
