package queue

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/codebuildervaibhav/case-review/internal/storage"
	"github.com/codebuildervaibhav/case-review/internal/transcript"
	"github.com/codebuildervaibhav/case-review/internal/types"
)

// Job status constants
const (
	JobQueued     = "QUEUED"
	JobProcessing = "PROCESSING"
	JobCompleted  = "COMPLETED"
	JobFailed     = "FAILED"
)

// Job imports one pipeline bundle into a case
type Job struct {
	ID         string
	CaseID     string
	SourceType string
	// FilePath is a temp file holding the bundle; it is removed after processing.
	// Data is used instead when FilePath is empty.
	FilePath  string
	Data      []byte
	Status    string
	Error     error
	CreatedAt time.Time
}

// NewJob creates a new job with default values
func NewJob(id, caseID, sourceType, filePath string) *Job {
	return &Job{
		ID:         id,
		CaseID:     caseID,
		SourceType: sourceType,
		FilePath:   filePath,
		Status:     JobQueued,
		CreatedAt:  time.Now(),
	}
}

// Bundle is the output of the processing pipeline for one case
type Bundle struct {
	Files       []string                   `json:"files"`
	Transcripts map[string]json.RawMessage `json:"transcripts"`
	Summaries   map[string]string          `json:"summaries"`
	Graph       types.Graph                `json:"graph"`
}

// ParseBundle decodes a bundle and checks that every transcript is usable
func ParseBundle(data []byte) (*Bundle, error) {
	var b Bundle
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("invalid bundle JSON: %w", err)
	}
	for name, raw := range b.Transcripts {
		if _, err := transcript.DecodePayload(raw); err != nil {
			return nil, fmt.Errorf("transcript %s: %w", name, err)
		}
	}
	return &b, nil
}

// Records flattens the bundle into file records in the bundle's file order.
// Files that only appear in transcripts or summaries are appended by name.
func (b *Bundle) Records() []storage.FileRecord {
	order := append([]string(nil), b.Files...)
	listed := make(map[string]bool, len(order))
	for _, f := range order {
		listed[f] = true
	}
	var extra []string
	for name := range b.Transcripts {
		if !listed[name] {
			listed[name] = true
			extra = append(extra, name)
		}
	}
	for name := range b.Summaries {
		if !listed[name] {
			listed[name] = true
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	order = append(order, extra...)

	records := make([]storage.FileRecord, 0, len(order))
	for _, name := range order {
		rec := storage.FileRecord{Filename: name, Summary: b.Summaries[name]}
		if raw, ok := b.Transcripts[name]; ok {
			rec.Transcript = []byte(raw)
		}
		records = append(records, rec)
	}
	return records
}
