package queue

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/codebuildervaibhav/case-review/internal/storage"
	"github.com/codebuildervaibhav/case-review/internal/types"
)

type memStore struct {
	mu       sync.Mutex
	statuses map[string][]string
	files    map[string][]storage.FileRecord
	graphs   map[string]types.Graph
}

func newMemStore() *memStore {
	return &memStore{
		statuses: map[string][]string{},
		files:    map[string][]storage.FileRecord{},
		graphs:   map[string]types.Graph{},
	}
}

func (m *memStore) SetStatus(id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == "missing" {
		return storage.ErrCaseNotFound
	}
	m.statuses[id] = append(m.statuses[id], status)
	return nil
}

func (m *memStore) ReplaceCaseData(id string, files []storage.FileRecord, graph types.Graph) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[id] = files
	m.graphs[id] = graph
	return nil
}

func (m *memStore) history(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.statuses[id]...)
}

const sampleBundle = `{
	"files": ["interview.mp3", "followup.mp3"],
	"transcripts": {
		"interview.mp3": "00:00:01,000 Hello\n00:00:05,500 World",
		"followup.mp3": [{"start": 0, "end": 3, "text": "later"}],
		"extra.mp3": {"text": "x", "segments": [{"id": 0, "start": 0, "end": 1, "text": "x"}]}
	},
	"summaries": {"interview.mp3": "first interview"},
	"graph": {
		"nodes": [{"id": "John_Doe", "type": "Person"}],
		"relationships": [],
		"timecodes": {"John_Doe": ["interview.mp3__min00_05"]}
	}
}`

func TestParseBundleRecords(t *testing.T) {
	b, err := ParseBundle([]byte(sampleBundle))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	recs := b.Records()
	if len(recs) != 3 {
		t.Fatalf("records = %d, want 3", len(recs))
	}
	if recs[0].Filename != "interview.mp3" || recs[1].Filename != "followup.mp3" || recs[2].Filename != "extra.mp3" {
		t.Fatalf("record order = %s, %s, %s", recs[0].Filename, recs[1].Filename, recs[2].Filename)
	}
	if recs[0].Summary != "first interview" {
		t.Fatalf("summary = %q", recs[0].Summary)
	}
}

func TestParseBundleRejectsBadTranscript(t *testing.T) {
	_, err := ParseBundle([]byte(`{"transcripts": {"a.mp3": [{"start": "soon"}]}}`))
	if err == nil {
		t.Fatalf("expected error for malformed transcript")
	}
}

func TestWorkerPoolImportsBundle(t *testing.T) {
	store := newMemStore()
	wp := NewWorkerPool(2, store)
	wp.Start()

	path := filepath.Join(t.TempDir(), "bundle.json")
	if err := os.WriteFile(path, []byte(sampleBundle), 0644); err != nil {
		t.Fatalf("write bundle: %v", err)
	}

	job := NewJob("job-1", "case-1", "upload", path)
	if err := wp.EnqueueJob(job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	wp.Stop()

	status, msg, ok := wp.JobStatus("job-1")
	if !ok || status != JobCompleted {
		t.Fatalf("job status = %q (%s), want completed", status, msg)
	}
	want := []string{types.StatusQueued, types.StatusProcessing, types.StatusCompleted}
	got := store.history("case-1")
	if len(got) != len(want) {
		t.Fatalf("status history = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("status history = %v, want %v", got, want)
		}
	}
	if len(store.files["case-1"]) != 3 {
		t.Fatalf("stored %d files", len(store.files["case-1"]))
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("temp bundle not removed")
	}
}

func TestWorkerPoolMarksBadBundleAsError(t *testing.T) {
	store := newMemStore()
	wp := NewWorkerPool(1, store)
	wp.Start()

	job := NewJob("job-2", "case-2", "upload", "")
	job.Data = []byte("not json")
	if err := wp.EnqueueJob(job); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	wp.Stop()

	status, msg, _ := wp.JobStatus("job-2")
	if status != JobFailed || msg == "" {
		t.Fatalf("job status = %q (%q), want failed with message", status, msg)
	}
	hist := store.history("case-2")
	if hist[len(hist)-1] != types.StatusError {
		t.Fatalf("case status history = %v, want error last", hist)
	}
}

func TestEnqueueUnknownCaseAndAfterStop(t *testing.T) {
	wp := NewWorkerPool(1, newMemStore())
	wp.Start()
	if err := wp.EnqueueJob(NewJob("j", "missing", "upload", "")); !errors.Is(err, storage.ErrCaseNotFound) {
		t.Fatalf("expected ErrCaseNotFound, got %v", err)
	}
	wp.Stop()
	wp.Stop()
	if err := wp.EnqueueJob(NewJob("j2", "case", "upload", "")); !errors.Is(err, ErrPoolClosed) {
		t.Fatalf("expected ErrPoolClosed, got %v", err)
	}
}
