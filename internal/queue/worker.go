package queue

import (
	"errors"
	"fmt"
	"log"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/codebuildervaibhav/case-review/internal/storage"
	"github.com/codebuildervaibhav/case-review/internal/types"
)

// ErrPoolClosed is returned when a job is enqueued after Stop
var ErrPoolClosed = errors.New("worker pool closed")

// CaseWriter is the part of the case store the importer writes to
type CaseWriter interface {
	SetStatus(id, status string) error
	ReplaceCaseData(id string, files []storage.FileRecord, graph types.Graph) error
}

// WorkerPool manages a pool of workers importing pipeline bundles
type WorkerPool struct {
	jobQueue    chan *Job
	workerCount int
	store       CaseWriter

	wg      sync.WaitGroup
	closeMu sync.Mutex
	closed  bool

	mu       sync.Mutex
	statuses map[string]*Job
}

// NewWorkerPool creates a new worker pool
func NewWorkerPool(workerCount int, store CaseWriter) *WorkerPool {
	if workerCount <= 0 {
		workerCount = 1
	}
	return &WorkerPool{
		jobQueue:    make(chan *Job, 100), // Buffer of 100 jobs
		workerCount: workerCount,
		store:       store,
		statuses:    make(map[string]*Job),
	}
}

// Start initializes all workers
func (wp *WorkerPool) Start() {
	log.Printf("Starting import worker pool with %d workers", wp.workerCount)
	for i := 0; i < wp.workerCount; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Stop stops accepting jobs and waits for queued ones to finish
func (wp *WorkerPool) Stop() {
	wp.closeMu.Lock()
	if wp.closed {
		wp.closeMu.Unlock()
		return
	}
	wp.closed = true
	close(wp.jobQueue)
	wp.closeMu.Unlock()
	wp.wg.Wait()
	log.Println("Import worker pool stopped")
}

// EnqueueJob marks the case queued and adds the job to the queue
func (wp *WorkerPool) EnqueueJob(job *Job) error {
	wp.closeMu.Lock()
	defer wp.closeMu.Unlock()
	if wp.closed {
		return ErrPoolClosed
	}

	if err := wp.store.SetStatus(job.CaseID, types.StatusQueued); err != nil {
		return fmt.Errorf("failed to queue case %s: %w", job.CaseID, err)
	}

	wp.mu.Lock()
	job.Status = JobQueued
	job.CreatedAt = time.Now()
	wp.statuses[job.ID] = job
	wp.mu.Unlock()

	wp.jobQueue <- job
	log.Printf("Job %s enqueued (case: %s, source: %s)", job.ID, job.CaseID, job.SourceType)
	return nil
}

// JobStatus returns the status and error message of a job
func (wp *WorkerPool) JobStatus(id string) (status string, errMsg string, ok bool) {
	wp.mu.Lock()
	defer wp.mu.Unlock()
	job, ok := wp.statuses[id]
	if !ok {
		return "", "", false
	}
	if job.Error != nil {
		errMsg = job.Error.Error()
	}
	return job.Status, errMsg, true
}

func (wp *WorkerPool) setJob(job *Job, status string, err error) {
	wp.mu.Lock()
	job.Status = status
	job.Error = err
	wp.mu.Unlock()
}

// worker processes jobs from the queue
func (wp *WorkerPool) worker(id int) {
	defer wp.wg.Done()
	log.Printf("Worker %d started", id)

	for job := range wp.jobQueue {
		// Panic recovery
		func() {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("Worker %d: PANIC processing job %s: %v\n%s",
						id, job.ID, r, string(debug.Stack()))
					wp.fail(id, job, fmt.Errorf("worker panic: %v", r))
				}
			}()

			wp.processJob(id, job)
		}()
	}
}

// processJob parses and stores one bundle, driving the case status
func (wp *WorkerPool) processJob(workerID int, job *Job) {
	log.Printf("Worker %d: Processing job %s for case %s", workerID, job.ID, job.CaseID)
	wp.setJob(job, JobProcessing, nil)
	defer wp.cleanupTempFile(job.FilePath)

	if err := wp.store.SetStatus(job.CaseID, types.StatusProcessing); err != nil {
		wp.fail(workerID, job, fmt.Errorf("status update failed: %w", err))
		return
	}

	// Step 1: Read bundle
	data := job.Data
	if job.FilePath != "" {
		var err error
		data, err = os.ReadFile(job.FilePath)
		if err != nil {
			wp.fail(workerID, job, fmt.Errorf("failed to read bundle: %w", err))
			return
		}
	}

	// Step 2: Validate
	bundle, err := ParseBundle(data)
	if err != nil {
		wp.fail(workerID, job, err)
		return
	}

	// Step 3: Persist
	records := bundle.Records()
	if err := wp.store.ReplaceCaseData(job.CaseID, records, bundle.Graph); err != nil {
		wp.fail(workerID, job, fmt.Errorf("failed to save case data: %w", err))
		return
	}

	if err := wp.store.SetStatus(job.CaseID, types.StatusCompleted); err != nil {
		wp.fail(workerID, job, fmt.Errorf("status update failed: %w", err))
		return
	}

	wp.setJob(job, JobCompleted, nil)
	log.Printf("Worker %d: Job %s completed (%d files, %d graph nodes)",
		workerID, job.ID, len(records), len(bundle.Graph.Nodes))
}

func (wp *WorkerPool) fail(workerID int, job *Job, err error) {
	log.Printf("Worker %d: Job %s failed: %v", workerID, job.ID, err)
	wp.setJob(job, JobFailed, err)
	if serr := wp.store.SetStatus(job.CaseID, types.StatusError); serr != nil {
		log.Printf("Worker %d: failed to mark case %s as error: %v", workerID, job.CaseID, serr)
	}
}

// cleanupTempFile removes a temporary file
func (wp *WorkerPool) cleanupTempFile(filePath string) {
	if filePath == "" {
		return
	}
	if err := os.Remove(filePath); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to cleanup temp file %s: %v", filePath, err)
	}
}
