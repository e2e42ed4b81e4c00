package cleanup

import (
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Scheduler removes import bundles left behind in the temp directory by
// uploads that never reached a worker
type Scheduler struct {
	tempDir  string
	interval time.Duration
	maxAge   time.Duration
	stopChan chan struct{}
	stopOnce sync.Once
	now      func() time.Time
}

// NewScheduler creates a new cleanup scheduler
func NewScheduler(tempDir string, intervalMinutes, maxAgeHours int) *Scheduler {
	if intervalMinutes <= 0 {
		intervalMinutes = 30
	}
	if maxAgeHours <= 0 {
		maxAgeHours = 24
	}
	return &Scheduler{
		tempDir:  tempDir,
		interval: time.Duration(intervalMinutes) * time.Minute,
		maxAge:   time.Duration(maxAgeHours) * time.Hour,
		stopChan: make(chan struct{}),
		now:      time.Now,
	}
}

// Start sweeps once and then on every interval
func (s *Scheduler) Start() {
	log.Println("Running initial temp bundle cleanup...")
	s.Sweep()

	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.Sweep()
			case <-s.stopChan:
				return
			}
		}
	}()

	log.Printf("Cleanup scheduler started (interval: %s, max age: %s)", s.interval, s.maxAge)
}

// Stop stops the cleanup scheduler
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopChan)
		log.Println("Cleanup scheduler stopped")
	})
}

// Sweep deletes bundle files older than the max age and returns how many
// files and bytes were removed
func (s *Scheduler) Sweep() (deleted int, freed int64) {
	now := s.now()

	err := filepath.Walk(s.tempDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}
		if info.IsDir() || !IsBundleFile(info.Name()) {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age <= s.maxAge {
			return nil
		}
		size := info.Size()
		if err := os.Remove(path); err != nil {
			log.Printf("Failed to delete stale bundle %s: %v", path, err)
			return nil
		}
		deleted++
		freed += size
		log.Printf("Deleted stale bundle: %s (age: %s, size: %dKB)",
			filepath.Base(path), age.Round(time.Minute), size/1024)
		return nil
	})
	if err != nil {
		log.Printf("Error during cleanup: %v", err)
	}

	if deleted > 0 {
		log.Printf("Cleanup complete: %d bundles deleted, %.2fMB freed",
			deleted, float64(freed)/(1024*1024))
	}
	return deleted, freed
}

// IsBundleFile reports whether name looks like a staged import bundle
func IsBundleFile(name string) bool {
	return strings.HasSuffix(name, ".bundle.json")
}

// EnsureTempDirExists creates the temp directory if it doesn't exist
func EnsureTempDirExists(tempDir string) error {
	if err := os.MkdirAll(tempDir, 0755); err != nil {
		return err
	}
	log.Printf("Temp directory ready: %s", tempDir)
	return nil
}
