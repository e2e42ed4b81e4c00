package poller

import (
	"log"
	"sync"
	"time"

	"github.com/codebuildervaibhav/case-review/internal/types"
)

// StatusSource reports the processing status of a case
type StatusSource interface {
	GetStatus(caseID string) (string, error)
}

// StatusPoller checks a case's processing status periodically until it
// reaches completed or error. Every observed status is passed to onStatus from
// the poller's goroutine; callers hand it over to their own loop.
type StatusPoller struct {
	source   StatusSource
	caseID   string
	interval time.Duration
	onStatus func(status string)

	stopChan chan struct{}
	stopOnce sync.Once
	done     chan struct{}
}

// NewStatusPoller creates a poller for one case
func NewStatusPoller(source StatusSource, caseID string, interval time.Duration, onStatus func(string)) *StatusPoller {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &StatusPoller{
		source:   source,
		caseID:   caseID,
		interval: interval,
		onStatus: onStatus,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start checks once immediately and then on every tick
func (p *StatusPoller) Start() {
	go func() {
		defer close(p.done)
		if p.check() {
			return
		}

		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if p.check() {
					return
				}
			case <-p.stopChan:
				return
			}
		}
	}()
}

// Stop ends polling and waits for an in-flight check to return
func (p *StatusPoller) Stop() {
	p.stopOnce.Do(func() { close(p.stopChan) })
	<-p.done
}

// Done is closed once polling has ended for any reason
func (p *StatusPoller) Done() <-chan struct{} {
	return p.done
}

// check reports whether polling is finished
func (p *StatusPoller) check() bool {
	select {
	case <-p.stopChan:
		return true
	default:
	}

	status, err := p.source.GetStatus(p.caseID)
	if err != nil {
		log.Printf("Error fetching status for case %s: %v", p.caseID, err)
		return false
	}
	p.onStatus(status)
	return types.IsTerminal(status)
}
