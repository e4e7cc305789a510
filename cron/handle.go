package cron

import (
	"sync"
	"time"
)

// ScheduleStatus reports where a handle is in its lifecycle.
type ScheduleStatus string

const (
	ScheduleStatusScheduled ScheduleStatus = "scheduled"
	ScheduleStatusRunning   ScheduleStatus = "running"
	ScheduleStatusIdle      ScheduleStatus = "idle"
	ScheduleStatusSkipped   ScheduleStatus = "skipped"
	ScheduleStatusCompleted ScheduleStatus = "completed"
	ScheduleStatusCanceled  ScheduleStatus = "canceled"
	ScheduleStatusFailed    ScheduleStatus = "failed"
	ScheduleStatusStopped   ScheduleStatus = "stopped"
)

// Handle tracks one scheduled job.
type Handle interface {
	// Cancel removes the job. A run in progress is not interrupted.
	Cancel()
	Status() ScheduleStatus
	// Err is the error of the latest run.
	Err() error
	// Done is closed once the handle reaches a final status.
	Done() <-chan struct{}
	ID() int64
	Stats() RunStats
}

// RunStats counts what happened on the ticks of a handle.
type RunStats struct {
	Runs    int
	Skipped int
	Failed  int
	LastRun time.Time
}

type handle struct {
	scheduler *Scheduler
	id        int64
	entryID   int
	done      chan struct{}
	cancel    sync.Once

	mu     sync.RWMutex
	status ScheduleStatus
	err    error
	stats  RunStats
}

func (h *handle) Cancel() {
	if h == nil {
		return
	}
	h.cancel.Do(func() {
		if h.scheduler != nil {
			h.scheduler.removeHandle(h.id)
		}
		h.setTerminal(ScheduleStatusCanceled, nil)
	})
}

func (h *handle) Status() ScheduleStatus {
	if h == nil {
		return ScheduleStatusStopped
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *handle) Err() error {
	if h == nil {
		return nil
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.err
}

func (h *handle) Done() <-chan struct{} {
	if h == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return h.done
}

func (h *handle) ID() int64 {
	if h == nil {
		return 0
	}
	return h.id
}

func (h *handle) Stats() RunStats {
	if h == nil {
		return RunStats{}
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.stats
}

// begin marks a tick as running. It returns false once the handle is
// final.
func (h *handle) begin() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if isTerminalStatus(h.status) {
		return false
	}
	h.status = ScheduleStatusRunning
	h.stats.LastRun = time.Now()
	return true
}

// finish records the outcome of a tick. A handle canceled or stopped
// while the tick ran keeps its final status.
func (h *handle) finish(status ScheduleStatus, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	switch status {
	case ScheduleStatusSkipped:
		h.stats.Skipped++
	case ScheduleStatusFailed:
		h.stats.Runs++
		h.stats.Failed++
	default:
		h.stats.Runs++
	}
	if isTerminalStatus(h.status) {
		return
	}
	h.status = status
	h.err = err
}

// setTerminal records the final status once; later calls are ignored.
func (h *handle) setTerminal(status ScheduleStatus, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	select {
	case <-h.done:
		return
	default:
	}
	h.status = status
	h.err = err
	close(h.done)
}

func isTerminalStatus(status ScheduleStatus) bool {
	switch status {
	case ScheduleStatusCompleted, ScheduleStatusCanceled, ScheduleStatusStopped:
		return true
	default:
		return false
	}
}
