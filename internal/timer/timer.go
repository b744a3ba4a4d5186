// Package timer tracks trip elapsed time independently of GPS.
package timer

import (
	"context"
	"fmt"
	"time"
)

type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusPaused  Status = "paused"
)

// Snapshot is the persisted timer state. AccumulatedSeconds covers all
// running time up to LastTransitionMs.
type Snapshot struct {
	Status             Status  `json:"status"`
	AccumulatedSeconds float64 `json:"accumulated_seconds"`
	LastTransitionMs   int64   `json:"last_transition_ms"`
}

// Timer is a Stopped -> Running -> Paused -> Running -> Stopped state machine.
// It is not safe for concurrent use; callers serialize access.
type Timer struct {
	now         func() time.Time
	status      Status
	accumulated time.Duration
	since       time.Time
}

// New returns a stopped timer reading time from now (time.Now when nil).
func New(now func() time.Time) *Timer {
	if now == nil {
		now = time.Now
	}
	return &Timer{now: now, status: StatusStopped}
}

func (t *Timer) Status() Status {
	return t.status
}

// Start begins a fresh run. It reports false unless the timer was stopped.
func (t *Timer) Start() bool {
	if t.status != StatusStopped {
		return false
	}
	t.accumulated = 0
	t.since = t.now()
	t.status = StatusRunning
	return true
}

func (t *Timer) Pause() bool {
	if t.status != StatusRunning {
		return false
	}
	t.accumulated += t.running()
	t.since = t.now()
	t.status = StatusPaused
	return true
}

func (t *Timer) Resume() bool {
	if t.status != StatusPaused {
		return false
	}
	t.since = t.now()
	t.status = StatusRunning
	return true
}

// Stop freezes elapsed time. The value stays readable until Start or Reset.
func (t *Timer) Stop() bool {
	if t.status == StatusStopped {
		return false
	}
	if t.status == StatusRunning {
		t.accumulated += t.running()
	}
	t.since = t.now()
	t.status = StatusStopped
	return true
}

func (t *Timer) Reset() {
	t.status = StatusStopped
	t.accumulated = 0
	t.since = time.Time{}
}

func (t *Timer) running() time.Duration {
	d := t.now().Sub(t.since)
	if d < 0 {
		return 0
	}
	return d
}

// Elapsed excludes time spent paused.
func (t *Timer) Elapsed() time.Duration {
	if t.status == StatusRunning {
		return t.accumulated + t.running()
	}
	return t.accumulated
}

func (t *Timer) ElapsedText() string {
	return FormatHMS(t.Elapsed())
}

// Snapshot folds the current running stretch into the accumulated total.
func (t *Timer) Snapshot() Snapshot {
	now := t.now()
	return Snapshot{
		Status:             t.status,
		AccumulatedSeconds: t.Elapsed().Seconds(),
		LastTransitionMs:   now.UnixMilli(),
	}
}

// Hydrate restores a snapshot taken before a cold start. A running timer
// keeps counting across the gap since the snapshot; a paused one does not.
func (t *Timer) Hydrate(s Snapshot) {
	t.accumulated = time.Duration(s.AccumulatedSeconds * float64(time.Second))
	if t.accumulated < 0 {
		t.accumulated = 0
	}
	switch s.Status {
	case StatusRunning, StatusPaused:
		t.status = s.Status
	default:
		t.status = StatusStopped
	}

	now := t.now()
	t.since = now
	if t.status == StatusRunning && s.LastTransitionMs > 0 {
		last := time.UnixMilli(s.LastTransitionMs)
		if last.Before(now) {
			t.since = last
		}
	}
}

// FormatHMS renders d as HH:MM:SS. Hours are not wrapped.
func FormatHMS(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total%3600)/60, total%60)
}

// RunTicker calls fn every interval until ctx is done.
func RunTicker(ctx context.Context, interval time.Duration, fn func(time.Time)) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fn(now)
		}
	}
}
