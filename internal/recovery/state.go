// Package recovery persists live session state so a tracking session can be
// restored after the process is suspended or killed.
package recovery

import (
	"context"

	"backend-revly/internal/shared/gps"
	"backend-revly/internal/smoother"
	"backend-revly/internal/timer"

	"github.com/pkg/errors"
)

var ErrNoState = errors.New("no persisted state")

// PersistedState is the contractual recovery payload. Every field must
// survive a Save/Load round trip unchanged.
type PersistedState struct {
	SessionID            string             `json:"session_id"`
	Active               bool               `json:"active"`
	StartedAtMs          int64              `json:"started_at_ms"`
	Points               []gps.TrackedPoint `json:"points"`
	SegmentStartIndices  []int              `json:"segment_start_indices"`
	LastBackgroundSyncMs int64              `json:"last_background_sync_ms"`
	Timer                timer.Snapshot     `json:"timer"`
	Smoother             smoother.State     `json:"smoother"`
}

// Store is durable storage for one recovery state per device plus an
// independent "session ended" flag.
type Store interface {
	Save(ctx context.Context, device string, st PersistedState) error
	// Load returns ErrNoState when nothing is stored.
	Load(ctx context.Context, device string) (PersistedState, error)
	// Delete removes the state but keeps the ended flag.
	Delete(ctx context.Context, device string) error
	MarkEnded(ctx context.Context, device string) error
	Ended(ctx context.Context, device string) (bool, error)
	// Clear removes the state and the ended flag.
	Clear(ctx context.Context, device string) error
}
