// Package tracking runs the live trip pipeline for a device: it filters,
// segments, smooths and aggregates incoming fixes, persists recovery state
// and finalizes trips into storage-ready records.
package tracking

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"backend-revly/internal/metrics"
	"backend-revly/internal/recovery"
	"backend-revly/internal/shared/gps"
	"backend-revly/internal/timer"
	"backend-revly/internal/trip"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

type State string

const (
	StateIdle      State = "idle"
	StateTracking  State = "tracking"
	StatePaused    State = "paused"
	StateSaving    State = "saving"
	StateRestoring State = "restoring_from_background"
)

var (
	ErrPermissionDenied  = errors.New("location permission not granted")
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrNotActive         = errors.New("no active session")
)

// Event types sent through the Publisher.
const (
	EventSnapshot   = "snapshot"
	EventInactivity = "inactivity"
)

type Permissions interface {
	LocationGranted(deviceID string) bool
}

// RecordSink stores finalized trips.
type RecordSink interface {
	SaveRecord(ctx context.Context, rec trip.Record) (trip.Record, error)
}

type Publisher interface {
	Publish(deviceID, kind string, payload any)
}

// BackgroundTask is the platform task that collects fixes while the
// foreground is suspended.
type BackgroundTask interface {
	Active() bool
	Stop()
}

// Deps are the manager's collaborators. Any of them may be nil: no store
// disables recovery, no sink skips storage, no publisher skips fan-out and
// no permissions treats location as granted.
type Deps struct {
	Store       recovery.Store
	Sink        RecordSink
	Publisher   Publisher
	Permissions Permissions
}

// DrainResult summarizes one background batch.
type DrainResult struct {
	Accepted int `json:"accepted"`
	Rejected int `json:"rejected"`
	// Skipped counts fixes at or before the last applied timestamp.
	Skipped int `json:"skipped"`
	Ignored int `json:"ignored"`
}

type RestoreResult struct {
	Status         State       `json:"status"`
	Restored       bool        `json:"restored"`
	TornDown       bool        `json:"torn_down"`
	IndicesRebuilt bool        `json:"indices_rebuilt"`
	Drain          DrainResult `json:"drain"`
}

// Manager owns one device's Session and is the single writer for it.
// Foreground fixes, background batches and control calls are serialized
// through its mutex.
type Manager struct {
	device string
	opts   Options
	deps   Deps
	now    func() time.Time
	log    *logrus.Entry
	writer *recovery.Writer

	mu         sync.Mutex
	state      State
	active     bool
	session    *Session
	background BackgroundTask
	dirty      bool

	// generation invalidates callbacks from timers of an earlier run
	generation   uint64
	cancelTimers context.CancelFunc
	inactivity   *time.Timer
	idleSeq      uint64
	idleNotified bool
	lastAccepted time.Time

	rendered atomic.Pointer[LiveSnapshot]
}

func NewManager(device string, opts Options, deps Deps) *Manager {
	opts = opts.withDefaults()
	m := &Manager{
		device:  device,
		opts:    opts,
		deps:    deps,
		now:     opts.Clock,
		log:     logrus.WithField("device_id", device),
		state:   StateIdle,
		session: newSession(opts),
	}
	if deps.Store != nil {
		m.writer = recovery.NewWriter(deps.Store, device, recovery.PersistOptions{})
	}
	m.mu.Lock()
	m.renderLocked()
	m.mu.Unlock()
	return m
}

func (m *Manager) DeviceID() string {
	return m.device
}

func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *Manager) Start(ctx context.Context) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return m.state, errors.Wrapf(ErrInvalidTransition, "start while %s", m.state)
	}
	if m.deps.Permissions != nil && !m.deps.Permissions.LocationGranted(m.device) {
		return m.state, ErrPermissionDenied
	}
	if m.deps.Store != nil {
		if err := m.deps.Store.Clear(ctx, m.device); err != nil {
			m.log.WithError(err).Warn("clearing previous recovery state failed")
		}
	}

	now := m.now()
	m.session.begin(uuid.NewString(), now)
	m.state = StateTracking
	m.active = true
	m.lastAccepted = now
	m.startTimersLocked()
	m.persistLocked()
	m.renderLocked()

	m.log.WithField("session_id", m.session.ID).Info("tracking started")
	return m.state, nil
}

func (m *Manager) Pause() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateTracking {
		return m.state, errors.Wrapf(ErrInvalidTransition, "pause while %s", m.state)
	}
	m.session.pause()
	m.state = StatePaused
	m.stopInactivityLocked()
	m.persistLocked()
	m.renderLocked()
	return m.state, nil
}

func (m *Manager) Resume() (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StatePaused {
		return m.state, errors.Wrapf(ErrInvalidTransition, "resume while %s", m.state)
	}
	m.session.resume()
	m.state = StateTracking
	m.lastAccepted = m.now()
	m.armInactivityLocked()
	m.persistLocked()
	m.renderLocked()
	return m.state, nil
}

// Stop finalizes the session and hands the record to the sink. The manager
// returns to Idle even when storing fails; the record is returned either way.
func (m *Manager) Stop(ctx context.Context) (trip.Record, error) {
	m.mu.Lock()
	switch m.state {
	case StateTracking, StatePaused:
	case StateIdle:
		m.mu.Unlock()
		return trip.Record{}, ErrNotActive
	default:
		state := m.state
		m.mu.Unlock()
		return trip.Record{}, errors.Wrapf(ErrInvalidTransition, "stop while %s", state)
	}

	m.active = false
	m.state = StateSaving
	m.stopTimersLocked()
	gen := m.generation
	rec := m.session.finalize(m.device, m.now(), m.opts.Simplify)
	bg := m.background
	m.background = nil
	m.renderLocked()
	m.mu.Unlock()

	if bg != nil {
		bg.Stop()
	}
	m.endRecovery(ctx)

	var err error
	if m.deps.Sink != nil {
		saved, saveErr := m.deps.Sink.SaveRecord(ctx, rec)
		if saveErr != nil {
			err = errors.Wrap(saveErr, "save trip record")
			m.log.WithError(saveErr).Error("trip record not stored")
		} else {
			rec = saved
		}
	}

	m.mu.Lock()
	// a reset during saving already moved on
	if m.generation == gen && m.state == StateSaving {
		m.session.reset()
		m.state = StateIdle
		m.renderLocked()
	}
	m.mu.Unlock()

	m.log.WithFields(logrus.Fields{
		"session_id": rec.SessionID,
		"distance_m": rec.DistanceMeters,
		"duration_s": rec.DurationSeconds,
	}).Info("tracking stopped")
	return rec, err
}

// Reset forces Idle and clears all session and recovery state.
func (m *Manager) Reset(ctx context.Context) State {
	m.mu.Lock()
	m.stopTimersLocked()
	m.active = false
	m.session.reset()
	m.state = StateIdle
	m.dirty = false
	bg := m.background
	m.background = nil
	m.renderLocked()
	m.mu.Unlock()

	if bg != nil {
		bg.Stop()
	}
	if m.writer != nil {
		m.writer.Discard()
	}
	if m.deps.Store != nil {
		if err := m.deps.Store.Clear(ctx, m.device); err != nil {
			m.log.WithError(err).Warn("clearing recovery state failed")
		}
	}
	return StateIdle
}

// Ingest applies one foreground fix. Fixes arriving while not tracking,
// including after Stop, are ignored.
func (m *Manager) Ingest(fix gps.Fix) Outcome {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active || m.state != StateTracking {
		return Outcome{Ignored: true}
	}
	out := m.session.apply(fix)
	if out.Accepted {
		m.acceptedLocked()
	}
	return out
}

// DrainBackground replays fixes collected while the foreground was
// suspended, in timestamp order. Fixes at or before the last applied
// timestamp are skipped, so draining the same batch twice is harmless.
func (m *Manager) DrainBackground(fixes []gps.Fix) DrainResult {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.active || m.state != StateTracking {
		return DrainResult{Ignored: len(fixes)}
	}
	res := m.drainLocked(fixes)
	m.persistLocked()
	return res
}

func (m *Manager) drainLocked(fixes []gps.Fix) DrainResult {
	var res DrainResult
	batch := make([]gps.Fix, len(fixes))
	copy(batch, fixes)
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Timestamp < batch[j].Timestamp })

	last := m.session.segments.Last()
	m.session.segments.MarkBoundary()
	for _, fix := range batch {
		if last != nil && fix.Timestamp <= last.Timestamp {
			res.Skipped++
			continue
		}
		out := m.session.apply(fix)
		if !out.Accepted {
			res.Rejected++
			continue
		}
		res.Accepted++
		pt := out.Point
		last = &pt
	}

	m.session.lastBackgroundSyncMs = m.now().UnixMilli()
	if res.Accepted > 0 {
		m.acceptedLocked()
	}
	m.log.WithFields(logrus.Fields{
		"accepted": res.Accepted,
		"rejected": res.Rejected,
		"skipped":  res.Skipped,
	}).Debug("background batch drained")
	return res
}

// Restore runs at cold start. A live background task with persisted,
// not-ended state resumes the session as Tracking or Paused, then drains
// the task's pending fixes. An ended flag always tears the task down.
func (m *Manager) Restore(ctx context.Context, task BackgroundTask, pending []gps.Fix) (RestoreResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return RestoreResult{Status: m.state}, errors.Wrapf(ErrInvalidTransition, "restore while %s", m.state)
	}
	if task == nil || !task.Active() {
		return RestoreResult{Status: StateIdle}, nil
	}
	teardown := func() RestoreResult {
		task.Stop()
		return RestoreResult{Status: StateIdle, TornDown: true}
	}
	if m.deps.Store == nil {
		return teardown(), nil
	}

	store := m.deps.Store
	ended, _ := recovery.LoadWith(ctx, func(ctx context.Context) (bool, error) {
		return store.Ended(ctx, m.device)
	}, recovery.LoadOptions[bool]{Default: true})
	if ended {
		m.log.Info("session was ended explicitly, tearing down background task")
		if err := store.Clear(ctx, m.device); err != nil {
			m.log.WithError(err).Warn("clearing recovery state failed")
		}
		return teardown(), nil
	}

	st, ok := recovery.LoadWith(ctx, func(ctx context.Context) (recovery.PersistedState, error) {
		return store.Load(ctx, m.device)
	}, recovery.LoadOptions[recovery.PersistedState]{})
	if !ok || !st.Active {
		return teardown(), nil
	}

	m.state = StateRestoring
	agreed := m.session.restore(st)
	if !agreed {
		m.log.WithField("session_id", st.SessionID).Warn("persisted segment indices disagreed with points, rebuilt")
	}

	now := m.now()
	switch m.session.timer.Status() {
	case timer.StatusPaused:
		m.session.segments.Pause()
		m.state = StatePaused
	case timer.StatusStopped:
		m.session.timer.Hydrate(timer.Snapshot{
			Status:             timer.StatusRunning,
			AccumulatedSeconds: st.Timer.AccumulatedSeconds,
			LastTransitionMs:   now.UnixMilli(),
		})
		m.state = StateTracking
	default:
		m.state = StateTracking
	}

	m.active = true
	m.background = task
	m.lastAccepted = now
	m.startTimersLocked()
	if m.state == StatePaused {
		m.stopInactivityLocked()
	}

	res := RestoreResult{Restored: true, IndicesRebuilt: !agreed}
	if m.state == StateTracking {
		res.Drain = m.drainLocked(pending)
	} else {
		res.Drain.Ignored = len(pending)
	}
	res.Status = m.state
	m.persistLocked()
	m.renderLocked()

	m.log.WithFields(logrus.Fields{
		"session_id": st.SessionID,
		"points":     len(st.Points),
		"status":     m.state,
	}).Info("session restored from background")
	return res, nil
}

// Run serializes the foreground stream and background batches into the
// manager until ctx is done or both channels are closed.
func (m *Manager) Run(ctx context.Context, foreground <-chan gps.Fix, background <-chan []gps.Fix) {
	for foreground != nil || background != nil {
		select {
		case <-ctx.Done():
			return
		case fix, ok := <-foreground:
			if !ok {
				foreground = nil
				continue
			}
			m.Ingest(fix)
		case batch, ok := <-background:
			if !ok {
				background = nil
				continue
			}
			m.DrainBackground(batch)
		}
	}
}

// Snapshot returns the latest render-tier snapshot. It is refreshed on the
// snapshot cadence and on every state transition, not per fix.
func (m *Manager) Snapshot() LiveSnapshot {
	if s := m.rendered.Load(); s != nil {
		return *s
	}
	return LiveSnapshot{DeviceID: m.device, Status: StateIdle}
}

// Metrics returns the data-tier aggregate, current to the last accepted fix.
func (m *Manager) Metrics() metrics.TripMetrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.metrics.Metrics()
}

// Segments returns the data-tier points grouped by segment.
func (m *Manager) Segments() [][]gps.TrackedPoint {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.segments.Segments()
}

// SegmentIndexForFlatIndex maps a flat point index to its segment, -1 when
// out of range.
func (m *Manager) SegmentIndexForFlatIndex(i int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session.segments.SegmentIndexForFlatIndex(i)
}

// Close stops timers and the recovery writer.
func (m *Manager) Close() {
	m.mu.Lock()
	m.stopTimersLocked()
	m.mu.Unlock()
	if m.writer != nil {
		m.writer.Close()
	}
}

func (m *Manager) acceptedLocked() {
	m.dirty = true
	m.lastAccepted = m.now()
	m.armInactivityLocked()
}

func (m *Manager) startTimersLocked() {
	m.stopTimersLocked()
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelTimers = cancel
	gen := m.generation

	go timer.RunTicker(ctx, m.opts.SnapshotInterval, func(time.Time) { m.onSnapshotTick(gen) })
	go timer.RunTicker(ctx, m.opts.PersistInterval, func(time.Time) { m.onPersistTick(gen) })
	m.armInactivityLocked()
}

// stopTimersLocked cancels every outstanding timer. Callbacks already
// running see a new generation and do nothing.
func (m *Manager) stopTimersLocked() {
	m.generation++
	if m.cancelTimers != nil {
		m.cancelTimers()
		m.cancelTimers = nil
	}
	m.stopInactivityLocked()
}

func (m *Manager) armInactivityLocked() {
	if m.opts.InactivityTimeout <= 0 || m.deps.Publisher == nil {
		return
	}
	m.stopInactivityLocked()
	m.idleNotified = false
	seq := m.idleSeq
	m.inactivity = time.AfterFunc(m.opts.InactivityTimeout, func() { m.onInactive(seq) })
}

// stopInactivityLocked disarms the idle timer. A callback already waiting
// on the lock sees a stale sequence and returns.
func (m *Manager) stopInactivityLocked() {
	m.idleSeq++
	if m.inactivity != nil {
		m.inactivity.Stop()
		m.inactivity = nil
	}
}

func (m *Manager) onInactive(seq uint64) {
	m.mu.Lock()
	if seq != m.idleSeq || m.state != StateTracking || m.idleNotified {
		m.mu.Unlock()
		return
	}
	m.idleNotified = true
	ev := InactivityEvent{
		DeviceID:    m.device,
		SessionID:   m.session.ID,
		IdleSeconds: int64(m.now().Sub(m.lastAccepted) / time.Second),
		LastFixAt:   m.lastAccepted.UTC(),
	}
	m.mu.Unlock()

	m.log.WithField("idle_s", ev.IdleSeconds).Info("no fixes accepted recently")
	m.deps.Publisher.Publish(m.device, EventInactivity, ev)
}

func (m *Manager) onSnapshotTick(gen uint64) {
	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		return
	}
	snap := m.renderLocked()
	m.mu.Unlock()

	if m.deps.Publisher != nil {
		m.deps.Publisher.Publish(m.device, EventSnapshot, snap)
	}
}

func (m *Manager) onPersistTick(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.generation || !m.dirty {
		return
	}
	m.persistLocked()
}

// persistLocked queues the current state; the write happens off the
// ingestion path.
func (m *Manager) persistLocked() {
	m.dirty = false
	if m.writer == nil {
		return
	}
	m.writer.Persist(m.session.persisted(m.active))
}

func (m *Manager) renderLocked() LiveSnapshot {
	snap := m.session.render(m.device, m.state, m.now())
	m.rendered.Store(&snap)
	return snap
}

// endRecovery drops queued writes and records that the session ended, so a
// still-running background task is never restored.
func (m *Manager) endRecovery(ctx context.Context) {
	if m.writer != nil {
		m.writer.Discard()
	}
	if m.deps.Store == nil {
		return
	}
	if err := m.deps.Store.MarkEnded(ctx, m.device); err != nil {
		m.log.WithError(err).Warn("marking session ended failed")
	}
	if err := m.deps.Store.Delete(ctx, m.device); err != nil {
		m.log.WithError(err).Warn("deleting recovery state failed")
	}
}
