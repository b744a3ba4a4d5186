package tracking

import (
	"time"

	"backend-revly/internal/codec"
	"backend-revly/internal/filter"
	"backend-revly/internal/metrics"
	"backend-revly/internal/recovery"
	"backend-revly/internal/segment"
	"backend-revly/internal/shared/geo"
	"backend-revly/internal/shared/gps"
	"backend-revly/internal/smoother"
	"backend-revly/internal/timer"
	"backend-revly/internal/trip"
)

// Session is the data tier of a trip: raw points plus pipeline state,
// mutated synchronously for every fix. Its Manager serializes access.
type Session struct {
	ID        string
	StartedAt time.Time

	filter   *filter.Filter
	segments *segment.Manager
	smoother *smoother.Smoother
	metrics  *metrics.Aggregator
	timer    *timer.Timer

	accepted             int
	lastBackgroundSyncMs int64
}

// Outcome reports what happened to one offered fix.
type Outcome struct {
	Accepted bool             `json:"accepted"`
	Ignored  bool             `json:"ignored,omitempty"`
	Reason   filter.Reason    `json:"reason,omitempty"`
	Gap      bool             `json:"gap,omitempty"`
	Point    gps.TrackedPoint `json:"-"`
}

func newSession(opts Options) *Session {
	return &Session{
		filter:   filter.New(opts.Filter),
		segments: segment.NewManager(opts.Segment),
		smoother: smoother.New(opts.Smoother),
		metrics:  metrics.NewAggregator(opts.Metrics),
		timer:    timer.New(opts.Clock),
	}
}

func (s *Session) begin(id string, at time.Time) {
	s.reset()
	s.ID = id
	s.StartedAt = at
	s.timer.Start()
}

// reset discards everything, including smoother calibration.
func (s *Session) reset() {
	s.ID = ""
	s.StartedAt = time.Time{}
	s.filter.Reset()
	s.segments.Reset()
	s.smoother.Reset()
	s.metrics.Reset()
	s.timer.Reset()
	s.accepted = 0
	s.lastBackgroundSyncMs = 0
}

func (s *Session) pause() {
	s.timer.Pause()
	s.segments.Pause()
}

func (s *Session) resume() {
	s.timer.Resume()
	s.segments.Resume()
}

// apply runs one fix through filter, segmenting, smoothing and aggregation.
func (s *Session) apply(fix gps.Fix) Outcome {
	ok, reason := s.filter.Check(fix, s.segments.Last())
	if !ok {
		return Outcome{Reason: reason}
	}

	fix = fix.Sanitized()
	pl := s.segments.Place(fix)
	raw, measured := rawSpeedKmh(fix, pl)
	smoothed := s.smoother.Estimate()
	if measured {
		smoothed = s.smoother.Update(raw)
	}

	pt := gps.TrackedPoint{Fix: fix, SegmentIndex: pl.SegmentIndex, SpeedKmh: smoothed}
	s.segments.Commit(pt)
	s.metrics.Add(metrics.Sample{
		Point:       pt,
		RawSpeedKmh: raw,
		Connected:   pl.Connected,
		DistanceM:   pl.DistanceM,
	})
	s.accepted++
	return Outcome{Accepted: true, Gap: pl.Gap, Point: pt}
}

// rawSpeedKmh prefers the sensor speed. Without one, speed is derived from
// the connected pair; the first point of a segment has no usable pair.
func rawSpeedKmh(fix gps.Fix, pl segment.Placement) (float64, bool) {
	if fix.HasSpeed() {
		return geo.MpsToKmh(*fix.Speed), true
	}
	if pl.Connected && pl.DtMs > 0 {
		return geo.SpeedKmh(pl.DistanceM, pl.DtMs), true
	}
	return 0, false
}

func (s *Session) persisted(active bool) recovery.PersistedState {
	return recovery.PersistedState{
		SessionID:            s.ID,
		Active:               active,
		StartedAtMs:          s.StartedAt.UnixMilli(),
		Points:               s.segments.Points(),
		SegmentStartIndices:  s.segments.StartIndices(),
		LastBackgroundSyncMs: s.lastBackgroundSyncMs,
		Timer:                s.timer.Snapshot(),
		Smoother:             s.smoother.State(),
	}
}

// restore rebuilds the session from persisted state. Metrics are recomputed
// by replaying the stored points. It reports whether the persisted segment
// start indices matched the points.
func (s *Session) restore(st recovery.PersistedState) bool {
	s.reset()
	s.ID = st.SessionID
	s.StartedAt = time.UnixMilli(st.StartedAtMs)
	s.lastBackgroundSyncMs = st.LastBackgroundSyncMs

	agreed := s.segments.Restore(st.Points, st.SegmentStartIndices)
	s.smoother.Restore(st.Smoother)
	s.timer.Hydrate(st.Timer)

	points := s.segments.Points()
	for i, p := range points {
		sample := metrics.Sample{Point: p, RawSpeedKmh: p.SpeedKmh}
		if i > 0 && points[i-1].SegmentIndex == p.SegmentIndex {
			prev := points[i-1]
			sample.Connected = true
			sample.DistanceM = geo.DistanceMeters(prev.Latitude, prev.Longitude, p.Latitude, p.Longitude)
		}
		s.metrics.Add(sample)
	}
	s.accepted = len(points)
	return agreed
}

// finalize stops the timer and produces the storage-ready record.
func (s *Session) finalize(device string, end time.Time, simplify codec.SimplifyConfig) trip.Record {
	s.timer.Stop()
	m := s.metrics.Close()
	duration := s.timer.Elapsed()
	segments := s.segments.Segments()
	final := metrics.Finalize(segments, m, duration, s.metrics.Config())
	ratios := metrics.Derive(m, duration)
	route := codec.SimplifySegments(segments, simplify)

	return trip.Record{
		SessionID:           s.ID,
		DeviceID:            device,
		StartTime:           s.StartedAt.UTC(),
		EndTime:             end.UTC(),
		DurationSeconds:     int64(duration / time.Second),
		DistanceMeters:      m.TotalDistanceMeters,
		MaxSpeedKmh:         m.MaxSpeedKmh,
		AverageSpeedKmh:     ratios.AverageSpeedKmh,
		ElevationGain:       m.ElevationGain,
		ElevationLoss:       m.ElevationLoss,
		StopCount:           m.StopCount,
		StopTimeMs:          m.StopTimeMs,
		TotalTurns:          final.Turns.Total,
		SharpTurns:          final.Turns.Sharp,
		Smoothness:          final.Smoothness,
		DrivingScore:        final.DrivingScore,
		Polyline:            codec.Encode(route),
		RouteCoordinates:    route,
		RouteSegments:       s.segments.Points(),
		SegmentStartIndices: s.segments.StartIndices(),
	}
}
