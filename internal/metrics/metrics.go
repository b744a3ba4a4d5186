// Package metrics derives live and final trip statistics from accepted points.
package metrics

import (
	"math"
	"time"

	"backend-revly/internal/shared/gps"
)

const epsilon = 1e-9

type Config struct {
	StopSpeedKmh    float64
	StopMinDuration time.Duration
	SpeedCeilingKmh float64
}

func DefaultConfig() Config {
	return Config{
		StopSpeedKmh:    3,
		StopMinDuration: 60 * time.Second,
		SpeedCeilingKmh: 130,
	}
}

// TripMetrics is the recomputed snapshot of the running aggregate.
type TripMetrics struct {
	TotalDistanceMeters float64 `json:"total_distance_m"`
	MaxSpeedKmh         float64 `json:"max_speed_kmh"`
	CurrentSpeedKmh     float64 `json:"current_speed_kmh"`
	SmoothedSpeedKmh    float64 `json:"smoothed_speed_kmh"`
	StopCount           int     `json:"stop_count"`
	StopTimeMs          int64   `json:"stop_time_ms"`
	ElevationGain       float64 `json:"elevation_gain_m"`
	ElevationLoss       float64 `json:"elevation_loss_m"`
	MinAltitude         float64 `json:"min_altitude_m"`
	MaxAltitude         float64 `json:"max_altitude_m"`
	HasAltitude         bool    `json:"has_altitude"`
	PointCount          int     `json:"point_count"`
}

// Ratios are derived from metrics and a duration. None of them is ever NaN or Inf.
type Ratios struct {
	AverageSpeedKmh     float64 `json:"average_speed_kmh"`
	PaceMinPerKm        float64 `json:"pace_min_per_km"`
	IdleRatio           float64 `json:"idle_ratio"`
	StopsPerKm          float64 `json:"stops_per_km"`
	ClimbRateMPerHour   float64 `json:"climb_rate_m_per_hour"`
	AverageGradePercent float64 `json:"average_grade_percent"`
}

// Sample is one accepted point as seen by the aggregator.
type Sample struct {
	Point gps.TrackedPoint
	// RawSpeedKmh is the unsmoothed speed for the point.
	RawSpeedKmh float64
	// Connected is false for the first point of a segment; the pair it forms
	// with the previous point is not travel.
	Connected bool
	DistanceM float64
}

// Aggregator updates TripMetrics incrementally, one accepted point at a time.
type Aggregator struct {
	cfg  Config
	m    TripMetrics
	last *gps.TrackedPoint

	slowSince    int64
	slow         bool
	stopCounted  bool
	lastSlowSeen int64
}

func NewAggregator(cfg Config) *Aggregator {
	def := DefaultConfig()
	if cfg.StopSpeedKmh <= 0 {
		cfg.StopSpeedKmh = def.StopSpeedKmh
	}
	if cfg.StopMinDuration <= 0 {
		cfg.StopMinDuration = def.StopMinDuration
	}
	if cfg.SpeedCeilingKmh <= 0 {
		cfg.SpeedCeilingKmh = def.SpeedCeilingKmh
	}
	return &Aggregator{cfg: cfg}
}

func (a *Aggregator) Config() Config {
	return a.cfg
}

// Add folds one sample into the aggregate.
func (a *Aggregator) Add(s Sample) {
	pt := s.Point
	a.m.PointCount++
	a.m.CurrentSpeedKmh = s.RawSpeedKmh
	a.m.SmoothedSpeedKmh = pt.SpeedKmh
	if pt.SpeedKmh > a.m.MaxSpeedKmh {
		a.m.MaxSpeedKmh = pt.SpeedKmh
	}

	if s.Connected {
		a.m.TotalDistanceMeters += s.DistanceM
	} else {
		// a stop never spans a segment boundary
		a.closeStop()
	}

	a.trackStop(pt)
	a.trackElevation(pt, s.Connected)

	p := pt
	a.last = &p
}

func (a *Aggregator) trackStop(pt gps.TrackedPoint) {
	if pt.SpeedKmh < a.cfg.StopSpeedKmh {
		if !a.slow {
			a.slow = true
			a.slowSince = pt.Timestamp
			a.stopCounted = false
		}
		a.lastSlowSeen = pt.Timestamp
		if !a.stopCounted && pt.Timestamp-a.slowSince >= a.cfg.StopMinDuration.Milliseconds() {
			a.stopCounted = true
			a.m.StopCount++
		}
		return
	}
	if a.slow {
		// the stop lasted until this moving fix
		a.lastSlowSeen = pt.Timestamp
		a.closeStop()
	}
}

func (a *Aggregator) closeStop() {
	if a.slow && a.stopCounted {
		a.m.StopTimeMs += a.lastSlowSeen - a.slowSince
	}
	a.slow = false
	a.stopCounted = false
}

func (a *Aggregator) trackElevation(pt gps.TrackedPoint, connected bool) {
	if !pt.HasAltitude() {
		return
	}
	alt := *pt.Altitude
	if !a.m.HasAltitude {
		a.m.HasAltitude = true
		a.m.MinAltitude = alt
		a.m.MaxAltitude = alt
	}
	a.m.MinAltitude = math.Min(a.m.MinAltitude, alt)
	a.m.MaxAltitude = math.Max(a.m.MaxAltitude, alt)

	if !connected || a.last == nil || !a.last.HasAltitude() {
		return
	}
	delta := alt - *a.last.Altitude
	if delta > 0 {
		a.m.ElevationGain += delta
	} else {
		a.m.ElevationLoss += -delta
	}
}

// Metrics returns the current aggregate. A stop in progress that already
// qualified contributes its time so far.
func (a *Aggregator) Metrics() TripMetrics {
	m := a.m
	if a.slow && a.stopCounted {
		m.StopTimeMs += a.lastSlowSeen - a.slowSince
	}
	return m
}

// Close ends any stop in progress. Called once at finalization.
func (a *Aggregator) Close() TripMetrics {
	a.closeStop()
	return a.m
}

func (a *Aggregator) Reset() {
	a.m = TripMetrics{}
	a.last = nil
	a.slow = false
	a.stopCounted = false
	a.slowSince = 0
	a.lastSlowSeen = 0
}

// Derive computes the ratio set for metrics over duration.
func Derive(m TripMetrics, duration time.Duration) Ratios {
	seconds := duration.Seconds()
	km := m.TotalDistanceMeters / 1000
	hours := seconds / 3600

	return Ratios{
		AverageSpeedKmh:     safeDiv(km, hours),
		PaceMinPerKm:        safeDiv(seconds/60, km),
		IdleRatio:           clamp(safeDiv(float64(m.StopTimeMs)/1000, seconds), 0, 1),
		StopsPerKm:          safeDiv(float64(m.StopCount), km),
		ClimbRateMPerHour:   safeDiv(m.ElevationGain, hours),
		AverageGradePercent: safeDiv(m.ElevationGain-m.ElevationLoss, m.TotalDistanceMeters) * 100,
	}
}

func safeDiv(num, den float64) float64 {
	if math.Abs(den) < epsilon || math.IsNaN(den) || math.IsInf(den, 0) {
		return 0
	}
	v := num / den
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
