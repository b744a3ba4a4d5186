package filter

import (
	"math"

	"backend-revly/internal/shared/geo"
	"backend-revly/internal/shared/gps"

	"github.com/sirupsen/logrus"
)

type Reason string

const (
	ReasonNone              Reason = ""
	ReasonInvalidCoordinate Reason = "invalid_coordinate"
	ReasonAccuracy          Reason = "accuracy"
	ReasonOutOfOrder        Reason = "out_of_order"
	ReasonDuplicate         Reason = "duplicate"
	ReasonImplausibleSpeed  Reason = "implausible_speed"
)

type Config struct {
	MaxAccuracyM float64
	MaxSpeedKmh  float64
}

func DefaultConfig() Config {
	return Config{
		MaxAccuracyM: 50,
		MaxSpeedKmh:  250,
	}
}

// Filter accepts or rejects raw fixes. It keeps nearly every plausible fix;
// decimation for storage happens in the codec, not here.
type Filter struct {
	cfg      Config
	rejected map[Reason]int
}

func New(cfg Config) *Filter {
	def := DefaultConfig()
	if cfg.MaxAccuracyM <= 0 {
		cfg.MaxAccuracyM = def.MaxAccuracyM
	}
	if cfg.MaxSpeedKmh <= 0 {
		cfg.MaxSpeedKmh = def.MaxSpeedKmh
	}
	return &Filter{cfg: cfg, rejected: map[Reason]int{}}
}

// Check decides whether fix may follow last (nil when no point was accepted yet).
// A rejection is counted and reported through the returned reason; it never errors.
func (f *Filter) Check(fix gps.Fix, last *gps.TrackedPoint) (bool, Reason) {
	reason := f.evaluate(fix, last)
	if reason == ReasonNone {
		return true, ReasonNone
	}
	f.rejected[reason]++
	logrus.WithFields(logrus.Fields{
		"reason":    reason,
		"timestamp": fix.Timestamp,
	}).Debug("fix rejected")
	return false, reason
}

func (f *Filter) evaluate(fix gps.Fix, last *gps.TrackedPoint) Reason {
	if !geo.ValidCoordinate(fix.Latitude, fix.Longitude) {
		return ReasonInvalidCoordinate
	}
	if fix.Accuracy != nil && (math.IsNaN(*fix.Accuracy) || math.IsInf(*fix.Accuracy, 0) || *fix.Accuracy > f.cfg.MaxAccuracyM) {
		return ReasonAccuracy
	}
	if last == nil {
		return ReasonNone
	}

	dt := fix.Timestamp - last.Timestamp
	if dt < 0 {
		return ReasonOutOfOrder
	}
	if dt == 0 {
		return ReasonDuplicate
	}
	distance := geo.DistanceMeters(last.Latitude, last.Longitude, fix.Latitude, fix.Longitude)
	if geo.SpeedKmh(distance, dt) > f.cfg.MaxSpeedKmh {
		return ReasonImplausibleSpeed
	}
	return ReasonNone
}

func (f *Filter) Rejected() int {
	total := 0
	for _, n := range f.rejected {
		total += n
	}
	return total
}

// RejectedByReason returns a copy of the per-reason counters.
func (f *Filter) RejectedByReason() map[Reason]int {
	out := make(map[Reason]int, len(f.rejected))
	for k, v := range f.rejected {
		out[k] = v
	}
	return out
}

func (f *Filter) Reset() {
	f.rejected = map[Reason]int{}
}
