package tracking

import (
	"time"

	"backend-revly/internal/codec"
	"backend-revly/internal/config"
	"backend-revly/internal/filter"
	"backend-revly/internal/metrics"
	"backend-revly/internal/segment"
	"backend-revly/internal/smoother"
)

// Options configures every stage of the pipeline for one manager.
type Options struct {
	Filter   filter.Config
	Segment  segment.Config
	Smoother smoother.Config
	Metrics  metrics.Config
	Simplify codec.SimplifyConfig

	// SnapshotInterval is the render-tier cadence.
	SnapshotInterval  time.Duration
	PersistInterval   time.Duration
	InactivityTimeout time.Duration

	Clock func() time.Time
}

func DefaultOptions() Options {
	return Options{
		Filter:            filter.DefaultConfig(),
		Segment:           segment.DefaultConfig(),
		Smoother:          smoother.DefaultConfig(),
		Metrics:           metrics.DefaultConfig(),
		Simplify:          codec.DefaultSimplifyConfig(),
		SnapshotInterval:  time.Second,
		PersistInterval:   5 * time.Second,
		InactivityTimeout: 10 * time.Minute,
		Clock:             time.Now,
	}
}

func OptionsFromConfig(cfg config.Tracking) Options {
	opts := DefaultOptions()
	opts.Filter = filter.Config{MaxAccuracyM: cfg.MaxAccuracyM, MaxSpeedKmh: cfg.MaxSpeedKmh}
	opts.Segment = segment.Config{GapTime: cfg.GapTime, GapDistanceM: cfg.GapDistanceM}
	opts.Smoother = smoother.Config{
		ProcessNoise:     cfg.KalmanProcessNoise,
		MeasurementNoise: cfg.KalmanMeasurementNoise,
		HistorySize:      cfg.SpeedHistorySize,
	}
	opts.Metrics = metrics.Config{
		StopSpeedKmh:    cfg.StopSpeedKmh,
		StopMinDuration: cfg.StopMinDuration,
		SpeedCeilingKmh: cfg.SpeedCeilingKmh,
	}
	opts.Simplify = codec.SimplifyConfig{MinPoints: cfg.SimplifyMinPoints, ToleranceM: cfg.SimplifyToleranceM}
	if cfg.SnapshotInterval > 0 {
		opts.SnapshotInterval = cfg.SnapshotInterval
	}
	if cfg.PersistInterval > 0 {
		opts.PersistInterval = cfg.PersistInterval
	}
	if cfg.InactivityTimeout > 0 {
		opts.InactivityTimeout = cfg.InactivityTimeout
	}
	return opts
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.SnapshotInterval <= 0 {
		o.SnapshotInterval = def.SnapshotInterval
	}
	if o.PersistInterval <= 0 {
		o.PersistInterval = def.PersistInterval
	}
	if o.Clock == nil {
		o.Clock = def.Clock
	}
	return o
}
