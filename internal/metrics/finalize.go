package metrics

import (
	"math"
	"time"

	"backend-revly/internal/shared/geo"
	"backend-revly/internal/shared/gps"

	"gonum.org/v1/gonum/stat"
)

const (
	// minimum spacing between bearing samples, suppresses GPS jitter
	turnSampleSpacingM = 15.0

	speedPenaltyPerKmh = 1.0
	speedPenaltyCap    = 30.0
	stopBaseline       = 5
	stopPenaltyEach    = 2.0
	stopPenaltyCap     = 20.0
	stopRatioBaseline  = 0.2
	stopRatioPenalty   = 50.0
	stopRatioCap       = 20.0
)

// Turns holds the finalization pass's turn counts.
type Turns struct {
	Total int `json:"total_turns"`
	Sharp int `json:"sharp_turns"`
}

// Final is the result of the one-off pass run at stop.
type Final struct {
	Turns        Turns   `json:"turns"`
	Smoothness   float64 `json:"smoothness"`
	DrivingScore float64 `json:"driving_score"`
}

type turnThresholds struct {
	turn, sharp float64
}

// thresholdsFor scales turn thresholds with the segment's average speed:
// small bearing changes matter at walking pace, less so on a highway.
func thresholdsFor(avgSpeedKmh float64) turnThresholds {
	switch {
	case avgSpeedKmh < 20:
		return turnThresholds{turn: 30, sharp: 70}
	case avgSpeedKmh < 60:
		return turnThresholds{turn: 40, sharp: 85}
	default:
		return turnThresholds{turn: 50, sharp: 100}
	}
}

// Finalize runs turn detection, smoothness and scoring over the per-segment
// point arrays. Turn detection never crosses a segment boundary.
func Finalize(segments [][]gps.TrackedPoint, m TripMetrics, duration time.Duration, cfg Config) Final {
	var turns Turns
	var speeds []float64
	for _, seg := range segments {
		t := DetectTurns(seg)
		turns.Total += t.Total
		turns.Sharp += t.Sharp
		for _, p := range seg {
			speeds = append(speeds, p.SpeedKmh)
		}
	}
	return Final{
		Turns:        turns,
		Smoothness:   Smoothness(speeds),
		DrivingScore: DrivingScore(m, duration, cfg),
	}
}

// DetectTurns counts turns in a single segment.
func DetectTurns(seg []gps.TrackedPoint) Turns {
	var out Turns
	if len(seg) < 3 {
		return out
	}

	sum := 0.0
	for _, p := range seg {
		sum += p.SpeedKmh
	}
	th := thresholdsFor(sum / float64(len(seg)))

	samples := []gps.TrackedPoint{seg[0]}
	for _, p := range seg[1:] {
		last := samples[len(samples)-1]
		if geo.DistanceMeters(last.Latitude, last.Longitude, p.Latitude, p.Longitude) >= turnSampleSpacingM {
			samples = append(samples, p)
		}
	}

	for i := 1; i+1 < len(samples); i++ {
		a, b, c := samples[i-1], samples[i], samples[i+1]
		in := geo.Bearing(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
		outB := geo.Bearing(b.Latitude, b.Longitude, c.Latitude, c.Longitude)
		delta := geo.BearingDelta(in, outB)
		if delta <= th.turn {
			continue
		}
		out.Total++
		if delta > th.sharp {
			out.Sharp++
		}
		// the next triple shares this corner
		i++
	}
	return out
}

// Smoothness maps the standard deviation of per-point speed to 0..100.
func Smoothness(speedsKmh []float64) float64 {
	if len(speedsKmh) < 2 {
		return 100
	}
	_, std := stat.MeanStdDev(speedsKmh, nil)
	if math.IsNaN(std) {
		return 100
	}
	return clamp(100-2*std, 0, 100)
}

// DrivingScore starts at 100 and subtracts capped penalties for speeding,
// frequent stops and time spent stopped.
func DrivingScore(m TripMetrics, duration time.Duration, cfg Config) float64 {
	score := 100.0
	if cfg.SpeedCeilingKmh <= 0 {
		cfg.SpeedCeilingKmh = DefaultConfig().SpeedCeilingKmh
	}

	if over := m.MaxSpeedKmh - cfg.SpeedCeilingKmh; over > 0 {
		score -= math.Min(speedPenaltyCap, over*speedPenaltyPerKmh)
	}
	if extra := m.StopCount - stopBaseline; extra > 0 {
		score -= math.Min(stopPenaltyCap, float64(extra)*stopPenaltyEach)
	}
	ratio := safeDiv(float64(m.StopTimeMs), float64(duration.Milliseconds()))
	if over := ratio - stopRatioBaseline; over > 0 {
		score -= math.Min(stopRatioCap, over*stopRatioPenalty)
	}
	return clamp(score, 0, 100)
}
