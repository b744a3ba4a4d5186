package metrics

import (
	"math"
	"testing"
	"time"

	"backend-revly/internal/shared/geo"
	"backend-revly/internal/shared/gps"
)

func point(lat, lng float64, ts int64, speed float64, seg int) gps.TrackedPoint {
	return gps.TrackedPoint{
		Fix:          gps.Fix{Latitude: lat, Longitude: lng, Timestamp: ts},
		SegmentIndex: seg,
		SpeedKmh:     speed,
	}
}

func withAlt(p gps.TrackedPoint, alt float64) gps.TrackedPoint {
	p.Altitude = gps.Float(alt)
	return p
}

func feed(a *Aggregator, points []gps.TrackedPoint) {
	var prev *gps.TrackedPoint
	for i := range points {
		p := points[i]
		s := Sample{Point: p, RawSpeedKmh: p.SpeedKmh}
		if prev != nil && prev.SegmentIndex == p.SegmentIndex {
			s.Connected = true
			s.DistanceM = geo.DistanceMeters(prev.Latitude, prev.Longitude, p.Latitude, p.Longitude)
		}
		a.Add(s)
		prev = &points[i]
	}
}

func TestDistanceOnlySameSegmentPairs(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	points := []gps.TrackedPoint{
		point(0, 0, 0, 10, 0),
		point(0.001, 0, 5000, 10, 0),
		point(0.002, 0, 40000, 10, 1),
	}
	feed(a, points)

	want := geo.DistanceMeters(0, 0, 0.001, 0)
	if got := a.Metrics().TotalDistanceMeters; math.Abs(got-want) > 1e-9 {
		t.Fatalf("distance = %v, want %v", got, want)
	}
}

func TestMaxSpeedUsesSmoothedValues(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	// the 300 km/h fix was rejected upstream and never arrives here
	feed(a, []gps.TrackedPoint{
		point(0, 0, 0, 10, 0),
		point(0.0001, 0, 1000, 60, 0),
		point(0.0002, 0, 2000, 62, 0),
	})
	m := a.Metrics()
	if m.MaxSpeedKmh != 62 {
		t.Fatalf("max speed = %v, want 62", m.MaxSpeedKmh)
	}
	if m.SmoothedSpeedKmh != 62 || m.PointCount != 3 {
		t.Fatalf("unexpected metrics %+v", m)
	}
}

func TestStopDetection(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	var points []gps.TrackedPoint
	points = append(points, point(0, 0, 0, 30, 0))
	// slow for 90 seconds
	for i := int64(1); i <= 10; i++ {
		points = append(points, point(0, 0, i*10000, 1, 0))
	}
	points = append(points, point(0.0001, 0, 110000, 25, 0))
	feed(a, points)

	m := a.Close()
	if m.StopCount != 1 {
		t.Fatalf("stop count = %d, want 1", m.StopCount)
	}
	if m.StopTimeMs != 100000 {
		t.Fatalf("stop time = %d, want 100000", m.StopTimeMs)
	}
}

func TestShortSlowdownIsNotAStop(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	feed(a, []gps.TrackedPoint{
		point(0, 0, 0, 30, 0),
		point(0, 0, 10000, 1, 0),
		point(0, 0, 30000, 1, 0),
		point(0, 0, 40000, 30, 0),
	})
	m := a.Close()
	if m.StopCount != 0 || m.StopTimeMs != 0 {
		t.Fatalf("expected no stop, got %+v", m)
	}
}

func TestStopClosedAtSegmentBoundary(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	feed(a, []gps.TrackedPoint{
		point(0, 0, 0, 1, 0),
		point(0, 0, 70000, 1, 0),
		point(0, 0, 200000, 1, 1),
	})
	m := a.Close()
	if m.StopCount != 1 || m.StopTimeMs != 70000 {
		t.Fatalf("expected stop closed at boundary, got %+v", m)
	}
}

func TestElevation(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	feed(a, []gps.TrackedPoint{
		withAlt(point(0, 0, 0, 5, 0), 100),
		withAlt(point(0.0001, 0, 1000, 5, 0), 110),
		point(0.0002, 0, 2000, 5, 0),
		withAlt(point(0.0003, 0, 3000, 5, 0), 104),
		withAlt(point(0.0004, 0, 4000, 5, 0), 90),
		withAlt(point(0.0005, 0, 100000, 5, 1), 200),
	})
	m := a.Metrics()
	if m.ElevationGain != 10 {
		t.Fatalf("gain = %v, want 10", m.ElevationGain)
	}
	if m.ElevationLoss != 14 {
		t.Fatalf("loss = %v, want 14", m.ElevationLoss)
	}
	if m.MinAltitude != 90 || m.MaxAltitude != 200 || !m.HasAltitude {
		t.Fatalf("unexpected altitude range %+v", m)
	}
}

func TestDeriveGuardsZeroDenominators(t *testing.T) {
	r := Derive(TripMetrics{StopCount: 3, ElevationGain: 10}, 0)
	values := []float64{r.AverageSpeedKmh, r.PaceMinPerKm, r.IdleRatio, r.StopsPerKm, r.ClimbRateMPerHour, r.AverageGradePercent}
	for i, v := range values {
		if v != 0 {
			t.Fatalf("ratio %d = %v, want 0", i, v)
		}
	}
}

func TestDerive(t *testing.T) {
	m := TripMetrics{TotalDistanceMeters: 10000, StopTimeMs: 600000, StopCount: 2, ElevationGain: 150, ElevationLoss: 50}
	r := Derive(m, time.Hour)
	if math.Abs(r.AverageSpeedKmh-10) > 1e-9 {
		t.Fatalf("avg speed = %v", r.AverageSpeedKmh)
	}
	if math.Abs(r.PaceMinPerKm-6) > 1e-9 {
		t.Fatalf("pace = %v", r.PaceMinPerKm)
	}
	if math.Abs(r.IdleRatio-1.0/6) > 1e-9 {
		t.Fatalf("idle ratio = %v", r.IdleRatio)
	}
	if math.Abs(r.StopsPerKm-0.2) > 1e-9 || math.Abs(r.ClimbRateMPerHour-150) > 1e-9 {
		t.Fatalf("unexpected ratios %+v", r)
	}
	if math.Abs(r.AverageGradePercent-1) > 1e-9 {
		t.Fatalf("grade = %v", r.AverageGradePercent)
	}
}

func TestReset(t *testing.T) {
	a := NewAggregator(DefaultConfig())
	feed(a, []gps.TrackedPoint{point(0, 0, 0, 40, 0), point(0.0001, 0, 1000, 40, 0)})
	a.Reset()
	if m := a.Metrics(); m != (TripMetrics{}) {
		t.Fatalf("expected zero metrics, got %+v", m)
	}
}
