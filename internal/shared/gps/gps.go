// Package gps holds the location data model shared by the tracking pipeline.
package gps

import (
	"math"
	"time"
)

// Fix is one raw reading from the platform location service. Optional
// sensor fields are nil when the platform did not report them.
type Fix struct {
	Latitude  float64  `json:"latitude"`
	Longitude float64  `json:"longitude"`
	Timestamp int64    `json:"timestamp_ms"`
	Speed     *float64 `json:"speed_mps,omitempty"`
	Altitude  *float64 `json:"altitude_m,omitempty"`
	Accuracy  *float64 `json:"accuracy_m,omitempty"`
	Heading   *float64 `json:"heading_deg,omitempty"`
}

// TrackedPoint is a Fix that passed filtering, tagged with its segment.
type TrackedPoint struct {
	Fix
	SegmentIndex int     `json:"segment_index"`
	SpeedKmh     float64 `json:"speed_kmh"`
}

type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func Float(v float64) *float64 {
	return &v
}

// HasAltitude reports whether the fix carries a finite altitude.
func (f Fix) HasAltitude() bool {
	return f.Altitude != nil && !math.IsNaN(*f.Altitude) && !math.IsInf(*f.Altitude, 0)
}

// HasSpeed reports whether the fix carries a usable sensor speed.
func (f Fix) HasSpeed() bool {
	return f.Speed != nil && *f.Speed >= 0 && !math.IsNaN(*f.Speed) && !math.IsInf(*f.Speed, 0)
}

// Sanitized drops optional fields that are NaN or infinite.
func (f Fix) Sanitized() Fix {
	f.Speed = finiteOrNil(f.Speed)
	f.Altitude = finiteOrNil(f.Altitude)
	f.Accuracy = finiteOrNil(f.Accuracy)
	f.Heading = finiteOrNil(f.Heading)
	return f
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return nil
	}
	return v
}

func (f Fix) Time() time.Time {
	return time.UnixMilli(f.Timestamp).UTC()
}

func (f Fix) Coordinate() Coordinate {
	return Coordinate{Latitude: f.Latitude, Longitude: f.Longitude}
}

func Coordinates(points []TrackedPoint) []Coordinate {
	out := make([]Coordinate, len(points))
	for i, p := range points {
		out[i] = p.Coordinate()
	}
	return out
}
