package trip

import (
	"time"

	"backend-revly/internal/shared/gps"
)

// Record is a finalized trip, owned by storage once saved.
type Record struct {
	ID              string    `json:"id"`
	SessionID       string    `json:"session_id"`
	DeviceID        string    `json:"device_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration_seconds"`

	DistanceMeters  float64 `json:"distance_m"`
	MaxSpeedKmh     float64 `json:"max_speed_kmh"`
	AverageSpeedKmh float64 `json:"average_speed_kmh"`
	ElevationGain   float64 `json:"elevation_gain_m"`
	ElevationLoss   float64 `json:"elevation_loss_m"`
	StopCount       int     `json:"stop_count"`
	StopTimeMs      int64   `json:"stop_time_ms"`
	TotalTurns      int     `json:"total_turns"`
	SharpTurns      int     `json:"sharp_turns"`
	Smoothness      float64 `json:"smoothness"`
	DrivingScore    float64 `json:"driving_score"`

	Polyline            string             `json:"polyline"`
	RouteCoordinates    []gps.Coordinate   `json:"route_coordinates"`
	RouteSegments       []gps.TrackedPoint `json:"route_segments"`
	SegmentStartIndices []int              `json:"segment_start_indices"`

	CreatedAt time.Time `json:"created_at"`
}

// Event is the summary published when a record is stored.
type Event struct {
	Type            string    `json:"type"`
	ID              string    `json:"id"`
	DeviceID        string    `json:"device_id"`
	StartTime       time.Time `json:"start_time"`
	EndTime         time.Time `json:"end_time"`
	DurationSeconds int64     `json:"duration_seconds"`
	DistanceMeters  float64   `json:"distance_m"`
	DrivingScore    float64   `json:"driving_score"`
}

const EventCompleted = "trip.completed"
