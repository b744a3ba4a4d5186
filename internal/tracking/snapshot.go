package tracking

import (
	"time"

	"backend-revly/internal/filter"
	"backend-revly/internal/metrics"
	"backend-revly/internal/shared/gps"
)

// LiveSnapshot is the immutable render-tier view published to the UI.
type LiveSnapshot struct {
	DeviceID            string                `json:"device_id"`
	SessionID           string                `json:"session_id,omitempty"`
	Status              State                 `json:"status"`
	Location            *gps.Coordinate       `json:"location,omitempty"`
	CurrentSpeedKmh     float64               `json:"current_speed_kmh"`
	SmoothedSpeedKmh    float64               `json:"smoothed_speed_kmh"`
	DisplaySpeedKmh     float64               `json:"display_speed_kmh"`
	TotalDistanceMeters float64               `json:"total_distance_m"`
	ElapsedSeconds      int64                 `json:"elapsed_seconds"`
	ElapsedText         string                `json:"elapsed_text"`
	Metrics             metrics.TripMetrics   `json:"metrics"`
	Ratios              metrics.Ratios        `json:"ratios"`
	Segments            [][]gps.Coordinate    `json:"segments"`
	Accepted            int                   `json:"accepted"`
	Rejected            int                   `json:"rejected"`
	RejectedByReason    map[filter.Reason]int `json:"rejected_by_reason,omitempty"`
	RenderedAt          time.Time             `json:"rendered_at"`
}

// InactivityEvent is published once per idle stretch while tracking.
type InactivityEvent struct {
	DeviceID    string    `json:"device_id"`
	SessionID   string    `json:"session_id"`
	IdleSeconds int64     `json:"idle_seconds"`
	LastFixAt   time.Time `json:"last_fix_at"`
}

func (s *Session) render(device string, state State, now time.Time) LiveSnapshot {
	m := s.metrics.Metrics()
	elapsed := s.timer.Elapsed()

	snap := LiveSnapshot{
		DeviceID:            device,
		SessionID:           s.ID,
		Status:              state,
		CurrentSpeedKmh:     m.CurrentSpeedKmh,
		SmoothedSpeedKmh:    m.SmoothedSpeedKmh,
		DisplaySpeedKmh:     s.smoother.DisplaySpeed(),
		TotalDistanceMeters: m.TotalDistanceMeters,
		ElapsedSeconds:      int64(elapsed / time.Second),
		ElapsedText:         s.timer.ElapsedText(),
		Metrics:             m,
		Ratios:              metrics.Derive(m, elapsed),
		Accepted:            s.accepted,
		Rejected:            s.filter.Rejected(),
		RejectedByReason:    s.filter.RejectedByReason(),
		RenderedAt:          now.UTC(),
	}
	if last := s.segments.Last(); last != nil {
		c := last.Coordinate()
		snap.Location = &c
	}
	segments := s.segments.Segments()
	snap.Segments = make([][]gps.Coordinate, len(segments))
	for i, seg := range segments {
		snap.Segments[i] = gps.Coordinates(seg)
	}
	return snap
}
