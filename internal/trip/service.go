package trip

import (
	"context"
	"encoding/json"

	"backend-revly/internal/codec"
	"backend-revly/internal/db"
	"backend-revly/internal/shared/gps"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var (
	ErrRecordNotFound     = errors.New("trip record not found")
	ErrStorageUnavailable = errors.New("trip storage not configured")
)

const defaultListLimit = 50

type Service struct {
	db     db.Querier
	events EventPublisher
}

// NewService stores records in db. events may be nil.
func NewService(db db.Querier, events EventPublisher) *Service {
	return &Service{db: db, events: events}
}

const recordColumns = `id, session_id, device_id, start_time, end_time, duration_seconds,
		distance_m, max_speed_kmh, avg_speed_kmh, elevation_gain_m, elevation_loss_m,
		stop_count, stop_time_ms, total_turns, sharp_turns, smoothness, driving_score,
		polyline, route_coordinates, route_segments, segment_start_indices`

func (s *Service) SaveRecord(ctx context.Context, rec Record) (Record, error) {
	if s.db == nil {
		return Record{}, ErrStorageUnavailable
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	normalizeRoute(&rec)

	coords, err := json.Marshal(nonNilCoords(rec.RouteCoordinates))
	if err != nil {
		return Record{}, errors.Wrap(err, "encode route coordinates")
	}
	segments, err := json.Marshal(nonNilPoints(rec.RouteSegments))
	if err != nil {
		return Record{}, errors.Wrap(err, "encode route segments")
	}
	starts, err := json.Marshal(nonNilInts(rec.SegmentStartIndices))
	if err != nil {
		return Record{}, errors.Wrap(err, "encode segment starts")
	}

	row := s.db.QueryRow(ctx, `
		INSERT INTO trip_records (`+recordColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21)
		RETURNING created_at
	`, rec.ID, rec.SessionID, rec.DeviceID, rec.StartTime, rec.EndTime, rec.DurationSeconds,
		rec.DistanceMeters, rec.MaxSpeedKmh, rec.AverageSpeedKmh, rec.ElevationGain, rec.ElevationLoss,
		rec.StopCount, rec.StopTimeMs, rec.TotalTurns, rec.SharpTurns, rec.Smoothness, rec.DrivingScore,
		rec.Polyline, coords, segments, starts)
	if err := row.Scan(&rec.CreatedAt); err != nil {
		return Record{}, errors.Wrap(err, "insert trip record")
	}

	if s.events != nil {
		if err := s.events.PublishRecord(ctx, rec); err != nil {
			logrus.WithField("trip_id", rec.ID).WithError(err).Warn("trip event publish failed")
		}
	}
	return rec, nil
}

func (s *Service) GetRecord(ctx context.Context, id string) (Record, error) {
	if s.db == nil {
		return Record{}, ErrStorageUnavailable
	}
	row := s.db.QueryRow(ctx, `
		SELECT `+recordColumns+`, created_at
		FROM trip_records WHERE id=$1
	`, id)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return rec, nil
}

func (s *Service) ListRecords(ctx context.Context, deviceID string, limit int) ([]Record, error) {
	if s.db == nil {
		return nil, ErrStorageUnavailable
	}
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	rows, err := s.db.Query(ctx, `
		SELECT `+recordColumns+`, created_at
		FROM trip_records WHERE device_id=$1
		ORDER BY start_time DESC
		LIMIT $2
	`, deviceID, limit)
	if err != nil {
		return nil, errors.Wrap(err, "list trip records")
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var rec Record
	var coords, segments, starts []byte
	err := row.Scan(&rec.ID, &rec.SessionID, &rec.DeviceID, &rec.StartTime, &rec.EndTime, &rec.DurationSeconds,
		&rec.DistanceMeters, &rec.MaxSpeedKmh, &rec.AverageSpeedKmh, &rec.ElevationGain, &rec.ElevationLoss,
		&rec.StopCount, &rec.StopTimeMs, &rec.TotalTurns, &rec.SharpTurns, &rec.Smoothness, &rec.DrivingScore,
		&rec.Polyline, &coords, &segments, &starts, &rec.CreatedAt)
	if err != nil {
		return Record{}, err
	}
	if err := unmarshalColumn(coords, &rec.RouteCoordinates); err != nil {
		return Record{}, errors.Wrap(err, "decode route coordinates")
	}
	if err := unmarshalColumn(segments, &rec.RouteSegments); err != nil {
		return Record{}, errors.Wrap(err, "decode route segments")
	}
	if err := unmarshalColumn(starts, &rec.SegmentStartIndices); err != nil {
		return Record{}, errors.Wrap(err, "decode segment starts")
	}

	// the polyline is authoritative for the route when it decodes
	rec.RouteCoordinates = codec.DecodeOr(rec.Polyline, rec.RouteCoordinates)
	return rec, nil
}

func unmarshalColumn(raw []byte, v any) error {
	if len(raw) == 0 {
		return nil
	}
	return json.Unmarshal(raw, v)
}

// normalizeRoute makes sure the stored polyline decodes. A corrupt polyline
// is rebuilt from the route coordinates, or the raw points when those are
// missing too.
func normalizeRoute(rec *Record) {
	if len(rec.RouteCoordinates) == 0 {
		rec.RouteCoordinates = gps.Coordinates(rec.RouteSegments)
	}
	if rec.Polyline != "" {
		_, err := codec.Decode(rec.Polyline)
		if err == nil {
			return
		}
		logrus.WithField("trip_id", rec.ID).WithError(err).Warn("stored polyline is corrupt, re-encoding from route")
	}
	rec.Polyline = codec.Encode(rec.RouteCoordinates)
}

func nonNilCoords(v []gps.Coordinate) []gps.Coordinate {
	if v == nil {
		return []gps.Coordinate{}
	}
	return v
}

func nonNilPoints(v []gps.TrackedPoint) []gps.TrackedPoint {
	if v == nil {
		return []gps.TrackedPoint{}
	}
	return v
}

func nonNilInts(v []int) []int {
	if v == nil {
		return []int{}
	}
	return v
}
