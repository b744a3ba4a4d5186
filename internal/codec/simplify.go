package codec

import (
	"backend-revly/internal/shared/gps"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/simplify"
)

// metres per degree of latitude
const metersPerDegree = 111320.0

type SimplifyConfig struct {
	// MinPoints is the raw count above which simplification kicks in.
	MinPoints  int
	ToleranceM float64
}

func DefaultSimplifyConfig() SimplifyConfig {
	return SimplifyConfig{MinPoints: 500, ToleranceM: 5}
}

// Simplify reduces a coordinate list with Douglas-Peucker when it is longer
// than cfg.MinPoints; shorter lists are returned as a copy.
func Simplify(coords []gps.Coordinate, cfg SimplifyConfig) []gps.Coordinate {
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = DefaultSimplifyConfig().MinPoints
	}
	if cfg.ToleranceM <= 0 {
		cfg.ToleranceM = DefaultSimplifyConfig().ToleranceM
	}
	if len(coords) <= cfg.MinPoints || len(coords) < 3 {
		out := make([]gps.Coordinate, len(coords))
		copy(out, coords)
		return out
	}

	ls := make(orb.LineString, len(coords))
	for i, c := range coords {
		ls[i] = orb.Point{c.Longitude, c.Latitude}
	}
	reduced := simplify.DouglasPeucker(cfg.ToleranceM / metersPerDegree).LineString(ls)

	out := make([]gps.Coordinate, len(reduced))
	for i, p := range reduced {
		out[i] = gps.Coordinate{Latitude: p.Lat(), Longitude: p.Lon()}
	}
	return out
}

// SimplifySegments simplifies each segment independently so segment
// boundaries survive. Segments are simplified when the total point count
// exceeds cfg.MinPoints.
func SimplifySegments(segments [][]gps.TrackedPoint, cfg SimplifyConfig) []gps.Coordinate {
	if cfg.MinPoints <= 0 {
		cfg.MinPoints = DefaultSimplifyConfig().MinPoints
	}
	total := 0
	for _, seg := range segments {
		total += len(seg)
	}
	perSegment := cfg
	if total > cfg.MinPoints {
		perSegment.MinPoints = 2
	} else {
		perSegment.MinPoints = total + 1
	}

	var out []gps.Coordinate
	for _, seg := range segments {
		out = append(out, Simplify(gps.Coordinates(seg), perSegment)...)
	}
	return out
}
