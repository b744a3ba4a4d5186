// Package codec compresses routes for storage: polyline encoding and
// shape-preserving simplification.
package codec

import (
	"backend-revly/internal/shared/gps"

	"github.com/pkg/errors"
	"github.com/twpayne/go-polyline"
)

var ErrMalformedPolyline = errors.New("malformed polyline")

// Encode delta-codes coordinates at five decimal places into a polyline
// string. Fewer than two coordinates encode to "".
func Encode(coords []gps.Coordinate) string {
	if len(coords) < 2 {
		return ""
	}
	pairs := make([][]float64, len(coords))
	for i, c := range coords {
		pairs[i] = []float64{c.Latitude, c.Longitude}
	}
	return string(polyline.EncodeCoords(pairs))
}

// Decode is the inverse of Encode.
func Decode(s string) ([]gps.Coordinate, error) {
	if s == "" {
		return nil, nil
	}
	pairs, rest, err := polyline.DecodeCoords([]byte(s))
	if err != nil {
		return nil, errors.Wrap(ErrMalformedPolyline, err.Error())
	}
	if len(rest) > 0 {
		return nil, errors.Wrapf(ErrMalformedPolyline, "%d trailing bytes", len(rest))
	}
	coords := make([]gps.Coordinate, len(pairs))
	for i, p := range pairs {
		coords[i] = gps.Coordinate{Latitude: p[0], Longitude: p[1]}
	}
	return coords, nil
}

// DecodeOr decodes s, falling back to the given coordinates when s is empty
// or corrupt.
func DecodeOr(s string, fallback []gps.Coordinate) []gps.Coordinate {
	coords, err := Decode(s)
	if err != nil || len(coords) == 0 {
		return fallback
	}
	return coords
}
