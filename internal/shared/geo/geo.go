package geo

import (
	"math"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
)

// HaversineKm returns the great-circle distance in kilometres between two
// points given in decimal degrees.
func HaversineKm(lat1, lng1, lat2, lng2 float64) float64 {
	return DistanceMeters(lat1, lng1, lat2, lng2) / 1000
}

// DistanceMeters returns the great-circle distance in metres.
func DistanceMeters(lat1, lng1, lat2, lng2 float64) float64 {
	return orbgeo.DistanceHaversine(orb.Point{lng1, lat1}, orb.Point{lng2, lat2})
}

// Bearing returns the initial bearing from the first point to the second,
// normalised to [0, 360).
func Bearing(lat1, lng1, lat2, lng2 float64) float64 {
	b := orbgeo.Bearing(orb.Point{lng1, lat1}, orb.Point{lng2, lat2})
	return NormalizeDegrees(b)
}

// BearingDelta is the absolute angular difference between two bearings, in [0, 180].
func BearingDelta(a, b float64) float64 {
	d := math.Abs(NormalizeDegrees(a) - NormalizeDegrees(b))
	if d > 180 {
		d = 360 - d
	}
	return d
}

func NormalizeDegrees(deg float64) float64 {
	d := math.Mod(deg, 360)
	if d < 0 {
		d += 360
	}
	return d
}

// SpeedKmh converts a distance travelled over a millisecond interval into km/h.
// Non-positive intervals yield 0.
func SpeedKmh(distanceM float64, dtMs int64) float64 {
	if dtMs <= 0 {
		return 0
	}
	return distanceM / (float64(dtMs) / 1000) * 3.6
}

func MpsToKmh(mps float64) float64 {
	return mps * 3.6
}

// ValidCoordinate reports whether lat/lng are finite and within WGS84 bounds.
func ValidCoordinate(lat, lng float64) bool {
	if math.IsNaN(lat) || math.IsNaN(lng) || math.IsInf(lat, 0) || math.IsInf(lng, 0) {
		return false
	}
	return lat >= -90 && lat <= 90 && lng >= -180 && lng <= 180
}
