package trip

import (
	"backend-revly/internal/segment"

	"github.com/pkg/errors"
	"github.com/tkrajina/gpxgo/gpx"
)

// ExportGPX renders a record as GPX 1.1 with one track segment per
// recorded segment.
func ExportGPX(rec Record) ([]byte, error) {
	track := gpx.GPXTrack{Name: rec.StartTime.Format("2006-01-02 15:04")}

	for _, seg := range segment.Split(rec.RouteSegments, rec.SegmentStartIndices) {
		var ts gpx.GPXTrackSegment
		for _, p := range seg {
			pt := gpx.GPXPoint{
				Point: gpx.Point{
					Latitude:  p.Latitude,
					Longitude: p.Longitude,
				},
				Timestamp: p.Time(),
			}
			if p.HasAltitude() {
				pt.Elevation.SetValue(*p.Altitude)
			}
			ts.Points = append(ts.Points, pt)
		}
		track.Segments = append(track.Segments, ts)
	}

	doc := gpx.GPX{
		Version: "1.1",
		Creator: "revly",
		Tracks:  []gpx.GPXTrack{track},
	}
	out, err := doc.ToXml(gpx.ToXmlParams{Version: "1.1", Indent: true})
	if err != nil {
		return nil, errors.Wrap(err, "render gpx")
	}
	return out, nil
}
