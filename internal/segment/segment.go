// Package segment partitions the accepted point stream into ordered segments.
//
// Points are stored flat with a parallel list of segment start indices so
// storage and transmission never nest arrays.
package segment

import (
	"sort"
	"time"

	"backend-revly/internal/shared/geo"
	"backend-revly/internal/shared/gps"
)

type Config struct {
	GapTime      time.Duration
	GapDistanceM float64
}

func DefaultConfig() Config {
	return Config{
		GapTime:      30 * time.Second,
		GapDistanceM: 300,
	}
}

// Placement describes where the next accepted fix goes.
type Placement struct {
	SegmentIndex int
	// NewSegment is set when the fix opens a segment.
	NewSegment bool
	// Gap is set when a time or distance discontinuity caused the new segment.
	Gap bool
	// Boundary is set when the placement was evaluated at a replay boundary.
	Boundary bool
	// Connected is set when the fix continues the previous point's segment;
	// only connected pairs count toward travelled distance.
	Connected bool
	DistanceM float64
	DtMs      int64
	Previous  *gps.TrackedPoint
}

type Manager struct {
	cfg          Config
	points       []gps.TrackedPoint
	starts       []int
	breakPending bool
	boundary     bool
}

func NewManager(cfg Config) *Manager {
	def := DefaultConfig()
	if cfg.GapTime <= 0 {
		cfg.GapTime = def.GapTime
	}
	if cfg.GapDistanceM <= 0 {
		cfg.GapDistanceM = def.GapDistanceM
	}
	return &Manager{cfg: cfg}
}

// Last returns the most recent point, or nil when empty.
func (m *Manager) Last() *gps.TrackedPoint {
	if len(m.points) == 0 {
		return nil
	}
	p := m.points[len(m.points)-1]
	return &p
}

func (m *Manager) CurrentIndex() int {
	if len(m.points) == 0 {
		return 0
	}
	return m.points[len(m.points)-1].SegmentIndex
}

// Place decides the segment for fix without mutating state.
func (m *Manager) Place(fix gps.Fix) Placement {
	last := m.Last()
	if last == nil {
		return Placement{SegmentIndex: 0, NewSegment: true, Boundary: m.boundary}
	}

	distance := geo.DistanceMeters(last.Latitude, last.Longitude, fix.Latitude, fix.Longitude)
	dt := fix.Timestamp - last.Timestamp
	p := Placement{
		DistanceM: distance,
		DtMs:      dt,
		Previous:  last,
		Boundary:  m.boundary,
	}

	gap := dt > m.cfg.GapTime.Milliseconds() || distance > m.cfg.GapDistanceM
	switch {
	case gap:
		p.Gap = true
		p.NewSegment = true
		p.SegmentIndex = last.SegmentIndex + 1
	case m.breakPending:
		p.NewSegment = true
		p.SegmentIndex = last.SegmentIndex + 1
	default:
		p.Connected = true
		p.SegmentIndex = last.SegmentIndex
	}
	return p
}

// Commit appends a point whose SegmentIndex was decided by Place.
func (m *Manager) Commit(pt gps.TrackedPoint) {
	if len(m.points) == 0 || pt.SegmentIndex != m.points[len(m.points)-1].SegmentIndex {
		m.starts = append(m.starts, len(m.points))
	}
	m.points = append(m.points, pt)
	m.breakPending = false
	m.boundary = false
}

// Pause closes the current segment. No point is needed; the next committed
// point opens a new one.
func (m *Manager) Pause() {
	m.breakPending = true
}

// Resume guarantees the next point opens a new segment.
func (m *Manager) Resume() {
	m.breakPending = true
}

// MarkBoundary flags the next placement as evaluated at a foreground/background
// replay boundary. The gap test always runs there.
func (m *Manager) MarkBoundary() {
	m.boundary = true
}

func (m *Manager) Points() []gps.TrackedPoint {
	out := make([]gps.TrackedPoint, len(m.points))
	copy(out, m.points)
	return out
}

func (m *Manager) StartIndices() []int {
	out := make([]int, len(m.starts))
	copy(out, m.starts)
	return out
}

func (m *Manager) Len() int {
	return len(m.points)
}

// Segments returns the points grouped by segment.
func (m *Manager) Segments() [][]gps.TrackedPoint {
	return Split(m.points, m.starts)
}

// SegmentIndexForFlatIndex maps a flat point index back to its segment.
// It returns -1 when i is out of range.
func (m *Manager) SegmentIndexForFlatIndex(i int) int {
	if i < 0 || i >= len(m.points) {
		return -1
	}
	return SegmentForIndex(m.starts, i)
}

// Restore replaces state with persisted points. The start indices are
// recomputed from the points; the persisted ones are only compared.
// It reports whether the persisted indices agreed.
func (m *Manager) Restore(points []gps.TrackedPoint, persistedStarts []int) bool {
	rebuilt, starts := Rebuild(points)
	m.points = rebuilt
	m.starts = starts
	m.breakPending = false
	m.boundary = false
	return equalInts(starts, persistedStarts)
}

func (m *Manager) Reset() {
	m.points = nil
	m.starts = nil
	m.breakPending = false
	m.boundary = false
}

// SegmentForIndex binary-searches starts for the segment containing flat index i.
func SegmentForIndex(starts []int, i int) int {
	if len(starts) == 0 || i < 0 {
		return -1
	}
	// first start strictly greater than i, minus one
	return sort.Search(len(starts), func(k int) bool { return starts[k] > i }) - 1
}

// Split groups flat points by start indices.
func Split(points []gps.TrackedPoint, starts []int) [][]gps.TrackedPoint {
	segments := make([][]gps.TrackedPoint, 0, len(starts))
	for k, start := range starts {
		end := len(points)
		if k+1 < len(starts) {
			end = starts[k+1]
		}
		if start >= end || start < 0 || end > len(points) {
			continue
		}
		seg := make([]gps.TrackedPoint, end-start)
		copy(seg, points[start:end])
		segments = append(segments, seg)
	}
	return segments
}

// Rebuild renumbers segment indices to 0..n-1 in order of appearance and
// derives the start indices. A timestamp going backwards inside a segment
// starts a new segment so segments stay non-decreasing in time.
func Rebuild(points []gps.TrackedPoint) ([]gps.TrackedPoint, []int) {
	out := make([]gps.TrackedPoint, len(points))
	copy(out, points)
	var starts []int
	current := -1
	for i := range out {
		newSegment := i == 0 ||
			points[i].SegmentIndex != points[i-1].SegmentIndex ||
			points[i].Timestamp < points[i-1].Timestamp
		if newSegment {
			current++
			starts = append(starts, i)
		}
		out[i].SegmentIndex = current
	}
	return out, starts
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
