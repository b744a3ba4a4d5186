package trip

import (
	"strings"
	"testing"

	"github.com/tkrajina/gpxgo/gpx"
)

func TestExportGPXSegments(t *testing.T) {
	out, err := ExportGPX(sampleRecord())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if !strings.Contains(string(out), "<gpx") {
		t.Fatalf("expected gpx document")
	}

	doc, err := gpx.ParseBytes(out)
	if err != nil {
		t.Fatalf("parse exported gpx: %v", err)
	}
	if len(doc.Tracks) != 1 || len(doc.Tracks[0].Segments) != 2 {
		t.Fatalf("expected one track with two segments")
	}
	first := doc.Tracks[0].Segments[0].Points
	if len(first) != 2 || len(doc.Tracks[0].Segments[1].Points) != 1 {
		t.Fatalf("unexpected point split")
	}
	if !first[0].Elevation.NotNull() || first[0].Elevation.Value() != 10 {
		t.Fatalf("expected elevation exported")
	}
	if doc.Tracks[0].Segments[1].Points[0].Elevation.NotNull() {
		t.Fatalf("expected missing elevation left empty")
	}
}

func TestExportGPXEmptyRecord(t *testing.T) {
	out, err := ExportGPX(Record{})
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	doc, err := gpx.ParseBytes(out)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(doc.Tracks) != 1 || len(doc.Tracks[0].Segments) != 0 {
		t.Fatalf("expected empty track")
	}
}
