package geo

import (
	"math"
	"testing"
)

func near(a, b, eps float64) bool { return math.Abs(a-b) <= eps }

func TestLambert93Origin(t *testing.T) {
	l := NewLambert93(0, 0)
	got := l.ToGeo(l93X0, l93Y0)
	if !near(got.Lat, l93Lat0, 1e-9) || !near(got.Lon, l93Lon0, 1e-9) {
		t.Fatalf("origin maps to %+v, want (46.5, 3)", got)
	}
}

func TestLambert93RoundTrip(t *testing.T) {
	l := NewLambert93(-650000, -6860000)
	places := []LatLon{
		{48.8530, 2.3499}, // Paris
		{45.7640, 4.8357}, // Lyon
		{43.2965, 5.3698}, // Marseille
		{50.6292, 3.0573}, // Lille
		{43.6047, 1.4442}, // Toulouse
	}
	for _, p := range places {
		x, y := l.FromGeo(p)
		got := l.ToGeo(x, y)
		if !near(got.Lat, p.Lat, 1e-8) || !near(got.Lon, p.Lon, 1e-8) {
			t.Errorf("round trip %+v -> (%f, %f) -> %+v", p, x, y, got)
		}
	}
}

func TestLambert93Paris(t *testing.T) {
	// Paris city centre, RGF93 / Lambert-93.
	got := NewLambert93(0, 0).ToGeo(652469, 6862035)
	if !near(got.Lat, 48.8566, 0.001) || !near(got.Lon, 2.3522, 0.001) {
		t.Fatalf("Paris maps to %+v", got)
	}
}

func TestPlanarRemovesOffset(t *testing.T) {
	got := Planar{OffsetX: 10, OffsetY: -5}.ToGeo(12.5, 0)
	if got != (LatLon{Lat: 2.5, Lon: 5}) {
		t.Fatalf("got %+v", got)
	}
}

func TestNew(t *testing.T) {
	if _, err := New("lambert93", 0, 0); err != nil {
		t.Fatal(err)
	}
	if c, err := New("offset", 1, 1); err != nil {
		t.Fatal(err)
	} else if _, ok := c.(Planar); !ok {
		t.Fatalf("offset projection built %T", c)
	}
	if _, err := New("mercator", 0, 0); err == nil {
		t.Fatal("expected error for unknown projection")
	}
}
