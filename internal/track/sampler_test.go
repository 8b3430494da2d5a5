package track

import (
	"log/slog"
	"math"
	"os"
	"testing"
	"time"

	"github.com/orbview/orbview/internal/geo"
	"github.com/orbview/orbview/internal/propagation"
)

const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func issAdapter(t *testing.T) *propagation.Adapter {
	t.Helper()
	ad, err := propagation.NewAdapter("25544", issLine1, issLine2)
	if err != nil {
		t.Fatalf("adapter init: %v", err)
	}
	return ad
}

// TestSampleWindow is the reference scenario: 10-minute tail and head at 20s
// steps give ~31 points per branch, and every returned segment honors the
// antimeridian invariant.
func TestSampleWindow(t *testing.T) {
	s := NewSampler(testLogger())
	ref := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

	res, err := s.Sample(issAdapter(t), ref, Config{TailMinutes: 10, HeadMinutes: 10, Step: 20 * time.Second})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}

	// 10 min / 20 s = 30 intervals, 31 samples inclusive; allow boundary
	// rounding slack of one.
	if n := len(res.TailPoints); n < 30 || n > 32 {
		t.Errorf("tail points = %d, want ~31", n)
	}
	if n := len(res.HeadPoints); n < 30 || n > 32 {
		t.Errorf("head points = %d, want ~31", n)
	}

	for _, branch := range [][]geo.PathSegment{res.TailSegments, res.HeadSegments} {
		for _, seg := range branch {
			for i := 1; i < len(seg); i++ {
				if d := math.Abs(seg[i].Lon() - seg[i-1].Lon()); d > 180 {
					t.Errorf("segment pair %v -> %v violates antimeridian invariant", seg[i-1], seg[i])
				}
			}
		}
	}

	if res.Current == nil {
		t.Fatal("current position missing")
	}
}

// TestSampleProgress checks the fade fractions: tail runs 0 at the window
// start to 1 at the reference time, head runs 0 at the reference time to 1
// at the window end, monotonically.
func TestSampleProgress(t *testing.T) {
	s := NewSampler(testLogger())
	ref := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

	res, err := s.Sample(issAdapter(t), ref, Config{TailMinutes: 5, HeadMinutes: 5, Step: 20 * time.Second})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}

	if len(res.TailPoints) == 0 || len(res.HeadPoints) == 0 {
		t.Fatal("empty branches")
	}

	if p := res.TailPoints[0].Progress; math.Abs(p) > 1e-9 {
		t.Errorf("first tail progress = %v, want 0", p)
	}
	if p := res.TailPoints[len(res.TailPoints)-1].Progress; math.Abs(p-1) > 1e-9 {
		t.Errorf("last tail progress = %v, want 1", p)
	}
	if p := res.HeadPoints[0].Progress; math.Abs(p) > 1e-9 {
		t.Errorf("first head progress = %v, want 0", p)
	}
	if p := res.HeadPoints[len(res.HeadPoints)-1].Progress; math.Abs(p-1) > 1e-9 {
		t.Errorf("last head progress = %v, want 1", p)
	}

	for i := 1; i < len(res.TailPoints); i++ {
		if res.TailPoints[i].Progress <= res.TailPoints[i-1].Progress {
			t.Fatalf("tail progress not increasing at %d", i)
		}
	}
	for i := 1; i < len(res.HeadPoints); i++ {
		if res.HeadPoints[i].Progress <= res.HeadPoints[i-1].Progress {
			t.Fatalf("head progress not increasing at %d", i)
		}
	}
}

// TestSampleZeroWindows: zero-length branches still yield the single
// reference-time sample per branch and a current position.
func TestSampleZeroWindows(t *testing.T) {
	s := NewSampler(testLogger())
	ref := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)

	res, err := s.Sample(issAdapter(t), ref, Config{TailMinutes: 0, HeadMinutes: 0, Step: 20 * time.Second})
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(res.TailPoints) != 1 || len(res.HeadPoints) != 1 {
		t.Errorf("zero windows: tail=%d head=%d, want 1 each", len(res.TailPoints), len(res.HeadPoints))
	}
	if res.Current == nil {
		t.Error("current position missing")
	}
}

// TestSampleConfigValidation rejects out-of-range windows and fills the
// default step.
func TestSampleConfigValidation(t *testing.T) {
	s := NewSampler(testLogger())
	ref := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	ad := issAdapter(t)

	if _, err := s.Sample(ad, ref, Config{TailMinutes: -1}); err == nil {
		t.Error("negative tail accepted")
	}
	if _, err := s.Sample(ad, ref, Config{TailMinutes: MaxWindowMinutes + 1}); err == nil {
		t.Error("oversized tail accepted")
	}

	cfg := Config{TailMinutes: 1, HeadMinutes: 1}
	res, err := s.Sample(ad, ref, cfg)
	if err != nil {
		t.Fatalf("Sample with defaulted step: %v", err)
	}
	// 1 min / 20 s default = 3 intervals, 4 samples.
	if n := len(res.TailPoints); n < 3 || n > 5 {
		t.Errorf("defaulted step produced %d tail points, want ~4", n)
	}
}

// TestSampleDeterminism compares two identical calls field by field.
func TestSampleDeterminism(t *testing.T) {
	s := NewSampler(testLogger())
	ref := time.Date(2024, 4, 10, 12, 0, 0, 0, time.UTC)
	ad := issAdapter(t)
	cfg := Config{TailMinutes: 3, HeadMinutes: 3, Step: 20 * time.Second}

	a, err := s.Sample(ad, ref, cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := s.Sample(ad, ref, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if len(a.TailPoints) != len(b.TailPoints) || len(a.HeadPoints) != len(b.HeadPoints) {
		t.Fatal("point counts differ between identical calls")
	}
	for i := range a.TailPoints {
		if a.TailPoints[i] != b.TailPoints[i] {
			t.Fatalf("tail point %d differs: %+v vs %+v", i, a.TailPoints[i], b.TailPoints[i])
		}
	}
	if *a.Current != *b.Current {
		t.Errorf("current positions differ: %+v vs %+v", *a.Current, *b.Current)
	}
}
