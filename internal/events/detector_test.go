package events

import (
	"context"
	"log/slog"
	"math"
	"os"
	"reflect"
	"testing"
	"time"

	"github.com/orbview/orbview/internal/propagation"
)

// ISS TLE with mean anomaly and argument of perigee zero at epoch
// (2024-04-09T12:00:00Z): the satellite sits at its ascending node, i.e. an
// equator crossing, at exactly the epoch instant.
const (
	issLine1 = "1 25544U 98067A   24100.50000000  .00016717  00000-0  10270-3 0  9005"
	issLine2 = "2 25544  51.6400 100.0000 0001000   0.0000   0.0000 15.50000000    09"
)

// Near-polar orbit, period ~98.8 minutes (14.57 rev/day).
const (
	polarLine1 = "1 39084U 13008A   24100.50000000  .00000100  00000-0  10000-4 0  9991"
	polarLine2 = "2 39084  98.2000 150.0000 0001200  90.0000 270.0000 14.57000000    03"
)

var issEpoch = time.Date(2024, 4, 9, 12, 0, 0, 0, time.UTC)

func testLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func adapter(t *testing.T, id, l1, l2 string) *propagation.Adapter {
	t.Helper()
	ad, err := propagation.NewAdapter(id, l1, l2)
	if err != nil {
		t.Fatalf("adapter init: %v", err)
	}
	return ad
}

// TestCrossingAtEpoch: with the ISS sitting on its ascending node at epoch,
// the detector must find an ascending equator crossing within seconds of
// now, glowing at nearly full intensity.
func TestCrossingAtEpoch(t *testing.T) {
	d := NewDetector(testLogger())
	ad := adapter(t, "25544", issLine1, issLine2)

	evs, err := d.LatitudeCrossings(ad, issEpoch, Config{FadeInMinutes: 10, FadeOutMinutes: 10, Step: 20 * time.Second})
	if err != nil {
		t.Fatalf("LatitudeCrossings: %v", err)
	}
	if len(evs) == 0 {
		t.Fatal("no crossings found at the ascending node epoch")
	}

	var nearest *Event
	for i := range evs {
		if nearest == nil || math.Abs(evs[i].TimeDeltaMinutes) < math.Abs(nearest.TimeDeltaMinutes) {
			nearest = &evs[i]
		}
	}

	if math.Abs(nearest.TimeDeltaMinutes) > 1.0 {
		t.Errorf("nearest crossing %v minutes from epoch, want within 1", nearest.TimeDeltaMinutes)
	}
	if nearest.Intensity < 0.95 {
		t.Errorf("intensity at crossing = %v, want ~1", nearest.Intensity)
	}
	if nearest.Kind != KindCrossingAscending {
		t.Errorf("kind = %v, want ascending", nearest.Kind)
	}
	if nearest.Point.Lat() != 0 {
		t.Errorf("crossing latitude = %v, want target 0", nearest.Point.Lat())
	}
}

// TestCrossingsPerOrbit: a full-period window on a near-polar orbit contains
// exactly two equator crossings, one ascending and one descending.
func TestCrossingsPerOrbit(t *testing.T) {
	d := NewDetector(testLogger())
	ad := adapter(t, "39084", polarLine1, polarLine2)
	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	// Period/2 on each side covers one revolution.
	evs, err := d.LatitudeCrossings(ad, now, Config{FadeInMinutes: 49.4, FadeOutMinutes: 49.4, Step: 20 * time.Second})
	if err != nil {
		t.Fatalf("LatitudeCrossings: %v", err)
	}

	if len(evs) != 2 {
		t.Fatalf("got %d crossings over one orbital period, want 2", len(evs))
	}

	kinds := map[Kind]int{}
	for _, ev := range evs {
		kinds[ev.Kind]++
		if ev.Intensity <= 0 || ev.Intensity > 1 {
			t.Errorf("intensity %v outside (0, 1]", ev.Intensity)
		}
	}
	if kinds[KindCrossingAscending] != 1 || kinds[KindCrossingDescending] != 1 {
		t.Errorf("kinds = %v, want one ascending and one descending", kinds)
	}
}

// TestCrossingWindowExclusion: every emitted event's delta lies inside the
// fade window; events beyond it are absent, not zero-intensity.
func TestCrossingWindowExclusion(t *testing.T) {
	d := NewDetector(testLogger())
	ad := adapter(t, "39084", polarLine1, polarLine2)
	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)

	cfg := Config{FadeInMinutes: 8, FadeOutMinutes: 6, Step: 20 * time.Second}
	evs, err := d.LatitudeCrossings(ad, now, cfg)
	if err != nil {
		t.Fatalf("LatitudeCrossings: %v", err)
	}

	for _, ev := range evs {
		if ev.TimeDeltaMinutes > cfg.FadeInMinutes || -ev.TimeDeltaMinutes > cfg.FadeOutMinutes {
			t.Errorf("event at delta %v minutes escaped the [-%v, +%v] window",
				ev.TimeDeltaMinutes, cfg.FadeOutMinutes, cfg.FadeInMinutes)
		}
		if ev.Intensity <= 0 {
			t.Errorf("zero-intensity event emitted: %+v", ev)
		}
	}
}

// TestApexCap: a window spanning several revolutions holds many turning
// points, but at most the nearest past and nearest future apex come back.
func TestApexCap(t *testing.T) {
	d := NewDetector(testLogger())
	ad := adapter(t, "25544", issLine1, issLine2)

	evs, err := d.LatitudeApexes(ad, issEpoch, Config{FadeInMinutes: 300, FadeOutMinutes: 300, Step: 20 * time.Second})
	if err != nil {
		t.Fatalf("LatitudeApexes: %v", err)
	}

	if len(evs) > 2 {
		t.Fatalf("apex cap violated: %d events", len(evs))
	}
	if len(evs) != 2 {
		t.Fatalf("expected one past and one future apex in a multi-orbit window, got %d", len(evs))
	}

	var past, future int
	for _, ev := range evs {
		if ev.IsHistory {
			past++
		}
		if ev.IsFuture {
			future++
		}
		if ev.Kind != KindApexNorth && ev.Kind != KindApexSouth {
			t.Errorf("unexpected apex kind %v", ev.Kind)
		}
	}
	if past != 1 || future != 1 {
		t.Errorf("past=%d future=%d, want 1 and 1", past, future)
	}
}

// TestApexLatitudeNearInclination: an ISS north apex should sit near the
// orbit's inclination (51.64 degrees).
func TestApexLatitudeNearInclination(t *testing.T) {
	d := NewDetector(testLogger())
	ad := adapter(t, "25544", issLine1, issLine2)

	evs, err := d.LatitudeApexes(ad, issEpoch, Config{FadeInMinutes: 60, FadeOutMinutes: 60, Step: 20 * time.Second})
	if err != nil {
		t.Fatalf("LatitudeApexes: %v", err)
	}

	found := false
	for _, ev := range evs {
		if ev.Kind == KindApexNorth {
			found = true
			if math.Abs(ev.Point.Lat()-51.64) > 1.5 {
				t.Errorf("north apex latitude %v, want ~51.64", ev.Point.Lat())
			}
		}
	}
	if !found {
		t.Error("no north apex in a ±60 minute window")
	}
}

// TestTimeMarker covers the degenerate single-event path.
func TestTimeMarker(t *testing.T) {
	d := NewDetector(testLogger())
	ad := adapter(t, "25544", issLine1, issLine2)
	cfg := Config{FadeInMinutes: 10, FadeOutMinutes: 10, Step: 20 * time.Second}

	// Inside the window: one event with the shared fade applied.
	eventTime := issEpoch.Add(5 * time.Minute)
	evs, err := d.TimeMarker(ad, issEpoch, eventTime, cfg, "maneuver")
	if err != nil {
		t.Fatalf("TimeMarker: %v", err)
	}
	if len(evs) != 1 {
		t.Fatalf("got %d marker events, want 1", len(evs))
	}

	want, _ := Intensity(5*time.Minute, cfg.fadeIn(), cfg.fadeOut())
	if math.Abs(evs[0].Intensity-want) > 1e-12 {
		t.Errorf("marker intensity %v, want %v", evs[0].Intensity, want)
	}
	if evs[0].Label != "maneuver" || evs[0].Kind != KindMarker || !evs[0].IsFuture {
		t.Errorf("marker fields wrong: %+v", evs[0])
	}

	// Outside the window: filtered entirely.
	evs, err = d.TimeMarker(ad, issEpoch, issEpoch.Add(11*time.Minute), cfg, "late")
	if err != nil {
		t.Fatalf("TimeMarker: %v", err)
	}
	if len(evs) != 0 {
		t.Errorf("out-of-window marker emitted: %+v", evs)
	}
}

// TestDetectDeterminism: identical inputs produce identical event lists.
func TestDetectDeterminism(t *testing.T) {
	d := NewDetector(testLogger())
	ad := adapter(t, "39084", polarLine1, polarLine2)
	now := time.Date(2024, 4, 10, 0, 0, 0, 0, time.UTC)
	cfg := Config{FadeInMinutes: 30, FadeOutMinutes: 30, Step: 20 * time.Second}

	a, err := d.Detect(ad, now, cfg)
	if err != nil {
		t.Fatal(err)
	}
	b, err := d.Detect(ad, now, cfg)
	if err != nil {
		t.Fatal(err)
	}

	if !reflect.DeepEqual(a, b) {
		t.Errorf("identical calls diverged:\n%+v\nvs\n%+v", a, b)
	}
}

// TestDetectSharedSeriesMatchesSeparate: running both walks over the shared
// series gives the same events as the standalone entry points.
func TestDetectSharedSeriesMatchesSeparate(t *testing.T) {
	d := NewDetector(testLogger())
	ad := adapter(t, "25544", issLine1, issLine2)
	cfg := Config{FadeInMinutes: 20, FadeOutMinutes: 20, Step: 20 * time.Second}

	combined, err := d.Detect(ad, issEpoch, cfg)
	if err != nil {
		t.Fatal(err)
	}
	crossings, err := d.LatitudeCrossings(ad, issEpoch, cfg)
	if err != nil {
		t.Fatal(err)
	}
	apexes, err := d.LatitudeApexes(ad, issEpoch, cfg)
	if err != nil {
		t.Fatal(err)
	}

	want := append(append([]Event{}, crossings...), apexes...)
	if !reflect.DeepEqual(combined, want) {
		t.Errorf("shared-series output differs from separate calls")
	}
}

// TestBatchDetect: order preserved, bad TLEs carry errors instead of
// poisoning the batch.
func TestBatchDetect(t *testing.T) {
	d := NewDetector(testLogger())
	entries := []propagation.Entry{
		{ID: "25544", Line1: issLine1, Line2: issLine2},
		{ID: "broken", Line1: "x", Line2: "y"},
		{ID: "39084", Line1: polarLine1, Line2: polarLine2},
	}
	cfg := Config{FadeInMinutes: 15, FadeOutMinutes: 15, Step: 20 * time.Second}

	results := d.BatchDetect(context.Background(), entries, issEpoch, cfg)
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3", len(results))
	}
	if results[0].ID != "25544" || results[1].ID != "broken" || results[2].ID != "39084" {
		t.Errorf("result order not preserved: %v %v %v", results[0].ID, results[1].ID, results[2].ID)
	}
	if results[1].Error == "" {
		t.Error("broken TLE produced no error")
	}
	if results[0].Error != "" {
		t.Errorf("ISS errored: %v", results[0].Error)
	}
}

// TestConfigValidation rejects negative fades and fills the step default.
func TestConfigValidation(t *testing.T) {
	bad := Config{FadeInMinutes: -1}
	if err := bad.Validate(); err == nil {
		t.Error("negative fade accepted")
	}

	ok := Config{FadeInMinutes: 5, FadeOutMinutes: 5}
	if err := ok.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}
	if ok.Step != 20*time.Second {
		t.Errorf("step default = %v, want 20s", ok.Step)
	}
}
