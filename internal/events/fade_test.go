package events

import (
	"math"
	"testing"
	"time"
)

// TestIntensityBoundaries pins the cosine ease at its anchor points: 1 at
// the event instant, ~0 at each window edge, excluded beyond.
func TestIntensityBoundaries(t *testing.T) {
	fadeIn := 10 * time.Minute
	fadeOut := 5 * time.Minute

	if got, ok := Intensity(0, fadeIn, fadeOut); !ok || got != 1.0 {
		t.Errorf("Intensity(0) = (%v, %v), want (1, true)", got, ok)
	}

	if got, ok := Intensity(fadeIn, fadeIn, fadeOut); !ok || math.Abs(got) > 1e-9 {
		t.Errorf("Intensity(+fadeIn) = (%v, %v), want (~0, true)", got, ok)
	}
	if got, ok := Intensity(-fadeOut, fadeIn, fadeOut); !ok || math.Abs(got) > 1e-9 {
		t.Errorf("Intensity(-fadeOut) = (%v, %v), want (~0, true)", got, ok)
	}

	if _, ok := Intensity(fadeIn+time.Second, fadeIn, fadeOut); ok {
		t.Error("future event beyond fade-in window not excluded")
	}
	if _, ok := Intensity(-fadeOut-time.Second, fadeIn, fadeOut); ok {
		t.Error("past event beyond fade-out window not excluded")
	}
}

// TestIntensityMonotone checks strict decrease away from the event on both
// sides, stepping through each window.
func TestIntensityMonotone(t *testing.T) {
	fadeIn := 8 * time.Minute
	fadeOut := 12 * time.Minute

	prev := 1.0
	for d := 30 * time.Second; d <= fadeIn; d += 30 * time.Second {
		got, ok := Intensity(d, fadeIn, fadeOut)
		if !ok {
			t.Fatalf("Intensity(+%v) excluded inside window", d)
		}
		if got >= prev {
			t.Fatalf("intensity not decreasing at +%v: %v >= %v", d, got, prev)
		}
		prev = got
	}

	prev = 1.0
	for d := 30 * time.Second; d <= fadeOut; d += 30 * time.Second {
		got, ok := Intensity(-d, fadeIn, fadeOut)
		if !ok {
			t.Fatalf("Intensity(-%v) excluded inside window", d)
		}
		if got >= prev {
			t.Fatalf("intensity not decreasing at -%v: %v >= %v", d, got, prev)
		}
		prev = got
	}
}

// TestIntensityContinuityAtZero approaches the event instant from both sides
// with asymmetric windows; both limits must approach 1.
func TestIntensityContinuityAtZero(t *testing.T) {
	fadeIn := 3 * time.Minute
	fadeOut := 30 * time.Minute

	closeFuture, _ := Intensity(time.Millisecond, fadeIn, fadeOut)
	closePast, _ := Intensity(-time.Millisecond, fadeIn, fadeOut)

	if math.Abs(closeFuture-1) > 1e-6 || math.Abs(closePast-1) > 1e-6 {
		t.Errorf("discontinuity at delta=0: future side %v, past side %v", closeFuture, closePast)
	}
}

// TestIntensityZeroWindows: an event exactly at now stays lit even with
// degenerate windows; anything offset is excluded.
func TestIntensityZeroWindows(t *testing.T) {
	if got, ok := Intensity(0, 0, 0); !ok || got != 1.0 {
		t.Errorf("Intensity(0, 0, 0) = (%v, %v), want (1, true)", got, ok)
	}
	if _, ok := Intensity(time.Second, 0, 0); ok {
		t.Error("future event with zero fade-in not excluded")
	}
	if _, ok := Intensity(-time.Second, 0, 0); ok {
		t.Error("past event with zero fade-out not excluded")
	}
}
