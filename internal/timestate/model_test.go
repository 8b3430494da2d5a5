package timestate

import (
	"math"
	"testing"
	"time"
)

var t0 = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

func TestNewDefaults(t *testing.T) {
	m := New(t0)
	s := m.Snapshot()

	if !s.IsRealTime {
		t.Error("new model not live")
	}
	if !s.CurrentTime.Equal(t0) {
		t.Errorf("current time = %v, want %v", s.CurrentTime, t0)
	}
	if !s.CommittedStart.Equal(t0.Add(-DefaultRangeHalfSpan)) || !s.CommittedStop.Equal(t0.Add(DefaultRangeHalfSpan)) {
		t.Errorf("committed range = [%v, %v]", s.CommittedStart, s.CommittedStop)
	}
	if s.Dirty {
		t.Error("new model dirty")
	}
}

func TestAdvanceOnlyWhileLive(t *testing.T) {
	m := New(t0)

	m.Advance(t0.Add(time.Minute))
	if got := m.CurrentTime(); !got.Equal(t0.Add(time.Minute)) {
		t.Errorf("live advance: current = %v", got)
	}

	m.StepTime(+1) // forces scrubbed
	pinned := m.CurrentTime()
	m.Advance(t0.Add(time.Hour))
	if got := m.CurrentTime(); !got.Equal(pinned) {
		t.Errorf("scrubbed clock moved on Advance: %v -> %v", pinned, got)
	}
}

// TestCommitCancelRoundTrip is the two-phase commit contract: edits stay
// pending until Apply, and Cancel restores the committed values verbatim.
func TestCommitCancelRoundTrip(t *testing.T) {
	m := New(t0)
	before := m.Snapshot()

	edited := t0.Add(-3 * time.Hour)
	if err := m.SetPendingStart(edited); err != nil {
		t.Fatalf("SetPendingStart: %v", err)
	}

	mid := m.Snapshot()
	if !mid.Dirty {
		t.Error("edit did not mark state dirty")
	}
	if !mid.CommittedStart.Equal(before.CommittedStart) {
		t.Error("committed start changed before Apply")
	}

	m.Cancel()
	after := m.Snapshot()
	if !after.PendingStart.Equal(before.CommittedStart) || after.Dirty {
		t.Errorf("Cancel did not restore: pending start %v, dirty %v", after.PendingStart, after.Dirty)
	}

	if err := m.SetPendingStart(edited); err != nil {
		t.Fatal(err)
	}
	if err := m.Apply(); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	applied := m.Snapshot()
	if !applied.CommittedStart.Equal(edited) {
		t.Errorf("committed start = %v, want %v", applied.CommittedStart, edited)
	}
	if applied.Dirty {
		t.Error("Apply left state dirty")
	}
}

// TestApplyRejectsInvertedRange: a non-positive pending span fails and
// leaves both pairs untouched.
func TestApplyRejectsInvertedRange(t *testing.T) {
	m := New(t0)
	before := m.Snapshot()

	if err := m.SetPendingStart(t0.Add(time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := m.SetPendingStop(t0.Add(-time.Hour)); err != nil {
		t.Fatal(err)
	}
	if err := m.Apply(); err == nil {
		t.Fatal("inverted range applied")
	}

	after := m.Snapshot()
	if !after.CommittedStart.Equal(before.CommittedStart) || !after.CommittedStop.Equal(before.CommittedStop) {
		t.Error("failed Apply mutated committed range")
	}
}

func TestPendingValidation(t *testing.T) {
	m := New(t0)
	if err := m.SetPendingStart(time.Time{}); err == nil {
		t.Error("zero start accepted")
	}
	if err := m.SetPendingStop(time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)); err == nil {
		t.Error("pre-spaceflight stop accepted")
	}
	if m.Snapshot().Dirty {
		t.Error("rejected edits marked state dirty")
	}
}

func TestStepTimeClampsAndScrubs(t *testing.T) {
	m := New(t0)
	if err := m.SetStepMinutes(15); err != nil {
		t.Fatal(err)
	}

	m.StepTime(+1)
	s := m.Snapshot()
	if s.IsRealTime {
		t.Error("StepTime left model live")
	}
	if !s.CurrentTime.Equal(t0.Add(15 * time.Minute)) {
		t.Errorf("stepped to %v, want +15m", s.CurrentTime)
	}

	// Walk past the committed stop; the clock must clamp there.
	for i := 0; i < 20; i++ {
		m.StepTime(+1)
	}
	if got := m.CurrentTime(); !got.Equal(m.Snapshot().CommittedStop) {
		t.Errorf("clock overran committed stop: %v", got)
	}

	for i := 0; i < 50; i++ {
		m.StepTime(-1)
	}
	if got := m.CurrentTime(); !got.Equal(m.Snapshot().CommittedStart) {
		t.Errorf("clock underran committed start: %v", got)
	}
}

// TestSliderRoundTrip: SetTimeFromSlider then SliderPosition recovers the
// input across the range, and both endpoints are exact.
func TestSliderRoundTrip(t *testing.T) {
	m := New(t0)

	for p := 0.0; p <= 1.0; p += 0.125 {
		m.SetTimeFromSlider(p)
		if got := m.SliderPosition(); math.Abs(got-p) > 1e-9 {
			t.Errorf("slider round trip: set %v, got %v", p, got)
		}
	}

	if m.Snapshot().IsRealTime {
		t.Error("slider drag left model live")
	}
}

func TestSliderClamping(t *testing.T) {
	m := New(t0)

	m.SetTimeFromSlider(-0.5)
	if !m.CurrentTime().Equal(m.Snapshot().CommittedStart) {
		t.Error("negative position did not clamp to start")
	}
	m.SetTimeFromSlider(1.5)
	if !m.CurrentTime().Equal(m.Snapshot().CommittedStop) {
		t.Error("oversized position did not clamp to stop")
	}
}

// TestSliderPositionAfterRangeShrink: the clock can sit outside a freshly
// committed range; the slider read clamps without mutating state.
func TestSliderPositionAfterRangeShrink(t *testing.T) {
	m := New(t0)
	m.SetTimeFromSlider(1.0) // clock at committed stop

	if err := m.SetPendingStart(t0.Add(-10 * time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := m.SetPendingStop(t0.Add(10 * time.Minute)); err != nil {
		t.Fatal(err)
	}
	if err := m.Apply(); err != nil {
		t.Fatal(err)
	}

	if got := m.SliderPosition(); got != 1.0 {
		t.Errorf("slider position = %v, want clamped 1", got)
	}
	// The underlying clock itself must not have been clamped.
	if got := m.CurrentTime(); !got.Equal(t0.Add(DefaultRangeHalfSpan)) {
		t.Errorf("range shrink mutated the clock: %v", got)
	}
}

func TestResumeRealTime(t *testing.T) {
	m := New(t0)
	m.StepTime(+1)
	if m.IsRealTime() {
		t.Fatal("precondition: model should be scrubbed")
	}

	wall := t0.Add(42 * time.Second)
	m.ResumeRealTime(wall)
	if !m.IsRealTime() {
		t.Error("ResumeRealTime did not restore live state")
	}
	if !m.CurrentTime().Equal(wall) {
		t.Errorf("resume set clock to %v, want %v", m.CurrentTime(), wall)
	}
}

func TestWindowConfiguration(t *testing.T) {
	m := New(t0)

	if err := m.SetTailMinutes(30); err != nil {
		t.Fatal(err)
	}
	if err := m.SetHeadMinutes(45); err != nil {
		t.Fatal(err)
	}
	if m.TailMinutes() != 30 || m.HeadMinutes() != 45 {
		t.Errorf("windows = (%v, %v), want (30, 45)", m.TailMinutes(), m.HeadMinutes())
	}

	if err := m.SetTailMinutes(MaxWindowMinutes + 1); err == nil {
		t.Error("oversized tail accepted")
	}
	if err := m.SetHeadMinutes(-1); err == nil {
		t.Error("negative head accepted")
	}
	if err := m.SetStepMinutes(0); err == nil {
		t.Error("zero step accepted")
	}
}
