// Package timestate owns the simulated clock the rest of the engine reads:
// live wall-clock tracking versus a user-scrubbed instant, and a two-phase
// pending/committed time range so half-edited bounds never reach the map.
package timestate

import (
	"fmt"
	"sync"
	"time"
)

// MaxWindowMinutes bounds the tail and head display windows.
const MaxWindowMinutes = 90

// DefaultRangeHalfSpan is how far the committed range extends on each side
// of the construction instant.
const DefaultRangeHalfSpan = 90 * time.Minute

// Snapshot is the read-only view handed to consumers. Components never
// mutate time state directly; all writes go through the named operations.
type Snapshot struct {
	CurrentTime    time.Time `json:"current_time"`
	CommittedStart time.Time `json:"committed_start"`
	CommittedStop  time.Time `json:"committed_stop"`
	PendingStart   time.Time `json:"pending_start"`
	PendingStop    time.Time `json:"pending_stop"`
	TailMinutes    float64   `json:"tail_minutes"`
	HeadMinutes    float64   `json:"head_minutes"`
	StepMinutes    int       `json:"step_minutes"`
	IsRealTime     bool      `json:"is_real_time"`
	Dirty          bool      `json:"dirty"`
	SliderPosition float64   `json:"slider_position"`
}

// Model is the finite-state time controller. A single UI-driven writer is
// expected; the mutex makes concurrent readers (stream, API) safe.
type Model struct {
	mu sync.RWMutex

	now            time.Time
	committedStart time.Time
	committedStop  time.Time
	pendingStart   time.Time
	pendingStop    time.Time
	dirty          bool
	realTime       bool

	tailMinutes float64
	headMinutes float64
	stepMinutes int
}

// New creates a live model centered on start with the default committed
// range and a 10-minute display window on each side.
func New(start time.Time) *Model {
	return &Model{
		now:            start,
		committedStart: start.Add(-DefaultRangeHalfSpan),
		committedStop:  start.Add(DefaultRangeHalfSpan),
		pendingStart:   start.Add(-DefaultRangeHalfSpan),
		pendingStop:    start.Add(DefaultRangeHalfSpan),
		realTime:       true,
		tailMinutes:    10,
		headMinutes:    10,
		stepMinutes:    5,
	}
}

// Snapshot returns a consistent read-only copy of the state.
func (m *Model) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Snapshot{
		CurrentTime:    m.now,
		CommittedStart: m.committedStart,
		CommittedStop:  m.committedStop,
		PendingStart:   m.pendingStart,
		PendingStop:    m.pendingStop,
		TailMinutes:    m.tailMinutes,
		HeadMinutes:    m.headMinutes,
		StepMinutes:    m.stepMinutes,
		IsRealTime:     m.realTime,
		Dirty:          m.dirty,
		SliderPosition: m.sliderPositionLocked(),
	}
}

// CurrentTime returns the current simulated time.
func (m *Model) CurrentTime() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// IsRealTime reports whether the model tracks wall-clock time.
func (m *Model) IsRealTime() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.realTime
}

// TailMinutes returns the display tail window.
func (m *Model) TailMinutes() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.tailMinutes
}

// HeadMinutes returns the display head window.
func (m *Model) HeadMinutes() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.headMinutes
}

// Advance moves the simulated clock to wallNow while live. Scrubbed state
// pins the clock until the user resumes.
func (m *Model) Advance(wallNow time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.realTime {
		m.now = wallNow
	}
}

// validTimestamp rejects the zero value and wildly out-of-range instants
// (the text-input path can produce both).
func validTimestamp(t time.Time) error {
	if t.IsZero() {
		return fmt.Errorf("invalid time range: zero timestamp")
	}
	if t.Year() < 1957 || t.Year() > 2200 {
		return fmt.Errorf("invalid time range: year %d out of range", t.Year())
	}
	return nil
}

// SetPendingStart stages a new range start. The committed pair, and
// everything rendered from it, is untouched until Apply.
func (m *Model) SetPendingStart(t time.Time) error {
	if err := validTimestamp(t); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingStart = t
	m.dirty = true
	return nil
}

// SetPendingStop stages a new range stop.
func (m *Model) SetPendingStop(t time.Time) error {
	if err := validTimestamp(t); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingStop = t
	m.dirty = true
	return nil
}

// Apply commits the pending pair atomically. A non-positive pending span is
// rejected and leaves both pairs untouched.
func (m *Model) Apply() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.pendingStop.After(m.pendingStart) {
		return fmt.Errorf("invalid time range: stop %s not after start %s",
			m.pendingStop.UTC().Format(time.RFC3339), m.pendingStart.UTC().Format(time.RFC3339))
	}

	m.committedStart = m.pendingStart
	m.committedStop = m.pendingStop
	m.dirty = false
	return nil
}

// Cancel discards the pending pair, restoring the committed values verbatim.
func (m *Model) Cancel() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pendingStart = m.committedStart
	m.pendingStop = m.committedStop
	m.dirty = false
}

// SetStepMinutes configures the StepTime granularity.
func (m *Model) SetStepMinutes(minutes int) error {
	if minutes < 1 {
		return fmt.Errorf("step minutes must be positive, got %d", minutes)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stepMinutes = minutes
	return nil
}

// SetTailMinutes configures the display tail window.
func (m *Model) SetTailMinutes(minutes float64) error {
	if minutes < 0 || minutes > MaxWindowMinutes {
		return fmt.Errorf("tail minutes %v outside [0, %d]", minutes, MaxWindowMinutes)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tailMinutes = minutes
	return nil
}

// SetHeadMinutes configures the display head window.
func (m *Model) SetHeadMinutes(minutes float64) error {
	if minutes < 0 || minutes > MaxWindowMinutes {
		return fmt.Errorf("head minutes %v outside [0, %d]", minutes, MaxWindowMinutes)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.headMinutes = minutes
	return nil
}

// StepTime advances the current time by one configured step in the given
// direction (+1 or -1), clamped to the committed range, and always forces
// scrubbed state.
func (m *Model) StepTime(direction int) {
	if direction >= 0 {
		direction = 1
	} else {
		direction = -1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.realTime = false
	m.now = m.now.Add(time.Duration(direction*m.stepMinutes) * time.Minute)
	if m.now.Before(m.committedStart) {
		m.now = m.committedStart
	}
	if m.now.After(m.committedStop) {
		m.now = m.committedStop
	}
}

// SetTimeFromSlider maps position in [0,1] linearly onto the committed
// range and always forces scrubbed state. Out-of-range positions clamp.
func (m *Model) SetTimeFromSlider(position float64) {
	if position < 0 {
		position = 0
	}
	if position > 1 {
		position = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.realTime = false
	span := m.committedStop.Sub(m.committedStart)
	m.now = m.committedStart.Add(time.Duration(position * float64(span)))
}

// SliderPosition inverts the slider mapping, clamped to [0,1]. The current
// time can sit outside the committed range transiently after a range shrink;
// the clamp happens here, at read time, not in state.
func (m *Model) SliderPosition() float64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sliderPositionLocked()
}

func (m *Model) sliderPositionLocked() float64 {
	span := m.committedStop.Sub(m.committedStart)
	if span <= 0 {
		return 0
	}
	p := float64(m.now.Sub(m.committedStart)) / float64(span)
	if p < 0 {
		return 0
	}
	if p > 1 {
		return 1
	}
	return p
}

// ResumeRealTime returns to live tracking from wallNow. The only way out of
// scrubbed state.
func (m *Model) ResumeRealTime(wallNow time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.realTime = true
	m.now = wallNow
}
