package events

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime"
	"sort"
	"time"

	"github.com/orbview/orbview/internal/geo"
	"github.com/orbview/orbview/internal/metrics"
	"github.com/orbview/orbview/internal/propagation"
)

// Kind labels the event classes the detector emits.
type Kind string

const (
	KindCrossingAscending  Kind = "crossing_ascending"
	KindCrossingDescending Kind = "crossing_descending"
	KindApexNorth          Kind = "apex_north"
	KindApexSouth          Kind = "apex_south"
	KindMarker             Kind = "marker"
)

// Event is one time-windowed glow event. Transient: recomputed on every
// call, never persisted.
type Event struct {
	Kind             Kind       `json:"kind"`
	Point            geo.LonLat `json:"point"`
	Intensity        float64    `json:"intensity"`
	IsHistory        bool       `json:"is_history"`
	IsFuture         bool       `json:"is_future"`
	TimeDeltaMinutes float64    `json:"time_delta_minutes"`
	Time             time.Time  `json:"time"`
	Label            string     `json:"label,omitempty"`
}

// Config controls one detection call. The fade windows double as the
// sampling window: positions are sampled over
// [now − FadeOutMinutes, now + FadeInMinutes].
type Config struct {
	TargetLatDeg   float64
	FadeInMinutes  float64
	FadeOutMinutes float64
	Step           time.Duration
}

// DefaultConfig is an equator-crossing detector with 10-minute fades.
func DefaultConfig() Config {
	return Config{FadeInMinutes: 10, FadeOutMinutes: 10, Step: 20 * time.Second}
}

// Validate checks the fade windows and fills the step default.
func (c *Config) Validate() error {
	if c.FadeInMinutes < 0 || c.FadeOutMinutes < 0 {
		return fmt.Errorf("fade minutes must be non-negative (in=%v out=%v)", c.FadeInMinutes, c.FadeOutMinutes)
	}
	if c.Step <= 0 {
		c.Step = 20 * time.Second
	}
	return nil
}

func (c Config) fadeIn() time.Duration {
	return time.Duration(c.FadeInMinutes * float64(time.Minute))
}

func (c Config) fadeOut() time.Duration {
	return time.Duration(c.FadeOutMinutes * float64(time.Minute))
}

// samplePoint is one propagated position in the fade window.
type samplePoint struct {
	pos geo.Position
	t   time.Time
}

// Detector finds proximity events for single satellites.
type Detector struct {
	logger *slog.Logger
}

// NewDetector creates a detector.
func NewDetector(logger *slog.Logger) *Detector {
	return &Detector{logger: logger}
}

// maxConsecutiveFailures mirrors the track sampler's abort rule.
const maxConsecutiveFailures = 3

// sampleSeries walks the fade window once. Failures degrade the series;
// three in a row abort it.
func (d *Detector) sampleSeries(ad *propagation.Adapter, now time.Time, cfg Config) []samplePoint {
	from := now.Add(-cfg.fadeOut())
	to := now.Add(cfg.fadeIn())

	points := make([]samplePoint, 0, int(to.Sub(from)/cfg.Step)+1)
	consecutiveFailures := 0

	for t := from; !t.After(to); t = t.Add(cfg.Step) {
		pos, err := ad.PositionAt(t)
		if err != nil {
			consecutiveFailures++
			if consecutiveFailures >= maxConsecutiveFailures {
				metrics.IncSeriesAborts()
				d.logger.Warn("event sampling aborted after consecutive failures",
					"satellite_id", ad.ID(),
					"failures", consecutiveFailures,
				)
				break
			}
			continue
		}
		consecutiveFailures = 0
		points = append(points, samplePoint{pos: pos, t: t})
	}

	return points
}

// LatitudeCrossings detects crossings of the configured target latitude
// (default 0, the equator) within the fade window, interpolating the exact
// crossing time and longitude between the bracketing samples.
func (d *Detector) LatitudeCrossings(ad *propagation.Adapter, now time.Time, cfg Config) ([]Event, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	series := d.sampleSeries(ad, now, cfg)
	evs := d.crossingsFromSeries(series, now, cfg)
	metrics.AddEventsDetected("crossing", len(evs))
	return evs, nil
}

// crossingsFromSeries walks consecutive sample pairs with a strict
// one-side-inclusive sign-change test so a sample landing exactly on the
// target latitude is counted once, not twice.
func (d *Detector) crossingsFromSeries(series []samplePoint, now time.Time, cfg Config) []Event {
	var evs []Event
	target := cfg.TargetLatDeg

	for i := 1; i < len(series); i++ {
		p1, p2 := series[i-1], series[i]
		lat1, lat2 := p1.pos.LatDeg, p2.pos.LatDeg

		if (lat1 < target) == (lat2 < target) {
			continue
		}

		// Linear interpolation on latitude locates the crossing.
		span := math.Abs(lat2 - lat1)
		frac := 0.0
		if span > 0 {
			frac = math.Abs(lat1-target) / span
		}

		// Longitude interpolates along the shorter arc so a crossing in a
		// date-line-straddling pair lands on the right side of the map.
		dLon := p2.pos.LonDeg - p1.pos.LonDeg
		if dLon > 180 {
			dLon -= 360
		} else if dLon < -180 {
			dLon += 360
		}
		lon := geo.NormalizeLon(p1.pos.LonDeg + frac*dLon)

		crossTime := p1.t.Add(time.Duration(frac * float64(p2.t.Sub(p1.t))))
		delta := crossTime.Sub(now)

		intensity, ok := Intensity(delta, cfg.fadeIn(), cfg.fadeOut())
		if !ok {
			continue
		}

		kind := KindCrossingAscending
		if lat2 < lat1 {
			kind = KindCrossingDescending
		}

		evs = append(evs, Event{
			Kind:             kind,
			Point:            geo.LonLat{lon, target},
			Intensity:        intensity,
			IsHistory:        delta <= 0,
			IsFuture:         delta > 0,
			TimeDeltaMinutes: delta.Minutes(),
			Time:             crossTime,
		})
	}

	return evs
}

// LatitudeApexes detects the orbit's latitude turning points (northernmost
// and southernmost excursions) within the fade window. At most two events
// come back: the nearest past apex and the nearest future apex. Short-period
// orbits produce an apex every half revolution, and flooding the map with
// them is worse than showing none.
func (d *Detector) LatitudeApexes(ad *propagation.Adapter, now time.Time, cfg Config) ([]Event, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	series := d.sampleSeries(ad, now, cfg)
	evs := d.apexesFromSeries(series, now, cfg)
	metrics.AddEventsDetected("apex", len(evs))
	return evs, nil
}

func (d *Detector) apexesFromSeries(series []samplePoint, now time.Time, cfg Config) []Event {
	var candidates []Event

	for i := 1; i < len(series)-1; i++ {
		prev, curr, next := series[i-1], series[i], series[i+1]

		var kind Kind
		switch {
		case curr.pos.LatDeg > prev.pos.LatDeg && curr.pos.LatDeg > next.pos.LatDeg:
			kind = KindApexNorth
		case curr.pos.LatDeg < prev.pos.LatDeg && curr.pos.LatDeg < next.pos.LatDeg:
			kind = KindApexSouth
		default:
			continue
		}

		delta := curr.t.Sub(now)
		intensity, ok := Intensity(delta, cfg.fadeIn(), cfg.fadeOut())
		if !ok {
			continue
		}

		candidates = append(candidates, Event{
			Kind:             kind,
			Point:            geo.LonLat{curr.pos.LonDeg, curr.pos.LatDeg},
			Intensity:        intensity,
			IsHistory:        delta <= 0,
			IsFuture:         delta > 0,
			TimeDeltaMinutes: delta.Minutes(),
			Time:             curr.t,
		})
	}

	return nearestPastAndFuture(candidates)
}

// nearestPastAndFuture keeps at most one past and one future event, each the
// closest to now on its side.
func nearestPastAndFuture(candidates []Event) []Event {
	var past, future *Event
	for i := range candidates {
		ev := &candidates[i]
		if ev.IsHistory {
			if past == nil || math.Abs(ev.TimeDeltaMinutes) < math.Abs(past.TimeDeltaMinutes) {
				past = ev
			}
		} else {
			if future == nil || ev.TimeDeltaMinutes < future.TimeDeltaMinutes {
				future = ev
			}
		}
	}

	out := make([]Event, 0, 2)
	if past != nil {
		out = append(out, *past)
	}
	if future != nil {
		out = append(out, *future)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out
}

// TimeMarker produces the glow for one externally scheduled instant (e.g. a
// predicted maneuver): no search, a single propagation at eventTime, the
// shared fade. Returns zero or one events.
func (d *Detector) TimeMarker(ad *propagation.Adapter, now, eventTime time.Time, cfg Config, label string) ([]Event, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	delta := eventTime.Sub(now)
	intensity, ok := Intensity(delta, cfg.fadeIn(), cfg.fadeOut())
	if !ok {
		return nil, nil
	}

	pos, err := ad.PositionAt(eventTime)
	if err != nil {
		d.logger.Warn("time marker position unavailable", "satellite_id", ad.ID(), "error", err)
		return nil, nil
	}

	metrics.AddEventsDetected("marker", 1)
	return []Event{{
		Kind:             KindMarker,
		Point:            geo.LonLat{pos.LonDeg, pos.LatDeg},
		Intensity:        intensity,
		IsHistory:        delta <= 0,
		IsFuture:         delta > 0,
		TimeDeltaMinutes: delta.Minutes(),
		Time:             eventTime,
		Label:            label,
	}}, nil
}

// Detect runs the crossing and apex walks over one shared sample series.
// Both detectors use the same fade-driven window, so sampling twice would
// only duplicate work without changing output.
func (d *Detector) Detect(ad *propagation.Adapter, now time.Time, cfg Config) ([]Event, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	series := d.sampleSeries(ad, now, cfg)
	crossings := d.crossingsFromSeries(series, now, cfg)
	apexes := d.apexesFromSeries(series, now, cfg)

	metrics.AddEventsDetected("crossing", len(crossings))
	metrics.AddEventsDetected("apex", len(apexes))
	return append(crossings, apexes...), nil
}

// SatelliteEvents holds one satellite's detection outcome in a batch call.
type SatelliteEvents struct {
	ID     string  `json:"id"`
	Events []Event `json:"events"`
	Error  string  `json:"error,omitempty"`
}

// BatchDetect fans Detect out across satellites. Satellites share no state;
// the result order matches the input order.
func (d *Detector) BatchDetect(ctx context.Context, entries []propagation.Entry, now time.Time, cfg Config) []SatelliteEvents {
	results := make([]SatelliteEvents, len(entries))

	err := propagation.Each(ctx, runtime.NumCPU(), len(entries), func(i int) {
		e := entries[i]

		ad, err := propagation.NewAdapter(e.ID, e.Line1, e.Line2)
		if err != nil {
			results[i] = SatelliteEvents{ID: e.ID, Error: err.Error()}
			return
		}

		evs, err := d.Detect(ad, now, cfg)
		if err != nil {
			results[i] = SatelliteEvents{ID: e.ID, Error: err.Error()}
			return
		}
		results[i] = SatelliteEvents{ID: e.ID, Events: evs}
	})
	if err != nil {
		for i := range results {
			if results[i].ID == "" {
				results[i] = SatelliteEvents{ID: entries[i].ID, Error: "cancelled"}
			}
		}
	}
	return results
}
