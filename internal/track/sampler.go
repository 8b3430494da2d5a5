// Package track samples a satellite's ground track around a reference time,
// producing renderer-ready tail (past) and head (future) paths already split
// at the antimeridian, with per-point progress fractions for fade alpha.
package track

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/orbview/orbview/internal/geo"
	"github.com/orbview/orbview/internal/metrics"
	"github.com/orbview/orbview/internal/propagation"
)

const (
	// DefaultStep is the canonical sampling interval. The event detector
	// uses the same resolution.
	DefaultStep = 20 * time.Second

	// MaxWindowMinutes bounds the tail and head windows.
	MaxWindowMinutes = 90

	// maxConsecutiveFailures aborts a sampling branch: a TLE that fails
	// repeatedly will keep failing, so the partial series is returned
	// instead of burning the rest of the window.
	maxConsecutiveFailures = 3
)

// Config controls one sampling call.
type Config struct {
	TailMinutes float64
	HeadMinutes float64
	Step        time.Duration
}

// DefaultConfig returns the standard display window.
func DefaultConfig() Config {
	return Config{TailMinutes: 10, HeadMinutes: 10, Step: DefaultStep}
}

// Validate checks window bounds and fills the step default.
func (c *Config) Validate() error {
	if c.TailMinutes < 0 || c.HeadMinutes < 0 {
		return fmt.Errorf("track window minutes must be non-negative (tail=%v head=%v)", c.TailMinutes, c.HeadMinutes)
	}
	if c.TailMinutes > MaxWindowMinutes || c.HeadMinutes > MaxWindowMinutes {
		return fmt.Errorf("track window minutes exceed maximum %d (tail=%v head=%v)", MaxWindowMinutes, c.TailMinutes, c.HeadMinutes)
	}
	if c.Step <= 0 {
		c.Step = DefaultStep
	}
	return nil
}

// SampledPoint is one propagated position with its fade fraction.
// Progress runs 0→1 from the oldest tail point to the reference time on the
// tail branch, and from the reference time to the window end on the head
// branch. It exists only for rendering alpha gradients.
type SampledPoint struct {
	Position geo.Position `json:"position"`
	Time     time.Time    `json:"time"`
	Progress float64      `json:"progress"`
}

// Result is the sampler output. Segments are pre-split at the antimeridian;
// Current is a dedicated propagation at exactly the reference time, which may
// not coincide with any sampled step for fractional-minute windows.
type Result struct {
	TailPoints   []SampledPoint    `json:"tail_points"`
	HeadPoints   []SampledPoint    `json:"head_points"`
	TailSegments []geo.PathSegment `json:"tail_segments"`
	HeadSegments []geo.PathSegment `json:"head_segments"`
	Current      *geo.Position     `json:"current,omitempty"`
}

// Sampler produces ground tracks for single satellites.
type Sampler struct {
	logger *slog.Logger
}

// NewSampler creates a sampler.
func NewSampler(logger *slog.Logger) *Sampler {
	return &Sampler{logger: logger}
}

// Sample builds the tail and head series around ref. Propagation failures
// degrade the result (shorter series) rather than failing the call; only an
// invalid config is an error.
func (s *Sampler) Sample(ad *propagation.Adapter, ref time.Time, cfg Config) (Result, error) {
	if err := cfg.Validate(); err != nil {
		return Result{}, err
	}

	tailStart := ref.Add(-time.Duration(cfg.TailMinutes * float64(time.Minute)))
	headEnd := ref.Add(time.Duration(cfg.HeadMinutes * float64(time.Minute)))

	var res Result
	res.TailPoints = s.sampleBranch(ad, tailStart, ref, cfg.Step, func(t time.Time) float64 {
		span := ref.Sub(tailStart)
		if span <= 0 {
			return 1
		}
		return float64(t.Sub(tailStart)) / float64(span)
	})
	res.HeadPoints = s.sampleBranch(ad, ref, headEnd, cfg.Step, func(t time.Time) float64 {
		span := headEnd.Sub(ref)
		if span <= 0 {
			return 0
		}
		return float64(t.Sub(ref)) / float64(span)
	})

	res.TailSegments = geo.SplitPath(pointsToPath(res.TailPoints))
	res.HeadSegments = geo.SplitPath(pointsToPath(res.HeadPoints))

	if pos, err := ad.PositionAt(ref); err == nil {
		res.Current = &pos
	} else {
		s.logger.Warn("current position unavailable", "satellite_id", ad.ID(), "error", err)
	}

	return res, nil
}

// sampleBranch walks [from, to] at the given step, computing progress per
// point. Three consecutive propagation failures abort the branch and return
// whatever was collected.
func (s *Sampler) sampleBranch(ad *propagation.Adapter, from, to time.Time, step time.Duration, progress func(time.Time) float64) []SampledPoint {
	if to.Before(from) {
		return nil
	}

	points := make([]SampledPoint, 0, int(to.Sub(from)/step)+1)
	consecutiveFailures := 0

	for t := from; !t.After(to); t = t.Add(step) {
		pos, err := ad.PositionAt(t)
		if err != nil {
			consecutiveFailures++
			if consecutiveFailures >= maxConsecutiveFailures {
				metrics.IncSeriesAborts()
				s.logger.Warn("sampling aborted after consecutive failures",
					"satellite_id", ad.ID(),
					"failures", consecutiveFailures,
					"collected", len(points),
				)
				break
			}
			continue
		}
		consecutiveFailures = 0

		points = append(points, SampledPoint{
			Position: pos,
			Time:     t,
			Progress: progress(t),
		})
	}

	return points
}

// pointsToPath projects sampled points onto the [lon, lat] vertex form the
// splitter works in.
func pointsToPath(points []SampledPoint) []geo.LonLat {
	if len(points) == 0 {
		return nil
	}
	path := make([]geo.LonLat, len(points))
	for i, p := range points {
		path[i] = geo.LonLat{p.Position.LonDeg, p.Position.LatDeg}
	}
	return path
}
