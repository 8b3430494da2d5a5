package propagation

import (
	"context"
	"log/slog"
	"time"

	"github.com/orbview/orbview/internal/geo"
	"github.com/orbview/orbview/internal/metrics"
	"github.com/orbview/orbview/internal/transform"
)

// Entry identifies one satellite in a batch call.
type Entry struct {
	ID    string
	Line1 string
	Line2 string
}

// Result is the per-satellite outcome of a batch propagation.
type Result struct {
	ID       string
	Position geo.Position
	Err      error
}

// Pool runs SGP4 propagation across satellites on a bounded number of
// goroutines. Satellites share no state.
type Pool struct {
	workers int
	logger  *slog.Logger
}

// NewPool creates a pool with the given number of workers.
func NewPool(workers int, logger *slog.Logger) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{workers: workers, logger: logger}
}

// PositionBatch propagates all entries to the target time. Results keep the
// entry order; failed satellites carry their error rather than being
// dropped, so callers can surface per-satellite warnings. A cancelled
// context returns only the subset that completed.
func (p *Pool) PositionBatch(ctx context.Context, entries []Entry, target time.Time) []Result {
	if len(entries) == 0 {
		return nil
	}

	// GMST is the same for every satellite at one instant.
	gmst := transform.GMST(target)

	start := time.Now()
	slots := make([]Result, len(entries))
	done := make([]bool, len(entries))

	Each(ctx, p.workers, len(entries), func(i int) {
		slots[i] = propagateOne(entries[i], target, gmst)
		done[i] = true
	})

	out := make([]Result, 0, len(entries))
	var successCount, errorCount int
	for i, res := range slots {
		if !done[i] {
			continue
		}
		if res.Err != nil {
			errorCount++
			p.logger.Warn("propagation failed", "satellite_id", res.ID, "error", res.Err)
		} else {
			successCount++
		}
		out = append(out, res)
	}

	metrics.RecordPropagation(time.Since(start), successCount, errorCount)
	return out
}

// propagateOne builds the adapter and computes one geodetic position.
func propagateOne(entry Entry, t time.Time, gmst float64) Result {
	ad, err := NewAdapter(entry.ID, entry.Line1, entry.Line2)
	if err != nil {
		return Result{ID: entry.ID, Err: err}
	}

	pos, err := ad.positionWithGMST(t, gmst)
	if err != nil {
		return Result{ID: entry.ID, Err: err}
	}
	return Result{ID: entry.ID, Position: pos}
}
