// Package frame assembles complete render snapshots. A frame holds, for one
// instant, every satellite's ground track and proximity events, so the map
// layer can redraw from a single payload. Frames for the live clock are
// cached over a rolling window; scrubbed times are built on demand.
package frame

import (
	"context"
	"log/slog"
	"runtime"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/orbview/orbview/internal/catalog"
	"github.com/orbview/orbview/internal/events"
	"github.com/orbview/orbview/internal/metrics"
	"github.com/orbview/orbview/internal/propagation"
	"github.com/orbview/orbview/internal/track"
)

var tracer = otel.Tracer("github.com/orbview/orbview/internal/frame")

// SatelliteFrame is one satellite's slice of a frame. Error is set when the
// element set could not be propagated; the track and event fields are then
// empty but the satellite still appears so the renderer can mark it.
type SatelliteFrame struct {
	ID     string         `json:"id"`
	Name   string         `json:"name"`
	Track  track.Result   `json:"track"`
	Events []events.Event `json:"events"`
	Error  string         `json:"error,omitempty"`
}

// Frame is a complete render snapshot for one instant.
type Frame struct {
	Time           time.Time        `json:"time"`
	GeneratedAt    time.Time        `json:"generated_at"`
	CatalogVersion uint64           `json:"catalog_version"`
	Satellites     []SatelliteFrame `json:"satellites"`
}

// Builder produces frames from the current catalog.
type Builder struct {
	catalog  *catalog.Catalog
	sampler  *track.Sampler
	detector *events.Detector
	logger   *slog.Logger
}

// NewBuilder creates a builder over the given catalog.
func NewBuilder(cat *catalog.Catalog, logger *slog.Logger) *Builder {
	return &Builder{
		catalog:  cat,
		sampler:  track.NewSampler(logger),
		detector: events.NewDetector(logger),
		logger:   logger,
	}
}

// Build assembles a frame for the given instant. Satellites are processed
// concurrently; per-satellite failures degrade that entry rather than the
// frame. Ordering follows the catalog (sorted by ID).
func (b *Builder) Build(ctx context.Context, at time.Time, trackCfg track.Config, eventCfg events.Config) (*Frame, error) {
	if err := trackCfg.Validate(); err != nil {
		return nil, err
	}
	if err := eventCfg.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	snap := b.catalog.Snapshot()

	ctx, span := tracer.Start(ctx, "frame.build")
	defer span.End()
	span.SetAttributes(
		attribute.String("frame.time", at.UTC().Format(time.RFC3339)),
		attribute.Int("frame.satellites", len(snap.Satellites)),
		attribute.Int64("frame.catalog_version", int64(snap.Version)),
	)

	out := &Frame{
		Time:           at.UTC(),
		CatalogVersion: snap.Version,
		Satellites:     make([]SatelliteFrame, len(snap.Satellites)),
	}

	err := propagation.Each(ctx, runtime.NumCPU(), len(snap.Satellites), func(i int) {
		out.Satellites[i] = b.buildOne(snap.Satellites[i], at, trackCfg, eventCfg)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	out.GeneratedAt = time.Now().UTC()
	metrics.ObserveFrameBuildDuration(time.Since(start))
	return out, nil
}

func (b *Builder) buildOne(sat catalog.Satellite, at time.Time, trackCfg track.Config, eventCfg events.Config) SatelliteFrame {
	sf := SatelliteFrame{ID: sat.ID, Name: sat.Name}

	ad, err := propagation.NewAdapter(sat.ID, sat.Line1, sat.Line2)
	if err != nil {
		b.logger.Warn("frame satellite skipped", "satellite_id", sat.ID, "error", err)
		sf.Error = err.Error()
		return sf
	}

	res, err := b.sampler.Sample(ad, at, trackCfg)
	if err != nil {
		sf.Error = err.Error()
		return sf
	}
	sf.Track = res

	evs, err := b.detector.Detect(ad, at, eventCfg)
	if err != nil {
		sf.Error = err.Error()
		return sf
	}
	sf.Events = evs
	return sf
}
