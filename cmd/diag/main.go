// Command diag propagates a single element set from the command line and
// prints its ground track and proximity events. Useful for eyeballing new
// element sets before loading them into the catalog.
//
// Usage:
//
//	diag <line1> <line2> [RFC3339 reference time]
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/orbview/orbview/internal/events"
	"github.com/orbview/orbview/internal/propagation"
	"github.com/orbview/orbview/internal/track"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: diag <line1> <line2> [RFC3339 time]")
		os.Exit(2)
	}

	ref := time.Now().UTC()
	if len(os.Args) > 3 {
		t, err := time.Parse(time.RFC3339, os.Args[3])
		if err != nil {
			fmt.Println("ERROR parsing reference time:", err)
			os.Exit(1)
		}
		ref = t
	}

	ad, err := propagation.NewAdapter("diag", os.Args[1], os.Args[2])
	if err != nil {
		fmt.Println("ERROR initializing adapter:", err)
		os.Exit(1)
	}

	pos, err := ad.PositionAt(ref)
	if err != nil {
		fmt.Println("ERROR propagating:", err)
		os.Exit(1)
	}
	fmt.Printf("Reference time: %v\n", ref.Format(time.RFC3339))
	fmt.Printf("Sub-satellite point: lat=%.4f lon=%.4f alt=%.1fkm\n", pos.LatDeg, pos.LonDeg, pos.AltKm)

	sampler := track.NewSampler(logger)
	res, err := sampler.Sample(ad, ref, track.DefaultConfig())
	if err != nil {
		fmt.Println("ERROR sampling track:", err)
		os.Exit(1)
	}
	fmt.Printf("Track: %d tail points (%d segments), %d head points (%d segments)\n",
		len(res.TailPoints), len(res.TailSegments), len(res.HeadPoints), len(res.HeadSegments))

	detector := events.NewDetector(logger)
	cfg := events.DefaultConfig()
	cfg.FadeInMinutes = 60
	cfg.FadeOutMinutes = 60
	evs, err := detector.Detect(ad, ref, cfg)
	if err != nil {
		fmt.Println("ERROR detecting events:", err)
		os.Exit(1)
	}

	fmt.Printf("Events in ±60 min window: %d\n", len(evs))
	for _, ev := range evs {
		fmt.Printf("  %-18s t=%s Δ=%+.1fmin lat=%.3f lon=%.3f intensity=%.2f\n",
			ev.Kind, ev.Time.Format(time.RFC3339), ev.TimeDeltaMinutes,
			ev.Point.Lat(), ev.Point.Lon(), ev.Intensity)
	}
}
