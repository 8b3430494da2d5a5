// Package propagation adapts the external SGP4 library to the track engine:
// TLE validation up front, geodetic output, typed errors, and a worker-pool
// batch fan-out. No orbital mechanics live here.
package propagation

import (
	"strings"
	"time"

	satellite "github.com/joshuaferrara/go-satellite"

	"github.com/orbview/orbview/internal/geo"
	"github.com/orbview/orbview/internal/transform"
)

// SGP4 library choice: github.com/joshuaferrara/go-satellite
//
// Pure Go (no CGO), explicit TEME output, battle-tested since 2016. Propagate()
// takes Satellite by value so SGP4 error codes are not visible to the caller;
// failures are detected by checking output for NaN/Inf and unreasonable
// position magnitudes instead.

// tleMinLen is the minimum accepted TLE line length after trimming. Nominal
// lines are 69 characters; some sources drop the trailing checksum column.
const tleMinLen = 68

// Adapter wraps one satellite's SGP4 propagator behind a geodetic interface.
// Immutable after construction; safe for concurrent use.
type Adapter struct {
	sat satellite.Satellite
	id  string
}

// NewAdapter validates the TLE lines and initializes the SGP4 model.
// Validation happens before the library sees the input because go-satellite
// calls log.Fatal on malformed lines, which would kill the process.
func NewAdapter(id, line1, line2 string) (*Adapter, error) {
	if err := validateTLELines(line1, line2); err != nil {
		return nil, err
	}

	sat := satellite.TLEToSat(strings.TrimSpace(line1), strings.TrimSpace(line2), satellite.GravityWGS84)
	if sat.Error != 0 {
		return nil, invalidFormatf("sgp4 init failed for %s: code=%d %s", id, sat.Error, sat.ErrorStr)
	}
	return &Adapter{sat: sat, id: id}, nil
}

// ID returns the satellite identifier the adapter was built for.
func (a *Adapter) ID() string {
	return a.id
}

// validateTLELines performs format validation on TLE lines, tolerating
// trailing whitespace.
func validateTLELines(line1, line2 string) error {
	line1 = strings.TrimSpace(line1)
	line2 = strings.TrimSpace(line2)

	if len(line1) < tleMinLen {
		return invalidFormatf("tle line1 length %d, need at least %d", len(line1), tleMinLen)
	}
	if len(line2) < tleMinLen {
		return invalidFormatf("tle line2 length %d, need at least %d", len(line2), tleMinLen)
	}
	if line1[0] != '1' {
		return invalidFormatf("tle line1 must start with '1', got %q", line1[0])
	}
	if line2[0] != '2' {
		return invalidFormatf("tle line2 must start with '2', got %q", line2[0])
	}
	return nil
}

// PositionAt computes the geodetic sub-satellite point at the given UTC time.
func (a *Adapter) PositionAt(t time.Time) (geo.Position, error) {
	return a.positionWithGMST(t, transform.GMST(t))
}

// positionWithGMST is the shared propagation path: SGP4 → TEME sanity check →
// ECEF rotation with the supplied GMST → geodetic. Batch callers precompute
// GMST once per instant.
func (a *Adapter) positionWithGMST(t time.Time, gmst float64) (geo.Position, error) {
	t = t.UTC()
	pos, _ := satellite.Propagate(a.sat, t.Year(), int(t.Month()), t.Day(), t.Hour(), t.Minute(), t.Second())

	teme := transform.PositionTEME{X: pos.X, Y: pos.Y, Z: pos.Z}
	if !transform.ValidateTEME(teme) {
		return geo.Position{}, propagationFailedf("sgp4 produced implausible state for %s at %s", a.id, t.UTC().Format("2006-01-02T15:04:05Z"))
	}

	ecef := transform.TEMEToECEFWithGMST(teme, gmst)
	return transform.ECEFToGeodetic(ecef.X, ecef.Y, ecef.Z), nil
}
