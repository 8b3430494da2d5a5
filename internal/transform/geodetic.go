package transform

import (
	"math"
	"time"

	"github.com/orbview/orbview/internal/geo"
)

// WGS-84 ellipsoid parameters (kilometres).
const (
	wgs84A  = 6378.137              // semi-major axis
	wgs84F  = 1.0 / 298.257223563   // flattening
	wgs84E2 = wgs84F * (2 - wgs84F) // first eccentricity squared
)

// PositionTEME is a satellite state vector in the TEME frame (km, km/s).
type PositionTEME struct {
	X, Y, Z    float64
	VX, VY, VZ float64
}

// PositionECEF is a satellite state vector in the ECEF frame (km, km/s).
type PositionECEF struct {
	X, Y, Z    float64
	VX, VY, VZ float64
}

// TEMEToECEF transforms a TEME state to ECEF at the given UTC time.
func TEMEToECEF(teme PositionTEME, t time.Time) PositionECEF {
	return TEMEToECEFWithGMST(teme, GMST(t))
}

// TEMEToECEFWithGMST transforms TEME to ECEF using a precomputed GMST angle
// (radians). Batch callers propagating many satellites to the same instant
// compute GMST once and reuse it.
//
// Position: r_ECEF = R3(θ) · r_TEME
// Velocity: v_ECEF = R3(θ) · v_TEME − ω × r_ECEF, with ω = [0, 0, ω_earth].
func TEMEToECEFWithGMST(teme PositionTEME, gmst float64) PositionECEF {
	cosG := math.Cos(gmst)
	sinG := math.Sin(gmst)

	x := teme.X*cosG + teme.Y*sinG
	y := -teme.X*sinG + teme.Y*cosG
	z := teme.Z

	vx := teme.VX*cosG + teme.VY*sinG + OmegaEarth*y
	vy := -teme.VX*sinG + teme.VY*cosG - OmegaEarth*x
	vz := teme.VZ

	return PositionECEF{X: x, Y: y, Z: z, VX: vx, VY: vy, VZ: vz}
}

// ECEFToGeodetic converts an ECEF position (km) to a geodetic sub-satellite
// point using the iterative Bowring method, which converges in a handful of
// iterations for Earth orbits. Longitude comes back normalized to (-180, 180].
func ECEFToGeodetic(x, y, z float64) geo.Position {
	lon := math.Atan2(y, x)
	p := math.Sqrt(x*x + y*y)

	lat := math.Atan2(z, p*(1-wgs84E2))
	for i := 0; i < 5; i++ {
		sinLat := math.Sin(lat)
		N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)
		lat = math.Atan2(z+wgs84E2*N*sinLat, p)
	}

	sinLat := math.Sin(lat)
	cosLat := math.Cos(lat)
	N := wgs84A / math.Sqrt(1-wgs84E2*sinLat*sinLat)

	var alt float64
	if math.Abs(cosLat) > 1e-10 {
		alt = p/cosLat - N
	} else {
		alt = math.Abs(z)/math.Abs(sinLat) - N*(1-wgs84E2)
	}

	return geo.Position{
		LatDeg: lat * 180.0 / math.Pi,
		LonDeg: geo.NormalizeLon(lon * 180.0 / math.Pi),
		AltKm:  alt,
	}
}

// ValidateTEME checks that a TEME position is physically plausible for an
// Earth-orbiting satellite: finite components with a magnitude between
// low-LEO and beyond-GEO bounds. SGP4 failure modes (decayed orbits,
// numerical singularities) surface as NaN output or absurd magnitudes
// rather than as error returns from the library.
func ValidateTEME(teme PositionTEME) bool {
	for _, v := range []float64{teme.X, teme.Y, teme.Z} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}

	mag := math.Sqrt(teme.X*teme.X + teme.Y*teme.Y + teme.Z*teme.Z)

	// Earth radius ~6371 km; LEO starts ~6500 km, GEO ~42164 km.
	const minRadiusKm = 6200.0
	const maxRadiusKm = 50000.0
	return mag >= minRadiusKm && mag <= maxRadiusKm
}
