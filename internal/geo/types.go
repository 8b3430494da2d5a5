// Package geo holds the shared geographic types for the track engine and the
// antimeridian splitting used to keep rendered paths free of wraparound artifacts.
package geo

import "math"

// Position is a geodetic sub-satellite point. Longitude is always
// normalized to (-180, 180]. Only the propagation adapter constructs these.
type Position struct {
	LatDeg float64 `json:"lat"`
	LonDeg float64 `json:"lon"`
	AltKm  float64 `json:"alt_km"`
}

// LonLat is a single path vertex in [longitude, latitude] order, matching
// the GeoJSON axis convention the renderer consumes.
type LonLat [2]float64

// Lon returns the longitude component.
func (p LonLat) Lon() float64 { return p[0] }

// Lat returns the latitude component.
func (p LonLat) Lat() float64 { return p[1] }

// PathSegment is an ordered polyline in which no two consecutive vertices
// differ in longitude by more than 180 degrees.
type PathSegment []LonLat

// NormalizeLon wraps a longitude in degrees into (-180, 180].
func NormalizeLon(lon float64) float64 {
	lon = math.Mod(lon, 360.0)
	if lon > 180.0 {
		lon -= 360.0
	} else if lon <= -180.0 {
		lon += 360.0
	}
	return lon
}
