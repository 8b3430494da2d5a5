package geo

import "math"

// SplitSegment splits the segment from a to b at the antimeridian if the
// direct longitude difference exceeds 180 degrees. It returns either the
// original segment or two segments meeting at the ±180 boundary, with the
// crossing latitude linearly interpolated along the wrapped angular distance.
//
// A difference of exactly 180 is treated as not crossing: a track running
// directly along the date line has no unambiguous split point. Both output
// segments are always emitted; dropping the far half leaves a visible gap
// in the rendered track.
func SplitSegment(a, b LonLat) []PathSegment {
	dLon := b.Lon() - a.Lon()
	if math.Abs(dLon) <= 180.0 {
		return []PathSegment{{a, b}}
	}

	// Crossing boundary depends on travel direction: a raw positive
	// difference means the short way goes west through -180.
	var nearBoundary, farBoundary float64
	if dLon > 0 {
		nearBoundary = -180.0
		farBoundary = 180.0
	} else {
		nearBoundary = 180.0
		farBoundary = -180.0
	}

	// Fraction of the wrapped (actual) angular distance covered before
	// reaching the boundary.
	wrapped := 360.0 - math.Abs(dLon)
	distToBoundary := math.Abs(nearBoundary - a.Lon())
	t := 0.5
	if wrapped > 0 {
		t = distToBoundary / wrapped
	}
	crossLat := a.Lat() + t*(b.Lat()-a.Lat())

	return []PathSegment{
		{a, LonLat{nearBoundary, crossLat}},
		{LonLat{farBoundary, crossLat}, b},
	}
}

// SplitPath folds SplitSegment over a polyline, starting a new segment each
// time the path crosses the antimeridian. Input runs of fewer than two
// vertices yield no segments.
func SplitPath(points []LonLat) []PathSegment {
	if len(points) < 2 {
		return nil
	}

	segments := make([]PathSegment, 0, 1)
	current := PathSegment{points[0]}

	for i := 1; i < len(points); i++ {
		parts := SplitSegment(points[i-1], points[i])
		if len(parts) == 1 {
			current = append(current, points[i])
			continue
		}
		// Crossing: close out the current run at the near boundary and
		// begin a new run at the far boundary.
		current = append(current, parts[0][1])
		segments = append(segments, current)
		current = PathSegment{parts[1][0], points[i]}
	}

	segments = append(segments, current)
	return segments
}
