// Package events detects latitude proximity events (equator crossings,
// latitude turning points) along a satellite's orbit and assigns each a
// smoothly fading glow intensity around the current simulated time.
//
// The detector samples the orbit over its own fade-driven window, independent
// of whatever display window the track sampler uses: an event's visibility
// must not depend on how long a track the user chose to draw.
package events

import (
	"math"
	"time"
)

// Intensity computes the glow strength for an event at signed offset delta
// from the current time (positive = future). It follows a cosine ease: 1
// exactly at the event instant, decaying to 0 at the edge of the applicable
// fade window. The second return is false when the event lies outside its
// window and must be filtered from output entirely.
//
// The two branches agree at delta = 0 (both give 1), so intensity is
// continuous as an event slides from future to past.
func Intensity(delta, fadeIn, fadeOut time.Duration) (float64, bool) {
	if delta > 0 {
		if fadeIn <= 0 || delta > fadeIn {
			return 0, false
		}
		return math.Cos(math.Pi / 2 * float64(delta) / float64(fadeIn)), true
	}

	abs := -delta
	if abs > fadeOut {
		return 0, false
	}
	if fadeOut <= 0 {
		// abs == 0 here: the event instant itself is always fully lit.
		return 1, true
	}
	return math.Cos(math.Pi / 2 * float64(abs) / float64(fadeOut)), true
}
