// Package geo computes the shrinking play boundary and per-player
// movement statistics from GPS samples.
package geo

const (
	initialBoundaryMeters = 1000.0
	minBoundaryMeters     = 100.0

	// The boundary holds at full size until this fraction of the chase
	// duration has elapsed, then shrinks linearly to the minimum.
	shrinkStartFraction = 0.7
)

// BattleZoneRadiusMeters returns the current radius of the play boundary.
// phaseEndsAtMs is the epoch-millisecond deadline of the CHASE phase,
// chaseSeconds its total duration and nowMs the current time. The second
// return value is false when geofencing is inactive (no deadline or a
// non-positive duration).
func BattleZoneRadiusMeters(phaseEndsAtMs int64, chaseSeconds int, nowMs int64) (float64, bool) {
	if phaseEndsAtMs == 0 || chaseSeconds <= 0 {
		return 0, false
	}

	totalMs := int64(chaseSeconds) * 1000
	elapsedMs := nowMs - (phaseEndsAtMs - totalMs)

	// Not yet started counts as full radius.
	if elapsedMs < 0 {
		return initialBoundaryMeters, true
	}
	if nowMs >= phaseEndsAtMs {
		return minBoundaryMeters, true
	}

	shrinkStartMs := float64(totalMs) * shrinkStartFraction
	if float64(elapsedMs) <= shrinkStartMs {
		return initialBoundaryMeters, true
	}

	frac := (float64(elapsedMs) - shrinkStartMs) / (float64(totalMs) - shrinkStartMs)
	radius := initialBoundaryMeters - (initialBoundaryMeters-minBoundaryMeters)*frac
	if radius < minBoundaryMeters {
		radius = minBoundaryMeters
	}
	return radius, true
}
