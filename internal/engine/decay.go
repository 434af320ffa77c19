package engine

import (
	"math"
	"time"
)

const (
	// decayRate gives roughly a 10% importance loss per month of neglect
	// (half-life around 230 days).
	decayRate = 0.003

	// reinforcementBoostPerAccess and reinforcementBoostCap bound the
	// access-count bonus applied on top of decayed importance.
	reinforcementBoostPerAccess = 0.02
	reinforcementBoostCap       = 0.3

	// recencyFloorWindow protects memories younger than a week from
	// decaying below recencyFloor.
	recencyFloorWindow = 7 * 24 * time.Hour
	recencyFloor       = 0.3
)

// DecayedImportance computes the current effective importance of a memory.
// Decay is exponential in days since the memory was last touched, falling
// back to its age when it has never been accessed. Pure: the same inputs
// always produce the same output, so batch decay passes and on-read scoring
// agree exactly.
func DecayedImportance(importance float64, createdAt time.Time, accessCount int, lastAccessedAt *time.Time, now time.Time) float64 {
	lastTouch := createdAt
	if lastAccessedAt != nil {
		lastTouch = *lastAccessedAt
	}

	days := now.Sub(lastTouch).Hours() / 24
	if days < 0 {
		days = 0
	}

	decayed := importance * math.Exp(-decayRate*days)

	boost := float64(accessCount) * reinforcementBoostPerAccess
	if boost > reinforcementBoostCap {
		boost = reinforcementBoostCap
	}
	decayed += boost
	if decayed > 1.0 {
		decayed = 1.0
	}

	if now.Sub(createdAt) < recencyFloorWindow && decayed < recencyFloor {
		decayed = recencyFloor
	}

	return clampImportance(decayed)
}
