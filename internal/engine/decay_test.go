package engine_test

import (
	"testing"
	"time"

	"github.com/engramlabs/engram/internal/engine"
)

func TestDecayedImportanceValidRange(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name        string
		importance  float64
		ageDays     int
		accessCount int
	}{
		{"fresh", 0.5, 0, 0},
		{"one_week", 0.5, 7, 0},
		{"one_month", 0.5, 30, 3},
		{"one_year", 1.0, 365, 0},
		{"ancient_heavy_access", 0.9, 1000, 500},
		{"minimum", 0.1, 1000, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			createdAt := now.AddDate(0, 0, -tc.ageDays)
			got := engine.DecayedImportance(tc.importance, createdAt, tc.accessCount, nil, now)
			if got < 0.1 || got > 1.0 {
				t.Errorf("DecayedImportance = %f outside [0.1, 1.0]", got)
			}
		})
	}
}

// Older untouched memories score lower, apart from the 7-day floor.
func TestDecayedImportanceMonotonic(t *testing.T) {
	now := time.Now()
	prev := 2.0
	for _, ageDays := range []int{8, 30, 90, 365, 1000} {
		createdAt := now.AddDate(0, 0, -ageDays)
		got := engine.DecayedImportance(0.8, createdAt, 0, nil, now)
		if got > prev {
			t.Errorf("decay increased at age %d days: %f > %f", ageDays, got, prev)
		}
		prev = got
	}
}

func TestDecayedImportanceAccessBoost(t *testing.T) {
	now := time.Now()
	createdAt := now.AddDate(0, 0, -60)

	unaccessed := engine.DecayedImportance(0.5, createdAt, 0, nil, now)
	accessed := engine.DecayedImportance(0.5, createdAt, 5, nil, now)
	if accessed <= unaccessed {
		t.Errorf("access count did not boost decayed importance: %f <= %f", accessed, unaccessed)
	}

	// The boost caps at 0.3, so 15 and 100 accesses score the same.
	capped := engine.DecayedImportance(0.5, createdAt, 15, nil, now)
	beyond := engine.DecayedImportance(0.5, createdAt, 100, nil, now)
	if capped != beyond {
		t.Errorf("access boost exceeded cap: %f vs %f", capped, beyond)
	}
}

func TestDecayedImportanceRecencyFloor(t *testing.T) {
	now := time.Now()
	createdAt := now.AddDate(0, 0, -1)

	got := engine.DecayedImportance(0.1, createdAt, 0, nil, now)
	if got != 0.3 {
		t.Errorf("week-old low-importance memory not floored: got %f, want 0.3", got)
	}

	// Past the window, the floor no longer applies.
	old := now.AddDate(0, 0, -8)
	got = engine.DecayedImportance(0.1, old, 0, nil, now)
	if got >= 0.3 {
		t.Errorf("floor applied outside the recency window: %f", got)
	}
}

// A recent access resets the decay clock even for old memories.
func TestDecayedImportanceUsesLastAccess(t *testing.T) {
	now := time.Now()
	createdAt := now.AddDate(0, 0, -300)
	accessedAt := now.AddDate(0, 0, -1)

	neglected := engine.DecayedImportance(0.8, createdAt, 1, nil, now)
	refreshed := engine.DecayedImportance(0.8, createdAt, 1, &accessedAt, now)
	if refreshed <= neglected {
		t.Errorf("recent access did not slow decay: %f <= %f", refreshed, neglected)
	}
}

func TestDecayedImportanceReproducible(t *testing.T) {
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	createdAt := now.AddDate(0, 0, -45)
	accessedAt := now.AddDate(0, 0, -10)

	first := engine.DecayedImportance(0.7, createdAt, 4, &accessedAt, now)
	second := engine.DecayedImportance(0.7, createdAt, 4, &accessedAt, now)
	if first != second {
		t.Errorf("decay is not reproducible: %f vs %f", first, second)
	}
}
