package cascade

import (
	"time"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/pkg/geo"

	"github.com/google/uuid"
)

type DependencyKind string

const (
	DependencyNone      DependencyKind = ""
	DependencyProximity DependencyKind = "proximity"
	DependencyMeal      DependencyKind = "meal_timing"
	DependencyEnergy    DependencyKind = "energy"
)

// Thresholds are the tunable inputs of the SlotDependency rules.
type Thresholds struct {
	ProximityThreshold time.Duration
	WalkingSpeedKmh    float64
	MealWindow         time.Duration
	DailyEnergyBudget  int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		ProximityThreshold: 20 * time.Minute,
		WalkingSpeedKmh:    4.5,
		MealWindow:         4 * time.Hour,
		DailyEnergyBudget:  10,
	}
}

// change describes how the affected slot is about to move.
type change struct {
	affected    *entity.Slot
	replacement *entity.Candidate
	startShift  time.Duration
	dayEnergy   int
}

func (c change) energyDelta() int {
	if c.replacement == nil {
		return 0
	}
	return c.replacement.EnergyCost - c.affected.EnergyCost
}

func (c change) effectiveStart() time.Time {
	return c.affected.StartAt.Add(c.startShift)
}

// resolver evaluates SlotDependency for one pass and memoizes by slot pair.
type resolver struct {
	thresholds Thresholds
	change     change
	memo       map[[2]uuid.UUID]DependencyKind
}

func newResolver(t Thresholds, c change) *resolver {
	return &resolver{thresholds: t, change: c, memo: make(map[[2]uuid.UUID]DependencyKind)}
}

// dependsOn tests candidate against the affected slot in the fixed order
// proximity, meal_timing, energy. The first match wins.
func (r *resolver) dependsOn(candidate *entity.Slot) DependencyKind {
	key := [2]uuid.UUID{r.change.affected.Id, candidate.Id}
	if kind, ok := r.memo[key]; ok {
		return kind
	}

	kind := DependencyNone
	switch {
	case r.proximity(candidate):
		kind = DependencyProximity
	case r.mealTiming(candidate):
		kind = DependencyMeal
	case r.energy(candidate):
		kind = DependencyEnergy
	}
	r.memo[key] = kind
	return kind
}

// proximity: the candidate was within walking threshold of the affected slot
// and the replacement takes the plan out of that range. With no known
// replacement the original closeness alone counts.
func (r *resolver) proximity(candidate *entity.Slot) bool {
	affected := r.change.affected
	speed := r.thresholds.WalkingSpeedKmh
	if geo.TransitTime(affected.Point(), candidate.Point(), speed) > r.thresholds.ProximityThreshold {
		return false
	}
	if r.change.replacement == nil {
		return true
	}
	return geo.TransitTime(r.change.replacement.Point(), candidate.Point(), speed) > r.thresholds.ProximityThreshold
}

func (r *resolver) mealTiming(candidate *entity.Slot) bool {
	if !r.change.affected.IsMeal() || !candidate.IsMeal() {
		return false
	}
	gap := candidate.StartAt.Sub(r.change.effectiveStart())
	if gap < 0 {
		gap = -gap
	}
	return gap <= r.thresholds.MealWindow
}

func (r *resolver) energy(candidate *entity.Slot) bool {
	if candidate.DayIndex != r.change.affected.DayIndex {
		return false
	}
	delta := r.change.energyDelta()
	return delta > 0 && r.change.dayEnergy+delta > r.thresholds.DailyEnergyBudget
}
