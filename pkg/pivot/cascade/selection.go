package cascade

import (
	"trip-pivot-be/internal/entity"
	"trip-pivot-be/pkg/geo"
	"trip-pivot-be/pkg/pivot/trigger"
)

// choose picks one alternative for slot out of entry according to pref. It
// never returns the slot's own activity.
func choose(entry *entity.FallbackEntry, pref trigger.Preference, slot *entity.Slot, near geo.Point) *entity.Candidate {
	if entry.IsEmpty() {
		return nil
	}
	valid := func(c *entity.Candidate) bool {
		return c != nil && c.ActivityRef != "" && c.ActivityRef != slot.ActivityRef
	}

	switch pref {
	case trigger.PreferIndoor:
		if slot.Outdoor && valid(entry.Indoor) {
			return copyOf(entry.Indoor)
		}
		for i := range entry.Adjacent {
			if entry.Adjacent[i].Indoor && valid(&entry.Adjacent[i]) {
				return copyOf(&entry.Adjacent[i])
			}
		}
	case trigger.PreferOpposite:
		if valid(entry.Opposite) {
			return copyOf(entry.Opposite)
		}
	case trigger.PreferLowEnergy:
		return lowest(entry.Alternatives(), slot)
	case trigger.PreferNearest:
		if c := nearest(entry.Adjacent, slot, near); c != nil {
			return c
		}
		return nearest(entry.Alternatives(), slot, near)
	}

	for _, alt := range entry.Alternatives() {
		a := alt
		if valid(&a) {
			return &a
		}
	}
	return nil
}

func lowest(alts []entity.Candidate, slot *entity.Slot) *entity.Candidate {
	var best *entity.Candidate
	for i := range alts {
		if alts[i].ActivityRef == slot.ActivityRef || alts[i].ActivityRef == "" {
			continue
		}
		if best == nil || alts[i].EnergyCost < best.EnergyCost {
			best = &alts[i]
		}
	}
	return copyOf(best)
}

func nearest(alts []entity.Candidate, slot *entity.Slot, near geo.Point) *entity.Candidate {
	var best *entity.Candidate
	bestDistance := 0.0
	for i := range alts {
		if alts[i].ActivityRef == slot.ActivityRef || alts[i].ActivityRef == "" {
			continue
		}
		d := geo.DistanceMeters(near, alts[i].Point())
		if best == nil || d < bestDistance {
			best = &alts[i]
			bestDistance = d
		}
	}
	return copyOf(best)
}

// entryFromSearch shapes on-demand search results like a precomputed entry so
// the same preference rules apply.
func entryFromSearch(slot *entity.Slot, results []entity.Candidate) *entity.FallbackEntry {
	entry := &entity.FallbackEntry{SlotId: slot.Id, SourceActivityRef: slot.ActivityRef}
	for i := range results {
		c := results[i]
		if c.ActivityRef == slot.ActivityRef || c.ActivityRef == "" {
			continue
		}
		switch {
		case c.Indoor && entry.Indoor == nil && slot.Outdoor:
			entry.Indoor = &c
		case c.Category != slot.Category && entry.Opposite == nil:
			entry.Opposite = &c
		default:
			entry.Adjacent = append(entry.Adjacent, c)
		}
	}
	return entry
}

func preferenceFor(kind DependencyKind) trigger.Preference {
	switch kind {
	case DependencyProximity:
		return trigger.PreferNearest
	case DependencyEnergy:
		return trigger.PreferLowEnergy
	}
	return trigger.PreferAdjacent
}

func copyOf(c *entity.Candidate) *entity.Candidate {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}
