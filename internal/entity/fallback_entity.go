package entity

import (
	"time"

	"trip-pivot-be/pkg/geo"

	"github.com/google/uuid"
)

// Candidate is an activity the candidate store can offer in place of a slot.
type Candidate struct {
	ActivityRef string  `json:"activity_ref"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	Vibe        string  `json:"vibe"`
	Indoor      bool    `json:"indoor"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	EnergyCost  int     `json:"energy_cost"`
	Score       float64 `json:"score"`
}

func (c *Candidate) Point() geo.Point {
	return geo.Point{Lat: c.Lat, Lng: c.Lng}
}

// FallbackEntry holds the precomputed alternatives of one slot. It is only
// valid while the slot still points at SourceActivityRef.
type FallbackEntry struct {
	SlotId            uuid.UUID
	SourceActivityRef string
	Adjacent          []Candidate
	Opposite          *Candidate
	Indoor            *Candidate
	BuiltAt           time.Time
}

func (e *FallbackEntry) IsFreshFor(slot *Slot) bool {
	return e != nil && slot != nil && e.SlotId == slot.Id && e.SourceActivityRef == slot.ActivityRef
}

// Alternatives lists every candidate in preference order: adjacent, opposite, indoor.
func (e *FallbackEntry) Alternatives() []Candidate {
	if e == nil {
		return nil
	}
	alts := make([]Candidate, 0, len(e.Adjacent)+2)
	alts = append(alts, e.Adjacent...)
	if e.Opposite != nil {
		alts = append(alts, *e.Opposite)
	}
	if e.Indoor != nil {
		alts = append(alts, *e.Indoor)
	}
	return alts
}

func (e *FallbackEntry) Find(activityRef string) *Candidate {
	for _, alt := range e.Alternatives() {
		if alt.ActivityRef == activityRef {
			c := alt
			return &c
		}
	}
	return nil
}

func (e *FallbackEntry) IsEmpty() bool {
	return e == nil || (len(e.Adjacent) == 0 && e.Opposite == nil && e.Indoor == nil)
}
