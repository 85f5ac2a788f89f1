package entity

import (
	"sort"
	"strings"
	"time"

	"trip-pivot-be/pkg/geo"

	"github.com/google/uuid"
)

// Slot is one scheduled activity of an itinerary. Version is bumped by every
// successful mutation and is the token for optimistic concurrency.
type Slot struct {
	Id            uuid.UUID
	ItineraryId   uuid.UUID
	DayIndex      int
	SequenceIndex int
	ActivityRef   string
	ActivityName  string
	Category      string
	Vibe          string
	Outdoor       bool
	Lat           float64
	Lng           float64
	StartAt       time.Time
	EndAt         time.Time
	EnergyCost    int
	IsShared      bool
	OwnerMemberId *uuid.UUID
	Version       int64
	CreatedAt     time.Time
	UpdatedAt     *time.Time
}

var mealCategories = map[string]bool{
	"meal":       true,
	"breakfast":  true,
	"brunch":     true,
	"lunch":      true,
	"dinner":     true,
	"restaurant": true,
}

func (s *Slot) IsMeal() bool {
	return mealCategories[strings.ToLower(s.Category)]
}

func (s *Slot) Point() geo.Point {
	return geo.Point{Lat: s.Lat, Lng: s.Lng}
}

// IsPersonalTo reports whether the slot is unshared and owned by memberId.
func (s *Slot) IsPersonalTo(memberId uuid.UUID) bool {
	return !s.IsShared && s.OwnerMemberId != nil && *s.OwnerMemberId == memberId
}

// ItinerarySnapshot is an immutable read of every slot of one itinerary.
type ItinerarySnapshot struct {
	ItineraryId uuid.UUID
	Slots       []*Slot
	ReadAt      time.Time
}

func NewItinerarySnapshot(itineraryId uuid.UUID, slots []*Slot, readAt time.Time) *ItinerarySnapshot {
	ordered := make([]*Slot, len(slots))
	copy(ordered, slots)
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.DayIndex != b.DayIndex {
			return a.DayIndex < b.DayIndex
		}
		if !a.StartAt.Equal(b.StartAt) {
			return a.StartAt.Before(b.StartAt)
		}
		return a.SequenceIndex < b.SequenceIndex
	})
	return &ItinerarySnapshot{ItineraryId: itineraryId, Slots: ordered, ReadAt: readAt}
}

func (s *ItinerarySnapshot) Slot(id uuid.UUID) *Slot {
	for _, slot := range s.Slots {
		if slot.Id == id {
			return slot
		}
	}
	return nil
}

// Day returns the slots of one day in chronological order.
func (s *ItinerarySnapshot) Day(dayIndex int) []*Slot {
	var day []*Slot
	for _, slot := range s.Slots {
		if slot.DayIndex == dayIndex {
			day = append(day, slot)
		}
	}
	return day
}

// After returns the slots strictly after the given one on the same day.
func (s *ItinerarySnapshot) After(slot *Slot) []*Slot {
	day := s.Day(slot.DayIndex)
	for i, candidate := range day {
		if candidate.Id == slot.Id {
			return day[i+1:]
		}
	}
	return nil
}

func (s *ItinerarySnapshot) DayEnergy(dayIndex int) int {
	total := 0
	for _, slot := range s.Day(dayIndex) {
		total += slot.EnergyCost
	}
	return total
}

// SlotChange swaps the activity of one slot, provided it is still at
// ExpectedVersion.
type SlotChange struct {
	ItineraryId     uuid.UUID
	SlotId          uuid.UUID
	ExpectedVersion int64
	NewActivity     Candidate
}

// RepeatedSlot reports the first slot named by more than one change.
func RepeatedSlot(changes []SlotChange) (uuid.UUID, bool) {
	seen := make(map[uuid.UUID]bool, len(changes))
	for _, c := range changes {
		if seen[c.SlotId] {
			return c.SlotId, true
		}
		seen[c.SlotId] = true
	}
	return uuid.Nil, false
}

// WithActivity returns a copy of the slot pointing at c. Time window,
// position, sharing and version are left alone.
func (s *Slot) WithActivity(c Candidate) *Slot {
	next := *s
	next.ActivityRef = c.ActivityRef
	next.ActivityName = c.Name
	next.Category = c.Category
	next.Vibe = c.Vibe
	next.Outdoor = !c.Indoor
	next.Lat = c.Lat
	next.Lng = c.Lng
	next.EnergyCost = c.EnergyCost
	return &next
}
