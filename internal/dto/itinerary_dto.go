package dto

import (
	"time"

	"github.com/google/uuid"
)

// SlotResponse is the read view of a slot. Clients send Version back as the
// expected version of any change they make.
type SlotResponse struct {
	Id            uuid.UUID  `json:"id"`
	ItineraryId   uuid.UUID  `json:"itinerary_id"`
	DayIndex      int        `json:"day_index"`
	SequenceIndex int        `json:"sequence_index"`
	ActivityRef   string     `json:"activity_ref"`
	ActivityName  string     `json:"activity_name"`
	Category      string     `json:"category"`
	Vibe          string     `json:"vibe"`
	Outdoor       bool       `json:"outdoor"`
	Lat           float64    `json:"lat"`
	Lng           float64    `json:"lng"`
	StartAt       time.Time  `json:"start_at"`
	EndAt         time.Time  `json:"end_at"`
	EnergyCost    int        `json:"energy_cost"`
	IsShared      bool       `json:"is_shared"`
	OwnerMemberId *uuid.UUID `json:"owner_member_id"`
	Version       int64      `json:"version"`
}

type RebuildFallbacksResponse struct {
	ItineraryId uuid.UUID `json:"itinerary_id"`
	Slots       int       `json:"slots"`
	Rebuilt     int       `json:"rebuilt"`
	Failed      int       `json:"failed"`
}
