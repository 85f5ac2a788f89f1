package specification

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ByItinerary struct {
	ItineraryID uuid.UUID
}

func (s ByItinerary) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("itinerary_id = ?", s.ItineraryID)
}

// AtVersion matches rows still at the version the caller observed
type AtVersion struct {
	Version int64
}

func (s AtVersion) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("version = ?", s.Version)
}

// StartsBetween filters slots whose start time is in [From, To)
type StartsBetween struct {
	From time.Time
	To   time.Time
}

func (s StartsBetween) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("start_at >= ? AND start_at < ?", s.From, s.To)
}

// Chronological orders slots the way the cascade scan walks them
type Chronological struct{}

func (s Chronological) Apply(db *gorm.DB) *gorm.DB {
	return db.Order("day_index ASC").Order("start_at ASC").Order("sequence_index ASC")
}

type BySlot struct {
	SlotID uuid.UUID
}

func (s BySlot) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("slot_id = ?", s.SlotID)
}

type BySlots struct {
	SlotIDs []uuid.UUID
}

func (s BySlots) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("slot_id IN ?", s.SlotIDs)
}

type ByStatus struct {
	Status string
}

func (s ByStatus) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("status = ?", s.Status)
}

type CreatedBefore struct {
	Before time.Time
}

func (s CreatedBefore) Apply(db *gorm.DB) *gorm.DB {
	return db.Where("created_at < ?", s.Before)
}
