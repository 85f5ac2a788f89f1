package model

import (
	"time"

	"github.com/google/uuid"
)

type Slot struct {
	Id            uuid.UUID  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ItineraryId   uuid.UUID  `gorm:"type:uuid;not null;index:idx_slots_itinerary_day,priority:1"`
	DayIndex      int        `gorm:"not null;index:idx_slots_itinerary_day,priority:2"`
	SequenceIndex int        `gorm:"not null"`
	ActivityRef   string     `gorm:"type:varchar(255);not null"`
	ActivityName  string     `gorm:"type:varchar(255)"`
	Category      string     `gorm:"type:varchar(100);not null"`
	Vibe          string     `gorm:"type:varchar(100)"`
	Outdoor       bool       `gorm:"not null;default:false"`
	Lat           float64    `gorm:"not null"`
	Lng           float64    `gorm:"not null"`
	StartAt       time.Time  `gorm:"not null"`
	EndAt         time.Time  `gorm:"not null"`
	EnergyCost    int        `gorm:"not null;default:0"`
	IsShared      bool       `gorm:"not null;default:true"`
	OwnerMemberId *uuid.UUID `gorm:"type:uuid;index"`
	Version       int64      `gorm:"not null;default:1"`
	CreatedAt     time.Time  `gorm:"autoCreateTime"`
	UpdatedAt     time.Time  `gorm:"autoUpdateTime"`
}

func (Slot) TableName() string {
	return "itinerary_slots"
}
