package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type FallbackEntry struct {
	SlotId            uuid.UUID      `gorm:"type:uuid;primaryKey"`
	SourceActivityRef string         `gorm:"type:varchar(255);not null"`
	Adjacent          datatypes.JSON `gorm:"type:jsonb;default:'[]'"`
	Opposite          datatypes.JSON `gorm:"type:jsonb"`
	Indoor            datatypes.JSON `gorm:"type:jsonb"`
	BuiltAt           time.Time      `gorm:"not null"`
	UpdatedAt         time.Time      `gorm:"autoUpdateTime"`
}

func (FallbackEntry) TableName() string {
	return "slot_fallback_entries"
}
