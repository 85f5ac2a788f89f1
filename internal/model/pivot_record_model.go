package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type PivotRecord struct {
	Id                  uuid.UUID      `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	ItineraryId         uuid.UUID      `gorm:"type:uuid;not null;index"`
	AffectedSlotId      uuid.UUID      `gorm:"type:uuid;not null;index"`
	OriginatingMemberId uuid.UUID      `gorm:"type:uuid"`
	Source              string         `gorm:"type:varchar(50);not null"`
	Result              string         `gorm:"type:varchar(50);not null"`
	RoutingDecision     string         `gorm:"type:varchar(50);not null"`
	Status              string         `gorm:"type:varchar(20);not null;index"`
	Degraded            bool           `gorm:"not null;default:false"`
	Trigger             datatypes.JSON `gorm:"type:jsonb"`
	Change              datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt           time.Time      `gorm:"autoCreateTime"`
	ResolvedAt          *time.Time
}

func (PivotRecord) TableName() string {
	return "pivot_records"
}
