package mapper

import (
	"encoding/json"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/model"

	"gorm.io/datatypes"
)

type PivotMapper struct{}

func NewPivotMapper() *PivotMapper {
	return &PivotMapper{}
}

func (m *PivotMapper) ToEntity(p *model.PivotRecord) *entity.PivotRecord {
	if p == nil {
		return nil
	}
	return &entity.PivotRecord{
		Id:                  p.Id,
		ItineraryId:         p.ItineraryId,
		AffectedSlotId:      p.AffectedSlotId,
		OriginatingMemberId: p.OriginatingMemberId,
		Source:              p.Source,
		Result:              p.Result,
		RoutingDecision:     p.RoutingDecision,
		Status:              entity.PivotStatus(p.Status),
		Degraded:            p.Degraded,
		Trigger:             json.RawMessage(p.Trigger),
		Change:              json.RawMessage(p.Change),
		CreatedAt:           p.CreatedAt,
		ResolvedAt:          p.ResolvedAt,
	}
}

func (m *PivotMapper) ToModel(p *entity.PivotRecord) *model.PivotRecord {
	if p == nil {
		return nil
	}
	return &model.PivotRecord{
		Id:                  p.Id,
		ItineraryId:         p.ItineraryId,
		AffectedSlotId:      p.AffectedSlotId,
		OriginatingMemberId: p.OriginatingMemberId,
		Source:              p.Source,
		Result:              p.Result,
		RoutingDecision:     p.RoutingDecision,
		Status:              string(p.Status),
		Degraded:            p.Degraded,
		Trigger:             datatypes.JSON(p.Trigger),
		Change:              datatypes.JSON(p.Change),
		CreatedAt:           p.CreatedAt,
		ResolvedAt:          p.ResolvedAt,
	}
}

func (m *PivotMapper) ToEntities(records []*model.PivotRecord) []*entity.PivotRecord {
	entities := make([]*entity.PivotRecord, len(records))
	for i, r := range records {
		entities[i] = m.ToEntity(r)
	}
	return entities
}
