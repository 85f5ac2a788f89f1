package mapper

import (
	"time"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/model"
)

type SlotMapper struct{}

func NewSlotMapper() *SlotMapper {
	return &SlotMapper{}
}

func (m *SlotMapper) ToEntity(s *model.Slot) *entity.Slot {
	if s == nil {
		return nil
	}

	var updatedAt *time.Time
	if !s.UpdatedAt.IsZero() {
		t := s.UpdatedAt
		updatedAt = &t
	}

	return &entity.Slot{
		Id:            s.Id,
		ItineraryId:   s.ItineraryId,
		DayIndex:      s.DayIndex,
		SequenceIndex: s.SequenceIndex,
		ActivityRef:   s.ActivityRef,
		ActivityName:  s.ActivityName,
		Category:      s.Category,
		Vibe:          s.Vibe,
		Outdoor:       s.Outdoor,
		Lat:           s.Lat,
		Lng:           s.Lng,
		StartAt:       s.StartAt,
		EndAt:         s.EndAt,
		EnergyCost:    s.EnergyCost,
		IsShared:      s.IsShared,
		OwnerMemberId: s.OwnerMemberId,
		Version:       s.Version,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     updatedAt,
	}
}

func (m *SlotMapper) ToModel(s *entity.Slot) *model.Slot {
	if s == nil {
		return nil
	}

	var updatedAt time.Time
	if s.UpdatedAt != nil {
		updatedAt = *s.UpdatedAt
	}

	return &model.Slot{
		Id:            s.Id,
		ItineraryId:   s.ItineraryId,
		DayIndex:      s.DayIndex,
		SequenceIndex: s.SequenceIndex,
		ActivityRef:   s.ActivityRef,
		ActivityName:  s.ActivityName,
		Category:      s.Category,
		Vibe:          s.Vibe,
		Outdoor:       s.Outdoor,
		Lat:           s.Lat,
		Lng:           s.Lng,
		StartAt:       s.StartAt,
		EndAt:         s.EndAt,
		EnergyCost:    s.EnergyCost,
		IsShared:      s.IsShared,
		OwnerMemberId: s.OwnerMemberId,
		Version:       s.Version,
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     updatedAt,
	}
}

func (m *SlotMapper) ToEntities(slots []*model.Slot) []*entity.Slot {
	entities := make([]*entity.Slot, len(slots))
	for i, s := range slots {
		entities[i] = m.ToEntity(s)
	}
	return entities
}
