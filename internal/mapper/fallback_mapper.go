package mapper

import (
	"encoding/json"
	"fmt"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/model"

	"gorm.io/datatypes"
)

type FallbackMapper struct{}

func NewFallbackMapper() *FallbackMapper {
	return &FallbackMapper{}
}

func (m *FallbackMapper) ToEntity(f *model.FallbackEntry) (*entity.FallbackEntry, error) {
	if f == nil {
		return nil, nil
	}

	e := &entity.FallbackEntry{
		SlotId:            f.SlotId,
		SourceActivityRef: f.SourceActivityRef,
		BuiltAt:           f.BuiltAt,
	}
	if len(f.Adjacent) > 0 {
		if err := json.Unmarshal(f.Adjacent, &e.Adjacent); err != nil {
			return nil, fmt.Errorf("failed to decode adjacent candidates of slot %s: %w", f.SlotId, err)
		}
	}
	var err error
	if e.Opposite, err = decodeCandidate(f.Opposite); err != nil {
		return nil, fmt.Errorf("failed to decode opposite candidate of slot %s: %w", f.SlotId, err)
	}
	if e.Indoor, err = decodeCandidate(f.Indoor); err != nil {
		return nil, fmt.Errorf("failed to decode indoor candidate of slot %s: %w", f.SlotId, err)
	}
	return e, nil
}

func (m *FallbackMapper) ToModel(e *entity.FallbackEntry) (*model.FallbackEntry, error) {
	if e == nil {
		return nil, nil
	}

	adjacent := e.Adjacent
	if adjacent == nil {
		adjacent = []entity.Candidate{}
	}
	adjacentJSON, err := json.Marshal(adjacent)
	if err != nil {
		return nil, err
	}

	f := &model.FallbackEntry{
		SlotId:            e.SlotId,
		SourceActivityRef: e.SourceActivityRef,
		Adjacent:          datatypes.JSON(adjacentJSON),
		BuiltAt:           e.BuiltAt,
	}
	if e.Opposite != nil {
		b, err := json.Marshal(e.Opposite)
		if err != nil {
			return nil, err
		}
		f.Opposite = datatypes.JSON(b)
	}
	if e.Indoor != nil {
		b, err := json.Marshal(e.Indoor)
		if err != nil {
			return nil, err
		}
		f.Indoor = datatypes.JSON(b)
	}
	return f, nil
}

func decodeCandidate(raw datatypes.JSON) (*entity.Candidate, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var c entity.Candidate
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
