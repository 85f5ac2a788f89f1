package implementation

import (
	"context"
	"errors"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/mapper"
	"trip-pivot-be/internal/model"
	"trip-pivot-be/internal/repository/contract"
	"trip-pivot-be/internal/repository/specification"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type FallbackRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.FallbackMapper
}

func NewFallbackRepository(db *gorm.DB) contract.FallbackRepository {
	return &FallbackRepositoryImpl{
		db:     db,
		mapper: mapper.NewFallbackMapper(),
	}
}

func (r *FallbackRepositoryImpl) FindBySlot(ctx context.Context, slotId uuid.UUID) (*entity.FallbackEntry, error) {
	var m model.FallbackEntry
	query := specification.BySlot{SlotID: slotId}.Apply(r.db.WithContext(ctx))
	if err := query.First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m)
}

func (r *FallbackRepositoryImpl) FindBySlots(ctx context.Context, slotIds []uuid.UUID) ([]*entity.FallbackEntry, error) {
	if len(slotIds) == 0 {
		return nil, nil
	}
	var models []*model.FallbackEntry
	query := specification.BySlots{SlotIDs: slotIds}.Apply(r.db.WithContext(ctx))
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}

	entries := make([]*entity.FallbackEntry, 0, len(models))
	for _, m := range models {
		e, err := r.mapper.ToEntity(m)
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func (r *FallbackRepositoryImpl) Upsert(ctx context.Context, entry *entity.FallbackEntry) error {
	m, err := r.mapper.ToModel(entry)
	if err != nil {
		return err
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slot_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"source_activity_ref", "adjacent", "opposite", "indoor", "built_at", "updated_at"}),
	}).Create(m).Error
}

func (r *FallbackRepositoryImpl) DeleteBySlot(ctx context.Context, slotId uuid.UUID) error {
	return specification.BySlot{SlotID: slotId}.Apply(r.db.WithContext(ctx)).Delete(&model.FallbackEntry{}).Error
}
