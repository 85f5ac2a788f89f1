package implementation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/mapper"
	"trip-pivot-be/internal/model"
	"trip-pivot-be/internal/repository/contract"
	"trip-pivot-be/internal/repository/specification"
	"trip-pivot-be/pkg/pivot/perr"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PivotRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.PivotMapper
}

func NewPivotRepository(db *gorm.DB) contract.PivotRepository {
	return &PivotRepositoryImpl{
		db:     db,
		mapper: mapper.NewPivotMapper(),
	}
}

func (r *PivotRepositoryImpl) Create(ctx context.Context, record *entity.PivotRecord) error {
	m := r.mapper.ToModel(record)
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*record = *r.mapper.ToEntity(m)
	return nil
}

func (r *PivotRepositoryImpl) FindById(ctx context.Context, id uuid.UUID) (*entity.PivotRecord, error) {
	var m model.PivotRecord
	if err := (specification.ByID{ID: id}).Apply(r.db.WithContext(ctx)).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *PivotRepositoryImpl) FindByItinerary(ctx context.Context, itineraryId uuid.UUID, limit int) ([]*entity.PivotRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []*model.PivotRecord
	db := r.db.WithContext(ctx)
	for _, spec := range []specification.Specification{
		specification.ByItinerary{ItineraryID: itineraryId},
		specification.OrderBy{Field: "created_at", Desc: true},
		specification.Pagination{Limit: limit},
	} {
		db = spec.Apply(db)
	}
	if err := db.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *PivotRepositoryImpl) FindByStatusBefore(ctx context.Context, status entity.PivotStatus, before time.Time, limit int) ([]*entity.PivotRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []*model.PivotRecord
	db := r.db.WithContext(ctx)
	for _, spec := range []specification.Specification{
		specification.ByStatus{Status: string(status)},
		specification.CreatedBefore{Before: before},
		specification.OrderBy{Field: "created_at"},
		specification.Pagination{Limit: limit},
	} {
		db = spec.Apply(db)
	}
	if err := db.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *PivotRepositoryImpl) UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.PivotStatus, at time.Time) error {
	db := specification.ByStatus{Status: string(from)}.Apply(
		specification.ByID{ID: id}.Apply(r.db.WithContext(ctx).Model(&model.PivotRecord{})),
	)
	updates := map[string]interface{}{"status": string(to)}
	if to != entity.PivotStatusPending && to != entity.PivotStatusWatching {
		updates["resolved_at"] = at
	}
	res := db.Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		existing, err := r.FindById(ctx, id)
		if err != nil {
			return err
		}
		if existing == nil {
			return fmt.Errorf("pivot %s: %w", id, perr.ErrNotFound)
		}
		return fmt.Errorf("pivot %s is %s: %w", id, existing.Status, perr.ErrAlreadyResolved)
	}
	return nil
}
