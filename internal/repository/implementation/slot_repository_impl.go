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

type SlotRepositoryImpl struct {
	db     *gorm.DB
	mapper *mapper.SlotMapper
}

func NewSlotRepository(db *gorm.DB) contract.SlotRepository {
	return &SlotRepositoryImpl{
		db:     db,
		mapper: mapper.NewSlotMapper(),
	}
}

func (r *SlotRepositoryImpl) applySpecifications(db *gorm.DB, specs ...specification.Specification) *gorm.DB {
	for _, spec := range specs {
		db = spec.Apply(db)
	}
	return db
}

func (r *SlotRepositoryImpl) Create(ctx context.Context, slot *entity.Slot) error {
	m := r.mapper.ToModel(slot)
	if m.Version == 0 {
		m.Version = 1
	}
	if err := r.db.WithContext(ctx).Create(m).Error; err != nil {
		return err
	}
	*slot = *r.mapper.ToEntity(m)
	return nil
}

func (r *SlotRepositoryImpl) findOne(db *gorm.DB, specs ...specification.Specification) (*entity.Slot, error) {
	var m model.Slot
	if err := r.applySpecifications(db, specs...).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return r.mapper.ToEntity(&m), nil
}

func (r *SlotRepositoryImpl) FindById(ctx context.Context, itineraryId, slotId uuid.UUID) (*entity.Slot, error) {
	return r.findOne(r.db.WithContext(ctx), specification.ByID{ID: slotId}, specification.ByItinerary{ItineraryID: itineraryId})
}

func (r *SlotRepositoryImpl) FindByItinerary(ctx context.Context, itineraryId uuid.UUID) ([]*entity.Slot, error) {
	var models []*model.Slot
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.ByItinerary{ItineraryID: itineraryId},
		specification.Chronological{},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *SlotRepositoryImpl) FindStartingBetween(ctx context.Context, from, to time.Time) ([]*entity.Slot, error) {
	var models []*model.Slot
	query := r.applySpecifications(r.db.WithContext(ctx),
		specification.StartsBetween{From: from, To: to},
		specification.OrderBy{Field: "start_at"},
	)
	if err := query.Find(&models).Error; err != nil {
		return nil, err
	}
	return r.mapper.ToEntities(models), nil
}

func (r *SlotRepositoryImpl) ItineraryIds(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).Model(&model.Slot{}).Distinct().Pluck("itinerary_id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}

func (r *SlotRepositoryImpl) CompareAndSwap(ctx context.Context, change entity.SlotChange) (*entity.Slot, error) {
	return r.swap(r.db.WithContext(ctx), change)
}

func (r *SlotRepositoryImpl) CompareAndSwapAll(ctx context.Context, changes []entity.SlotChange) ([]*entity.Slot, error) {
	if id, ok := entity.RepeatedSlot(changes); ok {
		return nil, perr.RepeatedSlot(id)
	}

	var updated []*entity.Slot
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, change := range changes {
			slot, err := r.swap(tx, change)
			if err != nil {
				return err
			}
			updated = append(updated, slot)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *SlotRepositoryImpl) swap(db *gorm.DB, change entity.SlotChange) (*entity.Slot, error) {
	c := change.NewActivity
	res := r.applySpecifications(db.Model(&model.Slot{}),
		specification.ByID{ID: change.SlotId},
		specification.ByItinerary{ItineraryID: change.ItineraryId},
		specification.AtVersion{Version: change.ExpectedVersion},
	).Updates(map[string]interface{}{
		"activity_ref":  c.ActivityRef,
		"activity_name": c.Name,
		"category":      c.Category,
		"vibe":          c.Vibe,
		"outdoor":       !c.Indoor,
		"lat":           c.Lat,
		"lng":           c.Lng,
		"energy_cost":   c.EnergyCost,
		"version":       gorm.Expr("version + 1"),
		"updated_at":    time.Now(),
	})
	if res.Error != nil {
		return nil, res.Error
	}

	current, err := r.findOne(db, specification.ByID{ID: change.SlotId}, specification.ByItinerary{ItineraryID: change.ItineraryId})
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, fmt.Errorf("slot %s: %w", change.SlotId, perr.ErrNotFound)
	}
	if res.RowsAffected == 0 {
		return nil, &perr.VersionConflictError{
			SlotId:          change.SlotId,
			ExpectedVersion: change.ExpectedVersion,
			ActualVersion:   current.Version,
		}
	}
	return current, nil
}
