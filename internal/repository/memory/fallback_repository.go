package memory

import (
	"context"

	"trip-pivot-be/internal/entity"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

type FallbackRepository struct {
	cache *cache.Cache
}

func NewFallbackRepository() *FallbackRepository {
	return &FallbackRepository{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (r *FallbackRepository) FindBySlot(_ context.Context, slotId uuid.UUID) (*entity.FallbackEntry, error) {
	if x, found := r.cache.Get(slotId.String()); found {
		return x.(*entity.FallbackEntry), nil
	}
	return nil, nil
}

func (r *FallbackRepository) FindBySlots(ctx context.Context, slotIds []uuid.UUID) ([]*entity.FallbackEntry, error) {
	var entries []*entity.FallbackEntry
	for _, id := range slotIds {
		if e, _ := r.FindBySlot(ctx, id); e != nil {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func (r *FallbackRepository) Upsert(_ context.Context, entry *entity.FallbackEntry) error {
	r.cache.Set(entry.SlotId.String(), entry, cache.NoExpiration)
	return nil
}

func (r *FallbackRepository) DeleteBySlot(_ context.Context, slotId uuid.UUID) error {
	r.cache.Delete(slotId.String())
	return nil
}
