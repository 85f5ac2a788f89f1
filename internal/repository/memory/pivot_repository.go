package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/pkg/pivot/perr"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
)

// PivotRepository keeps pivot records for a day, which is longer than any
// member takes to answer a proposal.
type PivotRepository struct {
	cache *cache.Cache
	mu    sync.Mutex
}

func NewPivotRepository() *PivotRepository {
	return &PivotRepository{
		cache: cache.New(24*time.Hour, time.Hour),
	}
}

func (r *PivotRepository) Create(_ context.Context, record *entity.PivotRecord) error {
	if record.Id == uuid.Nil {
		record.Id = uuid.New()
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}
	stored := *record
	r.cache.Set(record.Id.String(), &stored, cache.DefaultExpiration)
	return nil
}

func (r *PivotRepository) FindById(_ context.Context, id uuid.UUID) (*entity.PivotRecord, error) {
	if x, found := r.cache.Get(id.String()); found {
		out := *x.(*entity.PivotRecord)
		return &out, nil
	}
	return nil, nil
}

func (r *PivotRepository) FindByItinerary(_ context.Context, itineraryId uuid.UUID, limit int) ([]*entity.PivotRecord, error) {
	var records []*entity.PivotRecord
	for _, item := range r.cache.Items() {
		rec := item.Object.(*entity.PivotRecord)
		if rec.ItineraryId == itineraryId {
			out := *rec
			records = append(records, &out)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.After(records[j].CreatedAt) })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *PivotRepository) FindByStatusBefore(_ context.Context, status entity.PivotStatus, before time.Time, limit int) ([]*entity.PivotRecord, error) {
	var records []*entity.PivotRecord
	for _, item := range r.cache.Items() {
		rec := item.Object.(*entity.PivotRecord)
		if rec.Status == status && rec.CreatedAt.Before(before) {
			out := *rec
			records = append(records, &out)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].CreatedAt.Before(records[j].CreatedAt) })
	if limit > 0 && len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (r *PivotRepository) UpdateStatus(_ context.Context, id uuid.UUID, from, to entity.PivotStatus, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	x, found := r.cache.Get(id.String())
	if !found {
		return fmt.Errorf("pivot %s: %w", id, perr.ErrNotFound)
	}
	current := x.(*entity.PivotRecord)
	if current.Status != from {
		return fmt.Errorf("pivot %s is %s: %w", id, current.Status, perr.ErrAlreadyResolved)
	}

	next := *current
	next.Status = to
	if to != entity.PivotStatusPending && to != entity.PivotStatusWatching {
		next.ResolvedAt = &at
	}
	r.cache.Set(id.String(), &next, cache.DefaultExpiration)
	return nil
}
