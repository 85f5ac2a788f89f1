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

// SlotRepository keeps slots in process. Writes are serialized so that
// compare-and-swap behaves like the conditional UPDATE of the SQL store.
type SlotRepository struct {
	cache *cache.Cache
	mu    sync.Mutex
}

func NewSlotRepository() *SlotRepository {
	return &SlotRepository{
		cache: cache.New(cache.NoExpiration, 0),
	}
}

func (r *SlotRepository) Create(_ context.Context, slot *entity.Slot) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if slot.Id == uuid.Nil {
		slot.Id = uuid.New()
	}
	if slot.Version == 0 {
		slot.Version = 1
	}
	if slot.CreatedAt.IsZero() {
		slot.CreatedAt = time.Now()
	}
	stored := *slot
	r.cache.Set(slot.Id.String(), &stored, cache.NoExpiration)
	return nil
}

func (r *SlotRepository) get(slotId uuid.UUID) *entity.Slot {
	if x, found := r.cache.Get(slotId.String()); found {
		return x.(*entity.Slot)
	}
	return nil
}

func (r *SlotRepository) FindById(_ context.Context, itineraryId, slotId uuid.UUID) (*entity.Slot, error) {
	slot := r.get(slotId)
	if slot == nil || slot.ItineraryId != itineraryId {
		return nil, nil
	}
	out := *slot
	return &out, nil
}

func (r *SlotRepository) all(match func(*entity.Slot) bool) []*entity.Slot {
	var slots []*entity.Slot
	for _, item := range r.cache.Items() {
		slot := item.Object.(*entity.Slot)
		if match(slot) {
			out := *slot
			slots = append(slots, &out)
		}
	}
	return slots
}

func (r *SlotRepository) FindByItinerary(_ context.Context, itineraryId uuid.UUID) ([]*entity.Slot, error) {
	slots := r.all(func(s *entity.Slot) bool { return s.ItineraryId == itineraryId })
	sort.Slice(slots, func(i, j int) bool {
		a, b := slots[i], slots[j]
		if a.DayIndex != b.DayIndex {
			return a.DayIndex < b.DayIndex
		}
		if !a.StartAt.Equal(b.StartAt) {
			return a.StartAt.Before(b.StartAt)
		}
		return a.SequenceIndex < b.SequenceIndex
	})
	return slots, nil
}

func (r *SlotRepository) FindStartingBetween(_ context.Context, from, to time.Time) ([]*entity.Slot, error) {
	slots := r.all(func(s *entity.Slot) bool { return !s.StartAt.Before(from) && s.StartAt.Before(to) })
	sort.Slice(slots, func(i, j int) bool { return slots[i].StartAt.Before(slots[j].StartAt) })
	return slots, nil
}

func (r *SlotRepository) ItineraryIds(_ context.Context) ([]uuid.UUID, error) {
	seen := make(map[uuid.UUID]bool)
	var ids []uuid.UUID
	for _, slot := range r.all(func(*entity.Slot) bool { return true }) {
		if !seen[slot.ItineraryId] {
			seen[slot.ItineraryId] = true
			ids = append(ids, slot.ItineraryId)
		}
	}
	return ids, nil
}

func (r *SlotRepository) CompareAndSwap(_ context.Context, change entity.SlotChange) (*entity.Slot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.check(change); err != nil {
		return nil, err
	}
	return r.swap(change), nil
}

func (r *SlotRepository) CompareAndSwapAll(_ context.Context, changes []entity.SlotChange) ([]*entity.Slot, error) {
	if id, ok := entity.RepeatedSlot(changes); ok {
		return nil, perr.RepeatedSlot(id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, change := range changes {
		if err := r.check(change); err != nil {
			return nil, err
		}
	}
	updated := make([]*entity.Slot, 0, len(changes))
	for _, change := range changes {
		updated = append(updated, r.swap(change))
	}
	return updated, nil
}

func (r *SlotRepository) check(change entity.SlotChange) error {
	current := r.get(change.SlotId)
	if current == nil || current.ItineraryId != change.ItineraryId {
		return fmt.Errorf("slot %s: %w", change.SlotId, perr.ErrNotFound)
	}
	if current.Version != change.ExpectedVersion {
		return &perr.VersionConflictError{
			SlotId:          change.SlotId,
			ExpectedVersion: change.ExpectedVersion,
			ActualVersion:   current.Version,
		}
	}
	return nil
}

func (r *SlotRepository) swap(change entity.SlotChange) *entity.Slot {
	next := r.get(change.SlotId).WithActivity(change.NewActivity)
	now := time.Now()
	next.Version++
	next.UpdatedAt = &now
	r.cache.Set(next.Id.String(), next, cache.NoExpiration)

	out := *next
	return &out
}
