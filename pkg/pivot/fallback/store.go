package fallback

import (
	"context"
	"fmt"
	"time"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/pkg/pivot/perr"
	"trip-pivot-be/pkg/provider/candidate"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const module = "FallbackStore"

// EntryRepository persists precomputed entries.
type EntryRepository interface {
	FindBySlot(ctx context.Context, slotId uuid.UUID) (*entity.FallbackEntry, error)
	Upsert(ctx context.Context, entry *entity.FallbackEntry) error
	DeleteBySlot(ctx context.Context, slotId uuid.UUID) error
}

type Options struct {
	CacheTTL     time.Duration
	RadiusMeters int
	LookupLimit  int
	// ReadTimeout bounds a cache-miss read of a precomputed entry. The read
	// does not inherit the caller's deadline.
	ReadTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		CacheTTL:     24 * time.Hour,
		RadiusMeters: 1500,
		LookupLimit:  6,
		ReadTimeout:  250 * time.Millisecond,
	}
}

// Store is the Fallback Graph Store. Get only ever reads precomputed data;
// Rebuild is the only path that talks to the candidate store.
type Store struct {
	repo    EntryRepository
	source  candidate.Provider
	cache   *cache.Cache
	flight  singleflight.Group
	options Options
	logger  logger.ILogger
}

func NewStore(repo EntryRepository, source candidate.Provider, options Options, log logger.ILogger) *Store {
	if options.ReadTimeout <= 0 {
		options.ReadTimeout = DefaultOptions().ReadTimeout
	}
	return &Store{
		repo:    repo,
		source:  source,
		cache:   cache.New(options.CacheTTL, options.CacheTTL/4),
		options: options,
		logger:  log,
	}
}

// Get returns the fresh entry for the slot, or nil when there is none. A nil
// result means "cascade-capable but fallback-less".
func (s *Store) Get(ctx context.Context, slot *entity.Slot) *entity.FallbackEntry {
	if slot == nil {
		return nil
	}
	key := slot.Id.String()

	if x, found := s.cache.Get(key); found {
		entry := x.(*entity.FallbackEntry)
		if entry.IsFreshFor(slot) {
			return entry
		}
		return nil
	}

	// A trigger whose budget is already spent still gets its precomputed
	// entry; only the on-demand search is cut short.
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.options.ReadTimeout)
	defer cancel()
	entry, err := s.repo.FindBySlot(rctx, slot.Id)
	if err != nil {
		s.logger.Warn(module, "Fallback read failed, treating slot as fallback-less", map[string]interface{}{
			"slot_id": slot.Id,
			"error":   err.Error(),
		})
		return nil
	}
	if entry == nil {
		return nil
	}
	s.cache.Set(key, entry, cache.DefaultExpiration)
	if !entry.IsFreshFor(slot) {
		return nil
	}
	return entry
}

// Warm loads entries into the read cache without touching the candidate store.
func (s *Store) Warm(entries []*entity.FallbackEntry) {
	for _, entry := range entries {
		s.cache.Set(entry.SlotId.String(), entry, cache.DefaultExpiration)
	}
}

func (s *Store) Invalidate(ctx context.Context, slotId uuid.UUID) error {
	s.cache.Delete(slotId.String())
	return s.repo.DeleteBySlot(ctx, slotId)
}

// Rebuild queries the candidate store for the slot's current activity and
// replaces its entry. Concurrent rebuilds of the same slot share one lookup.
func (s *Store) Rebuild(ctx context.Context, slot *entity.Slot) (*entity.FallbackEntry, error) {
	key := slot.Id.String() + ":" + slot.ActivityRef
	v, err, _ := s.flight.Do(key, func() (interface{}, error) {
		return s.rebuild(ctx, slot)
	})
	if err != nil {
		return nil, err
	}
	return v.(*entity.FallbackEntry), nil
}

func (s *Store) rebuild(ctx context.Context, slot *entity.Slot) (*entity.FallbackEntry, error) {
	var adjacent, opposite, indoor []entity.Candidate

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		res, err := s.source.Lookup(gctx, AdjacentQuery(slot, s.options))
		adjacent = res
		return err
	})
	g.Go(func() error {
		res, err := s.source.Lookup(gctx, OppositeQuery(slot, s.options))
		opposite = res
		return err
	})
	if slot.Outdoor {
		g.Go(func() error {
			res, err := s.source.Lookup(gctx, IndoorQuery(slot, s.options))
			indoor = res
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, perr.Upstream("candidate store", err)
	}

	entry := BuildEntry(slot, adjacent, opposite, indoor, time.Now())
	if err := s.repo.Upsert(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to save fallback entry for slot %s: %w", slot.Id, err)
	}
	s.cache.Set(slot.Id.String(), entry, cache.DefaultExpiration)

	s.logger.Debug(module, "Fallback entry rebuilt", map[string]interface{}{
		"slot_id":  slot.Id,
		"adjacent": len(entry.Adjacent),
		"opposite": entry.Opposite != nil,
		"indoor":   entry.Indoor != nil,
	})
	return entry, nil
}

func AdjacentQuery(slot *entity.Slot, o Options) candidate.Query {
	return candidate.Query{
		Category:     slot.Category,
		Vibe:         slot.Vibe,
		Lat:          slot.Lat,
		Lng:          slot.Lng,
		RadiusMeters: o.RadiusMeters,
		Exclude:      []string{slot.ActivityRef},
		Limit:        o.LookupLimit,
	}
}

func OppositeQuery(slot *entity.Slot, o Options) candidate.Query {
	return candidate.Query{
		ExcludeCategory: slot.Category,
		ExcludeVibe:     slot.Vibe,
		Lat:             slot.Lat,
		Lng:             slot.Lng,
		RadiusMeters:    o.RadiusMeters,
		Exclude:         []string{slot.ActivityRef},
		Limit:           o.LookupLimit,
	}
}

func IndoorQuery(slot *entity.Slot, o Options) candidate.Query {
	indoor := true
	return candidate.Query{
		Category:     slot.Category,
		Indoor:       &indoor,
		Lat:          slot.Lat,
		Lng:          slot.Lng,
		RadiusMeters: o.RadiusMeters,
		Exclude:      []string{slot.ActivityRef},
		Limit:        o.LookupLimit,
	}
}

// BuildEntry picks at most 2 adjacent, 1 opposite and 1 indoor candidate. The
// slot's own activity never appears and no candidate is used twice.
func BuildEntry(slot *entity.Slot, adjacent, opposite, indoor []entity.Candidate, builtAt time.Time) *entity.FallbackEntry {
	used := map[string]bool{slot.ActivityRef: true}
	take := func(c entity.Candidate) bool {
		if c.ActivityRef == "" || used[c.ActivityRef] {
			return false
		}
		used[c.ActivityRef] = true
		return true
	}

	entry := &entity.FallbackEntry{
		SlotId:            slot.Id,
		SourceActivityRef: slot.ActivityRef,
		BuiltAt:           builtAt,
	}

	for _, c := range adjacent {
		if len(entry.Adjacent) == 2 {
			break
		}
		if take(c) {
			entry.Adjacent = append(entry.Adjacent, c)
		}
	}
	for _, c := range opposite {
		if c.Category == slot.Category && c.Vibe == slot.Vibe {
			continue
		}
		if take(c) {
			pick := c
			entry.Opposite = &pick
			break
		}
	}
	if slot.Outdoor {
		for _, c := range indoor {
			if !c.Indoor {
				continue
			}
			if take(c) {
				pick := c
				entry.Indoor = &pick
				break
			}
		}
	}
	return entry
}
