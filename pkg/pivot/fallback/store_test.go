package fallback

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/pkg/pivot/perr"
	"trip-pivot-be/pkg/provider/candidate"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type entryRepo struct {
	mu      sync.Mutex
	entries map[uuid.UUID]*entity.FallbackEntry
	err     error
	reads   int
}

func newEntryRepo() *entryRepo {
	return &entryRepo{entries: make(map[uuid.UUID]*entity.FallbackEntry)}
}

func (r *entryRepo) FindBySlot(ctx context.Context, slotId uuid.UUID) (*entity.FallbackEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reads++
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if r.err != nil {
		return nil, r.err
	}
	return r.entries[slotId], nil
}

func (r *entryRepo) Upsert(_ context.Context, entry *entity.FallbackEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[entry.SlotId] = entry
	return nil
}

func (r *entryRepo) DeleteBySlot(_ context.Context, slotId uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.entries, slotId)
	return nil
}

type stubProvider struct {
	calls    atomic.Int32
	err      error
	delay    time.Duration
	adjacent []entity.Candidate
	opposite []entity.Candidate
	indoor   []entity.Candidate
}

func (p *stubProvider) Lookup(_ context.Context, q candidate.Query) ([]entity.Candidate, error) {
	p.calls.Add(1)
	time.Sleep(p.delay)
	if p.err != nil {
		return nil, p.err
	}
	switch {
	case q.Indoor != nil:
		return p.indoor, nil
	case q.ExcludeCategory != "":
		return p.opposite, nil
	}
	return p.adjacent, nil
}

func parkSlot() *entity.Slot {
	return &entity.Slot{
		Id:          uuid.New(),
		ActivityRef: "park-1",
		Category:    "park",
		Vibe:        "calm",
		Outdoor:     true,
	}
}

func newTestStore(repo EntryRepository, source candidate.Provider) *Store {
	return NewStore(repo, source, Options{CacheTTL: time.Minute, RadiusMeters: 1000, LookupLimit: 5}, logger.NewNopLogger())
}

func TestBuildEntry(t *testing.T) {
	slot := parkSlot()

	entry := BuildEntry(slot,
		[]entity.Candidate{
			{ActivityRef: "park-1", Category: "park"},
			{ActivityRef: "park-2", Category: "park"},
			{ActivityRef: "park-3", Category: "park"},
			{ActivityRef: "park-4", Category: "park"},
		},
		[]entity.Candidate{
			{ActivityRef: "park-2", Category: "spa"},
			{ActivityRef: "park-5", Category: "park", Vibe: "calm"},
			{ActivityRef: "club-1", Category: "club", Vibe: "loud"},
		},
		[]entity.Candidate{
			{ActivityRef: "tent-1", Indoor: false},
			{ActivityRef: "hall-1", Indoor: true},
		},
		time.Now(),
	)

	require.Len(t, entry.Adjacent, 2)
	assert.Equal(t, "park-2", entry.Adjacent[0].ActivityRef)
	assert.Equal(t, "park-3", entry.Adjacent[1].ActivityRef)
	require.NotNil(t, entry.Opposite)
	assert.Equal(t, "club-1", entry.Opposite.ActivityRef)
	require.NotNil(t, entry.Indoor)
	assert.Equal(t, "hall-1", entry.Indoor.ActivityRef)
	assert.Nil(t, entry.Find(slot.ActivityRef))
}

func TestBuildEntry_IndoorOnlyForOutdoorSlots(t *testing.T) {
	slot := parkSlot()
	slot.Outdoor = false

	entry := BuildEntry(slot, nil, nil, []entity.Candidate{{ActivityRef: "hall-1", Indoor: true}}, time.Now())

	assert.Nil(t, entry.Indoor)
	assert.True(t, entry.IsEmpty())
}

func TestStore_GetReadsPrecomputedOnly(t *testing.T) {
	repo := newEntryRepo()
	source := &stubProvider{}
	store := newTestStore(repo, source)
	slot := parkSlot()

	assert.Nil(t, store.Get(context.Background(), slot))

	repo.entries[slot.Id] = &entity.FallbackEntry{
		SlotId:            slot.Id,
		SourceActivityRef: slot.ActivityRef,
		Adjacent:          []entity.Candidate{{ActivityRef: "park-2"}},
	}
	got := store.Get(context.Background(), slot)
	require.NotNil(t, got)
	assert.Equal(t, "park-2", got.Adjacent[0].ActivityRef)

	store.Get(context.Background(), slot)
	assert.Equal(t, 2, repo.reads)
	assert.Zero(t, source.calls.Load())
}

func TestStore_GetIgnoresStaleEntry(t *testing.T) {
	repo := newEntryRepo()
	store := newTestStore(repo, &stubProvider{})
	slot := parkSlot()
	repo.entries[slot.Id] = &entity.FallbackEntry{
		SlotId:            slot.Id,
		SourceActivityRef: "old-activity",
		Adjacent:          []entity.Candidate{{ActivityRef: "park-2"}},
	}

	assert.Nil(t, store.Get(context.Background(), slot))
}

func TestStore_GetReadsPastCallerDeadline(t *testing.T) {
	repo := newEntryRepo()
	store := newTestStore(repo, &stubProvider{})
	slot := parkSlot()
	repo.entries[slot.Id] = &entity.FallbackEntry{
		SlotId:            slot.Id,
		SourceActivityRef: slot.ActivityRef,
		Adjacent:          []entity.Candidate{{ActivityRef: "park-2"}},
	}

	ctx, cancel := context.WithDeadline(context.Background(), time.Now().Add(-time.Second))
	defer cancel()

	got := store.Get(ctx, slot)
	require.NotNil(t, got)
	assert.Equal(t, "park-2", got.Adjacent[0].ActivityRef)
}

func TestStore_GetTreatsReadErrorAsMissing(t *testing.T) {
	repo := newEntryRepo()
	repo.err = errors.New("connection reset")
	store := newTestStore(repo, &stubProvider{})

	assert.Nil(t, store.Get(context.Background(), parkSlot()))
}

func TestStore_Rebuild(t *testing.T) {
	repo := newEntryRepo()
	source := &stubProvider{
		adjacent: []entity.Candidate{{ActivityRef: "park-2"}, {ActivityRef: "park-3"}},
		opposite: []entity.Candidate{{ActivityRef: "museum-1", Category: "museum"}},
		indoor:   []entity.Candidate{{ActivityRef: "hall-1", Indoor: true}},
	}
	store := newTestStore(repo, source)
	slot := parkSlot()

	entry, err := store.Rebuild(context.Background(), slot)

	require.NoError(t, err)
	assert.Len(t, entry.Adjacent, 2)
	assert.NotNil(t, entry.Opposite)
	assert.NotNil(t, entry.Indoor)
	assert.Equal(t, int32(3), source.calls.Load())
	assert.Same(t, entry, repo.entries[slot.Id])
	assert.Same(t, entry, store.Get(context.Background(), slot))

	require.NoError(t, store.Invalidate(context.Background(), slot.Id))
	assert.Nil(t, store.Get(context.Background(), slot))
}

func TestStore_RebuildCoalescesConcurrentCalls(t *testing.T) {
	source := &stubProvider{
		delay:    50 * time.Millisecond,
		adjacent: []entity.Candidate{{ActivityRef: "park-2"}},
	}
	store := newTestStore(newEntryRepo(), source)
	slot := parkSlot()
	slot.Outdoor = false

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := store.Rebuild(context.Background(), slot)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, source.calls.Load(), int32(10))
	assert.GreaterOrEqual(t, source.calls.Load(), int32(2))
}

func TestStore_RebuildUpstreamFailure(t *testing.T) {
	store := newTestStore(newEntryRepo(), &stubProvider{err: errors.New("503")})

	_, err := store.Rebuild(context.Background(), parkSlot())

	assert.ErrorIs(t, err, perr.ErrUpstreamUnavailable)
}
