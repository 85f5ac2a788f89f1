package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/internal/repository/unitofwork"
	"trip-pivot-be/pkg/pivot/fallback"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedItinerary(t *testing.T, factory unitofwork.RepositoryFactory, n int) (uuid.UUID, []*entity.Slot) {
	t.Helper()
	ctx := context.Background()
	itineraryId := uuid.New()
	uow := factory.NewUnitOfWork(ctx)

	var slots []*entity.Slot
	for i := 0; i < n; i++ {
		s := &entity.Slot{
			ItineraryId:   itineraryId,
			SequenceIndex: i,
			ActivityRef:   "act-" + uuid.NewString()[:8],
			Category:      "museum",
			StartAt:       time.Now().Add(time.Duration(i+1) * time.Hour),
			EndAt:         time.Now().Add(time.Duration(i+2) * time.Hour),
			IsShared:      true,
		}
		require.NoError(t, uow.SlotRepository().Create(ctx, s))
		slots = append(slots, s)
	}
	return itineraryId, slots
}

func newFallbackHarness(search *stubSearch) (*unitofwork.MemoryRepositoryFactory, *fallback.Store, *gochannel.GoChannel, IFallbackService) {
	factory := unitofwork.NewMemoryRepositoryFactory()
	log := logger.NewNopLogger()
	store := fallback.NewStore(factory.NewUnitOfWork(context.Background()).FallbackRepository(), search, fallback.DefaultOptions(), log)
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	return factory, store, pubSub, NewFallbackService(factory, store, pubSub, "fallback.rebuild", 2, log)
}

func TestFallbackService_RebuildItinerary(t *testing.T) {
	search := &stubSearch{results: []entity.Candidate{{ActivityRef: "alt-1", Category: "museum"}}}
	factory, store, pubSub, svc := newFallbackHarness(search)
	defer pubSub.Close()
	itineraryId, slots := seedItinerary(t, factory, 3)

	res, err := svc.RebuildItinerary(context.Background(), itineraryId)

	require.NoError(t, err)
	assert.Equal(t, 3, res.Slots)
	assert.Equal(t, 3, res.Rebuilt)
	assert.Zero(t, res.Failed)
	for _, slot := range slots {
		entry := store.Get(context.Background(), slot)
		require.NotNil(t, entry)
		assert.Equal(t, "alt-1", entry.Adjacent[0].ActivityRef)
	}
}

func TestFallbackService_RebuildCountsFailures(t *testing.T) {
	factory, _, pubSub, svc := newFallbackHarness(&stubSearch{err: errors.New("candidate store down")})
	defer pubSub.Close()
	itineraryId, _ := seedItinerary(t, factory, 2)

	res, err := svc.RebuildItinerary(context.Background(), itineraryId)

	require.NoError(t, err)
	assert.Equal(t, 2, res.Failed)
	assert.Zero(t, res.Rebuilt)
}

func TestFallbackService_RebuildAll(t *testing.T) {
	factory, _, pubSub, svc := newFallbackHarness(&stubSearch{results: []entity.Candidate{{ActivityRef: "alt-1"}}})
	defer pubSub.Close()
	seedItinerary(t, factory, 1)
	seedItinerary(t, factory, 2)

	results, err := svc.RebuildAll(context.Background())

	require.NoError(t, err)
	assert.Len(t, results, 2)
}

func TestFallbackService_SlotChangedQueuesRebuild(t *testing.T) {
	search := &stubSearch{results: []entity.Candidate{{ActivityRef: "alt-1", Category: "museum"}}}
	factory, store, pubSub, svc := newFallbackHarness(search)
	defer pubSub.Close()
	_, slots := seedItinerary(t, factory, 1)
	slot := slots[0]

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, svc.Consume(ctx))

	stale := fallback.BuildEntry(slot, []entity.Candidate{{ActivityRef: "old"}}, nil, nil, time.Now())
	store.Warm([]*entity.FallbackEntry{stale})

	svc.SlotChanged(ctx, slot)

	assert.Eventually(t, func() bool {
		entry := store.Get(ctx, slot)
		return entry != nil && entry.Adjacent[0].ActivityRef == "alt-1"
	}, 2*time.Second, 10*time.Millisecond)
}
