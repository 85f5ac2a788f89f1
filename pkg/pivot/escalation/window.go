package escalation

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
)

// Signal is one member's vote that something about a shared slot has drifted.
type Signal struct {
	ItineraryId uuid.UUID
	Kind        string
	MemberId    uuid.UUID
	At          time.Time
}

// Observation is what the window looks like right after a signal was written.
type Observation struct {
	DistinctMembers int
	First           uuid.UUID
}

// Window is the GroupSignalWindow. Record must persist the signal before it
// counts, so a concurrent reader can over-count but never under-count.
type Window interface {
	Record(ctx context.Context, signal Signal) (Observation, error)
	Clear(ctx context.Context, itineraryId uuid.UUID, kind string) error
}

func windowKey(itineraryId uuid.UUID, kind string) string {
	return "pivot:window:" + itineraryId.String() + ":" + kind
}

type windowEntry struct {
	memberId uuid.UUID
	at       time.Time
}

// MemoryWindow keeps windows in process. Each window expires once no signal
// has arrived for the window length.
type MemoryWindow struct {
	length time.Duration
	store  *cache.Cache
	mu     sync.Mutex
}

func NewMemoryWindow(length time.Duration) *MemoryWindow {
	return &MemoryWindow{
		length: length,
		store:  cache.New(length, length),
	}
}

func (w *MemoryWindow) Record(_ context.Context, signal Signal) (Observation, error) {
	key := windowKey(signal.ItineraryId, signal.Kind)
	cutoff := signal.At.Add(-w.length)

	w.mu.Lock()
	defer w.mu.Unlock()

	var entries []windowEntry
	if x, found := w.store.Get(key); found {
		entries = x.([]windowEntry)
	}

	kept := make([]windowEntry, 0, len(entries)+1)
	for _, e := range entries {
		if e.at.Before(cutoff) || e.memberId == signal.MemberId {
			continue
		}
		kept = append(kept, e)
	}
	kept = append(kept, windowEntry{memberId: signal.MemberId, at: signal.At})
	sort.Slice(kept, func(i, j int) bool {
		if !kept[i].at.Equal(kept[j].at) {
			return kept[i].at.Before(kept[j].at)
		}
		return kept[i].memberId.String() < kept[j].memberId.String()
	})
	w.store.Set(key, kept, cache.DefaultExpiration)

	return Observation{DistinctMembers: len(kept), First: kept[0].memberId}, nil
}

func (w *MemoryWindow) Clear(_ context.Context, itineraryId uuid.UUID, kind string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.store.Delete(windowKey(itineraryId, kind))
	return nil
}

// RedisWindow shares windows between instances. Each window is a sorted set
// of member ids scored by arrival time in unix milliseconds; members with the
// same score are ordered by id.
type RedisWindow struct {
	length time.Duration
	rdb    *redis.Client
}

func NewRedisWindow(rdb *redis.Client, length time.Duration) *RedisWindow {
	return &RedisWindow{length: length, rdb: rdb}
}

func (w *RedisWindow) Record(ctx context.Context, signal Signal) (Observation, error) {
	key := windowKey(signal.ItineraryId, signal.Kind)
	cutoff := signal.At.Add(-w.length).UnixMilli()

	pipe := w.rdb.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "-inf", "("+strconv.FormatInt(cutoff, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(signal.At.UnixMilli()), Member: signal.MemberId.String()})
	pipe.Expire(ctx, key, w.length)
	card := pipe.ZCard(ctx, key)
	first := pipe.ZRangeWithScores(ctx, key, 0, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return Observation{}, fmt.Errorf("failed to record signal in window %s: %w", key, err)
	}

	obs := Observation{DistinctMembers: int(card.Val())}
	if zs := first.Val(); len(zs) > 0 {
		if id, err := uuid.Parse(fmt.Sprint(zs[0].Member)); err == nil {
			obs.First = id
		}
	}
	return obs, nil
}

func (w *RedisWindow) Clear(ctx context.Context, itineraryId uuid.UUID, kind string) error {
	return w.rdb.Del(ctx, windowKey(itineraryId, kind)).Err()
}
