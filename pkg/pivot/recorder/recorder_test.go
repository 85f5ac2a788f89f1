package recorder

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/pkg/pivot/cascade"
	"trip-pivot-be/pkg/pivot/escalation"
	"trip-pivot-be/pkg/pivot/guard"
	"trip-pivot-be/pkg/pivot/trigger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

type fakeSink struct {
	mu       sync.Mutex
	failures int
	delay    time.Duration
	attempts atomic.Int32
	written  []PivotEvent
}

func (s *fakeSink) Write(_ context.Context, event PivotEvent) error {
	s.attempts.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failures != 0 {
		if s.failures > 0 {
			s.failures--
		}
		return errors.New("log append failed")
	}
	s.written = append(s.written, event)
	return nil
}

func (s *fakeSink) events() []PivotEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]PivotEvent(nil), s.written...)
}

func newRecorder(t *testing.T, sink Sink, retries int) *Recorder {
	t.Helper()
	r, err := New(sink, Config{
		Topic:           "pivot_events_test",
		MaxRetries:      retries,
		InitialInterval: time.Millisecond,
		Buffer:          16,
	}, logger.NewNopLogger())
	require.NoError(t, err)
	r.Start(context.Background())
	return r
}

func sampleEvent() PivotEvent {
	return NewEvent(Outcome{
		PivotId: uuid.New(),
		Trigger: trigger.Trigger{
			Id:            uuid.New(),
			Source:        trigger.SourceVenueClosed,
			ItineraryId:   uuid.New(),
			LatencyBudget: 2 * time.Second,
			ReceivedAt:    time.Now(),
		},
	}, time.Now())
}

func TestRecorder_WritesEvent(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeSink{}
	r := newRecorder(t, sink, 2)
	event := sampleEvent()

	r.Record(event)

	require.Eventually(t, func() bool { return len(sink.events()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, event.EventId, sink.events()[0].EventId)
	assert.Equal(t, ActionNone, sink.events()[0].MemberAction)
	require.NoError(t, r.Close())
}

func TestRecorder_RetriesFailedWrites(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeSink{failures: 2}
	r := newRecorder(t, sink, 3)

	r.Record(sampleEvent())

	require.Eventually(t, func() bool { return len(sink.events()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, int32(3), sink.attempts.Load())
	require.NoError(t, r.Close())
}

func TestRecorder_DropsAfterRetriesAndKeepsGoing(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeSink{failures: 2}
	r := newRecorder(t, sink, 1)

	r.Record(sampleEvent())
	require.Eventually(t, func() bool { return sink.attempts.Load() == 2 }, 2*time.Second, 5*time.Millisecond)

	next := sampleEvent()
	r.Record(next)
	require.Eventually(t, func() bool { return len(sink.events()) == 1 }, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, next.EventId, sink.events()[0].EventId)
	require.NoError(t, r.Close())
}

func TestRecorder_RecordDoesNotWaitForSink(t *testing.T) {
	defer goleak.VerifyNone(t)

	sink := &fakeSink{delay: 50 * time.Millisecond}
	r := newRecorder(t, sink, 0)

	start := time.Now()
	for i := 0; i < 4; i++ {
		r.Record(sampleEvent())
	}
	assert.Less(t, time.Since(start), 40*time.Millisecond)

	require.Eventually(t, func() bool { return len(sink.events()) == 4 }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, r.Close())
}

func TestNewEvent(t *testing.T) {
	received := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)
	affected := uuid.New()
	dependent := uuid.New()
	suggested := uuid.New()
	trig := trigger.Trigger{
		Id:             uuid.New(),
		Source:         trigger.SourceMoodSignal,
		Category:       "tired",
		AffectedSlotId: affected,
		LatencyBudget:  3 * time.Second,
		ReceivedAt:     received,
	}
	bounded := &guard.BoundedChange{
		SwapId:      "swap-1",
		Kind:        cascade.SelectiveResolve,
		Apply:       []cascade.Proposal{{SlotId: affected}, {SlotId: dependent}},
		Suggestions: []cascade.Proposal{{SlotId: suggested}},
	}

	t.Run("evaluation over budget is degraded", func(t *testing.T) {
		event := NewEvent(Outcome{
			Trigger: trig,
			Bounded: bounded,
			Routing: &escalation.Routing{Decision: escalation.AutoApplyIndividual},
			Applied: []uuid.UUID{affected, dependent},
		}, received.Add(4*time.Second))

		assert.Equal(t, "selective_resolve", event.Result)
		assert.Equal(t, "auto_apply_individual", event.RoutingDecision)
		assert.Equal(t, []uuid.UUID{dependent, suggested}, event.CascadeSlotIds)
		assert.Equal(t, []uuid.UUID{suggested}, event.SuggestedSlotIds)
		assert.Equal(t, int64(3000), event.BudgetMs)
		assert.True(t, event.Degraded)
		assert.False(t, event.Failed)
	})

	t.Run("member action carries time to action", func(t *testing.T) {
		member := uuid.New()
		event := NewEvent(Outcome{
			Trigger:        trig,
			Bounded:        bounded,
			Action:         ActionAccepted,
			ActingMemberId: &member,
			ActedAt:        received.Add(90 * time.Second),
		}, received.Add(91*time.Second))

		assert.Equal(t, ActionAccepted, event.MemberAction)
		assert.Equal(t, int64(90000), event.TimeToActionMs)
		assert.False(t, event.Degraded)
		assert.Equal(t, &member, event.ActingMemberId)
	})

	t.Run("failure is flagged", func(t *testing.T) {
		event := NewEvent(Outcome{Trigger: trig, Err: errors.New("itinerary storage unavailable")}, received)

		assert.True(t, event.Failed)
		assert.Equal(t, "itinerary storage unavailable", event.FailureReason)
		assert.Empty(t, event.CascadeSlotIds)
	})
}
