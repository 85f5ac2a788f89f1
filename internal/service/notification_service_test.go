package service

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/pkg/events"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type delivered struct {
	member uuid.UUID
	trip   uuid.UUID
	data   interface{}
}

type fakeDelivery struct {
	mu        sync.Mutex
	direct    []delivered
	broadcast []delivered
}

func (f *fakeDelivery) SendToMember(memberID, itineraryID uuid.UUID, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.direct = append(f.direct, delivered{member: memberID, trip: itineraryID, data: data})
}

func (f *fakeDelivery) BroadcastToTrip(itineraryID uuid.UUID, data interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.broadcast = append(f.broadcast, delivered{trip: itineraryID, data: data})
}

func TestNotificationService_NotifyWithoutBus(t *testing.T) {
	trip := uuid.New()
	alice, bob := uuid.New(), uuid.New()

	tests := []struct {
		name          string
		members       []uuid.UUID
		wantDirect    int
		wantBroadcast int
	}{
		{"whole trip", nil, 0, 1},
		{"named members", []uuid.UUID{alice, bob}, 2, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			delivery := &fakeDelivery{}
			svc := NewNotificationService(nil, nil, delivery, logger.NewNopLogger())
			require.NoError(t, svc.Start())

			svc.Notify(context.Background(), PivotNotification{
				Kind:        NotificationProposed,
				PivotId:     uuid.New(),
				ItineraryId: trip,
				MemberIds:   tt.members,
			})

			assert.Len(t, delivery.direct, tt.wantDirect)
			assert.Len(t, delivery.broadcast, tt.wantBroadcast)
			for _, d := range append(delivery.direct, delivery.broadcast...) {
				assert.Equal(t, trip, d.trip)
				n := d.data.(PivotNotification)
				assert.False(t, n.CreatedAt.IsZero())
			}
		})
	}
}

func TestNotificationService_HandleEvent(t *testing.T) {
	delivery := &fakeDelivery{}
	svc := NewNotificationService(nil, nil, delivery, logger.NewNopLogger())

	member := uuid.New()
	n := PivotNotification{Kind: NotificationApplied, ItineraryId: uuid.New(), MemberIds: []uuid.UUID{member}}
	assert.Equal(t, "pivot.notify.applied", n.EventType())

	body, err := json.Marshal(n)
	require.NoError(t, err)

	require.NoError(t, svc.handleEvent(context.Background(), events.BaseEvent{Type: n.EventType(), Data: body}))
	require.Len(t, delivery.direct, 1)
	assert.Equal(t, member, delivery.direct[0].member)

	// malformed bodies are acked and dropped
	require.NoError(t, svc.handleEvent(context.Background(), events.BaseEvent{Type: n.EventType(), Data: []byte("{")}))
	assert.Len(t, delivery.direct, 1)
}
