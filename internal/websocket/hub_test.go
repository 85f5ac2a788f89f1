package websocket

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"trip-pivot-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func join(t *testing.T, hub *Hub, trip, member uuid.UUID, buffer int) *Client {
	t.Helper()
	c := &Client{Hub: hub, TripID: trip, MemberID: member, Send: make(chan []byte, buffer)}
	hub.register <- c
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.rooms[trip][c]
	}, time.Second, 5*time.Millisecond)
	return c
}

func receive(t *testing.T, c *Client) map[string]interface{} {
	t.Helper()
	select {
	case raw := <-c.Send:
		var msg map[string]interface{}
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message delivered")
		return nil
	}
}

func TestHub_RoutesByTripAndMember(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, logger.NewNopLogger())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	trip, otherTrip := uuid.New(), uuid.New()
	alice, bob := uuid.New(), uuid.New()

	a := join(t, hub, trip, alice, 4)
	b := join(t, hub, trip, bob, 4)
	stranger := join(t, hub, otherTrip, uuid.New(), 4)
	assert.Equal(t, 2, hub.ConnectedMembers(trip))

	hub.BroadcastToTrip(trip, map[string]string{"kind": "proposed"})
	assert.Equal(t, "pivot", receive(t, a)["type"])
	assert.Equal(t, "pivot", receive(t, b)["type"])
	assert.Empty(t, stranger.Send)

	hub.SendToMember(bob, trip, map[string]string{"kind": "applied"})
	msg := receive(t, b)
	assert.Equal(t, "applied", msg["data"].(map[string]interface{})["kind"])
	assert.Empty(t, a.Send)
}

func TestHub_DropsSlowClientOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil, logger.NewNopLogger())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	trip := uuid.New()
	slow := join(t, hub, trip, uuid.New(), 1)

	// second and third sends overflow the buffer
	for i := 0; i < 3; i++ {
		hub.BroadcastToTrip(trip, i)
	}

	require.Eventually(t, func() bool { return hub.ConnectedMembers(trip) == 0 }, time.Second, 5*time.Millisecond)

	<-slow.Send
	_, open := <-slow.Send
	assert.False(t, open)
}
