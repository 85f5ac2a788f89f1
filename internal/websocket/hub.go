package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"trip-pivot-be/internal/pkg/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const clusterChannel = "trip_events"

// broadcastTarget addresses every member of the trip.
const broadcastTarget = "*"

type clusterMessage struct {
	Origin   string          `json:"origin"`
	TripID   uuid.UUID       `json:"trip_id"`
	MemberID string          `json:"member_id"`
	Message  json.RawMessage `json:"message"`
}

// Hub keeps one room per trip. Members connected to another instance are
// reached through Redis.
type Hub struct {
	// trip id -> connected clients
	rooms map[uuid.UUID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	done       chan struct{}

	mu sync.RWMutex

	rdb    *redis.Client
	origin string

	logger logger.ILogger
}

func NewHub(rdb *redis.Client, log logger.ILogger) *Hub {
	return &Hub{
		rooms:      make(map[uuid.UUID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		rdb:        rdb,
		origin:     uuid.NewString(),
		logger:     log,
	}
}

func (h *Hub) Run(ctx context.Context) {
	if h.rdb != nil {
		go h.subscribeToRedis(ctx)
	}

	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.closeAll()
			return

		case client := <-h.register:
			h.mu.Lock()
			room, ok := h.rooms[client.TripID]
			if !ok {
				room = make(map[*Client]bool)
				h.rooms[client.TripID] = room
			}
			room[client] = true
			h.mu.Unlock()
			h.logger.Info("Hub", "Client joined trip", map[string]interface{}{
				"trip_id":   client.TripID,
				"member_id": client.MemberID,
			})

		case client := <-h.unregister:
			h.mu.Lock()
			if room, ok := h.rooms[client.TripID]; ok && room[client] {
				delete(room, client)
				close(client.Send)
				if len(room) == 0 {
					delete(h.rooms, client.TripID)
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for tripID, room := range h.rooms {
		for client := range room {
			close(client.Send)
		}
		delete(h.rooms, tripID)
	}
}

// BroadcastToTrip sends data to every member connected to the trip.
func (h *Hub) BroadcastToTrip(tripID uuid.UUID, data interface{}) {
	h.dispatch(tripID, broadcastTarget, data)
}

// SendToMember sends data to one member's connections on the trip.
func (h *Hub) SendToMember(memberID, tripID uuid.UUID, data interface{}) {
	h.dispatch(tripID, memberID.String(), data)
}

func (h *Hub) dispatch(tripID uuid.UUID, target string, data interface{}) {
	message, err := json.Marshal(map[string]interface{}{
		"type": "pivot",
		"data": data,
	})
	if err != nil {
		h.logger.Error("Hub", "Failed to encode message", map[string]interface{}{"error": err.Error()})
		return
	}

	h.deliverLocal(tripID, target, message)

	if h.rdb != nil {
		payload, _ := json.Marshal(clusterMessage{
			Origin:   h.origin,
			TripID:   tripID,
			MemberID: target,
			Message:  message,
		})
		if err := h.rdb.Publish(context.Background(), clusterChannel, payload).Err(); err != nil {
			h.logger.Warn("Hub", "Cluster publish failed", map[string]interface{}{"error": err.Error()})
		}
	}
}

func (h *Hub) deliverLocal(tripID uuid.UUID, target string, message []byte) {
	var slow []*Client

	h.mu.RLock()
	for client := range h.rooms[tripID] {
		if target != broadcastTarget && client.MemberID.String() != target {
			continue
		}
		select {
		case client.Send <- message:
		default:
			slow = append(slow, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range slow {
		h.logger.Warn("Hub", "Client send buffer full, dropping connection", map[string]interface{}{
			"trip_id":   client.TripID,
			"member_id": client.MemberID,
		})
		go h.drop(client)
	}
}

func (h *Hub) drop(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// ConnectedMembers reports how many connections the trip has on this instance.
func (h *Hub) ConnectedMembers(tripID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[tripID])
}

func (h *Hub) subscribeToRedis(ctx context.Context) {
	pubsub := h.rdb.Subscribe(ctx, clusterChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			var payload clusterMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				h.logger.Warn("Hub", "Cluster message parse error", map[string]interface{}{"error": err.Error()})
				continue
			}
			// already delivered locally by dispatch
			if payload.Origin == h.origin {
				continue
			}
			h.deliverLocal(payload.TripID, payload.MemberID, payload.Message)
		}
	}
}
