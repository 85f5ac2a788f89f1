package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/pkg/events"
	pktNats "trip-pivot-be/pkg/nats"

	"github.com/google/uuid"
)

const (
	NotificationProposed = "proposed"
	NotificationApplied  = "applied"
	NotificationResolved = "resolved"
)

const notificationSubjectPrefix = "pivot.notify."

// PivotNotification tells trip members about a proposal or an applied change.
// An empty MemberIds targets everyone connected to the trip.
type PivotNotification struct {
	Kind        string      `json:"kind"`
	PivotId     uuid.UUID   `json:"pivot_id"`
	ItineraryId uuid.UUID   `json:"itinerary_id"`
	SlotId      uuid.UUID   `json:"slot_id"`
	Decision    string      `json:"routing_decision"`
	MemberIds   []uuid.UUID `json:"member_ids,omitempty"`
	Message     string      `json:"message"`
	Data        interface{} `json:"data,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

func (n PivotNotification) EventType() string { return notificationSubjectPrefix + n.Kind }

func (n PivotNotification) Payload() interface{} { return n }

func (n PivotNotification) Timestamp() time.Time { return n.CreatedAt }

// NotificationDelivery pushes real-time updates. Implemented by the websocket hub.
type NotificationDelivery interface {
	SendToMember(memberID, itineraryID uuid.UUID, data interface{})
	BroadcastToTrip(itineraryID uuid.UUID, data interface{})
}

// EventPublisher is the bus publisher. *pktNats.Publisher satisfies it.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type INotificationService interface {
	Notify(ctx context.Context, n PivotNotification)
	Start() error
}

type NotificationService struct {
	publisher  EventPublisher
	subscriber *pktNats.Subscriber
	delivery   NotificationDelivery
	logger     logger.ILogger
}

// NewNotificationService wires the notification channel. With no bus, Notify
// hands notifications straight to the delivery.
func NewNotificationService(pub EventPublisher, sub *pktNats.Subscriber, delivery NotificationDelivery, log logger.ILogger) *NotificationService {
	return &NotificationService{
		publisher:  pub,
		subscriber: sub,
		delivery:   delivery,
		logger:     log,
	}
}

// Notify never fails the caller: a bus error falls back to local delivery.
func (s *NotificationService) Notify(ctx context.Context, n PivotNotification) {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	if s.publisher != nil && s.subscriber != nil {
		err := s.publisher.Publish(ctx, n)
		if err == nil {
			return
		}
		s.logger.Warn("NotificationService", "Bus publish failed, delivering locally", map[string]interface{}{
			"pivot_id": n.PivotId,
			"kind":     n.Kind,
			"error":    err.Error(),
		})
	}
	s.deliver(n)
}

// Start begins listening to the bus.
func (s *NotificationService) Start() error {
	if s.subscriber == nil {
		return nil
	}
	if err := s.subscriber.Subscribe(notificationSubjectPrefix+">", "pivot-delivery-worker", s.handleEvent); err != nil {
		s.logger.Error("NotificationService", "Failed to start notification subscriber", map[string]interface{}{"error": err.Error()})
		return err
	}
	s.logger.Info("NotificationService", "Notification service started", map[string]interface{}{
		"subject": pktNats.SubjectPrefix + notificationSubjectPrefix + ">",
	})
	return nil
}

func (s *NotificationService) handleEvent(ctx context.Context, event events.BaseEvent) error {
	var n PivotNotification
	if err := json.Unmarshal(event.Data, &n); err != nil {
		// redelivery will not fix a malformed body
		s.logger.Error("NotificationService", fmt.Sprintf("Discarding malformed event %s", event.EventType()), map[string]interface{}{"error": err.Error()})
		return nil
	}
	s.deliver(n)
	return nil
}

func (s *NotificationService) deliver(n PivotNotification) {
	if s.delivery == nil {
		return
	}
	if len(n.MemberIds) == 0 {
		s.delivery.BroadcastToTrip(n.ItineraryId, n)
		return
	}
	for _, memberID := range n.MemberIds {
		s.delivery.SendToMember(memberID, n.ItineraryId, n)
	}
}
