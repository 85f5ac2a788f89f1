package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"

	"trip-pivot-be/internal/dto"
	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/internal/pkg/metrics"
	"trip-pivot-be/internal/repository/unitofwork"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// FallbackStore is the part of the fallback graph store the services use.
type FallbackStore interface {
	Get(ctx context.Context, slot *entity.Slot) *entity.FallbackEntry
	Rebuild(ctx context.Context, slot *entity.Slot) (*entity.FallbackEntry, error)
	Invalidate(ctx context.Context, slotId uuid.UUID) error
}

type IFallbackService interface {
	RebuildItinerary(ctx context.Context, itineraryId uuid.UUID) (*dto.RebuildFallbacksResponse, error)
	RebuildAll(ctx context.Context) ([]*dto.RebuildFallbacksResponse, error)
	// SlotChanged drops the slot's entry and queues a rebuild for its new activity.
	SlotChanged(ctx context.Context, slot *entity.Slot)
	Consume(ctx context.Context) error
}

type fallbackService struct {
	uowFactory  unitofwork.RepositoryFactory
	store       FallbackStore
	pubSub      *gochannel.GoChannel
	topicName   string
	concurrency int
	logger      logger.ILogger
}

func NewFallbackService(
	uowFactory unitofwork.RepositoryFactory,
	store FallbackStore,
	pubSub *gochannel.GoChannel,
	topicName string,
	concurrency int,
	log logger.ILogger,
) IFallbackService {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &fallbackService{
		uowFactory:  uowFactory,
		store:       store,
		pubSub:      pubSub,
		topicName:   topicName,
		concurrency: concurrency,
		logger:      log,
	}
}

func (s *fallbackService) RebuildItinerary(ctx context.Context, itineraryId uuid.UUID) (*dto.RebuildFallbacksResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	slots, err := uow.SlotRepository().FindByItinerary(ctx, itineraryId)
	if err != nil {
		return nil, fmt.Errorf("failed to load itinerary %s: %w", itineraryId, err)
	}

	var rebuilt, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for _, slot := range slots {
		slot := slot
		g.Go(func() error {
			if _, err := s.store.Rebuild(gctx, slot); err != nil {
				failed.Add(1)
				metrics.FallbackRebuildsTotal.WithLabelValues("failed").Inc()
				s.logger.Warn("FallbackService", "Fallback rebuild failed", map[string]interface{}{
					"itinerary_id": itineraryId,
					"slot_id":      slot.Id,
					"error":        err.Error(),
				})
				return nil
			}
			rebuilt.Add(1)
			metrics.FallbackRebuildsTotal.WithLabelValues("rebuilt").Inc()
			return nil
		})
	}
	_ = g.Wait()

	res := &dto.RebuildFallbacksResponse{
		ItineraryId: itineraryId,
		Slots:       len(slots),
		Rebuilt:     int(rebuilt.Load()),
		Failed:      int(failed.Load()),
	}
	s.logger.Info("FallbackService", "Itinerary fallbacks rebuilt", map[string]interface{}{
		"itinerary_id": itineraryId,
		"slots":        res.Slots,
		"rebuilt":      res.Rebuilt,
		"failed":       res.Failed,
	})
	return res, nil
}

// RebuildAll is the nightly refresh.
func (s *fallbackService) RebuildAll(ctx context.Context) ([]*dto.RebuildFallbacksResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	ids, err := uow.SlotRepository().ItineraryIds(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list itineraries: %w", err)
	}

	results := make([]*dto.RebuildFallbacksResponse, 0, len(ids))
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		res, err := s.RebuildItinerary(ctx, id)
		if err != nil {
			s.logger.Error("FallbackService", "Skipping itinerary", map[string]interface{}{
				"itinerary_id": id,
				"error":        err.Error(),
			})
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

func (s *fallbackService) SlotChanged(ctx context.Context, slot *entity.Slot) {
	if err := s.store.Invalidate(ctx, slot.Id); err != nil {
		s.logger.Warn("FallbackService", "Failed to invalidate fallback entry", map[string]interface{}{
			"slot_id": slot.Id,
			"error":   err.Error(),
		})
	}

	payload, err := json.Marshal(dto.FallbackRebuildMessage{ItineraryId: slot.ItineraryId, SlotId: slot.Id})
	if err != nil {
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := s.pubSub.Publish(s.topicName, msg); err != nil {
		s.logger.Warn("FallbackService", "Failed to queue fallback rebuild", map[string]interface{}{
			"slot_id": slot.Id,
			"error":   err.Error(),
		})
	}
}

func (s *fallbackService) Consume(ctx context.Context) error {
	messages, err := s.pubSub.Subscribe(ctx, s.topicName)
	if err != nil {
		return err
	}

	go func() {
		for msg := range messages {
			s.processMessage(ctx, msg)
		}
	}()

	return nil
}

// processMessage always acks. A slot whose rebuild failed stays fallback-less
// until the nightly job, which is the same state a missing entry is in.
func (s *fallbackService) processMessage(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	var payload dto.FallbackRebuildMessage
	if err := json.Unmarshal(msg.Payload, &payload); err != nil {
		s.logger.Error("FallbackService", "Failed to unmarshal rebuild message", map[string]interface{}{"error": err.Error()})
		return
	}

	uow := s.uowFactory.NewUnitOfWork(ctx)
	slot, err := uow.SlotRepository().FindById(ctx, payload.ItineraryId, payload.SlotId)
	if err != nil {
		s.logger.Error("FallbackService", "Failed to load slot for rebuild", map[string]interface{}{
			"slot_id": payload.SlotId,
			"error":   err.Error(),
		})
		return
	}
	if slot == nil {
		return
	}

	if _, err := s.store.Rebuild(ctx, slot); err != nil {
		metrics.FallbackRebuildsTotal.WithLabelValues("failed").Inc()
		s.logger.Warn("FallbackService", "Queued fallback rebuild failed", map[string]interface{}{
			"slot_id": slot.Id,
			"error":   err.Error(),
		})
		return
	}
	metrics.FallbackRebuildsTotal.WithLabelValues("rebuilt").Inc()
}
