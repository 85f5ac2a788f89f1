package service

import (
	"context"
	"fmt"

	"trip-pivot-be/internal/dto"
	"trip-pivot-be/internal/repository/unitofwork"
	"trip-pivot-be/pkg/pivot/perr"

	"github.com/google/uuid"
)

type IItineraryService interface {
	ListSlots(ctx context.Context, itineraryId uuid.UUID) ([]dto.SlotResponse, error)
	RebuildFallbacks(ctx context.Context, itineraryId uuid.UUID) (*dto.RebuildFallbacksResponse, error)
}

type itineraryService struct {
	uowFactory unitofwork.RepositoryFactory
	fallbacks  IFallbackService
}

func NewItineraryService(uowFactory unitofwork.RepositoryFactory, fallbacks IFallbackService) IItineraryService {
	return &itineraryService{
		uowFactory: uowFactory,
		fallbacks:  fallbacks,
	}
}

func (s *itineraryService) ListSlots(ctx context.Context, itineraryId uuid.UUID) ([]dto.SlotResponse, error) {
	uow := s.uowFactory.NewUnitOfWork(ctx)

	slots, err := uow.SlotRepository().FindByItinerary(ctx, itineraryId)
	if err != nil {
		return nil, perr.Storage(err)
	}
	if len(slots) == 0 {
		return nil, fmt.Errorf("itinerary %s: %w", itineraryId, perr.ErrNotFound)
	}

	return toSlotResponses(slots), nil
}

// RebuildFallbacks is the generation hook: run after an itinerary is created
// or regenerated so every slot starts with precomputed alternatives.
func (s *itineraryService) RebuildFallbacks(ctx context.Context, itineraryId uuid.UUID) (*dto.RebuildFallbacksResponse, error) {
	res, err := s.fallbacks.RebuildItinerary(ctx, itineraryId)
	if err != nil {
		return nil, perr.Storage(err)
	}
	if res.Slots == 0 {
		return nil, fmt.Errorf("itinerary %s: %w", itineraryId, perr.ErrNotFound)
	}
	return res, nil
}
