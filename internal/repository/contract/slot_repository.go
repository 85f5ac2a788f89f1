package contract

import (
	"context"
	"time"

	"trip-pivot-be/internal/entity"

	"github.com/google/uuid"
)

type SlotRepository interface {
	Create(ctx context.Context, slot *entity.Slot) error
	FindById(ctx context.Context, itineraryId, slotId uuid.UUID) (*entity.Slot, error)
	FindByItinerary(ctx context.Context, itineraryId uuid.UUID) ([]*entity.Slot, error)
	FindStartingBetween(ctx context.Context, from, to time.Time) ([]*entity.Slot, error)
	ItineraryIds(ctx context.Context) ([]uuid.UUID, error)

	// CompareAndSwap applies the change only if the stored version still
	// equals ExpectedVersion, bumping it by one. A stale version yields a
	// *perr.VersionConflictError.
	CompareAndSwap(ctx context.Context, change entity.SlotChange) (*entity.Slot, error)
	// CompareAndSwapAll applies every change or none.
	CompareAndSwapAll(ctx context.Context, changes []entity.SlotChange) ([]*entity.Slot, error)
}
