package contract

import (
	"context"
	"time"

	"trip-pivot-be/internal/entity"

	"github.com/google/uuid"
)

type PivotRepository interface {
	Create(ctx context.Context, record *entity.PivotRecord) error
	FindById(ctx context.Context, id uuid.UUID) (*entity.PivotRecord, error)
	FindByItinerary(ctx context.Context, itineraryId uuid.UUID, limit int) ([]*entity.PivotRecord, error)
	// FindByStatusBefore lists records in status created before the cutoff, oldest first.
	FindByStatusBefore(ctx context.Context, status entity.PivotStatus, before time.Time, limit int) ([]*entity.PivotRecord, error)
	// UpdateStatus moves the record from one status to another. It fails with
	// perr.ErrAlreadyResolved if the record is no longer in from.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to entity.PivotStatus, at time.Time) error
}
