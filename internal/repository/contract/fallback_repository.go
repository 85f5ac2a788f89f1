package contract

import (
	"context"

	"trip-pivot-be/internal/entity"

	"github.com/google/uuid"
)

type FallbackRepository interface {
	FindBySlot(ctx context.Context, slotId uuid.UUID) (*entity.FallbackEntry, error)
	FindBySlots(ctx context.Context, slotIds []uuid.UUID) ([]*entity.FallbackEntry, error)
	Upsert(ctx context.Context, entry *entity.FallbackEntry) error
	DeleteBySlot(ctx context.Context, slotId uuid.UUID) error
}
