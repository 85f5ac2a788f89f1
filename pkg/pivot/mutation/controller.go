package mutation

import (
	"context"
	"errors"
	"fmt"

	"trip-pivot-be/internal/entity"
	"trip-pivot-be/internal/pkg/logger"
	"trip-pivot-be/internal/pkg/metrics"
	"trip-pivot-be/pkg/pivot/cascade"
	"trip-pivot-be/pkg/pivot/perr"

	"github.com/google/uuid"
)

const module = "MutationController"

// SlotStore is the conditional write of the itinerary store.
type SlotStore interface {
	CompareAndSwap(ctx context.Context, change entity.SlotChange) (*entity.Slot, error)
	CompareAndSwapAll(ctx context.Context, changes []entity.SlotChange) ([]*entity.Slot, error)
}

// Controller is the only writer of slots. It never retries a conflict: the
// caller has to re-evaluate against fresh state.
type Controller struct {
	store  SlotStore
	logger logger.ILogger
}

func NewController(store SlotStore, log logger.ILogger) *Controller {
	return &Controller{store: store, logger: log}
}

func (c *Controller) Apply(ctx context.Context, itineraryId, slotId uuid.UUID, expectedVersion int64, activity entity.Candidate) (*entity.Slot, error) {
	slot, err := c.store.CompareAndSwap(ctx, entity.SlotChange{
		ItineraryId:     itineraryId,
		SlotId:          slotId,
		ExpectedVersion: expectedVersion,
		NewActivity:     activity,
	})
	if err != nil {
		return nil, c.fail(err, 1)
	}
	metrics.SlotMutationsTotal.Inc()
	return slot, nil
}

// ApplyAll commits every change or none of them.
func (c *Controller) ApplyAll(ctx context.Context, changes []entity.SlotChange) ([]*entity.Slot, error) {
	if len(changes) == 0 {
		return nil, nil
	}
	slots, err := c.store.CompareAndSwapAll(ctx, changes)
	if err != nil {
		return nil, c.fail(err, len(changes))
	}
	metrics.SlotMutationsTotal.Add(float64(len(slots)))
	return slots, nil
}

func (c *Controller) fail(err error, size int) error {
	var conflict *perr.VersionConflictError
	if errors.As(err, &conflict) {
		metrics.VersionConflictsTotal.Inc()
		c.logger.Info(module, "Rejected stale slot mutation", map[string]interface{}{
			"slot_id":          conflict.SlotId,
			"expected_version": conflict.ExpectedVersion,
			"actual_version":   conflict.ActualVersion,
			"batch":            size,
		})
		return err
	}
	if errors.Is(err, perr.ErrNotFound) {
		return err
	}
	return fmt.Errorf("failed to apply %d slot change(s): %w", size, err)
}

// Changes turns resolved proposals into slot changes. Unresolved proposals
// are skipped.
func Changes(proposals []cascade.Proposal) []entity.SlotChange {
	changes := make([]entity.SlotChange, 0, len(proposals))
	for _, p := range proposals {
		if !p.Resolved() {
			continue
		}
		changes = append(changes, entity.SlotChange{
			ItineraryId:     p.ItineraryId,
			SlotId:          p.SlotId,
			ExpectedVersion: p.ExpectedVersion,
			NewActivity:     *p.Replacement,
		})
	}
	return changes
}
