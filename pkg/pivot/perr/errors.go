// Package perr holds the error taxonomy shared by every pivot stage.
package perr

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

var (
	// ErrVersionConflict: the slot moved on since the caller read it. Retry by
	// re-evaluating against fresh state, never by overwriting.
	ErrVersionConflict = errors.New("slot version conflict")

	// ErrUpstreamUnavailable: a weather, transit, classifier or candidate call
	// failed or ran out of budget. The pipeline degrades.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrClassificationAmbiguous: text could not be classified with enough confidence.
	ErrClassificationAmbiguous = errors.New("classification ambiguous")

	// ErrStorageFailure: the itinerary snapshot could not be read.
	ErrStorageFailure = errors.New("itinerary storage unavailable")

	ErrNotFound = errors.New("not found")

	// ErrInvalidInput: the request names something the pivot cannot act on.
	ErrInvalidInput = errors.New("invalid input")

	// ErrAlreadyResolved: a member acted on a pivot that is no longer pending.
	ErrAlreadyResolved = errors.New("pivot already resolved")
)

type VersionConflictError struct {
	SlotId          uuid.UUID
	ExpectedVersion int64
	ActualVersion   int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("slot %s: expected version %d, found %d", e.SlotId, e.ExpectedVersion, e.ActualVersion)
}

func (e *VersionConflictError) Unwrap() error {
	return ErrVersionConflict
}

func Storage(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", ErrStorageFailure, err)
}

func Upstream(service string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, service, err)
}

// RepeatedSlot rejects a batch that changes the same slot twice.
func RepeatedSlot(slotId uuid.UUID) error {
	return fmt.Errorf("%w: slot %s changed twice in one batch", ErrInvalidInput, slotId)
}
