package unitofwork

import (
	"context"

	"trip-pivot-be/internal/repository/contract"
)

type UnitOfWork interface {
	Begin(ctx context.Context) error
	Commit() error
	Rollback() error

	SlotRepository() contract.SlotRepository
	FallbackRepository() contract.FallbackRepository
	PivotRepository() contract.PivotRepository
}
