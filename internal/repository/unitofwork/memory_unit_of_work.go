package unitofwork

import (
	"context"

	"trip-pivot-be/internal/repository/contract"
	"trip-pivot-be/internal/repository/memory"
)

// MemoryRepositoryFactory backs every unit of work with the same in-process
// repositories. It is used when no database is configured, and by tests.
type MemoryRepositoryFactory struct {
	slots     *memory.SlotRepository
	fallbacks *memory.FallbackRepository
	pivots    *memory.PivotRepository
}

func NewMemoryRepositoryFactory() *MemoryRepositoryFactory {
	return &MemoryRepositoryFactory{
		slots:     memory.NewSlotRepository(),
		fallbacks: memory.NewFallbackRepository(),
		pivots:    memory.NewPivotRepository(),
	}
}

func (f *MemoryRepositoryFactory) NewUnitOfWork(ctx context.Context) UnitOfWork {
	return &memoryUnitOfWork{factory: f}
}

// memoryUnitOfWork has no transaction. Slot swaps are atomic on their own
// and the in-memory stores never fail mid-way.
type memoryUnitOfWork struct {
	factory *MemoryRepositoryFactory
}

func (u *memoryUnitOfWork) Begin(ctx context.Context) error { return nil }
func (u *memoryUnitOfWork) Commit() error                   { return nil }
func (u *memoryUnitOfWork) Rollback() error                 { return nil }

func (u *memoryUnitOfWork) SlotRepository() contract.SlotRepository {
	return u.factory.slots
}

func (u *memoryUnitOfWork) FallbackRepository() contract.FallbackRepository {
	return u.factory.fallbacks
}

func (u *memoryUnitOfWork) PivotRepository() contract.PivotRepository {
	return u.factory.pivots
}
