package store

import (
	"context"

	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
)

// BookingStore is the booking persistence contract. Update serializes every
// mutation of one booking behind a per-booking mutual-exclusion scope:
// accept, reject and timeout-fire all race on the same booking and must
// observe each other's writes. The function receives the current booking,
// mutates it in place, and the result is saved before the lock is dropped.
// Returning an error from fn aborts the save.
type BookingStore interface {
	Create(ctx context.Context, booking *types.Booking) error
	Get(ctx context.Context, id uuid.UUID) (*types.Booking, error)
	Update(ctx context.Context, id uuid.UUID, fn func(*types.Booking) error) (*types.Booking, error)
}

// ServiceCatalog resolves a booking's service type to its catalog entry.
// Resolution is by category or display-name alias; inactive entries resolve
// to ErrUnknownService.
type ServiceCatalog interface {
	ResolveService(ctx context.Context, serviceType string) (*types.Service, error)
}
