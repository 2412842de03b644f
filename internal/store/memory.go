package store

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// bookingEntry guards one booking; Update holds this mutex for the whole
// read-mutate-save cycle so history appends are serialized per booking.
type bookingEntry struct {
	mu      sync.Mutex
	booking types.Booking
}

type memoryBookingStore struct {
	mu       sync.RWMutex
	bookings map[uuid.UUID]*bookingEntry
	logger   *zap.Logger
}

// NewMemoryBookingStore returns an in-process booking store implementing
// the per-booking locking discipline.
func NewMemoryBookingStore(logger *zap.Logger) BookingStore {
	return &memoryBookingStore{
		bookings: make(map[uuid.UUID]*bookingEntry),
		logger:   logger,
	}
}

func (s *memoryBookingStore) Create(ctx context.Context, booking *types.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.bookings[booking.ID]; exists {
		return fmt.Errorf("booking %s already exists", booking.ID)
	}
	s.bookings[booking.ID] = &bookingEntry{booking: *cloneBooking(booking)}

	s.logger.Info("Booking created",
		zap.String("booking_id", booking.ID.String()),
		zap.String("service_type", booking.ServiceType))
	return nil
}

func (s *memoryBookingStore) entry(id uuid.UUID) (*bookingEntry, error) {
	s.mu.RLock()
	e, ok := s.bookings[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("booking %s: %w", id, types.ErrNotFound)
	}
	return e, nil
}

func (s *memoryBookingStore) Get(ctx context.Context, id uuid.UUID) (*types.Booking, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	snapshot := cloneBooking(&e.booking)
	e.mu.Unlock()
	return snapshot, nil
}

func (s *memoryBookingStore) Update(ctx context.Context, id uuid.UUID, fn func(*types.Booking) error) (*types.Booking, error) {
	e, err := s.entry(id)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	working := cloneBooking(&e.booking)
	if err := fn(working); err != nil {
		return nil, err
	}
	working.UpdatedAt = time.Now()
	e.booking = *cloneBooking(working)
	return working, nil
}

func cloneBooking(b *types.Booking) *types.Booking {
	c := *b
	c.History = append([]types.AssignmentRecord(nil), b.History...)
	if b.HelperID != nil {
		id := *b.HelperID
		c.HelperID = &id
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		c.CompletedAt = &t
	}
	return &c
}

type memoryCatalog struct {
	mu       sync.RWMutex
	services []types.Service
}

// NewMemoryCatalog returns a catalog over a fixed service list
func NewMemoryCatalog(services []types.Service) ServiceCatalog {
	return &memoryCatalog{services: services}
}

func (c *memoryCatalog) ResolveService(ctx context.Context, serviceType string) (*types.Service, error) {
	if strings.TrimSpace(serviceType) == "" {
		return nil, fmt.Errorf("service type is required: %w", types.ErrInvalidInput)
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	for i := range c.services {
		svc := &c.services[i]
		if !strings.EqualFold(svc.Category, serviceType) && !strings.EqualFold(svc.Name, serviceType) {
			continue
		}
		if !svc.Active {
			return nil, fmt.Errorf("service %q: %w", serviceType, types.ErrUnknownService)
		}
		snapshot := *svc
		return &snapshot, nil
	}
	return nil, fmt.Errorf("service %q: %w", serviceType, types.ErrUnknownService)
}
