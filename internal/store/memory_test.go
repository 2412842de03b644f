package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func newTestBooking() *types.Booking {
	now := time.Now()
	return &types.Booking{
		ID:          uuid.New(),
		RequesterID: uuid.New(),
		ServiceType: "cleaning",
		Status:      types.BookingStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func TestBookingStoreGetReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookingStore(zap.NewNop())

	booking := newTestBooking()
	if err := s.Create(ctx, booking); err != nil {
		t.Fatalf("Create: %v", err)
	}

	first, err := s.Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	first.Status = types.BookingStatusCancelled
	first.History = append(first.History, types.AssignmentRecord{HelperID: uuid.New()})

	second, err := s.Get(ctx, booking.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if second.Status != types.BookingStatusPending || len(second.History) != 0 {
		t.Error("mutating a returned booking leaked into the store")
	}
}

func TestBookingStoreGetUnknown(t *testing.T) {
	s := NewMemoryBookingStore(zap.NewNop())
	if _, err := s.Get(context.Background(), uuid.New()); !errors.Is(err, types.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestBookingStoreUpdateAbortsOnError(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookingStore(zap.NewNop())

	booking := newTestBooking()
	if err := s.Create(ctx, booking); err != nil {
		t.Fatalf("Create: %v", err)
	}

	boom := errors.New("boom")
	_, err := s.Update(ctx, booking.ID, func(b *types.Booking) error {
		b.Status = types.BookingStatusCancelled
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected fn error, got %v", err)
	}

	saved, _ := s.Get(ctx, booking.ID)
	if saved.Status != types.BookingStatusPending {
		t.Error("aborted update was saved")
	}
}

func TestBookingStoreUpdateSerializesPerBooking(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryBookingStore(zap.NewNop())

	booking := newTestBooking()
	if err := s.Create(ctx, booking); err != nil {
		t.Fatalf("Create: %v", err)
	}

	const workers = 20
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			_, err := s.Update(ctx, booking.ID, func(b *types.Booking) error {
				b.RejectionCount++
				b.History = append(b.History, types.AssignmentRecord{HelperID: uuid.New()})
				return nil
			})
			if err != nil {
				t.Errorf("Update: %v", err)
			}
		}()
	}
	wg.Wait()

	saved, _ := s.Get(ctx, booking.ID)
	if saved.RejectionCount != workers {
		t.Errorf("expected %d increments, got %d", workers, saved.RejectionCount)
	}
	if len(saved.History) != workers {
		t.Errorf("expected %d history records, got %d", workers, len(saved.History))
	}
}

func TestCatalogResolvesCategoryAndName(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCatalog([]types.Service{
		{Name: "House Cleaning", Category: "cleaning", BasePrice: 499, Active: true},
		{Name: "Old Service", Category: "legacy", BasePrice: 100, Active: false},
	})

	for _, query := range []string{"cleaning", "CLEANING", "House Cleaning", "house cleaning"} {
		svc, err := c.ResolveService(ctx, query)
		if err != nil {
			t.Fatalf("ResolveService(%q): %v", query, err)
		}
		if svc.BasePrice != 499 {
			t.Errorf("ResolveService(%q) returned wrong entry: %+v", query, svc)
		}
	}

	if _, err := c.ResolveService(ctx, "legacy"); !errors.Is(err, types.ErrUnknownService) {
		t.Errorf("inactive service must resolve to ErrUnknownService, got %v", err)
	}
	if _, err := c.ResolveService(ctx, "gardening"); !errors.Is(err, types.ErrUnknownService) {
		t.Errorf("expected ErrUnknownService, got %v", err)
	}
	if _, err := c.ResolveService(ctx, "  "); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput for blank type, got %v", err)
	}
}
