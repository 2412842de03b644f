package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type expiryRecorder struct {
	mu    sync.Mutex
	fired []struct{ booking, helper uuid.UUID }
}

func (r *expiryRecorder) handler(ctx context.Context, bookingID, helperID uuid.UUID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.fired = append(r.fired, struct{ booking, helper uuid.UUID }{bookingID, helperID})
}

func (r *expiryRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func newTestSupervisor(t *testing.T) (*Supervisor, *fakeClock, *expiryRecorder) {
	t.Helper()
	clock := newFakeClock()
	rec := &expiryRecorder{}
	s := NewSupervisor(clock, 30*time.Second, zap.NewNop())
	s.SetExpiryHandler(rec.handler)
	return s, clock, rec
}

func TestSupervisorFiresAfterTimeout(t *testing.T) {
	s, clock, rec := newTestSupervisor(t)
	bookingID, helperID := uuid.New(), uuid.New()

	s.Arm(bookingID, helperID)

	clock.Advance(29 * time.Second)
	if rec.count() != 0 {
		t.Fatal("timer fired before the window elapsed")
	}

	clock.Advance(time.Second)
	if rec.count() != 1 {
		t.Fatalf("expected 1 firing, got %d", rec.count())
	}
	if rec.fired[0].booking != bookingID || rec.fired[0].helper != helperID {
		t.Error("firing carried wrong identifiers")
	}
	if s.Armed(bookingID) {
		t.Error("timer still armed after firing")
	}
}

func TestSupervisorCancelPreventsFiring(t *testing.T) {
	s, clock, rec := newTestSupervisor(t)
	bookingID := uuid.New()

	s.Arm(bookingID, uuid.New())
	s.Cancel(bookingID)

	clock.Advance(time.Minute)
	if rec.count() != 0 {
		t.Fatal("cancelled timer fired")
	}
}

func TestSupervisorCancelIsIdempotent(t *testing.T) {
	s, _, _ := newTestSupervisor(t)
	bookingID := uuid.New()

	s.Cancel(bookingID)

	s.Arm(bookingID, uuid.New())
	s.Cancel(bookingID)
	s.Cancel(bookingID)

	if s.Armed(bookingID) {
		t.Error("booking still armed after cancel")
	}
}

func TestSupervisorRearmReplacesTimer(t *testing.T) {
	s, clock, rec := newTestSupervisor(t)
	bookingID := uuid.New()
	second := uuid.New()

	s.Arm(bookingID, uuid.New())
	clock.Advance(20 * time.Second)

	// a reassignment offers the booking to a new helper
	s.Arm(bookingID, second)

	clock.Advance(15 * time.Second)
	if rec.count() != 0 {
		t.Fatal("replaced timer fired on the old deadline")
	}

	clock.Advance(15 * time.Second)
	if rec.count() != 1 {
		t.Fatalf("expected 1 firing, got %d", rec.count())
	}
	if rec.fired[0].helper != second {
		t.Error("firing carried the replaced helper")
	}
}

func TestSupervisorKeepsOneTimerPerBooking(t *testing.T) {
	s, clock, rec := newTestSupervisor(t)

	first, second := uuid.New(), uuid.New()
	s.Arm(first, uuid.New())
	s.Arm(second, uuid.New())

	clock.Advance(30 * time.Second)
	if rec.count() != 2 {
		t.Fatalf("expected both bookings to fire, got %d", rec.count())
	}
}
