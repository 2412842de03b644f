package dispatch

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExpiryHandler is invoked when a response window elapses without the
// helper answering. The handler owns the decision of whether the expiry is
// still relevant (the booking may already have moved past "assigned").
type ExpiryHandler func(ctx context.Context, bookingID, helperID uuid.UUID)

// OfferTimer is the response-window countdown used by the coordinator. The
// in-process Supervisor is the default; a durable backend can stand in for
// multi-instance deployments.
type OfferTimer interface {
	SetExpiryHandler(h ExpiryHandler)
	Arm(bookingID, helperID uuid.UUID)
	Cancel(bookingID uuid.UUID)
}

// Supervisor keeps at most one live response timer per booking. Arming a
// booking cancels and replaces any existing timer; Cancel is idempotent and
// safe to call from a different goroutine than the one that armed, including
// while the callback is already running — the callback's status re-check
// under the booking lock is the real guard, not the cancel itself.
type Supervisor struct {
	mu      sync.Mutex
	timers  map[uuid.UUID]*armedTimer
	clock   Clock
	timeout time.Duration
	expire  ExpiryHandler
	logger  *zap.Logger
}

type armedTimer struct {
	timer    Timer
	helperID uuid.UUID
}

func NewSupervisor(clock Clock, timeout time.Duration, logger *zap.Logger) *Supervisor {
	return &Supervisor{
		timers:  make(map[uuid.UUID]*armedTimer),
		clock:   clock,
		timeout: timeout,
		logger:  logger.With(zap.String("component", "timeout_supervisor")),
	}
}

// SetExpiryHandler wires the timeout target; set once at startup before any
// Arm call.
func (s *Supervisor) SetExpiryHandler(h ExpiryHandler) {
	s.expire = h
}

// Arm starts the response countdown for the booking's current offer
func (s *Supervisor) Arm(bookingID, helperID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.timers[bookingID]; ok {
		existing.timer.Stop()
		delete(s.timers, bookingID)
	}

	timer := s.clock.AfterFunc(s.timeout, func() {
		s.fire(bookingID, helperID)
	})
	s.timers[bookingID] = &armedTimer{timer: timer, helperID: helperID}

	s.logger.Info("Response timer armed",
		zap.String("booking_id", bookingID.String()),
		zap.String("helper_id", helperID.String()),
		zap.Duration("timeout", s.timeout))
}

// Cancel stops the booking's timer if one is armed. Safe when no timer
// exists or when it already fired.
func (s *Supervisor) Cancel(bookingID uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if armed, ok := s.timers[bookingID]; ok {
		armed.timer.Stop()
		delete(s.timers, bookingID)
		s.logger.Info("Response timer cancelled", zap.String("booking_id", bookingID.String()))
	}
}

// Armed reports whether a live timer exists for the booking
func (s *Supervisor) Armed(bookingID uuid.UUID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.timers[bookingID]
	return ok
}

func (s *Supervisor) fire(bookingID, helperID uuid.UUID) {
	s.mu.Lock()
	// a replacement timer may have been armed for a newer offer; only the
	// entry holding the same helper belongs to this firing
	if armed, ok := s.timers[bookingID]; ok && armed.helperID == helperID {
		delete(s.timers, bookingID)
	}
	expire := s.expire
	s.mu.Unlock()

	s.logger.Info("Response timer fired",
		zap.String("booking_id", bookingID.String()),
		zap.String("helper_id", helperID.String()))

	if expire != nil {
		expire(context.Background(), bookingID, helperID)
	}
}
