package dispatch

import (
	"context"
	"errors"
	"fmt"

	"helper-dispatch/internal/config"
	"helper-dispatch/internal/monitoring"
	"helper-dispatch/internal/notification"
	"helper-dispatch/internal/registry"
	"helper-dispatch/internal/store"
	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TimeoutReason is recorded on history entries written by the timeout path
const TimeoutReason = "no response within timeout"

// ErrStaleOffer signals that a rejection, timeout or acceptance arrived for
// an offer the booking no longer holds (already accepted, reassigned or
// cancelled). The timeout path swallows it; the API maps it to a conflict.
var ErrStaleOffer = errors.New("offer no longer current")

// Coordinator is the state machine gluing rejection and timeout events to
// the assignment engine, enforcing the rejection ceiling and the
// no-repeat-offer rule.
type Coordinator struct {
	engine     *Engine
	supervisor OfferTimer
	bookings   store.BookingStore
	registry   registry.HelperRegistry
	notifier   notification.Sink
	metrics    *monitoring.Metrics
	clock      Clock
	logger     *zap.Logger
	cfg        config.DispatchConfig
}

func NewCoordinator(
	engine *Engine,
	supervisor OfferTimer,
	bookings store.BookingStore,
	reg registry.HelperRegistry,
	notifier notification.Sink,
	metrics *monitoring.Metrics,
	clock Clock,
	logger *zap.Logger,
	cfg config.DispatchConfig,
) *Coordinator {
	c := &Coordinator{
		engine:     engine,
		supervisor: supervisor,
		bookings:   bookings,
		registry:   reg,
		notifier:   notifier,
		metrics:    metrics,
		clock:      clock,
		logger:     logger.With(zap.String("component", "reassignment_coordinator")),
		cfg:        cfg,
	}
	supervisor.SetExpiryHandler(c.HandleTimeout)
	return c
}

// Dispatch runs the booking's first (or next) assignment attempt, arms the
// response timer and notifies both parties. Used by booking intake and by
// the failure path for reassignment rounds.
func (c *Coordinator) Dispatch(ctx context.Context, bookingID uuid.UUID, location types.GeoPoint, serviceType string) (*types.AssignmentResult, error) {
	result, err := c.engine.Assign(ctx, bookingID, location, serviceType)
	if err != nil {
		return nil, err
	}

	c.supervisor.Arm(bookingID, result.Helper.ID)

	c.notify(ctx, func() error {
		return c.notifier.NotifyHelper(ctx, result.Helper.ID, notification.BookingOffered{
			BookingID:      bookingID,
			ServiceType:    serviceType,
			Location:       location,
			ArrivalMinutes: result.ArrivalMinutes,
			TimeoutSeconds: int(c.cfg.ResponseTimeout.Seconds()),
		})
	})
	c.notify(ctx, func() error {
		return c.notifier.NotifyRequester(ctx, result.Booking.RequesterID, notification.HelperAssigned{
			BookingID:      bookingID,
			HelperID:       result.Helper.ID,
			HelperName:     result.Helper.Name,
			Rating:         result.Helper.Rating,
			DistanceKm:     result.Distance,
			ArrivalMinutes: result.ArrivalMinutes,
		})
	})

	return result, nil
}

// Accept transitions the booking to accepted on behalf of the offered
// helper. The status transition happens under the booking lock before the
// timer is cancelled, so a timeout firing in the same instant observes the
// new status and no-ops.
func (c *Coordinator) Accept(ctx context.Context, bookingID, helperID uuid.UUID) (*types.Booking, error) {
	updated, err := c.bookings.Update(ctx, bookingID, func(b *types.Booking) error {
		if b.Status != types.BookingStatusAssigned || b.HelperID == nil || *b.HelperID != helperID {
			return fmt.Errorf("booking %s is %s: %w", b.ID, b.Status, ErrStaleOffer)
		}
		b.Status = types.BookingStatusAccepted
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.supervisor.Cancel(bookingID)
	c.metrics.BookingAccepted()

	c.logger.Info("Booking accepted",
		zap.String("booking_id", bookingID.String()),
		zap.String("helper_id", helperID.String()))

	c.notify(ctx, func() error {
		return c.notifier.NotifyRequester(ctx, updated.RequesterID, notification.BookingAccepted{
			BookingID: bookingID,
			HelperID:  helperID,
		})
	})

	return updated, nil
}

// HandleRejection processes an explicit rejection from the offered helper
// and retries with the next-best candidate, excluding everyone already
// offered. Returns ErrExhausted once the rejection ceiling is crossed.
func (c *Coordinator) HandleRejection(ctx context.Context, bookingID, helperID uuid.UUID, reason string) (*types.AssignmentResult, error) {
	if reason == "" {
		reason = "helper rejected the booking"
	}
	return c.handleFailure(ctx, bookingID, helperID, reason, types.OutcomeRejected)
}

// HandleTimeout is the supervisor's expiry handler. An elapsed window is an
// implicit rejection; if the booking has already moved past "assigned" the
// firing is stale and ignored.
func (c *Coordinator) HandleTimeout(ctx context.Context, bookingID, helperID uuid.UUID) {
	c.metrics.ResponseTimeout()

	_, err := c.handleFailure(ctx, bookingID, helperID, TimeoutReason, types.OutcomeTimeout)
	switch {
	case err == nil:
	case errors.Is(err, ErrStaleOffer):
		c.logger.Debug("Timeout fired for a stale offer, ignoring",
			zap.String("booking_id", bookingID.String()),
			zap.String("helper_id", helperID.String()))
	case errors.Is(err, types.ErrNoCandidate), errors.Is(err, types.ErrExhausted):
		c.logger.Info("Timeout reassignment ended without a helper",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err))
	default:
		c.logger.Error("Timeout reassignment failed",
			zap.String("booking_id", bookingID.String()),
			zap.Error(err))
	}
}

func (c *Coordinator) handleFailure(ctx context.Context, bookingID, helperID uuid.UUID, reason string, outcome types.AssignmentOutcome) (*types.AssignmentResult, error) {
	rejectedAt := c.clock.Now()

	updated, err := c.bookings.Update(ctx, bookingID, func(b *types.Booking) error {
		if b.Status != types.BookingStatusAssigned || b.HelperID == nil || *b.HelperID != helperID {
			return fmt.Errorf("booking %s is %s: %w", b.ID, b.Status, ErrStaleOffer)
		}
		rec := b.LiveRecord(helperID)
		if rec == nil {
			return fmt.Errorf("no live assignment for helper %s: %w", helperID, ErrStaleOffer)
		}

		rec.Outcome = outcome
		rec.RejectedAt = &rejectedAt
		rec.Reason = reason
		b.RejectionCount++
		b.HelperID = nil

		if b.RejectionCount > c.cfg.MaxRejections {
			b.Status = types.BookingStatusNoHelperAvailable
		} else {
			b.Status = types.BookingStatusPending
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// the timer is dropped only after the update succeeds: a rejection from
	// a helper who does not hold the offer must not kill the live window
	c.supervisor.Cancel(bookingID)

	if relErr := c.registry.Release(ctx, helperID, bookingID); relErr != nil {
		c.logger.Error("Failed to release rejecting helper",
			zap.String("helper_id", helperID.String()),
			zap.String("booking_id", bookingID.String()),
			zap.Error(relErr))
	}

	if outcome == types.OutcomeTimeout {
		c.notify(ctx, func() error {
			return c.notifier.NotifyHelper(ctx, helperID, notification.OfferTimedOut{BookingID: bookingID})
		})
	}

	c.metrics.RejectionRecorded(string(outcome))
	c.logger.Info("Offer failed",
		zap.String("booking_id", bookingID.String()),
		zap.String("helper_id", helperID.String()),
		zap.String("outcome", string(outcome)),
		zap.String("reason", reason),
		zap.Int("rejection_count", updated.RejectionCount))

	if updated.Status == types.BookingStatusNoHelperAvailable {
		c.metrics.BookingExhausted()
		c.logger.Warn("Rejection ceiling reached, booking abandoned",
			zap.String("booking_id", bookingID.String()),
			zap.Int("rejection_count", updated.RejectionCount))

		c.notify(ctx, func() error {
			return c.notifier.NotifyRequester(ctx, updated.RequesterID, notification.BookingFailed{
				BookingID: bookingID,
				Message:   "Unable to find an available helper. Please try again later.",
			})
		})
		return nil, fmt.Errorf("booking %s after %d rejections: %w", bookingID, updated.RejectionCount, types.ErrExhausted)
	}

	result, err := c.Dispatch(ctx, bookingID, updated.Location, updated.ServiceType)
	if err != nil {
		// the booking stays pending: still searching, nothing found yet
		c.notify(ctx, func() error {
			return c.notifier.NotifyRequester(ctx, updated.RequesterID, notification.ReassignmentFailed{
				BookingID: bookingID,
				Message:   "Unable to reassign a helper. Searching for alternatives...",
			})
		})
		return nil, err
	}

	c.metrics.ReassignmentCompleted()
	c.notify(ctx, func() error {
		return c.notifier.NotifyRequester(ctx, updated.RequesterID, notification.HelperReassigned{
			BookingID:  bookingID,
			HelperID:   result.Helper.ID,
			HelperName: result.Helper.Name,
			Rating:     result.Helper.Rating,
			DistanceKm: result.Distance,
		})
	})

	return result, nil
}

// Cancel is the external-cancel hook: terminal, releases any reserved
// helper and drops the outstanding timer.
func (c *Coordinator) Cancel(ctx context.Context, bookingID uuid.UUID) (*types.Booking, error) {
	var reserved *uuid.UUID

	updated, err := c.bookings.Update(ctx, bookingID, func(b *types.Booking) error {
		if b.Status.Terminal() {
			return fmt.Errorf("booking %s is already %s: %w", b.ID, b.Status, ErrStaleOffer)
		}
		reserved = b.HelperID
		b.Status = types.BookingStatusCancelled
		b.HelperID = nil
		return nil
	})
	if err != nil {
		return nil, err
	}

	c.supervisor.Cancel(bookingID)

	if reserved != nil {
		if relErr := c.registry.Release(ctx, *reserved, bookingID); relErr != nil {
			c.logger.Error("Failed to release helper on cancellation",
				zap.String("helper_id", reserved.String()),
				zap.String("booking_id", bookingID.String()),
				zap.Error(relErr))
		}
		c.notify(ctx, func() error {
			return c.notifier.NotifyHelper(ctx, *reserved, notification.BookingCancelled{BookingID: bookingID})
		})
	}

	c.logger.Info("Booking cancelled", zap.String("booking_id", bookingID.String()))
	return updated, nil
}

// notify delivers fire-and-forget; the core never depends on sink success
func (c *Coordinator) notify(ctx context.Context, send func() error) {
	if err := send(); err != nil {
		c.logger.Warn("Notification delivery failed", zap.Error(err))
	}
}
