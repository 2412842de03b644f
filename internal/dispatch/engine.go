package dispatch

import (
	"context"
	"errors"
	"fmt"

	"helper-dispatch/internal/config"
	"helper-dispatch/internal/geo"
	"helper-dispatch/internal/monitoring"
	"helper-dispatch/internal/registry"
	"helper-dispatch/internal/store"
	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Engine orchestrates one dispatch attempt: resolve the service, query the
// registry, rank candidates, reserve the best one and record the assignment
// on the booking. Failure leaves booking and registry state unchanged.
type Engine struct {
	registry registry.HelperRegistry
	bookings store.BookingStore
	catalog  store.ServiceCatalog
	metrics  *monitoring.Metrics
	clock    Clock
	logger   *zap.Logger
	cfg      config.DispatchConfig
}

func NewEngine(
	reg registry.HelperRegistry,
	bookings store.BookingStore,
	catalog store.ServiceCatalog,
	metrics *monitoring.Metrics,
	clock Clock,
	logger *zap.Logger,
	cfg config.DispatchConfig,
) *Engine {
	return &Engine{
		registry: reg,
		bookings: bookings,
		catalog:  catalog,
		metrics:  metrics,
		clock:    clock,
		logger:   logger.With(zap.String("component", "assignment_engine")),
		cfg:      cfg,
	}
}

// Assign runs a single dispatch attempt for the booking. Helpers already
// present in the booking's assignment history are never offered again.
// Returns ErrUnknownService, ErrNoCandidate, or the reserved helper plus up
// to RunnerUpCount unreserved runners-up.
func (e *Engine) Assign(ctx context.Context, bookingID uuid.UUID, location types.GeoPoint, serviceType string) (*types.AssignmentResult, error) {
	start := e.clock.Now()

	service, err := e.catalog.ResolveService(ctx, serviceType)
	if err != nil {
		e.logger.Warn("Service resolution failed",
			zap.String("booking_id", bookingID.String()),
			zap.String("service_type", serviceType),
			zap.Error(err))
		return nil, err
	}

	booking, err := e.bookings.Get(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booking: %w", err)
	}

	candidates, err := e.registry.FindCandidates(ctx, registry.CandidateQuery{
		Location:   location,
		Skills:     service.MatchSkills(),
		RadiusKm:   e.cfg.SearchRadiusKm,
		ExcludeIDs: booking.OfferedHelpers(),
	})
	if err != nil {
		return nil, fmt.Errorf("candidate query failed: %w", err)
	}
	if len(candidates) == 0 {
		e.logger.Info("No candidates in radius",
			zap.String("booking_id", bookingID.String()),
			zap.String("service_type", serviceType),
			zap.Float64("radius_km", e.cfg.SearchRadiusKm))
		e.metrics.AssignmentFailed()
		return nil, fmt.Errorf("no helper within %.0fkm for %q: %w",
			e.cfg.SearchRadiusKm, serviceType, types.ErrNoCandidate)
	}

	ranked := Rank(candidates, e.cfg.TieThresholdKm)

	chosen, chosenIdx, err := e.reserveFirst(ctx, ranked, bookingID)
	if err != nil {
		e.metrics.AssignmentFailed()
		return nil, err
	}

	assignedAt := e.clock.Now()
	updated, err := e.bookings.Update(ctx, bookingID, func(b *types.Booking) error {
		if b.Status != types.BookingStatusPending {
			return fmt.Errorf("booking %s is %s, expected pending", b.ID, b.Status)
		}
		helperID := chosen.Helper.ID
		b.Status = types.BookingStatusAssigned
		b.HelperID = &helperID
		b.Price = service.BasePrice
		b.History = append(b.History, types.AssignmentRecord{
			HelperID:   helperID,
			AssignedAt: assignedAt,
			Outcome:    types.OutcomeAssigned,
		})
		return nil
	})
	if err != nil {
		// the reservation made above is now dangling; release it before
		// the error propagates
		if relErr := e.registry.Release(ctx, chosen.Helper.ID, bookingID); relErr != nil {
			e.logger.Error("Failed to release helper after aborted assignment",
				zap.String("helper_id", chosen.Helper.ID.String()),
				zap.String("booking_id", bookingID.String()),
				zap.Error(relErr))
		}
		e.metrics.AssignmentFailed()
		return nil, fmt.Errorf("failed to record assignment: %w", err)
	}

	arrival, err := geo.EstimateArrival(chosen.Distance, types.TravelMode(e.cfg.TravelMode))
	if err != nil {
		arrival = 0
	}

	result := &types.AssignmentResult{
		Booking:        updated,
		Helper:         chosen.Helper,
		Distance:       chosen.Distance,
		ArrivalMinutes: arrival,
		RunnersUp:      runnersUp(ranked, chosenIdx, e.cfg.RunnerUpCount),
	}

	e.metrics.AssignmentCompleted(e.clock.Now().Sub(start))
	e.logger.Info("Helper assigned",
		zap.String("booking_id", bookingID.String()),
		zap.String("helper_id", chosen.Helper.ID.String()),
		zap.Float64("distance_km", chosen.Distance),
		zap.Int("arrival_minutes", arrival),
		zap.Int("runners_up", len(result.RunnersUp)))

	return result, nil
}

// reserveFirst walks the ranked list attempting reservation. Losing the
// availability race to a concurrent booking is expected; the loop simply
// moves to the next candidate.
func (e *Engine) reserveFirst(ctx context.Context, ranked []types.Candidate, bookingID uuid.UUID) (*types.Candidate, int, error) {
	for i := range ranked {
		err := e.registry.Reserve(ctx, ranked[i].Helper.ID, bookingID)
		if err == nil {
			return &ranked[i], i, nil
		}
		if errors.Is(err, types.ErrAlreadyReserved) {
			e.logger.Debug("Lost reservation race, trying next candidate",
				zap.String("helper_id", ranked[i].Helper.ID.String()),
				zap.String("booking_id", bookingID.String()))
			continue
		}
		return nil, 0, fmt.Errorf("reservation failed: %w", err)
	}
	return nil, 0, fmt.Errorf("all %d candidates reserved elsewhere: %w", len(ranked), types.ErrNoCandidate)
}

// runnersUp returns up to count candidates after the chosen one for display
// and fallback; none of them are reserved.
func runnersUp(ranked []types.Candidate, chosenIdx, count int) []types.Candidate {
	var out []types.Candidate
	for i := chosenIdx + 1; i < len(ranked) && len(out) < count; i++ {
		out = append(out, ranked[i])
	}
	return out
}
