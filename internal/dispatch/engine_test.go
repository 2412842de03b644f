package dispatch

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"helper-dispatch/internal/config"
	"helper-dispatch/internal/monitoring"
	"helper-dispatch/internal/notification"
	"helper-dispatch/internal/registry"
	"helper-dispatch/internal/store"
	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var testCenter = types.GeoPoint{Longitude: 77.2090, Latitude: 28.6139}

var testServices = []types.Service{
	{Name: "House Cleaning", Category: "cleaning", BasePrice: 499, Active: true},
	{Name: "Plumbing", Category: "plumbing", BasePrice: 399, Active: true},
}

func testConfig() config.DispatchConfig {
	return config.DispatchConfig{
		SearchRadiusKm:  10,
		ResponseTimeout: 30 * time.Second,
		MaxRejections:   3,
		RunnerUpCount:   2,
		TieThresholdKm:  0.1,
		TravelMode:      "bike",
	}
}

type fixture struct {
	t        *testing.T
	reg      registry.HelperRegistry
	bookings store.BookingStore
	clock    *fakeClock
	engine   *Engine
	sup      *Supervisor
	coord    *Coordinator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	logger := zap.NewNop()
	clock := newFakeClock()
	cfg := testConfig()

	reg := registry.NewMemoryRegistry(logger)
	bookings := store.NewMemoryBookingStore(logger)
	catalog := store.NewMemoryCatalog(testServices)
	metrics := monitoring.NewMetrics(logger)

	engine := NewEngine(reg, bookings, catalog, metrics, clock, logger, cfg)
	sup := NewSupervisor(clock, cfg.ResponseTimeout, logger)
	coord := NewCoordinator(engine, sup, bookings, reg, notification.NewLogSink(logger), metrics, clock, logger, cfg)

	return &fixture{
		t:        t,
		reg:      reg,
		bookings: bookings,
		clock:    clock,
		engine:   engine,
		sup:      sup,
		coord:    coord,
	}
}

// northOf is roughly km north of the test center (1 degree latitude ~ 111km)
func northOf(km float64) types.GeoPoint {
	return types.GeoPoint{Longitude: testCenter.Longitude, Latitude: testCenter.Latitude + km/111.0}
}

func (f *fixture) addHelper(name string, km, rating float64) *types.Helper {
	f.t.Helper()
	h, err := f.reg.Register(context.Background(), &types.HelperRegistration{
		Name:     name,
		Skills:   []string{"cleaning"},
		Location: northOf(km),
		Rating:   rating,
	})
	if err != nil {
		f.t.Fatalf("Register(%s): %v", name, err)
	}
	return h
}

func (f *fixture) createBooking() *types.Booking {
	f.t.Helper()
	now := f.clock.Now()
	booking := &types.Booking{
		ID:          uuid.New(),
		RequesterID: uuid.New(),
		ServiceType: "cleaning",
		Status:      types.BookingStatusPending,
		Location:    testCenter,
		ScheduledAt: now,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := f.bookings.Create(context.Background(), booking); err != nil {
		f.t.Fatalf("Create booking: %v", err)
	}
	return booking
}

func (f *fixture) getBooking(id uuid.UUID) *types.Booking {
	f.t.Helper()
	b, err := f.bookings.Get(context.Background(), id)
	if err != nil {
		f.t.Fatalf("Get booking: %v", err)
	}
	return b
}

func (f *fixture) getHelper(id uuid.UUID) *types.Helper {
	f.t.Helper()
	h, err := f.reg.Get(context.Background(), id)
	if err != nil {
		f.t.Fatalf("Get helper: %v", err)
	}
	return h
}

func TestAssignPicksNearest(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	near := f.addHelper("near", 1, 4.0)
	far := f.addHelper("far", 3, 5.0)
	booking := f.createBooking()

	result, err := f.engine.Assign(ctx, booking.ID, booking.Location, booking.ServiceType)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if result.Helper.ID != near.ID {
		t.Fatalf("expected nearest helper %s, got %s", near.Name, result.Helper.Name)
	}
	if result.ArrivalMinutes <= 0 {
		t.Errorf("expected positive arrival estimate, got %d", result.ArrivalMinutes)
	}

	saved := f.getBooking(booking.ID)
	if saved.Status != types.BookingStatusAssigned {
		t.Errorf("expected status assigned, got %s", saved.Status)
	}
	if saved.HelperID == nil || *saved.HelperID != near.ID {
		t.Error("booking does not reference the assigned helper")
	}
	if saved.Price != 499 {
		t.Errorf("expected price snapshot 499, got %v", saved.Price)
	}
	if len(saved.History) != 1 || saved.History[0].Outcome != types.OutcomeAssigned {
		t.Errorf("expected one live history record, got %+v", saved.History)
	}

	if f.getHelper(near.ID).Available {
		t.Error("assigned helper still marked available")
	}

	if len(result.RunnersUp) != 1 || result.RunnersUp[0].Helper.ID != far.ID {
		t.Fatalf("expected one runner-up, got %+v", result.RunnersUp)
	}
	if !f.getHelper(far.ID).Available {
		t.Error("runner-up must remain available")
	}
}

func TestAssignServiceNameAlias(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.addHelper("cleaner", 1, 4.0)
	booking := f.createBooking()

	// the display name resolves to the same catalog entry as the category
	result, err := f.engine.Assign(ctx, booking.ID, booking.Location, "House Cleaning")
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if result.Helper.Name != "cleaner" {
		t.Errorf("unexpected helper %s", result.Helper.Name)
	}
}

func TestAssignUnknownService(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	booking := f.createBooking()

	_, err := f.engine.Assign(ctx, booking.ID, booking.Location, "exorcism")
	if !errors.Is(err, types.ErrUnknownService) {
		t.Fatalf("expected ErrUnknownService, got %v", err)
	}
}

func TestAssignNoCandidateKeepsPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.addHelper("too far", 50, 5.0)
	booking := f.createBooking()

	_, err := f.engine.Assign(ctx, booking.ID, booking.Location, booking.ServiceType)
	if !errors.Is(err, types.ErrNoCandidate) {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}

	saved := f.getBooking(booking.ID)
	if saved.Status != types.BookingStatusPending {
		t.Errorf("failed dispatch must leave booking pending, got %s", saved.Status)
	}
	if len(saved.History) != 0 {
		t.Errorf("failed dispatch must not write history, got %+v", saved.History)
	}
}

func TestAssignExcludesPreviouslyOffered(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	prior := f.addHelper("prior", 1, 5.0)
	next := f.addHelper("next", 4, 3.0)
	booking := f.createBooking()

	rejectedAt := f.clock.Now()
	_, err := f.bookings.Update(ctx, booking.ID, func(b *types.Booking) error {
		b.History = append(b.History, types.AssignmentRecord{
			HelperID:   prior.ID,
			AssignedAt: rejectedAt,
			Outcome:    types.OutcomeRejected,
			RejectedAt: &rejectedAt,
		})
		b.RejectionCount = 1
		return nil
	})
	if err != nil {
		t.Fatalf("seed history: %v", err)
	}

	result, err := f.engine.Assign(ctx, booking.ID, booking.Location, booking.ServiceType)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if result.Helper.ID != next.ID {
		t.Fatalf("previously offered helper was offered again: %s", result.Helper.Name)
	}
}

// racingRegistry steals the named helper between the candidate query and
// the reservation attempt, emulating a concurrent booking winning the race.
type racingRegistry struct {
	registry.HelperRegistry
	victim uuid.UUID
	once   sync.Once
}

func (r *racingRegistry) FindCandidates(ctx context.Context, q registry.CandidateQuery) ([]types.Candidate, error) {
	candidates, err := r.HelperRegistry.FindCandidates(ctx, q)
	r.once.Do(func() {
		if rerr := r.HelperRegistry.Reserve(ctx, r.victim, uuid.New()); rerr != nil {
			panic(rerr)
		}
	})
	return candidates, err
}

func TestAssignFallsBackWhenReservationLost(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	near := f.addHelper("near", 1, 4.0)
	far := f.addHelper("far", 3, 4.0)
	booking := f.createBooking()

	racing := &racingRegistry{HelperRegistry: f.reg, victim: near.ID}
	engine := NewEngine(racing, f.bookings, store.NewMemoryCatalog(testServices),
		monitoring.NewMetrics(zap.NewNop()), f.clock, zap.NewNop(), testConfig())

	result, err := engine.Assign(ctx, booking.ID, booking.Location, booking.ServiceType)
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}

	if result.Helper.ID != far.ID {
		t.Fatalf("expected fallback to next candidate, got %s", result.Helper.Name)
	}
}

func TestAssignRollbackReleasesReservation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	helper := f.addHelper("helper", 1, 4.0)
	booking := f.createBooking()

	// force the status check inside the booking update to fail
	_, err := f.bookings.Update(ctx, booking.ID, func(b *types.Booking) error {
		b.Status = types.BookingStatusAccepted
		return nil
	})
	if err != nil {
		t.Fatalf("seed status: %v", err)
	}

	if _, err := f.engine.Assign(ctx, booking.ID, booking.Location, booking.ServiceType); err == nil {
		t.Fatal("expected assignment to fail on non-pending booking")
	}

	if !f.getHelper(helper.ID).Available {
		t.Error("aborted assignment left the helper reserved")
	}
}
