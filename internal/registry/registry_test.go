package registry

import (
	"context"
	"errors"
	"sync"
	"testing"

	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

var center = types.GeoPoint{Longitude: 77.2090, Latitude: 28.6139}

func newTestRegistry(t *testing.T) HelperRegistry {
	t.Helper()
	return NewMemoryRegistry(zap.NewNop())
}

func register(t *testing.T, r HelperRegistry, name string, loc types.GeoPoint, rating float64, skills ...string) *types.Helper {
	t.Helper()
	h, err := r.Register(context.Background(), &types.HelperRegistration{
		Name:     name,
		Skills:   skills,
		Location: loc,
		Rating:   rating,
	})
	if err != nil {
		t.Fatalf("Register(%s): %v", name, err)
	}
	return h
}

// offset roughly n km north of center (1 degree latitude ~ 111km)
func north(km float64) types.GeoPoint {
	return types.GeoPoint{Longitude: center.Longitude, Latitude: center.Latitude + km/111.0}
}

func TestFindCandidatesFilters(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)

	near := register(t, r, "near", north(1), 4.5, "Plumbing")
	register(t, r, "far", north(50), 4.9, "Plumbing")
	register(t, r, "wrong skill", north(1), 4.8, "Electrical")
	busy := register(t, r, "busy", north(2), 4.7, "Plumbing")
	if err := r.Reserve(ctx, busy.ID, uuid.New()); err != nil {
		t.Fatalf("Reserve: %v", err)
	}

	candidates, err := r.FindCandidates(ctx, CandidateQuery{
		Location: center,
		Skills:   []string{"Plumbing"},
		RadiusKm: 10,
	})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}

	if len(candidates) != 1 {
		t.Fatalf("expected 1 candidate, got %d", len(candidates))
	}
	c := candidates[0]
	if c.Helper.ID != near.ID {
		t.Errorf("expected helper %s, got %s", near.ID, c.Helper.ID)
	}
	if !c.Helper.Available {
		t.Error("candidate must be available")
	}
	if c.Distance > 10 {
		t.Errorf("candidate outside radius: %v km", c.Distance)
	}
	if !c.Helper.HasSkill("Plumbing") {
		t.Error("candidate missing required skill")
	}
}

func TestFindCandidatesSkillAlias(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	register(t, r, "by display name", north(1), 4.0, "Home Plumbing")

	candidates, err := r.FindCandidates(ctx, CandidateQuery{
		Location: center,
		Skills:   []string{"Plumbing", "Home Plumbing"},
		RadiusKm: 10,
	})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(candidates) != 1 {
		t.Fatalf("expected alias match, got %d candidates", len(candidates))
	}
}

func TestFindCandidatesExclusion(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	a := register(t, r, "a", north(1), 4.0, "Cleaning")
	b := register(t, r, "b", north(2), 4.0, "Cleaning")

	candidates, err := r.FindCandidates(ctx, CandidateQuery{
		Location:   center,
		Skills:     []string{"Cleaning"},
		RadiusKm:   10,
		ExcludeIDs: []uuid.UUID{a.ID},
	})
	if err != nil {
		t.Fatalf("FindCandidates: %v", err)
	}
	if len(candidates) != 1 || candidates[0].Helper.ID != b.ID {
		t.Fatalf("exclusion not applied: %+v", candidates)
	}
}

func TestReserveExclusive(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	h := register(t, r, "contested", north(1), 4.0, "Plumbing")

	const attempts = 16
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Reserve(ctx, h.ID, uuid.New())
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else if !errors.Is(err, types.ErrAlreadyReserved) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if successes != 1 {
		t.Errorf("expected exactly one successful reserve, got %d", successes)
	}
}

func TestReleaseRestoresAvailability(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	h := register(t, r, "h", north(1), 4.0, "Plumbing")
	bookingID := uuid.New()

	if err := r.Reserve(ctx, h.ID, bookingID); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	got, _ := r.Get(ctx, h.ID)
	if got.Available {
		t.Fatal("helper should be unavailable after reserve")
	}
	if len(got.ActiveBookings) != 1 || got.ActiveBookings[0] != bookingID {
		t.Fatalf("active bookings not recorded: %+v", got.ActiveBookings)
	}

	if err := r.Release(ctx, h.ID, bookingID); err != nil {
		t.Fatalf("Release: %v", err)
	}
	got, _ = r.Get(ctx, h.ID)
	if !got.Available {
		t.Error("helper should be available after release")
	}
	if len(got.ActiveBookings) != 0 {
		t.Errorf("active bookings not cleared: %+v", got.ActiveBookings)
	}
}

func TestReleaseKeepsOtherReservation(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	h := register(t, r, "h", north(1), 4.0, "Plumbing")
	first := uuid.New()
	other := uuid.New()

	if err := r.Reserve(ctx, h.ID, first); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	// releasing a booking the helper never held must not free the live one
	if err := r.Release(ctx, h.ID, other); err != nil {
		t.Fatalf("Release: %v", err)
	}
	got, _ := r.Get(ctx, h.ID)
	if got.Available {
		t.Error("release of unrelated booking must not restore availability")
	}
	if len(got.ActiveBookings) != 1 {
		t.Errorf("live reservation clobbered: %+v", got.ActiveBookings)
	}
}

func TestUpdateLocationIdempotent(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	h := register(t, r, "h", north(1), 4.0, "Plumbing")

	loc := north(3)
	for i := 0; i < 2; i++ {
		if err := r.UpdateLocation(ctx, h.ID, loc); err != nil {
			t.Fatalf("UpdateLocation: %v", err)
		}
	}
	got, _ := r.Get(ctx, h.ID)
	if got.Location != loc {
		t.Errorf("location not overwritten: %+v", got.Location)
	}
}

func TestSetAvailabilityToggle(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	h := register(t, r, "h", north(1), 4.0, "Plumbing")

	if err := r.SetAvailability(ctx, h.ID, false); err != nil {
		t.Fatalf("SetAvailability(false): %v", err)
	}
	got, _ := r.Get(ctx, h.ID)
	if got.Available {
		t.Error("helper should be off duty")
	}

	if err := r.SetAvailability(ctx, h.ID, true); err != nil {
		t.Fatalf("SetAvailability(true): %v", err)
	}
	got, _ = r.Get(ctx, h.ID)
	if !got.Available {
		t.Error("helper should be back on duty")
	}
}

func TestSetAvailabilityRefusedWhileReserved(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	h := register(t, r, "h", north(1), 4.0, "Plumbing")

	if err := r.Reserve(ctx, h.ID, uuid.New()); err != nil {
		t.Fatalf("Reserve: %v", err)
	}
	if err := r.SetAvailability(ctx, h.ID, true); !errors.Is(err, types.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput while reserved, got %v", err)
	}
}

func TestUnknownHelper(t *testing.T) {
	ctx := context.Background()
	r := newTestRegistry(t)
	if err := r.Reserve(ctx, uuid.New(), uuid.New()); !errors.Is(err, types.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
