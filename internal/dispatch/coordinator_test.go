package dispatch

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
)

func TestDispatchArmsResponseTimer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	helper := f.addHelper("helper", 1, 4.0)
	booking := f.createBooking()

	result, err := f.coord.Dispatch(ctx, booking.ID, booking.Location, booking.ServiceType)
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	if result.Helper.ID != helper.ID {
		t.Errorf("unexpected helper %s", result.Helper.Name)
	}
	if !f.sup.Armed(booking.ID) {
		t.Error("dispatch must arm the response timer")
	}
}

func TestAcceptStopsTheClock(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	helper := f.addHelper("helper", 1, 4.0)
	booking := f.createBooking()

	if _, err := f.coord.Dispatch(ctx, booking.ID, booking.Location, booking.ServiceType); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	accepted, err := f.coord.Accept(ctx, booking.ID, helper.ID)
	if err != nil {
		t.Fatalf("Accept: %v", err)
	}
	if accepted.Status != types.BookingStatusAccepted {
		t.Fatalf("expected accepted, got %s", accepted.Status)
	}
	if f.sup.Armed(booking.ID) {
		t.Error("timer still armed after acceptance")
	}

	// a window elapsing after acceptance must not disturb the booking
	f.clock.Advance(time.Minute)
	if f.getBooking(booking.ID).Status != types.BookingStatusAccepted {
		t.Error("accepted booking was reassigned after the fact")
	}
}

func TestAcceptByWrongHelperIsStale(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.addHelper("helper", 1, 4.0)
	booking := f.createBooking()

	if _, err := f.coord.Dispatch(ctx, booking.ID, booking.Location, booking.ServiceType); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	_, err := f.coord.Accept(ctx, booking.ID, uuid.New())
	if !errors.Is(err, ErrStaleOffer) {
		t.Fatalf("expected ErrStaleOffer, got %v", err)
	}
	if f.getBooking(booking.ID).Status != types.BookingStatusAssigned {
		t.Error("failed acceptance must not change the booking")
	}
	if !f.sup.Armed(booking.ID) {
		t.Error("failed acceptance must leave the timer armed")
	}
}

func TestRejectionReassignsToNextCandidate(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	near := f.addHelper("near", 1, 4.0)
	far := f.addHelper("far", 3, 4.0)
	booking := f.createBooking()

	if _, err := f.coord.Dispatch(ctx, booking.ID, booking.Location, booking.ServiceType); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	result, err := f.coord.HandleRejection(ctx, booking.ID, near.ID, "busy with another job")
	if err != nil {
		t.Fatalf("HandleRejection: %v", err)
	}
	if result.Helper.ID != far.ID {
		t.Fatalf("expected reassignment to %s, got %s", far.Name, result.Helper.Name)
	}

	saved := f.getBooking(booking.ID)
	if saved.Status != types.BookingStatusAssigned {
		t.Errorf("expected assigned, got %s", saved.Status)
	}
	if saved.HelperID == nil || *saved.HelperID != far.ID {
		t.Error("booking does not reference the new helper")
	}
	if saved.RejectionCount != 1 {
		t.Errorf("expected rejection count 1, got %d", saved.RejectionCount)
	}
	if len(saved.History) != 2 {
		t.Fatalf("expected 2 history records, got %d", len(saved.History))
	}

	first := saved.History[0]
	if first.HelperID != near.ID || first.Outcome != types.OutcomeRejected {
		t.Errorf("first record not marked rejected: %+v", first)
	}
	if first.RejectedAt == nil || first.Reason != "busy with another job" {
		t.Errorf("rejection details missing: %+v", first)
	}

	if !f.getHelper(near.ID).Available {
		t.Error("rejecting helper was not released")
	}
	if f.getHelper(far.ID).Available {
		t.Error("new helper was not reserved")
	}
	if !f.sup.Armed(booking.ID) {
		t.Error("reassignment must re-arm the timer")
	}
}

func TestStaleRejectionLeavesTimerArmed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	near := f.addHelper("near", 1, 4.0)
	far := f.addHelper("far", 3, 4.0)
	booking := f.createBooking()

	if _, err := f.coord.Dispatch(ctx, booking.ID, booking.Location, booking.ServiceType); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// a rejection from a helper who does not hold the offer
	_, err := f.coord.HandleRejection(ctx, booking.ID, uuid.New(), "not mine")
	if !errors.Is(err, ErrStaleOffer) {
		t.Fatalf("expected ErrStaleOffer, got %v", err)
	}

	saved := f.getBooking(booking.ID)
	if saved.Status != types.BookingStatusAssigned || saved.HelperID == nil || *saved.HelperID != near.ID {
		t.Fatal("stale rejection must not disturb the live offer")
	}
	if !f.sup.Armed(booking.ID) {
		t.Fatal("stale rejection must leave the live offer's timer armed")
	}

	// the window is still enforced for the real helper
	f.clock.Advance(30 * time.Second)
	saved = f.getBooking(booking.ID)
	if saved.HelperID == nil || *saved.HelperID != far.ID {
		t.Error("response window did not fire after the stale rejection")
	}
}

func TestRejectionCeilingAbandonsBooking(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	helpers := make([]*types.Helper, 4)
	for i := range helpers {
		helpers[i] = f.addHelper(fmt.Sprintf("helper-%d", i), float64(i+1), 4.0)
	}
	booking := f.createBooking()

	if _, err := f.coord.Dispatch(ctx, booking.ID, booking.Location, booking.ServiceType); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	// three rejections stay within the ceiling, each reassigning onward
	for i := 0; i < 3; i++ {
		if _, err := f.coord.HandleRejection(ctx, booking.ID, helpers[i].ID, ""); err != nil {
			t.Fatalf("rejection %d: %v", i+1, err)
		}
	}

	_, err := f.coord.HandleRejection(ctx, booking.ID, helpers[3].ID, "")
	if !errors.Is(err, types.ErrExhausted) {
		t.Fatalf("expected ErrExhausted on the fourth rejection, got %v", err)
	}

	saved := f.getBooking(booking.ID)
	if saved.Status != types.BookingStatusNoHelperAvailable {
		t.Errorf("expected no-helper-available, got %s", saved.Status)
	}
	if saved.RejectionCount != 4 {
		t.Errorf("expected rejection count 4, got %d", saved.RejectionCount)
	}
	if saved.HelperID != nil {
		t.Error("abandoned booking must not reference a helper")
	}
	if !f.getHelper(helpers[3].ID).Available {
		t.Error("final rejecting helper was not released")
	}
	if f.sup.Armed(booking.ID) {
		t.Error("abandoned booking must not keep a timer")
	}
}

func TestRejectionWithoutAlternativesStaysPending(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	only := f.addHelper("only", 1, 4.0)
	booking := f.createBooking()

	if _, err := f.coord.Dispatch(ctx, booking.ID, booking.Location, booking.ServiceType); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	_, err := f.coord.HandleRejection(ctx, booking.ID, only.ID, "")
	if !errors.Is(err, types.ErrNoCandidate) {
		t.Fatalf("expected ErrNoCandidate, got %v", err)
	}

	saved := f.getBooking(booking.ID)
	if saved.Status != types.BookingStatusPending {
		t.Errorf("expected pending, got %s", saved.Status)
	}
	if saved.RejectionCount != 1 {
		t.Errorf("expected rejection count 1, got %d", saved.RejectionCount)
	}
	if !f.getHelper(only.ID).Available {
		t.Error("rejecting helper was not released")
	}
}

func TestTimeoutActsAsImplicitRejection(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	near := f.addHelper("near", 1, 4.0)
	far := f.addHelper("far", 3, 4.0)
	booking := f.createBooking()

	if _, err := f.coord.Dispatch(ctx, booking.ID, booking.Location, booking.ServiceType); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	f.clock.Advance(30 * time.Second)

	saved := f.getBooking(booking.ID)
	if saved.HelperID == nil || *saved.HelperID != far.ID {
		t.Fatal("elapsed window did not hand the booking to the next candidate")
	}
	if saved.RejectionCount != 1 {
		t.Errorf("expected rejection count 1, got %d", saved.RejectionCount)
	}

	first := saved.History[0]
	if first.HelperID != near.ID || first.Outcome != types.OutcomeTimeout {
		t.Errorf("first record not marked timed out: %+v", first)
	}
	if first.Reason != TimeoutReason {
		t.Errorf("unexpected timeout reason %q", first.Reason)
	}

	if !f.getHelper(near.ID).Available {
		t.Error("timed-out helper was not released")
	}
	if !f.sup.Armed(booking.ID) {
		t.Error("reassignment must arm a fresh timer")
	}
}

func TestStaleTimeoutIsIgnored(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	helper := f.addHelper("helper", 1, 4.0)
	booking := f.createBooking()

	if _, err := f.coord.Dispatch(ctx, booking.ID, booking.Location, booking.ServiceType); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if _, err := f.coord.Accept(ctx, booking.ID, helper.ID); err != nil {
		t.Fatalf("Accept: %v", err)
	}

	// a firing that lost the race to acceptance must change nothing
	f.coord.HandleTimeout(ctx, booking.ID, helper.ID)

	saved := f.getBooking(booking.ID)
	if saved.Status != types.BookingStatusAccepted {
		t.Errorf("stale timeout changed status to %s", saved.Status)
	}
	if saved.RejectionCount != 0 {
		t.Errorf("stale timeout bumped rejection count to %d", saved.RejectionCount)
	}
}

func TestCancelReleasesHelperAndTimer(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	helper := f.addHelper("helper", 1, 4.0)
	booking := f.createBooking()

	if _, err := f.coord.Dispatch(ctx, booking.ID, booking.Location, booking.ServiceType); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}

	cancelled, err := f.coord.Cancel(ctx, booking.ID)
	if err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if cancelled.Status != types.BookingStatusCancelled {
		t.Errorf("expected cancelled, got %s", cancelled.Status)
	}
	if !f.getHelper(helper.ID).Available {
		t.Error("cancellation did not release the helper")
	}
	if f.sup.Armed(booking.ID) {
		t.Error("cancellation did not drop the timer")
	}

	if _, err := f.coord.Cancel(ctx, booking.ID); !errors.Is(err, ErrStaleOffer) {
		t.Fatalf("expected ErrStaleOffer on double cancel, got %v", err)
	}
}
