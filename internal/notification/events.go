package notification

import (
	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
)

// Event is a tagged notification variant. Each kind carries an explicit
// payload struct rather than a free-form map.
type Event interface {
	EventName() string
}

// BookingOffered is sent to a helper when a booking is assigned to them
type BookingOffered struct {
	BookingID      uuid.UUID      `json:"booking_id"`
	ServiceType    string         `json:"service_type"`
	Location       types.GeoPoint `json:"location"`
	ArrivalMinutes int            `json:"arrival_minutes"`
	TimeoutSeconds int            `json:"timeout_seconds"`
}

func (BookingOffered) EventName() string { return "new_booking" }

// OfferTimedOut is sent to a helper whose response window elapsed
type OfferTimedOut struct {
	BookingID uuid.UUID `json:"booking_id"`
}

func (OfferTimedOut) EventName() string { return "booking_timeout" }

// HelperAssigned tells the requester a helper was found
type HelperAssigned struct {
	BookingID      uuid.UUID `json:"booking_id"`
	HelperID       uuid.UUID `json:"helper_id"`
	HelperName     string    `json:"helper_name"`
	Rating         float64   `json:"rating"`
	DistanceKm     float64   `json:"distance_km"`
	ArrivalMinutes int       `json:"arrival_minutes"`
}

func (HelperAssigned) EventName() string { return "helper_assigned" }

// HelperReassigned tells the requester a replacement helper was found
type HelperReassigned struct {
	BookingID  uuid.UUID `json:"booking_id"`
	HelperID   uuid.UUID `json:"helper_id"`
	HelperName string    `json:"helper_name"`
	Rating     float64   `json:"rating"`
	DistanceKm float64   `json:"distance_km"`
}

func (HelperReassigned) EventName() string { return "helper_reassigned" }

// BookingAccepted tells the requester their helper confirmed
type BookingAccepted struct {
	BookingID uuid.UUID `json:"booking_id"`
	HelperID  uuid.UUID `json:"helper_id"`
}

func (BookingAccepted) EventName() string { return "booking_accepted" }

// BookingFailed tells the requester the rejection ceiling was reached
type BookingFailed struct {
	BookingID uuid.UUID `json:"booking_id"`
	Message   string    `json:"message"`
}

func (BookingFailed) EventName() string { return "booking_failed" }

// ReassignmentFailed tells the requester no replacement was found yet
type ReassignmentFailed struct {
	BookingID uuid.UUID `json:"booking_id"`
	Message   string    `json:"message"`
}

func (ReassignmentFailed) EventName() string { return "reassignment_failed" }

// BookingCancelled tells a reserved helper the booking was withdrawn
type BookingCancelled struct {
	BookingID uuid.UUID `json:"booking_id"`
}

func (BookingCancelled) EventName() string { return "booking_cancelled" }
