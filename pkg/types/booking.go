package types

import (
	"time"

	"github.com/google/uuid"
)

// BookingStatus represents the lifecycle state of a booking
type BookingStatus string

const (
	BookingStatusPending           BookingStatus = "pending"
	BookingStatusAssigned          BookingStatus = "assigned"
	BookingStatusAccepted          BookingStatus = "accepted"
	BookingStatusInProgress        BookingStatus = "in-progress"
	BookingStatusCompleted         BookingStatus = "completed"
	BookingStatusCancelled         BookingStatus = "cancelled"
	BookingStatusRejected          BookingStatus = "rejected"
	BookingStatusNoHelperAvailable BookingStatus = "no-helper-available"
)

// Terminal reports whether the status admits no further mutation
func (s BookingStatus) Terminal() bool {
	switch s {
	case BookingStatusCompleted, BookingStatusCancelled, BookingStatusNoHelperAvailable:
		return true
	}
	return false
}

// AssignmentOutcome is the recorded result of one offer to a helper
type AssignmentOutcome string

const (
	OutcomeAssigned AssignmentOutcome = "assigned"
	OutcomeRejected AssignmentOutcome = "rejected"
	OutcomeTimeout  AssignmentOutcome = "timeout"
)

// AssignmentRecord is one entry in a booking's append-only assignment history
type AssignmentRecord struct {
	HelperID   uuid.UUID         `json:"helper_id"`
	AssignedAt time.Time         `json:"assigned_at"`
	Outcome    AssignmentOutcome `json:"outcome"`
	RejectedAt *time.Time        `json:"rejected_at,omitempty"`
	Reason     string            `json:"reason,omitempty"`
}

// Booking represents a service request awaiting or holding a helper assignment
type Booking struct {
	ID             uuid.UUID          `json:"id" db:"id"`
	RequesterID    uuid.UUID          `json:"requester_id" db:"requester_id"`
	ServiceType    string             `json:"service_type" db:"service_type"`
	Status         BookingStatus      `json:"status" db:"status"`
	Location       GeoPoint           `json:"location" db:"location"`
	HelperID       *uuid.UUID         `json:"helper_id,omitempty" db:"helper_id"`
	History        []AssignmentRecord `json:"assignment_history" db:"assignment_history"`
	RejectionCount int                `json:"rejection_count" db:"rejection_count"`
	Price          float64            `json:"price,omitempty" db:"price"`
	ScheduledAt    time.Time          `json:"scheduled_at" db:"scheduled_at"`
	CreatedAt      time.Time          `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at" db:"updated_at"`
	CompletedAt    *time.Time         `json:"completed_at,omitempty" db:"completed_at"`
}

// LiveRecord returns the history entry currently holding outcome "assigned"
// for the given helper, or nil. At most one such entry exists at any time.
func (b *Booking) LiveRecord(helperID uuid.UUID) *AssignmentRecord {
	for i := range b.History {
		rec := &b.History[i]
		if rec.HelperID == helperID && rec.Outcome == OutcomeAssigned {
			return rec
		}
	}
	return nil
}

// OfferedHelpers returns every helper ID present in the assignment history,
// used to exclude previously offered helpers on reassignment
func (b *Booking) OfferedHelpers() []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(b.History))
	for _, rec := range b.History {
		ids = append(ids, rec.HelperID)
	}
	return ids
}

// Service is a catalog entry resolved from a booking's service type
type Service struct {
	Name      string  `json:"name" db:"name"`
	Category  string  `json:"category" db:"category"`
	BasePrice float64 `json:"base_price" db:"base_price"`
	Active    bool    `json:"active" db:"active"`
}

// MatchSkills returns the skill tags a helper may carry to serve this
// service: the category itself or the display name alias
func (s *Service) MatchSkills() []string {
	if s.Name == "" || s.Name == s.Category {
		return []string{s.Category}
	}
	return []string{s.Category, s.Name}
}

// AssignmentResult is the outcome of a successful dispatch attempt
type AssignmentResult struct {
	Booking        *Booking    `json:"booking"`
	Helper         Helper      `json:"assigned_helper"`
	Distance       float64     `json:"distance_km"`
	ArrivalMinutes int         `json:"arrival_minutes"`
	RunnersUp      []Candidate `json:"runners_up,omitempty"`
}

// BookingRequest is a request to create a new booking
type BookingRequest struct {
	RequesterID uuid.UUID  `json:"requester_id" binding:"required"`
	ServiceType string     `json:"service_type" binding:"required"`
	Location    GeoPoint   `json:"location" binding:"required"`
	ScheduledAt *time.Time `json:"scheduled_at,omitempty"`
}

// RejectionRequest carries a helper's explicit rejection of an offer
type RejectionRequest struct {
	HelperID uuid.UUID `json:"helper_id" binding:"required"`
	Reason   string    `json:"reason,omitempty"`
}

// AcceptRequest carries a helper's acceptance of an offer
type AcceptRequest struct {
	HelperID uuid.UUID `json:"helper_id" binding:"required"`
}

// BookingResponse wraps a booking for API responses
type BookingResponse struct {
	Booking Booking `json:"booking"`
	Message string  `json:"message,omitempty"`
}
