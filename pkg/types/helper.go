package types

import (
	"time"

	"github.com/google/uuid"
)

// Helper represents a mobile service provider eligible for dispatch
type Helper struct {
	ID           uuid.UUID   `json:"id" db:"id"`
	Name         string      `json:"name" db:"name"`
	Phone        string      `json:"phone,omitempty" db:"phone"`
	Skills       []string    `json:"skills" db:"skills"`
	Location     GeoPoint    `json:"location" db:"location"`
	Rating       float64     `json:"rating" db:"rating"`
	TotalRatings int         `json:"total_ratings" db:"total_ratings"`
	Available    bool        `json:"available" db:"available"`
	ActiveBookings []uuid.UUID `json:"active_bookings,omitempty" db:"active_bookings"`
	CreatedAt    time.Time   `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time   `json:"updated_at" db:"updated_at"`
}

// HasSkill reports whether the helper carries any of the given skill tags
func (h *Helper) HasSkill(skills ...string) bool {
	for _, want := range skills {
		for _, have := range h.Skills {
			if have == want {
				return true
			}
		}
	}
	return false
}

// Candidate pairs a helper with its computed distance to a booking location.
// Produced by the registry query, consumed by the ranker.
type Candidate struct {
	Helper   Helper  `json:"helper"`
	Distance float64 `json:"distance_km"`
}

// HelperRegistration is a request to add a helper to the registry
type HelperRegistration struct {
	Name     string   `json:"name" binding:"required"`
	Phone    string   `json:"phone,omitempty"`
	Skills   []string `json:"skills" binding:"required"`
	Location GeoPoint `json:"location" binding:"required"`
	Rating   float64  `json:"rating,omitempty"`
}

// LocationUpdate is a helper location report
type LocationUpdate struct {
	Location GeoPoint `json:"location" binding:"required"`
}
