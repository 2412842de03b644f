package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"

	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
)

// HistoryJSON stores a booking's assignment history as a PostgreSQL JSONB array
type HistoryJSON []types.AssignmentRecord

// Value implements the driver.Valuer interface for HistoryJSON
func (h HistoryJSON) Value() (driver.Value, error) {
	if h == nil {
		return json.Marshal([]types.AssignmentRecord{})
	}
	return json.Marshal([]types.AssignmentRecord(h))
}

// Scan implements the sql.Scanner interface for HistoryJSON
func (h *HistoryJSON) Scan(value interface{}) error {
	if value == nil {
		*h = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("cannot scan into HistoryJSON")
	}

	return json.Unmarshal(bytes, h)
}

// StringsJSON stores a string list as a PostgreSQL JSONB array
type StringsJSON []string

func (s StringsJSON) Value() (driver.Value, error) {
	if s == nil {
		return json.Marshal([]string{})
	}
	return json.Marshal([]string(s))
}

func (s *StringsJSON) Scan(value interface{}) error {
	if value == nil {
		*s = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("cannot scan into StringsJSON")
	}

	return json.Unmarshal(bytes, s)
}

// UUIDsJSON stores a uuid list as a PostgreSQL JSONB array
type UUIDsJSON []uuid.UUID

func (u UUIDsJSON) Value() (driver.Value, error) {
	if u == nil {
		return json.Marshal([]uuid.UUID{})
	}
	return json.Marshal([]uuid.UUID(u))
}

func (u *UUIDsJSON) Scan(value interface{}) error {
	if value == nil {
		*u = nil
		return nil
	}

	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("cannot scan into UUIDsJSON")
	}

	return json.Unmarshal(bytes, u)
}

// BookingModel represents the database model for bookings
type BookingModel struct {
	ID             uuid.UUID           `db:"id"`
	RequesterID    uuid.UUID           `db:"requester_id"`
	ServiceType    string              `db:"service_type"`
	Status         types.BookingStatus `db:"status"`
	Latitude       float64             `db:"latitude"`
	Longitude      float64             `db:"longitude"`
	HelperID       *uuid.UUID          `db:"helper_id"`
	History        HistoryJSON         `db:"assignment_history"`
	RejectionCount int                 `db:"rejection_count"`
	Price          float64             `db:"price"`
	ScheduledAt    time.Time           `db:"scheduled_at"`
	CreatedAt      time.Time           `db:"created_at"`
	UpdatedAt      time.Time           `db:"updated_at"`
	CompletedAt    *time.Time          `db:"completed_at"`
}

// ToBooking converts BookingModel to types.Booking
func (bm *BookingModel) ToBooking() *types.Booking {
	return &types.Booking{
		ID:          bm.ID,
		RequesterID: bm.RequesterID,
		ServiceType: bm.ServiceType,
		Status:      bm.Status,
		Location: types.GeoPoint{
			Latitude:  bm.Latitude,
			Longitude: bm.Longitude,
		},
		HelperID:       bm.HelperID,
		History:        []types.AssignmentRecord(bm.History),
		RejectionCount: bm.RejectionCount,
		Price:          bm.Price,
		ScheduledAt:    bm.ScheduledAt,
		CreatedAt:      bm.CreatedAt,
		UpdatedAt:      bm.UpdatedAt,
		CompletedAt:    bm.CompletedAt,
	}
}

// FromBooking creates a BookingModel from types.Booking
func FromBooking(b *types.Booking) *BookingModel {
	return &BookingModel{
		ID:             b.ID,
		RequesterID:    b.RequesterID,
		ServiceType:    b.ServiceType,
		Status:         b.Status,
		Latitude:       b.Location.Latitude,
		Longitude:      b.Location.Longitude,
		HelperID:       b.HelperID,
		History:        HistoryJSON(b.History),
		RejectionCount: b.RejectionCount,
		Price:          b.Price,
		ScheduledAt:    b.ScheduledAt,
		CreatedAt:      b.CreatedAt,
		UpdatedAt:      b.UpdatedAt,
		CompletedAt:    b.CompletedAt,
	}
}

// HelperModel represents the database model for helpers
type HelperModel struct {
	ID             uuid.UUID   `db:"id"`
	Name           string      `db:"name"`
	Phone          string      `db:"phone"`
	Skills         StringsJSON `db:"skills"`
	Latitude       float64     `db:"latitude"`
	Longitude      float64     `db:"longitude"`
	Rating         float64     `db:"rating"`
	TotalRatings   int         `db:"total_ratings"`
	Available      bool        `db:"available"`
	ActiveBookings UUIDsJSON   `db:"active_bookings"`
	CreatedAt      time.Time   `db:"created_at"`
	UpdatedAt      time.Time   `db:"updated_at"`
}

// ToHelper converts HelperModel to types.Helper
func (hm *HelperModel) ToHelper() *types.Helper {
	return &types.Helper{
		ID:     hm.ID,
		Name:   hm.Name,
		Phone:  hm.Phone,
		Skills: []string(hm.Skills),
		Location: types.GeoPoint{
			Latitude:  hm.Latitude,
			Longitude: hm.Longitude,
		},
		Rating:         hm.Rating,
		TotalRatings:   hm.TotalRatings,
		Available:      hm.Available,
		ActiveBookings: []uuid.UUID(hm.ActiveBookings),
		CreatedAt:      hm.CreatedAt,
		UpdatedAt:      hm.UpdatedAt,
	}
}

// FromHelper creates a HelperModel from types.Helper
func FromHelper(h *types.Helper) *HelperModel {
	return &HelperModel{
		ID:             h.ID,
		Name:           h.Name,
		Phone:          h.Phone,
		Skills:         StringsJSON(h.Skills),
		Latitude:       h.Location.Latitude,
		Longitude:      h.Location.Longitude,
		Rating:         h.Rating,
		TotalRatings:   h.TotalRatings,
		Available:      h.Available,
		ActiveBookings: UUIDsJSON(h.ActiveBookings),
		CreatedAt:      h.CreatedAt,
		UpdatedAt:      h.UpdatedAt,
	}
}
