package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"helper-dispatch/internal/models"
	"helper-dispatch/pkg/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const bookingColumns = `id, requester_id, service_type, status, latitude, longitude,
	       helper_id, assignment_history, rejection_count, price,
	       scheduled_at, created_at, updated_at, completed_at`

// BookingStore is the PostgreSQL booking store. Update takes a row lock with
// SELECT ... FOR UPDATE so accept, reject and timeout racing on the same
// booking serialize on the database row, matching the in-memory store's
// per-booking lock semantics.
type BookingStore struct {
	db     *DB
	logger *zap.Logger
}

func NewBookingStore(db *DB, logger *zap.Logger) *BookingStore {
	return &BookingStore{db: db, logger: logger}
}

func (s *BookingStore) Create(ctx context.Context, booking *types.Booking) error {
	m := models.FromBooking(booking)

	query := `
		INSERT INTO bookings (id, requester_id, service_type, status, latitude, longitude,
		                      helper_id, assignment_history, rejection_count, price,
		                      scheduled_at, created_at, updated_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.db.ExecContext(ctx, query,
		m.ID, m.RequesterID, m.ServiceType, m.Status, m.Latitude, m.Longitude,
		m.HelperID, m.History, m.RejectionCount, m.Price,
		m.ScheduledAt, m.CreatedAt, m.UpdatedAt, m.CompletedAt)

	if err != nil {
		s.logger.Error("Failed to create booking", zap.Error(err), zap.String("booking_id", m.ID.String()))
		return fmt.Errorf("failed to create booking: %w", err)
	}

	s.logger.Info("Booking created",
		zap.String("booking_id", m.ID.String()),
		zap.String("service_type", m.ServiceType))
	return nil
}

func (s *BookingStore) Get(ctx context.Context, id uuid.UUID) (*types.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`

	m := &models.BookingModel{}
	err := scanBooking(s.db.QueryRowContext(ctx, query, id), m)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("booking %s: %w", id, types.ErrNotFound)
		}
		s.logger.Error("Failed to get booking", zap.Error(err), zap.String("booking_id", id.String()))
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}

	return m.ToBooking(), nil
}

func (s *BookingStore) Update(ctx context.Context, id uuid.UUID, fn func(*types.Booking) error) (*types.Booking, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1 FOR UPDATE`

	m := &models.BookingModel{}
	if err := scanBooking(tx.QueryRowContext(ctx, query, id), m); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("booking %s: %w", id, types.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to lock booking: %w", err)
	}

	booking := m.ToBooking()
	if err := fn(booking); err != nil {
		return nil, err
	}
	booking.UpdatedAt = time.Now()

	updated := models.FromBooking(booking)
	updateQuery := `
		UPDATE bookings
		SET status = $1, helper_id = $2, assignment_history = $3, rejection_count = $4,
		    price = $5, updated_at = $6, completed_at = $7
		WHERE id = $8`

	if _, err := tx.ExecContext(ctx, updateQuery,
		updated.Status, updated.HelperID, updated.History, updated.RejectionCount,
		updated.Price, updated.UpdatedAt, updated.CompletedAt, updated.ID); err != nil {
		s.logger.Error("Failed to update booking", zap.Error(err), zap.String("booking_id", id.String()))
		return nil, fmt.Errorf("failed to update booking: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit booking update: %w", err)
	}

	return booking, nil
}

func (s *BookingStore) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanBooking(row rowScanner, m *models.BookingModel) error {
	return row.Scan(
		&m.ID, &m.RequesterID, &m.ServiceType, &m.Status, &m.Latitude, &m.Longitude,
		&m.HelperID, &m.History, &m.RejectionCount, &m.Price,
		&m.ScheduledAt, &m.CreatedAt, &m.UpdatedAt, &m.CompletedAt)
}
