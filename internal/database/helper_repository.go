package database

import (
	"context"
	"fmt"

	"helper-dispatch/internal/models"
	"helper-dispatch/pkg/types"
	"go.uber.org/zap"
)

// HelperRepository persists helper records. Reservation state lives in the
// in-memory registry; this repository is the write-through backing that lets
// a restarted instance reload its helper roster.
type HelperRepository struct {
	db     *DB
	logger *zap.Logger
}

func NewHelperRepository(db *DB, logger *zap.Logger) *HelperRepository {
	return &HelperRepository{db: db, logger: logger}
}

// Save upserts the helper's full record
func (r *HelperRepository) Save(ctx context.Context, helper *types.Helper) error {
	m := models.FromHelper(helper)

	query := `
		INSERT INTO helpers (id, name, phone, skills, latitude, longitude, rating,
		                     total_ratings, available, active_bookings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			phone = EXCLUDED.phone,
			skills = EXCLUDED.skills,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			rating = EXCLUDED.rating,
			total_ratings = EXCLUDED.total_ratings,
			available = EXCLUDED.available,
			active_bookings = EXCLUDED.active_bookings,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.ExecContext(ctx, query,
		m.ID, m.Name, m.Phone, m.Skills, m.Latitude, m.Longitude, m.Rating,
		m.TotalRatings, m.Available, m.ActiveBookings, m.CreatedAt, m.UpdatedAt)

	if err != nil {
		r.logger.Error("Failed to save helper", zap.Error(err), zap.String("helper_id", m.ID.String()))
		return fmt.Errorf("failed to save helper: %w", err)
	}

	return nil
}

// LoadAll returns every persisted helper, used to seed the registry at startup
func (r *HelperRepository) LoadAll(ctx context.Context) ([]*types.Helper, error) {
	query := `
		SELECT id, name, phone, skills, latitude, longitude, rating,
		       total_ratings, available, active_bookings, created_at, updated_at
		FROM helpers`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to load helpers", zap.Error(err))
		return nil, fmt.Errorf("failed to load helpers: %w", err)
	}
	defer rows.Close()

	var helpers []*types.Helper
	for rows.Next() {
		m := &models.HelperModel{}
		err := rows.Scan(
			&m.ID, &m.Name, &m.Phone, &m.Skills, &m.Latitude, &m.Longitude, &m.Rating,
			&m.TotalRatings, &m.Available, &m.ActiveBookings, &m.CreatedAt, &m.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan helper: %w", err)
		}
		helpers = append(helpers, m.ToHelper())
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating helpers: %w", err)
	}

	return helpers, nil
}
