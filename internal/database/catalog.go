package database

import (
	"context"
	"database/sql"
	"fmt"

	"helper-dispatch/pkg/types"
	"go.uber.org/zap"
)

// ServiceCatalog resolves service types against the services table. A
// booking's service type may name either the category or the display name.
type ServiceCatalog struct {
	db     *DB
	logger *zap.Logger
}

func NewServiceCatalog(db *DB, logger *zap.Logger) *ServiceCatalog {
	return &ServiceCatalog{db: db, logger: logger}
}

func (c *ServiceCatalog) ResolveService(ctx context.Context, serviceType string) (*types.Service, error) {
	if serviceType == "" {
		return nil, fmt.Errorf("empty service type: %w", types.ErrInvalidInput)
	}

	query := `
		SELECT name, category, base_price, active
		FROM services
		WHERE active = TRUE AND (LOWER(category) = LOWER($1) OR LOWER(name) = LOWER($1))
		LIMIT 1`

	svc := &types.Service{}
	err := c.db.QueryRowContext(ctx, query, serviceType).Scan(
		&svc.Name, &svc.Category, &svc.BasePrice, &svc.Active)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("service %q: %w", serviceType, types.ErrUnknownService)
		}
		c.logger.Error("Failed to resolve service", zap.Error(err), zap.String("service_type", serviceType))
		return nil, fmt.Errorf("failed to resolve service: %w", err)
	}

	return svc, nil
}

// SeedServices inserts catalog entries, skipping names that already exist
func (c *ServiceCatalog) SeedServices(ctx context.Context, services []types.Service) error {
	query := `
		INSERT INTO services (name, category, base_price, active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO NOTHING`

	for _, svc := range services {
		if _, err := c.db.ExecContext(ctx, query, svc.Name, svc.Category, svc.BasePrice, svc.Active); err != nil {
			return fmt.Errorf("failed to seed service %q: %w", svc.Name, err)
		}
	}
	return nil
}
