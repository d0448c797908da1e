package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"schedfy/internal/models"
)

const serviceColumns = `id, entity_id, name, description, duration_minutes,
       price_amount, price_currency, is_active, sort_order, created_at, updated_at`

func scanService(row interface{ Scan(...any) error }) (*models.Service, error) {
	s := &models.Service{}
	var desc sql.NullString
	err := row.Scan(
		&s.ID, &s.EntityID, &s.Name, &desc, &s.DurationMinutes,
		&s.Price.Amount, &s.Price.Currency, &s.Active, &s.SortOrder,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.Description = desc.String
	return s, nil
}

// SeedServices upserts catalog entries loaded from config, keeping the cache
// warm. Config-defined services carry fixed IDs.
func (db *DB) SeedServices(ctx context.Context, services []models.Service) error {
	query := `INSERT INTO services (id, entity_id, name, description, duration_minutes,
                  price_amount, price_currency, is_active, sort_order, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
              ON CONFLICT(id) DO UPDATE SET
                  entity_id = excluded.entity_id,
                  name = excluded.name,
                  description = excluded.description,
                  duration_minutes = excluded.duration_minutes,
                  price_amount = excluded.price_amount,
                  price_currency = excluded.price_currency,
                  is_active = excluded.is_active,
                  sort_order = excluded.sort_order,
                  updated_at = excluded.updated_at`
	now := time.Now().UTC()
	for _, svc := range services {
		_, err := db.ExecContext(ctx, query,
			svc.ID, svc.EntityID, svc.Name, svc.Description, svc.DurationMinutes,
			svc.Price.Amount, svc.Price.Currency, svc.Active, svc.SortOrder, now, now,
		)
		if err != nil {
			return fmt.Errorf("failed to seed service %d: %w", svc.ID, err)
		}
	}
	return db.refreshServicesCache(ctx)
}

func (db *DB) refreshServicesCache(ctx context.Context) error {
	services, err := db.queryServices(ctx, `SELECT `+serviceColumns+` FROM services`)
	if err != nil {
		return err
	}

	db.mu.Lock()
	db.servicesCache = make(map[int64]models.Service, len(services))
	for _, s := range services {
		db.servicesCache[s.ID] = s
	}
	db.mu.Unlock()
	return nil
}

func (db *DB) queryServices(ctx context.Context, query string, args ...any) ([]models.Service, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query services: %w", err)
	}
	defer rows.Close()

	var services []models.Service
	for rows.Next() {
		s, err := scanService(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service: %w", err)
		}
		services = append(services, *s)
	}
	return services, rows.Err()
}

func (db *DB) GetActiveServices(ctx context.Context, entityID int64) ([]models.Service, error) {
	services, err := db.queryServices(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE entity_id = ? AND is_active = 1`, entityID)
	if err != nil {
		return nil, err
	}
	sort.Slice(services, func(i, j int) bool {
		if services[i].SortOrder == services[j].SortOrder {
			return services[i].ID < services[j].ID
		}
		return services[i].SortOrder < services[j].SortOrder
	})
	return services, nil
}

func (db *DB) GetServiceByID(ctx context.Context, id int64) (*models.Service, error) {
	db.mu.RLock()
	cached, ok := db.servicesCache[id]
	db.mu.RUnlock()
	if ok {
		return &cached, nil
	}

	s, err := scanService(db.QueryRowContext(ctx,
		`SELECT `+serviceColumns+` FROM services WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service: %w", err)
	}

	db.mu.Lock()
	db.servicesCache[s.ID] = *s
	db.mu.Unlock()
	return s, nil
}

func (db *DB) CreateService(ctx context.Context, svc *models.Service) error {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx,
		`INSERT INTO services (entity_id, name, description, duration_minutes,
             price_amount, price_currency, is_active, sort_order, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		svc.EntityID, svc.Name, svc.Description, svc.DurationMinutes,
		svc.Price.Amount, svc.Price.Currency, svc.Active, svc.SortOrder, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	svc.ID = id
	svc.CreatedAt = now
	svc.UpdatedAt = now

	db.mu.Lock()
	db.servicesCache[id] = *svc
	db.mu.Unlock()
	return nil
}

func (db *DB) UpdateService(ctx context.Context, svc *models.Service) error {
	result, err := db.ExecContext(ctx,
		`UPDATE services SET name = ?, description = ?, duration_minutes = ?,
             price_amount = ?, price_currency = ?, is_active = ?, sort_order = ?, updated_at = ?
         WHERE id = ?`,
		svc.Name, svc.Description, svc.DurationMinutes,
		svc.Price.Amount, svc.Price.Currency, svc.Active, svc.SortOrder, time.Now().UTC(),
		svc.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update service: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}

	db.mu.Lock()
	db.servicesCache[svc.ID] = *svc
	db.mu.Unlock()
	return nil
}

func (db *DB) DeactivateService(ctx context.Context, id int64) error {
	result, err := db.ExecContext(ctx,
		`UPDATE services SET is_active = 0, updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to deactivate service: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return ErrNotFound
	}

	db.mu.Lock()
	if s, ok := db.servicesCache[id]; ok {
		s.Active = false
		db.servicesCache[id] = s
	}
	db.mu.Unlock()
	return nil
}
