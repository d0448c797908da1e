package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"schedfy/internal/models"
)

const bookingColumns = `id, reference, entity_id, professional_id, client_name, client_phone,
       service_id, service_name, start_time, end_time, status,
       price_amount, price_currency, comment, created_at, updated_at, version`

func scanBooking(row interface{ Scan(...any) error }) (*models.Booking, error) {
	b := &models.Booking{}
	var professionalID sql.NullInt64
	var phone, comment sql.NullString
	err := row.Scan(
		&b.ID, &b.Reference, &b.EntityID, &professionalID, &b.ClientName, &phone,
		&b.ServiceID, &b.ServiceName, &b.StartTime, &b.EndTime, &b.Status,
		&b.Price.Amount, &b.Price.Currency, &comment, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	b.ProfessionalID = professionalID.Int64
	b.ClientPhone = phone.String
	b.Comment = comment.String
	return b, nil
}

// CountOverlapping returns how many active bookings of the entity overlap the
// half-open interval [start, end).
func (db *DB) CountOverlapping(ctx context.Context, entityID int64, start, end time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM bookings
              WHERE entity_id = ? AND status != ? AND start_time < ? AND end_time > ?`
	var count int
	err := db.QueryRowContext(ctx, query, entityID, models.StatusCancelled, end.UTC(), start.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count overlapping bookings: %w", err)
	}
	return count, nil
}

// CreateBooking inserts without a conflict check. Callers that need
// correctness under concurrent writers use CreateBookingWithLock.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, insertBookingQuery,
		booking.Reference, booking.EntityID, booking.ProfessionalID,
		booking.ClientName, booking.ClientPhone,
		booking.ServiceID, booking.ServiceName,
		booking.StartTime.UTC(), booking.EndTime.UTC(), booking.Status,
		booking.Price.Amount, booking.Price.Currency, booking.Comment,
		now, now, 1,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

const insertBookingQuery = `INSERT INTO bookings (
            reference, entity_id, professional_id, client_name, client_phone,
            service_id, service_name, start_time, end_time, status,
            price_amount, price_currency, comment, created_at, updated_at, version
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

// CreateBookingWithLock re-checks the interval inside a transaction before
// inserting, so two clients racing for the same slot cannot both win.
func (db *DB) CreateBookingWithLock(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var overlapping int
	queryCount := `SELECT COUNT(*) FROM bookings
                   WHERE entity_id = ? AND status != ? AND start_time < ? AND end_time > ?`
	err = tx.QueryRowContext(ctx, queryCount, booking.EntityID, models.StatusCancelled,
		booking.EndTime.UTC(), booking.StartTime.UTC()).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("failed to check conflicts in tx: %w", err)
	}
	if overlapping > 0 {
		return ErrSlotConflict
	}

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, insertBookingQuery,
		booking.Reference, booking.EntityID, booking.ProfessionalID,
		booking.ClientName, booking.ClientPhone,
		booking.ServiceID, booking.ServiceName,
		booking.StartTime.UTC(), booking.EndTime.UTC(), booking.Status,
		booking.Price.Amount, booking.Price.Currency, booking.Comment,
		now, now, 1,
	)
	if err != nil {
		return fmt.Errorf("failed to insert booking in tx: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id in tx: %w", err)
	}
	booking.ID = id
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1

	return tx.Commit()
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return b, nil
}

func (db *DB) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE reference = ?`
	b, err := scanBooking(db.QueryRowContext(ctx, query, reference))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by reference: %w", err)
	}
	return b, nil
}

func (db *DB) UpdateBookingStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE bookings SET status = ?, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	return err
}

func (db *DB) UpdateBookingStatusWithVersion(ctx context.Context, id, fromVersion int64, status string) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}
	return nil
}

// RescheduleBookingWithVersion moves a booking to a new interval, re-checking
// conflicts (excluding the booking itself) and the optimistic version inside
// one transaction.
func (db *DB) RescheduleBookingWithVersion(ctx context.Context, id, fromVersion int64, start, end time.Time) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var entityID int64
	err = tx.QueryRowContext(ctx, `SELECT entity_id FROM bookings WHERE id = ?`, id).Scan(&entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to load booking for reschedule: %w", err)
	}

	var overlapping int
	queryCount := `SELECT COUNT(*) FROM bookings
                   WHERE entity_id = ? AND id != ? AND status != ? AND start_time < ? AND end_time > ?`
	err = tx.QueryRowContext(ctx, queryCount, entityID, id, models.StatusCancelled,
		end.UTC(), start.UTC()).Scan(&overlapping)
	if err != nil {
		return fmt.Errorf("failed to check conflicts in tx: %w", err)
	}
	if overlapping > 0 {
		return ErrSlotConflict
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE bookings SET start_time = ?, end_time = ?, version = version + 1, updated_at = ?
         WHERE id = ? AND version = ?`,
		start.UTC(), end.UTC(), time.Now().UTC(), id, fromVersion)
	if err != nil {
		return fmt.Errorf("failed to reschedule booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrConcurrentModification
	}

	return tx.Commit()
}

// GetBookingsBetween returns the entity's bookings whose start falls in
// [start, end), ordered chronologically. This is the snapshot the slot
// engine filters against.
func (db *DB) GetBookingsBetween(ctx context.Context, entityID int64, start, end time.Time) ([]models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE entity_id = ? AND start_time >= ? AND start_time < ?
              ORDER BY start_time ASC`
	rows, err := db.QueryContext(ctx, query, entityID, start.UTC(), end.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings between: %w", err)
	}
	defer rows.Close()

	var bookings []models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, *b)
	}
	return bookings, rows.Err()
}

// GetDailyBookings groups an entity's bookings by calendar day in loc,
// keyed YYYY-MM-DD. Used by export and insight projections.
func (db *DB) GetDailyBookings(ctx context.Context, entityID int64, start, end time.Time, loc *time.Location) (map[string][]models.Booking, error) {
	bookings, err := db.GetBookingsBetween(ctx, entityID, start, end)
	if err != nil {
		return nil, err
	}
	if loc == nil {
		loc = time.UTC
	}

	daily := make(map[string][]models.Booking)
	for _, b := range bookings {
		key := b.StartTime.In(loc).Format("2006-01-02")
		daily[key] = append(daily[key], b)
	}
	return daily, nil
}
