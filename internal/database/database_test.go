package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"schedfy/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "schedfy.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestNewDB_CreatesSchema(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	// Every table exists and is queryable.
	for _, table := range []string{"services", "bookings", "working_hours", "sync_queue"} {
		var count int
		err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table).Scan(&count)
		require.NoError(t, err, "table %s should exist", table)
		require.Zero(t, count)
	}
}

func testBooking(entityID int64, ref string, start, end time.Time) *models.Booking {
	return &models.Booking{
		Reference:   ref,
		EntityID:    entityID,
		ClientName:  "Ana Souza",
		ClientPhone: "+55 11 99999-0000",
		ServiceID:   1,
		ServiceName: "Haircut",
		StartTime:   start,
		EndTime:     end,
		Status:      models.StatusPending,
		Price:       models.NewMoney(8000, "BRL"),
	}
}
