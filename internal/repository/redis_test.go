package repository

import (
	"context"
	"testing"
	"time"

	"schedfy/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedisRepo(t *testing.T) (*RedisDraftRepository, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisDraftRepository(client, time.Minute), mr
}

func TestRedisDraftRepository_DraftLifecycle(t *testing.T) {
	repo, _ := newTestRedisRepo(t)
	ctx := context.Background()

	draft, err := repo.GetDraft(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, draft)

	stored := &models.BookingDraft{
		SessionID:  "sess-1",
		EntityID:   7,
		ServiceID:  3,
		Date:       "2025-06-15",
		Slot:       "14:00",
		ClientName: "Ana",
	}
	require.NoError(t, repo.SetDraft(ctx, stored))

	got, err := repo.GetDraft(ctx, "sess-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "2025-06-15", got.Date)
	assert.Equal(t, "Ana", got.ClientName)

	require.NoError(t, repo.ClearDraft(ctx, "sess-1"))
	got, err = repo.GetDraft(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisDraftRepository_DraftTTL(t *testing.T) {
	repo, mr := newTestRedisRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.SetDraft(ctx, &models.BookingDraft{SessionID: "sess-ttl", EntityID: 1}))

	mr.FastForward(2 * time.Minute)

	got, err := repo.GetDraft(ctx, "sess-ttl")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisDraftRepository_RateLimit(t *testing.T) {
	repo, mr := newTestRedisRepo(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		allowed, err := repo.CheckRateLimit(ctx, "client-a", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, allowed)
	}

	allowed, err := repo.CheckRateLimit(ctx, "client-a", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, allowed)

	// The counter expires with the window and the client is allowed again.
	mr.FastForward(2 * time.Minute)
	allowed, err = repo.CheckRateLimit(ctx, "client-a", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisDraftRepository_NilClient(t *testing.T) {
	repo := NewRedisDraftRepository(nil, time.Minute)
	ctx := context.Background()

	_, err := repo.GetDraft(ctx, "x")
	assert.Error(t, err)
	assert.Error(t, repo.SetDraft(ctx, &models.BookingDraft{SessionID: "x"}))
	assert.Error(t, repo.ClearDraft(ctx, "x"))
	_, err = repo.CheckRateLimit(ctx, "x", 1, time.Minute)
	assert.Error(t, err)
}
