package repository

import (
	"context"
	"sync/atomic"
	"time"

	"schedfy/internal/domain"
	"schedfy/internal/models"

	"github.com/rs/zerolog"
)

// FailoverDraftRepository serves from the primary (Redis) store and falls
// back to memory when it errors, retrying the primary after a cooldown.
type FailoverDraftRepository struct {
	primary   domain.DraftRepository
	fallback  domain.DraftRepository
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64 // unix nanos of the last failed primary attempt
}

const primaryRetryInterval = time.Minute

func NewFailoverDraftRepository(primary, fallback domain.DraftRepository, logger *zerolog.Logger) *FailoverDraftRepository {
	return &FailoverDraftRepository{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (r *FailoverDraftRepository) markDown(err error) {
	r.logger.Error().Err(err).Msg("primary draft repository failed, falling back to memory")
	r.isDown.Store(true)
	r.lastCheck.Store(time.Now().UnixNano())
}

func (r *FailoverDraftRepository) shouldRetryPrimary() bool {
	return time.Since(time.Unix(0, r.lastCheck.Load())) > primaryRetryInterval
}

func (r *FailoverDraftRepository) GetDraft(ctx context.Context, sessionID string) (*models.BookingDraft, error) {
	if !r.isDown.Load() {
		draft, err := r.primary.GetDraft(ctx, sessionID)
		if err == nil {
			return draft, nil
		}
		r.markDown(err)
	} else if r.shouldRetryPrimary() {
		draft, err := r.primary.GetDraft(ctx, sessionID)
		if err == nil {
			r.isDown.Store(false)
			return draft, nil
		}
		r.lastCheck.Store(time.Now().UnixNano())
	}

	return r.fallback.GetDraft(ctx, sessionID)
}

func (r *FailoverDraftRepository) SetDraft(ctx context.Context, draft *models.BookingDraft) error {
	if !r.isDown.Load() {
		err := r.primary.SetDraft(ctx, draft)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.SetDraft(ctx, draft)
}

func (r *FailoverDraftRepository) ClearDraft(ctx context.Context, sessionID string) error {
	if !r.isDown.Load() {
		err := r.primary.ClearDraft(ctx, sessionID)
		if err == nil {
			return nil
		}
		r.markDown(err)
	}
	return r.fallback.ClearDraft(ctx, sessionID)
}

func (r *FailoverDraftRepository) CheckRateLimit(ctx context.Context, clientKey string, limit int, window time.Duration) (bool, error) {
	if !r.isDown.Load() {
		allowed, err := r.primary.CheckRateLimit(ctx, clientKey, limit, window)
		if err == nil {
			return allowed, nil
		}
		r.markDown(err)
	}
	return r.fallback.CheckRateLimit(ctx, clientKey, limit, window)
}
