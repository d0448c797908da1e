package repository

import (
	"context"
	"sync"
	"time"

	"schedfy/internal/models"
)

// MemoryDraftRepository is the in-process fallback draft store. TTL is not
// enforced here; drafts are small and the process restart bound is enough.
type MemoryDraftRepository struct {
	drafts sync.Map
	ttl    time.Duration

	mu         sync.Mutex
	rateLimits map[string]*rateLimitEntry
}

func NewMemoryDraftRepository(ttl time.Duration) *MemoryDraftRepository {
	return &MemoryDraftRepository{ttl: ttl, rateLimits: make(map[string]*rateLimitEntry)}
}

func (r *MemoryDraftRepository) GetDraft(ctx context.Context, sessionID string) (*models.BookingDraft, error) {
	val, ok := r.drafts.Load(sessionID)
	if !ok {
		return nil, nil
	}
	return val.(*models.BookingDraft), nil
}

func (r *MemoryDraftRepository) SetDraft(ctx context.Context, draft *models.BookingDraft) error {
	r.drafts.Store(draft.SessionID, draft)
	return nil
}

func (r *MemoryDraftRepository) ClearDraft(ctx context.Context, sessionID string) error {
	r.drafts.Delete(sessionID)
	return nil
}

type rateLimitEntry struct {
	count     int
	expiresAt time.Time
}

// CheckRateLimit counts a request against a fixed window. The mutex keeps
// the read-increment-store sequence atomic under concurrent requests for
// the same key.
func (r *MemoryDraftRepository) CheckRateLimit(ctx context.Context, clientKey string, limit int, window time.Duration) (bool, error) {
	now := time.Now()

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.rateLimits[clientKey]
	if !ok || now.After(entry.expiresAt) {
		entry = &rateLimitEntry{count: 1, expiresAt: now.Add(window)}
		r.rateLimits[clientKey] = entry
	} else {
		entry.count++
	}
	return entry.count <= limit, nil
}
