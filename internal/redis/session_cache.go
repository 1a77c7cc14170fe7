package redis

import (
	"context"

	"github.com/formpulse/formpulse/internal/domain"
	"github.com/formpulse/formpulse/internal/metrics"
	"github.com/google/uuid"
)

// SessionCache adapts the generic cache to session snapshots.
type SessionCache struct {
	cache *Cache
}

var _ domain.SessionCache = (*SessionCache)(nil)

func NewSessionCache(cache *Cache) *SessionCache {
	return &SessionCache{cache: cache}
}

// GetSession returns a cached snapshot, or (nil, false) on miss, corrupt
// payload, or cache failure.
func (s *SessionCache) GetSession(ctx context.Context, id uuid.UUID) (*domain.Session, bool) {
	var session domain.Session
	if !s.cache.GetJSON(ctx, ClassSession, id.String(), &session) {
		metrics.CacheMissesTotal.Inc()
		return nil, false
	}
	metrics.CacheHitsTotal.Inc()
	return &session, true
}

// SetSession stores a snapshot with the session-class TTL. Best effort.
func (s *SessionCache) SetSession(ctx context.Context, session *domain.Session) {
	s.cache.SetJSON(ctx, ClassSession, session.ID.String(), session)
}

// InvalidateSession removes the snapshot. Explicit invalidation, not expiry:
// durable writes call this so the next read repopulates from the store.
func (s *SessionCache) InvalidateSession(ctx context.Context, id uuid.UUID) {
	s.cache.Delete(ctx, ClassSession, id.String())
}
