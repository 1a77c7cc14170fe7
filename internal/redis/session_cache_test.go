package redis

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formpulse/formpulse/internal/domain"
)

func TestSessionCache_RoundTrip(t *testing.T) {
	cache, _ := setupTestCache(t)
	sessions := NewSessionCache(cache)
	ctx := context.Background()

	session := domain.NewSession(5, domain.ClientMeta{
		IP:         "203.0.113.7",
		Browser:    "Chrome 120",
		DeviceType: "desktop",
	}, time.Now().UTC().Truncate(time.Second))
	session.Answers = domain.Answers{
		"email":  domain.StringValue("a@example.com"),
		"topics": domain.ListValue("go", "redis"),
	}
	session.CurrentPage = 2

	_, found := sessions.GetSession(ctx, session.ID)
	assert.False(t, found, "empty cache must miss")

	sessions.SetSession(ctx, session)

	got, found := sessions.GetSession(ctx, session.ID)
	require.True(t, found)
	assert.Equal(t, session.ID, got.ID)
	assert.Equal(t, domain.StatusActive, got.Status)
	assert.Equal(t, 2, got.CurrentPage)
	assert.Equal(t, session.Answers, got.Answers)
	assert.Equal(t, session.Version, got.Version)
	assert.Equal(t, "desktop", got.Meta.DeviceType)
}

func TestSessionCache_Invalidate(t *testing.T) {
	cache, _ := setupTestCache(t)
	sessions := NewSessionCache(cache)
	ctx := context.Background()

	session := domain.NewSession(3, domain.ClientMeta{}, time.Now().UTC())
	sessions.SetSession(ctx, session)

	sessions.InvalidateSession(ctx, session.ID)

	_, found := sessions.GetSession(ctx, session.ID)
	assert.False(t, found)
}

func TestSessionCache_CorruptSnapshotIsAMiss(t *testing.T) {
	cache, client := setupTestCache(t)
	sessions := NewSessionCache(cache)
	ctx := context.Background()

	id := uuid.New()
	require.NoError(t, client.Set(ctx, "session:"+id.String(), "{broken", time.Minute).Err())

	_, found := sessions.GetSession(ctx, id)
	assert.False(t, found)
}

func TestSessionCache_UnreachableServerIsBestEffort(t *testing.T) {
	sessions := NewSessionCache(newUnreachableCache())
	ctx := context.Background()

	session := domain.NewSession(3, domain.ClientMeta{}, time.Now().UTC())

	assert.NotPanics(t, func() {
		sessions.SetSession(ctx, session)
		_, found := sessions.GetSession(ctx, session.ID)
		assert.False(t, found)
		sessions.InvalidateSession(ctx, session.ID)
	})
}
