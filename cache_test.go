package session_test

import (
	"context"
	"testing"
	"time"

	session "github.com/goliatone/go-auth-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCacheStoreRead(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	cache := session.NewCache(session.NewMemoryStorage(), session.WithCacheClock(func() time.Time { return now }))

	assert.Nil(t, cache.Read(ctx))

	user := &session.User{ID: "1", Username: "ana", Dealer: &session.DealerProfile{CompanyName: "Ana Motors"}}
	require.NoError(t, cache.Store(ctx, user))

	got, at := cache.ReadWithTime(ctx)
	assert.Equal(t, user, got)
	assert.Equal(t, now, at)

	require.NoError(t, cache.Store(ctx, nil))
	assert.Nil(t, cache.Read(ctx))
}

func TestCacheIgnoresCorruptPayload(t *testing.T) {
	ctx := context.Background()
	storage := session.NewMemoryStorage()
	cache := session.NewCache(storage, session.WithCacheLogger(session.NopLogger()))

	require.NoError(t, storage.Set(ctx, session.DefaultCacheKey, "{not json"))
	assert.Nil(t, cache.Read(ctx))

	require.NoError(t, storage.Set(ctx, session.DefaultCacheKey, `{"user":{"username":"no-id"}}`))
	assert.Nil(t, cache.Read(ctx))
}

func TestUserIDAcceptsNumbers(t *testing.T) {
	ctx := context.Background()
	storage := session.NewMemoryStorage()
	cache := session.NewCache(storage)

	require.NoError(t, storage.Set(ctx, session.DefaultCacheKey, `{"user":{"id":1,"username":"ana"}}`))

	user := cache.Read(ctx)
	require.NotNil(t, user)
	assert.Equal(t, session.UserID("1"), user.ID)
	n, ok := user.ID.Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(1), n)
}
