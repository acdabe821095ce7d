package redisstore_test

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	session "github.com/goliatone/go-auth-session"
	"github.com/goliatone/go-auth-session/storage/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := redisstore.New(client, redisstore.WithPrefix("app"))

	require.NoError(t, store.Ping(ctx))

	_, err := store.Get(ctx, "auth.access_token")
	assert.ErrorIs(t, err, session.ErrStorageKeyNotFound)

	require.NoError(t, store.Set(ctx, "auth.access_token", "a1"))
	assert.True(t, mr.Exists("app:auth.access_token"))

	v, err := store.Get(ctx, "auth.access_token")
	require.NoError(t, err)
	assert.Equal(t, "a1", v)

	require.NoError(t, store.Delete(ctx, "auth.access_token", "auth.refresh_token"))
	assert.False(t, mr.Exists("app:auth.access_token"))
}

func TestStoreTTL(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := redisstore.New(client, redisstore.WithTTL(time.Minute))

	require.NoError(t, store.Set(ctx, "k", "v"))
	assert.Equal(t, time.Minute, mr.TTL("as:k"))

	mr.FastForward(2 * time.Minute)
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, session.ErrStorageKeyNotFound)
}

func TestStoreUnavailable(t *testing.T) {
	ctx := context.Background()
	mr, client := newTestRedis(t)
	store := redisstore.New(client)
	mr.Close()

	_, err := store.Get(ctx, "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, session.ErrStorageKeyNotFound)
}

func TestStoreBacksCache(t *testing.T) {
	ctx := context.Background()
	_, client := newTestRedis(t)
	cache := session.NewCache(redisstore.New(client))

	require.NoError(t, cache.Store(ctx, &session.User{ID: "1", Username: "ana"}))

	user := session.NewCache(redisstore.New(client)).Read(ctx)
	require.NotNil(t, user)
	assert.Equal(t, "ana", user.Username)
}
