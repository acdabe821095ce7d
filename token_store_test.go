package session_test

import (
	"context"
	"errors"
	"testing"
	"time"

	session "github.com/goliatone/go-auth-session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	live := mintToken(t, now.Add(time.Minute))
	expired := mintToken(t, now.Add(-time.Minute))

	exp, err := live.ExpiresAt()
	require.NoError(t, err)
	assert.Equal(t, now.Add(time.Minute).Unix(), exp.Unix())

	assert.False(t, live.ExpiredAt(now, 0))
	assert.True(t, live.ExpiredAt(now, 2*time.Minute), "leeway moves expiry earlier")
	assert.True(t, expired.ExpiredAt(now, 0))
	assert.True(t, session.Token("garbage").ExpiredAt(now, 0))
	assert.True(t, session.Token("").ExpiredAt(now, 0))
}

func TestTokenStoreSaveAndClear(t *testing.T) {
	ctx := context.Background()
	store := session.NewTokenStore(session.NewMemoryStorage())

	assert.False(t, store.HasStoredToken(ctx))

	require.NoError(t, store.Save(ctx, session.CredentialPair{AccessToken: "a1", RefreshToken: "r1"}))
	assert.True(t, store.HasStoredToken(ctx))

	// empty slots leave the stored value untouched
	require.NoError(t, store.Save(ctx, session.CredentialPair{AccessToken: "a2"}))
	access, _ := store.AccessToken(ctx)
	refresh, _ := store.RefreshToken(ctx)
	assert.Equal(t, session.Token("a2"), access)
	assert.Equal(t, session.Token("r1"), refresh)

	require.NoError(t, store.Clear(ctx))
	assert.False(t, store.HasStoredToken(ctx))
}

func TestTokenStoreRefreshOnlyCountsAsStored(t *testing.T) {
	ctx := context.Background()
	store := session.NewTokenStore(session.NewMemoryStorage())
	require.NoError(t, store.Save(ctx, session.CredentialPair{RefreshToken: "r1"}))

	assert.True(t, store.HasStoredToken(ctx))
	_, ok := store.AccessToken(ctx)
	assert.False(t, ok)
}

func TestTokenStoreCustomKeys(t *testing.T) {
	ctx := context.Background()
	storage := session.NewMemoryStorage()
	store := session.NewTokenStore(storage, session.WithTokenKeys("at", "rt"))

	require.NoError(t, store.Save(ctx, session.CredentialPair{AccessToken: "a", RefreshToken: "r"}))

	v, err := storage.Get(ctx, "at")
	require.NoError(t, err)
	assert.Equal(t, "a", v)
}

type failingStorage struct{}

func (failingStorage) Get(context.Context, string) (string, error) { return "", errors.New("disk gone") }
func (failingStorage) Set(context.Context, string, string) error   { return errors.New("disk gone") }
func (failingStorage) Delete(context.Context, ...string) error     { return errors.New("disk gone") }

func TestTokenStoreReadFailuresDegradeToAbsent(t *testing.T) {
	ctx := context.Background()
	store := session.NewTokenStore(failingStorage{}, session.WithTokenStoreLogger(session.NopLogger()))

	assert.False(t, store.HasStoredToken(ctx))
	assert.Error(t, store.Save(ctx, session.CredentialPair{AccessToken: "a"}))
	assert.Error(t, store.Clear(ctx))
}

func TestNilStorageIsSafe(t *testing.T) {
	ctx := context.Background()
	store := session.NewTokenStore(nil)
	cache := session.NewCache(nil)

	assert.False(t, store.HasStoredToken(ctx))
	assert.ErrorIs(t, store.Save(ctx, session.CredentialPair{AccessToken: "a1"}), session.ErrStorageUnavailable)
	assert.NoError(t, store.Clear(ctx))

	assert.Nil(t, cache.Read(ctx))
	assert.ErrorIs(t, cache.Store(ctx, &session.User{ID: "1"}), session.ErrStorageUnavailable)
	assert.NoError(t, cache.Clear(ctx))
}
