package sqlstore_test

import (
	"context"
	"testing"

	session "github.com/goliatone/go-auth-session"
	"github.com/goliatone/go-auth-session/storage/sqlstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

func setupDB(t *testing.T) *bun.DB {
	t.Helper()
	db, err := sqlstore.OpenSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestStoreUpsertAndDelete(t *testing.T) {
	ctx := context.Background()
	store := sqlstore.New(setupDB(t))
	require.NoError(t, store.Migrate(ctx))
	require.NoError(t, store.Migrate(ctx), "migrate is idempotent")

	_, err := store.Get(ctx, "auth.access_token")
	assert.ErrorIs(t, err, session.ErrStorageKeyNotFound)

	require.NoError(t, store.Set(ctx, "auth.access_token", "a1"))
	require.NoError(t, store.Set(ctx, "auth.access_token", "a2"))

	v, err := store.Get(ctx, "auth.access_token")
	require.NoError(t, err)
	assert.Equal(t, "a2", v)

	require.NoError(t, store.Delete(ctx, "auth.access_token", "auth.refresh_token"))
	_, err = store.Get(ctx, "auth.access_token")
	assert.ErrorIs(t, err, session.ErrStorageKeyNotFound)
}

func TestStoreScopesAreIsolated(t *testing.T) {
	ctx := context.Background()
	db := setupDB(t)
	work := sqlstore.New(db, sqlstore.WithScope("work"))
	home := sqlstore.New(db, sqlstore.WithScope("home"))
	require.NoError(t, work.Migrate(ctx))

	require.NoError(t, work.Set(ctx, "k", "work"))
	require.NoError(t, home.Set(ctx, "k", "home"))
	require.NoError(t, home.Delete(ctx, "k"))

	v, err := work.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "work", v)
}

func TestStoreBacksManagerStorage(t *testing.T) {
	ctx := context.Background()
	store := sqlstore.New(setupDB(t))
	require.NoError(t, store.Migrate(ctx))

	tokens := session.NewTokenStore(store)
	require.NoError(t, tokens.Save(ctx, session.CredentialPair{AccessToken: "a", RefreshToken: "r"}))
	assert.True(t, tokens.HasStoredToken(ctx))

	require.NoError(t, tokens.Clear(ctx))
	assert.False(t, tokens.HasStoredToken(ctx))
}
