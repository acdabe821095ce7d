// Package sqlstore implements session.Storage as a key/value table managed
// with Bun.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"time"

	session "github.com/goliatone/go-auth-session"
	goerrors "github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

// EntryModel is the Bun model of a stored value.
type EntryModel struct {
	bun.BaseModel `bun:"table:session_entries"`

	Key       string    `bun:"entry_key,pk"`
	Scope     string    `bun:"scope,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// Store scopes every key by a name so several profiles can share a database.
type Store struct {
	db    bun.IDB
	scope string
	now   func() time.Time
}

var _ session.Storage = (*Store)(nil)

// Option customizes a Store.
type Option func(*Store)

// WithScope sets the scope column value. Defaults to "default".
func WithScope(scope string) Option {
	return func(s *Store) {
		if scope != "" {
			s.scope = scope
		}
	}
}

// WithClock injects the clock used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New returns a Store using db. Call Migrate before first use.
func New(db bun.IDB, opts ...Option) *Store {
	s := &Store{db: db, scope: "default", now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// OpenSQLite opens a sqlite database through the sqliteshim driver.
func OpenSQLite(dsn string) (*bun.DB, error) {
	sqldb, err := sql.Open(sqliteshim.ShimName, dsn)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to open session database")
	}
	// sqlite in-memory databases are per connection
	sqldb.SetMaxOpenConns(1)
	return bun.NewDB(sqldb, sqlitedialect.New()), nil
}

// Migrate creates the table when missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*EntryModel)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create session table")
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	var entry EntryModel
	err := s.db.NewSelect().
		Model(&entry).
		Where("entry_key = ? AND scope = ?", key, s.scope).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", session.ErrStorageKeyNotFound
	}
	if err != nil {
		return "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to read session entry")
	}
	return entry.Value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	entry := &EntryModel{
		Key:       key,
		Scope:     s.scope,
		Value:     value,
		UpdatedAt: s.now().UTC(),
	}
	_, err := s.db.NewInsert().
		Model(entry).
		On("CONFLICT (entry_key, scope) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to write session entry")
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := s.db.NewDelete().
		Model((*EntryModel)(nil)).
		Where("scope = ?", s.scope).
		Where("entry_key IN (?)", bun.In(keys)).
		Exec(ctx)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to delete session entries")
	}
	return nil
}
