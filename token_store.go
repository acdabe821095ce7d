package session

import (
	"context"
	"errors"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultAccessTokenKey  = "auth.access_token"
	DefaultRefreshTokenKey = "auth.refresh_token"
)

// TokenStore persists the credential pair and answers validity queries.
// Storage failures on reads degrade to "no token".
type TokenStore struct {
	storage    Storage
	accessKey  string
	refreshKey string
	leeway     time.Duration
	now        func() time.Time
	logger     Logger
}

// TokenStoreOption customizes a TokenStore.
type TokenStoreOption func(*TokenStore)

// WithTokenKeys overrides the storage keys for both slots.
func WithTokenKeys(accessKey, refreshKey string) TokenStoreOption {
	return func(s *TokenStore) {
		if accessKey != "" {
			s.accessKey = accessKey
		}
		if refreshKey != "" {
			s.refreshKey = refreshKey
		}
	}
}

// WithTokenClock injects the clock used for expiry checks.
func WithTokenClock(now func() time.Time) TokenStoreOption {
	return func(s *TokenStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithExpiryLeeway treats tokens as expired leeway before their exp claim.
func WithExpiryLeeway(leeway time.Duration) TokenStoreOption {
	return func(s *TokenStore) {
		if leeway >= 0 {
			s.leeway = leeway
		}
	}
}

// WithTokenStoreLogger sets the logger used for storage failures.
func WithTokenStoreLogger(logger Logger) TokenStoreOption {
	return func(s *TokenStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewTokenStore returns a TokenStore writing through storage.
func NewTokenStore(storage Storage, opts ...TokenStoreOption) *TokenStore {
	s := &TokenStore{
		storage:    storage,
		accessKey:  DefaultAccessTokenKey,
		refreshKey: DefaultRefreshTokenKey,
		now:        time.Now,
		logger:     defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// HasStoredToken reports whether an access or refresh token is present.
func (s *TokenStore) HasStoredToken(ctx context.Context) bool {
	if _, ok := s.AccessToken(ctx); ok {
		return true
	}
	_, ok := s.RefreshToken(ctx)
	return ok
}

// AccessToken returns the stored access token.
func (s *TokenStore) AccessToken(ctx context.Context) (Token, bool) {
	return s.read(ctx, s.accessKey)
}

// RefreshToken returns the stored refresh token.
func (s *TokenStore) RefreshToken(ctx context.Context) (Token, bool) {
	return s.read(ctx, s.refreshKey)
}

// IsExpired compares the token's embedded expiry with the current time.
// A malformed token is expired.
func (s *TokenStore) IsExpired(token Token) bool {
	return token.ExpiredAt(s.now(), s.leeway)
}

// Save writes the non empty slots of pair.
func (s *TokenStore) Save(ctx context.Context, pair CredentialPair) error {
	if s.storage == nil {
		return ErrStorageUnavailable
	}
	if pair.AccessToken != "" {
		if err := s.storage.Set(ctx, s.accessKey, pair.AccessToken.String()); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store access token")
		}
	}
	if pair.RefreshToken != "" {
		if err := s.storage.Set(ctx, s.refreshKey, pair.RefreshToken.String()); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to store refresh token")
		}
	}
	return nil
}

// Clear removes both tokens.
func (s *TokenStore) Clear(ctx context.Context) error {
	if s.storage == nil {
		return nil
	}
	if err := s.storage.Delete(ctx, s.accessKey, s.refreshKey); err != nil {
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to clear tokens")
	}
	return nil
}

func (s *TokenStore) read(ctx context.Context, key string) (Token, bool) {
	if s.storage == nil {
		return "", false
	}

	v, err := s.storage.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrStorageKeyNotFound) {
			s.logger.Warn("token storage read failed, treating as absent", "key", key, "error", err)
		}
		return "", false
	}

	if v == "" {
		return "", false
	}
	return Token(v), true
}
