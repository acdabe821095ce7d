package devserver

import (
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	session "github.com/goliatone/go-auth-session"
	"github.com/google/uuid"
)

const localsUserID = "devserver.user_id"

type accessClaims struct {
	Role string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

type refreshGrant struct {
	userID    session.UserID
	expiresAt time.Time
}

// tokenIssuer signs HS256 access tokens and keeps opaque refresh tokens.
type tokenIssuer struct {
	cfg    Config
	parser *jwt.Parser

	mu     sync.Mutex
	grants map[string]refreshGrant
}

func newTokenIssuer(cfg Config) *tokenIssuer {
	return &tokenIssuer{
		cfg: cfg,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(cfg.Issuer),
			jwt.WithTimeFunc(cfg.Clock),
		),
		grants: make(map[string]refreshGrant),
	}
}

func (t *tokenIssuer) issue(user session.User) (session.CredentialPair, error) {
	now := t.cfg.Clock()
	claims := accessClaims{
		Role: string(user.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   string(user.ID),
			Issuer:    t.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.cfg.AccessTTL)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.cfg.SigningKey)
	if err != nil {
		return session.CredentialPair{}, err
	}

	refresh := uuid.NewString()
	t.mu.Lock()
	t.grants[refresh] = refreshGrant{userID: user.ID, expiresAt: now.Add(t.cfg.RefreshTTL)}
	t.mu.Unlock()

	return session.CredentialPair{AccessToken: session.Token(signed), RefreshToken: session.Token(refresh)}, nil
}

// rotate consumes a refresh token and returns its owner.
func (t *tokenIssuer) rotate(refresh string) (session.UserID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	grant, ok := t.grants[refresh]
	if !ok {
		return "", false
	}
	delete(t.grants, refresh)
	if !t.cfg.Clock().Before(grant.expiresAt) {
		return "", false
	}
	return grant.userID, true
}

func (t *tokenIssuer) revoke(refresh string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.grants, refresh)
}

func (t *tokenIssuer) revokeUser(id session.UserID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for k, g := range t.grants {
		if g.userID == id {
			delete(t.grants, k)
		}
	}
}

func (t *tokenIssuer) validate(raw string) (session.UserID, error) {
	claims := &accessClaims{}
	if _, err := t.parser.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return t.cfg.SigningKey, nil
	}); err != nil {
		return "", err
	}
	return session.UserID(claims.Subject), nil
}

func (s *Server) requireBearer(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	raw, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || strings.TrimSpace(raw) == "" {
		return writeError(c, fiber.StatusUnauthorized, "missing or malformed JWT", nil)
	}

	id, err := s.tokens.validate(strings.TrimSpace(raw))
	if err != nil {
		return writeError(c, fiber.StatusUnauthorized, "invalid or expired token", nil)
	}

	if _, ok := s.lookupID(id); !ok {
		return writeError(c, fiber.StatusUnauthorized, "unknown user", nil)
	}

	c.Locals(localsUserID, id)
	return c.Next()
}

func currentUserID(c *fiber.Ctx) session.UserID {
	id, _ := c.Locals(localsUserID).(session.UserID)
	return id
}
