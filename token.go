package session

import (
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	goerrors "github.com/goliatone/go-errors"
)

// Token is an opaque credential string. Access tokens are expected to be
// JWTs carrying an "exp" claim.
type Token string

// CredentialPair is the access/refresh token pair issued by the backend.
type CredentialPair struct {
	AccessToken  Token `json:"access_token"`
	RefreshToken Token `json:"refresh_token"`
}

// IsZero reports whether neither token is set.
func (p CredentialPair) IsZero() bool {
	return p.AccessToken == "" && p.RefreshToken == ""
}

var tokenParser = jwt.NewParser()

// String returns the raw token.
func (t Token) String() string { return string(t) }

// ExpiresAt returns the expiry embedded in the token. The signature is not
// verified: the client only needs to know whether presenting the token is
// pointless, the backend remains the authority.
func (t Token) ExpiresAt() (time.Time, error) {
	raw := strings.TrimSpace(string(t))
	if raw == "" {
		return time.Time{}, goerrors.New("empty token", goerrors.CategoryBadInput)
	}

	claims := &jwt.RegisteredClaims{}
	if _, _, err := tokenParser.ParseUnverified(raw, claims); err != nil {
		return time.Time{}, goerrors.Wrap(err, goerrors.CategoryBadInput, "malformed token")
	}

	if claims.ExpiresAt == nil {
		return time.Time{}, goerrors.New("token has no expiry", goerrors.CategoryBadInput)
	}

	return claims.ExpiresAt.Time, nil
}

// ExpiredAt reports whether the token is expired at now, allowing for leeway.
// Malformed tokens and tokens without expiry are treated as expired.
func (t Token) ExpiredAt(now time.Time, leeway time.Duration) bool {
	exp, err := t.ExpiresAt()
	if err != nil {
		return true
	}
	return !now.Add(leeway).Before(exp)
}
