// Package client is the HTTP implementation of session.AuthClient.
//
// The client holds no session state of its own: it reads tokens from and
// writes refreshed tokens to the session.TokenStore it is given. A 401 from
// a protected endpoint is published on the SessionRequiredBus, when one is
// configured.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	session "github.com/goliatone/go-auth-session"
	goerrors "github.com/goliatone/go-errors"
)

const (
	DefaultTimeout   = 15 * time.Second
	defaultUserAgent = "go-auth-session"
	maxErrorBody     = 64 << 10
)

// Routes are the backend paths, relative to the base URL.
type Routes struct {
	Login          string
	Register       string
	Refresh        string
	Profile        string
	ProfileStatus  string
	ChangePassword string
	ForgotPassword string
	Logout         string
}

// DefaultRoutes returns the REST surface the backend exposes.
func DefaultRoutes() Routes {
	return Routes{
		Login:          "/login",
		Register:       "/register",
		Refresh:        "/refresh",
		Profile:        "/profile",
		ProfileStatus:  "/profile/status",
		ChangePassword: "/change-password",
		ForgotPassword: "/forgot-password",
		Logout:         "/logout",
	}
}

// Client talks to the auth backend.
type Client struct {
	base      *url.URL
	http      *http.Client
	tokens    *session.TokenStore
	bus       *session.SessionRequiredBus
	logger    session.Logger
	routes    Routes
	userAgent string
}

var (
	_ session.AuthClient           = (*Client)(nil)
	_ session.ProfileStatusChecker = (*Client)(nil)
)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithTimeout sets the per request timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithSessionRequiredBus publishes a signal on unauthorized responses from
// protected endpoints.
func WithSessionRequiredBus(bus *session.SessionRequiredBus) Option {
	return func(c *Client) {
		c.bus = bus
	}
}

// WithLogger sets the logger.
func WithLogger(logger session.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRoutes overrides the backend paths.
func WithRoutes(r Routes) Option {
	return func(c *Client) {
		c.routes = r
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *Client) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// New returns a Client for the backend at baseURL.
func New(baseURL string, tokens *session.TokenStore, opts ...Option) (*Client, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, goerrors.New("invalid auth backend url", goerrors.CategoryBadInput).
			WithMetadata(map[string]any{"url": baseURL})
	}
	if tokens == nil {
		return nil, goerrors.New("client requires a token store", goerrors.CategoryBadInput)
	}

	c := &Client{
		base:      base,
		http:      &http.Client{Timeout: DefaultTimeout},
		tokens:    tokens,
		logger:    session.NopLogger(),
		routes:    DefaultRoutes(),
		userAgent: defaultUserAgent,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c, nil
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me,omitempty"`
}

type refreshRequest struct {
	RefreshToken session.Token `json:"refresh_token"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (c *Client) Login(ctx context.Context, creds session.Credentials) (*session.AuthResult, error) {
	var res session.AuthResult
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   c.routes.Login,
		body:   loginRequest{Email: creds.Email, Password: creds.Password, RememberMe: creds.RememberMe},
		out:    &res,
		public: true,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func (c *Client) Register(ctx context.Context, data session.RegistrationData) (*session.AuthResult, error) {
	var res session.AuthResult
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   c.routes.Register,
		body:   data,
		out:    &res,
		public: true,
	})
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// RefreshToken exchanges the stored refresh token and saves the new pair.
func (c *Client) RefreshToken(ctx context.Context) (*session.CredentialPair, error) {
	refresh, ok := c.tokens.RefreshToken(ctx)
	if !ok {
		return nil, session.ErrSessionRequired
	}

	var pair session.CredentialPair
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   c.routes.Refresh,
		body:   refreshRequest{RefreshToken: refresh},
		out:    &pair,
	})
	if err != nil {
		return nil, err
	}

	if err := c.tokens.Save(ctx, pair); err != nil {
		c.logger.Warn("could not persist refreshed tokens", "error", err)
	}
	return &pair, nil
}

func (c *Client) GetProfile(ctx context.Context) (*session.User, error) {
	var user session.User
	if err := c.do(ctx, call{method: http.MethodGet, path: c.routes.Profile, out: &user, auth: true}); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) UpdateProfile(ctx context.Context, patch session.ProfilePatch) (*session.User, error) {
	var user session.User
	if err := c.do(ctx, call{method: http.MethodPut, path: c.routes.Profile, body: patch, out: &user, auth: true}); err != nil {
		return nil, err
	}
	return &user, nil
}

func (c *Client) ChangePassword(ctx context.Context, current, next string) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   c.routes.ChangePassword,
		body:   changePasswordRequest{CurrentPassword: current, NewPassword: next},
		auth:   true,
	})
}

func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	return c.do(ctx, call{
		method: http.MethodPost,
		path:   c.routes.ForgotPassword,
		body:   forgotPasswordRequest{Email: email},
		public: true,
	})
}

// Logout invalidates the refresh token server side. An unauthorized answer
// means the server already dropped the session and is not an error.
func (c *Client) Logout(ctx context.Context) error {
	refresh, _ := c.tokens.RefreshToken(ctx)
	err := c.do(ctx, call{
		method: http.MethodPost,
		path:   c.routes.Logout,
		body:   refreshRequest{RefreshToken: refresh},
		auth:   true,
		quiet:  true,
	})
	if session.IsServerStatus(err, http.StatusUnauthorized) {
		return nil
	}
	return err
}

// ProfileStatus implements session.ProfileStatusChecker.
func (c *Client) ProfileStatus(ctx context.Context) (session.ProfileStatus, error) {
	var status session.ProfileStatus
	err := c.do(ctx, call{method: http.MethodGet, path: c.routes.ProfileStatus, out: &status, auth: true})
	return status, err
}

type call struct {
	method string
	path   string
	body   any
	out    any
	// auth attaches the access token
	auth bool
	// public endpoints answer bad input with 400/401/409/422
	public bool
	// quiet suppresses the session required signal
	quiet bool
}

func (c *Client) do(ctx context.Context, cl call) error {
	req, err := c.newRequest(ctx, cl)
	if err != nil {
		return err
	}

	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug("auth backend unreachable", "path", cl.path, "error", err)
		return &session.NetworkError{Op: cl.method + " " + cl.path, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		if cl.out == nil || resp.StatusCode == http.StatusNoContent {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(cl.out); err != nil {
			return &session.ServerError{Status: resp.StatusCode, Message: "malformed response from server"}
		}
		return nil
	}

	apiErr := decodeErrorBody(resp.Body)
	c.logger.Debug("auth backend rejected request", "path", cl.path, "status", resp.StatusCode, "error", apiErr.Message)

	if cl.public {
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusConflict, http.StatusUnprocessableEntity:
			return apiErr.validation("Request rejected")
		}
	} else if resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity {
		return apiErr.validation("Request rejected")
	}

	if resp.StatusCode == http.StatusUnauthorized && !cl.public && !cl.quiet && c.bus != nil {
		c.bus.Publish(session.SessionRequiredEvent{Message: apiErr.Message})
	}

	return &session.ServerError{Status: resp.StatusCode, Message: apiErr.Message}
}

func (c *Client) newRequest(ctx context.Context, cl call) (*http.Request, error) {
	var body io.Reader
	if cl.body != nil {
		payload, err := json.Marshal(cl.body)
		if err != nil {
			return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to encode request")
		}
		body = bytes.NewReader(payload)
	}

	u := c.base.JoinPath(cl.path)
	req, err := http.NewRequestWithContext(ctx, cl.method, u.String(), body)
	if err != nil {
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to build request")
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if cl.body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if cl.auth {
		if access, ok := c.tokens.AccessToken(ctx); ok {
			req.Header.Set("Authorization", "Bearer "+access.String())
		}
	}
	return req, nil
}

// errorBody is the error envelope of the backend.
type errorBody struct {
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Fields  map[string]string `json:"fields"`
}

func decodeErrorBody(r io.Reader) errorBody {
	var eb errorBody
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBody))
	if err != nil || len(raw) == 0 {
		return eb
	}
	if err := json.Unmarshal(raw, &eb); err != nil {
		eb.Message = strings.TrimSpace(string(raw))
	}
	if eb.Message == "" {
		eb.Message = eb.Error
	}
	return eb
}

func (eb errorBody) validation(fallback string) *session.ValidationError {
	msg := eb.Message
	if msg == "" {
		msg = fallback
	}
	return &session.ValidationError{Message: msg, Fields: eb.Fields}
}

// IsUnauthorized reports whether err is a 401 from the backend.
func IsUnauthorized(err error) bool {
	return session.IsServerStatus(err, http.StatusUnauthorized) || errors.Is(err, session.ErrSessionRequired)
}
