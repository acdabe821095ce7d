package session_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	session "github.com/goliatone/go-auth-session"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockAuthClient implements session.AuthClient
type MockAuthClient struct {
	mock.Mock
}

func (m *MockAuthClient) Login(ctx context.Context, credentials session.Credentials) (*session.AuthResult, error) {
	args := m.Called(ctx, credentials)
	res, _ := args.Get(0).(*session.AuthResult)
	return res, args.Error(1)
}

func (m *MockAuthClient) Register(ctx context.Context, data session.RegistrationData) (*session.AuthResult, error) {
	args := m.Called(ctx, data)
	res, _ := args.Get(0).(*session.AuthResult)
	return res, args.Error(1)
}

func (m *MockAuthClient) RefreshToken(ctx context.Context) (*session.CredentialPair, error) {
	args := m.Called(ctx)
	pair, _ := args.Get(0).(*session.CredentialPair)
	return pair, args.Error(1)
}

func (m *MockAuthClient) GetProfile(ctx context.Context) (*session.User, error) {
	args := m.Called(ctx)
	user, _ := args.Get(0).(*session.User)
	return user, args.Error(1)
}

func (m *MockAuthClient) UpdateProfile(ctx context.Context, patch session.ProfilePatch) (*session.User, error) {
	args := m.Called(ctx, patch)
	user, _ := args.Get(0).(*session.User)
	return user, args.Error(1)
}

func (m *MockAuthClient) ChangePassword(ctx context.Context, current, next string) error {
	args := m.Called(ctx, current, next)
	return args.Error(0)
}

func (m *MockAuthClient) ForgotPassword(ctx context.Context, email string) error {
	args := m.Called(ctx, email)
	return args.Error(0)
}

func (m *MockAuthClient) Logout(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// MockStatusChecker implements session.ProfileStatusChecker
type MockStatusChecker struct {
	mock.Mock
}

func (m *MockStatusChecker) ProfileStatus(ctx context.Context) (session.ProfileStatus, error) {
	args := m.Called(ctx)
	return args.Get(0).(session.ProfileStatus), args.Error(1)
}

// fakeTimer fires immediately and records the requested waits.
type fakeTimer struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (f *fakeTimer) After(d time.Duration) <-chan time.Time {
	f.mu.Lock()
	f.waits = append(f.waits, d)
	f.mu.Unlock()

	ch := make(chan time.Time, 1)
	ch <- time.Now()
	return ch
}

func (f *fakeTimer) Waits() []time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Duration(nil), f.waits...)
}

// blockingTimer never fires; it reports when a wait started.
type blockingTimer struct {
	waiting chan struct{}
	once    sync.Once
}

func newBlockingTimer() *blockingTimer {
	return &blockingTimer{waiting: make(chan struct{})}
}

func (b *blockingTimer) After(time.Duration) <-chan time.Time {
	b.once.Do(func() { close(b.waiting) })
	return make(chan time.Time)
}

type recordingNotifier struct {
	mu    sync.Mutex
	items []session.Notification
}

func (r *recordingNotifier) Notify(_ context.Context, n session.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items = append(r.items, n)
}

func (r *recordingNotifier) All() []session.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Notification(nil), r.items...)
}

func (r *recordingNotifier) BySeverity(sev session.Severity) []session.Notification {
	var out []session.Notification
	for _, n := range r.All() {
		if n.Severity == sev {
			out = append(out, n)
		}
	}
	return out
}

type recordingSink struct {
	mu     sync.Mutex
	events []session.ActivityEvent
}

func (r *recordingSink) Record(_ context.Context, e session.ActivityEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

func (r *recordingSink) Types() []session.ActivityEventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]session.ActivityEventType, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

var testSigningKey = []byte("session-test-key")

func mintToken(t *testing.T, exp time.Time) session.Token {
	t.Helper()
	claims := jwt.RegisteredClaims{
		Subject:   "1",
		IssuedAt:  jwt.NewNumericDate(exp.Add(-time.Hour)),
		ExpiresAt: jwt.NewNumericDate(exp),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSigningKey)
	require.NoError(t, err)
	return session.Token(signed)
}

// harness wires a Manager over in-memory storage.
type harness struct {
	client   *MockAuthClient
	storage  *session.MemoryStorage
	tokens   *session.TokenStore
	cache    *session.Cache
	notifier *recordingNotifier
	sink     *recordingSink
	timer    *fakeTimer
	now      time.Time
}

func newHarness() *harness {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	storage := session.NewMemoryStorage()
	clock := func() time.Time { return now }
	return &harness{
		client:   &MockAuthClient{},
		storage:  storage,
		tokens:   session.NewTokenStore(storage, session.WithTokenClock(clock), session.WithTokenStoreLogger(session.NopLogger())),
		cache:    session.NewCache(storage, session.WithCacheClock(clock), session.WithCacheLogger(session.NopLogger())),
		notifier: &recordingNotifier{},
		sink:     &recordingSink{},
		timer:    &fakeTimer{},
		now:      now,
	}
}

func (h *harness) manager(opts ...session.ManagerOption) *session.Manager {
	base := []session.ManagerOption{
		session.WithNotifier(h.notifier),
		session.WithActivitySink(h.sink),
		session.WithTimer(h.timer),
		session.WithClock(func() time.Time { return h.now }),
		session.WithLogger(session.NopLogger()),
	}
	return session.NewManager(h.client, h.tokens, h.cache, append(base, opts...)...)
}

func (h *harness) storeTokens(t *testing.T, accessExp time.Time) {
	t.Helper()
	require.NoError(t, h.tokens.Save(context.Background(), session.CredentialPair{
		AccessToken:  mintToken(t, accessExp),
		RefreshToken: "opaque-refresh",
	}))
}

// authenticated boots a manager with a live profile.
func (h *harness) authenticated(t *testing.T, user *session.User, opts ...session.ManagerOption) *session.Manager {
	t.Helper()
	h.storeTokens(t, h.now.Add(time.Hour))
	h.client.On("GetProfile", mock.Anything).Return(user, nil).Once()
	m := h.manager(opts...)
	snap := m.Initialize(context.Background())
	require.Equal(t, session.StateAuthenticated, snap.State)
	return m
}

func serverError(status int) error {
	return &session.ServerError{Status: status}
}
