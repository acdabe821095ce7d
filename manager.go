package session

import (
	"context"
	"sync"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
)

const (
	// DefaultMaxRetries is the number of initialization attempts made while
	// the backend answers with status 500 and no cached profile exists.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the fixed wait between initialization attempts.
	DefaultRetryDelay = 2 * time.Second
	// DefaultLogoutTimeout bounds the server side logout call.
	DefaultLogoutTimeout = 5 * time.Second
)

type clearRequest int

const (
	clearNone clearRequest = iota
	clearSessionRequired
	clearLogout
)

// Manager owns the session lifecycle: boot, refresh on expiry, bounded
// retry on server failure, cached fallback and the runtime auth operations.
// Create one per application root and hand it to consumers.
type Manager struct {
	client   AuthClient
	tokens   *TokenStore
	cache    *Cache
	notifier Notifier
	activity ActivitySink
	logger   Logger
	timer    Timer
	now      func() time.Time

	maxRetries    int
	retryDelay    time.Duration
	logoutTimeout time.Duration
	profileGate   ProfileGatePolicy
	statusChecker ProfileStatusChecker

	bus            *SessionRequiredBus
	unsubscribeBus func()

	mu               sync.Mutex
	state            State
	user             *User
	serverErrorCount int
	initDone         chan struct{}
	pending          clearRequest
	cancelWait       context.CancelFunc

	subMu     sync.Mutex
	nextSub   int
	subs      map[int]func(Snapshot)
	subsOrder []int
}

// ManagerOption customizes a Manager.
type ManagerOption func(*Manager)

// WithMaxRetries sets the number of initialization attempts (minimum 1).
func WithMaxRetries(n int) ManagerOption {
	return func(m *Manager) {
		if n >= 1 {
			m.maxRetries = n
		}
	}
}

// WithRetryDelay sets the fixed wait between initialization attempts.
func WithRetryDelay(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d >= 0 {
			m.retryDelay = d
		}
	}
}

// WithTimer injects the timer used for retry waits (useful for tests).
func WithTimer(t Timer) ManagerOption {
	return func(m *Manager) {
		if t != nil {
			m.timer = t
		}
	}
}

// WithClock injects a custom clock (useful for tests).
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// WithLogoutTimeout bounds the best-effort server side logout.
func WithLogoutTimeout(d time.Duration) ManagerOption {
	return func(m *Manager) {
		if d > 0 {
			m.logoutTimeout = d
		}
	}
}

// WithNotifier sets the Notifier used for user facing outcomes.
func WithNotifier(n Notifier) ManagerOption {
	return func(m *Manager) {
		m.notifier = normalizeNotifier(n)
	}
}

// WithActivitySink sets the ActivitySink used to publish session events.
func WithActivitySink(sink ActivitySink) ManagerOption {
	return func(m *Manager) {
		m.activity = normalizeActivitySink(sink)
	}
}

// WithLogger overrides the logger.
func WithLogger(logger Logger) ManagerOption {
	return func(m *Manager) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// WithSessionRequiredBus subscribes the manager to session required signals.
func WithSessionRequiredBus(bus *SessionRequiredBus) ManagerOption {
	return func(m *Manager) {
		m.bus = bus
	}
}

// WithProfileGatePolicy sets how ProfileComplete answers when the status
// check fails.
func WithProfileGatePolicy(p ProfileGatePolicy) ManagerOption {
	return func(m *Manager) {
		m.profileGate = p
	}
}

// NewManager creates a Manager. Nil stores fall back to in-memory storage.
func NewManager(client AuthClient, tokens *TokenStore, cache *Cache, opts ...ManagerOption) *Manager {
	if client == nil {
		panic("session: NewManager requires an AuthClient")
	}

	if tokens == nil || cache == nil {
		storage := NewMemoryStorage()
		if tokens == nil {
			tokens = NewTokenStore(storage)
		}
		if cache == nil {
			cache = NewCache(storage)
		}
	}

	m := &Manager{
		client:        client,
		tokens:        tokens,
		cache:         cache,
		notifier:      noopNotifier{},
		activity:      noopActivitySink{},
		logger:        defLogger{},
		timer:         realTimer{},
		now:           time.Now,
		maxRetries:    DefaultMaxRetries,
		retryDelay:    DefaultRetryDelay,
		logoutTimeout: DefaultLogoutTimeout,
		profileGate:   ProfileGateFromProfile,
		state:         StateUninitialized,
		subs:          make(map[int]func(Snapshot)),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	if m.bus != nil {
		m.unsubscribeBus = m.bus.Subscribe(func(e SessionRequiredEvent) {
			m.HandleSessionRequired(context.Background(), e)
		})
	}

	return m
}

// Close detaches the manager from the session required bus and drops subscribers.
func (m *Manager) Close() {
	if m.unsubscribeBus != nil {
		m.unsubscribeBus()
		m.unsubscribeBus = nil
	}
	m.subMu.Lock()
	m.subs = make(map[int]func(Snapshot))
	m.subsOrder = nil
	m.subMu.Unlock()
}

// Snapshot returns a read-only copy of the current session state.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		State:            m.state,
		User:             m.user.Clone(),
		Authenticated:    m.user != nil,
		Initializing:     m.state == StateInitializing,
		ServerErrorCount: m.serverErrorCount,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// User returns a copy of the current user, or nil.
func (m *Manager) User() *User {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user.Clone()
}

// Subscribe registers fn to receive a Snapshot after every state change.
func (m *Manager) Subscribe(fn func(Snapshot)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}

	m.subMu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = fn
	m.subsOrder = append(m.subsOrder, id)
	m.subMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.subMu.Lock()
			defer m.subMu.Unlock()
			delete(m.subs, id)
			for i, v := range m.subsOrder {
				if v == id {
					m.subsOrder = append(m.subsOrder[:i], m.subsOrder[i+1:]...)
					break
				}
			}
		})
	}
}

func (m *Manager) publish() {
	snap := m.Snapshot()

	m.subMu.Lock()
	fns := make([]func(Snapshot), 0, len(m.subsOrder))
	for _, id := range m.subsOrder {
		fns = append(fns, m.subs[id])
	}
	m.subMu.Unlock()

	for _, fn := range fns {
		fn(snap)
	}
}

// transitionLocked moves to state `to` with `user`. Disallowed transitions
// are logged and leave the state untouched, but the user is still applied
// when clearing so the authenticated invariant holds.
func (m *Manager) transitionLocked(to State, user *User) (State, bool) {
	from := m.state
	if !CanTransition(from, to) {
		m.logger.Error("rejected session transition", "from", from, "to", to, "error", ErrInvalidTransition)
		if user == nil {
			m.user = nil
		}
		return from, false
	}
	m.state = to
	m.user = user
	return from, true
}

func (m *Manager) ensureReady() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateUninitialized, StateInitializing:
		return ErrInitializing
	default:
		return nil
	}
}

// hasUser reports whether a signed-in or cached user is present.
func (m *Manager) hasUser() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.user != nil
}

func (m *Manager) notify(ctx context.Context, severity Severity, message string) {
	if message == "" {
		return
	}
	m.notifier.Notify(ctx, Notification{Severity: severity, Message: message})
}

func (m *Manager) fail(ctx context.Context, event ActivityEventType, op string, err error) error {
	m.logger.Error(op+" failed", "error", err)
	m.notify(ctx, SeverityError, UserMessage(err))
	m.recordActivity(ctx, ActivityEvent{
		EventType: event,
		FromState: m.State(),
		ToState:   m.State(),
		Metadata:  map[string]any{"error": err.Error()},
	})
	return err
}

// Login authenticates with email and password. On failure the error is
// returned untouched and the session is not modified.
func (m *Manager) Login(ctx context.Context, email, password string, rememberMe ...bool) error {
	if err := m.ensureReady(); err != nil {
		return err
	}

	creds := Credentials{Email: email, Password: password}
	if len(rememberMe) > 0 {
		creds.RememberMe = rememberMe[0]
	}

	if err := creds.Validate(); err != nil {
		return m.fail(ctx, ActivityEventLoginFailure, "login", err)
	}

	result, err := m.client.Login(ctx, creds)
	if err != nil {
		return m.fail(ctx, ActivityEventLoginFailure, "login", err)
	}

	if err := m.adoptAuthResult(ctx, result, ActivityEventLoginSuccess); err != nil {
		return m.fail(ctx, ActivityEventLoginFailure, "login", err)
	}

	m.notify(ctx, SeveritySuccess, msgLoginSuccess)
	return nil
}

// Register creates an account and signs it in. Same contract as Login.
func (m *Manager) Register(ctx context.Context, data RegistrationData) error {
	if err := m.ensureReady(); err != nil {
		return err
	}

	if data == nil {
		return m.fail(ctx, ActivityEventRegisterFailure, "register",
			&ValidationError{Message: "Registration data is required"})
	}

	if err := data.Validate(); err != nil {
		return m.fail(ctx, ActivityEventRegisterFailure, "register", err)
	}

	result, err := m.client.Register(ctx, data)
	if err != nil {
		return m.fail(ctx, ActivityEventRegisterFailure, "register", err)
	}

	if err := m.adoptAuthResult(ctx, result, ActivityEventRegisterSuccess); err != nil {
		return m.fail(ctx, ActivityEventRegisterFailure, "register", err)
	}

	m.notify(ctx, SeveritySuccess, msgRegisterSuccess)
	return nil
}

func (m *Manager) adoptAuthResult(ctx context.Context, result *AuthResult, event ActivityEventType) error {
	if result == nil || result.User == nil {
		return goerrors.New("auth response did not include a user", goerrors.CategoryInternal)
	}

	if !result.Tokens.IsZero() {
		if err := m.tokens.Save(ctx, result.Tokens); err != nil {
			m.logger.Warn("could not persist tokens", "error", err)
		}
	}

	user := result.User.Clone()
	if err := m.cache.Store(ctx, user); err != nil {
		m.logger.Warn("could not cache profile", "error", err)
	}

	m.mu.Lock()
	from, _ := m.transitionLocked(StateAuthenticated, user)
	m.serverErrorCount = 0
	m.mu.Unlock()

	m.publish()
	m.recordActivity(ctx, ActivityEvent{
		EventType: event,
		UserID:    user.ID,
		FromState: from,
		ToState:   StateAuthenticated,
	})
	return nil
}

// Logout invalidates the session server side (best effort) and then clears
// tokens, cached profile and user. It never fails. During initialization
// the logout is queued and applied once the in-flight attempt settles.
func (m *Manager) Logout(ctx context.Context) {
	if m.queueClear(clearLogout) {
		m.logger.Info("logout queued until initialization settles")
		return
	}

	m.invalidateServerSession(ctx)
	m.clearSession(ctx, ClearReasonLogout)
	m.recordActivity(ctx, ActivityEvent{EventType: ActivityEventLogout, ToState: m.State()})
	m.notify(ctx, SeveritySuccess, msgLogoutSuccess)
}

// HandleSessionRequired clears the session like Logout, without calling
// the server. It is wired to the SessionRequiredBus by WithSessionRequiredBus.
func (m *Manager) HandleSessionRequired(ctx context.Context, event SessionRequiredEvent) {
	if m.queueClear(clearSessionRequired) {
		m.logger.Info("session required signal queued until initialization settles")
		return
	}

	hadUser := m.User() != nil
	m.clearSession(ctx, ClearReasonSessionRequired)

	if hadUser {
		msg := event.Message
		if msg == "" {
			msg = msgSessionRequired
		}
		m.notify(ctx, SeverityWarning, msg)
	}
}

// queueClear records a clear request when initialization is in flight and
// interrupts any pending retry wait. It reports whether it queued.
func (m *Manager) queueClear(req clearRequest) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateInitializing {
		return false
	}
	if req > m.pending {
		m.pending = req
	}
	if m.cancelWait != nil {
		m.cancelWait()
	}
	return true
}

func (m *Manager) invalidateServerSession(ctx context.Context) {
	if !m.tokens.HasStoredToken(ctx) {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.logoutTimeout)
	defer cancel()

	if err := m.client.Logout(ctx); err != nil {
		m.logger.Warn("server logout failed, clearing local session anyway", "error", err)
	}
}

// clearSession empties Token Store, Session Cache and the in-memory user.
func (m *Manager) clearSession(ctx context.Context, reason string) {
	m.purgeStorage(ctx)

	m.mu.Lock()
	from := m.state
	to := StateAnonymous
	if from == StateUninitialized {
		// nothing was resolved yet, the boot sequence will find no tokens
		m.user = nil
		to = from
	} else {
		m.transitionLocked(StateAnonymous, nil)
	}
	m.mu.Unlock()

	m.publish()
	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventCleared,
		FromState: from,
		ToState:   to,
		Metadata:  map[string]any{"reason": reason},
	})
}

func (m *Manager) purgeStorage(ctx context.Context) {
	if err := m.tokens.Clear(ctx); err != nil {
		m.logger.Error("could not clear tokens", "error", err)
	}
	if err := m.cache.Clear(ctx); err != nil {
		m.logger.Error("could not clear cached profile", "error", err)
	}
}

// UpdateProfile sends patch to the backend and replaces the user with the
// returned profile. Errors are returned verbatim.
func (m *Manager) UpdateProfile(ctx context.Context, patch ProfilePatch) error {
	if err := m.ensureReady(); err != nil {
		return err
	}

	if !m.hasUser() {
		return m.fail(ctx, ActivityEventProfileUpdateFailure, "update profile", ErrSessionRequired)
	}

	if patch.IsEmpty() {
		return m.fail(ctx, ActivityEventProfileUpdateFailure, "update profile",
			&ValidationError{Message: "Nothing to update"})
	}

	if err := patch.Validate(); err != nil {
		return m.fail(ctx, ActivityEventProfileUpdateFailure, "update profile", err)
	}

	user, err := m.client.UpdateProfile(ctx, patch)
	if err != nil {
		return m.fail(ctx, ActivityEventProfileUpdateFailure, "update profile", err)
	}
	if user == nil {
		return m.fail(ctx, ActivityEventProfileUpdateFailure, "update profile",
			goerrors.New("profile response did not include a user", goerrors.CategoryInternal))
	}

	user = user.Clone()

	m.mu.Lock()
	if m.user == nil {
		// cleared while the request was in flight
		m.mu.Unlock()
		return m.fail(ctx, ActivityEventProfileUpdateFailure, "update profile", ErrSessionRequired)
	}
	from, _ := m.transitionLocked(StateAuthenticated, user)
	m.mu.Unlock()

	if err := m.cache.Store(ctx, user); err != nil {
		m.logger.Warn("could not cache profile", "error", err)
	}

	m.publish()
	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventProfileUpdated,
		UserID:    user.ID,
		FromState: from,
		ToState:   StateAuthenticated,
	})
	m.notify(ctx, SeveritySuccess, msgProfileUpdated)
	return nil
}

// UpdatePassword changes the password of the current user.
func (m *Manager) UpdatePassword(ctx context.Context, current, next string) error {
	if err := m.ensureReady(); err != nil {
		return err
	}

	if !m.hasUser() {
		return m.fail(ctx, ActivityEventPasswordChangeFailure, "update password", ErrSessionRequired)
	}

	if err := validatePasswordChange(current, next); err != nil {
		return m.fail(ctx, ActivityEventPasswordChangeFailure, "update password", err)
	}

	if err := m.client.ChangePassword(ctx, current, next); err != nil {
		return m.fail(ctx, ActivityEventPasswordChangeFailure, "update password", err)
	}

	var uid UserID
	if u := m.User(); u != nil {
		uid = u.ID
	}
	m.recordActivity(ctx, ActivityEvent{EventType: ActivityEventPasswordChanged, UserID: uid})
	m.notify(ctx, SeveritySuccess, msgPasswordUpdated)
	return nil
}

// ForgotPassword asks the backend to send a reset link to email.
func (m *Manager) ForgotPassword(ctx context.Context, email string) error {
	if err := validation.Validate(email, validation.Required, is.Email); err != nil {
		return &ValidationError{Message: "Invalid email", Fields: map[string]string{"email": err.Error()}}
	}

	if err := m.client.ForgotPassword(ctx, email); err != nil {
		m.logger.Error("forgot password failed", "error", err)
		return err
	}

	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventPasswordForgot,
		Metadata:  map[string]any{"email": email},
	})
	return nil
}

// Validate checks that both credentials are present and the email is well formed.
func (c Credentials) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.Password, validation.Required),
	)
	return validationErrorFrom(err, "Invalid login request")
}

func validatePasswordChange(current, next string) error {
	fields := map[string]string{}
	if err := validation.Validate(current, validation.Required); err != nil {
		fields["current_password"] = err.Error()
	}
	if err := validation.Validate(next, validation.Required, validation.Length(8, 128)); err != nil {
		fields["new_password"] = err.Error()
	} else if next == current {
		fields["new_password"] = "must be different from the current password"
	}
	if len(fields) > 0 {
		return &ValidationError{Message: "Invalid password change", Fields: fields}
	}
	return nil
}
