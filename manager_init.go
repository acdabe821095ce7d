package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/avast/retry-go/v4"
	goerrors "github.com/goliatone/go-errors"
)

// initOutcome is the result of one successful boot attempt.
type initOutcome struct {
	state State
	user  *User
	cause error
}

// retryableInitError marks an attempt that hit a status 500 with no cached
// profile to fall back to. Only these errors re-run the boot sequence.
type retryableInitError struct {
	step    string
	attempt int
	err     error
}

func (e *retryableInitError) Error() string {
	return fmt.Sprintf("initialization %s attempt %d: %v", e.step, e.attempt, e.err)
}

func (e *retryableInitError) Unwrap() error { return e.err }

func isRetryableInit(err error) bool {
	var r *retryableInitError
	return errors.As(err, &r)
}

// Initialize runs the boot sequence once per Manager lifetime and returns
// the resolved state. Later and concurrent calls wait for, and return, the
// first resolution without making more calls.
func (m *Manager) Initialize(ctx context.Context) Snapshot {
	m.mu.Lock()
	switch m.state {
	case StateUninitialized:
		m.transitionLocked(StateInitializing, nil)
		done := make(chan struct{})
		m.initDone = done
		waitCtx, cancel := context.WithCancel(ctx)
		m.cancelWait = cancel
		m.mu.Unlock()

		m.publish()
		m.runInitialization(ctx, waitCtx)

		cancel()
		close(done)
		return m.Snapshot()

	case StateInitializing:
		done := m.initDone
		m.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
		}
		return m.Snapshot()

	default:
		m.mu.Unlock()
		return m.Snapshot()
	}
}

// Done is closed once the boot sequence resolved. It is nil before
// Initialize is called.
func (m *Manager) Done() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.initDone
}

func (m *Manager) runInitialization(ctx, waitCtx context.Context) {
	// storage cleanup must still happen when the caller gave up
	finishCtx := context.WithoutCancel(ctx)

	if !m.tokens.HasStoredToken(ctx) {
		m.logger.Debug("no stored token, starting anonymous")
		m.finishInitialization(finishCtx, initOutcome{state: StateAnonymous}, nil)
		return
	}

	var outcome initOutcome
	err := retry.Do(
		func() error {
			o, err := m.attemptInitialization(ctx)
			if err != nil {
				return err
			}
			outcome = o
			return nil
		},
		retry.Attempts(uint(m.maxRetries)),
		retry.Delay(m.retryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.Context(waitCtx),
		retry.WithTimer(m.timer),
		retry.RetryIf(func(err error) bool {
			return isRetryableInit(err) && !m.hasPendingClear()
		}),
		retry.OnRetry(func(n uint, err error) {
			m.logger.Warn("session initialization attempt failed",
				"attempt", n+1,
				"max_attempts", m.maxRetries,
				"error", err,
			)
		}),
	)

	m.finishInitialization(finishCtx, outcome, err)
}

// attemptInitialization runs one pass of refresh-if-expired, profile fetch
// and cached fallback.
func (m *Manager) attemptInitialization(ctx context.Context) (initOutcome, error) {
	access, hasAccess := m.tokens.AccessToken(ctx)
	_, hasRefresh := m.tokens.RefreshToken(ctx)

	if hasRefresh && (!hasAccess || m.tokens.IsExpired(access)) {
		m.logger.Debug("access token expired, refreshing")
		pair, err := m.client.RefreshToken(ctx)
		if err != nil {
			return m.cachedFallback(ctx, "refresh", err)
		}
		if pair != nil && !pair.IsZero() {
			if err := m.tokens.Save(ctx, *pair); err != nil {
				m.logger.Warn("could not persist refreshed tokens", "error", err)
			}
		}
	}

	user, err := m.client.GetProfile(ctx)
	if err != nil {
		return m.cachedFallback(ctx, "profile", err)
	}
	if user == nil {
		return initOutcome{}, goerrors.New("profile response did not include a user", goerrors.CategoryInternal)
	}

	user = user.Clone()
	if err := m.cache.Store(ctx, user); err != nil {
		m.logger.Warn("could not cache profile", "error", err)
	}

	return initOutcome{state: StateAuthenticated, user: user}, nil
}

// cachedFallback adopts the cached profile on a status 500. Without one it
// counts the failure and asks for another pass.
func (m *Manager) cachedFallback(ctx context.Context, step string, err error) (initOutcome, error) {
	if !IsTransientServerError(err) {
		return initOutcome{}, err
	}

	if cached := m.cache.Read(ctx); cached != nil {
		m.logger.Warn("backend unavailable, using cached profile", "step", step, "error", err)
		return initOutcome{state: StateDegradedCached, user: cached, cause: err}, nil
	}

	m.mu.Lock()
	if m.serverErrorCount < m.maxRetries {
		m.serverErrorCount++
	}
	count := m.serverErrorCount
	m.mu.Unlock()

	m.publish()
	m.recordActivity(ctx, ActivityEvent{
		EventType: ActivityEventInitRetry,
		FromState: StateInitializing,
		ToState:   StateInitializing,
		Attempt:   count,
		Metadata:  map[string]any{"step": step, "error": err.Error()},
	})

	return initOutcome{}, &retryableInitError{step: step, attempt: count, err: err}
}

func (m *Manager) hasPendingClear() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pending != clearNone
}

// finishInitialization resolves the boot sequence. A clear request queued
// while it ran overrides the outcome.
func (m *Manager) finishInitialization(ctx context.Context, outcome initOutcome, err error) {
	m.mu.Lock()
	pending := m.pending
	m.pending = clearNone
	m.cancelWait = nil

	if pending != clearNone {
		// a clear can arrive while the previous one talks to the server
		for pending != clearNone {
			m.mu.Unlock()
			m.applyQueuedClear(ctx, pending)
			m.mu.Lock()
			pending = m.pending
			m.pending = clearNone
		}
		m.mu.Unlock()
		return
	}

	if err != nil {
		exhausted := isRetryableInit(err)
		interrupted := errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		m.transitionLocked(StateAnonymous, nil)
		m.mu.Unlock()

		switch {
		case exhausted:
			m.logger.Warn("session initialization gave up after server errors", "error", err)
		case interrupted:
			m.logger.Warn("session initialization interrupted", "error", err)
		default:
			m.logger.Info("session could not be restored, clearing", "error", err)
			m.purgeStorage(ctx)
		}

		m.publish()
		m.recordActivity(ctx, ActivityEvent{
			EventType: ActivityEventCleared,
			FromState: StateInitializing,
			ToState:   StateAnonymous,
			Metadata: map[string]any{
				"reason":    ClearReasonInitFailure,
				"exhausted": exhausted,
				"purged":    !exhausted && !interrupted,
				"error":     err.Error(),
			},
		})
		return
	}

	if outcome.state == StateAuthenticated {
		m.serverErrorCount = 0
	}
	m.transitionLocked(outcome.state, outcome.user)
	m.mu.Unlock()

	m.publish()

	event := ActivityEvent{
		EventType: ActivityEventInitialized,
		FromState: StateInitializing,
		ToState:   outcome.state,
	}
	if outcome.user != nil {
		event.UserID = outcome.user.ID
	}
	if outcome.state == StateDegradedCached {
		event.EventType = ActivityEventDegraded
		event.Metadata = map[string]any{"error": outcome.cause.Error()}
		m.notify(ctx, SeverityWarning, msgDegradedCache)
	}
	m.recordActivity(ctx, event)
}

func (m *Manager) applyQueuedClear(ctx context.Context, req clearRequest) {
	switch req {
	case clearLogout:
		m.invalidateServerSession(ctx)
		m.clearSession(ctx, ClearReasonLogout)
		m.recordActivity(ctx, ActivityEvent{EventType: ActivityEventLogout, ToState: StateAnonymous})
		m.notify(ctx, SeveritySuccess, msgLogoutSuccess)
	case clearSessionRequired:
		m.clearSession(ctx, ClearReasonSessionRequired)
	}
}
