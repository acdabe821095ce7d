package metrics_test

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	session "github.com/goliatone/go-auth-session"
	"github.com/goliatone/go-auth-session/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSinkCountsEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewSink(reg)
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, sink.Record(ctx, session.ActivityEvent{EventType: session.ActivityEventInitRetry, ToState: session.StateInitializing}))
	require.NoError(t, sink.Record(ctx, session.ActivityEvent{EventType: session.ActivityEventInitRetry, ToState: session.StateInitializing}))
	require.NoError(t, sink.Record(ctx, session.ActivityEvent{
		EventType: session.ActivityEventCleared,
		ToState:   session.StateAnonymous,
		Metadata:  map[string]any{"reason": session.ClearReasonLogout},
	}))

	assert.Equal(t, 2.0, testutil.ToFloat64(sink.InitRetries()))

	count, err := testutil.GatherAndCount(reg, "auth_session_events_total")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	srv := httptest.NewServer(metrics.Handler(reg))
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSinkTracksState(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewSink(reg)
	require.NoError(t, err)

	require.NoError(t, sink.Record(context.Background(), session.ActivityEvent{
		EventType: session.ActivityEventDegraded,
		ToState:   session.StateDegradedCached,
	}))

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.StateGauge(session.StateDegradedCached)))
	assert.Equal(t, 0.0, testutil.ToFloat64(sink.StateGauge(session.StateAuthenticated)))
}

func TestWriteText(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewSink(reg)
	require.NoError(t, err)
	require.NoError(t, sink.Record(context.Background(), session.ActivityEvent{
		EventType: session.ActivityEventLoginSuccess,
		ToState:   session.StateAuthenticated,
	}))

	var buf bytes.Buffer
	require.NoError(t, metrics.WriteText(&buf, reg))

	assert.Contains(t, buf.String(), `auth_session_events_total{event="auth.login.success"} 1`)
	assert.Contains(t, buf.String(), `auth_session_state{state="authenticated"} 1`)
}

func TestNewSinkRejectsDoubleRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := metrics.NewSink(reg)
	require.NoError(t, err)

	_, err = metrics.NewSink(reg)
	assert.Error(t, err)
}

func TestSinkWithManager(t *testing.T) {
	reg := prometheus.NewRegistry()
	sink, err := metrics.NewSink(reg)
	require.NoError(t, err)

	m := session.NewManager(noopClient{}, nil, nil,
		session.WithActivitySink(sink),
		session.WithLogger(session.NopLogger()),
	)
	m.Initialize(context.Background())

	assert.Equal(t, 1.0, testutil.ToFloat64(sink.StateGauge(session.StateAnonymous)))
}
