package activitymap_test

import (
	"context"
	"errors"
	"testing"
	"time"

	session "github.com/goliatone/go-auth-session"
	"github.com/goliatone/go-auth-session/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := session.ActivityEvent{
		ID:        "evt-1",
		EventType: session.ActivityEventLoginSuccess,
		UserID:    "42",
		FromState: session.StateAnonymous,
		ToState:   session.StateAuthenticated,
		Metadata: map[string]any{
			"remember_me": true,
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "42" {
		t.Fatalf("expected actor_id 42, got %q", out.ActorID)
	}
	if out.Verb != string(session.ActivityEventLoginSuccess) {
		t.Fatalf("expected verb %q, got %q", session.ActivityEventLoginSuccess, out.Verb)
	}
	if out.ObjectType != "session" || out.Channel != "session" {
		t.Fatalf("expected session object type and channel, got %q/%q", out.ObjectType, out.Channel)
	}
	if out.ObjectID != "42" {
		t.Fatalf("expected object_id 42, got %q", out.ObjectID)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}

	if out.Metadata["remember_me"] != true {
		t.Fatalf("expected metadata remember_me, got %#v", out.Metadata["remember_me"])
	}
	if out.Metadata[activitymap.MetadataKeyFromState] != "anonymous" {
		t.Fatalf("expected from_state anonymous, got %#v", out.Metadata[activitymap.MetadataKeyFromState])
	}
	if out.Metadata[activitymap.MetadataKeyToState] != "authenticated" {
		t.Fatalf("expected to_state authenticated, got %#v", out.Metadata[activitymap.MetadataKeyToState])
	}
	if out.Metadata[activitymap.MetadataKeyEventID] != "evt-1" {
		t.Fatalf("expected event_id evt-1, got %#v", out.Metadata[activitymap.MetadataKeyEventID])
	}
	if _, ok := out.Metadata[activitymap.MetadataKeyAttempt]; ok {
		t.Fatalf("expected no attempt for a login event")
	}

	if len(event.Metadata) != 1 {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	fixed := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	event := session.ActivityEvent{
		ID:        "evt-2",
		EventType: session.ActivityEventInitRetry,
		Attempt:   2,
		Metadata: map[string]any{
			"step":                         "profile",
			activitymap.MetadataKeyToState: "existing",
		},
		ToState: session.StateInitializing,
	}

	out := activitymap.Normalize(
		event,
		activitymap.WithDefaultChannel("boot"),
		activitymap.WithDefaultObjectType("device"),
		activitymap.WithObjectIDResolver(func(e session.ActivityEvent) string { return e.ID }),
		activitymap.WithClock(func() time.Time { return fixed }),
	)

	if out.Channel != "boot" {
		t.Fatalf("expected channel boot, got %q", out.Channel)
	}
	if out.ObjectType != "device" {
		t.Fatalf("expected object_type device, got %q", out.ObjectType)
	}
	if out.ObjectID != "evt-2" {
		t.Fatalf("expected object_id evt-2, got %q", out.ObjectID)
	}
	if out.Metadata[activitymap.MetadataKeyToState] != "existing" {
		t.Fatalf("expected existing to_state preserved, got %#v", out.Metadata[activitymap.MetadataKeyToState])
	}
	if out.Metadata[activitymap.MetadataKeyAttempt] != 2 {
		t.Fatalf("expected attempt 2, got %#v", out.Metadata[activitymap.MetadataKeyAttempt])
	}
	if !out.OccurredAt.Equal(fixed) {
		t.Fatalf("expected occurred_at from clock, got %v", out.OccurredAt)
	}
}

func TestNormalizeActorFallbackChain(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		event  session.ActivityEvent
		opts   []activitymap.Option
		expect string
	}{
		{
			name:   "uses user id when present",
			event:  session.ActivityEvent{UserID: "user-1"},
			expect: "user-1",
		},
		{
			name:   "uses default fallback without user",
			event:  session.ActivityEvent{},
			expect: "anonymous",
		},
		{
			name:   "uses configured fallback without user",
			event:  session.ActivityEvent{UserID: "  "},
			opts:   []activitymap.Option{activitymap.WithActorFallback("device")},
			expect: "device",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event, tc.opts...)
			if out.ActorID != tc.expect {
				t.Fatalf("expected actor_id %q, got %q", tc.expect, out.ActorID)
			}
		})
	}
}

func TestSinkEmitsNormalizedRecords(t *testing.T) {
	t.Parallel()

	var got []activitymap.Normalized
	sink := activitymap.NewSink(func(n activitymap.Normalized) error {
		got = append(got, n)
		return nil
	}, activitymap.WithDefaultChannel("cli"))

	var _ session.ActivitySink = sink

	if err := sink.Record(context.Background(), session.ActivityEvent{EventType: session.ActivityEventLogout}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(got) != 1 || got[0].Verb != string(session.ActivityEventLogout) || got[0].Channel != "cli" {
		t.Fatalf("unexpected records %+v", got)
	}

	failing := activitymap.NewSink(func(activitymap.Normalized) error { return errors.New("down") })
	if err := failing.Record(context.Background(), session.ActivityEvent{}); err == nil {
		t.Fatalf("expected emit error to surface")
	}
}
