// Package activitymap flattens session activity events into a generic
// record for log pipelines and audit stores.
package activitymap

import (
	"context"
	"strings"
	"time"

	session "github.com/goliatone/go-auth-session"
)

const (
	// MetadataKeyFromState stores the state the session left.
	MetadataKeyFromState = "from_state"
	// MetadataKeyToState stores the state the session entered.
	MetadataKeyToState = "to_state"
	// MetadataKeyAttempt stores the initialization attempt number.
	MetadataKeyAttempt = "attempt"
	// MetadataKeyEventID stores the id of the source event.
	MetadataKeyEventID = "event_id"
)

const (
	defaultChannel    = "session"
	defaultObjectType = "session"
	defaultActorID    = "anonymous"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel          string
	objectType       string
	actorFallback    string
	objectIDResolver func(session.ActivityEvent) string
	now              func() time.Time
}

// Normalize converts a session.ActivityEvent into the normalized shape.
// The source metadata map is never modified.
func Normalize(event session.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(string(event.UserID)), options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: options.objectType,
		ObjectID:   resolveObjectID(event, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// Sink normalizes every event and hands it to emit. It implements
// session.ActivitySink.
type Sink struct {
	emit func(Normalized) error
	opts []Option
}

// NewSink returns a Sink calling emit with the normalized record.
func NewSink(emit func(Normalized) error, opts ...Option) *Sink {
	return &Sink{emit: emit, opts: opts}
}

// Record implements session.ActivitySink.
func (s *Sink) Record(_ context.Context, event session.ActivityEvent) error {
	if s == nil || s.emit == nil {
		return nil
	}
	return s.emit(Normalize(event, s.opts...))
}

// WithDefaultChannel sets the channel of normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type of normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithObjectIDResolver overrides object id extraction. By default the
// object is the session, identified by the user id.
func WithObjectIDResolver(resolver func(session.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when the event has no user.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the clock used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func resolveObjectID(event session.ActivityEvent, resolver func(session.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	return strings.TrimSpace(string(event.UserID))
}

func normalizeMetadata(event session.ActivityEvent) map[string]any {
	metadata := cloneMap(event.Metadata)

	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; !exists {
			metadata[key] = value
		}
	}

	if event.ID != "" {
		set(MetadataKeyEventID, event.ID)
	}
	if event.FromState != "" {
		set(MetadataKeyFromState, string(event.FromState))
	}
	if event.ToState != "" {
		set(MetadataKeyToState, string(event.ToState))
	}
	if event.Attempt > 0 {
		set(MetadataKeyAttempt, event.Attempt)
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
