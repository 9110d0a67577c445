// Package activitymap turns portal activity events into a flat record
// for audit logs and downstream collectors.
package activitymap

import (
	"strings"
	"time"

	"github.com/goliatone/go-portal"
)

const (
	// MetadataKeyReason stores the failure kind or invalidation reason.
	MetadataKeyReason = "reason"
	// MetadataKeyUsername stores the username the event refers to.
	MetadataKeyUsername = "username"
	// MetadataKeyClientID stores the browser client id.
	MetadataKeyClientID = "client_id"
	// MetadataKeyActor is read from the event metadata when an admin acted
	// on another account.
	MetadataKeyActor = "actor"
)

const (
	defaultChannel     = "portal"
	defaultObjectType  = "session"
	userObjectType     = "user"
	defaultActorID     = "anonymous"
	clientActorIDLabel = "client:"
)

// Normalized is a transport-agnostic activity shape.
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
	actorFallback    string
	objectIDResolver func(portal.ActivityEvent) string
}

// Normalize converts a portal.ActivityEvent into the normalized shape.
// Session events target the client session, status changes target the
// user that was changed.
func Normalize(event portal.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	objectType := defaultObjectType
	if event.EventType == portal.ActivityUserStatusChanged {
		objectType = userObjectType
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = time.Now().UTC()
	}

	return Normalized{
		ActorID:    resolveActor(event, options.actorFallback),
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   resolveObjectID(event, objectType, options.objectIDResolver),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if channel = strings.TrimSpace(channel); channel != "" {
			opts.channel = channel
		}
	}
}

// WithObjectIDResolver overrides object-id extraction.
func WithObjectIDResolver(resolver func(portal.ActivityEvent) string) Option {
	return func(opts *normalizeOptions) {
		opts.objectIDResolver = resolver
	}
}

// WithActorFallback sets the actor id used when nothing identifies one.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

func resolveActor(event portal.ActivityEvent, fallback string) string {
	if actor, ok := event.Metadata[MetadataKeyActor].(string); ok && strings.TrimSpace(actor) != "" {
		return strings.TrimSpace(actor)
	}

	if event.EventType != portal.ActivityUserStatusChanged {
		if id := strings.TrimSpace(event.UserID); id != "" {
			return id
		}
	}

	if client := strings.TrimSpace(event.ClientID); client != "" {
		return clientActorIDLabel + client
	}

	return fallback
}

func resolveObjectID(event portal.ActivityEvent, objectType string, resolver func(portal.ActivityEvent) string) string {
	if resolver != nil {
		return strings.TrimSpace(resolver(event))
	}
	if objectType == userObjectType {
		return strings.TrimSpace(event.UserID)
	}
	return strings.TrimSpace(event.ClientID)
}

func normalizeMetadata(event portal.ActivityEvent) map[string]any {
	metadata := make(map[string]any, len(event.Metadata)+3)
	for key, value := range event.Metadata {
		if key == MetadataKeyActor {
			continue
		}
		metadata[key] = value
	}

	set := func(key, value string) {
		if value = strings.TrimSpace(value); value != "" {
			metadata[key] = value
		}
	}
	set(MetadataKeyReason, event.Reason)
	set(MetadataKeyUsername, event.Username)
	set(MetadataKeyClientID, event.ClientID)

	if len(metadata) == 0 {
		return nil
	}
	return metadata
}
