package activitymap_test

import (
	"testing"
	"time"

	"github.com/goliatone/go-portal"
	"github.com/goliatone/go-portal/activitymap"
)

func TestNormalizeSessionEvent(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := portal.ActivityEvent{
		EventType:  portal.ActivitySessionInvalidated,
		ClientID:   "c1",
		UserID:     "7",
		Username:   "ana",
		Reason:     "deactivated",
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "7" {
		t.Fatalf("expected actor_id 7, got %q", out.ActorID)
	}
	if out.Verb != string(portal.ActivitySessionInvalidated) {
		t.Fatalf("expected verb %q, got %q", portal.ActivitySessionInvalidated, out.Verb)
	}
	if out.ObjectType != "session" {
		t.Fatalf("expected object_type session, got %q", out.ObjectType)
	}
	if out.ObjectID != "c1" {
		t.Fatalf("expected object_id c1, got %q", out.ObjectID)
	}
	if out.Channel != "portal" {
		t.Fatalf("expected channel portal, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}
	if out.Metadata[activitymap.MetadataKeyReason] != "deactivated" {
		t.Fatalf("expected reason deactivated, got %#v", out.Metadata[activitymap.MetadataKeyReason])
	}
	if out.Metadata[activitymap.MetadataKeyUsername] != "ana" {
		t.Fatalf("expected username ana, got %#v", out.Metadata[activitymap.MetadataKeyUsername])
	}
}

func TestNormalizeUserStatusChange(t *testing.T) {
	t.Parallel()

	event := portal.ActivityEvent{
		EventType: portal.ActivityUserStatusChanged,
		ClientID:  "c9",
		UserID:    "42",
		Metadata:  map[string]any{"active": false, "actor": "root"},
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "root" {
		t.Fatalf("expected actor_id root, got %q", out.ActorID)
	}
	if out.ObjectType != "user" || out.ObjectID != "42" {
		t.Fatalf("expected user 42, got %s %q", out.ObjectType, out.ObjectID)
	}
	if _, ok := out.Metadata[activitymap.MetadataKeyActor]; ok {
		t.Fatalf("actor must not be repeated in metadata")
	}
	if out.Metadata["active"] != false {
		t.Fatalf("expected active=false in metadata, got %#v", out.Metadata["active"])
	}
	if out.OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to default to now")
	}
}

func TestNormalizeActorFallbacks(t *testing.T) {
	t.Parallel()

	anonymous := activitymap.Normalize(portal.ActivityEvent{EventType: portal.ActivityLoginFailure})
	if anonymous.ActorID != "anonymous" {
		t.Fatalf("expected anonymous actor, got %q", anonymous.ActorID)
	}
	if anonymous.Metadata != nil {
		t.Fatalf("expected nil metadata, got %#v", anonymous.Metadata)
	}

	client := activitymap.Normalize(portal.ActivityEvent{
		EventType: portal.ActivityLoginFailure,
		ClientID:  "c3",
	}, activitymap.WithActorFallback("system"))
	if client.ActorID != "client:c3" {
		t.Fatalf("expected client actor, got %q", client.ActorID)
	}

	custom := activitymap.Normalize(portal.ActivityEvent{EventType: portal.ActivityLogout},
		activitymap.WithActorFallback("system"),
		activitymap.WithDefaultChannel("audit"),
		activitymap.WithObjectIDResolver(func(portal.ActivityEvent) string { return "obj-1" }),
	)
	if custom.ActorID != "system" || custom.Channel != "audit" || custom.ObjectID != "obj-1" {
		t.Fatalf("unexpected custom normalization: %#v", custom)
	}
}
