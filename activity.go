package portal

import (
	"context"
	"time"
)

// ActivityEventType enumerates session lifecycle events.
type ActivityEventType string

const (
	ActivityLoginSuccess       ActivityEventType = "session.login.success"
	ActivityLoginFailure       ActivityEventType = "session.login.failure"
	ActivityLogout             ActivityEventType = "session.logout"
	ActivitySessionInvalidated ActivityEventType = "session.invalidated"
	ActivityUserStatusChanged  ActivityEventType = "user.status.changed"
)

// ActivityEvent describes something that happened to a client session or
// was done by it.
type ActivityEvent struct {
	EventType ActivityEventType
	ClientID  string
	UserID    string
	Username  string
	// Reason holds the failure kind or invalidation reason
	Reason     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// WithActivitySink receives the session lifecycle events
func WithActivitySink(sink ActivitySink) ManagerOption {
	return func(m *Manager) {
		m.activity = normalizeActivitySink(sink)
	}
}

// RecordActivity forwards an event to the sink. Sink failures are logged
// and never reach the caller.
func (m *Manager) RecordActivity(ctx context.Context, event ActivityEvent) {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = m.now()
	}
	if err := m.activity.Record(context.WithoutCancel(ctx), event); err != nil {
		m.logger.Warn("record activity", "event", string(event.EventType), "error", err)
	}
}

func userActivity(eventType ActivityEventType, clientID string, user *User) ActivityEvent {
	event := ActivityEvent{EventType: eventType, ClientID: clientID}
	if user != nil {
		event.UserID = string(user.ID)
		event.Username = user.Username
	}
	return event
}
