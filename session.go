package portal

import "time"

// SessionPhase tracks how much a session is trusted
type SessionPhase string

const (
	// PhaseUnverified the record was restored from storage and has not
	// been confirmed by the backend yet
	PhaseUnverified SessionPhase = "unverified"
	// PhaseVerified the backend confirmed the record
	PhaseVerified SessionPhase = "verified"
)

// InvalidationReason explains why a session was destroyed
type InvalidationReason string

const (
	ReasonNone         InvalidationReason = ""
	ReasonDeactivated  InvalidationReason = "deactivated"
	ReasonUnauthorized InvalidationReason = "unauthorized"
	ReasonExpired      InvalidationReason = "expired"
	ReasonTransport    InvalidationReason = "transport"
	ReasonMalformed    InvalidationReason = "malformed"
	ReasonLogout       InvalidationReason = "logout"
)

// Session is the in memory authentication state of one client
type Session struct {
	Token      string       `json:"token"`
	User       *User        `json:"user"`
	Phase      SessionPhase `json:"phase"`
	RestoredAt time.Time    `json:"restored_at,omitempty"`
	VerifiedAt *time.Time   `json:"verified_at,omitempty"`
}

// Authenticated holds when there is a token, a user and the user is active
func (s *Session) Authenticated() bool {
	return s != nil && s.Token != "" && s.User != nil && s.User.AccountActive()
}

// Verified reports a backend confirmed session
func (s *Session) Verified() bool {
	return s != nil && s.Phase == PhaseVerified
}

// Role of the session user
func (s *Session) Role() Role {
	if s == nil {
		return RoleUnknown
	}
	return s.User.RoleValue()
}

// Clone returns a copy safe to hand out of the manager
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	out.User = s.User.Clone()
	if s.VerifiedAt != nil {
		t := *s.VerifiedAt
		out.VerifiedAt = &t
	}
	return &out
}

// Snapshot is the view of a client the route guard decides on
type Snapshot struct {
	ClientID string
	Session  *Session
	// Notice is the reason of the last invalidation, reported once
	Notice InvalidationReason
}

// User returns the session user, if any
func (s Snapshot) User() *User {
	if s.Session == nil {
		return nil
	}
	return s.Session.User
}

// Authenticated see Session.Authenticated
func (s Snapshot) Authenticated() bool {
	return s.Session.Authenticated()
}
