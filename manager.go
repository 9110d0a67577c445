package portal

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-portal/backend"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"
)

// Manager owns the authentication state of every client and keeps it in
// sync with the persisted credential record and the identity backend.
type Manager struct {
	storage     Storage
	credentials *CredentialStore
	api         *backend.Client
	inspector   *TokenInspector
	activity    ActivitySink
	cfg         Config
	logger      Logger
	now         func() time.Time

	loginRate  rate.Limit
	loginBurst int

	mu      sync.RWMutex
	clients map[string]*clientState

	flight singleflight.Group
	wg     sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc
}

type clientState struct {
	mu         sync.Mutex
	hydration  sync.Once
	session    *Session
	generation uint64
	notice     InvalidationReason
	limiter    *rate.Limiter
	lastSeen   time.Time
}

// ManagerOption configures a Manager
type ManagerOption func(*Manager)

// WithManagerLogger sets the logger
func WithManagerLogger(l Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.logger = l
		}
	}
}

// WithManagerConfig sets the configuration
func WithManagerConfig(cfg Config) ManagerOption {
	return func(m *Manager) {
		if cfg != nil {
			m.cfg = cfg
		}
	}
}

// WithInspector sets the token inspector used during hydration
func WithInspector(t *TokenInspector) ManagerOption {
	return func(m *Manager) {
		if t != nil {
			m.inspector = t
		}
	}
}

// WithLoginRateLimit throttles login attempts per client
func WithLoginRateLimit(limit rate.Limit, burst int) ManagerOption {
	return func(m *Manager) {
		m.loginRate = limit
		m.loginBurst = burst
	}
}

// WithManagerClock overrides the clock
func WithManagerClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewManager creates a session manager over storage and the backend client
func NewManager(storage Storage, api *backend.Client, opts ...ManagerOption) *Manager {
	if storage == nil {
		panic("Missing Storage in session manager...")
	}

	if api == nil {
		panic("Missing backend client in session manager...")
	}

	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		storage:     storage,
		credentials: NewCredentialStore(storage),
		api:         api,
		inspector:   NewTokenInspector(),
		activity:    noopActivitySink{},
		cfg:         DefaultConfig{},
		logger:      defLogger{},
		now:         time.Now,
		clients:     make(map[string]*clientState),
		ctx:         ctx,
		cancel:      cancel,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Hydrate restores the client's persisted record. A well formed record
// becomes an Unverified session and a verification is started; anything
// else leaves the client without a session.
func (m *Manager) Hydrate(ctx context.Context, clientID string) *Session {
	m.mustBeReady()

	m.client(clientID).hydration.Do(func() {})
	return m.hydrate(ctx, clientID)
}

func (m *Manager) hydrate(ctx context.Context, clientID string) *Session {
	st := m.client(clientID)

	st.mu.Lock()
	st.generation++
	gen := st.generation
	st.session = nil
	st.mu.Unlock()

	token, user, err := m.credentials.Load(ctx, clientID)
	if err != nil {
		if KindOf(err) == KindMalformedState {
			m.logger.Warn("discarding malformed credential record", "client", clientID, "error", err)
			m.invalidate(ctx, clientID, gen, ReasonMalformed)
			return nil
		}
		m.logger.Error("load credential record", "client", clientID, "error", err)
		return nil
	}

	if user == nil {
		return nil
	}

	if err := m.inspector.Check(token); err != nil {
		reason := ReasonUnauthorized
		if isTokenExpired(err) {
			reason = ReasonExpired
		}
		m.logger.Info("persisted token rejected before verification", "client", clientID, "error", err)
		m.invalidate(ctx, clientID, gen, reason)
		return nil
	}

	session := &Session{
		Token:      token,
		User:       user,
		Phase:      PhaseUnverified,
		RestoredAt: m.now(),
	}

	st.mu.Lock()
	if st.generation != gen {
		st.mu.Unlock()
		return nil
	}
	st.session = session
	st.mu.Unlock()

	if m.cfg.GetSyncVerify() {
		vctx, cancel := context.WithTimeout(ctx, m.cfg.GetVerifyTimeout())
		defer cancel()
		verified, _ := m.verify(vctx, clientID, gen)
		return verified
	}

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		vctx, cancel := context.WithTimeout(m.ctx, m.cfg.GetVerifyTimeout())
		defer cancel()
		if _, err := m.verify(vctx, clientID, gen); err != nil {
			m.logger.Debug("background verification failed", "client", clientID, "error", err)
		}
	}()

	return session.Clone()
}

// Verify asks the backend who the current token belongs to and applies
// the answer to the client session.
func (m *Manager) Verify(ctx context.Context, clientID string) (*Session, error) {
	m.mustBeReady()

	st := m.client(clientID)
	st.mu.Lock()
	gen := st.generation
	st.mu.Unlock()

	return m.verify(ctx, clientID, gen)
}

func (m *Manager) verify(ctx context.Context, clientID string, gen uint64) (*Session, error) {
	st := m.client(clientID)

	st.mu.Lock()
	if st.session == nil || st.generation != gen {
		st.mu.Unlock()
		return nil, ErrSessionMissing
	}
	token := st.session.Token
	st.mu.Unlock()

	env, err := m.api.WithToken(token, nil).Me(ctx)
	if err != nil {
		reason := ReasonUnauthorized
		sentinel := ErrSessionRejected
		if backend.IsTransport(err) {
			reason = ReasonTransport
			sentinel = ErrBackendUnavailable
		}
		m.invalidate(ctx, clientID, gen, reason)
		return nil, withSource(sentinel, err, "")
	}

	if !env.Success {
		m.invalidate(ctx, clientID, gen, ReasonUnauthorized)
		return nil, withSource(ErrSessionRejected, nil, env.Message)
	}

	user, err := decodeUser(env)
	if err != nil {
		m.invalidate(ctx, clientID, gen, ReasonUnauthorized)
		return nil, withSource(ErrSessionRejected, err, "unreadable identity response")
	}

	if !user.AccountActive() {
		m.logger.Info("account deactivated, closing session", "client", clientID, "user", user.Username)
		m.invalidate(ctx, clientID, gen, ReasonDeactivated)
		return nil, ErrAccountDeactivated
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.generation != gen {
		m.logger.Debug("discarding stale verification", "client", clientID)
		return st.session.Clone(), nil
	}

	if err := m.credentials.Save(ctx, clientID, token, user); err != nil {
		m.logger.Error("persist verified user", "client", clientID, "error", err)
	}

	verifiedAt := m.now()
	st.session = &Session{
		Token:      token,
		User:       user,
		Phase:      PhaseVerified,
		RestoredAt: verifiedAt,
		VerifiedAt: &verifiedAt,
	}

	return st.session.Clone(), nil
}

// Login authenticates credentials against the backend. Inactive accounts
// are rejected before anything is persisted.
func (m *Manager) Login(ctx context.Context, clientID string, creds Credentials) Result[*AuthPayload] {
	m.mustBeReady()

	if err := creds.Validate(); err != nil {
		return Fail[*AuthPayload](validationFailure(err, "Invalid login request payload"), err.Error(), KindValidation).
			WithFields(FormatValidationErrorToMap(err))
	}

	st := m.client(clientID)
	if !m.allowLogin(st) {
		m.logger.Warn("login throttled", "client", clientID)
		m.RecordActivity(ctx, ActivityEvent{
			EventType: ActivityLoginFailure,
			ClientID:  clientID,
			Username:  strings.TrimSpace(creds.UsernameOrEmail),
			Reason:    "throttled",
		})
		return Fail[*AuthPayload](ErrLoginThrottled, MessageLoginThrottled, KindAuthentication)
	}

	out, _, _ := m.flight.Do(loginFlightKey(clientID, creds), func() (any, error) {
		return m.login(ctx, clientID, creds), nil
	})

	res := out.(Result[*AuthPayload])
	if res.Success {
		m.RecordActivity(ctx, userActivity(ActivityLoginSuccess, clientID, res.Data.User))
	} else {
		event := userActivity(ActivityLoginFailure, clientID, nil)
		event.Username = strings.TrimSpace(creds.UsernameOrEmail)
		event.Reason = string(res.Kind)
		m.RecordActivity(ctx, event)
	}

	return res
}

// loginFlightKey groups concurrent logins that would send the same
// request to the backend
func loginFlightKey(clientID string, creds Credentials) string {
	sum := sha256.Sum256([]byte(creds.Password))
	return clientID + "\x00" +
		strings.ToLower(strings.TrimSpace(creds.UsernameOrEmail)) + "\x00" +
		hex.EncodeToString(sum[:])
}

func (m *Manager) login(ctx context.Context, clientID string, creds Credentials) Result[*AuthPayload] {
	env, err := m.api.Login(ctx, backend.LoginRequest{
		UsernameOrEmail: strings.TrimSpace(creds.UsernameOrEmail),
		Password:        creds.Password,
	})

	if err != nil {
		if backend.IsTransport(err) {
			m.logger.Error("login request failed", "client", clientID, "error", err)
			return Fail[*AuthPayload](withSource(ErrBackendUnavailable, err, ""), MessageLoginFailed, KindTransport)
		}
		message := env.MessageOr(MessageLoginFailed)
		return Fail[*AuthPayload](withSource(ErrLoginFailed, err, message), message, KindAuthentication)
	}

	if !env.Success {
		message := env.MessageOr(MessageLoginFailed)
		return Fail[*AuthPayload](withSource(ErrLoginFailed, nil, message), message, KindAuthentication)
	}

	payload := &AuthPayload{}
	if err := env.Decode(payload); err != nil || payload.Token == "" || payload.User == nil {
		m.logger.Warn("login response without token or user", "client", clientID, "error", err)
		return Fail[*AuthPayload](withSource(ErrLoginFailed, err, ""), MessageLoginFailed, KindAuthentication)
	}

	if !payload.User.AccountActive() {
		m.logger.Info("login rejected for inactive account", "client", clientID, "user", payload.User.Username)
		return Fail[*AuthPayload](ErrAccountDeactivated, MessageDeactivated, KindDeactivated)
	}

	st := m.client(clientID)
	st.hydration.Do(func() {})

	st.mu.Lock()
	defer st.mu.Unlock()

	if err := m.credentials.Save(ctx, clientID, payload.Token, payload.User); err != nil {
		m.logger.Error("persist credential record", "client", clientID, "error", err)
		return Fail[*AuthPayload](err, MessageLoginFailed, KindUnknown)
	}

	now := m.now()
	st.generation++
	st.notice = ReasonNone
	st.session = &Session{
		Token:      payload.Token,
		User:       payload.User.Clone(),
		Phase:      PhaseVerified,
		RestoredAt: now,
		VerifiedAt: &now,
	}

	m.logger.Info("login succeeded", "client", clientID, "user", payload.User.Username, "role", payload.User.Role)

	return Ok(payload, env.Message)
}

// Register creates an account. It never logs the user in.
func (m *Manager) Register(ctx context.Context, clientID string, reg Registration) Result[*User] {
	m.mustBeReady()

	if err := reg.Validate(); err != nil {
		return Fail[*User](validationFailure(err, MessageRegisterInvalid), MessageRegisterInvalid, KindValidation).
			WithFields(FormatValidationErrorToMap(err))
	}

	env, err := m.api.Register(ctx, reg)
	if err != nil {
		if backend.IsTransport(err) {
			m.logger.Error("registration request failed", "client", clientID, "error", err)
			return Fail[*User](withSource(ErrBackendUnavailable, err, ""), MessageRegisterNetwork, KindTransport)
		}

		switch backend.StatusOf(err) {
		case http.StatusConflict:
			message := env.MessageOr(MessageRegisterConflict)
			return Fail[*User](withSource(ErrRegistrationConflict, err, message), message, KindConflict)
		case http.StatusBadRequest:
			message := env.MessageOr(MessageRegisterInvalid)
			return Fail[*User](withSource(ErrRegistrationInvalid, err, message), message, KindValidation)
		default:
			message := env.MessageOr(MessageRegisterFailed)
			return Fail[*User](withSource(ErrRegistrationFailed, err, message), message, KindUnknown)
		}
	}

	accepted := (env.Wrapped && env.Success) || (!env.Wrapped && env.HasID())
	if !accepted {
		message := env.MessageOr(MessageRegisterInvalidResponse)
		return Fail[*User](withSource(ErrRegistrationFailed, nil, message), message, KindUnknown)
	}

	user, err := decodeUser(env)
	if err != nil {
		user = nil
	}

	m.logger.Info("registration succeeded", "client", clientID, "username", reg.Username)

	return Ok(user, env.MessageOr("Registration successful"))
}

// Logout tells the backend (best effort) and then always clears the
// client's record and session. The result fails only when the record
// could not be cleared.
func (m *Manager) Logout(ctx context.Context, clientID string) Result[struct{}] {
	m.mustBeReady()

	st := m.client(clientID)
	st.hydration.Do(func() {})

	st.mu.Lock()
	token := ""
	var user *User
	if st.session != nil {
		token = st.session.Token
		user = st.session.User.Clone()
	}
	st.mu.Unlock()

	if token == "" {
		if stored, _, err := m.credentials.Load(ctx, clientID); err == nil {
			token = stored
		}
	}

	if token != "" {
		if _, err := m.api.WithToken(token, nil).Logout(ctx); err != nil {
			m.logger.Warn("backend logout failed", "client", clientID, "error", err)
		}
	}

	st.mu.Lock()
	st.generation++
	st.session = nil
	st.notice = ReasonNone
	err := m.credentials.Clear(context.WithoutCancel(ctx), clientID)
	st.mu.Unlock()

	if err != nil {
		m.logger.Error("clear credential record", "client", clientID, "error", err)
		return Fail[struct{}](err, MessageLogoutFailed, KindUnknown)
	}

	m.RecordActivity(ctx, userActivity(ActivityLogout, clientID, user))

	return Ok(struct{}{}, MessageLoggedOut)
}

// Snapshot returns the client's current state for the route guard. The
// first call for a client hydrates it; the pending invalidation notice is
// handed out only once.
func (m *Manager) Snapshot(ctx context.Context, clientID string) Snapshot {
	m.mustBeReady()

	st := m.client(clientID)
	st.hydration.Do(func() {
		m.hydrate(ctx, clientID)
	})

	st.mu.Lock()
	defer st.mu.Unlock()

	st.lastSeen = m.now()
	snap := Snapshot{
		ClientID: clientID,
		Session:  st.session.Clone(),
		Notice:   st.notice,
	}
	st.notice = ReasonNone

	return snap
}

// Current returns the in memory session without hydrating
func (m *Manager) Current(clientID string) (*Session, bool) {
	m.mu.RLock()
	st, ok := m.clients[clientID]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session.Clone(), st.session != nil
}

// API returns a backend client bound to the client's token. A 401 on any
// call made with it destroys the session it was issued for.
func (m *Manager) API(clientID string) *backend.Client {
	m.mustBeReady()

	st := m.client(clientID)
	st.mu.Lock()
	gen := st.generation
	token := ""
	if st.session != nil {
		token = st.session.Token
	}
	st.mu.Unlock()

	return m.api.WithToken(token, func(ctx context.Context) {
		m.logger.Info("backend rejected session token", "client", clientID)
		m.invalidate(context.WithoutCancel(ctx), clientID, gen, ReasonUnauthorized)
	})
}

// Storage returns the backing store of the client namespaces
func (m *Manager) Storage() Storage {
	return m.storage
}

// Forget drops the in memory state of a client, the persisted record stays
func (m *Manager) Forget(clientID string) {
	m.mu.Lock()
	delete(m.clients, clientID)
	m.mu.Unlock()
}

// Sweep forgets clients not seen for longer than idle and returns how many
// were dropped.
func (m *Manager) Sweep(idle time.Duration) int {
	cutoff := m.now().Add(-idle)

	m.mu.Lock()
	defer m.mu.Unlock()

	dropped := 0
	for id, st := range m.clients {
		st.mu.Lock()
		stale := !st.lastSeen.IsZero() && st.lastSeen.Before(cutoff)
		st.mu.Unlock()
		if stale {
			delete(m.clients, id)
			dropped++
		}
	}
	return dropped
}

// Wait blocks until background verifications are done
func (m *Manager) Wait() {
	m.wg.Wait()
}

// Close cancels background verifications and waits for them
func (m *Manager) Close() {
	m.cancel()
	m.wg.Wait()
}

func (m *Manager) client(clientID string) *clientState {
	m.mu.RLock()
	st, ok := m.clients[clientID]
	m.mu.RUnlock()
	if ok {
		return st
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if st, ok = m.clients[clientID]; ok {
		return st
	}
	st = &clientState{}
	m.clients[clientID] = st
	return st
}

// invalidate destroys the session of generation gen and clears the
// persisted record. Later generations are left alone.
func (m *Manager) invalidate(ctx context.Context, clientID string, gen uint64, reason InvalidationReason) bool {
	st := m.client(clientID)

	st.mu.Lock()
	if st.generation != gen {
		st.mu.Unlock()
		return false
	}

	if err := m.credentials.Clear(context.WithoutCancel(ctx), clientID); err != nil {
		m.logger.Error("clear credential record", "client", clientID, "error", err)
	}

	var user *User
	if st.session != nil {
		user = st.session.User
	}

	st.generation++
	st.session = nil
	st.notice = reason
	st.mu.Unlock()

	m.logger.Info("session invalidated", "client", clientID, "reason", string(reason))

	event := userActivity(ActivitySessionInvalidated, clientID, user)
	event.Reason = string(reason)
	m.RecordActivity(ctx, event)
	return true
}

func (m *Manager) allowLogin(st *clientState) bool {
	if m.loginRate <= 0 {
		return true
	}

	st.mu.Lock()
	if st.limiter == nil {
		st.limiter = rate.NewLimiter(m.loginRate, m.loginBurst)
	}
	limiter := st.limiter
	st.mu.Unlock()

	return limiter.Allow()
}

func (m *Manager) mustBeReady() {
	if m == nil || m.storage == nil || m.api == nil || m.clients == nil {
		panic("portal: session manager used before initialization")
	}
}

// decodeUser accepts {"user": {...}} or the user object itself
func decodeUser(env *backend.Envelope) (*User, error) {
	var wrapper struct {
		User *User `json:"user"`
	}
	if err := env.Decode(&wrapper); err == nil && wrapper.User != nil {
		return wrapper.User, nil
	}

	user := &User{}
	if err := env.Decode(user); err != nil {
		return nil, err
	}

	if user.ID == "" && user.Username == "" && user.Email == "" {
		return nil, errors.New("identity response carries no user", errors.CategoryBadInput).
			WithTextCode("EMPTY_IDENTITY")
	}

	return user, nil
}
