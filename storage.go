package portal

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/goliatone/go-errors"
)

// Keys of the credential record inside a client namespace
const (
	KeyToken = "token"
	KeyUser  = "user"
)

// Storage is a durable key value store partitioned by namespace.
// SetMany must apply all values or none.
type Storage interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	SetMany(ctx context.Context, namespace string, values map[string]string) error
	Delete(ctx context.Context, namespace string, keys ...string) error
}

// CredentialStore reads and writes the credential record of a client
type CredentialStore struct {
	storage Storage
}

// NewCredentialStore wraps a Storage
func NewCredentialStore(storage Storage) *CredentialStore {
	return &CredentialStore{storage: storage}
}

// Save writes token and user together
func (c *CredentialStore) Save(ctx context.Context, namespace, token string, user *User) error {
	raw, err := json.Marshal(user)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "encode user record")
	}

	return c.storage.SetMany(ctx, namespace, map[string]string{
		KeyToken: token,
		KeyUser:  string(raw),
	})
}

// Load returns the stored record. An absent record returns no error and
// a nil user; a partial or unreadable one returns ErrMalformedRecord.
func (c *CredentialStore) Load(ctx context.Context, namespace string) (string, *User, error) {
	token, hasToken, err := c.storage.Get(ctx, namespace, KeyToken)
	if err != nil {
		return "", nil, err
	}

	raw, hasUser, err := c.storage.Get(ctx, namespace, KeyUser)
	if err != nil {
		return "", nil, err
	}

	if !hasToken && !hasUser {
		return "", nil, nil
	}

	if token == "" || isUnsetMarker(raw) {
		return "", nil, withSource(ErrMalformedRecord, nil, "credential record is incomplete")
	}

	user := &User{}
	if err := json.Unmarshal([]byte(raw), user); err != nil {
		return "", nil, withSource(ErrMalformedRecord, err, "")
	}

	return token, user, nil
}

// Clear removes token and user together
func (c *CredentialStore) Clear(ctx context.Context, namespace string) error {
	return c.storage.Delete(ctx, namespace, KeyToken, KeyUser)
}

// browsers store these strings when an unset value is serialized
func isUnsetMarker(raw string) bool {
	switch strings.TrimSpace(raw) {
	case "", "undefined", "null":
		return true
	default:
		return false
	}
}

// MemoryStorage is a process local Storage
type MemoryStorage struct {
	mu   sync.RWMutex
	data map[string]map[string]string
}

// NewMemoryStorage creates an empty store
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{data: make(map[string]map[string]string)}
}

func (m *MemoryStorage) Get(_ context.Context, namespace, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	ns, ok := m.data[namespace]
	if !ok {
		return "", false, nil
	}
	val, ok := ns[key]
	return val, ok, nil
}

func (m *MemoryStorage) SetMany(_ context.Context, namespace string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.data[namespace]
	if !ok {
		ns = make(map[string]string, len(values))
		m.data[namespace] = ns
	}
	for k, v := range values {
		ns[k] = v
	}
	return nil
}

func (m *MemoryStorage) Delete(_ context.Context, namespace string, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	ns, ok := m.data[namespace]
	if !ok {
		return nil
	}
	for _, k := range keys {
		delete(ns, k)
	}
	if len(ns) == 0 {
		delete(m.data, namespace)
	}
	return nil
}
