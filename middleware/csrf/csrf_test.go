package csrf

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mapStorage struct {
	mu   sync.Mutex
	data map[string]map[string]string
}

func newMapStorage() *mapStorage {
	return &mapStorage{data: map[string]map[string]string{}}
}

func (s *mapStorage) Get(_ context.Context, namespace, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.data[namespace][key]
	return v, ok, nil
}

func (s *mapStorage) SetMany(_ context.Context, namespace string, values map[string]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[namespace] == nil {
		s.data[namespace] = map[string]string{}
	}
	for k, v := range values {
		s.data[namespace][k] = v
	}
	return nil
}

func (s *mapStorage) Delete(_ context.Context, namespace string, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		delete(s.data[namespace], k)
	}
	return nil
}

func newMockContext(method, clientID string) *router.MockContext {
	ctx := router.NewMockContext()
	ctx.On("Method").Return(method)
	ctx.On("Context").Return(context.Background())
	ctx.On("Locals", DefaultContextKey, mock.Anything).Return(nil)
	ctx.On("Locals", DefaultContextKey+"_field", mock.Anything).Return(nil)
	if clientID != "" {
		ctx.LocalsMock[DefaultClientKey] = clientID
	}
	return ctx
}

func captureErrors(captured *error) router.ErrorHandler {
	return func(ctx router.Context, err error) error {
		*captured = err
		return err
	}
}

func issueToken(t *testing.T, handler router.HandlerFunc, clientID string) string {
	t.Helper()
	ctx := newMockContext("GET", clientID)
	require.NoError(t, handler(ctx))
	require.True(t, ctx.NextCalled)

	token, ok := ctx.LocalsMock[DefaultContextKey].(string)
	require.True(t, ok)
	require.Len(t, token, DefaultTokenLength*2)
	assert.Equal(t, DefaultFormFieldName, ctx.LocalsMock[DefaultContextKey+"_field"])
	return token
}

func TestSafeMethodIssuesStableToken(t *testing.T) {
	storage := newMapStorage()
	handler := New(Config{Storage: storage})(func(ctx router.Context) error { return nil })

	first := issueToken(t, handler, "client-a")
	second := issueToken(t, handler, "client-a")
	assert.Equal(t, first, second)

	other := issueToken(t, handler, "client-b")
	assert.NotEqual(t, first, other)

	raw, ok, _ := storage.Get(context.Background(), "client-a", DefaultStorageKey)
	require.True(t, ok)
	assert.Contains(t, raw, first+":")
}

func TestFormTokenValidation(t *testing.T) {
	storage := newMapStorage()
	var captured error
	handler := New(Config{
		Storage:      storage,
		ErrorHandler: captureErrors(&captured),
	})(func(ctx router.Context) error { return nil })

	token := issueToken(t, handler, "client-a")

	tests := []struct {
		name    string
		form    string
		header  string
		wantErr error
	}{
		{name: "form field", form: token},
		{name: "header fallback", header: token},
		{name: "mismatch", form: "nope", wantErr: ErrTokenMismatch},
		{name: "missing", wantErr: ErrTokenMissing},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			captured = nil
			ctx := newMockContext("POST", "client-a")
			ctx.On("FormValue", DefaultFormFieldName).Return(tt.form)
			ctx.On("GetString", DefaultHeaderName, "").Return(tt.header).Maybe()

			err := handler(ctx)
			if tt.wantErr == nil {
				require.NoError(t, err)
				assert.True(t, ctx.NextCalled)
				return
			}

			require.Error(t, err)
			assert.False(t, ctx.NextCalled)
			assert.True(t, errors.Is(captured, tt.wantErr))
		})
	}
}

func TestTokenFromOtherClientIsRejected(t *testing.T) {
	storage := newMapStorage()
	var captured error
	handler := New(Config{
		Storage:      storage,
		ErrorHandler: captureErrors(&captured),
	})(func(ctx router.Context) error { return nil })

	stolen := issueToken(t, handler, "client-a")
	issueToken(t, handler, "client-b")

	ctx := newMockContext("POST", "client-b")
	ctx.On("FormValue", DefaultFormFieldName).Return(stolen)

	require.Error(t, handler(ctx))
	assert.True(t, errors.Is(captured, ErrTokenMismatch))
}

func TestExpiredTokenIsReplaced(t *testing.T) {
	storage := newMapStorage()
	now := time.Now()

	cfg := Config{Storage: storage, Expiration: time.Hour}
	cfg.now = func() time.Time { return now }
	handler := New(cfg)(func(ctx router.Context) error { return nil })

	first := issueToken(t, handler, "client-a")

	now = now.Add(2 * time.Hour)
	second := issueToken(t, handler, "client-a")
	assert.NotEqual(t, first, second)
}

func TestMissingClientID(t *testing.T) {
	var captured error
	handler := New(Config{
		Storage:      newMapStorage(),
		ErrorHandler: captureErrors(&captured),
	})(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	require.Error(t, handler(ctx))
	assert.True(t, errors.Is(captured, ErrClientMissing))
}

func TestSkip(t *testing.T) {
	handler := New(Config{
		Storage: newMapStorage(),
		Skip:    func(router.Context) bool { return true },
	})(func(ctx router.Context) error { return nil })

	ctx := router.NewMockContext()
	require.NoError(t, handler(ctx))
	assert.True(t, ctx.NextCalled)
}

func TestRotate(t *testing.T) {
	storage := newMapStorage()
	handler := New(Config{Storage: storage})(func(ctx router.Context) error { return nil })

	first := issueToken(t, handler, "client-a")
	require.NoError(t, Rotate(context.Background(), storage, "client-a"))

	_, ok, _ := storage.Get(context.Background(), "client-a", DefaultStorageKey)
	assert.False(t, ok)

	second := issueToken(t, handler, "client-a")
	assert.NotEqual(t, first, second)
}

func TestNewRequiresStorage(t *testing.T) {
	assert.Panics(t, func() {
		New(Config{})
	})
}

func TestTemplateHelpers(t *testing.T) {
	helpers := CSRFTemplateHelpers()
	assert.Equal(t, "", helpers["csrf_token"])

	ctx := router.NewMockContext()
	ctx.LocalsMock[DefaultContextKey] = "abc"
	ctx.LocalsMock[DefaultContextKey+"_field"] = "_csrf"

	helpers = CSRFTemplateHelpersWithRouter(ctx, "")
	assert.Equal(t, "abc", helpers["csrf_token"])
	assert.Equal(t, `<input type="hidden" name="_csrf" value="abc">`, helpers["csrf_field"])
}
