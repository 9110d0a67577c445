// Package storagetest holds the behavior every portal storage backend
// must share. Backends run it from their own tests.
package storagetest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Storage mirrors the portal storage contract
type Storage interface {
	Get(ctx context.Context, namespace, key string) (string, bool, error)
	SetMany(ctx context.Context, namespace string, values map[string]string) error
	Delete(ctx context.Context, namespace string, keys ...string) error
}

// Run exercises a fresh store returned by factory for each case
func Run(t *testing.T, factory func(t *testing.T) Storage) {
	t.Helper()

	t.Run("missing key", func(t *testing.T) {
		s := factory(t)
		val, ok, err := s.Get(context.Background(), "ns", "token")
		require.NoError(t, err)
		assert.False(t, ok)
		assert.Empty(t, val)
	})

	t.Run("set many then get", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		require.NoError(t, s.SetMany(ctx, "ns", map[string]string{
			"token": "tok-1",
			"user":  `{"id":1}`,
		}))

		val, ok, err := s.Get(ctx, "ns", "token")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "tok-1", val)

		val, ok, err = s.Get(ctx, "ns", "user")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, `{"id":1}`, val)
	})

	t.Run("overwrite", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		require.NoError(t, s.SetMany(ctx, "ns", map[string]string{"token": "old"}))
		require.NoError(t, s.SetMany(ctx, "ns", map[string]string{"token": "new"}))

		val, _, err := s.Get(ctx, "ns", "token")
		require.NoError(t, err)
		assert.Equal(t, "new", val)
	})

	t.Run("empty value is stored", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		require.NoError(t, s.SetMany(ctx, "ns", map[string]string{"token": ""}))

		val, ok, err := s.Get(ctx, "ns", "token")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Empty(t, val)
	})

	t.Run("namespaces are isolated", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		require.NoError(t, s.SetMany(ctx, "a", map[string]string{"token": "tok-a"}))
		require.NoError(t, s.SetMany(ctx, "b", map[string]string{"token": "tok-b"}))
		require.NoError(t, s.Delete(ctx, "a", "token"))

		_, ok, err := s.Get(ctx, "a", "token")
		require.NoError(t, err)
		assert.False(t, ok)

		val, ok, err := s.Get(ctx, "b", "token")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "tok-b", val)
	})

	t.Run("delete several keys", func(t *testing.T) {
		s := factory(t)
		ctx := context.Background()
		require.NoError(t, s.SetMany(ctx, "ns", map[string]string{
			"token": "tok",
			"user":  "{}",
			"csrf":  "abc:1",
		}))
		require.NoError(t, s.Delete(ctx, "ns", "token", "user"))

		for _, key := range []string{"token", "user"} {
			_, ok, err := s.Get(ctx, "ns", key)
			require.NoError(t, err)
			assert.False(t, ok, key)
		}

		_, ok, err := s.Get(ctx, "ns", "csrf")
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("delete missing keys", func(t *testing.T) {
		s := factory(t)
		assert.NoError(t, s.Delete(context.Background(), "nobody", "token", "user"))
	})

	t.Run("empty set is a no-op", func(t *testing.T) {
		s := factory(t)
		assert.NoError(t, s.SetMany(context.Background(), "ns", map[string]string{}))
	})
}
