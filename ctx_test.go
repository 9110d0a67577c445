package portal

import (
	"context"
	"testing"

	"github.com/goliatone/go-router"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSnapshotContext(t *testing.T) {
	_, ok := SnapshotFromContext(context.Background())
	assert.False(t, ok)

	snap := Snapshot{ClientID: "c1", Session: sessionFor("STUDENT", true)}
	got, ok := SnapshotFromContext(WithSnapshot(context.Background(), snap))
	require.True(t, ok)
	assert.Equal(t, "c1", got.ClientID)
}

func TestRouterAccessors(t *testing.T) {
	tests := []struct {
		name     string
		setupFn  func() router.Context
		clientOK bool
		user     string
	}{
		{
			name: "populated by client identity",
			setupFn: func() router.Context {
				ctx := router.NewMockContext()
				ctx.LocalsMock[ClientIDKey] = "c1"
				ctx.LocalsMock[SnapshotKey] = Snapshot{ClientID: "c1", Session: sessionFor("ADMIN", true)}
				return ctx
			},
			clientOK: true,
			user:     "ana",
		},
		{
			name: "anonymous client",
			setupFn: func() router.Context {
				ctx := router.NewMockContext()
				ctx.LocalsMock[ClientIDKey] = "c2"
				ctx.LocalsMock[SnapshotKey] = Snapshot{ClientID: "c2"}
				return ctx
			},
			clientOK: true,
		},
		{
			name: "nothing published",
			setupFn: func() router.Context {
				return router.NewMockContext()
			},
		},
		{
			name: "wrong types",
			setupFn: func() router.Context {
				ctx := router.NewMockContext()
				ctx.LocalsMock[ClientIDKey] = 12
				ctx.LocalsMock[SnapshotKey] = "snapshot"
				return ctx
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := tt.setupFn()

			_, ok := ClientIDFromRouter(ctx)
			assert.Equal(t, tt.clientOK, ok)

			user := CurrentUser(ctx)
			if tt.user == "" {
				assert.Nil(t, user)
				return
			}
			require.NotNil(t, user)
			assert.Equal(t, tt.user, user.Username)
		})
	}
}
