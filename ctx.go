package portal

import (
	"context"

	"github.com/goliatone/go-router"
)

var snapshotCtxKey = &contextKey{"snapshot"}

type contextKey struct {
	name string
}

// WithSnapshot sets the Snapshot in the given context
func WithSnapshot(ctx context.Context, snap Snapshot) context.Context {
	return context.WithValue(ctx, snapshotCtxKey, snap)
}

// SnapshotFromContext finds the snapshot in the context
func SnapshotFromContext(ctx context.Context) (Snapshot, bool) {
	raw, ok := ctx.Value(snapshotCtxKey).(Snapshot)
	return raw, ok
}

// SnapshotFromRouter extracts the Snapshot published by ClientIdentity
func SnapshotFromRouter(ctx router.Context) (Snapshot, bool) {
	raw := ctx.Locals(SnapshotKey)
	if raw == nil {
		return Snapshot{}, false
	}
	snap, ok := raw.(Snapshot)
	return snap, ok
}

// ClientIDFromRouter returns the client id of the request
func ClientIDFromRouter(ctx router.Context) (string, bool) {
	raw, ok := ctx.Locals(ClientIDKey).(string)
	return raw, ok && raw != ""
}

// CurrentUser returns the session user of the request, if any
func CurrentUser(ctx router.Context) *User {
	snap, ok := SnapshotFromRouter(ctx)
	if !ok {
		return nil
	}
	return snap.User()
}
