package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/goliatone/go-portal/storagetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupStorage(t *testing.T) *CredentialStorage {
	t.Helper()

	db, err := sql.Open(sqliteshim.ShimName, ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)

	bunDB := bun.NewDB(db, sqlitedialect.New())
	t.Cleanup(func() {
		_ = bunDB.Close()
	})

	s := NewCredentialStorage(bunDB)
	require.NoError(t, s.CreateSchema(context.Background()))
	return s
}

func TestCredentialStorageContract(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storagetest.Storage {
		return setupStorage(t)
	})
}

func TestCreateSchemaIsIdempotent(t *testing.T) {
	s := setupStorage(t)
	require.NoError(t, s.CreateSchema(context.Background()))
}

func TestSetManyUpdatesTimestamp(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }
	require.NoError(t, s.SetMany(ctx, "c1", map[string]string{"token": "a"}))

	s.now = func() time.Time { return start.Add(time.Hour) }
	require.NoError(t, s.SetMany(ctx, "c1", map[string]string{"token": "b"}))

	var entry StorageEntry
	require.NoError(t, s.db.NewSelect().
		Model(&entry).
		Where(`namespace = ? AND "key" = ?`, "c1", "token").
		Scan(ctx))
	assert.Equal(t, "b", entry.Value)
	assert.True(t, entry.UpdatedAt.Equal(start.Add(time.Hour)))
}

func TestPrune(t *testing.T) {
	s := setupStorage(t)
	ctx := context.Background()

	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return start }
	require.NoError(t, s.SetMany(ctx, "stale", map[string]string{"token": "a", "user": "{}"}))

	s.now = func() time.Time { return start.Add(48 * time.Hour) }
	require.NoError(t, s.SetMany(ctx, "fresh", map[string]string{"token": "b"}))

	n, err := s.Prune(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	_, ok, err := s.Get(ctx, "stale", "token")
	require.NoError(t, err)
	assert.False(t, ok)

	val, ok, err := s.Get(ctx, "fresh", "token")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "b", val)
}

func TestRunInTxHonorsCanceledContext(t *testing.T) {
	s := setupStorage(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.SetMany(ctx, "c1", map[string]string{"token": "a"})
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	assert.Error(t, NewCredentialStorage(nil).Validate())
	assert.Panics(t, func() { NewCredentialStorage(nil).MustValidate() })
}
