// Package repository stores client namespaces in a SQL database through bun.
package repository

import (
	"context"
	"database/sql"
	"log"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/uptrace/bun"
)

// StorageEntry is one key of a client namespace
type StorageEntry struct {
	bun.BaseModel `bun:"table:portal_storage"`

	Namespace string    `bun:"namespace,pk"`
	Key       string    `bun:"key,pk"`
	Value     string    `bun:"value,notnull"`
	UpdatedAt time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// CredentialStorage implements the portal storage on top of bun.
// Every namespace write happens inside a single transaction.
type CredentialStorage struct {
	db  *bun.DB
	now func() time.Time
}

// NewCredentialStorage creates a new storage
func NewCredentialStorage(db *bun.DB) *CredentialStorage {
	return &CredentialStorage{db: db, now: time.Now}
}

func (s *CredentialStorage) Validate() error {
	if s.db == nil {
		return errors.New("repository storage requires a database", errors.CategoryInternal)
	}
	return nil
}

func (s *CredentialStorage) MustValidate() {
	if err := s.Validate(); err != nil {
		log.Panic(err)
	}
}

// CreateSchema creates the storage table when it does not exist
func (s *CredentialStorage) CreateSchema(ctx context.Context) error {
	_, err := s.db.NewCreateTable().
		Model((*StorageEntry)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create storage table")
	}
	return nil
}

func (s *CredentialStorage) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	var entry StorageEntry
	err := s.db.NewSelect().
		Model(&entry).
		Where(`namespace = ? AND "key" = ?`, namespace, key).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, errors.Wrap(err, errors.CategoryInternal, "failed to read storage entry").
			WithMetadata(map[string]any{"namespace": namespace, "key": key})
	}
	return entry.Value, true, nil
}

func (s *CredentialStorage) SetMany(ctx context.Context, namespace string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	now := s.now().UTC()
	entries := make([]StorageEntry, 0, len(values))
	for k, v := range values {
		entries = append(entries, StorageEntry{
			Namespace: namespace,
			Key:       k,
			Value:     v,
			UpdatedAt: now,
		})
	}

	err := s.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.NewInsert().
			Model(&entries).
			On(`CONFLICT (namespace, "key") DO UPDATE`).
			Set("value = EXCLUDED.value").
			Set("updated_at = EXCLUDED.updated_at").
			Exec(ctx)
		return err
	})
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to write storage entries").
			WithMetadata(map[string]any{"namespace": namespace})
	}
	return nil
}

func (s *CredentialStorage) Delete(ctx context.Context, namespace string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	_, err := s.db.NewDelete().
		Model((*StorageEntry)(nil)).
		Where("namespace = ?", namespace).
		Where(`"key" IN (?)`, bun.In(keys)).
		Exec(ctx)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to delete storage entries").
			WithMetadata(map[string]any{"namespace": namespace})
	}
	return nil
}

// Prune removes entries not written for longer than idle and returns how
// many rows were deleted
func (s *CredentialStorage) Prune(ctx context.Context, idle time.Duration) (int64, error) {
	res, err := s.db.NewDelete().
		Model((*StorageEntry)(nil)).
		Where("updated_at < ?", s.now().UTC().Add(-idle)).
		Exec(ctx)
	if err != nil {
		return 0, errors.Wrap(err, errors.CategoryInternal, "failed to prune storage entries")
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *CredentialStorage) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return s.db.RunInTx(ctx, opts, f)
	}
}
