// Package redisstore keeps client namespaces in Redis, one hash per
// namespace. A namespace expires after TTL without reads or writes.
package redisstore

import (
	"context"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/redis/go-redis/v9"
)

const (
	DefaultPrefix = "portal"
	DefaultTTL    = 30 * 24 * time.Hour
)

type Storage struct {
	redis  redis.UniversalClient
	prefix string
	ttl    time.Duration
}

type Option func(*Storage)

// WithPrefix sets the key prefix, keys are <prefix>:<namespace>
func WithPrefix(prefix string) Option {
	return func(s *Storage) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithTTL sets the idle lifetime of a namespace, zero disables expiry
func WithTTL(ttl time.Duration) Option {
	return func(s *Storage) {
		s.ttl = ttl
	}
}

func New(client redis.UniversalClient, opts ...Option) *Storage {
	s := &Storage{
		redis:  client,
		prefix: DefaultPrefix,
		ttl:    DefaultTTL,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) key(namespace string) string {
	return s.prefix + ":" + namespace
}

func (s *Storage) Get(ctx context.Context, namespace, key string) (string, bool, error) {
	val, err := s.redis.HGet(ctx, s.key(namespace), key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, unavailable(err, namespace)
	}

	if s.ttl > 0 {
		if err := s.redis.Expire(ctx, s.key(namespace), s.ttl).Err(); err != nil {
			return "", false, unavailable(err, namespace)
		}
	}

	return val, true, nil
}

func (s *Storage) SetMany(ctx context.Context, namespace string, values map[string]string) error {
	if len(values) == 0 {
		return nil
	}

	fields := make([]any, 0, len(values)*2)
	for k, v := range values {
		fields = append(fields, k, v)
	}

	_, err := s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.key(namespace), fields...)
		if s.ttl > 0 {
			pipe.Expire(ctx, s.key(namespace), s.ttl)
		}
		return nil
	})
	if err != nil {
		return unavailable(err, namespace)
	}
	return nil
}

func (s *Storage) Delete(ctx context.Context, namespace string, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := s.redis.HDel(ctx, s.key(namespace), keys...).Err(); err != nil {
		return unavailable(err, namespace)
	}
	return nil
}

// Ping checks the connection
func (s *Storage) Ping(ctx context.Context) error {
	if err := s.redis.Ping(ctx).Err(); err != nil {
		return errors.Wrap(err, errors.CategoryOperation, "redis unavailable")
	}
	return nil
}

func unavailable(err error, namespace string) error {
	return errors.Wrap(err, errors.CategoryOperation, "redis storage unavailable").
		WithMetadata(map[string]any{"namespace": namespace})
}
