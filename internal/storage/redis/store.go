// Package redis provides a Redis implementation of the storage.Store
// interface, for sharing a session and reading cache between processes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/go-redis/redis/v8"

	"github.com/jwulff/bptrack/internal/bloodpressure"
	"github.com/jwulff/bptrack/internal/storage"
)

// DefaultPrefix namespaces all keys.
const DefaultPrefix = "bptrack:"

// Store is a Redis implementation of storage.Store. Values are JSON.
type Store struct {
	client *goredis.Client
	prefix string
	ttl    time.Duration // Zero keeps keys forever
}

// Options configures NewClient.
type Options struct {
	Addr     string
	Password string
	DB       int
}

// NewClient creates a Redis client.
func NewClient(opts Options) *goredis.Client {
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
}

// NewStore creates a store over client. The store owns the client and closes
// it on Close.
func NewStore(client *goredis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &Store{client: client, prefix: prefix, ttl: ttl}
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the client.
func (s *Store) Close() error {
	return s.client.Close()
}

func (s *Store) sessionKey() string {
	return s.prefix + "session"
}

func (s *Store) readingsKey(owner string) string {
	return s.prefix + "readings:" + owner
}

func (s *Store) set(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *Store) get(ctx context.Context, key string, v any, notFound storage.ErrNotFound) error {
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, goredis.Nil) {
		return notFound
	}
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", key, err)
	}
	return nil
}

// Session methods

func (s *Store) SaveSession(ctx context.Context, session *storage.Session) error {
	return s.set(ctx, s.sessionKey(), session)
}

func (s *Store) GetSession(ctx context.Context) (*storage.Session, error) {
	var session storage.Session
	err := s.get(ctx, s.sessionKey(), &session, storage.ErrNotFound{Resource: "session", ID: storage.SessionKey})
	if err != nil {
		return nil, err
	}
	return &session, nil
}

func (s *Store) DeleteSession(ctx context.Context) error {
	return s.client.Del(ctx, s.sessionKey()).Err()
}

// Reading cache methods

func (s *Store) SaveReadings(ctx context.Context, owner string, readings []bloodpressure.Reading) error {
	if readings == nil {
		readings = []bloodpressure.Reading{}
	}
	return s.set(ctx, s.readingsKey(owner), storage.CachedReadings{
		Owner:    owner,
		Readings: readings,
		SavedAt:  time.Now(),
	})
}

func (s *Store) GetReadings(ctx context.Context, owner string) (*storage.CachedReadings, error) {
	var cached storage.CachedReadings
	err := s.get(ctx, s.readingsKey(owner), &cached, storage.ErrNotFound{Resource: "readings", ID: owner})
	if err != nil {
		return nil, err
	}
	return &cached, nil
}

// Verify interface compliance
var _ storage.Store = (*Store)(nil)
