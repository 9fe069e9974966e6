package flagstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var ErrNotFound = errors.New("flag not found")

// Store keeps small records that must survive a full page reload of one tab session.
// Validity windows beyond the storage TTL are the caller's concern.
type Store interface {
	Write(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// ReadIfValid returns ErrNotFound for absent or expired records.
	ReadIfValid(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

type scoped struct {
	store Store
	scope string
}

// Scoped confines every key to one tab session.
func Scoped(store Store, sessionID string) Store {
	return &scoped{store: store, scope: sessionID}
}

func (s *scoped) key(k string) string {
	return fmt.Sprintf("checkout:%s:%s", s.scope, k)
}

func (s *scoped) Write(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return s.store.Write(ctx, s.key(key), value, ttl)
}

func (s *scoped) ReadIfValid(ctx context.Context, key string) ([]byte, error) {
	return s.store.ReadIfValid(ctx, s.key(key))
}

func (s *scoped) Delete(ctx context.Context, key string) error {
	return s.store.Delete(ctx, s.key(key))
}
