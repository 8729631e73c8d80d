// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/brim-extract/pkg/types"
)

// ErrUnknownBackend is returned by Open for an unrecognised backend name.
var ErrUnknownBackend = errors.New("unknown cache backend")

// Store persists cache entries by key.
type Store interface {
	// Get returns the entry for key, or nil with no error when absent.
	Get(ctx context.Context, key string) (*types.CacheEntry, error)
	Put(ctx context.Context, key string, entry types.CacheEntry) error
	Close() error
}

// Key builds the store key for a subject's results in scope.
func Key(subjectID, scope string) string {
	if scope == "" {
		scope = "extraction"
	}
	return fmt.Sprintf("brim-extract:%s:%s", scope, subjectID)
}

// Open returns the store selected by cfg.
func Open(cfg types.CacheConfig) (Store, error) {
	switch cfg.Backend {
	case types.CacheSQLite, "":
		return NewSQLiteStore(cfg.Path)
	case types.CacheRedis:
		return NewRedisStore(cfg)
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownBackend, cfg.Backend)
	}
}
