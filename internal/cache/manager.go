// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/pdiddy/brim-extract/internal/logger"
	"github.com/pdiddy/brim-extract/pkg/types"
)

// Lookup is the outcome of Manager.Lookup. Entry is nil on a miss.
type Lookup struct {
	Key        string
	Entry      *types.CacheEntry
	Validation types.CacheValidation
}

// Hit reports whether a stored entry exists and passed validation.
func (l Lookup) Hit() bool {
	return l.Entry != nil && l.Validation.IsValid
}

// Manager combines a Store with a Validator under one version and age
// policy.
type Manager struct {
	store      Store
	validator  *Validator
	version    string
	maxAgeDays int
	now        func() time.Time
	log        logger.Logger
}

// NewManager returns a Manager writing entries tagged with cfg.Version.
func NewManager(store Store, validator *Validator, cfg types.CacheConfig, log logger.Logger) *Manager {
	if log == nil {
		log = logger.NewNop()
	}
	return &Manager{
		store:      store,
		validator:  validator,
		version:    cfg.Version,
		maxAgeDays: cfg.MaxAgeDays,
		now:        time.Now,
		log:        log,
	}
}

// Lookup reads the entry for subjectID/scope and validates it against
// fingerprint.
func (m *Manager) Lookup(ctx context.Context, subjectID, scope, fingerprint string) (Lookup, error) {
	key := Key(subjectID, scope)
	entry, err := m.store.Get(ctx, key)
	if err != nil {
		return Lookup{}, err
	}
	if entry == nil {
		m.log.Info("cache miss", logger.String("key", key))
		return Lookup{Key: key}, nil
	}

	v := m.validator.Validate(*entry, m.version, fingerprint, m.maxAgeDays)
	m.log.Info("cache entry checked",
		logger.String("key", key),
		logger.Bool("valid", v.IsValid),
		logger.String("reason", string(v.Reason)),
	)
	return Lookup{Key: key, Entry: entry, Validation: v}, nil
}

// Save stores payload for subjectID/scope, stamped with the manager's
// version, fingerprint and the current time.
func (m *Manager) Save(ctx context.Context, subjectID, scope, fingerprint string, payload any) (types.CacheEntry, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return types.CacheEntry{}, fmt.Errorf("encoding cache payload: %w", err)
	}
	entry := types.CacheEntry{
		CacheVersion: m.version,
		Fingerprint:  fingerprint,
		Timestamp:    FormatTimestamp(m.now()),
		Payload:      data,
	}
	key := Key(subjectID, scope)
	if err := m.store.Put(ctx, key, entry); err != nil {
		return types.CacheEntry{}, err
	}
	m.log.Info("cache entry saved", logger.String("key", key))
	return entry, nil
}
