// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package cache decides whether stored extraction results can be reused
// and persists them in SQLite or Redis.
package cache

import (
	"time"

	"github.com/pdiddy/brim-extract/internal/logger"
	"github.com/pdiddy/brim-extract/internal/metrics"
	"github.com/pdiddy/brim-extract/pkg/types"
)

// timestampLayouts are accepted for CacheEntry.Timestamp. Entries written
// without a zone are read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

const day = 24 * time.Hour

// Validator runs the version, fingerprint and age checks against a cache
// entry. The zero value is not usable; call NewValidator.
type Validator struct {
	now     func() time.Time
	log     logger.Logger
	metrics *metrics.Metrics
}

// ValidatorOption configures a Validator.
type ValidatorOption func(*Validator)

// WithValidatorClock overrides the clock used for the age check.
func WithValidatorClock(now func() time.Time) ValidatorOption {
	return func(v *Validator) { v.now = now }
}

// WithValidatorMetrics counts decisions by reason.
func WithValidatorMetrics(m *metrics.Metrics) ValidatorOption {
	return func(v *Validator) { v.metrics = m }
}

// NewValidator returns a Validator using the wall clock.
func NewValidator(log logger.Logger, opts ...ValidatorOption) *Validator {
	if log == nil {
		log = logger.NewNop()
	}
	v := &Validator{now: time.Now, log: log}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Validate checks entry in order: cache version, data fingerprint, age.
// The first failing check decides the reason.
//
// An empty current or cached fingerprint skips the fingerprint check. A
// timestamp that cannot be parsed is logged and skips the age check.
// maxAgeDays <= 0 means no age limit: the age check is skipped and the
// details carry age_checked=false.
func (v *Validator) Validate(entry types.CacheEntry, currentVersion, currentFingerprint string, maxAgeDays int) types.CacheValidation {
	result := v.validate(entry, currentVersion, currentFingerprint, maxAgeDays)
	v.metrics.CacheValidated(result.Reason)
	v.log.Debug("cache entry validated",
		logger.Bool("valid", result.IsValid),
		logger.String("reason", string(result.Reason)),
	)
	return result
}

func (v *Validator) validate(entry types.CacheEntry, currentVersion, currentFingerprint string, maxAgeDays int) types.CacheValidation {
	if entry.CacheVersion != currentVersion {
		return types.CacheValidation{
			Reason: types.ReasonVersionMismatch,
			Details: map[string]any{
				"cached_version":  entry.CacheVersion,
				"current_version": currentVersion,
			},
		}
	}

	details := map[string]any{"cache_version": currentVersion}

	if currentFingerprint != "" && entry.Fingerprint != "" {
		if entry.Fingerprint != currentFingerprint {
			return types.CacheValidation{
				Reason: types.ReasonFingerprintMismatch,
				Details: map[string]any{
					"cached_fingerprint":  entry.Fingerprint,
					"current_fingerprint": currentFingerprint,
				},
			}
		}
		details["fingerprint"] = currentFingerprint
	} else {
		details["fingerprint_checked"] = false
	}

	if maxAgeDays <= 0 {
		details["age_checked"] = false
	} else {
		written, err := ParseTimestamp(entry.Timestamp)
		if err != nil {
			v.log.Warn("cache entry has malformed timestamp, skipping age check",
				logger.String("timestamp", entry.Timestamp),
				logger.Err(err),
			)
			details["age_checked"] = false
		} else {
			age := v.now().Sub(written)
			ageDays := age.Hours() / 24
			if age > time.Duration(maxAgeDays)*day {
				return types.CacheValidation{
					Reason: types.ReasonExpired,
					Details: map[string]any{
						"age_days":     ageDays,
						"max_age_days": maxAgeDays,
						"timestamp":    entry.Timestamp,
					},
				}
			}
			details["age_days"] = ageDays
			details["max_age_days"] = maxAgeDays
		}
	}

	return types.CacheValidation{IsValid: true, Reason: types.ReasonValid, Details: details}
}

// Validate checks entry with the wall clock and no logging.
func Validate(entry types.CacheEntry, currentVersion, currentFingerprint string, maxAgeDays int) types.CacheValidation {
	return NewValidator(nil).Validate(entry, currentVersion, currentFingerprint, maxAgeDays)
}

// ParseTimestamp reads an ISO-8601 cache timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, firstErr
}

// FormatTimestamp renders t the way Save writes it.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}
