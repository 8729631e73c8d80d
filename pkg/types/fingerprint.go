// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"encoding/json"
	"time"
)

// ViewFingerprint summarises one data view for one subject. It is computed
// on demand and never cached.
type ViewFingerprint struct {
	ViewName    string `json:"view_name" yaml:"view_name"`
	RecordCount int64  `json:"record_count" yaml:"record_count"`

	// LatestDate is the most recent date in the view as YYYY-MM-DD, or empty
	// when the view has no dated rows for the subject.
	LatestDate string `json:"latest_date,omitempty" yaml:"latest_date,omitempty"`

	// IDSetSize is the number of distinct key values for the subject.
	IDSetSize int64 `json:"id_set_size" yaml:"id_set_size"`

	// ComputedAt is informational and excluded from composite hashing.
	ComputedAt time.Time `json:"computed_at" yaml:"computed_at"`
}

// IsEmpty reports whether the view had no data for the subject.
func (f ViewFingerprint) IsEmpty() bool {
	return f.RecordCount == 0 && f.LatestDate == "" && f.IDSetSize == 0
}

// ValidationReason is the machine-readable outcome of a cache validation.
type ValidationReason string

const (
	ReasonVersionMismatch     ValidationReason = "infrastructure_version_mismatch"
	ReasonFingerprintMismatch ValidationReason = "data_fingerprint_mismatch"
	ReasonExpired             ValidationReason = "cache_expired"
	ReasonValid               ValidationReason = "valid"
)

// CacheEntry is a previously stored extraction outcome.
type CacheEntry struct {
	CacheVersion string `json:"cache_version" yaml:"cache_version"`
	Fingerprint  string `json:"fingerprint" yaml:"fingerprint"`

	// Timestamp is the ISO-8601 write time.
	Timestamp string          `json:"timestamp" yaml:"timestamp"`
	Payload   json.RawMessage `json:"payload,omitempty" yaml:"-"`
}

// CacheValidation is the structured decision returned by the cache validator.
type CacheValidation struct {
	IsValid bool             `json:"is_valid" yaml:"is_valid"`
	Reason  ValidationReason `json:"reason" yaml:"reason"`
	Details map[string]any   `json:"details,omitempty" yaml:"details,omitempty"`
}
