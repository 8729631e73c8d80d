// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package fingerprint summarises upstream data views so callers can tell
// whether anything changed since a result was cached.
package fingerprint

import (
	"context"
	"strings"
	"time"

	"github.com/pdiddy/brim-extract/internal/logger"
	"github.com/pdiddy/brim-extract/pkg/types"
)

const (
	defaultSubjectColumn = "subject_id"
	defaultKeyColumn     = "id"
	defaultMaxParallel   = 4
)

// Fingerprinter computes view and composite fingerprints for one source.
// It holds no state between calls.
type Fingerprinter struct {
	source      Source
	views       map[string]types.ViewSpec
	log         logger.Logger
	maxParallel int
	now         func() time.Time
}

// Option configures a Fingerprinter.
type Option func(*Fingerprinter)

// WithMaxParallel bounds concurrent view queries in Compute.
func WithMaxParallel(n int) Option {
	return func(f *Fingerprinter) {
		if n > 0 {
			f.maxParallel = n
		}
	}
}

// WithClock overrides the ComputedAt clock.
func WithClock(now func() time.Time) Option {
	return func(f *Fingerprinter) { f.now = now }
}

// New returns a Fingerprinter over source. views supplies the column layout
// of known views; unknown views use subject_id/id and no date columns.
func New(source Source, views []types.ViewSpec, log logger.Logger, opts ...Option) *Fingerprinter {
	if log == nil {
		log = logger.NewNop()
	}
	f := &Fingerprinter{
		source:      source,
		views:       make(map[string]types.ViewSpec, len(views)),
		log:         log,
		maxParallel: defaultMaxParallel,
		now:         time.Now,
	}
	for _, v := range views {
		f.views[v.Name] = v
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Spec returns the layout used for viewName, with defaults filled in.
func (f *Fingerprinter) Spec(viewName string) types.ViewSpec {
	spec, ok := f.views[viewName]
	if !ok {
		spec = types.ViewSpec{Name: viewName}
	}
	if spec.SubjectColumn == "" {
		spec.SubjectColumn = defaultSubjectColumn
	}
	if spec.KeyColumn == "" {
		spec.KeyColumn = defaultKeyColumn
	}
	return spec
}

// FingerprintView summarises one view for one subject. A subject with no
// rows yields the zero fingerprint. Query errors are returned.
func (f *Fingerprinter) FingerprintView(ctx context.Context, viewName, subjectID string) (types.ViewFingerprint, error) {
	agg, err := f.source.Aggregate(ctx, f.Spec(viewName), subjectID)
	if err != nil {
		return types.ViewFingerprint{}, err
	}
	return types.ViewFingerprint{
		ViewName:    viewName,
		RecordCount: agg.RecordCount,
		LatestDate:  normalizeDate(agg.LatestDate),
		IDSetSize:   agg.IDSetSize,
		ComputedAt:  f.now().UTC(),
	}, nil
}

// dateLayouts are tried in order when normalising a latest-date value.
var dateLayouts = []string{
	"2006-01-02",
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05-07:00",
	"2006-01-02 15:04:05 -0700 MST",
}

// normalizeDate reduces a driver-specific date or timestamp rendering to
// YYYY-MM-DD. Unrecognised values are kept verbatim so they still feed the
// hash.
func normalizeDate(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01-02")
		}
	}
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t.Format("2006-01-02")
		}
	}
	return s
}
