// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fingerprint

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/brim-extract/pkg/types"
)

// fakeSource serves canned aggregates keyed by view name.
type fakeSource struct {
	mu      sync.Mutex
	data    map[string]Aggregate
	fail    map[string]error
	pingErr error
	specs   []types.ViewSpec
}

func (s *fakeSource) Ping(context.Context) error { return s.pingErr }

func (s *fakeSource) Aggregate(ctx context.Context, spec types.ViewSpec, subjectID string) (Aggregate, error) {
	s.mu.Lock()
	s.specs = append(s.specs, spec)
	s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return Aggregate{}, err
	}
	if err := s.fail[spec.Name]; err != nil {
		return Aggregate{}, err
	}
	return s.data[spec.Name], nil
}

func (s *fakeSource) set(view string, agg Aggregate) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[view] = agg
}

func newFakeSource() *fakeSource {
	return &fakeSource{data: map[string]Aggregate{}, fail: map[string]error{}}
}

var fixedNow = time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

func TestFingerprinter_Spec(t *testing.T) {
	f := New(newFakeSource(), []types.ViewSpec{
		{Name: "v_imaging", SubjectColumn: "patient_fhir_id", DateColumns: []string{"study_date"}},
	}, nil)

	assert.Equal(t, types.ViewSpec{
		Name: "v_imaging", SubjectColumn: "patient_fhir_id", KeyColumn: "id", DateColumns: []string{"study_date"},
	}, f.Spec("v_imaging"))
	assert.Equal(t, types.ViewSpec{
		Name: "v_unknown", SubjectColumn: "subject_id", KeyColumn: "id",
	}, f.Spec("v_unknown"))
}

func TestFingerprintView(t *testing.T) {
	src := newFakeSource()
	src.set("v_imaging", Aggregate{RecordCount: 4, LatestDate: "2024-05-01 08:30:00", IDSetSize: 3})
	f := New(src, nil, nil, WithClock(func() time.Time { return fixedNow }))

	fp, err := f.FingerprintView(context.Background(), "v_imaging", "patient-1")
	require.NoError(t, err)
	assert.Equal(t, types.ViewFingerprint{
		ViewName:    "v_imaging",
		RecordCount: 4,
		LatestDate:  "2024-05-01",
		IDSetSize:   3,
		ComputedAt:  fixedNow,
	}, fp)
}

func TestFingerprintView_NoRows(t *testing.T) {
	f := New(newFakeSource(), nil, nil)

	fp, err := f.FingerprintView(context.Background(), "v_empty", "patient-1")
	require.NoError(t, err)
	assert.True(t, fp.IsEmpty())
	assert.Equal(t, "v_empty", fp.ViewName)
}

func TestFingerprintView_Error(t *testing.T) {
	src := newFakeSource()
	src.fail["v_bad"] = errors.New("relation does not exist")
	f := New(src, nil, nil)

	_, err := f.FingerprintView(context.Background(), "v_bad", "patient-1")
	assert.ErrorContains(t, err, "relation does not exist")
}

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{"  ", ""},
		{"2024-03-15", "2024-03-15"},
		{"2024-03-15T10:20:30Z", "2024-03-15"},
		{"2024-03-15T10:20:30.123456+02:00", "2024-03-15"},
		{"2024-03-15 10:20:30", "2024-03-15"},
		{"2024-03-15 10:20:30.5", "2024-03-15"},
		{"2024-03-15 00:00:00 +0000 UTC", "2024-03-15"},
		{"2024-03-15garbage", "2024-03-15"},
		{"March 2024", "March 2024"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, normalizeDate(tt.in), tt.in)
	}
}
