// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResponse(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want map[string]any
	}{
		{"plain object", `{"date": "2018-05-02"}`, map[string]any{"date": "2018-05-02"}},
		{"fenced", "```json\n{\"date\": null}\n```", map[string]any{"date": nil}},
		{"fenced without language", "```\n{\"n\": 2}\n```", map[string]any{"n": 2.0}},
		{"prose around object", "Here you go:\n{\"a\": true}\nThanks.", map[string]any{"a": true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseResponse(tt.raw, "")
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseResponse_Failures(t *testing.T) {
	for _, raw := range []string{"", "no json here", "[1, 2]", "null", `{"a": `} {
		t.Run(raw, func(t *testing.T) {
			_, err := ParseResponse(raw, "")
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "want ParseError, got %v", err)
			assert.Equal(t, raw, perr.Raw)
			assert.Contains(t, err.Error(), "parse error: ")
		})
	}
}

func TestParseResponse_Schema(t *testing.T) {
	schema := `{
		"type": "object",
		"required": ["surgery_date"],
		"properties": {
			"surgery_date": {"type": ["string", "null"]},
			"confidence": {"type": "number", "minimum": 0, "maximum": 1}
		}
	}`

	got, err := ParseResponse(`{"surgery_date": "2018-05-02", "confidence": 0.9}`, schema)
	require.NoError(t, err)
	assert.Equal(t, "2018-05-02", got["surgery_date"])

	_, err = ParseResponse(`{"confidence": 0.9}`, schema)
	assert.ErrorContains(t, err, "does not match output schema")

	_, err = ParseResponse(`{"surgery_date": null, "confidence": 4}`, schema)
	assert.Error(t, err)

	_, err = ParseResponse(`{}`, `{"type": 12}`)
	assert.ErrorContains(t, err, "compiling output schema")
}
