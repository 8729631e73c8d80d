// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tasks

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/pdiddy/brim-extract/pkg/types"
)

var (
	// ErrDuplicateGapID is returned when two gaps in a batch share an ID.
	ErrDuplicateGapID = errors.New("duplicate gap id")

	// ErrInvalidGap is returned for gaps missing an ID, document or instruction.
	ErrInvalidGap = errors.New("invalid gap")
)

// Gap is one piece of information missing from structured data, paired with
// the document expected to contain it.
type Gap struct {
	ID           string `json:"id" yaml:"id"`
	Type         string `json:"type" yaml:"type"`
	DocumentID   string `json:"document_id" yaml:"document_id"`
	DocumentType string `json:"document_type" yaml:"document_type"`
	Instruction  string `json:"instruction" yaml:"instruction"`
	Description  string `json:"description,omitempty" yaml:"description,omitempty"`
	Category     string `json:"category,omitempty" yaml:"category,omitempty"`

	// Priority, when set, overrides the classifier.
	Priority     string `json:"priority,omitempty" yaml:"priority,omitempty"`
	OutputSchema string `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
}

// NewTask builds the immutable task for one gap. An explicit priority wins;
// the classifier is consulted only when none is given.
func NewTask(gap Gap, now time.Time) (types.ExtractionTask, error) {
	if strings.TrimSpace(gap.ID) == "" {
		return types.ExtractionTask{}, fmt.Errorf("%w: empty id", ErrInvalidGap)
	}
	if strings.TrimSpace(gap.DocumentID) == "" {
		return types.ExtractionTask{}, fmt.Errorf("%w: gap %s has no document", ErrInvalidGap, gap.ID)
	}
	if strings.TrimSpace(gap.Instruction) == "" {
		return types.ExtractionTask{}, fmt.Errorf("%w: gap %s has no instruction", ErrInvalidGap, gap.ID)
	}

	category := ParseGapCategory(gap.Type)

	priority := Classify(category)
	if gap.Priority != "" {
		p, err := types.ParsePriority(gap.Priority)
		if err != nil {
			return types.ExtractionTask{}, fmt.Errorf("gap %s: %w", gap.ID, err)
		}
		priority = p
	}

	label := gap.Category
	if label == "" {
		label = string(category)
	}
	metadata := map[string]any{
		"category":   label,
		"created_at": now.UTC().Format(time.RFC3339),
	}
	if gap.Description != "" {
		metadata["description"] = gap.Description
	}

	return types.ExtractionTask{
		Priority:     priority,
		GapID:        gap.ID,
		GapType:      category,
		DocumentID:   gap.DocumentID,
		DocumentType: gap.DocumentType,
		Instruction:  gap.Instruction,
		Metadata:     metadata,
		OutputSchema: gap.OutputSchema,
	}, nil
}

// BuildBatch converts gaps into tasks, rejecting duplicate gap IDs.
// Input order is preserved.
func BuildBatch(gaps []Gap, now time.Time) ([]types.ExtractionTask, error) {
	seen := make(map[string]bool, len(gaps))
	out := make([]types.ExtractionTask, 0, len(gaps))
	for _, gap := range gaps {
		if seen[gap.ID] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateGapID, gap.ID)
		}
		seen[gap.ID] = true

		task, err := NewTask(gap, now)
		if err != nil {
			return nil, err
		}
		out = append(out, task)
	}
	return out, nil
}
