// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"fmt"
	"strings"
)

// ExtractionPriority orders extraction work. Lower values run first.
type ExtractionPriority int

const (
	PriorityCritical ExtractionPriority = iota
	PriorityHigh
	PriorityMedium
	PriorityLow
)

// Priorities lists every priority tier from highest to lowest.
var Priorities = []ExtractionPriority{PriorityCritical, PriorityHigh, PriorityMedium, PriorityLow}

var priorityNames = map[ExtractionPriority]string{
	PriorityCritical: "critical",
	PriorityHigh:     "high",
	PriorityMedium:   "medium",
	PriorityLow:      "low",
}

func (p ExtractionPriority) String() string {
	if name, ok := priorityNames[p]; ok {
		return name
	}
	return fmt.Sprintf("priority(%d)", int(p))
}

// Valid reports whether p is one of the four defined tiers.
func (p ExtractionPriority) Valid() bool {
	_, ok := priorityNames[p]
	return ok
}

// ParsePriority converts a tier name (case-insensitive) into an ExtractionPriority.
func ParsePriority(s string) (ExtractionPriority, error) {
	name := strings.ToLower(strings.TrimSpace(s))
	for p, n := range priorityNames {
		if n == name {
			return p, nil
		}
	}
	return PriorityLow, fmt.Errorf("unknown priority %q", s)
}

// MarshalYAML writes the tier name rather than its ordinal.
func (p ExtractionPriority) MarshalYAML() (any, error) {
	return p.String(), nil
}

// MarshalText writes the tier name rather than its ordinal.
func (p ExtractionPriority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText accepts a tier name.
func (p *ExtractionPriority) UnmarshalText(text []byte) error {
	parsed, err := ParsePriority(string(text))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// GapCategory is the closed set of semantic gap types the classifier understands.
type GapCategory string

const (
	GapDiagnosis       GapCategory = "diagnosis"
	GapMolecularMarker GapCategory = "molecular_marker"
	GapHistology       GapCategory = "histology"
	GapSurgeryDate     GapCategory = "surgery_date"
	GapTreatmentStart  GapCategory = "treatment_start"
	GapProtocol        GapCategory = "protocol"
	GapTreatmentDetail GapCategory = "treatment_detail"
	GapDosage          GapCategory = "dosage"
	GapImaging         GapCategory = "imaging"
	GapOther           GapCategory = "other"
)

// ExtractionTask is one unit of extraction work: fill one gap from one document.
// Tasks are built once and never modified.
type ExtractionTask struct {
	Priority     ExtractionPriority `json:"priority" yaml:"priority"`
	GapID        string             `json:"gap_id" yaml:"gap_id"`
	GapType      GapCategory        `json:"gap_type" yaml:"gap_type"`
	DocumentID   string             `json:"document_id" yaml:"document_id"`
	DocumentType string             `json:"document_type" yaml:"document_type"`

	// Instruction is the extraction prompt before context enrichment.
	Instruction string `json:"instruction" yaml:"instruction"`

	// Metadata carries provenance: description, category, created_at.
	Metadata map[string]any `json:"metadata,omitempty" yaml:"metadata,omitempty"`

	// OutputSchema is an optional JSON Schema the parsed response must satisfy.
	OutputSchema string `json:"output_schema,omitempty" yaml:"output_schema,omitempty"`
}

// ExtractionResult is produced exactly once per ExtractionTask.
type ExtractionResult struct {
	Task                 ExtractionTask `json:"task" yaml:"task"`
	Success              bool           `json:"success" yaml:"success"`
	ExtractedData        map[string]any `json:"extracted_data,omitempty" yaml:"extracted_data,omitempty"`
	ErrorMessage         string         `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	ExecutionTimeSeconds float64        `json:"execution_time_seconds" yaml:"execution_time_seconds"`
	Timestamp            string         `json:"timestamp" yaml:"timestamp"`
}

// SharedContext is the run-scoped clinical context prepended to every
// instruction in a batch.
type SharedContext struct {
	Diagnosis        string   `json:"diagnosis,omitempty" yaml:"diagnosis,omitempty"`
	MolecularMarkers []string `json:"molecular_markers,omitempty" yaml:"molecular_markers,omitempty"`
	PriorFindings    []string `json:"prior_findings,omitempty" yaml:"prior_findings,omitempty"`
}

// IsEmpty reports whether the context carries nothing worth prepending.
func (c SharedContext) IsEmpty() bool {
	return strings.TrimSpace(c.Diagnosis) == "" && len(c.MolecularMarkers) == 0 && len(c.PriorFindings) == 0
}

// Clone returns a deep copy so later changes to the source slices are not observed.
func (c SharedContext) Clone() SharedContext {
	return SharedContext{
		Diagnosis:        c.Diagnosis,
		MolecularMarkers: append([]string(nil), c.MolecularMarkers...),
		PriorFindings:    append([]string(nil), c.PriorFindings...),
	}
}

// BatchStatistics summarises one scheduler run.
type BatchStatistics struct {
	RunID                 string                     `json:"run_id" yaml:"run_id"`
	Total                 int                        `json:"total" yaml:"total"`
	Completed             int                        `json:"completed" yaml:"completed"`
	Succeeded             int                        `json:"succeeded" yaml:"succeeded"`
	Failed                int                        `json:"failed" yaml:"failed"`
	TotalExecutionSeconds float64                    `json:"total_execution_seconds" yaml:"total_execution_seconds"`
	WallClockSeconds      float64                    `json:"wall_clock_seconds" yaml:"wall_clock_seconds"`
	ByPriority            map[ExtractionPriority]int `json:"by_priority" yaml:"by_priority"`
	FailedByPriority      map[ExtractionPriority]int `json:"failed_by_priority" yaml:"failed_by_priority"`
}

// SuccessRate returns the fraction of completed tasks that succeeded.
func (s BatchStatistics) SuccessRate() float64 {
	if s.Completed == 0 {
		return 0
	}
	return float64(s.Succeeded) / float64(s.Completed)
}

// AverageExecutionSeconds returns the mean per-task execution time.
func (s BatchStatistics) AverageExecutionSeconds() float64 {
	if s.Completed == 0 {
		return 0
	}
	return s.TotalExecutionSeconds / float64(s.Completed)
}

// HasFailures reports whether any task failed.
func (s BatchStatistics) HasFailures() bool {
	return s.Failed > 0
}
