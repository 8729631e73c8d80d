// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package tasks turns evidence gaps into prioritised extraction tasks.
package tasks

import (
	"strings"

	"github.com/pdiddy/brim-extract/pkg/types"
)

// categoryPriority maps every gap category to its priority tier.
// Categories absent from the table fall through to LOW.
var categoryPriority = map[types.GapCategory]types.ExtractionPriority{
	types.GapDiagnosis:       types.PriorityCritical,
	types.GapMolecularMarker: types.PriorityCritical,
	types.GapHistology:       types.PriorityCritical,
	types.GapSurgeryDate:     types.PriorityHigh,
	types.GapTreatmentStart:  types.PriorityHigh,
	types.GapProtocol:        types.PriorityHigh,
	types.GapTreatmentDetail: types.PriorityMedium,
	types.GapDosage:          types.PriorityMedium,
}

// Classify derives the priority tier for a gap category. It never fails.
func Classify(category types.GapCategory) types.ExtractionPriority {
	if p, ok := categoryPriority[category]; ok {
		return p
	}
	return types.PriorityLow
}

// categoryAliases maps normalised gap type spellings onto categories.
var categoryAliases = map[string]types.GapCategory{
	"diagnosis":           types.GapDiagnosis,
	"primary_diagnosis":   types.GapDiagnosis,
	"molecular_marker":    types.GapMolecularMarker,
	"molecular":           types.GapMolecularMarker,
	"molecular_testing":   types.GapMolecularMarker,
	"biomarker":           types.GapMolecularMarker,
	"histology":           types.GapHistology,
	"pathology":           types.GapHistology,
	"classification":      types.GapHistology,
	"tumor_grade":         types.GapHistology,
	"surgery_date":        types.GapSurgeryDate,
	"surgery":             types.GapSurgeryDate,
	"resection_date":      types.GapSurgeryDate,
	"treatment_start":     types.GapTreatmentStart,
	"chemotherapy_start":  types.GapTreatmentStart,
	"radiation_start":     types.GapTreatmentStart,
	"protocol":            types.GapProtocol,
	"treatment_protocol":  types.GapProtocol,
	"clinical_trial":      types.GapProtocol,
	"treatment_detail":    types.GapTreatmentDetail,
	"treatment_details":   types.GapTreatmentDetail,
	"chemotherapy_detail": types.GapTreatmentDetail,
	"dosage":              types.GapDosage,
	"dose":                types.GapDosage,
	"radiation_dose":      types.GapDosage,
	"imaging":             types.GapImaging,
	"imaging_response":    types.GapImaging,
	"other":               types.GapOther,
}

// categoryKeywords is scanned in order when no alias matches, so a gap type
// containing a higher-tier keyword wins over one containing a lower one.
var categoryKeywords = []struct {
	keyword  string
	category types.GapCategory
}{
	{"diagnosis", types.GapDiagnosis},
	{"molecular", types.GapMolecularMarker},
	{"marker", types.GapMolecularMarker},
	{"classification", types.GapHistology},
	{"histology", types.GapHistology},
	{"pathology", types.GapHistology},
	{"surgery", types.GapSurgeryDate},
	{"resection", types.GapSurgeryDate},
	{"treatment_start", types.GapTreatmentStart},
	{"protocol", types.GapProtocol},
	{"treatment_detail", types.GapTreatmentDetail},
	{"dosage", types.GapDosage},
	{"dose", types.GapDosage},
	{"imaging", types.GapImaging},
}

// ParseGapCategory maps a free-text gap type onto the closed category set.
// Case, surrounding space, hyphens and inner spaces are normalised first.
// Exact aliases are tried before a keyword scan; anything else becomes
// GapOther.
func ParseGapCategory(s string) types.GapCategory {
	key := strings.ToLower(strings.TrimSpace(s))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)
	if c, ok := categoryAliases[key]; ok {
		return c
	}
	for _, kw := range categoryKeywords {
		if strings.Contains(key, kw.keyword) {
			return kw.category
		}
	}
	return types.GapOther
}
