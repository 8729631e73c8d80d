// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package extract

import (
	"strings"

	"github.com/pdiddy/brim-extract/pkg/types"
)

const (
	contextHeader = "=== CLINICAL CONTEXT ==="
	contextFooter = "=== END CONTEXT ==="
)

// Enrich prepends the run-scoped clinical context to an instruction. An
// empty context returns the instruction unchanged.
func Enrich(instruction string, shared types.SharedContext) string {
	if shared.IsEmpty() {
		return instruction
	}

	var b strings.Builder
	b.WriteString(contextHeader)
	b.WriteString("\n")
	if d := strings.TrimSpace(shared.Diagnosis); d != "" {
		b.WriteString("Diagnosis: ")
		b.WriteString(d)
		b.WriteString("\n")
	}
	if len(shared.MolecularMarkers) > 0 {
		b.WriteString("Known molecular markers: ")
		b.WriteString(strings.Join(shared.MolecularMarkers, ", "))
		b.WriteString("\n")
	}
	if len(shared.PriorFindings) > 0 {
		b.WriteString("Prior findings:\n")
		for _, f := range shared.PriorFindings {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}
	b.WriteString(contextFooter)
	b.WriteString("\n\n")
	b.WriteString(instruction)
	return b.String()
}
