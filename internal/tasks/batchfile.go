// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package tasks

import (
	"fmt"
	"os"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/brim-extract/pkg/types"
)

// BatchFile is the on-disk description of one subject's extraction run.
type BatchFile struct {
	SubjectID string              `yaml:"subject_id"`
	Scope     string              `yaml:"scope,omitempty"`
	Views     []string            `yaml:"views,omitempty"`
	Context   types.SharedContext `yaml:"context,omitempty"`
	Gaps      []Gap               `yaml:"gaps"`
}

// LoadBatchFile reads and checks a YAML batch file.
func LoadBatchFile(path string) (BatchFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return BatchFile{}, fmt.Errorf("reading batch file %s: %w", path, err)
	}

	var bf BatchFile
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return BatchFile{}, fmt.Errorf("parsing batch file %s: %w", path, err)
	}

	if strings.TrimSpace(bf.SubjectID) == "" {
		return BatchFile{}, fmt.Errorf("batch file %s: subject_id is required", path)
	}
	if len(bf.Gaps) == 0 {
		return BatchFile{}, fmt.Errorf("batch file %s: no gaps", path)
	}
	if bf.Scope == "" {
		bf.Scope = "extraction"
	}
	return bf, nil
}
