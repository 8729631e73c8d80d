// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package secrets loads credentials from a directory of plain-text files.
// Each file is one secret: the filename is the key and the trimmed contents
// are the value.
package secrets

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdiddy/brim-extract/internal/logger"
	"github.com/pdiddy/brim-extract/pkg/types"
)

// Recognised key files.
const (
	AnthropicAPIKey = "anthropic-api-key"
	SourceDSN       = "source-dsn"
	RedisPassword   = "redis-password"
)

// Load reads all files in dir and returns a map of filename to trimmed
// contents. A missing directory is not an error. Unreadable files are logged
// and skipped.
func Load(dir string, log logger.Logger) (map[string]string, error) {
	if log == nil {
		log = logger.NewNop()
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("reading secrets directory %s: %w", dir, err)
	}

	secrets := make(map[string]string)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			log.Warn("could not read secret", logger.String("name", name), logger.Err(err))
			continue
		}

		value := strings.TrimSpace(string(data))
		if value != "" {
			secrets[name] = value
		}
	}

	return secrets, nil
}

// Apply fills credential fields of cfg that are still empty from secrets.
// Values already set by config or environment win.
func Apply(secrets map[string]string, cfg *types.PipelineConfig) {
	if cfg.Extraction.APIKey == "" {
		cfg.Extraction.APIKey = secrets[AnthropicAPIKey]
	}
	if v, ok := secrets[SourceDSN]; ok && cfg.Fingerprint.DSN == types.DefaultPipelineConfig().Fingerprint.DSN {
		cfg.Fingerprint.DSN = v
	}
	if cfg.Cache.RedisPassword == "" {
		cfg.Cache.RedisPassword = secrets[RedisPassword]
	}
}
