// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/pdiddy/brim-extract/pkg/types"
)

// setDefaults registers every scalar key so AutomaticEnv can override it.
func setDefaults(v *viper.Viper, d types.PipelineConfig) {
	v.SetDefault("extraction.model", d.Extraction.Model)
	v.SetDefault("extraction.api_key", d.Extraction.APIKey)
	v.SetDefault("extraction.max_tokens", d.Extraction.MaxTokens)
	v.SetDefault("extraction.max_retries", d.Extraction.MaxRetries)
	v.SetDefault("extraction.max_concurrent", d.Extraction.MaxConcurrent)
	v.SetDefault("extraction.task_timeout", d.Extraction.TaskTimeout)
	v.SetDefault("extraction.rate_limit", d.Extraction.RateLimit)
	v.SetDefault("extraction.burst", d.Extraction.Burst)
	v.SetDefault("extraction.documents_dir", d.Extraction.DocumentsDir)
	v.SetDefault("extraction.output_dir", d.Extraction.OutputDir)

	v.SetDefault("fingerprint.driver", d.Fingerprint.Driver)
	v.SetDefault("fingerprint.dsn", d.Fingerprint.DSN)
	v.SetDefault("fingerprint.max_parallel", d.Fingerprint.MaxParallel)

	v.SetDefault("cache.backend", string(d.Cache.Backend))
	v.SetDefault("cache.path", d.Cache.Path)
	v.SetDefault("cache.redis_address", d.Cache.RedisAddress)
	v.SetDefault("cache.redis_password", d.Cache.RedisPassword)
	v.SetDefault("cache.redis_db", d.Cache.RedisDB)
	v.SetDefault("cache.version", d.Cache.Version)
	v.SetDefault("cache.max_age_days", d.Cache.MaxAgeDays)
	v.SetDefault("cache.ttl", d.Cache.TTL)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.development", d.Log.Development)
}

// loadConfig decodes the global viper state into a PipelineConfig.
func loadConfig() (types.PipelineConfig, error) {
	return decodeConfig(viper.GetViper())
}

func decodeConfig(v *viper.Viper) (types.PipelineConfig, error) {
	cfg := types.DefaultPipelineConfig()
	if err := v.Unmarshal(&cfg); err != nil {
		return types.PipelineConfig{}, fmt.Errorf("decoding configuration: %w", err)
	}
	return cfg, nil
}

// viewNames returns the names of the configured views.
func viewNames(views []types.ViewSpec) []string {
	names := make([]string, 0, len(views))
	for _, v := range views {
		names = append(names, v.Name)
	}
	return names
}
