// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/brim-extract/internal/cache"
	"github.com/pdiddy/brim-extract/internal/extract"
	"github.com/pdiddy/brim-extract/internal/fingerprint"
	"github.com/pdiddy/brim-extract/internal/logger"
	"github.com/pdiddy/brim-extract/internal/metrics"
	"github.com/pdiddy/brim-extract/internal/tasks"
	"github.com/pdiddy/brim-extract/pkg/types"
)

var extractCmd = &cobra.Command{
	Use:   "extract",
	Short: "Run a batch of extraction tasks for one subject",
	Long: `Extract reads a batch file of evidence gaps for one subject, classifies
each gap into a priority tier and runs the tasks against the LLM extractor
under a bounded worker pool. Results and statistics are written to
<output-dir>/<subject>-<scope>.yaml.

When the batch file lists views, the subject's data is fingerprinted first.
If a cached run exists with the same cache version and fingerprint and is
within max_age_days, the cached results are written and no extraction runs.`,
	RunE: runExtract,
}

// batchReport is the document written to the output directory.
type batchReport struct {
	SubjectID   string                   `yaml:"subject_id" json:"subject_id"`
	Scope       string                   `yaml:"scope" json:"scope"`
	Fingerprint string                   `yaml:"fingerprint,omitempty" json:"fingerprint,omitempty"`
	FromCache   bool                     `yaml:"from_cache" json:"from_cache"`
	Statistics  types.BatchStatistics    `yaml:"statistics" json:"statistics"`
	Results     []types.ExtractionResult `yaml:"results" json:"results"`
}

func runExtract(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	batchPath, _ := cmd.Flags().GetString("batch")
	noCache, _ := cmd.Flags().GetBool("no-cache")
	metricsFile, _ := cmd.Flags().GetString("metrics-file")

	bf, err := tasks.LoadBatchFile(batchPath)
	if err != nil {
		return err
	}
	taskList, err := tasks.BuildBatch(bf.Gaps, time.Now())
	if err != nil {
		return err
	}
	runLog := log.With(logger.String("subject_id", bf.SubjectID), logger.String("scope", bf.Scope))

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	var (
		hash    string
		manager *cache.Manager
	)
	if !noCache {
		store, err := cache.Open(cfg.Cache)
		if err != nil {
			return err
		}
		defer store.Close()
		manager = cache.NewManager(store, cache.NewValidator(runLog, cache.WithValidatorMetrics(m)), cfg.Cache, runLog)

		if len(bf.Views) > 0 {
			hash, err = computeFingerprint(ctx, bf.Views, bf.SubjectID)
			if err != nil {
				return err
			}
		}

		lookup, err := manager.Lookup(ctx, bf.SubjectID, bf.Scope, hash)
		if err != nil {
			return err
		}
		if lookup.Hit() {
			return writeCachedReport(bf, hash, lookup.Entry)
		}
		if lookup.Entry != nil {
			fmt.Fprintf(os.Stderr, "Cache invalid (%s), re-extracting\n", lookup.Validation.Reason)
		}
	}

	backend := &extract.ClaudeBackend{
		APIKey:     cfg.Extraction.APIKey,
		Model:      cfg.Extraction.Model,
		MaxTokens:  cfg.Extraction.MaxTokens,
		MaxRetries: cfg.Extraction.MaxRetries,
		Documents:  extract.DirSource{Dir: cfg.Extraction.DocumentsDir},
	}
	if backend.APIKey == "" {
		return errors.New("no API key: set extraction.api_key, BRIM_EXTRACT_EXTRACTION_API_KEY, ANTHROPIC_API_KEY or .secrets/anthropic-api-key")
	}

	scheduler := extract.NewScheduler(backend, runLog,
		extract.WithRateLimit(cfg.Extraction.RateLimit, cfg.Extraction.Burst),
		extract.WithMetrics(m),
	)
	results, stats := scheduler.ExtractBatch(ctx, taskList, extract.BatchOptions{
		MaxConcurrent:  cfg.Extraction.MaxConcurrent,
		TimeoutPerTask: cfg.Extraction.TaskTimeout,
		SharedContext:  bf.Context,
		Progress: func(completed, total int) {
			fmt.Fprintf(os.Stderr, "[%d/%d] tasks complete\n", completed, total)
		},
		OnResult: func(r types.ExtractionResult) {
			status := "ok"
			if !r.Success {
				status = "FAILED: " + r.ErrorMessage
			}
			fmt.Fprintf(os.Stderr, "  %-8s %-24s %s\n", r.Task.Priority, r.Task.GapID, status)
		},
	})

	report := batchReport{
		SubjectID:   bf.SubjectID,
		Scope:       bf.Scope,
		Fingerprint: hash,
		Statistics:  stats,
		Results:     results,
	}
	path, err := writeReport(report)
	if err != nil {
		return err
	}
	fmt.Printf("Wrote %s (%d/%d succeeded, %.0f%%)\n", path, stats.Succeeded, stats.Total, stats.SuccessRate()*100)

	if metricsFile != "" {
		if err := prometheus.WriteToTextfile(metricsFile, reg); err != nil {
			return fmt.Errorf("writing metrics: %w", err)
		}
	}

	if stats.HasFailures() {
		return fmt.Errorf("%d task(s) failed", stats.Failed)
	}
	if manager != nil {
		if _, err := manager.Save(ctx, bf.SubjectID, bf.Scope, hash, report); err != nil {
			return err
		}
	}
	return nil
}

// computeFingerprint opens the configured source and hashes views for subjectID.
func computeFingerprint(ctx context.Context, views []string, subjectID string) (string, error) {
	c, err := detailedFingerprint(ctx, views, subjectID)
	if err != nil {
		return "", err
	}
	return c.Hash, nil
}

func detailedFingerprint(ctx context.Context, views []string, subjectID string) (fingerprint.Composite, error) {
	src, err := fingerprint.OpenSQLSource(ctx, cfg.Fingerprint.Driver, cfg.Fingerprint.DSN)
	if err != nil {
		return fingerprint.Composite{}, err
	}
	defer src.Close()

	f := fingerprint.New(src, cfg.Fingerprint.Views, log, fingerprint.WithMaxParallel(cfg.Fingerprint.MaxParallel))
	return f.ComputeDetailed(ctx, views, subjectID)
}

func writeCachedReport(bf tasks.BatchFile, hash string, entry *types.CacheEntry) error {
	var report batchReport
	if err := json.Unmarshal(entry.Payload, &report); err != nil {
		return fmt.Errorf("decoding cached results: %w", err)
	}
	report.FromCache = true
	if report.Fingerprint == "" {
		report.Fingerprint = hash
	}
	path, err := writeReport(report)
	if err != nil {
		return err
	}
	fmt.Printf("Cache valid for %s (written %s); wrote %s\n", bf.SubjectID, entry.Timestamp, path)
	return nil
}

func writeReport(report batchReport) (string, error) {
	if err := os.MkdirAll(cfg.Extraction.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("creating output directory: %w", err)
	}
	data, err := yaml.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("marshaling results: %w", err)
	}
	path := filepath.Join(cfg.Extraction.OutputDir, fmt.Sprintf("%s-%s.yaml", report.SubjectID, report.Scope))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing %s: %w", path, err)
	}
	return path, nil
}

func init() {
	extractCmd.Flags().String("batch", "", "batch file of gaps to extract (YAML)")
	extractCmd.Flags().Bool("no-cache", false, "skip the cache check and do not save results")
	extractCmd.Flags().String("metrics-file", "", "write Prometheus metrics in text format to this file")
	extractCmd.Flags().String("model", "", "AI model identifier")
	extractCmd.Flags().Int("max-concurrent", 0, "worker pool size")
	extractCmd.Flags().Duration("timeout", 0, "timeout per task")
	extractCmd.Flags().String("output-dir", "", "directory for result files")
	_ = extractCmd.MarkFlagRequired("batch")

	_ = viper.BindPFlag("extraction.model", extractCmd.Flags().Lookup("model"))
	_ = viper.BindPFlag("extraction.max_concurrent", extractCmd.Flags().Lookup("max-concurrent"))
	_ = viper.BindPFlag("extraction.task_timeout", extractCmd.Flags().Lookup("timeout"))
	_ = viper.BindPFlag("extraction.output_dir", extractCmd.Flags().Lookup("output-dir"))

	rootCmd.AddCommand(extractCmd)
}
