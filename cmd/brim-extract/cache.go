// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/brim-extract/internal/cache"
	"github.com/pdiddy/brim-extract/internal/tasks"
	"github.com/pdiddy/brim-extract/pkg/types"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect cached extraction runs",
}

var cacheValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check whether a subject's cached run can be reused",
	Long: `Validate reads the cached run for a subject and scope and checks, in
order, the cache version, the data fingerprint and the entry's age. The
decision and the reason are printed as YAML.

Pass the batch file with --batch so the subject, scope and views match the
ones extract hashed. Without it, views default to the configured views,
which reports a fingerprint mismatch if the batch listed different ones.`,
	RunE: runCacheValidate,
}

// validateTarget is what cache validate checks.
type validateTarget struct {
	SubjectID string
	Scope     string
	Views     []string
}

// resolveValidateTarget merges flags with the batch file, when given. Flags
// win; views fall back to the batch file's, then to the configured views.
func resolveValidateTarget(batchPath, subjectID, scope string, views []string, configured []types.ViewSpec) (validateTarget, error) {
	t := validateTarget{SubjectID: subjectID, Scope: scope, Views: views}
	if batchPath != "" {
		bf, err := tasks.LoadBatchFile(batchPath)
		if err != nil {
			return validateTarget{}, err
		}
		if t.SubjectID == "" {
			t.SubjectID = bf.SubjectID
		}
		if t.Scope == "" {
			t.Scope = bf.Scope
		}
		if len(t.Views) == 0 {
			t.Views = bf.Views
		}
	} else if len(t.Views) == 0 {
		t.Views = viewNames(configured)
	}
	if t.SubjectID == "" {
		return validateTarget{}, errors.New("subject required: pass --subject or --batch")
	}
	return t, nil
}

func runCacheValidate(cmd *cobra.Command, args []string) error {
	batchPath, _ := cmd.Flags().GetString("batch")
	subjectID, _ := cmd.Flags().GetString("subject")
	scope, _ := cmd.Flags().GetString("scope")
	views, _ := cmd.Flags().GetStringSlice("view")
	skipFingerprint, _ := cmd.Flags().GetBool("no-fingerprint")
	ctx := cmd.Context()

	target, err := resolveValidateTarget(batchPath, subjectID, scope, views, cfg.Fingerprint.Views)
	if err != nil {
		return err
	}

	store, err := cache.Open(cfg.Cache)
	if err != nil {
		return err
	}
	defer store.Close()

	var hash string
	if !skipFingerprint && len(target.Views) > 0 {
		hash, err = computeFingerprint(ctx, target.Views, target.SubjectID)
		if err != nil {
			return err
		}
	}

	manager := cache.NewManager(store, cache.NewValidator(log), cfg.Cache, log)
	lookup, err := manager.Lookup(ctx, target.SubjectID, target.Scope, hash)
	if err != nil {
		return err
	}
	if lookup.Entry == nil {
		fmt.Printf("No cache entry for %s\n", lookup.Key)
		return nil
	}

	out := struct {
		Key        string `yaml:"key"`
		Written    string `yaml:"written"`
		Version    string `yaml:"cache_version"`
		Validation any    `yaml:"validation"`
	}{
		Key:        lookup.Key,
		Written:    lookup.Entry.Timestamp,
		Version:    lookup.Entry.CacheVersion,
		Validation: lookup.Validation,
	}
	enc := yaml.NewEncoder(os.Stdout)
	defer enc.Close()
	return enc.Encode(out)
}

func init() {
	cacheValidateCmd.Flags().String("batch", "", "batch file supplying subject, scope and views (matches what extract hashed)")
	cacheValidateCmd.Flags().String("subject", "", "subject identifier (default: from --batch)")
	cacheValidateCmd.Flags().String("scope", "", "cache scope (default: from --batch, else extraction)")
	cacheValidateCmd.Flags().StringSlice("view", nil, "views to fingerprint (default: --batch views, else configured views; must match the views extract used)")
	cacheValidateCmd.Flags().Bool("no-fingerprint", false, "skip the fingerprint check")

	cacheCmd.AddCommand(cacheValidateCmd)
	rootCmd.AddCommand(cacheCmd)
}
