// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/pdiddy/brim-extract/internal/fingerprint"
)

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Fingerprint a subject's data views",
	Long: `Fingerprint summarises each view for one subject as record count,
latest date and distinct key count, then prints the composite hash used
for cache validation. Views default to those listed in the config file.`,
	RunE: runFingerprint,
}

func runFingerprint(cmd *cobra.Command, args []string) error {
	subjectID, _ := cmd.Flags().GetString("subject")
	views, _ := cmd.Flags().GetStringSlice("view")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	if len(views) == 0 {
		views = viewNames(cfg.Fingerprint.Views)
	}
	if len(views) == 0 {
		return errors.New("no views: pass --view or list fingerprint.views in the config file")
	}

	c, err := detailedFingerprint(cmd.Context(), views, subjectID)
	if err != nil {
		return err
	}
	return formatFingerprint(c, jsonOutput)
}

func formatFingerprint(c fingerprint.Composite, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(c)
	}

	fmt.Fprintf(os.Stdout, "%-32s  %10s  %-10s  %10s\n", "View", "Records", "Latest", "IDs")
	fmt.Fprintln(os.Stdout, strings.Repeat("-", 70))
	for _, v := range c.Views {
		latest := v.LatestDate
		if latest == "" {
			latest = "-"
		}
		fmt.Fprintf(os.Stdout, "%-32s  %10d  %-10s  %10d\n", v.ViewName, v.RecordCount, latest, v.IDSetSize)
	}
	if len(c.Failed) > 0 {
		fmt.Fprintf(os.Stdout, "\nFailed (hashed as empty): %s\n", strings.Join(c.Failed, ", "))
	}
	fmt.Fprintf(os.Stdout, "\nFingerprint: %s\n", c.Hash)
	return nil
}

func init() {
	fingerprintCmd.Flags().String("subject", "", "subject identifier")
	fingerprintCmd.Flags().StringSlice("view", nil, "view to fingerprint (repeatable)")
	fingerprintCmd.Flags().Bool("json", false, "output as JSON")
	_ = fingerprintCmd.MarkFlagRequired("subject")

	rootCmd.AddCommand(fingerprintCmd)
}
