// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package main is the entry point for the brim-extract CLI.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/pdiddy/brim-extract/internal/logger"
	"github.com/pdiddy/brim-extract/internal/secrets"
	"github.com/pdiddy/brim-extract/pkg/types"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	// cfg is the resolved configuration, populated before any subcommand runs.
	cfg types.PipelineConfig

	// log is the process logger, built from cfg.Log.
	log logger.Logger = logger.NewNop()
)

// rootCmd is the base command for the brim-extract CLI.
var rootCmd = &cobra.Command{
	Use:   "brim-extract",
	Short: "Priority-scheduled LLM extraction with fingerprint-based caching",
	Long: `brim-extract resolves evidence gaps in clinical records by sending
documents to an LLM extractor. Gaps are scheduled by clinical priority
under a bounded worker pool. Before a batch runs, the subject's upstream
data views are fingerprinted and compared against the cached run so
unchanged subjects are not re-extracted.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = loadConfig()
		if err != nil {
			return err
		}

		log, err = logger.New(logger.Config{Level: cfg.Log.Level, Development: cfg.Log.Development})
		if err != nil {
			return err
		}

		secretsDir, _ := cmd.Flags().GetString("secrets-dir")
		s, err := secrets.Load(secretsDir, log)
		if err != nil {
			return err
		}
		secrets.Apply(s, &cfg)
		if cfg.Extraction.APIKey == "" {
			cfg.Extraction.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
		if len(s) > 0 {
			keys := make([]string, 0, len(s))
			for k := range s {
				keys = append(keys, k)
			}
			slices.Sort(keys)
			log.Debug("loaded secrets", logger.Strings("keys", keys))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = log.Sync()
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().String("config", "", "config file (default: ./brim-extract.yaml or ~/.config/brim-extract/config.yaml)")
	rootCmd.PersistentFlags().String("secrets-dir", ".secrets", "directory of credential files")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().Int("max-age-days", types.DefaultPipelineConfig().Cache.MaxAgeDays, "cache entries older than this many days are expired (0 = no age limit)")
	_ = viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("cache.max_age_days", rootCmd.PersistentFlags().Lookup("max-age-days"))
}

func initConfig() {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "warning: loading .env: %v\n", err)
	}

	cfgFile, _ := rootCmd.PersistentFlags().GetString("config")
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("brim-extract")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")

		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(filepath.Join(home, ".config", "brim-extract"))
		}
	}

	viper.SetEnvPrefix("BRIM_EXTRACT")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	setDefaults(viper.GetViper(), types.DefaultPipelineConfig())

	if err := viper.ReadInConfig(); err == nil {
		fmt.Fprintln(os.Stderr, "Using config file:", viper.ConfigFileUsed())
	}
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
