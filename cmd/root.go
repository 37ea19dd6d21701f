// Package cmd provides the command-line interface for the news bias analysis
// pipeline.
package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/application/common/slogger"
	"github.com/jsvan/news-bias-analyzer-v2-sub001/internal/config"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile string
	cfg     *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "newsbias",
	Short: "Batch analysis pipeline for news documents",
	Long: `newsbias moves news documents through an asynchronous batch inference
provider and stores the extracted entity mentions.

The pipeline:
- Claims pending documents and submits them as provider batches
- Polls open batches and ingests their scored entity extractions
- Survives crashes at any point: every transition is a single transaction
  and re-ingesting output is a no-op
- Ships operator tools for stuck claims, lost tracking state, and bulk resets`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./configs/config.yaml)")
	rootCmd.PersistentFlags().String("log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "json", "Log format (json, text)")

	if err := viper.BindPFlag("log.level", rootCmd.PersistentFlags().Lookup("log-level")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-level flag: %v\n", err)
	}
	if err := viper.BindPFlag("log.format", rootCmd.PersistentFlags().Lookup("log-format")); err != nil {
		fmt.Fprintf(os.Stderr, "Error binding log-format flag: %v\n", err)
	}
}

func initConfig() {
	v := viper.New()

	setDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("NEWSBIAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			fmt.Fprintf(os.Stderr, "Error reading config file: %v\n", err)
		}
		// Config file not found; use defaults and environment.
	}

	cfg = config.New(v)

	slogger.Configure(slogger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
	})
}

func setDefaults(v *viper.Viper) {
	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "newsbias")
	v.SetDefault("database.name", "newsbias")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_connections", 25)
	v.SetDefault("database.min_connections", 2)

	// NATS defaults
	v.SetDefault("nats.enabled", false)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.max_reconnects", 5)
	v.SetDefault("nats.reconnect_wait", "2s")

	// Provider defaults
	v.SetDefault("openai.base_url", "https://api.openai.com")
	v.SetDefault("openai.model", "gpt-4o-mini")
	v.SetDefault("openai.timeout", "60s")

	// Pipeline defaults
	v.SetDefault("pipeline.claim_size", 50)
	v.SetDefault("pipeline.submit_interval", "30s")
	v.SetDefault("pipeline.poll_interval", "1m")
	v.SetDefault("pipeline.max_concurrent_polls", 4)
	v.SetDefault("pipeline.max_document_attempts", 3)
	v.SetDefault("pipeline.stuck_threshold", "24h")
	v.SetDefault("pipeline.initial_backoff", "1m")
	v.SetDefault("pipeline.max_backoff", "30m")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}
