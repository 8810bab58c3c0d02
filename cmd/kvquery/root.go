package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/kvquery/kvquery/internal/logging"
	"github.com/kvquery/kvquery/pkg/config"
)

// Version is set during build.
var Version = "0.1.0"

var configPath string

// rootCmd is the base command.
var rootCmd = &cobra.Command{
	Use:   "kvquery",
	Short: "Embedded, multi-backend query execution core",
	Long: `kvquery runs structured select/upsert/delete/drop queries against a
registered table schema, with secondary indexing, lexical search, joins,
views, and ORM-style relations.

Examples:
  kvquery serve                              # start the REST API
  kvquery query --file ./select-users.json   # run one query descriptor
  kvquery schema register ./users.json       # register a table`,
	Version: Version,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().String("log-level", "info", "log level (debug, info, warn, error)")
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig loads configuration from configPath (or the default
// search path when unset) and initializes the global logger from it.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if level, _ := rootCmd.PersistentFlags().GetString("log-level"); level != "" {
		cfg.Logging.Level = level
	}
	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: "stderr",
	})

	return cfg, nil
}
