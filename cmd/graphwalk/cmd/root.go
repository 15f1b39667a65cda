package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Version information (set via ldflags at build time)
var (
	Version = "0.0.1-dev"
	Commit  = "unknown"
)

// CLI flags that override config file values
var (
	cfgFile         string
	logLevel        string
	logFormat       string
	batchSize       int
	parallelFetches int
)

var rootCmd = &cobra.Command{
	Use:   "graphwalk",
	Short: "Relational object graph walker",
	Long: `A CLI tool for walking connected relational data: starting from root
records it collects everything transitively reachable through the
relationships a scope declares, with one batched query per relationship
per traversal level.

Features:
  - Scoped traversal with per-field overrides (ignore, follow limits)
  - Dependency-ordered fixture export (JSON, msgpack)
  - Subgraph cloning with reference remapping
  - Static fan-out analysis (cycles, limit bypasses, shared references)
  - Schema visualization (Graphviz DOT, ASCII)`,
	Version: Version,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	// Config file flag
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "graphwalk.yaml",
		"Path to configuration file")

	// Logging overrides
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"Override log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "",
		"Override log format (json, text)")

	// Processing overrides
	rootCmd.PersistentFlags().IntVar(&batchSize, "batch-size", 0,
		"Override batch size (values per IN clause)")
	rootCmd.PersistentFlags().IntVar(&parallelFetches, "parallel-fetches", 0,
		"Override concurrent fetches per traversal level")
}

// GetConfigFile returns the config file path
func GetConfigFile() string {
	return cfgFile
}

// CLIOverrides contains flag values that override config file settings
type CLIOverrides struct {
	LogLevel        string
	LogFormat       string
	BatchSize       int
	ParallelFetches int
}

// GetCLIOverrides returns the CLI flag override values
func GetCLIOverrides() CLIOverrides {
	return CLIOverrides{
		LogLevel:        logLevel,
		LogFormat:       logFormat,
		BatchSize:       batchSize,
		ParallelFetches: parallelFetches,
	}
}
