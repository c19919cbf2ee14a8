package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"cyberbook/config"
	"cyberbook/internal/logging"
)

var (
	cfgFile  string
	rootDir  string
	logLevel string
	cfg      *config.Config
	logger   *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "cyberbook",
	Short: "Cyberbook - offline security handbook portal",
	Long: `Cyberbook indexes the chapters of a security handbook, serves them
through a small client-side router and keeps reading notes, progress and
stats in a local document store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile != "" {
			cfg, err = config.Load(cfgFile)
		} else {
			cfg, err = config.LoadFromDir(rootDir)
		}
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger = logging.New(cfg.Logging, os.Stderr)
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: cyberbook.yaml or .cyberbook/config.yaml)")
	rootCmd.PersistentFlags().StringVarP(&rootDir, "dir", "d", ".", "book root directory")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging level (debug, info, warn, error)")
}

// GetConfig returns the loaded configuration.
func GetConfig() *config.Config {
	return cfg
}

// GetRootDir returns the root directory.
func GetRootDir() string {
	return rootDir
}

// GetLogger returns the command logger.
func GetLogger() *slog.Logger {
	return logging.OrDefault(logger)
}
