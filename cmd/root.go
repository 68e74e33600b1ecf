// Package cmd implements the formflow command line.
package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zjrosen/formflow/internal/config"
	"github.com/zjrosen/formflow/internal/log"
)

const logBufferSize = 500

var (
	version = "dev"

	cfgFile   string
	debugFlag bool
	logFile   string

	loader     *config.Loader
	cfg        config.Config
	logCleanup func()
)

var rootCmd = &cobra.Command{
	Use:   "formflow",
	Short: "Validate and submit forms with asynchronous validators",
	Long: `formflow drives a form definition through its validators.

The form, its fields and their validators are read from a YAML config file
($HOME/.config/formflow/config.yaml unless --config is given). Every key can be
overridden with a FORMFLOW_ environment variable, e.g. FORMFLOW_LOG_DEBUG=true.`,
	SilenceUsage:       true,
	PersistentPreRunE:  loadConfig,
	PersistentPostRunE: closeLog,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default $HOME/.config/formflow/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "debug log file (default from config)")
}

// SetVersion sets the version reported by --version.
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	rootCmd.Version = version
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig(cmd *cobra.Command, _ []string) error {
	loader = config.NewLoader(cfgFile)
	c, err := loader.Load()
	if err != nil {
		return err
	}
	cfg = c

	if debugFlag || cfg.Log.Debug || os.Getenv("FORMFLOW_DEBUG") != "" {
		path := cfg.Log.Path
		if logFile != "" {
			path = logFile
		}
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return fmt.Errorf("creating log directory: %w", err)
		}
		cleanup, err := log.Init(path, logBufferSize)
		if err != nil {
			return fmt.Errorf("initializing log: %w", err)
		}
		logCleanup = cleanup
		log.Info(log.CatConfig, "config loaded", "file", loader.Path(), "command", cmd.Name())
	}
	return nil
}

func closeLog(*cobra.Command, []string) error {
	if logCleanup != nil {
		logCleanup()
		logCleanup = nil
	}
	return nil
}
