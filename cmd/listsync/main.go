package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/aboutus/listsync/internal/config"
	"github.com/aboutus/listsync/internal/logging"
	"github.com/aboutus/listsync/internal/ui"
)

var (
	// Global flags
	configPath   string
	verbose      bool
	noColor      bool
	listFlag     string
	templateFlag string
	backendFlag  string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "listsync",
	Short: "Keep a SharePoint About-Us list in line with its template",
	Long: `listsync converges a SharePoint list, its fields and its views towards a
versioned template. Runs are idempotent: a second run against an unchanged
list makes no writes.

Configuration is read from listsync.toml (working directory or
~/.config/listsync) and LISTSYNC_* environment variables.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if noColor {
			ui.DisableColor()
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		if listFlag != "" {
			cfg.ListName = listFlag
		}
		if templateFlag != "" {
			cfg.Template = templateFlag
		}
		if backendFlag != "" {
			cfg.Backend = backendFlag
		}

		logCfg := cfg.Logging()
		if verbose {
			logCfg.Level = "debug"
		}
		logger, err = logging.New(logCfg)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default: ./listsync.toml, ~/.config/listsync/listsync.toml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&listFlag, "list", "", "list title (overrides list_name)")
	rootCmd.PersistentFlags().StringVar(&templateFlag, "template", "", "template file (overrides template)")
	rootCmd.PersistentFlags().StringVar(&backendFlag, "backend", "", "rest or local (overrides backend)")

	rootCmd.AddGroup(
		&cobra.Group{ID: "sync", Title: "Reconciliation:"},
		&cobra.Group{ID: "setup", Title: "Setup:"},
	)
	rootCmd.AddCommand(ensureCmd, planCmd, inspectCmd, watchCmd, historyCmd)
	rootCmd.AddCommand(initCmd, configCmd, templateCmd, validateNameCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
