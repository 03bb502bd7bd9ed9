package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"streak-alerts/internal/app"
	"streak-alerts/internal/config"
	"streak-alerts/internal/logging"
	"streak-alerts/internal/resolver"
	"streak-alerts/internal/version"
)

// Process exit codes.
const (
	ExitOK        = 0
	ExitFailure   = 1
	ExitExhausted = 2
)

var (
	cfgFile   string
	logLevel  string
	appHandle *app.App
)

var rootCmd = &cobra.Command{
	Use:           "streakwatch",
	Short:         "Alert when a daily series stays beyond a threshold for K consecutive business days",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if appHandle != nil || cmd.Name() == versionCmd.Name() {
			return nil
		}

		cfg, err := config.Load(cfgFile)
		if err != nil {
			return err
		}

		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}

		logger := logging.NewLogger(cfg.Logging)
		logger.Debug().Str("build", version.String()).Msg("configuration loaded")
		appHandle = app.NewApp(cfg, logger)
		appHandle.Out = cmd.OutOrStdout()
		return nil
	},
}

// Execute runs the root command and exits with the mapped status.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(exitCode(err))
	}
}

// exitCode: 2 when every source failed, 1 for any other fatal error.
func exitCode(err error) int {
	if err == nil {
		return ExitOK
	}
	var exhausted *resolver.AllSourcesExhaustedError
	if errors.As(err, &exhausted) {
		return ExitExhausted
	}
	return ExitFailure
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Override log level defined in config")

	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(simulateCmd)
}

func getApp() *app.App {
	if appHandle == nil {
		panic("application not initialized; PersistentPreRunE not executed")
	}
	return appHandle
}
