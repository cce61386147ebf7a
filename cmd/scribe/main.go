package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/scribe/internal/config"
)

var (
	cfg      config.Config
	logger   *slog.Logger
	logLevel string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Speech recognition job coordinator",
	Long:  "Correlates asynchronous speech recognition results with their requests and tracks the recognition trial quota.",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		cfg = config.Load()
		if logLevel != "" {
			var lvl slog.Level
			if err := lvl.UnmarshalText([]byte(logLevel)); err == nil {
				cfg.LogLevel = lvl
			}
		}
		logger = config.NewLogger(os.Stderr, cfg.LogLevel)
		slog.SetDefault(logger)
	},
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); overrides SCRIBE_LOG_LEVEL")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(quotaCmd)
}
