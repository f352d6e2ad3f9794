package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/cwbudde/conecone/internal/config"
)

var (
	logLevel   string
	configPath string
	logger     *slog.Logger

	// appConfig is loaded before every command runs.
	appConfig *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "conecone",
	Short: "Eruptive-center reconstruction for eroded volcanic cones",
	Long: `conecone locates the apex of an eroded cone from scattered control points
by maximizing the fit between elevation and radial distance, once with linear
regression and once with rank correlation, and reports the radial profile at
each center.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadConfig(configPath)
		if err != nil {
			return err
		}
		appConfig = cfg

		// Setup logger
		levelName := cfg.Logging.Level
		if cmd.Flags().Changed("log-level") {
			levelName = logLevel
		}
		var level slog.Level
		switch levelName {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stderr, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "conecone.yaml", "Configuration file (defaults are used when missing)")
}
