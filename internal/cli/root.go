package cli

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"fusion-trader/internal/config"
	"fusion-trader/internal/logging"
	"fusion-trader/internal/memory"
)

// Version information
const (
	Version = "0.1.0"
)

// App holds the application dependencies.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
	Store  *memory.Store
}

// NewRootCmd creates the root command for the CLI.
func NewRootCmd(cfg *config.Config, logger zerolog.Logger) *cobra.Command {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	store, err := memory.Open(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Warn().Err(err).Msg("failed to open memory store, history commands unavailable")
	} else {
		app.Store = store
		logger.Debug().Str("path", cfg.Storage.DatabasePath).Msg("memory store opened")
	}

	rootCmd := &cobra.Command{
		Use:   "fusion-trader",
		Short: "Signal-fusion trading engine for a single crypto pair",
		Long: `fusion-trader blends a four-rule technical signal with an external
sentiment score into one bounded decision per cycle, sized against a paper
portfolio and guarded by an adaptive risk circuit breaker.

Use 'fusion-trader help <command>' for more information about a command.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			debug, _ := cmd.Flags().GetBool("debug")
			if debug {
				logging.SetDebugLevel()
				app.Logger = app.Logger.Level(zerolog.DebugLevel)
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().String("config", "", "config directory (default: ~/.config/fusion-trader)")
	rootCmd.PersistentFlags().Bool("json", false, "output in JSON format")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newConfigCmd(app))
	rootCmd.AddCommand(newRunCmd(app))
	rootCmd.AddCommand(newBacktestCmd(app))
	rootCmd.AddCommand(newStatusCmd(app))
	rootCmd.AddCommand(newMemoryCmd(app))

	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"version": Version})
			} else {
				output.Printf("fusion-trader v%s\n", Version)
			}
		},
	}
}

func newConfigCmd(app *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if output.IsJSON() {
				return output.JSON(app.Config)
			}
			showConfig(output, app.Config)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Write a template config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			dir, _ := cmd.Flags().GetString("config")
			path, err := config.Init(dir)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(map[string]string{"path": path})
			}
			output.Success("Config at %s", path)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration directory path",
		Run: func(cmd *cobra.Command, args []string) {
			output := NewOutput(cmd)
			if output.IsJSON() {
				output.JSON(map[string]string{"path": config.DefaultConfigDir()})
			} else {
				output.Println(config.DefaultConfigDir())
			}
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			if err := app.Config.Validate(); err != nil {
				output.Error("Configuration validation failed: %v", err)
				return err
			}
			if output.IsJSON() {
				output.JSON(map[string]bool{"valid": true})
			} else {
				output.Success("Configuration is valid")
			}
			return nil
		},
	})

	return cmd
}

func showConfig(output *Output, cfg *config.Config) {
	output.Bold("Trading")
	output.Printf("  Pair:             %s\n", cfg.Trading.Pair)
	output.Printf("  Lookback:         %d candles\n", cfg.Trading.Lookback)
	output.Printf("  Interval:         %d min\n", cfg.Trading.IntervalMinutes)
	output.Printf("  Trade Size:       %.1f%% of portfolio\n", cfg.Trading.TradePercent)
	output.Printf("  Sentiment Weight: %.2f\n", cfg.Trading.SentimentWeight)
	if cfg.Trading.TargetValue > 0 {
		output.Printf("  Target Value:     %.2f\n", cfg.Trading.TargetValue)
	}
	output.Println()

	output.Bold("Risk")
	output.Printf("  Max Daily Loss:    %.1f%%\n", cfg.Risk.MaxDailyLossPercent)
	output.Printf("  Max Loss Streak:   %d\n", cfg.Risk.MaxConsecutiveLosses)
	output.Printf("  Min Confidence:    %.0f%%\n", cfg.Risk.MinConfidenceToTrade)
	output.Println()

	output.Bold("Storage")
	output.Printf("  Database: %s\n", cfg.Storage.DatabasePath)
}
