package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
	"github.com/vietddude/stylelog"

	"github.com/vietddude/metalsync/internal/control"
	"github.com/vietddude/metalsync/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "metalsync",
	Short: "Metal price synchronization service",
	Long: `metalsync keeps precious and base metal prices fresh under unreliable networks.
It retries transient failures, serves cached prices when the source is down and
slows its refresh cadence down while nobody is looking.`,
	Run: runDaemon,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync daemon (default command)",
	Run:   runDaemon,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
	rootCmd.AddCommand(serveCmd)
}

// loadConfig loads .env and the config file, then sets up logging.
func loadConfig() *config.AppConfig {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		stylelog.InitDefault()
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logging
	slogLevel := slog.LevelInfo
	if isDebug || cfg.Logging.Level == "debug" {
		slogLevel = slog.LevelDebug
	}

	stylelog.InitDefault(&tint.Options{
		Level:      slogLevel,
		TimeFormat: time.RFC3339,
	})
	return cfg
}

func newApp(ctx context.Context, cfg *config.AppConfig) *control.App {
	app, err := control.New(ctx, control.ConfigFrom(cfg))
	if err != nil {
		slog.Error("Failed to initialize metalsync", "error", err)
		os.Exit(1)
	}
	return app
}

// newOneShotApp builds the application for commands that exit after one action.
func newOneShotApp(ctx context.Context, cfg *config.AppConfig, command string) *control.App {
	app := newApp(ctx, cfg)
	if app.Ephemeral() {
		slog.Warn("Storage backend is memory, cached prices do not outlive this command",
			"command", command,
			"backend", cfg.Storage.Backend,
		)
	}
	return app
}

// fail closes app and exits with code.
func fail(app *control.App, code int) {
	app.Close()
	os.Exit(code)
}

func runDaemon(cmd *cobra.Command, args []string) {
	cfg := loadConfig()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	app := newApp(ctx, cfg)

	slog.Info("metalsync started",
		"config", cfgPath,
		"backend", cfg.Storage.Backend,
		"symbols", len(cfg.Provider.Symbols),
		"frequency", cfg.Scheduler.BaseFrequency,
	)

	if err := app.Run(ctx); err != nil {
		slog.Error("metalsync stopped with error", "error", err)
		os.Exit(1)
	}
	slog.Info("metalsync stopped gracefully")
}
