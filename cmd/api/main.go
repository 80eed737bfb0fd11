package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/markdave123-py/contexta-datasets/internal/app"
	"github.com/markdave123-py/contexta-datasets/internal/config"
	db "github.com/markdave123-py/contexta-datasets/internal/core/database"
	"github.com/markdave123-py/contexta-datasets/internal/logger"
)

var rootCmd = &cobra.Command{
	Use:           "contexta",
	Short:         "Dataset segmentation and retrieval service",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the ingestion workers",
	Long: `Starts the dataset API and the background ingestion workers.

Environment variables:
  STORE_DRIVER      postgres or memory (default: postgres)
  DATABASE_URL      postgres connection string (required for postgres)
  GEMINI_API_KEY    enables semantic query over segments
  WEBHOOK_ENDPOINT  receives dataset status updates
  PORT              listen port (default: 8080)`,
	RunE: runServe,
}

var bootstrapCmd = &cobra.Command{
	Use:   "bootstrap",
	Short: "Create or upgrade the postgres schema and exit",
	RunE:  runBootstrap,
}

func init() {
	rootCmd.AddCommand(serveCmd, bootstrapCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setup() (*config.Config, zerolog.Logger, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, zerolog.Nop(), fmt.Errorf("load config: %w", err)
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})
	return cfg, log, nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}

	// SIGINT/SIGTERM cancel ctx and trigger a graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer application.Close()

	log.Info().Str("store", cfg.StoreDriver).Msg("contexta is running")
	if err := application.Run(ctx); err != nil {
		return err
	}
	log.Info().Msg("shut down cleanly")
	return nil
}

func runBootstrap(cmd *cobra.Command, _ []string) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return fmt.Errorf("bootstrap needs STORE_DRIVER=postgres, got %q", cfg.StoreDriver)
	}

	ctx := cmd.Context()
	conn, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := db.EnsureBootstrapped(ctx, conn, log); err != nil {
		return err
	}
	log.Info().Msg("schema ready")
	return nil
}
