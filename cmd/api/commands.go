package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mcclellann/milkrun/pkg/config"
	"github.com/mcclellann/milkrun/pkg/ledger"
	"github.com/mcclellann/milkrun/pkg/logger"
	"github.com/mcclellann/milkrun/pkg/models"
	"github.com/mcclellann/milkrun/pkg/store"
	"github.com/spf13/cobra"
)

var version = "1.0.0"

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "milkrun",
	Short: "Billing and payment ledger for milk delivery rounds",
	Long: `milkrun records daily milk deliveries per customer, turns them into
monthly bills and tracks the payments posted against those bills.

Configuration is read from the environment (and a .env file if present):
  DB_DRIVER        - sqlite (default) or postgres
  DB_PATH          - SQLite database file
  DATABASE_URL     - PostgreSQL connection URL
  HTTP_ADDR        - listen address for serve
  GENERATE_WORKERS - customers billed in parallel`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		cfg = loaded
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE:  runServe,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := openStore(cmd.Context())
		if err != nil {
			return err
		}
		defer s.Close()

		log := logger.WithComponent("migrate")
		log.Info().Str("driver", cfg.DBDriver).Msg("Database is up to date")
		return nil
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate or refresh the bills for a month",
	Example: `  # Bills for March 2024
  milkrun generate --month 2024-03`,
	RunE: runGenerate,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd, generateCmd)

	generateCmd.Flags().String("month", "", "Billing month (format: YYYY-MM, default: current month)")
}

func Execute() {
	log := logger.WithComponent("cmd")

	if err := rootCmd.Execute(); err != nil {
		log.Error().
			Err(err).
			Msg("Command execution failed")
		fmt.Fprintf(os.Stderr, "Error executing command: %v\n", err)
		os.Exit(1)
	}
}

func openStore(ctx context.Context) (store.Storage, error) {
	s, err := store.Open(ctx, cfg.DBDriver, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.DBDriver, err)
	}
	return s, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	server := NewServer(s, ledger.WithWorkers(cfg.GenerateWorkers))
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("driver", cfg.DBDriver).Msg("Server starting")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}

func runGenerate(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("generate")

	monthStr, _ := cmd.Flags().GetString("month")
	period := models.PeriodOf(time.Now())
	if monthStr != "" {
		parsed, err := models.ParsePeriod(monthStr)
		if err != nil {
			return fmt.Errorf("invalid month format. Use YYYY-MM: %w", err)
		}
		period = parsed
	}

	s, err := openStore(cmd.Context())
	if err != nil {
		return err
	}
	defer s.Close()

	l := ledger.NewLedger(s, ledger.WithWorkers(cfg.GenerateWorkers))
	result, err := l.GenerateBills(cmd.Context(), period)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if err := enc.Encode(result); err != nil {
		return err
	}

	if err := result.Err(); err != nil {
		log.Warn().Int("failed", len(result.Failures)).Msg("Some bills were not generated")
		return err
	}
	return nil
}
