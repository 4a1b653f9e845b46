/*
main.go - rosterd entry point

PURPOSE:
  Wires configuration, storage, the coordination services, and the HTTP
  server into the rosterd binary.

COMMANDS:
  rosterd serve   Run the API server (graceful shutdown on SIGINT/SIGTERM)
  rosterd seed    Load a demo roster into the database

GLOBAL FLAGS:
  --config   Path to rosterd.toml (missing file falls back to defaults)

EXAMPLES:
  rosterd serve --config /etc/rosterd.toml
  rosterd seed --config /etc/rosterd.toml

SEE ALSO:
  - config/config.go: File format and defaults
  - api/server.go:    Router configuration
*/
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/warp/roster-engine/api"
	"github.com/warp/roster-engine/config"
	"github.com/warp/roster-engine/roster"
	"github.com/warp/roster-engine/store/sqlite"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "rosterd",
	Short: "Emergency-department roster coordination engine",
	Long: `rosterd guards the duty roster's structural invariants while doctors
request leave and trade assigned duties: leave balances, per-day leave caps,
and atomic two-sided duty exchanges.`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the API server",
	RunE:  runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "rosterd.toml", "Path to configuration file")
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(seedCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildEngine constructs the store, resolver, and services from config.
func buildEngine(cfg config.Config, log *zap.Logger) (*sqlite.Store, *api.Handler, error) {
	store, err := sqlite.New(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}

	loc, err := cfg.Location()
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	resolver := roster.NewResolver(loc)
	resolver.Cutoffs = cfg.Cutoffs()

	leave := roster.NewLeaveService(store, resolver, log)
	leave.Cap = cfg.Scheduling.ConcurrencyCap
	leave.Allotment = cfg.Allotment()

	swap := roster.NewSwapService(store, resolver, log)

	return store, api.NewHandler(store, leave, swap, log), nil
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log, err := zap.NewProduction()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	store, handler, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}
	defer store.Close()

	server := &http.Server{
		Addr:         cfg.Server.Listen,
		Handler:      api.NewRouter(handler, log, cfg.Server.CORSOrigins),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting",
			zap.String("listen", cfg.Server.Listen),
			zap.String("database", cfg.Database.Path))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return fmt.Errorf("server failed: %w", err)
	case sig := <-quit:
		log.Info("shutting down", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	log.Info("server stopped")
	return nil
}
