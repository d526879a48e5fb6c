/*
main.go - Application entry point

PURPOSE:
  Initializes and starts the COC engine HTTP server. Handles
  configuration, dependency wiring, the startup recovery scan, and
  graceful shutdown.

STARTUP SEQUENCE:
  1. Load .env (if present) and read environment
  2. Open the SQLite document store
  3. Build the engine and run the recovery scan
  4. Configure the router
  5. Serve until SIGINT/SIGTERM, then drain (30s timeout)

ENVIRONMENT:
  PORT            HTTP server port (default: 8080)
  COC_DB          SQLite database path (default: coc.db, ":memory:" for tests)
  LOG_LEVEL       zerolog level (default: info)
  SWEEP_INTERVAL  expiration sweep interval (default: 1h)
  SWEEP_ENABLED   set to "false" to disable the background sweep

EXAMPLES:
  COC_DB=./data/coc.db PORT=3000 ./server

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite:  Document store implementation
*/
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/govhr/coc-engine/api"
	"github.com/govhr/coc-engine/coc"
	"github.com/govhr/coc-engine/store/sqlite"
)

func main() {
	_ = godotenv.Load()

	level, err := zerolog.ParseLevel(envOr("LOG_LEVEL", "info"))
	if err != nil {
		level = zerolog.InfoLevel
	}
	log := zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()

	store, err := sqlite.New(envOr("COC_DB", "coc.db"))
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open database")
	}
	defer store.Close()

	engine := coc.New(store, coc.WithLogger(log))

	report, err := engine.Recover(context.Background())
	if err != nil {
		log.Fatal().Err(err).Msg("recovery scan failed")
	}
	log.Info().
		Int("intentsCompleted", report.IntentsCompleted).
		Int("intentsRolledBack", report.IntentsRolledBack).
		Int("logsReverted", report.LogsReverted).
		Int("locksDropped", report.LocksDropped).
		Msg("recovery scan done")

	handler := api.NewHandler(engine, log)
	router := api.NewRouter(handler)

	scheduler := api.NewSweepScheduler(engine, log)
	if interval, err := time.ParseDuration(envOr("SWEEP_INTERVAL", "1h")); err == nil {
		scheduler.Interval = interval
	}
	scheduler.Enabled = envOr("SWEEP_ENABLED", "true") != "false"
	scheduler.Start()
	defer scheduler.Stop()

	server := &http.Server{
		Addr:         ":" + envOr("PORT", "8080"),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
