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

	"github.com/sungwon/dining-concierge/internal/api"
	"github.com/sungwon/dining-concierge/internal/config"
	"github.com/sungwon/dining-concierge/internal/intake"
	"github.com/sungwon/dining-concierge/internal/logger"
	"github.com/sungwon/dining-concierge/internal/queue"
	"github.com/sungwon/dining-concierge/internal/storage"
)

func main() {
	cfg, err := config.Load("config")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, logCloser := logger.NewFromConfig(cfg.Logging)
	defer logCloser.Close()

	if err := cfg.ValidateIntake(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Info().Msg("starting intake API")

	ctx := context.Background()

	reqQueue, dlq, err := queue.New(ctx, cfg.Queue, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue client")
	}

	deps := api.Deps{
		Lex:   intake.NewHandler(reqQueue, log),
		Queue: reqQueue,
	}
	if dlq != nil {
		deps.DLQ = dlq
	}
	if cfg.Database.URL != "" {
		db, err := storage.Open(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		deps.DB = db
	}

	addr := fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(deps, log),
		ReadTimeout:  cfg.API.ReadTimeout,
		WriteTimeout: cfg.API.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("intake API listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down intake API")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}

	log.Info().Msg("intake API stopped")
}
