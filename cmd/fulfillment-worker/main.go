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

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sungwon/dining-concierge/internal/config"
	"github.com/sungwon/dining-concierge/internal/fulfillment"
	"github.com/sungwon/dining-concierge/internal/logger"
	"github.com/sungwon/dining-concierge/internal/notify"
	"github.com/sungwon/dining-concierge/internal/queue"
	"github.com/sungwon/dining-concierge/internal/records"
	"github.com/sungwon/dining-concierge/internal/search"
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

	if err := cfg.ValidateWorker(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	log.Info().Msg("starting fulfillment worker")

	ctx := context.Background()

	// The database is optional: it backs the ledger and the postgres
	// records backend.
	var db *storage.DB
	if cfg.Database.URL != "" {
		db, err = storage.Open(ctx, cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("database connection established")
	}

	reqQueue, dlq, err := queue.New(ctx, cfg.Queue, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create queue client")
	}

	searchClient, err := search.NewClient(cfg.Search, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create search client")
	}

	var rowQuerier records.RowQuerier
	if db != nil {
		rowQuerier = db.Pool
	}
	store, closeStore, err := records.NewStore(ctx, cfg, rowQuerier, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create record store")
	}
	defer closeStore()

	sender, err := notify.New(ctx, cfg.Notify, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create notification sender")
	}

	deps := fulfillment.Deps{
		Queue:   reqQueue,
		Search:  searchClient,
		Records: records.NewResolver(store, log),
		Sender:  sender,
	}
	if dlq != nil {
		deps.DLQ = dlq
	}
	if db != nil {
		deps.Ledger = storage.NewLedger(db.Pool)
	}

	worker, err := fulfillment.New(deps, fulfillment.OptionsFromConfig(cfg.Queue), log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create fulfillment worker")
	}

	metricsSrv := &http.Server{
		Addr:              cfg.Metrics.Addr,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.Metrics.Addr).Msg("metrics server listening")
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server error")
		}
	}()

	if err := worker.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start fulfillment worker")
	}
	log.Info().
		Str("queue_url", cfg.Queue.URL).
		Bool("dlq", dlq != nil).
		Bool("ledger", db != nil).
		Str("records_backend", cfg.Records.Backend).
		Str("cache", cfg.Cache.Type).
		Str("notify_provider", cfg.Notify.Provider).
		Msg("fulfillment worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	log.Info().Str("signal", sig.String()).Msg("shutting down fulfillment worker")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Queue.ShutdownTimeout+5*time.Second)
	defer cancel()

	if err := worker.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("fulfillment worker did not stop cleanly")
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("metrics server forced to shutdown")
	}

	log.Info().Msg("fulfillment worker stopped")
}
