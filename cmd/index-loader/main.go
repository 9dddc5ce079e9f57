package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sungwon/dining-concierge/internal/config"
	"github.com/sungwon/dining-concierge/internal/logger"
	"github.com/sungwon/dining-concierge/internal/search"
	"github.com/sungwon/dining-concierge/internal/seed"
)

const bulkChunkSize = 500

func main() {
	source := flag.String("source", "restaurants.csv", "CSV export to index: a local path or s3://bucket/key")
	configDir := flag.String("config", "config", "directory containing config.yaml")
	envFile := flag.String("env-file", ".env", "dotenv file loaded before configuration; missing files are ignored")
	region := flag.String("s3-region", "", "AWS region for s3:// sources (default: AWS credential chain)")
	s3Endpoint := flag.String("s3-endpoint", "", "S3-compatible endpoint for s3:// sources")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "failed to load %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, logCloser := logger.NewFromConfig(cfg.Logging)
	defer logCloser.Close()

	if err := cfg.ValidateLoader(); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opener := seed.NewOpener(nil)
	if strings.HasPrefix(*source, "s3://") {
		client, err := seed.NewS3Client(ctx, *region, *s3Endpoint)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create s3 client")
		}
		opener = seed.NewOpener(client)
	}

	rc, err := opener.Open(ctx, *source)
	if err != nil {
		log.Fatal().Err(err).Str("source", *source).Msg("failed to open source")
	}
	docs, skipped, err := seed.ReadDocuments(rc)
	rc.Close()
	if err != nil {
		log.Fatal().Err(err).Str("source", *source).Msg("failed to read source")
	}
	log.Info().Int("documents", len(docs)).Int("skipped", skipped).Str("source", *source).Msg("source read")

	indexer, err := search.NewIndexer(cfg.Search, nil)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create indexer")
	}
	if err := indexer.EnsureIndex(ctx); err != nil {
		log.Fatal().Err(err).Str("index", cfg.Search.Index).Msg("failed to ensure index")
	}

	total := 0
	for i, chunk := range seed.Chunk(docs, bulkChunkSize) {
		n, err := indexer.BulkIndex(ctx, chunk)
		total += n
		if err != nil {
			log.Fatal().Err(err).Int("chunk", i).Int("indexed", total).Msg("bulk index failed")
		}
		log.Debug().Int("chunk", i).Int("indexed", n).Int("size", len(chunk)).Msg("chunk indexed")
	}

	fmt.Printf("Successfully indexed %d restaurants\n", total)
}
