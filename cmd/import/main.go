// Command import runs the reconciliation pipeline for a single import
// task and exits. Useful for reprocessing a stuck task by hand.
package main

import (
	"context"
	"flag"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/genai"

	"github.com/dvloznov/bank-reconciler/internal/classify"
	"github.com/dvloznov/bank-reconciler/internal/config"
	infraBQ "github.com/dvloznov/bank-reconciler/internal/infra/bigquery"
	"github.com/dvloznov/bank-reconciler/internal/logger"
	"github.com/dvloznov/bank-reconciler/internal/reconcile"
	"github.com/dvloznov/bank-reconciler/internal/statement"
)

func main() {
	taskID := flag.String("task-id", "", "Import task ID to process (required)")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall run timeout")
	flag.Parse()

	log := logger.New()

	if *taskID == "" {
		log.Fatal().Msg("-task-id flag is required")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	bqStore, err := infraBQ.NewStore(ctx, cfg.GCPProjectID, cfg.BigQueryDataset)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create BigQuery store")
	}
	defer bqStore.Close()

	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create storage client")
	}
	defer storageClient.Close()

	genaiClient, err := genai.NewClient(ctx, &genai.ClientConfig{
		HTTPOptions: genai.HTTPOptions{APIVersion: "v1"},
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}

	var classifier classify.Classifier
	if cfg.ClassifierURL != "" {
		classifier = classify.NewHTTPClassifier(cfg.ClassifierURL)
	}

	pipeline := reconcile.NewPipeline(
		bqStore.Repositories(),
		&statement.AutoSource{
			GCS:  statement.NewGCSSource(storageClient),
			HTTP: statement.NewHTTPSource(),
		},
		statement.NewWin1251Decoder(),
		statement.NewGeminiParser(genaiClient, cfg.GeminiModel),
		classifier,
		reconcile.Options{
			ProgressInterval: cfg.ProgressInterval,
			RowSleep:         cfg.RowSleep,
		},
		log,
	)

	result, err := pipeline.Run(ctx, *taskID)
	if err != nil {
		log.Fatal().Err(err).Str("task_id", *taskID).Msg("Import failed")
	}

	if result.Cancelled {
		log.Info().Str("task_id", *taskID).Msg("Import was cancelled")
		return
	}

	log.Info().
		Str("task_id", *taskID).
		Int("transactions", len(result.Transactions)).
		Msg("Import completed")
}
