// Command worker runs the statement import consumer on its own, for
// deployments where the queue is backed by an external broker instead
// of the in-process channel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/genai"

	"github.com/dvloznov/bank-reconciler/internal/classify"
	"github.com/dvloznov/bank-reconciler/internal/config"
	infraBQ "github.com/dvloznov/bank-reconciler/internal/infra/bigquery"
	"github.com/dvloznov/bank-reconciler/internal/jobs"
	"github.com/dvloznov/bank-reconciler/internal/jobs/inmemory"
	"github.com/dvloznov/bank-reconciler/internal/logger"
	"github.com/dvloznov/bank-reconciler/internal/reconcile"
	"github.com/dvloznov/bank-reconciler/internal/statement"
)

func main() {
	log := logger.New()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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
		logger.Named(log, "pipeline"),
	)

	// The in-memory queue only sees jobs published in this process; an
	// external broker would be wired in behind the same interfaces.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 2, jobStore)

	log.Info().Msg("Starting worker service")

	handler := func(ctx context.Context, job jobs.Job) error {
		importJob, ok := job.(*jobs.ImportStatementJob)
		if !ok {
			return fmt.Errorf("unexpected job type: %T", job)
		}

		log.Info().
			Str("job_id", importJob.JobID).
			Str("task_id", importJob.TaskID).
			Msg("Processing import job")

		result, err := pipeline.Run(ctx, importJob.TaskID)
		if err != nil {
			if reconcile.IsInputError(err) {
				log.Warn().
					Err(err).
					Str("task_id", importJob.TaskID).
					Msg("Import rejected due to bad input")
				return nil
			}
			log.Error().
				Err(err).
				Str("task_id", importJob.TaskID).
				Msg("Import failed")
			return err
		}

		if result.Cancelled {
			log.Info().Str("task_id", importJob.TaskID).Msg("Import cancelled")
			return nil
		}

		log.Info().
			Str("task_id", importJob.TaskID).
			Int("transactions", len(result.Transactions)).
			Msg("Import completed")
		return nil
	}

	if err := jobQueue.Start(ctx, handler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job consumer")
	}

	log.Info().Msg("Worker service started, waiting for jobs...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down worker service...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error during graceful shutdown")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Worker service exited")
}
