// Command api serves the statement import HTTP API and runs the job
// consumer in the same process, so a single binary covers the common
// deployment.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/genai"

	"github.com/dvloznov/bank-reconciler/internal/api/handlers"
	"github.com/dvloznov/bank-reconciler/internal/api/middleware"
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
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	var (
		port   = flag.String("port", cfg.HTTPPort, "HTTP server port")
		bucket = flag.String("bucket", cfg.GCSBucket, "GCS bucket for uploaded statement files (or set GCS_BUCKET env)")
	)
	flag.Parse()

	log := logger.New()

	if *bucket == "" {
		log.Warn().Msg("No GCS bucket configured - statement uploads will be disabled")
	}

	ctx := context.Background()

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
	} else {
		log.Warn().Msg("No classifier endpoint configured - transactions will be imported without cost items")
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

	// Job infrastructure. In-process for now; a queue service would slot
	// in behind the same Publisher/Consumer interfaces.
	jobStore := inmemory.NewStore()
	jobQueue := inmemory.NewQueue(100, 2, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job jobs.Job) error {
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
				// Already recorded on the task; retrying cannot fix the
				// input, so the job itself is done.
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

	go func() {
		log.Info().Msg("Starting job consumer")
		if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
			log.Error().Err(err).Msg("Job consumer stopped with error")
		}
	}()

	importsHandler := handlers.NewImportsHandler(bqStore.Repositories().Tasks, jobQueue, *bucket, log)
	jobsHandler := handlers.NewJobsHandler(jobStore, log)

	mux := http.NewServeMux()

	mux.HandleFunc("/api/imports", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			importsHandler.CreateImport(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/imports/upload", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			importsHandler.UploadStatement(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/imports/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/api/imports/")
		switch {
		case r.Method == http.MethodPost && strings.HasSuffix(rest, "/cancel"):
			taskID := strings.TrimSuffix(rest, "/cancel")
			if taskID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Task ID is required")
				return
			}
			importsHandler.CancelImport(w, r, taskID)
		case r.Method == http.MethodGet:
			if rest == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Task ID is required")
				return
			}
			importsHandler.GetImport(w, r, rest)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsHandler.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
			if jobID == "" {
				middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
				return
			}
			jobsHandler.GetJob(w, r, jobID)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	handler := middleware.Recovery(log)(
		middleware.Logger(log)(
			middleware.RequestID(
				middleware.CORS(mux),
			),
		),
	)

	server := &http.Server{
		Addr:         ":" + *port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", *port).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	cancelWorker()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}

	if err := jobQueue.Close(); err != nil {
		log.Error().Err(err).Msg("Failed to close job queue")
	}

	log.Info().Msg("Server exited")
}
