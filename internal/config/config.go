// Package config loads service configuration from the environment,
// optionally seeded from a .env file in the working directory.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds everything the binaries need to wire the pipeline.
type Config struct {
	// GCPProjectID is the project hosting the BigQuery dataset and the
	// statement bucket.
	GCPProjectID string `env:"GCP_PROJECT_ID"`
	// BigQueryDataset contains the entity tables.
	BigQueryDataset string `env:"BIGQUERY_DATASET" envDefault:"banking"`
	// GCSBucket is where uploaded statement files live.
	GCSBucket string `env:"GCS_BUCKET"`

	// ClassifierURL is the endpoint of the transaction classification
	// service. Empty disables classification (rows are imported with no
	// cost item).
	ClassifierURL string `env:"CLASSIFIER_URL"`

	// GeminiModel is the model used by the statement parser adapter.
	GeminiModel string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash"`

	// ProgressInterval bounds how often the task's processedCount is
	// written back during the ingest loop.
	ProgressInterval time.Duration `env:"TASK_PROGRESS_UPDATE_INTERVAL" envDefault:"10s"`
	// RowSleep is the cooperative pacing delay between transaction
	// rows, to offload shared infrastructure on large files.
	RowSleep time.Duration `env:"WORKER_BATCH_OPERATIONS_SLEEP_TIMEOUT" envDefault:"200ms"`

	// HTTPPort is used by cmd/api.
	HTTPPort string `env:"PORT" envDefault:"8080"`
}

// Load reads the .env file if present and binds environment variables.
func Load() (*Config, error) {
	// Missing .env is fine; real deployments set variables directly.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}
	return cfg, nil
}
