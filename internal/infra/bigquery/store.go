// Package bigquery implements the persistence interfaces of
// internal/store on Google BigQuery. All entity tables live in one
// dataset. Mutable entities run parameterized DML so rows stay
// updatable; immutable transactions stream through the table inserter.
package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"

	"github.com/dvloznov/bank-reconciler/internal/store"
)

const (
	tasksTable                = "import_tasks"
	integrationsTable         = "integrations"
	organizationsTable        = "organizations"
	accountsTable             = "accounts"
	accountContextsTable      = "account_contexts"
	organizationContextsTable = "integration_organization_contexts"
	contractorAccountsTable   = "contractor_accounts"
	transactionsTable         = "transactions"
)

// Store holds a shared BigQuery client and implements every repository
// interface of internal/store against one dataset.
type Store struct {
	client    *bigquery.Client
	projectID string
	datasetID string
}

// NewStore creates a store with its own BigQuery client.
func NewStore(ctx context.Context, projectID, datasetID string) (*Store, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewStore: creating client: %w", err)
	}
	return NewStoreWithClient(client, projectID, datasetID), nil
}

// NewStoreWithClient creates a store over an existing BigQuery client.
// The caller keeps ownership of the client.
func NewStoreWithClient(client *bigquery.Client, projectID, datasetID string) *Store {
	return &Store{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
	}
}

// Close closes the underlying BigQuery client connection.
func (s *Store) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Repositories exposes the store through the interface aggregate the
// pipeline consumes.
func (s *Store) Repositories() *store.Store {
	return &store.Store{
		Tasks:                s,
		Integrations:         s,
		Organizations:        s,
		Accounts:             s,
		AccountContexts:      s,
		OrganizationContexts: s,
		ContractorAccounts:   s,
		Transactions:         s,
	}
}

// table returns the fully qualified, backquoted table name for use in
// query text.
func (s *Store) table(name string) string {
	return fmt.Sprintf("`%s.%s.%s`", s.projectID, s.datasetID, name)
}

// runDML executes a mutation query and waits for the job to finish.
func (s *Store) runDML(ctx context.Context, q *bigquery.Query, op string) error {
	job, err := q.Run(ctx)
	if err != nil {
		return fmt.Errorf("%s: running query: %w", op, err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("%s: waiting for job: %w", op, err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("%s: job error: %w", op, err)
	}
	return nil
}

func nullString(s string) bigquery.NullString {
	return bigquery.NullString{StringVal: s, Valid: s != ""}
}

func metaJSON(meta map[string]any) bigquery.NullJSON {
	if len(meta) == 0 {
		return bigquery.NullJSON{}
	}
	return bigquery.NullJSON{JSONVal: meta, Valid: true}
}

func metaFromJSON(v bigquery.NullJSON) map[string]any {
	if !v.Valid {
		return nil
	}
	if m, ok := v.JSONVal.(map[string]any); ok {
		return m
	}
	return nil
}
