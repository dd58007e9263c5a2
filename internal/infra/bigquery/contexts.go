package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

type AccountContextRow struct {
	ContextID      string `bigquery:"context_id"`      // REQUIRED
	IntegrationID  string `bigquery:"integration_id"`  // REQUIRED
	OrganizationID string `bigquery:"organization_id"` // REQUIRED
	Enabled        bool   `bigquery:"enabled"`         // REQUIRED

	Meta bigquery.NullJSON `bigquery:"meta"` // NULLABLE

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
}

func (r *AccountContextRow) toDomain() *domain.AccountContext {
	actx := &domain.AccountContext{
		ID:             r.ContextID,
		IntegrationID:  r.IntegrationID,
		OrganizationID: r.OrganizationID,
		Enabled:        r.Enabled,
		Meta:           metaFromJSON(r.Meta),
		CreatedAt:      r.CreatedTS,
	}
	if r.UpdatedTS.Valid {
		actx.UpdatedAt = r.UpdatedTS.Timestamp
	}
	return actx
}

type OrganizationContextRow struct {
	ContextID      string `bigquery:"context_id"`      // REQUIRED
	IntegrationID  string `bigquery:"integration_id"`  // REQUIRED
	OrganizationID string `bigquery:"organization_id"` // REQUIRED
	Enabled        bool   `bigquery:"enabled"`         // REQUIRED

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

// GetAccountContext retrieves an account context by id. Returns
// (nil, nil) when no such context exists.
func (s *Store) GetAccountContext(ctx context.Context, id string) (*domain.AccountContext, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			context_id,
			integration_id,
			organization_id,
			enabled,
			meta,
			created_ts,
			updated_ts
		FROM %s
		WHERE context_id = @context_id
		LIMIT 1
	`, s.table(accountContextsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "context_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetAccountContext: reading query: %w", err)
	}

	var row AccountContextRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetAccountContext: reading row: %w", err)
	}

	return row.toDomain(), nil
}

// CreateAccountContext inserts a new account context, generating the id
// when empty.
func (s *Store) CreateAccountContext(ctx context.Context, actx *domain.AccountContext) (*domain.AccountContext, error) {
	if actx.ID == "" {
		actx.ID = uuid.NewString()
	}
	if actx.CreatedAt.IsZero() {
		actx.CreatedAt = time.Now()
	}

	q := s.client.Query(fmt.Sprintf(`
		INSERT %s (
			context_id,
			integration_id,
			organization_id,
			enabled,
			meta,
			created_ts
		)
		VALUES (
			@context_id,
			@integration_id,
			@organization_id,
			@enabled,
			@meta,
			@created_ts
		)
	`, s.table(accountContextsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "context_id", Value: actx.ID},
		{Name: "integration_id", Value: actx.IntegrationID},
		{Name: "organization_id", Value: actx.OrganizationID},
		{Name: "enabled", Value: actx.Enabled},
		{Name: "meta", Value: metaJSON(actx.Meta)},
		{Name: "created_ts", Value: actx.CreatedAt},
	}

	if err := s.runDML(ctx, q, "CreateAccountContext"); err != nil {
		return nil, err
	}
	return actx, nil
}

// UpdateAccountContextMeta replaces the context's meta with the latest
// parsed statement header.
func (s *Store) UpdateAccountContextMeta(ctx context.Context, id string, meta map[string]any) error {
	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET meta = @meta,
		    updated_ts = @updated_ts
		WHERE context_id = @context_id
	`, s.table(accountContextsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "meta", Value: metaJSON(meta)},
		{Name: "updated_ts", Value: time.Now()},
		{Name: "context_id", Value: id},
	}

	return s.runDML(ctx, q, "UpdateAccountContextMeta")
}

// FindOrganizationContext looks up the organization's toggle for the
// integration. Returns (nil, nil) when none exists.
func (s *Store) FindOrganizationContext(ctx context.Context, integrationID, organizationID string) (*domain.IntegrationOrganizationContext, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			context_id,
			integration_id,
			organization_id,
			enabled,
			created_ts
		FROM %s
		WHERE integration_id = @integration_id
		  AND organization_id = @organization_id
		LIMIT 1
	`, s.table(organizationContextsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "integration_id", Value: integrationID},
		{Name: "organization_id", Value: organizationID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindOrganizationContext: reading query: %w", err)
	}

	var row OrganizationContextRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindOrganizationContext: reading row: %w", err)
	}

	return &domain.IntegrationOrganizationContext{
		ID:             row.ContextID,
		IntegrationID:  row.IntegrationID,
		OrganizationID: row.OrganizationID,
		Enabled:        row.Enabled,
		CreatedAt:      row.CreatedTS,
	}, nil
}

// CreateOrganizationContext inserts a new organization-level toggle,
// generating the id when empty.
func (s *Store) CreateOrganizationContext(ctx context.Context, octx *domain.IntegrationOrganizationContext) (*domain.IntegrationOrganizationContext, error) {
	if octx.ID == "" {
		octx.ID = uuid.NewString()
	}
	if octx.CreatedAt.IsZero() {
		octx.CreatedAt = time.Now()
	}

	q := s.client.Query(fmt.Sprintf(`
		INSERT %s (
			context_id,
			integration_id,
			organization_id,
			enabled,
			created_ts
		)
		VALUES (
			@context_id,
			@integration_id,
			@organization_id,
			@enabled,
			@created_ts
		)
	`, s.table(organizationContextsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "context_id", Value: octx.ID},
		{Name: "integration_id", Value: octx.IntegrationID},
		{Name: "organization_id", Value: octx.OrganizationID},
		{Name: "enabled", Value: octx.Enabled},
		{Name: "created_ts", Value: octx.CreatedAt},
	}

	if err := s.runDML(ctx, q, "CreateOrganizationContext"); err != nil {
		return nil, err
	}
	return octx, nil
}
