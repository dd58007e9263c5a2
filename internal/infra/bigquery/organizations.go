package bigquery

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

type IntegrationRow struct {
	IntegrationID string `bigquery:"integration_id"` // REQUIRED
	Name          string `bigquery:"name"`           // REQUIRED
}

type OrganizationRow struct {
	OrganizationID string              `bigquery:"organization_id"` // REQUIRED
	Name           string              `bigquery:"name"`            // REQUIRED
	TIN            bigquery.NullString `bigquery:"tin"`             // NULLABLE
	Country        bigquery.NullString `bigquery:"country"`         // NULLABLE
}

// GetIntegration retrieves an integration by id. Returns (nil, nil)
// when no such integration exists.
func (s *Store) GetIntegration(ctx context.Context, id string) (*domain.Integration, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			integration_id,
			name
		FROM %s
		WHERE integration_id = @integration_id
		LIMIT 1
	`, s.table(integrationsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "integration_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetIntegration: reading query: %w", err)
	}

	var row IntegrationRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetIntegration: reading row: %w", err)
	}

	return &domain.Integration{ID: row.IntegrationID, Name: row.Name}, nil
}

// GetOrganization retrieves an organization by id. Returns (nil, nil)
// when no such organization exists.
func (s *Store) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			organization_id,
			name,
			tin,
			country
		FROM %s
		WHERE organization_id = @organization_id
		LIMIT 1
	`, s.table(organizationsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "organization_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("GetOrganization: reading query: %w", err)
	}

	var row OrganizationRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("GetOrganization: reading row: %w", err)
	}

	return &domain.Organization{
		ID:      row.OrganizationID,
		Name:    row.Name,
		TIN:     row.TIN.StringVal,
		Country: row.Country.StringVal,
	}, nil
}
