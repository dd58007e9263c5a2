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

type ContractorAccountRow struct {
	ContractorAccountID string `bigquery:"contractor_account_id"` // REQUIRED
	OrganizationID      string `bigquery:"organization_id"`       // REQUIRED

	Name          bigquery.NullString `bigquery:"name"`           // NULLABLE
	Number        string              `bigquery:"number"`         // REQUIRED
	RoutingNumber bigquery.NullString `bigquery:"routing_number"` // NULLABLE
	TIN           bigquery.NullString `bigquery:"tin"`            // NULLABLE
	Country       bigquery.NullString `bigquery:"country"`        // NULLABLE
	CurrencyCode  string              `bigquery:"currency_code"`  // REQUIRED

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

func (r *ContractorAccountRow) toDomain() *domain.ContractorAccount {
	return &domain.ContractorAccount{
		ID:             r.ContractorAccountID,
		OrganizationID: r.OrganizationID,
		Name:           r.Name.StringVal,
		Number:         r.Number,
		RoutingNumber:  r.RoutingNumber.StringVal,
		TIN:            r.TIN.StringVal,
		Country:        r.Country.StringVal,
		CurrencyCode:   r.CurrencyCode,
		CreatedAt:      r.CreatedTS,
	}
}

// FindContractorAccount looks a counterparty up by its natural key
// (organization, number, tax id). Returns (nil, nil) when none exists.
func (s *Store) FindContractorAccount(ctx context.Context, organizationID, number, tin string) (*domain.ContractorAccount, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			contractor_account_id,
			organization_id,
			name,
			number,
			routing_number,
			tin,
			country,
			currency_code,
			created_ts
		FROM %s
		WHERE organization_id = @organization_id
		  AND number = @number
		  AND IFNULL(tin, "") = @tin
		LIMIT 1
	`, s.table(contractorAccountsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "organization_id", Value: organizationID},
		{Name: "number", Value: number},
		{Name: "tin", Value: tin},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindContractorAccount: reading query: %w", err)
	}

	var row ContractorAccountRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindContractorAccount: reading row: %w", err)
	}

	return row.toDomain(), nil
}

// CreateContractorAccount inserts a new counterparty account,
// generating the id when empty.
func (s *Store) CreateContractorAccount(ctx context.Context, ca *domain.ContractorAccount) (*domain.ContractorAccount, error) {
	if ca.ID == "" {
		ca.ID = uuid.NewString()
	}
	if ca.CreatedAt.IsZero() {
		ca.CreatedAt = time.Now()
	}

	q := s.client.Query(fmt.Sprintf(`
		INSERT %s (
			contractor_account_id,
			organization_id,
			name,
			number,
			routing_number,
			tin,
			country,
			currency_code,
			created_ts
		)
		VALUES (
			@contractor_account_id,
			@organization_id,
			@name,
			@number,
			@routing_number,
			@tin,
			@country,
			@currency_code,
			@created_ts
		)
	`, s.table(contractorAccountsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "contractor_account_id", Value: ca.ID},
		{Name: "organization_id", Value: ca.OrganizationID},
		{Name: "name", Value: nullString(ca.Name)},
		{Name: "number", Value: ca.Number},
		{Name: "routing_number", Value: nullString(ca.RoutingNumber)},
		{Name: "tin", Value: nullString(ca.TIN)},
		{Name: "country", Value: nullString(ca.Country)},
		{Name: "currency_code", Value: ca.CurrencyCode},
		{Name: "created_ts", Value: ca.CreatedAt},
	}

	if err := s.runDML(ctx, q, "CreateContractorAccount"); err != nil {
		return nil, err
	}
	return ca, nil
}
