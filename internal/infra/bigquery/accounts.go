package bigquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

type AccountRow struct {
	AccountID      string `bigquery:"account_id"`      // REQUIRED
	OrganizationID string `bigquery:"organization_id"` // REQUIRED

	Number        string              `bigquery:"number"`         // REQUIRED
	RoutingNumber bigquery.NullString `bigquery:"routing_number"` // NULLABLE
	TIN           bigquery.NullString `bigquery:"tin"`            // NULLABLE
	Country       bigquery.NullString `bigquery:"country"`        // NULLABLE
	CurrencyCode  string              `bigquery:"currency_code"`  // REQUIRED

	PropertyID           bigquery.NullString `bigquery:"property_id"`            // NULLABLE
	IntegrationContextID bigquery.NullString `bigquery:"integration_context_id"` // NULLABLE

	Meta bigquery.NullJSON `bigquery:"meta"` // NULLABLE

	CreatedTS time.Time              `bigquery:"created_ts"` // REQUIRED
	UpdatedTS bigquery.NullTimestamp `bigquery:"updated_ts"` // NULLABLE
	DeletedTS bigquery.NullTimestamp `bigquery:"deleted_ts"` // NULLABLE
}

func (r *AccountRow) toDomain() *domain.Account {
	account := &domain.Account{
		ID:                   r.AccountID,
		OrganizationID:       r.OrganizationID,
		Number:               r.Number,
		RoutingNumber:        r.RoutingNumber.StringVal,
		TIN:                  r.TIN.StringVal,
		Country:              r.Country.StringVal,
		CurrencyCode:         r.CurrencyCode,
		PropertyID:           r.PropertyID.StringVal,
		IntegrationContextID: r.IntegrationContextID.StringVal,
		Meta:                 metaFromJSON(r.Meta),
		CreatedAt:            r.CreatedTS,
	}
	if r.UpdatedTS.Valid {
		account.UpdatedAt = r.UpdatedTS.Timestamp
	}
	if r.DeletedTS.Valid {
		deleted := r.DeletedTS.Timestamp
		account.DeletedAt = &deleted
	}
	return account
}

const accountColumns = `
	account_id,
	organization_id,
	number,
	routing_number,
	tin,
	country,
	currency_code,
	property_id,
	integration_context_id,
	meta,
	created_ts,
	updated_ts,
	deleted_ts`

// FindAccountByNumber finds a non-deleted account of the organization
// by account number. Returns (nil, nil) when none exists.
func (s *Store) FindAccountByNumber(ctx context.Context, organizationID, number string) (*domain.Account, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE organization_id = @organization_id
		  AND number = @number
		  AND deleted_ts IS NULL
		LIMIT 1
	`, accountColumns, s.table(accountsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "organization_id", Value: organizationID},
		{Name: "number", Value: number},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindAccountByNumber: reading query: %w", err)
	}

	var row AccountRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindAccountByNumber: reading row: %w", err)
	}

	return row.toDomain(), nil
}

// FindAccountsByProperty lists non-deleted accounts of the organization
// bound to the property, excluding the given account number.
func (s *Store) FindAccountsByProperty(ctx context.Context, organizationID, propertyID, excludeNumber string) ([]*domain.Account, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE organization_id = @organization_id
		  AND property_id = @property_id
		  AND number != @exclude_number
		  AND deleted_ts IS NULL
	`, accountColumns, s.table(accountsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "organization_id", Value: organizationID},
		{Name: "property_id", Value: propertyID},
		{Name: "exclude_number", Value: excludeNumber},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindAccountsByProperty: reading query: %w", err)
	}

	var accounts []*domain.Account
	for {
		var row AccountRow
		err := it.Next(&row)
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("FindAccountsByProperty: iterating: %w", err)
		}
		accounts = append(accounts, row.toDomain())
	}

	return accounts, nil
}

// CreateAccount inserts a new account row, generating the id when
// empty.
func (s *Store) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	if account.CreatedAt.IsZero() {
		account.CreatedAt = time.Now()
	}

	q := s.client.Query(fmt.Sprintf(`
		INSERT %s (
			account_id,
			organization_id,
			number,
			routing_number,
			tin,
			country,
			currency_code,
			property_id,
			integration_context_id,
			meta,
			created_ts
		)
		VALUES (
			@account_id,
			@organization_id,
			@number,
			@routing_number,
			@tin,
			@country,
			@currency_code,
			@property_id,
			@integration_context_id,
			@meta,
			@created_ts
		)
	`, s.table(accountsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: account.ID},
		{Name: "organization_id", Value: account.OrganizationID},
		{Name: "number", Value: account.Number},
		{Name: "routing_number", Value: nullString(account.RoutingNumber)},
		{Name: "tin", Value: nullString(account.TIN)},
		{Name: "country", Value: nullString(account.Country)},
		{Name: "currency_code", Value: account.CurrencyCode},
		{Name: "property_id", Value: nullString(account.PropertyID)},
		{Name: "integration_context_id", Value: nullString(account.IntegrationContextID)},
		{Name: "meta", Value: metaJSON(account.Meta)},
		{Name: "created_ts", Value: account.CreatedAt},
	}

	if err := s.runDML(ctx, q, "CreateAccount"); err != nil {
		return nil, err
	}
	return account, nil
}

// UpdateAccount applies a partial update and returns the fresh row.
func (s *Store) UpdateAccount(ctx context.Context, id string, upd store.AccountUpdate) (*domain.Account, error) {
	assignments := []string{"updated_ts = @updated_ts"}
	params := []bigquery.QueryParameter{
		{Name: "updated_ts", Value: time.Now()},
		{Name: "account_id", Value: id},
	}

	if upd.PropertyID != nil {
		assignments = append(assignments, "property_id = @property_id")
		params = append(params, bigquery.QueryParameter{Name: "property_id", Value: nullString(*upd.PropertyID)})
	}
	if upd.IntegrationContextID != nil {
		assignments = append(assignments, "integration_context_id = @integration_context_id")
		params = append(params, bigquery.QueryParameter{Name: "integration_context_id", Value: nullString(*upd.IntegrationContextID)})
	}
	if upd.Meta != nil {
		assignments = append(assignments, "meta = @meta")
		params = append(params, bigquery.QueryParameter{Name: "meta", Value: metaJSON(upd.Meta)})
	}

	q := s.client.Query(fmt.Sprintf(`
		UPDATE %s
		SET %s
		WHERE account_id = @account_id
	`, s.table(accountsTable), strings.Join(assignments, ",\n		    ")))
	q.Parameters = params

	if err := s.runDML(ctx, q, "UpdateAccount"); err != nil {
		return nil, err
	}

	q = s.client.Query(fmt.Sprintf(`
		SELECT %s
		FROM %s
		WHERE account_id = @account_id
		LIMIT 1
	`, accountColumns, s.table(accountsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "account_id", Value: id},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("UpdateAccount: reading query: %w", err)
	}

	var row AccountRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, fmt.Errorf("UpdateAccount: account %q not found after update", id)
	}
	if err != nil {
		return nil, fmt.Errorf("UpdateAccount: reading row: %w", err)
	}

	return row.toDomain(), nil
}
