package bigquery

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

type TransactionRow struct {
	TransactionID  string `bigquery:"transaction_id"`  // REQUIRED
	OrganizationID string `bigquery:"organization_id"` // REQUIRED

	AccountID            string              `bigquery:"account_id"`             // REQUIRED
	IntegrationContextID string              `bigquery:"integration_context_id"` // REQUIRED
	ContractorAccountID  bigquery.NullString `bigquery:"contractor_account_id"`  // NULLABLE
	CostItemID           bigquery.NullString `bigquery:"cost_item_id"`           // NULLABLE

	Number          string     `bigquery:"number"`           // REQUIRED
	TransactionDate civil.Date `bigquery:"transaction_date"` // REQUIRED
	IsOutcome       bool       `bigquery:"is_outcome"`       // REQUIRED
	Purpose         string     `bigquery:"purpose"`          // NULLABLE

	Amount       *big.Rat `bigquery:"amount"`        // REQUIRED NUMERIC
	CurrencyCode string   `bigquery:"currency_code"` // REQUIRED

	ImportID           bigquery.NullString `bigquery:"import_id"`            // NULLABLE
	ImportRemoteSystem bigquery.NullString `bigquery:"import_remote_system"` // NULLABLE

	Meta bigquery.NullJSON `bigquery:"meta"` // NULLABLE

	CreatedTS time.Time `bigquery:"created_ts"` // REQUIRED
}

func (r *TransactionRow) toDomain() *domain.Transaction {
	amount := ""
	if r.Amount != nil {
		amount = decimal.NewFromBigRat(r.Amount, 9).String()
	}
	return &domain.Transaction{
		ID:                   r.TransactionID,
		OrganizationID:       r.OrganizationID,
		AccountID:            r.AccountID,
		IntegrationContextID: r.IntegrationContextID,
		ContractorAccountID:  r.ContractorAccountID.StringVal,
		CostItemID:           r.CostItemID.StringVal,
		Number:               r.Number,
		Date:                 r.TransactionDate.In(time.UTC),
		IsOutcome:            r.IsOutcome,
		Purpose:              r.Purpose,
		Amount:               amount,
		CurrencyCode:         r.CurrencyCode,
		ImportID:             r.ImportID.StringVal,
		ImportRemoteSystem:   r.ImportRemoteSystem.StringVal,
		Meta:                 metaFromJSON(r.Meta),
		CreatedAt:            r.CreatedTS,
	}
}

// FindTransactionByImportID looks a transaction up by the
// (organization, import id) dedup key. Returns (nil, nil) when no
// transaction with that key was ever imported.
func (s *Store) FindTransactionByImportID(ctx context.Context, organizationID, importID string) (*domain.Transaction, error) {
	q := s.client.Query(fmt.Sprintf(`
		SELECT
			transaction_id,
			organization_id,
			account_id,
			integration_context_id,
			contractor_account_id,
			cost_item_id,
			number,
			transaction_date,
			is_outcome,
			purpose,
			amount,
			currency_code,
			import_id,
			import_remote_system,
			meta,
			created_ts
		FROM %s
		WHERE organization_id = @organization_id
		  AND import_id = @import_id
		LIMIT 1
	`, s.table(transactionsTable)))
	q.Parameters = []bigquery.QueryParameter{
		{Name: "organization_id", Value: organizationID},
		{Name: "import_id", Value: importID},
	}

	it, err := q.Read(ctx)
	if err != nil {
		return nil, fmt.Errorf("FindTransactionByImportID: reading query: %w", err)
	}

	var row TransactionRow
	err = it.Next(&row)
	if err == iterator.Done {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("FindTransactionByImportID: reading row: %w", err)
	}

	return row.toDomain(), nil
}

// CreateTransaction streams a new transaction row through the table
// inserter. Transactions are immutable once written, so the streaming
// buffer's no-update restriction never bites.
func (s *Store) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	if tx.ID == "" {
		tx.ID = uuid.NewString()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}

	amount, err := decimal.NewFromString(tx.Amount)
	if err != nil {
		return nil, fmt.Errorf("CreateTransaction: invalid amount %q: %w", tx.Amount, err)
	}

	row := &TransactionRow{
		TransactionID:        tx.ID,
		OrganizationID:       tx.OrganizationID,
		AccountID:            tx.AccountID,
		IntegrationContextID: tx.IntegrationContextID,
		ContractorAccountID:  nullString(tx.ContractorAccountID),
		CostItemID:           nullString(tx.CostItemID),
		Number:               tx.Number,
		TransactionDate:      civil.DateOf(tx.Date),
		IsOutcome:            tx.IsOutcome,
		Purpose:              tx.Purpose,
		Amount:               amount.Rat(),
		CurrencyCode:         tx.CurrencyCode,
		ImportID:             nullString(tx.ImportID),
		ImportRemoteSystem:   nullString(tx.ImportRemoteSystem),
		Meta:                 metaJSON(tx.Meta),
		CreatedTS:            tx.CreatedAt,
	}

	table := s.client.DatasetInProject(s.projectID, s.datasetID).Table(transactionsTable)
	if err := table.Inserter().Put(ctx, row); err != nil {
		return nil, fmt.Errorf("CreateTransaction: inserting row: %w", err)
	}

	return tx, nil
}
