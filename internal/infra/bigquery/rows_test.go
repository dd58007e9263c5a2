package bigquery

import (
	"math/big"
	"testing"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

func TestTaskMetaJSONRoundTrip(t *testing.T) {
	meta := domain.TaskMeta{
		ErrorMessage:           "cannot parse uploaded file",
		DuplicatedTransactions: []string{"2024-03-01_101", "2024-03-02_102"},
	}

	encoded := taskMetaJSON(meta)
	assert.True(t, encoded.Valid)

	// The JSON value comes back from BigQuery as generic maps/slices.
	decoded := taskMetaFromJSON(bigquery.NullJSON{
		JSONVal: map[string]any{
			"errorMessage":           "cannot parse uploaded file",
			"duplicatedTransactions": []any{"2024-03-01_101", "2024-03-02_102"},
		},
		Valid: true,
	})
	assert.Equal(t, meta, decoded)

	assert.False(t, taskMetaJSON(domain.TaskMeta{}).Valid, "empty meta is stored as NULL")
	assert.True(t, taskMetaFromJSON(bigquery.NullJSON{}).IsZero())
}

func TestNullString(t *testing.T) {
	assert.False(t, nullString("").Valid)
	v := nullString("prop-1")
	assert.True(t, v.Valid)
	assert.Equal(t, "prop-1", v.StringVal)
}

func TestTransactionRowToDomain(t *testing.T) {
	created := time.Date(2024, time.March, 10, 9, 0, 0, 0, time.UTC)
	row := &TransactionRow{
		TransactionID:        "tx-1",
		OrganizationID:       "org-1",
		AccountID:            "account-1",
		IntegrationContextID: "actx-1",
		ContractorAccountID:  nullString("contractor-1"),
		Number:               "105",
		TransactionDate:      civil.Date{Year: 2024, Month: time.March, Day: 5},
		IsOutcome:            true,
		Purpose:              "Оплата аренды",
		Amount:               big.NewRat(230050, 100),
		CurrencyCode:         "RUB",
		ImportID:             nullString("2024-03-05_105"),
		ImportRemoteSystem:   nullString(domain.ImportRemoteSystem1C),
		CreatedTS:            created,
	}

	tx := row.toDomain()
	assert.Equal(t, "2300.5", tx.Amount)
	assert.Equal(t, time.Date(2024, time.March, 5, 0, 0, 0, 0, time.UTC), tx.Date)
	assert.Equal(t, "2024-03-05_105", tx.ImportID)
	assert.Equal(t, "contractor-1", tx.ContractorAccountID)
	assert.Empty(t, tx.CostItemID)
}
