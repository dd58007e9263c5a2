package reconcile

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/statement"
)

func testLog() zerolog.Logger { return zerolog.Nop() }

// seedBase installs the well-known file-import integration and a test
// organization, the minimum any pipeline run needs.
func seedBase(m *memStore) *domain.Organization {
	m.integrations[domain.FileImportIntegrationID] = &domain.Integration{
		ID:   domain.FileImportIntegrationID,
		Name: "1C file import",
	}
	org := &domain.Organization{ID: "org-1", Name: "Acme LLC", TIN: "7701234567", Country: "RU"}
	m.orgs[org.ID] = org
	return org
}

func seedTask(m *memStore, org *domain.Organization, status domain.TaskStatus) *domain.Task {
	task := &domain.Task{
		Status:         status,
		OrganizationID: org.ID,
		FileURL:        "https://files.example.com/statement.txt",
	}
	created, _ := m.CreateTask(context.Background(), task)
	return created
}

func stmtRow(number string, day int, amount, purpose string) statement.Transaction {
	return statement.Transaction{
		Number:    number,
		Date:      time.Date(2024, time.March, day, 0, 0, 0, 0, time.UTC),
		Amount:    decimal.RequireFromString(amount),
		IsOutcome: true,
		Purpose:   purpose,
	}
}

type fakeSource struct {
	data   []byte
	err    error
	gotURL string
}

func (f *fakeSource) Fetch(ctx context.Context, fileURL string) ([]byte, error) {
	f.gotURL = fileURL
	if f.err != nil {
		return nil, f.err
	}
	return f.data, nil
}

type fakeParser struct {
	statement *statement.Statement
	err       error
	gotText   string
}

func (f *fakeParser) Parse(ctx context.Context, text string) (*statement.Statement, error) {
	f.gotText = text
	if f.err != nil {
		return nil, f.err
	}
	return f.statement, nil
}

type classifierFunc func(ctx context.Context, purpose string, isOutcome bool) (*domain.CostItem, error)

func (f classifierFunc) Classify(ctx context.Context, purpose string, isOutcome bool) (*domain.CostItem, error) {
	return f(ctx, purpose, isOutcome)
}
