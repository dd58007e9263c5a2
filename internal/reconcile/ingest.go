package reconcile

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-reconciler/internal/classify"
	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/statement"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// DefaultRowSleep is the cooperative pacing delay between statement
// rows, to offload shared infrastructure when processing many
// thousands of records.
const DefaultRowSleep = 200 * time.Millisecond

// IngestResult is the outcome of one ingest loop.
type IngestResult struct {
	Created    []*domain.Transaction
	Duplicates []string
	// Cancelled is set when the task status was externally flipped away
	// from processing; everything created so far stays committed.
	Cancelled bool
}

// TransactionIngestor walks parsed statement rows in file order:
// deduplicates by import id, classifies the purpose (best effort),
// resolves counterparties and persists new transactions.
type TransactionIngestor struct {
	store      *store.Store
	classifier classify.Classifier
	rowSleep   time.Duration
	log        zerolog.Logger
}

// NewTransactionIngestor creates an ingestor. A non-positive rowSleep
// falls back to DefaultRowSleep.
func NewTransactionIngestor(s *store.Store, classifier classify.Classifier, rowSleep time.Duration, log zerolog.Logger) *TransactionIngestor {
	if rowSleep <= 0 {
		rowSleep = DefaultRowSleep
	}
	if classifier == nil {
		classifier = classify.Noop{}
	}
	return &TransactionIngestor{
		store:      s,
		classifier: classifier,
		rowSleep:   rowSleep,
		log:        log,
	}
}

// Ingest processes rows sequentially under the controller's
// cancellation and progress supervision. Per-row business conditions
// (duplicates, classification failures) never abort the loop; storage
// failures do.
func (in *TransactionIngestor) Ingest(
	ctx context.Context,
	ctl *TaskController,
	org *domain.Organization,
	account *domain.Account,
	accountCtx *domain.AccountContext,
	rows []statement.Transaction,
) (*IngestResult, error) {
	result := &IngestResult{}

	for i, row := range rows {
		// Cancellation is polled before any write for this row. A row
		// already in flight still commits; that is harmless because
		// every write is idempotent under the import id.
		if !ctl.StillProcessing(ctx) {
			result.Cancelled = true
			return result, nil
		}

		importID := FormatImportID(row.Date, row.Number)

		existing, err := in.store.Transactions.FindTransactionByImportID(ctx, org.ID, importID)
		if err != nil {
			return nil, fmt.Errorf("Ingest: find transaction %q: %w", importID, err)
		}
		if existing != nil {
			result.Duplicates = append(result.Duplicates, importID)
			continue
		}

		var costItemID string
		costItem, err := in.classifier.Classify(ctx, row.Purpose, row.IsOutcome)
		if err != nil {
			in.log.Error().Err(err).Str("import_id", importID).Msg("Can't get cost item from classification service")
		} else if costItem != nil {
			costItemID = costItem.ID
		}

		var contractorID string
		if row.ContractorAccount != nil {
			contractorID, err = in.resolveContractor(ctx, org, row.ContractorAccount)
			if err != nil {
				return nil, fmt.Errorf("Ingest: resolve contractor for %q: %w", importID, err)
			}
		}

		tx := &domain.Transaction{
			OrganizationID:       org.ID,
			AccountID:            account.ID,
			IntegrationContextID: accountCtx.ID,
			ContractorAccountID:  contractorID,
			CostItemID:           costItemID,
			Number:               row.Number,
			Date:                 row.Date,
			IsOutcome:            row.IsOutcome,
			Purpose:              row.Purpose,
			Amount:               row.Amount.String(),
			CurrencyCode:         domain.DefaultCurrencyCode,
			ImportID:             importID,
			ImportRemoteSystem:   domain.ImportRemoteSystem1C,
			Meta:                 row.Meta,
		}
		created, err := in.store.Transactions.CreateTransaction(ctx, tx)
		if err != nil {
			return nil, fmt.Errorf("Ingest: create transaction %q: %w", importID, err)
		}
		result.Created = append(result.Created, created)

		ctl.ReportProgress(ctx, i)

		if err := sleepCtx(ctx, in.rowSleep); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (in *TransactionIngestor) resolveContractor(ctx context.Context, org *domain.Organization, ca *statement.ContractorAccount) (string, error) {
	existing, err := in.store.ContractorAccounts.FindContractorAccount(ctx, org.ID, ca.Number, ca.TIN)
	if err != nil {
		return "", fmt.Errorf("find contractor account: %w", err)
	}
	if existing != nil {
		return existing.ID, nil
	}

	created, err := in.store.ContractorAccounts.CreateContractorAccount(ctx, &domain.ContractorAccount{
		OrganizationID: org.ID,
		Name:           ca.Name,
		Number:         ca.Number,
		RoutingNumber:  ca.RoutingNumber,
		TIN:            ca.TIN,
		Country:        org.Country,
		CurrencyCode:   domain.DefaultCurrencyCode,
	})
	if err != nil {
		return "", fmt.Errorf("create contractor account: %w", err)
	}
	return created.ID, nil
}

// sleepCtx waits for the pacing delay, honoring context cancellation.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
