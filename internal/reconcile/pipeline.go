package reconcile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-reconciler/internal/classify"
	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/statement"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// Options tunes the run-time behavior of a Pipeline.
type Options struct {
	// ProgressInterval throttles processedCount writes (default 10s).
	ProgressInterval time.Duration
	// RowSleep is the pacing delay between statement rows (default 200ms).
	RowSleep time.Duration
}

// Result is what a successful (or cancelled) run returns to a
// synchronous caller.
type Result struct {
	Account            *domain.Account
	IntegrationContext *domain.AccountContext
	Transactions       []*domain.Transaction
	// Cancelled is set when the run stopped because the task status was
	// changed externally; the task is left untouched in that status.
	Cancelled bool
}

// Pipeline drives one import task end to end: load task, fetch and
// parse the statement file, resolve the account, ingest transactions
// and finalize the task status.
//
// Error policy: configuration errors (missing task, missing well-known
// integration record) propagate to the caller without touching the
// task; input errors (unparseable file, disabled/conflicting contexts,
// duplicates-only import) mark the task as errored and then propagate;
// cancellation is not an error and returns a Result with Cancelled set.
type Pipeline struct {
	store      *store.Store
	source     statement.Source
	decoder    statement.Decoder
	parser     statement.Parser
	classifier classify.Classifier
	opts       Options
	log        zerolog.Logger
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(
	s *store.Store,
	source statement.Source,
	decoder statement.Decoder,
	parser statement.Parser,
	classifier classify.Classifier,
	opts Options,
	log zerolog.Logger,
) *Pipeline {
	return &Pipeline{
		store:      s,
		source:     source,
		decoder:    decoder,
		parser:     parser,
		classifier: classifier,
		opts:       opts,
		log:        log,
	}
}

// Run executes the import for the given task id.
func (p *Pipeline) Run(ctx context.Context, taskID string) (*Result, error) {
	if taskID == "" {
		return nil, fmt.Errorf("Run: task id is required")
	}
	log := p.log.With().Str("task_id", taskID).Logger()

	task, err := p.store.Tasks.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("Run: get task: %w", err)
	}
	if task == nil {
		return nil, fmt.Errorf("Run: cannot find import task by id %q", taskID)
	}
	if task.Status != domain.TaskStatusQueued && task.Status != domain.TaskStatusProcessing {
		log.Info().Str("status", string(task.Status)).Msg("Task is not runnable, skipping")
		return &Result{Cancelled: true}, nil
	}

	integration, err := p.store.Integrations.GetIntegration(ctx, domain.FileImportIntegrationID)
	if err != nil {
		return nil, fmt.Errorf("Run: get integration: %w", err)
	}
	if integration == nil {
		// A system misconfiguration, not a wrong input: the record for
		// the file-import integration must be pre-seeded in the store.
		return nil, fmt.Errorf("Run: cannot find Integration with id %q corresponding to import from file in %q format; the record must be present in the database",
			domain.FileImportIntegrationID, domain.ImportRemoteSystem1C)
	}

	org, err := p.store.Organizations.GetOrganization(ctx, task.OrganizationID)
	if err != nil {
		return nil, fmt.Errorf("Run: get organization: %w", err)
	}
	if org == nil {
		return nil, fmt.Errorf("Run: cannot find Organization by id %q", task.OrganizationID)
	}

	ctl := NewTaskController(p.store.Tasks, task.ID, p.opts.ProgressInterval, log)

	data, err := p.source.Fetch(ctx, task.FileURL)
	if err != nil {
		return nil, ctl.Fail(ctx, err, nil)
	}

	text, err := p.decoder.Decode(data)
	if err != nil {
		return nil, ctl.Fail(ctx, fmt.Errorf("cannot parse uploaded file in %s format: %w", domain.ImportRemoteSystem1C, err), nil)
	}

	parsed, err := p.parser.Parse(ctx, text)
	if err != nil {
		var parseErr *statement.ParseError
		if errors.As(err, &parseErr) {
			return nil, ctl.Fail(ctx, fmt.Errorf("cannot parse uploaded file in %s format: %w", domain.ImportRemoteSystem1C, err), nil)
		}
		return nil, fmt.Errorf("Run: parse statement: %w", err)
	}

	engine := NewReconciliationEngine(p.store, log)
	account, accountCtx, err := engine.ResolveAccount(ctx, task, org, integration.ID, parsed.Account)
	if err != nil {
		if IsInputError(err) {
			return nil, ctl.Fail(ctx, err, nil)
		}
		return nil, err
	}

	if err := ctl.Start(ctx, task, len(parsed.Transactions), account.ID, accountCtx.ID); err != nil {
		return nil, fmt.Errorf("Run: start task: %w", err)
	}

	ingestor := NewTransactionIngestor(p.store, p.classifier, p.opts.RowSleep, log)
	ingested, err := ingestor.Ingest(ctx, ctl, org, account, accountCtx, parsed.Transactions)
	if err != nil {
		return nil, err
	}

	if ingested.Cancelled {
		// Not an error: the task keeps whatever status the external
		// actor set. Rows committed before the cancellation stay.
		return &Result{Account: account, IntegrationContext: accountCtx, Cancelled: true}, nil
	}

	if len(ingested.Created) == 0 && len(ingested.Duplicates) > 0 {
		noNew := &NoNewTransactionsError{Duplicates: ingested.Duplicates}
		return nil, ctl.Fail(ctx, noNew, ingested.Duplicates)
	}

	if err := ctl.Complete(ctx, len(ingested.Created), ingested.Duplicates); err != nil {
		return nil, fmt.Errorf("Run: complete task: %w", err)
	}

	log.Info().
		Int("created", len(ingested.Created)).
		Int("duplicates", len(ingested.Duplicates)).
		Msg("Import task completed")

	return &Result{
		Account:            account,
		IntegrationContext: accountCtx,
		Transactions:       ingested.Created,
	}, nil
}
