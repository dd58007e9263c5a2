package reconcile

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/statement"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// ReconciliationEngine resolves the statement's declared account to an
// Account/AccountContext pair, creating them on first sight and
// enforcing the one-integration-per-account and
// one-account-per-property invariants. It never mutates the task; the
// pipeline maps its typed errors onto the task status.
type ReconciliationEngine struct {
	store *store.Store
	log   zerolog.Logger
}

// NewReconciliationEngine creates an engine over the given store.
func NewReconciliationEngine(s *store.Store, log zerolog.Logger) *ReconciliationEngine {
	return &ReconciliationEngine{store: s, log: log}
}

// ResolveAccount runs the resolution algorithm for one import. All
// steps are idempotent: re-running the same statement yields the same
// Account/AccountContext identity, with only their meta refreshed.
func (e *ReconciliationEngine) ResolveAccount(
	ctx context.Context,
	task *domain.Task,
	org *domain.Organization,
	integrationID string,
	parsed statement.Account,
) (*domain.Account, *domain.AccountContext, error) {
	// A manually disabled organization-level context blocks the import
	// before any account is touched.
	orgCtx, err := e.store.OrganizationContexts.FindOrganizationContext(ctx, integrationID, org.ID)
	if err != nil {
		return nil, nil, fmt.Errorf("ResolveAccount: find organization context: %w", err)
	}
	if orgCtx != nil && !orgCtx.Enabled {
		return nil, nil, &DisabledIntegrationError{ContextID: orgCtx.ID, OrganizationID: org.ID}
	}

	if task.PropertyID != "" {
		others, err := e.store.Accounts.FindAccountsByProperty(ctx, org.ID, task.PropertyID, parsed.Number)
		if err != nil {
			return nil, nil, fmt.Errorf("ResolveAccount: find accounts by property: %w", err)
		}
		if len(others) > 0 {
			return nil, nil, &DuplicatePropertyAccountError{PropertyID: task.PropertyID}
		}
	}

	account, err := e.store.Accounts.FindAccountByNumber(ctx, org.ID, parsed.Number)
	if err != nil {
		return nil, nil, fmt.Errorf("ResolveAccount: find account: %w", err)
	}

	var accountCtx *domain.AccountContext
	if account == nil {
		account, accountCtx, err = e.createAccount(ctx, task, org, integrationID, parsed)
	} else {
		account, accountCtx, err = e.updateAccount(ctx, task, org, integrationID, parsed, account)
	}
	if err != nil {
		return nil, nil, err
	}

	// Lazily mark the organization as linked to this integration.
	if orgCtx == nil {
		_, err = e.store.OrganizationContexts.CreateOrganizationContext(ctx, &domain.IntegrationOrganizationContext{
			IntegrationID:  integrationID,
			OrganizationID: org.ID,
			Enabled:        true,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("ResolveAccount: create organization context: %w", err)
		}
	}

	return account, accountCtx, nil
}

func (e *ReconciliationEngine) createAccount(
	ctx context.Context,
	task *domain.Task,
	org *domain.Organization,
	integrationID string,
	parsed statement.Account,
) (*domain.Account, *domain.AccountContext, error) {
	accountCtx, err := e.store.AccountContexts.CreateAccountContext(ctx, &domain.AccountContext{
		IntegrationID:  integrationID,
		OrganizationID: org.ID,
		Enabled:        true,
		Meta:           parsed.Meta,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("ResolveAccount: create account context: %w", err)
	}

	account := &domain.Account{
		OrganizationID:       org.ID,
		Number:               parsed.Number,
		RoutingNumber:        parsed.RoutingNumber,
		TIN:                  org.TIN,
		Country:              org.Country,
		CurrencyCode:         domain.DefaultCurrencyCode,
		PropertyID:           task.PropertyID,
		IntegrationContextID: accountCtx.ID,
		Meta:                 parsed.Meta,
	}
	account, err = e.store.Accounts.CreateAccount(ctx, account)
	if err != nil {
		return nil, nil, fmt.Errorf("ResolveAccount: create account: %w", err)
	}

	e.log.Info().
		Str("account_id", account.ID).
		Str("account_number", account.Number).
		Msg("Created account for imported statement")
	return account, accountCtx, nil
}

func (e *ReconciliationEngine) updateAccount(
	ctx context.Context,
	task *domain.Task,
	org *domain.Organization,
	integrationID string,
	parsed statement.Account,
	account *domain.Account,
) (*domain.Account, *domain.AccountContext, error) {
	upd := store.AccountUpdate{Meta: parsed.Meta}

	// The previously linked property may have been soft-deleted since;
	// re-point the account so existing transactions stay reachable
	// through it.
	if task.PropertyID != "" && account.PropertyID != task.PropertyID {
		upd.PropertyID = &task.PropertyID
	}

	var accountCtx *domain.AccountContext
	if account.IntegrationContextID != "" {
		existing, err := e.store.AccountContexts.GetAccountContext(ctx, account.IntegrationContextID)
		if err != nil {
			return nil, nil, fmt.Errorf("ResolveAccount: get account context: %w", err)
		}
		if existing == nil {
			return nil, nil, fmt.Errorf("ResolveAccount: account %q references missing AccountContext %q", account.ID, account.IntegrationContextID)
		}
		if existing.IntegrationID != integrationID {
			return nil, nil, &ConflictingIntegrationError{AccountID: account.ID, IntegrationID: existing.IntegrationID}
		}
		if !existing.Enabled {
			return nil, nil, &DisabledAccountContextError{ContextID: existing.ID, AccountID: account.ID}
		}
		accountCtx = existing
	} else {
		created, err := e.store.AccountContexts.CreateAccountContext(ctx, &domain.AccountContext{
			IntegrationID:  integrationID,
			OrganizationID: org.ID,
			Enabled:        true,
			Meta:           parsed.Meta,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("ResolveAccount: create account context: %w", err)
		}
		accountCtx = created
		upd.IntegrationContextID = &created.ID
	}

	account, err := e.store.Accounts.UpdateAccount(ctx, account.ID, upd)
	if err != nil {
		return nil, nil, fmt.Errorf("ResolveAccount: update account: %w", err)
	}
	if err := e.store.AccountContexts.UpdateAccountContextMeta(ctx, accountCtx.ID, parsed.Meta); err != nil {
		return nil, nil, fmt.Errorf("ResolveAccount: update account context meta: %w", err)
	}
	accountCtx.Meta = parsed.Meta

	return account, accountCtx, nil
}
