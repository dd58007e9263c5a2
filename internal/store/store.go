// Package store defines the persistence interfaces the reconciliation
// pipeline runs against. Lookups return (nil, nil) when no matching
// record exists; any other failure is a wrapped storage error.
package store

import (
	"context"

	"github.com/dvloznov/bank-reconciler/internal/domain"
)

// TaskUpdate is a partial update of a task row. Nil fields are left
// untouched.
type TaskUpdate struct {
	Status               *domain.TaskStatus
	TotalCount           *int
	ProcessedCount       *int
	AccountID            *string
	IntegrationContextID *string
	Meta                 *domain.TaskMeta
}

// AccountUpdate is a partial update of an account row. Nil fields are
// left untouched.
type AccountUpdate struct {
	PropertyID           *string
	IntegrationContextID *string
	Meta                 map[string]any
}

// TaskRepository persists import tasks.
type TaskRepository interface {
	GetTask(ctx context.Context, id string) (*domain.Task, error)
	CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error)
	UpdateTask(ctx context.Context, id string, upd TaskUpdate) (*domain.Task, error)
}

// IntegrationRepository reads integration records.
type IntegrationRepository interface {
	GetIntegration(ctx context.Context, id string) (*domain.Integration, error)
}

// OrganizationRepository reads organization records.
type OrganizationRepository interface {
	GetOrganization(ctx context.Context, id string) (*domain.Organization, error)
}

// AccountRepository persists bank accounts. Number lookups consider
// only non-deleted rows.
type AccountRepository interface {
	FindAccountByNumber(ctx context.Context, organizationID, number string) (*domain.Account, error)
	// FindAccountsByProperty lists non-deleted accounts of the
	// organization bound to the property, excluding the given account
	// number. Used to enforce the one-account-per-property rule.
	FindAccountsByProperty(ctx context.Context, organizationID, propertyID, excludeNumber string) ([]*domain.Account, error)
	CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error)
	UpdateAccount(ctx context.Context, id string, upd AccountUpdate) (*domain.Account, error)
}

// AccountContextRepository persists integration account contexts.
type AccountContextRepository interface {
	GetAccountContext(ctx context.Context, id string) (*domain.AccountContext, error)
	CreateAccountContext(ctx context.Context, actx *domain.AccountContext) (*domain.AccountContext, error)
	UpdateAccountContextMeta(ctx context.Context, id string, meta map[string]any) error
}

// OrganizationContextRepository persists the per-organization
// integration toggles.
type OrganizationContextRepository interface {
	FindOrganizationContext(ctx context.Context, integrationID, organizationID string) (*domain.IntegrationOrganizationContext, error)
	CreateOrganizationContext(ctx context.Context, octx *domain.IntegrationOrganizationContext) (*domain.IntegrationOrganizationContext, error)
}

// ContractorAccountRepository persists counterparty accounts.
type ContractorAccountRepository interface {
	FindContractorAccount(ctx context.Context, organizationID, number, tin string) (*domain.ContractorAccount, error)
	CreateContractorAccount(ctx context.Context, ca *domain.ContractorAccount) (*domain.ContractorAccount, error)
}

// TransactionRepository persists bank transactions.
type TransactionRepository interface {
	// FindTransactionByImportID looks a transaction up by the
	// (organization, importId) dedup key.
	FindTransactionByImportID(ctx context.Context, organizationID, importID string) (*domain.Transaction, error)
	CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error)
}

// Store aggregates all entity repositories backing one logical session.
type Store struct {
	Tasks                TaskRepository
	Integrations         IntegrationRepository
	Organizations        OrganizationRepository
	Accounts             AccountRepository
	AccountContexts      AccountContextRepository
	OrganizationContexts OrganizationContextRepository
	ContractorAccounts   ContractorAccountRepository
	Transactions         TransactionRepository
}
