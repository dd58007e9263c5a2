package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/store"
)

// memStore is an in-memory implementation of every store interface,
// shared by the engine/ingestor/pipeline tests.
type memStore struct {
	mu sync.Mutex

	seq int

	tasks        map[string]*domain.Task
	integrations map[string]*domain.Integration
	orgs         map[string]*domain.Organization
	accounts     map[string]*domain.Account
	accountCtxs  map[string]*domain.AccountContext
	orgCtxs      []*domain.IntegrationOrganizationContext
	contractors  []*domain.ContractorAccount
	transactions []*domain.Transaction

	// onTaskRead runs before every GetTask, letting tests flip the task
	// status mid-run to simulate external cancellation.
	onTaskRead func(m *memStore)

	failTaskUpdate bool
}

func newMemStore() *memStore {
	return &memStore{
		tasks:        make(map[string]*domain.Task),
		integrations: make(map[string]*domain.Integration),
		orgs:         make(map[string]*domain.Organization),
		accounts:     make(map[string]*domain.Account),
		accountCtxs:  make(map[string]*domain.AccountContext),
	}
}

func (m *memStore) Store() *store.Store {
	return &store.Store{
		Tasks:                m,
		Integrations:         m,
		Organizations:        m,
		Accounts:             m,
		AccountContexts:      m,
		OrganizationContexts: m,
		ContractorAccounts:   m,
		Transactions:         m,
	}
}

func (m *memStore) nextID(prefix string) string {
	m.seq++
	return fmt.Sprintf("%s-%d", prefix, m.seq)
}

func (m *memStore) GetTask(ctx context.Context, id string) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.onTaskRead != nil {
		m.onTaskRead(m)
	}
	task, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	copied := *task
	return &copied, nil
}

func (m *memStore) CreateTask(ctx context.Context, task *domain.Task) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if task.ID == "" {
		task.ID = m.nextID("task")
	}
	copied := *task
	m.tasks[task.ID] = &copied
	return task, nil
}

func (m *memStore) UpdateTask(ctx context.Context, id string, upd store.TaskUpdate) (*domain.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failTaskUpdate {
		return nil, fmt.Errorf("task update failed")
	}
	task, ok := m.tasks[id]
	if !ok {
		return nil, fmt.Errorf("task %q not found", id)
	}
	if upd.Status != nil {
		task.Status = *upd.Status
	}
	if upd.TotalCount != nil {
		task.TotalCount = *upd.TotalCount
	}
	if upd.ProcessedCount != nil {
		task.ProcessedCount = *upd.ProcessedCount
	}
	if upd.AccountID != nil {
		task.AccountID = *upd.AccountID
	}
	if upd.IntegrationContextID != nil {
		task.IntegrationContextID = *upd.IntegrationContextID
	}
	if upd.Meta != nil {
		task.Meta = *upd.Meta
	}
	copied := *task
	return &copied, nil
}

func (m *memStore) GetIntegration(ctx context.Context, id string) (*domain.Integration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	integration, ok := m.integrations[id]
	if !ok {
		return nil, nil
	}
	return integration, nil
}

func (m *memStore) GetOrganization(ctx context.Context, id string) (*domain.Organization, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	org, ok := m.orgs[id]
	if !ok {
		return nil, nil
	}
	return org, nil
}

func (m *memStore) FindAccountByNumber(ctx context.Context, organizationID, number string) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, a := range m.accounts {
		if a.OrganizationID == organizationID && a.Number == number && a.DeletedAt == nil {
			copied := *a
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) FindAccountsByProperty(ctx context.Context, organizationID, propertyID, excludeNumber string) ([]*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*domain.Account
	for _, a := range m.accounts {
		if a.OrganizationID == organizationID && a.PropertyID == propertyID && a.Number != excludeNumber && a.DeletedAt == nil {
			copied := *a
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *memStore) CreateAccount(ctx context.Context, account *domain.Account) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if account.ID == "" {
		account.ID = m.nextID("account")
	}
	copied := *account
	m.accounts[account.ID] = &copied
	return account, nil
}

func (m *memStore) UpdateAccount(ctx context.Context, id string, upd store.AccountUpdate) (*domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	account, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %q not found", id)
	}
	if upd.PropertyID != nil {
		account.PropertyID = *upd.PropertyID
	}
	if upd.IntegrationContextID != nil {
		account.IntegrationContextID = *upd.IntegrationContextID
	}
	if upd.Meta != nil {
		account.Meta = upd.Meta
	}
	copied := *account
	return &copied, nil
}

func (m *memStore) GetAccountContext(ctx context.Context, id string) (*domain.AccountContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	actx, ok := m.accountCtxs[id]
	if !ok {
		return nil, nil
	}
	copied := *actx
	return &copied, nil
}

func (m *memStore) CreateAccountContext(ctx context.Context, actx *domain.AccountContext) (*domain.AccountContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if actx.ID == "" {
		actx.ID = m.nextID("actx")
	}
	copied := *actx
	m.accountCtxs[actx.ID] = &copied
	return actx, nil
}

func (m *memStore) UpdateAccountContextMeta(ctx context.Context, id string, meta map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	actx, ok := m.accountCtxs[id]
	if !ok {
		return fmt.Errorf("account context %q not found", id)
	}
	actx.Meta = meta
	return nil
}

func (m *memStore) FindOrganizationContext(ctx context.Context, integrationID, organizationID string) (*domain.IntegrationOrganizationContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.orgCtxs {
		if o.IntegrationID == integrationID && o.OrganizationID == organizationID {
			copied := *o
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateOrganizationContext(ctx context.Context, octx *domain.IntegrationOrganizationContext) (*domain.IntegrationOrganizationContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if octx.ID == "" {
		octx.ID = m.nextID("octx")
	}
	copied := *octx
	m.orgCtxs = append(m.orgCtxs, &copied)
	return octx, nil
}

func (m *memStore) FindContractorAccount(ctx context.Context, organizationID, number, tin string) (*domain.ContractorAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.contractors {
		if c.OrganizationID == organizationID && c.Number == number && c.TIN == tin {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateContractorAccount(ctx context.Context, ca *domain.ContractorAccount) (*domain.ContractorAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ca.ID == "" {
		ca.ID = m.nextID("contractor")
	}
	copied := *ca
	m.contractors = append(m.contractors, &copied)
	return ca, nil
}

func (m *memStore) FindTransactionByImportID(ctx context.Context, organizationID, importID string) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range m.transactions {
		if t.OrganizationID == organizationID && t.ImportID == importID {
			copied := *t
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateTransaction(ctx context.Context, tx *domain.Transaction) (*domain.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx.ID == "" {
		tx.ID = m.nextID("tx")
	}
	copied := *tx
	m.transactions = append(m.transactions, &copied)
	return tx, nil
}

var (
	_ store.TaskRepository                = (*memStore)(nil)
	_ store.IntegrationRepository         = (*memStore)(nil)
	_ store.OrganizationRepository        = (*memStore)(nil)
	_ store.AccountRepository             = (*memStore)(nil)
	_ store.AccountContextRepository      = (*memStore)(nil)
	_ store.OrganizationContextRepository = (*memStore)(nil)
	_ store.ContractorAccountRepository   = (*memStore)(nil)
	_ store.TransactionRepository         = (*memStore)(nil)
)
