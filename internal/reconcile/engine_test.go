package reconcile

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvloznov/bank-reconciler/internal/domain"
	"github.com/dvloznov/bank-reconciler/internal/statement"
)

func parsedAccount() statement.Account {
	return statement.Account{
		Number:        "40702810900000012345",
		RoutingNumber: "044525225",
		CurrencyCode:  "RUB",
		Meta:          map[string]any{"bank": "Test Bank", "dateFrom": "2024-03-01"},
	}
}

func TestResolveAccountCreatesAccountAndContexts(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)
	task.PropertyID = "prop-1"

	engine := NewReconciliationEngine(m.Store(), testLog())
	account, accountCtx, err := engine.ResolveAccount(ctx, task, org, domain.FileImportIntegrationID, parsedAccount())
	require.NoError(t, err)
	require.NotNil(t, account)
	require.NotNil(t, accountCtx)

	assert.Equal(t, org.ID, account.OrganizationID)
	assert.Equal(t, "40702810900000012345", account.Number)
	assert.Equal(t, org.TIN, account.TIN)
	assert.Equal(t, org.Country, account.Country)
	assert.Equal(t, domain.DefaultCurrencyCode, account.CurrencyCode)
	assert.Equal(t, "prop-1", account.PropertyID)
	assert.Equal(t, accountCtx.ID, account.IntegrationContextID)
	assert.Equal(t, "Test Bank", account.Meta["bank"])

	assert.Equal(t, domain.FileImportIntegrationID, accountCtx.IntegrationID)
	assert.True(t, accountCtx.Enabled)

	// First successful import lazily links the organization to the
	// integration.
	require.Len(t, m.orgCtxs, 1)
	assert.True(t, m.orgCtxs[0].Enabled)
	assert.Equal(t, org.ID, m.orgCtxs[0].OrganizationID)
}

func TestResolveAccountReusesExistingAccount(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)

	existingCtx, err := m.CreateAccountContext(ctx, &domain.AccountContext{
		IntegrationID:  domain.FileImportIntegrationID,
		OrganizationID: org.ID,
		Enabled:        true,
		Meta:           map[string]any{"bank": "Old Bank"},
	})
	require.NoError(t, err)
	existing, err := m.CreateAccount(ctx, &domain.Account{
		OrganizationID:       org.ID,
		Number:               "40702810900000012345",
		IntegrationContextID: existingCtx.ID,
	})
	require.NoError(t, err)
	_, err = m.CreateOrganizationContext(ctx, &domain.IntegrationOrganizationContext{
		IntegrationID:  domain.FileImportIntegrationID,
		OrganizationID: org.ID,
		Enabled:        true,
	})
	require.NoError(t, err)

	engine := NewReconciliationEngine(m.Store(), testLog())
	account, accountCtx, err := engine.ResolveAccount(ctx, task, org, domain.FileImportIntegrationID, parsedAccount())
	require.NoError(t, err)

	assert.Equal(t, existing.ID, account.ID)
	assert.Equal(t, existingCtx.ID, accountCtx.ID)
	assert.Equal(t, "Test Bank", account.Meta["bank"], "account meta refreshed from the new statement header")
	assert.Equal(t, "Test Bank", m.accountCtxs[existingCtx.ID].Meta["bank"])
	assert.Len(t, m.orgCtxs, 1, "no second organization context")
	assert.Len(t, m.accounts, 1)
}

func TestResolveAccountDisabledOrganizationContext(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)
	_, err := m.CreateOrganizationContext(ctx, &domain.IntegrationOrganizationContext{
		IntegrationID:  domain.FileImportIntegrationID,
		OrganizationID: org.ID,
		Enabled:        false,
	})
	require.NoError(t, err)

	engine := NewReconciliationEngine(m.Store(), testLog())
	_, _, err = engine.ResolveAccount(ctx, task, org, domain.FileImportIntegrationID, parsedAccount())

	var disabled *DisabledIntegrationError
	require.ErrorAs(t, err, &disabled)
	assert.Equal(t, org.ID, disabled.OrganizationID)
	assert.True(t, IsInputError(err))
	assert.Empty(t, m.accounts, "no account is touched behind a disabled integration")
}

func TestResolveAccountConflictingIntegration(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)

	otherCtx, err := m.CreateAccountContext(ctx, &domain.AccountContext{
		IntegrationID:  "some-bank-api-integration",
		OrganizationID: org.ID,
		Enabled:        true,
	})
	require.NoError(t, err)
	_, err = m.CreateAccount(ctx, &domain.Account{
		OrganizationID:       org.ID,
		Number:               "40702810900000012345",
		IntegrationContextID: otherCtx.ID,
	})
	require.NoError(t, err)

	engine := NewReconciliationEngine(m.Store(), testLog())
	_, _, err = engine.ResolveAccount(ctx, task, org, domain.FileImportIntegrationID, parsedAccount())

	var conflict *ConflictingIntegrationError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "some-bank-api-integration", conflict.IntegrationID)
	assert.True(t, IsInputError(err))
}

func TestResolveAccountDisabledAccountContext(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)

	disabledCtx, err := m.CreateAccountContext(ctx, &domain.AccountContext{
		IntegrationID:  domain.FileImportIntegrationID,
		OrganizationID: org.ID,
		Enabled:        false,
	})
	require.NoError(t, err)
	_, err = m.CreateAccount(ctx, &domain.Account{
		OrganizationID:       org.ID,
		Number:               "40702810900000012345",
		IntegrationContextID: disabledCtx.ID,
	})
	require.NoError(t, err)

	engine := NewReconciliationEngine(m.Store(), testLog())
	_, _, err = engine.ResolveAccount(ctx, task, org, domain.FileImportIntegrationID, parsedAccount())

	var disabled *DisabledAccountContextError
	require.ErrorAs(t, err, &disabled)
	assert.Equal(t, disabledCtx.ID, disabled.ContextID)
	assert.True(t, IsInputError(err))
}

func TestResolveAccountPropertyTakenByAnotherAccount(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)
	task.PropertyID = "prop-1"

	_, err := m.CreateAccount(ctx, &domain.Account{
		OrganizationID: org.ID,
		Number:         "40702810900000099999",
		PropertyID:     "prop-1",
	})
	require.NoError(t, err)

	engine := NewReconciliationEngine(m.Store(), testLog())
	_, _, err = engine.ResolveAccount(ctx, task, org, domain.FileImportIntegrationID, parsedAccount())

	var dup *DuplicatePropertyAccountError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "prop-1", dup.PropertyID)
	assert.True(t, IsInputError(err))
}

func TestResolveAccountRepointsProperty(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)
	task.PropertyID = "prop-new"

	existingCtx, err := m.CreateAccountContext(ctx, &domain.AccountContext{
		IntegrationID:  domain.FileImportIntegrationID,
		OrganizationID: org.ID,
		Enabled:        true,
	})
	require.NoError(t, err)
	existing, err := m.CreateAccount(ctx, &domain.Account{
		OrganizationID:       org.ID,
		Number:               "40702810900000012345",
		PropertyID:           "prop-old",
		IntegrationContextID: existingCtx.ID,
	})
	require.NoError(t, err)

	engine := NewReconciliationEngine(m.Store(), testLog())
	account, _, err := engine.ResolveAccount(ctx, task, org, domain.FileImportIntegrationID, parsedAccount())
	require.NoError(t, err)

	assert.Equal(t, existing.ID, account.ID)
	assert.Equal(t, "prop-new", account.PropertyID)
}

func TestResolveAccountLinksContextWhenMissing(t *testing.T) {
	ctx := context.Background()
	m := newMemStore()
	org := seedBase(m)
	task := seedTask(m, org, domain.TaskStatusProcessing)

	// Account created by hand before any integration touched it.
	existing, err := m.CreateAccount(ctx, &domain.Account{
		OrganizationID: org.ID,
		Number:         "40702810900000012345",
	})
	require.NoError(t, err)

	engine := NewReconciliationEngine(m.Store(), testLog())
	account, accountCtx, err := engine.ResolveAccount(ctx, task, org, domain.FileImportIntegrationID, parsedAccount())
	require.NoError(t, err)

	assert.Equal(t, existing.ID, account.ID)
	require.NotNil(t, accountCtx)
	assert.Equal(t, accountCtx.ID, account.IntegrationContextID)
	assert.Equal(t, domain.FileImportIntegrationID, accountCtx.IntegrationID)
	assert.True(t, accountCtx.Enabled)
}
