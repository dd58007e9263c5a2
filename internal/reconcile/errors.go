package reconcile

import (
	"errors"
	"fmt"

	"github.com/dvloznov/bank-reconciler/internal/statement"
)

// DisabledIntegrationError means the organization's integration context
// was manually switched off; imports are blocked before any account is
// touched.
type DisabledIntegrationError struct {
	ContextID      string
	OrganizationID string
}

func (e *DisabledIntegrationError) Error() string {
	return fmt.Sprintf("manually disabled IntegrationOrganizationContext(id=%q) was found for Organization(id=%q). Operation cannot be executed", e.ContextID, e.OrganizationID)
}

// DisabledAccountContextError means the account's integration context
// was manually switched off.
type DisabledAccountContextError struct {
	ContextID string
	AccountID string
}

func (e *DisabledAccountContextError) Error() string {
	return fmt.Sprintf("manually disabled AccountContext(id=%q) for Account(id=%q). Operation cannot be executed", e.ContextID, e.AccountID)
}

// ConflictingIntegrationError means the statement's account is already
// fed by a different integration; merging transactions from two sources
// would corrupt the ledger.
type ConflictingIntegrationError struct {
	AccountID     string
	IntegrationID string
}

func (e *ConflictingIntegrationError) Error() string {
	return "another integration is used for this bank account, that fetches transactions in a different way. You cannot import transactions from file in this case"
}

// DuplicatePropertyAccountError means another account of the
// organization is already bound to the task's property.
type DuplicatePropertyAccountError struct {
	PropertyID string
}

func (e *DuplicatePropertyAccountError) Error() string {
	return fmt.Sprintf("already have an account with the same Property { id: %s }", e.PropertyID)
}

// NoNewTransactionsError means every row of the uploaded file was a
// duplicate of an already imported transaction. This usually signals a
// re-upload of an already processed file, so it surfaces as a task
// error instead of a silent success.
type NoNewTransactionsError struct {
	Duplicates []string
}

func (e *NoNewTransactionsError) Error() string {
	return fmt.Sprintf("no new transactions were imported: all %d statement rows duplicate existing transactions", len(e.Duplicates))
}

// IsInputError reports whether err is a terminal, user-facing condition
// that should mark the task as failed, as opposed to a configuration or
// infrastructure error that propagates to the caller directly.
func IsInputError(err error) bool {
	var (
		disabledIntegration *DisabledIntegrationError
		disabledContext     *DisabledAccountContextError
		conflicting         *ConflictingIntegrationError
		duplicateProperty   *DuplicatePropertyAccountError
		noNew               *NoNewTransactionsError
		parseErr            *statement.ParseError
		fetchErr            *statement.FetchError
	)
	switch {
	case errors.As(err, &disabledIntegration),
		errors.As(err, &disabledContext),
		errors.As(err, &conflicting),
		errors.As(err, &duplicateProperty),
		errors.As(err, &noNew),
		errors.As(err, &parseErr),
		errors.As(err, &fetchErr):
		return true
	}
	return false
}
