package domain

import "time"

const (
	// FileImportIntegrationID is the well-known id of the "1C file
	// import" integration. The record must be pre-seeded in the store
	// (cmd/migrate does this); its absence is a configuration error.
	FileImportIntegrationID = "61e3d767-bd62-40e3-a503-f885b242d262"

	// ImportRemoteSystem1C tags transactions created from uploaded
	// files in the 1C ClientBankExchange format.
	ImportRemoteSystem1C = "1CClientBankExchange"

	// DefaultCurrencyCode is the currency assigned to accounts,
	// contractor accounts and transactions created by the file import.
	DefaultCurrencyCode = "RUB"
)

// Integration is a source of bank transactions (file import, direct
// bank API, ...). Only read by the pipeline.
type Integration struct {
	ID   string
	Name string
}

// Organization owns accounts, contractor accounts and transactions.
// Only read by the pipeline.
type Organization struct {
	ID      string
	Name    string
	TIN     string
	Country string
}

// Account is a bank account of an organization, unique by
// (organization, number) among non-deleted records.
type Account struct {
	ID             string
	OrganizationID string
	Number         string
	RoutingNumber  string
	TIN            string
	Country        string
	CurrencyCode   string

	// PropertyID links the account to at most one property. At most one
	// non-deleted account of an organization may reference a property.
	PropertyID string

	// IntegrationContextID binds the account to the integration that
	// produces its transactions.
	IntegrationContextID string

	// Meta carries the latest parsed statement header (bank name,
	// statement period, balances).
	Meta map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt *time.Time
}

// AccountContext binds an account to a specific integration and carries
// integration-level metadata for it.
type AccountContext struct {
	ID             string
	IntegrationID  string
	OrganizationID string
	// Enabled can be switched off manually to block imports for the
	// account without deleting anything.
	Enabled bool
	Meta    map[string]any

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IntegrationOrganizationContext gates whether an organization may use
// an integration at all. Created lazily on first successful import.
type IntegrationOrganizationContext struct {
	ID             string
	IntegrationID  string
	OrganizationID string
	Enabled        bool

	CreatedAt time.Time
}

// ContractorAccount is a counterparty bank account referenced by
// transactions, resolved by (organization, number, tax id).
type ContractorAccount struct {
	ID             string
	OrganizationID string
	Name           string
	Number         string
	RoutingNumber  string
	TIN            string
	Country        string
	CurrencyCode   string

	CreatedAt time.Time
}

// Transaction is an immutable financial event. Once created by the
// pipeline it is never updated. Identity for deduplication is
// (organization, ImportID).
type Transaction struct {
	ID             string
	OrganizationID string
	AccountID      string
	// IntegrationContextID references the AccountContext the
	// transaction was imported through.
	IntegrationContextID string
	// ContractorAccountID is empty when the statement row carried no
	// counterparty block.
	ContractorAccountID string
	// CostItemID is empty when classification failed or returned
	// nothing.
	CostItemID string

	Number    string
	Date      time.Time
	IsOutcome bool
	Purpose   string
	// Amount is a decimal string, never a float.
	Amount       string
	CurrencyCode string

	// ImportID is the composite natural key "YYYY-MM-DD_number" used
	// for deduplication across re-imports.
	ImportID string
	// ImportRemoteSystem names the wire format the transaction came
	// from, e.g. ImportRemoteSystem1C.
	ImportRemoteSystem string

	Meta map[string]any

	CreatedAt time.Time
}

// CostItem is a classification category for transaction purposes.
type CostItem struct {
	ID        string
	Name      string
	IsOutcome bool
}
