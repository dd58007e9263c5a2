// Package statement defines the external collaborators the pipeline
// consumes to obtain parsed bank statement data: a Source for raw file
// bytes, a Decoder normalizing the text encoding, and a Parser turning
// canonical text into a structured payload.
package statement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Account is the statement's declared bank account header.
type Account struct {
	Number        string
	RoutingNumber string
	CurrencyCode  string
	// Meta carries free-form header fields (bank name, statement
	// period, opening/closing balance).
	Meta map[string]any
}

// ContractorAccount is the counterparty block of a statement row.
type ContractorAccount struct {
	Name          string
	Number        string
	RoutingNumber string
	TIN           string
}

// Transaction is one parsed statement row.
type Transaction struct {
	Number    string
	Date      time.Time
	Amount    decimal.Decimal
	IsOutcome bool
	Purpose   string
	Meta      map[string]any
	// ContractorAccount is nil when the row carries no counterparty.
	ContractorAccount *ContractorAccount
}

// Statement is the full parsed payload of one uploaded file.
type Statement struct {
	Account      Account
	Transactions []Transaction
}

// ParseError reports an unparseable statement, naming the offending
// section and line when known.
type ParseError struct {
	Section string
	Line    int
	Message string
}

func (e *ParseError) Error() string {
	switch {
	case e.Section != "" && e.Line > 0:
		return fmt.Sprintf("parse statement: section %q, line %d: %s", e.Section, e.Line, e.Message)
	case e.Section != "":
		return fmt.Sprintf("parse statement: section %q: %s", e.Section, e.Message)
	default:
		return fmt.Sprintf("parse statement: %s", e.Message)
	}
}
