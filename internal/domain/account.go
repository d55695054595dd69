package domain

import (
	"github.com/google/uuid"
)

// AccountKind identifies which ledger table an account belongs to.
type AccountKind string

const (
	AccountKindTrading  AccountKind = "TRADING"
	AccountKindBasic    AccountKind = "BASIC"
	AccountKindTriparty AccountKind = "TRIPARTY"
)

// TradingAccountType sub-types a trading account.
type TradingAccountType string

const (
	TradingAccountTypeFunding TradingAccountType = "FUNDING"
	TradingAccountTypeOther   TradingAccountType = "OTHER"
)

// TradingAccount represents a position held at an external venue on behalf
// of a share class. Accounts without a portfolio assignment are visible to
// classification but excluded from transfer ingestion.
type TradingAccount struct {
	ID             uuid.UUID
	Name           string // unique per table
	Type           TradingAccountType
	ShareClassID   uuid.UUID
	CounterpartyID uuid.UUID
	PortfolioID    *uuid.UUID // nil means not yet assigned
}

// Eligible reports whether the account participates in transfer ingestion.
func (a *TradingAccount) Eligible() bool {
	return a.PortfolioID != nil
}

// BasicAccount is a share class's own cash "home" wallet, denominated in
// the share class's base currency. At most one conceptual wallet exists
// per share class.
type BasicAccount struct {
	ID           uuid.UUID
	Name         string
	ShareClassID uuid.UUID
	Currency     string
}

// TripartyAccount is an account held with a tri-party custodian venue.
type TripartyAccount struct {
	ID             uuid.UUID
	Name           string
	ShareClassID   uuid.UUID
	CounterpartyID uuid.UUID
}
