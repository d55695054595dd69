package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ShareClassRepository defines the interface for share class lookups.
// Share classes are seeded out-of-band; the pipeline only reads them.
type ShareClassRepository interface {
	// FindWithCredentials retrieves every share class carrying a usable
	// prime-broker credential pair.
	FindWithCredentials(ctx context.Context) ([]*ShareClass, error)

	// FindByName retrieves a share class by its unique name.
	// Returns ErrNotFound if no such share class exists.
	FindByName(ctx context.Context, name string) (*ShareClass, error)
}

// CounterpartyRepository defines the interface for venue lookups.
type CounterpartyRepository interface {
	// FindByName retrieves a counterparty by case-insensitive exact name match.
	// Returns ErrNotFound if no such counterparty exists.
	FindByName(ctx context.Context, name string) (*Counterparty, error)

	// FindByID retrieves a counterparty by primary key.
	// Returns ErrNotFound if no such counterparty exists.
	FindByID(ctx context.Context, id uuid.UUID) (*Counterparty, error)

	// Create inserts a counterparty. Inserting an existing ID is a no-op.
	Create(ctx context.Context, cp *Counterparty) error
}

// TradingAccountRepository defines the interface for trading account persistence.
type TradingAccountRepository interface {
	// Upsert inserts the account or updates the existing row with the same name.
	Upsert(ctx context.Context, account *TradingAccount) error

	// FindByShareClass retrieves all trading accounts for a share class.
	// If eligibleOnly is true, only accounts with a portfolio assignment
	// are returned.
	FindByShareClass(ctx context.Context, shareClassID uuid.UUID, eligibleOnly bool) ([]*TradingAccount, error)
}

// BasicAccountRepository defines the interface for basic (home wallet)
// account persistence.
type BasicAccountRepository interface {
	// Upsert inserts the account or updates the existing row with the same name.
	Upsert(ctx context.Context, account *BasicAccount) error

	// FindByShareClass retrieves the share class's home wallet.
	// Returns ErrNotFound if none exists.
	FindByShareClass(ctx context.Context, shareClassID uuid.UUID) (*BasicAccount, error)
}

// TripartyAccountRepository defines the interface for triparty account persistence.
type TripartyAccountRepository interface {
	// Upsert inserts the account or updates the existing row with the same name.
	Upsert(ctx context.Context, account *TripartyAccount) error
}

// TransferRepository defines the interface for transfer persistence.
type TransferRepository interface {
	// CreateBatch inserts all transfers in a single statement and returns the
	// number of rows actually written. Rows whose ExternalRef collides with
	// an existing record are skipped, not duplicated.
	CreateBatch(ctx context.Context, transfers []*Transfer) (int, error)
}

// SpotQuoteRepository defines the interface for daily rate persistence.
// All date parameters are normalized to UTC start of day.
type SpotQuoteRepository interface {
	// Upsert writes the quote, replacing any existing record with the same
	// (symbol, exchange, price date).
	Upsert(ctx context.Context, quote *SpotQuote) error

	// FindBySymbolAndDate retrieves the quote for an exact date.
	// Returns ErrNotFound if no record exists for that day.
	FindBySymbolAndDate(ctx context.Context, symbol, exchange string, date time.Time) (*SpotQuote, error)

	// FindLatestOnOrBefore retrieves the most recent quote dated at or before
	// the given day. Never returns a future-dated record.
	// Returns ErrNotFound if no such record exists.
	FindLatestOnOrBefore(ctx context.Context, symbol, exchange string, date time.Time) (*SpotQuote, error)

	// ListDates retrieves the sorted distinct price dates on file for a
	// symbol/exchange pair.
	ListDates(ctx context.Context, symbol, exchange string) ([]time.Time, error)
}

// TxOptions bounds one transaction: how long to wait for a slot and how long
// the work inside may run.
type TxOptions struct {
	AcquireTimeout time.Duration
	ExecTimeout    time.Duration
}

// TxManager runs fn inside a storage transaction. Repositories invoked with
// the context passed to fn operate on the transaction; the transaction
// commits when fn returns nil and rolls back otherwise.
type TxManager interface {
	RunInTransaction(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error
}
