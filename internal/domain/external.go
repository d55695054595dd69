package domain

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// RemoteAccount is one account entry reported by the prime-broker API for an
// authenticated share class. Account is the raw "name:suffix" string the
// classifier parses; Venue names the counterparty it lives at.
type RemoteAccount struct {
	Account string
	Venue   string
}

// TransferEvent is one raw deposit or withdrawal event from the prime-broker
// API, before classification and currency normalization.
type TransferEvent struct {
	ID           string
	Quantity     decimal.Decimal
	Asset        string
	EventTime    time.Time // business event time
	TransferTime time.Time // settlement time
	Venue        string
	Account      string
}

// TransferQuery scopes a deposit/withdrawal fetch to one venue/account pair
// and a half-open [Start, End) date range.
type TransferQuery struct {
	Venue    string
	Account  string
	Start    time.Time // inclusive
	End      time.Time // exclusive
	PageSize int
}

// BrokerAPI is the per-share-class authenticated surface of the external
// prime-broker API. Token refresh and transport concerns live behind it.
type BrokerAPI interface {
	ListAccounts(ctx context.Context) ([]RemoteAccount, error)
	FetchDeposits(ctx context.Context, q TransferQuery) ([]TransferEvent, error)
	FetchWithdrawals(ctx context.Context, q TransferQuery) ([]TransferEvent, error)
}

// BrokerClientFactory hands out a (possibly cached) BrokerAPI for a share
// class, built lazily from its stored credentials.
type BrokerClientFactory interface {
	ClientFor(sc *ShareClass) (BrokerAPI, error)

	// Invalidate drops any cached client for the share class, forcing the
	// next ClientFor to re-authenticate. Called when credentials change.
	Invalidate(shareClassName string)
}

// PriceQuote is one symbol price returned by the external quote API.
type PriceQuote struct {
	Symbol    string
	PriceUSD  decimal.Decimal
	Contract  string
	Timestamp *time.Time
	Raw       []byte
}

// HistoricalPriceAPI is the external quote API surface: daily USD prices for
// a set of symbols on a given UTC day.
type HistoricalPriceAPI interface {
	GetHistoricalPrices(ctx context.Context, symbols []string, exchange string, date time.Time) ([]PriceQuote, error)
}
