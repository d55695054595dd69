package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SpotQuote is one daily USD-denominated price record for a currency symbol
// from a given rate source. At most one record exists per
// (symbol, exchange, price date); re-fetching the same day updates in place.
type SpotQuote struct {
	ID        uuid.UUID
	Symbol    string
	Exchange  string // rate source identifier, e.g. "CRYPTOCOMPARE"
	PriceUSD  decimal.Decimal
	PriceDate time.Time // normalized to UTC start of day
	FetchedAt time.Time
	Raw       []byte // optional raw upstream payload, kept for audit
}

// DateGap describes a contiguous run of missing calendar days between two
// stored quote dates for a symbol. Derived, never persisted.
type DateGap struct {
	Start       time.Time // first missing day
	End         time.Time // last missing day
	MissingDays int
}

// StartOfDayUTC truncates a timestamp to midnight UTC, the granularity all
// quote lookups operate at.
func StartOfDayUTC(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
