// Package fx implements the currency conversion engine.
//
// All conversions go through daily USD spot quotes: a direct leg when one
// side is USD, a cross rate otherwise. Rate lookups are day-granular with a
// latest-at-or-before fallback; a conversion that cannot find a rate reports
// failure rather than an error, and callers fall back to the original amount.
package fx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fundops/backoffice/internal/domain"
)

// Engine converts amounts between currencies using the stored rate history.
type Engine struct {
	QuoteRepo domain.SpotQuoteRepository
	Exchange  string // rate source the engine reads from
}

// NewEngine creates a new conversion engine bound to one rate source.
func NewEngine(quoteRepo domain.SpotQuoteRepository, exchange string) *Engine {
	return &Engine{QuoteRepo: quoteRepo, Exchange: exchange}
}

// Convert converts amount from one currency to another at the rate in effect
// on the day of ts. The second return value reports success: on any missing
// rate or lookup error it is false and the caller must keep the original
// amount. Convert never returns an error.
func (e *Engine) Convert(ctx context.Context, amount decimal.Decimal, from, to string, ts time.Time) (decimal.Decimal, bool) {
	from = strings.ToUpper(strings.TrimSpace(from))
	to = strings.ToUpper(strings.TrimSpace(to))

	if from == to {
		return amount, true
	}

	const usd = "USD"

	switch {
	case to == usd:
		rate, ok := e.rateAt(ctx, from, ts)
		if !ok {
			return decimal.Decimal{}, false
		}
		return amount.Mul(rate), true

	case from == usd:
		rate, ok := e.rateAt(ctx, to, ts)
		if !ok || rate.IsZero() {
			return decimal.Decimal{}, false
		}
		return amount.Div(rate), true

	default:
		fromRate, ok := e.rateAt(ctx, from, ts)
		if !ok {
			return decimal.Decimal{}, false
		}
		toRate, ok := e.rateAt(ctx, to, ts)
		if !ok || toRate.IsZero() {
			return decimal.Decimal{}, false
		}
		return amount.Mul(fromRate.Div(toRate)), true
	}
}

// GetExchangeRate returns the rate between two currencies on the day of ts,
// defined as Convert(1, from, to, ts).
func (e *Engine) GetExchangeRate(ctx context.Context, from, to string, ts time.Time) (decimal.Decimal, bool) {
	return e.Convert(ctx, decimal.NewFromInt(1), from, to, ts)
}

// rateAt resolves the USD price of symbol on the day of ts: exact date first,
// then the most recent record strictly at or before that day.
func (e *Engine) rateAt(ctx context.Context, symbol string, ts time.Time) (decimal.Decimal, bool) {
	day := domain.StartOfDayUTC(ts)

	quote, err := e.QuoteRepo.FindBySymbolAndDate(ctx, symbol, e.Exchange, day)
	if err == nil {
		return quote.PriceUSD, true
	}
	if !errors.Is(err, domain.ErrNotFound) {
		log.Warn().Err(err).Str("symbol", symbol).Time("date", day).Msg("exact rate lookup failed")
		return decimal.Decimal{}, false
	}

	quote, err = e.QuoteRepo.FindLatestOnOrBefore(ctx, symbol, e.Exchange, day)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Warn().Err(err).Str("symbol", symbol).Time("date", day).Msg("fallback rate lookup failed")
		}
		return decimal.Decimal{}, false
	}
	return quote.PriceUSD, true
}
