package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fundops/backoffice/internal/domain"
)

// spotQuoteRepository implements domain.SpotQuoteRepository
type spotQuoteRepository struct {
	db *DB
}

// NewSpotQuoteRepository creates a new spot quote repository
func NewSpotQuoteRepository(db *DB) domain.SpotQuoteRepository {
	return &spotQuoteRepository{db: db}
}

// Upsert writes the quote, replacing any record with the same
// (symbol, exchange, price_date)
func (r *spotQuoteRepository) Upsert(ctx context.Context, quote *domain.SpotQuote) error {
	query := `
		INSERT INTO spot_quotes (id, symbol, exchange, price_usd, price_date, fetched_at, raw)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (symbol, exchange, price_date) DO UPDATE SET
			price_usd = EXCLUDED.price_usd,
			fetched_at = EXCLUDED.fetched_at,
			raw = EXCLUDED.raw
	`

	_, err := r.db.runner(ctx).ExecContext(ctx, query,
		quote.ID,
		quote.Symbol,
		quote.Exchange,
		quote.PriceUSD.String(),
		domain.StartOfDayUTC(quote.PriceDate),
		quote.FetchedAt,
		quote.Raw,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert spot quote %s/%s: %w", quote.Symbol, quote.PriceDate.Format("2006-01-02"), err)
	}
	return nil
}

// FindBySymbolAndDate retrieves the quote for an exact date
func (r *spotQuoteRepository) FindBySymbolAndDate(ctx context.Context, symbol, exchange string, date time.Time) (*domain.SpotQuote, error) {
	query := `
		SELECT id, symbol, exchange, price_usd, price_date, fetched_at, raw
		FROM spot_quotes
		WHERE symbol = $1 AND exchange = $2 AND price_date = $3
	`
	return r.scanOne(r.db.runner(ctx).QueryRowContext(ctx, query, symbol, exchange, domain.StartOfDayUTC(date)))
}

// FindLatestOnOrBefore retrieves the most recent quote dated at or before
// the given day, never a future-dated record
func (r *spotQuoteRepository) FindLatestOnOrBefore(ctx context.Context, symbol, exchange string, date time.Time) (*domain.SpotQuote, error) {
	query := `
		SELECT id, symbol, exchange, price_usd, price_date, fetched_at, raw
		FROM spot_quotes
		WHERE symbol = $1 AND exchange = $2 AND price_date <= $3
		ORDER BY price_date DESC
		LIMIT 1
	`
	return r.scanOne(r.db.runner(ctx).QueryRowContext(ctx, query, symbol, exchange, domain.StartOfDayUTC(date)))
}

// ListDates retrieves the sorted distinct price dates on file for a
// symbol/exchange pair
func (r *spotQuoteRepository) ListDates(ctx context.Context, symbol, exchange string) ([]time.Time, error) {
	query := `
		SELECT DISTINCT price_date
		FROM spot_quotes
		WHERE symbol = $1 AND exchange = $2
		ORDER BY price_date
	`

	rows, err := r.db.runner(ctx).QueryContext(ctx, query, symbol, exchange)
	if err != nil {
		return nil, fmt.Errorf("failed to query quote dates: %w", err)
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("failed to scan quote date: %w", err)
		}
		dates = append(dates, d.UTC())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate quote dates: %w", err)
	}

	return dates, nil
}

func (r *spotQuoteRepository) scanOne(row *sql.Row) (*domain.SpotQuote, error) {
	quote := &domain.SpotQuote{}
	var price string
	err := row.Scan(&quote.ID, &quote.Symbol, &quote.Exchange, &price, &quote.PriceDate, &quote.FetchedAt, &quote.Raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan spot quote: %w", err)
	}

	quote.PriceUSD, err = decimal.NewFromString(price)
	if err != nil {
		return nil, fmt.Errorf("failed to parse quote price: %w", err)
	}
	quote.PriceDate = quote.PriceDate.UTC()
	return quote, nil
}
