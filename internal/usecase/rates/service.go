// Package rates keeps the daily spot-quote store fresh: it ingests prices
// from the external quote API, detects missing days in the stored series and
// drives gap-aware backfill.
package rates

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/fundops/backoffice/internal/domain"
)

// SymbolAnalysis is the backfill verdict for one tracked symbol.
type SymbolAnalysis struct {
	Symbol            string
	AvailableDays     int
	MissingRecentDays int
	Gaps              []domain.DateGap
	NeedsBackfill     bool
}

// BackfillAnalysis aggregates per-symbol verdicts.
type BackfillAnalysis struct {
	NeedsBackfill bool
	Symbols       []SymbolAnalysis
}

// Service ingests and repairs the daily rate series for one rate source.
type Service struct {
	QuoteRepo domain.SpotQuoteRepository
	PriceAPI  domain.HistoricalPriceAPI
	Exchange  string

	// RequestDelay spaces consecutive per-date backfill fetches as
	// rate-limit courtesy to the upstream API.
	RequestDelay time.Duration

	now func() time.Time
}

// NewService creates a new rate ingestion service.
func NewService(quoteRepo domain.SpotQuoteRepository, priceAPI domain.HistoricalPriceAPI, exchange string, requestDelay time.Duration) *Service {
	return &Service{
		QuoteRepo:    quoteRepo,
		PriceAPI:     priceAPI,
		Exchange:     exchange,
		RequestDelay: requestDelay,
		now:          time.Now,
	}
}

// FetchAndStore fetches the given UTC day's prices for all symbols and
// upserts one SpotQuote per returned symbol. A storage failure for one
// symbol is logged and skipped so the rest of the batch still lands.
func (s *Service) FetchAndStore(ctx context.Context, date time.Time, symbols []string) ([]*domain.SpotQuote, error) {
	day := domain.StartOfDayUTC(date)

	prices, err := s.PriceAPI.GetHistoricalPrices(ctx, symbols, s.Exchange, day)
	if err != nil {
		return nil, fmt.Errorf("fetch historical prices for %s: %w", day.Format("2006-01-02"), err)
	}

	stored := make([]*domain.SpotQuote, 0, len(prices))
	for _, price := range prices {
		quote := &domain.SpotQuote{
			ID:        uuid.New(),
			Symbol:    price.Symbol,
			Exchange:  s.Exchange,
			PriceUSD:  price.PriceUSD,
			PriceDate: day,
			FetchedAt: s.now().UTC(),
			Raw:       price.Raw,
		}
		if err := s.QuoteRepo.Upsert(ctx, quote); err != nil {
			log.Warn().Err(err).
				Str("symbol", price.Symbol).
				Time("date", day).
				Msg("failed to store spot quote, skipping symbol")
			continue
		}
		stored = append(stored, quote)
	}

	return stored, nil
}

// DetectGaps scans the sorted distinct dates on file for a symbol and
// reports every interior run of missing calendar days.
func (s *Service) DetectGaps(ctx context.Context, symbol string) ([]domain.DateGap, error) {
	dates, err := s.QuoteRepo.ListDates(ctx, symbol, s.Exchange)
	if err != nil {
		return nil, fmt.Errorf("list quote dates for %s: %w", symbol, err)
	}

	var gaps []domain.DateGap
	for i := 1; i < len(dates); i++ {
		prev := domain.StartOfDayUTC(dates[i-1])
		next := domain.StartOfDayUTC(dates[i])

		dayDiff := int(next.Sub(prev).Hours() / 24)
		if dayDiff <= 1 {
			continue
		}

		gaps = append(gaps, domain.DateGap{
			Start:       prev.AddDate(0, 0, 1),
			End:         next.AddDate(0, 0, -1),
			MissingDays: dayDiff - 1,
		})
	}

	return gaps, nil
}

// AnalyzeBackfillRequirement decides, per symbol, whether recent days are
// missing or interior gaps exist. A symbol whose analysis fails is
// conservatively treated as fully missing rather than failing the whole
// analysis.
func (s *Service) AnalyzeBackfillRequirement(ctx context.Context, symbols []string, lookbackDays int) BackfillAnalysis {
	analysis := BackfillAnalysis{Symbols: make([]SymbolAnalysis, 0, len(symbols))}

	for _, symbol := range symbols {
		sa, err := s.analyzeSymbol(ctx, symbol, lookbackDays)
		if err != nil {
			log.Warn().Err(err).Str("symbol", symbol).Msg("symbol analysis failed, assuming fully missing")
			sa = SymbolAnalysis{
				Symbol:            symbol,
				MissingRecentDays: lookbackDays,
				NeedsBackfill:     true,
			}
		}
		if sa.NeedsBackfill {
			analysis.NeedsBackfill = true
		}
		analysis.Symbols = append(analysis.Symbols, sa)
	}

	return analysis
}

func (s *Service) analyzeSymbol(ctx context.Context, symbol string, lookbackDays int) (SymbolAnalysis, error) {
	dates, err := s.QuoteRepo.ListDates(ctx, symbol, s.Exchange)
	if err != nil {
		return SymbolAnalysis{}, fmt.Errorf("list quote dates for %s: %w", symbol, err)
	}

	today := domain.StartOfDayUTC(s.now())
	windowStart := today.AddDate(0, 0, -lookbackDays)

	// The trailing window is [today-lookback, today-1]: today's rate only
	// lands tomorrow, so a store current through yesterday is complete.
	available := 0
	for _, d := range dates {
		if day := domain.StartOfDayUTC(d); !day.Before(windowStart) && day.Before(today) {
			available++
		}
	}

	missingRecent := lookbackDays - available
	if missingRecent < 0 {
		missingRecent = 0
	}

	gaps, err := s.DetectGaps(ctx, symbol)
	if err != nil {
		return SymbolAnalysis{}, err
	}

	return SymbolAnalysis{
		Symbol:            symbol,
		AvailableDays:     available,
		MissingRecentDays: missingRecent,
		Gaps:              gaps,
		NeedsBackfill:     missingRecent > 0 || len(gaps) > 0,
	}, nil
}

// Backfill fetches and stores every missing date identified by analysis,
// oldest first, one request per date with RequestDelay between requests.
// Per-date failures are logged and skipped. Returns the number of dates
// successfully processed.
func (s *Service) Backfill(ctx context.Context, symbols []string, analysis BackfillAnalysis) int {
	dates := s.missingDates(analysis)
	if len(dates) == 0 {
		return 0
	}

	log.Info().Int("dates", len(dates)).Str("exchange", s.Exchange).Msg("starting rate backfill")

	processed := 0
	for i, date := range dates {
		if i > 0 && s.RequestDelay > 0 {
			time.Sleep(s.RequestDelay)
		}
		if _, err := s.FetchAndStore(ctx, date, symbols); err != nil {
			log.Warn().Err(err).Time("date", date).Msg("backfill fetch failed, skipping date")
			continue
		}
		processed++
	}

	log.Info().Int("processed", processed).Int("requested", len(dates)).Msg("rate backfill finished")
	return processed
}

// missingDates builds the ascending union of every symbol's missing recent
// days and interior gap days.
func (s *Service) missingDates(analysis BackfillAnalysis) []time.Time {
	today := domain.StartOfDayUTC(s.now())
	seen := make(map[time.Time]struct{})

	for _, sa := range analysis.Symbols {
		// Trailing-window days are refetched wholesale when any are missing;
		// the upsert keyed on (symbol, exchange, date) makes refetching
		// existing days harmless.
		for d := 1; d <= sa.MissingRecentDays; d++ {
			seen[today.AddDate(0, 0, -d)] = struct{}{}
		}
		for _, gap := range sa.Gaps {
			for day := gap.Start; !day.After(gap.End); day = day.AddDate(0, 0, 1) {
				seen[day] = struct{}{}
			}
		}
	}

	dates := make([]time.Time, 0, len(seen))
	for d := range seen {
		dates = append(dates, d)
	}
	sort.Slice(dates, func(i, j int) bool { return dates[i].Before(dates[j]) })
	return dates
}

// RunDailySync is the scheduled entrypoint: repair the series if the
// analysis calls for it, then always ingest the previous UTC day.
func (s *Service) RunDailySync(ctx context.Context, symbols []string, lookbackDays int) (int, error) {
	analysis := s.AnalyzeBackfillRequirement(ctx, symbols, lookbackDays)
	if analysis.NeedsBackfill {
		s.Backfill(ctx, symbols, analysis)
	}

	yesterday := domain.StartOfDayUTC(s.now()).AddDate(0, 0, -1)
	stored, err := s.FetchAndStore(ctx, yesterday, symbols)
	if err != nil {
		return 0, err
	}
	return len(stored), nil
}
