package quoteapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fundops/backoffice/internal/domain"
)

const defaultCoinGeckoURL = "https://api.coingecko.com/api/v3"

// coinIDs maps ticker symbols to CoinGecko coin identifiers for the
// currencies the service tracks. Unmapped symbols fall back to the
// lowercased ticker.
var coinIDs = map[string]string{
	"BTC":  "bitcoin",
	"ETH":  "ethereum",
	"SOL":  "solana",
	"USDT": "tether",
	"USDC": "usd-coin",
	"XRP":  "ripple",
	"ADA":  "cardano",
	"DOT":  "polkadot",
}

// coinGeckoClient fetches daily prices from the CoinGecko-shaped history
// endpoint, one request per symbol.
type coinGeckoClient struct {
	httpClient *http.Client
	baseURL    string
}

func newCoinGeckoClient(httpClient *http.Client, baseURL string) *coinGeckoClient {
	if baseURL == "" {
		baseURL = defaultCoinGeckoURL
	}
	return &coinGeckoClient{httpClient: httpClient, baseURL: baseURL}
}

// historyResponse is the subset of the coin history payload we read.
type historyResponse struct {
	MarketData struct {
		CurrentPrice map[string]decimal.Decimal `json:"current_price"`
	} `json:"market_data"`
}

// GetHistoricalPrices fetches the USD price of each symbol on the given UTC
// day. Symbols without data for that day are skipped with a warning.
func (c *coinGeckoClient) GetHistoricalPrices(ctx context.Context, symbols []string, exchange string, date time.Time) ([]domain.PriceQuote, error) {
	day := domain.StartOfDayUTC(date)

	quotes := make([]domain.PriceQuote, 0, len(symbols))
	for _, symbol := range symbols {
		quote, err := c.fetchOne(ctx, symbol, day)
		if err != nil {
			return nil, fmt.Errorf("coingecko %s: %w", symbol, err)
		}
		if quote == nil {
			log.Warn().Str("symbol", symbol).Time("date", day).Msg("no coingecko price for symbol")
			continue
		}
		quotes = append(quotes, *quote)
	}
	return quotes, nil
}

func (c *coinGeckoClient) fetchOne(ctx context.Context, symbol string, day time.Time) (*domain.PriceQuote, error) {
	id, ok := coinIDs[strings.ToUpper(symbol)]
	if !ok {
		id = strings.ToLower(symbol)
	}

	// History takes the date as dd-mm-yyyy.
	reqURL := fmt.Sprintf("%s/coins/%s/history?date=%s&localization=false",
		c.baseURL, id, day.Format("02-01-2006"))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	var payload historyResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	price, ok := payload.MarketData.CurrentPrice["usd"]
	if !ok || price.IsZero() {
		return nil, nil
	}

	ts := day
	return &domain.PriceQuote{
		Symbol:    strings.ToUpper(symbol),
		PriceUSD:  price,
		Contract:  id,
		Timestamp: &ts,
		Raw:       body,
	}, nil
}
