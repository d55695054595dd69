package quoteapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/fundops/backoffice/internal/domain"
)

const defaultCryptoCompareURL = "https://min-api.cryptocompare.com"

// cryptoCompareClient fetches daily prices from the CryptoCompare-shaped
// historical endpoint, one request per symbol.
type cryptoCompareClient struct {
	httpClient *http.Client
	baseURL    string
}

func newCryptoCompareClient(httpClient *http.Client, baseURL string) *cryptoCompareClient {
	if baseURL == "" {
		baseURL = defaultCryptoCompareURL
	}
	return &cryptoCompareClient{httpClient: httpClient, baseURL: baseURL}
}

// GetHistoricalPrices fetches the USD close price of each symbol at the end
// of the given UTC day. A symbol the upstream does not know is skipped with
// a warning rather than failing the batch.
func (c *cryptoCompareClient) GetHistoricalPrices(ctx context.Context, symbols []string, exchange string, date time.Time) ([]domain.PriceQuote, error) {
	// The endpoint answers "price as of timestamp"; end of day gives the
	// daily close.
	ts := domain.StartOfDayUTC(date).Add(24*time.Hour - time.Second)

	quotes := make([]domain.PriceQuote, 0, len(symbols))
	for _, symbol := range symbols {
		quote, err := c.fetchOne(ctx, symbol, ts)
		if err != nil {
			return nil, fmt.Errorf("cryptocompare %s: %w", symbol, err)
		}
		if quote == nil {
			log.Warn().Str("symbol", symbol).Time("date", date).Msg("no cryptocompare price for symbol")
			continue
		}
		quotes = append(quotes, *quote)
	}
	return quotes, nil
}

func (c *cryptoCompareClient) fetchOne(ctx context.Context, symbol string, ts time.Time) (*domain.PriceQuote, error) {
	params := url.Values{}
	params.Set("fsym", symbol)
	params.Set("tsyms", "USD")
	params.Set("ts", strconv.FormatInt(ts.Unix(), 10))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/data/pricehistorical?"+params.Encode(), nil)
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
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}

	// Success shape: {"BTC":{"USD":45000.12}}. Errors come back as 200 with
	// {"Response":"Error","Message":"..."}.
	var failure struct {
		Response string `json:"Response"`
		Message  string `json:"Message"`
	}
	if err := json.Unmarshal(body, &failure); err == nil && failure.Response == "Error" {
		return nil, fmt.Errorf("upstream error: %s", failure.Message)
	}

	var payload map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse response: %w", err)
	}

	price, ok := payload[symbol]["USD"]
	if !ok || price.IsZero() {
		return nil, nil
	}

	return &domain.PriceQuote{
		Symbol:    symbol,
		PriceUSD:  price,
		Timestamp: &ts,
		Raw:       body,
	}, nil
}
