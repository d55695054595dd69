// Package quoteapi provides domain.HistoricalPriceAPI clients for the
// supported upstream rate sources. Both sources answer the same question,
// daily USD prices for a symbol set, behind different endpoint shapes.
package quoteapi

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fundops/backoffice/internal/domain"
)

const requestTimeout = 30 * time.Second

// Source names accepted by New. They double as the Exchange value stamped
// on stored quotes.
const (
	SourceCryptoCompare = "cryptocompare"
	SourceCoinGecko     = "coingecko"
)

// New returns the price client for the configured rate source. httpClient
// may carry a SOCKS5 proxy transport; nil uses a default client. baseURL
// overrides the source's public endpoint, primarily for tests.
func New(source string, httpClient *http.Client, baseURL string) (domain.HistoricalPriceAPI, error) {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	switch source {
	case SourceCryptoCompare:
		return newCryptoCompareClient(httpClient, baseURL), nil
	case SourceCoinGecko:
		return newCoinGeckoClient(httpClient, baseURL), nil
	default:
		return nil, fmt.Errorf("unknown rate source %q", source)
	}
}
