// Package primebroker provides the authenticated client for the external
// prime-broker API: account listing and deposit/withdrawal event fetching
// per share class.
//
// Clients are built lazily from a share class's stored credentials and
// cached keyed by (share class, credential fingerprint), so rotating a
// credential naturally produces a fresh client. All outbound calls can be
// routed through a SOCKS5 proxy.
package primebroker

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/shopspring/decimal"

	"github.com/fundops/backoffice/internal/domain"
)

const (
	defaultBaseURL   = "https://api.hiddenroad.com/v0"
	tokenGracePeriod = 30 * time.Second
	requestTimeout   = 30 * time.Second
)

// Client implements domain.BrokerAPI for one share class.
type Client struct {
	baseURL      string
	clientID     string
	clientSecret string
	audience     string
	httpClient   *http.Client

	mu          sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

// NewClient creates an authenticated client from share class credentials.
// Returns ErrNoCredentials when the share class carries none.
func NewClient(sc *domain.ShareClass, httpClient *http.Client, baseURL string) (*Client, error) {
	if !sc.HasCredentials() {
		return nil, fmt.Errorf("%w: %s", domain.ErrNoCredentials, sc.Name)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &Client{
		baseURL:      baseURL,
		clientID:     sc.ClientID,
		clientSecret: sc.ClientSecret,
		audience:     sc.Audience,
		httpClient:   httpClient,
	}, nil
}

// tokenResponse is the OAuth client-credentials grant response.
type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// token returns a valid bearer token, refreshing when the cached one is
// absent or within the grace period of expiry.
func (c *Client) token(ctx context.Context) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.accessToken != "" && time.Now().Before(c.tokenExpiry.Add(-tokenGracePeriod)) {
		return c.accessToken, nil
	}

	body, err := json.Marshal(map[string]string{
		"grant_type":    "client_credentials",
		"client_id":     c.clientID,
		"client_secret": c.clientSecret,
		"audience":      c.audience,
	})
	if err != nil {
		return "", fmt.Errorf("encode token request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/auth/token", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	var tok tokenResponse
	if err := c.do(req, &tok); err != nil {
		return "", fmt.Errorf("fetch access token: %w", err)
	}

	c.accessToken = tok.AccessToken
	c.tokenExpiry = time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return c.accessToken, nil
}

// remoteAccount is the wire shape of one account entry.
type remoteAccount struct {
	Account string `json:"account"`
	Venue   string `json:"venue"`
}

// ListAccounts retrieves all accounts visible to the share class.
func (c *Client) ListAccounts(ctx context.Context) ([]domain.RemoteAccount, error) {
	var payload struct {
		Accounts []remoteAccount `json:"accounts"`
	}
	if err := c.get(ctx, "/accounts", nil, &payload); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}

	accounts := make([]domain.RemoteAccount, 0, len(payload.Accounts))
	for _, a := range payload.Accounts {
		accounts = append(accounts, domain.RemoteAccount{Account: a.Account, Venue: a.Venue})
	}
	return accounts, nil
}

// transferEvent is the wire shape of one deposit/withdrawal event. Numeric
// values arrive as strings to preserve precision.
type transferEvent struct {
	ID           string `json:"id"`
	Quantity     string `json:"quantity"`
	Asset        string `json:"asset"`
	EventTime    int64  `json:"event_timestamp"`    // unix millis
	TransferTime int64  `json:"transfer_timestamp"` // unix millis
	Venue        string `json:"venue"`
	Account      string `json:"account"`
}

// FetchDeposits retrieves deposit events for one venue/account pair.
func (c *Client) FetchDeposits(ctx context.Context, q domain.TransferQuery) ([]domain.TransferEvent, error) {
	return c.fetchTransfers(ctx, "/transfers/deposits", q)
}

// FetchWithdrawals retrieves withdrawal events for one venue/account pair.
func (c *Client) FetchWithdrawals(ctx context.Context, q domain.TransferQuery) ([]domain.TransferEvent, error) {
	return c.fetchTransfers(ctx, "/transfers/withdrawals", q)
}

func (c *Client) fetchTransfers(ctx context.Context, path string, q domain.TransferQuery) ([]domain.TransferEvent, error) {
	params := url.Values{}
	params.Set("venue", q.Venue)
	params.Set("account", q.Account)
	params.Set("start", q.Start.UTC().Format(time.RFC3339))
	params.Set("end", q.End.UTC().Format(time.RFC3339))
	if q.PageSize > 0 {
		params.Set("limit", strconv.Itoa(q.PageSize))
	}

	var payload struct {
		Transfers []transferEvent `json:"transfers"`
	}
	if err := c.get(ctx, path, params, &payload); err != nil {
		return nil, fmt.Errorf("fetch transfers %s: %w", path, err)
	}

	events := make([]domain.TransferEvent, 0, len(payload.Transfers))
	for _, e := range payload.Transfers {
		quantity, err := decimal.NewFromString(e.Quantity)
		if err != nil {
			return nil, fmt.Errorf("parse quantity %q for event %s: %w", e.Quantity, e.ID, err)
		}
		events = append(events, domain.TransferEvent{
			ID:           e.ID,
			Quantity:     quantity,
			Asset:        e.Asset,
			EventTime:    time.UnixMilli(e.EventTime).UTC(),
			TransferTime: time.UnixMilli(e.TransferTime).UTC(),
			Venue:        e.Venue,
			Account:      e.Account,
		})
	}
	return events, nil
}

// get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	token, err := c.token(ctx)
	if err != nil {
		return err
	}

	reqURL := c.baseURL + path
	if len(params) > 0 {
		reqURL += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}
