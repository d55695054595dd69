package primebroker

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/fundops/backoffice/internal/domain"
)

// cacheKey identifies one cached client. Including the credential
// fingerprint means a rotated secret misses the cache and builds a fresh
// client instead of reusing a stale token.
type cacheKey struct {
	shareClass  string
	fingerprint string
}

// Factory implements domain.BrokerClientFactory with a guarded client cache.
type Factory struct {
	httpClient *http.Client
	baseURL    string

	mu      sync.Mutex
	clients map[cacheKey]*Client
}

// NewFactory creates a client factory. httpClient may carry a SOCKS5 proxy
// transport (see proxy.go); nil uses a default client.
func NewFactory(httpClient *http.Client, baseURL string) *Factory {
	return &Factory{
		httpClient: httpClient,
		baseURL:    baseURL,
		clients:    make(map[cacheKey]*Client),
	}
}

// ClientFor returns the cached client for the share class, building one on
// first use or after a credential change.
func (f *Factory) ClientFor(sc *domain.ShareClass) (domain.BrokerAPI, error) {
	key := cacheKey{shareClass: sc.Name, fingerprint: fingerprint(sc)}

	f.mu.Lock()
	defer f.mu.Unlock()

	if client, ok := f.clients[key]; ok {
		return client, nil
	}

	client, err := NewClient(sc, f.httpClient, f.baseURL)
	if err != nil {
		return nil, err
	}

	f.clients[key] = client
	log.Debug().Str("share_class", sc.Name).Msg("created prime broker client")
	return client, nil
}

// Invalidate drops every cached client for the share class.
func (f *Factory) Invalidate(shareClassName string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	for key := range f.clients {
		if key.shareClass == shareClassName {
			delete(f.clients, key)
		}
	}
}

func fingerprint(sc *domain.ShareClass) string {
	sum := sha256.Sum256([]byte(sc.ClientID + "|" + sc.ClientSecret + "|" + sc.Audience))
	return hex.EncodeToString(sum[:8])
}
