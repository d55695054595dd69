package primebroker

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/net/proxy"

	"github.com/fundops/backoffice/internal/config"
)

// NewHTTPClient builds the outbound HTTP client, dialing through a SOCKS5
// proxy when one is configured.
func NewHTTPClient(cfg config.ProxyConfig) (*http.Client, error) {
	if !cfg.Enabled() {
		return &http.Client{Timeout: requestTimeout}, nil
	}

	var auth *proxy.Auth
	if cfg.Username != "" {
		auth = &proxy.Auth{User: cfg.Username, Password: cfg.Password}
	}

	dialer, err := proxy.SOCKS5("tcp", cfg.Addr(), auth, &net.Dialer{Timeout: 10 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("build socks5 dialer for %s: %w", cfg.Addr(), err)
	}

	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			if contextDialer, ok := dialer.(proxy.ContextDialer); ok {
				return contextDialer.DialContext(ctx, network, addr)
			}
			return dialer.Dial(network, addr)
		},
	}

	return &http.Client{Transport: transport, Timeout: requestTimeout}, nil
}
