package fetch

import (
	"crypto/tls"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/sirupsen/logrus"

	"img-scraper/pkg/config"
)

// Clients pairs the default verifying client with the fallback used after a TLS verification failure.
// Both share the same transport settings; only certificate verification differs.
type Clients struct {
	Verified *http.Client
	Insecure *http.Client
}

// NewClients builds the verifying and insecure clients from the configuration
func NewClients(cfg config.HTTPClientConfig, timeout time.Duration, log *logrus.Entry) *Clients {
	return &Clients{
		Verified: NewClient(cfg, timeout, false, log),
		Insecure: NewClient(cfg, timeout, true, log),
	}
}

// NewClient creates a new HTTP client based on the provided configuration.
// Compression is negotiated explicitly by the fetcher, so the transport does not add Accept-Encoding itself.
func NewClient(cfg config.HTTPClientConfig, timeout time.Duration, insecure bool, log *logrus.Entry) *http.Client {
	clientLog := log.WithField("insecure", insecure)
	clientLog.Debug("Initializing HTTP client...")

	// Create custom dialer with configured timeouts
	dialer := &net.Dialer{
		Timeout:   cfg.DialerTimeout,
		KeepAlive: cfg.DialerKeepAlive,
	}

	transport := &http.Transport{
		Proxy:                  http.ProxyFromEnvironment,
		DialContext:            dialer.DialContext,
		ForceAttemptHTTP2:      true,
		MaxIdleConns:           cfg.MaxIdleConns,
		MaxIdleConnsPerHost:    cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:        cfg.IdleConnTimeout,
		TLSHandshakeTimeout:    cfg.TLSHandshakeTimeout,
		ExpectContinueTimeout:  cfg.ExpectContinueTimeout,
		MaxResponseHeaderBytes: 1 << 20,
		DisableCompression:     true,
	}
	if cfg.ForceAttemptHTTP2 != nil {
		transport.ForceAttemptHTTP2 = *cfg.ForceAttemptHTTP2
	}
	if insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // fallback for broken chains, logged by the fetcher
	}

	maxRedirects := cfg.MaxRedirects
	if maxRedirects <= 0 {
		maxRedirects = 10
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= maxRedirects {
				return fmt.Errorf("stopped after %d redirects", maxRedirects)
			}
			clientLog.Debugf("Redirecting: %s -> %s (hop %d)", via[len(via)-1].URL, req.URL, len(via))
			return nil
		},
	}
}
