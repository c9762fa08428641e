package fetch

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"img-scraper/pkg/config"
	"img-scraper/pkg/models"
	"img-scraper/pkg/retry"
	"img-scraper/pkg/utils"
)

// Request kinds, used as log fields and metric labels
const (
	KindPage   = "page"
	KindImage  = "image"
	KindRobots = "robots"
)

const pageAccept = "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8"

// Recorder receives fetch-level events
type Recorder interface {
	FetchAttempt(kind, result string)
	TLSFallback(kind string)
}

type nopRecorder struct{}

func (nopRecorder) FetchAttempt(string, string) {}
func (nopRecorder) TLSFallback(string)          {}

// Request describes one logical GET executed under a retry policy
type Request struct {
	URL    string
	Header http.Header
	Policy retry.Policy
	Kind   string
}

// Fetcher performs GET requests with bounded retries, exponential backoff and a TLS-verification fallback.
// The only state shared across calls is the connection pool inside the clients.
type Fetcher struct {
	clients  *Clients
	cfg      *config.AppConfig
	robots   *RobotsHandler // nil unless respect_robots is enabled
	recorder Recorder
	log      *logrus.Entry
}

// Option customizes a Fetcher
type Option func(*Fetcher)

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(f *Fetcher) {
		if r != nil {
			f.recorder = r
		}
	}
}

// NewFetcher creates a new Fetcher instance
func NewFetcher(clients *Clients, cfg *config.AppConfig, log *logrus.Entry, opts ...Option) *Fetcher {
	f := &Fetcher{
		clients:  clients,
		cfg:      cfg,
		recorder: nopRecorder{},
		log:      log,
	}
	for _, opt := range opts {
		opt(f)
	}
	if cfg.RespectRobots {
		f.robots = NewRobotsHandler(f, cfg.UserAgent, log.WithField("component", "robots"))
	}
	return f
}

// Do executes r and returns the first 2xx response. The caller must close its body.
// Network errors and 429/500/502/503/504 are retried with backoff; other statuses fail immediately.
// Every returned error wraps either ErrPermanent or the caller's context error.
func (f *Fetcher) Do(ctx context.Context, r Request) (*http.Response, error) {
	resp, _, err := f.do(ctx, r, nil)
	return resp, err
}

// GetBody executes r like Do but also reads the decoded body (capped at limit) inside each attempt,
// so a connection dropped mid-body is retried. The returned response's body is already closed.
func (f *Fetcher) GetBody(ctx context.Context, r Request, limit int64) (*http.Response, []byte, error) {
	return f.do(ctx, r, func(resp *http.Response) ([]byte, error) {
		return ReadBody(resp, limit)
	})
}

// do runs the retry loop. When read is non-nil it consumes every 2xx body and a read failure
// counts as a transient attempt.
func (f *Fetcher) do(ctx context.Context, r Request, read func(*http.Response) ([]byte, error)) (*http.Response, []byte, error) {
	reqLog := f.log.WithFields(logrus.Fields{"url": r.URL, "kind": r.Kind})
	attempts := r.Policy.Attempts()
	insecure := false
	var lastErr error

	for attempt := 1; attempt <= attempts; attempt++ {
		// --- Backoff before retries ---
		if attempt > 1 {
			delay := r.Policy.Delay(attempt - 1)
			reqLog.WithFields(logrus.Fields{"attempt": attempt, "max_attempts": attempts, "delay": delay}).Warn("Retrying request...")
			if err := retry.Sleep(ctx, delay); err != nil {
				return nil, nil, fmt.Errorf("%w: retry delay interrupted after: %w", err, lastErr)
			}
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		resp, err := f.once(ctx, r, insecure)

		// --- TLS fallback: once per call, sticky for the remaining attempts ---
		if err != nil && !insecure && isTLSVerificationError(err) {
			reqLog.WithError(err).Warn("TLS verification failed, retrying with verification disabled")
			f.recorder.TLSFallback(r.Kind)
			insecure = true
			resp, err = f.once(ctx, r, insecure)
			if err != nil {
				err = fmt.Errorf("%w: insecure fallback failed: %w", utils.ErrTLSVerification, err)
			}
		}

		// --- Network-level errors ---
		if err != nil {
			if ctx.Err() != nil {
				reqLog.Warnf("Context cancelled during HTTP request: %v", err)
				return nil, nil, fmt.Errorf("%w: %w", ctx.Err(), err)
			}
			if errors.Is(err, utils.ErrRequestCreation) || !utils.IsTransient(err) {
				return nil, nil, fmt.Errorf("%w: %w", utils.ErrPermanent, err)
			}
			f.recorder.FetchAttempt(r.Kind, "network_error")
			reqLog.WithField("attempt", attempt).Warnf("Network error: %v", err)
			lastErr = fmt.Errorf("%w: %w", utils.ErrTransient, err)
			continue
		}

		// --- HTTP status handling ---
		status := resp.StatusCode
		resLog := reqLog.WithFields(logrus.Fields{"status_code": status, "attempt": attempt})
		switch {
		case status >= 200 && status < 300:
			if read == nil {
				f.recorder.FetchAttempt(r.Kind, "success")
				resLog.Debug("Successfully fetched")
				return resp, nil, nil
			}
			body, err := read(resp)
			resp.Body.Close()
			if err != nil {
				if ctx.Err() != nil {
					return nil, nil, fmt.Errorf("%w: %w", ctx.Err(), err)
				}
				f.recorder.FetchAttempt(r.Kind, "body_error")
				resLog.Warnf("Reading response body failed: %v", err)
				if !errors.Is(err, utils.ErrTransient) {
					err = fmt.Errorf("%w: %w", utils.ErrTransient, err)
				}
				lastErr = err
				continue
			}
			f.recorder.FetchAttempt(r.Kind, "success")
			resLog.Debug("Successfully fetched")
			return resp, body, nil

		case isRetryableStatus(status):
			drainAndClose(resp)
			f.recorder.FetchAttempt(r.Kind, "retryable_status")
			resLog.Warn("Retryable status")
			lastErr = fmt.Errorf("%w: %w: status %d %s", utils.ErrTransient, statusSentinel(status), status, http.StatusText(status))
			continue

		default:
			drainAndClose(resp)
			f.recorder.FetchAttempt(r.Kind, "rejected_status")
			resLog.Warn("Non-retryable status, giving up")
			return nil, nil, fmt.Errorf("%w: %w: status %d %s", utils.ErrPermanent, statusSentinel(status), status, http.StatusText(status))
		}
	}

	reqLog.Errorf("All %d attempts failed. Last error: %v", attempts, lastErr)
	return nil, nil, fmt.Errorf("%w: %w: %w", utils.ErrPermanent, utils.ErrRetryFailed, lastErr)
}

// once performs a single HTTP exchange with either the verifying or the insecure client
func (f *Fetcher) once(ctx context.Context, r Request, insecure bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrRequestCreation, err)
	}
	for k, vs := range r.Header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	client := f.clients.Verified
	if insecure {
		client = f.clients.Insecure
	}
	return client.Do(req)
}

// Fetch retrieves a page, decodes its body to UTF-8 and parses it.
// Errors wrap ErrInvalidURL, ErrRobotsDisallowed, ErrPermanent or the context error.
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*models.PageDocument, error) {
	target, err := ParseTargetURL(rawURL)
	if err != nil {
		return nil, err
	}

	if f.robots != nil && !f.robots.TestAgent(ctx, target) {
		return nil, utils.WrapErrorf(utils.ErrRobotsDisallowed, "%s", target)
	}

	resp, body, err := f.GetBody(ctx, Request{
		URL:    target.String(),
		Header: f.pageHeaders(),
		Policy: f.cfg.PageRetry,
		Kind:   KindPage,
	}, f.cfg.MaxPageBytes)
	if err != nil {
		return nil, err
	}

	text, encName := DecodeText(body, resp.Header.Get("Content-Type"))
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(text))
	if err != nil {
		return nil, fmt.Errorf("%w: HTML parse of %s: %w", utils.ErrParsing, target, err)
	}

	finalURL := target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}
	doc.Url = finalURL

	f.log.WithFields(logrus.Fields{"url": target.String(), "encoding": encName, "bytes": len(body)}).Debug("Page fetched")
	return &models.PageDocument{
		Raw:      body,
		Text:     text,
		Encoding: encName,
		Doc:      doc,
		FinalURL: finalURL,
	}, nil
}

// pageHeaders returns browser-like headers for page requests
func (f *Fetcher) pageHeaders() http.Header {
	h := http.Header{}
	h.Set("User-Agent", f.cfg.UserAgent)
	h.Set("Accept", pageAccept)
	h.Set("Accept-Language", f.cfg.AcceptLanguage)
	h.Set("Accept-Encoding", AcceptEncoding)
	return h
}

// ParseTargetURL validates that raw is an absolute http(s) URL with a host
func ParseTargetURL(raw string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrInvalidURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, utils.WrapErrorf(utils.ErrInvalidURL, "unsupported scheme in '%s'", raw)
	}
	if u.Host == "" {
		return nil, utils.WrapErrorf(utils.ErrInvalidURL, "missing host in '%s'", raw)
	}
	return u, nil
}

// ReadBody reads a response body, undoing Content-Encoding and enforcing limit (0 = unlimited)
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	reader, err := DecodedBody(resp)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", utils.ErrResponseBodyRead, err)
	}
	defer reader.Close()

	var src io.Reader = reader
	if limit > 0 {
		src = io.LimitReader(reader, limit)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(src); err != nil {
		return nil, fmt.Errorf("%w: %w: %w", utils.ErrTransient, utils.ErrResponseBodyRead, err)
	}
	return buf.Bytes(), nil
}

func isRetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

func statusSentinel(code int) error {
	switch {
	case code >= 500:
		return utils.ErrServerHTTPError
	case code >= 400:
		return utils.ErrClientHTTPError
	default:
		return utils.ErrOtherHTTPError
	}
}

// isTLSVerificationError reports whether err stems from certificate verification rather than the handshake transport
func isTLSVerificationError(err error) bool {
	var verifyErr *tls.CertificateVerificationError
	if errors.As(err, &verifyErr) {
		return true
	}
	var unknownAuth x509.UnknownAuthorityError
	if errors.As(err, &unknownAuth) {
		return true
	}
	var hostErr x509.HostnameError
	if errors.As(err, &hostErr) {
		return true
	}
	var invalidErr x509.CertificateInvalidError
	return errors.As(err, &invalidErr)
}

func drainAndClose(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
