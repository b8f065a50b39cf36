// Package amfi fetches NAV history from the AMFI public portal.
package amfi

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/time/rate"

	"navpulse/internal/materializer"
)

const (
	DefaultBaseURL   = "https://portal.amfiindia.com"
	historyPath      = "/DownloadNAVHistoryReport_Po.aspx"
	schemeDataPath   = "/DownloadSchemeData_Po.aspx"
	queryDateLayout  = "02-Jan-2006"
	defaultUserAgent = "navpulse/1.0"
	maxBodyBytes     = 256 << 20
)

// ClientConfig configures the portal client
type ClientConfig struct {
	BaseURL           string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
	UserAgent         string
	HTTPClient        *http.Client
}

// Client issues rate limited requests against the portal.
type Client struct {
	http      *http.Client
	baseURL   *url.URL
	limiter   *rate.Limiter
	userAgent string
}

// NewClient creates a client. Zero values fall back to defaults.
func NewClient(cfg ClientConfig) (*Client, error) {
	base := cfg.BaseURL
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("invalid base url %q: %w", base, err)
	}

	hc := cfg.HTTPClient
	if hc == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		hc = &http.Client{Timeout: timeout}
	}

	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst < 1 {
		burst = 1
	}

	ua := cfg.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}

	return &Client{
		http:      hc,
		baseURL:   u,
		limiter:   rate.NewLimiter(limit, burst),
		userAgent: ua,
	}, nil
}

// HistoryURL builds the report URL for the inclusive range [from, to].
func (c *Client) HistoryURL(from, to time.Time) string {
	u := *c.baseURL
	u.Path = historyPath
	q := url.Values{}
	q.Set("tp", "1")
	q.Set("frmdt", from.Format(queryDateLayout))
	q.Set("todt", to.Format(queryDateLayout))
	u.RawQuery = q.Encode()
	return u.String()
}

// NAVHistory downloads the raw report for [from, to].
//
// Network failures, timeouts, 429 and 5xx responses come back as
// *materializer.TransientFetchError. Any other non-200 status is a
// *materializer.FetchError.
func (c *Client) NAVHistory(ctx context.Context, from, to time.Time) ([]byte, error) {
	return c.download(ctx, c.HistoryURL(from, to), func(status int, transient bool, cause error) error {
		if transient {
			return materializer.NewTransientFetchError(from, status, cause)
		}
		return materializer.NewFetchError(from, status, cause)
	})
}

// SchemeDataURL is the address of the scheme data file.
func (c *Client) SchemeDataURL() string {
	u := *c.baseURL
	u.Path = schemeDataPath
	u.RawQuery = url.Values{"mf": {"0"}}.Encode()
	return u.String()
}

// SchemeData downloads the comma separated scheme data file listing every
// open scheme. Failures come back as *MetadataFetchError.
func (c *Client) SchemeData(ctx context.Context) ([]byte, error) {
	return c.download(ctx, c.SchemeDataURL(), func(status int, transient bool, cause error) error {
		return &MetadataFetchError{StatusCode: status, Transient: transient, Cause: cause}
	})
}

// MetadataFetchError is a failed scheme data download.
type MetadataFetchError struct {
	StatusCode int
	Transient  bool
	Cause      error
}

func (e *MetadataFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("scheme data: status %d: %v", e.StatusCode, e.Cause)
	}
	return fmt.Sprintf("scheme data: %v", e.Cause)
}

func (e *MetadataFetchError) Unwrap() error { return e.Cause }

// download GETs target through the limiter. fail builds the error for a
// request that got no usable body; transient marks failures a later
// request may not repeat.
func (c *Client) download(ctx context.Context, target string, fail func(status int, transient bool, cause error) error) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, fail(0, false, err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "text/plain, text/csv, */*")

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fail(0, true, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		transient := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
		return nil, fail(resp.StatusCode, transient, fmt.Errorf("unexpected status %s", resp.Status))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fail(resp.StatusCode, true, fmt.Errorf("read body: %w", err))
	}

	// The portal answers with an HTML page while under maintenance.
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '<' {
		return nil, fail(resp.StatusCode, true, errors.New("html page instead of report"))
	}

	return body, nil
}
