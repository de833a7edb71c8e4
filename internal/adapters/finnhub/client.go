// Package finnhub is a small client for the Finnhub stock filings API.
package finnhub

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"finvisor/internal/adapters/ratelimit"
	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
)

const DefaultBaseURL = "https://finnhub.io/api/v1"

// Filing is one entry of /stock/filings
type Filing struct {
	AccessNumber string `json:"accessNumber"`
	Symbol       string `json:"symbol"`
	CIK          string `json:"cik"`
	Form         string `json:"form"`
	FiledDate    string `json:"filedDate"`
	AcceptedDate string `json:"acceptedDate"`
	ReportURL    string `json:"reportUrl"`
	FilingURL    string `json:"filingUrl"`
	FormURL      string `json:"formUrl"`
}

// DocumentURL prefers the report, then the form page. The filing index
// page lists exhibits rather than the document, so it is never used.
func (f Filing) DocumentURL() string {
	for _, u := range []string{f.ReportURL, f.FormURL} {
		if strings.TrimSpace(u) != "" {
			return u
		}
	}
	return ""
}

// Config configures the Finnhub client
type Config struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
	Limiter ratelimit.Waiter
	// UserAgent is sent on document downloads; sec.gov rejects anonymous agents
	UserAgent string
}

// Client calls Finnhub and downloads the documents it links to
type Client struct {
	api      *resty.Client
	download *resty.Client
	limiter  ratelimit.Waiter
}

// NewClient creates a Finnhub client
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "finnhub api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewPerMinute("finnhub", 60)
	}

	download := resty.New().SetTimeout(cfg.Timeout)
	if cfg.UserAgent != "" {
		download.SetHeader("User-Agent", cfg.UserAgent)
	}

	return &Client{
		api: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetRetryCount(2).
			SetQueryParam("token", cfg.APIKey),
		download: download,
		limiter:  cfg.Limiter,
	}, nil
}

// Filings lists the SEC filings Finnhub knows for symbol, newest first
func (c *Client) Filings(ctx context.Context, symbol string) ([]Filing, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, errors.NewValidationError("symbol", "must not be empty", symbol)
	}
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	var filings []Filing
	resp, err := c.api.R().
		SetContext(ctx).
		SetQueryParam("symbol", symbol).
		SetResult(&filings).
		Get("/stock/filings")
	err = statusError(resp, err, "finnhub filings")
	metrics.RecordExternalAPICall("finnhub", "stock_filings", time.Since(start), err)
	if err != nil {
		return nil, err
	}
	return filings, nil
}

// Fetch downloads a document linked from a filing.
// Non-200 responses are returned as errors so callers can skip them.
func (c *Client) Fetch(ctx context.Context, url string) ([]byte, error) {
	start := time.Now()
	resp, err := c.download.R().SetContext(ctx).Get(url)
	if err == nil && resp.StatusCode() != http.StatusOK {
		err = errors.Wrapf(errors.ErrExternal, "GET %s returned %d", url, resp.StatusCode())
	}
	metrics.RecordExternalAPICall("finnhub", "document", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrapf(err, "fetch %s", url)
	}
	return resp.Body(), nil
}

func statusError(resp *resty.Response, err error, what string) error {
	if err != nil {
		return errors.Wrap(err, what)
	}
	switch {
	case resp.StatusCode() == http.StatusUnauthorized || resp.StatusCode() == http.StatusForbidden:
		return errors.Wrapf(errors.ErrUnauthorized, "%s returned %d", what, resp.StatusCode())
	case resp.StatusCode() == http.StatusTooManyRequests:
		return errors.Wrapf(errors.ErrRateLimitExceeded, "%s", what)
	case resp.IsError():
		return errors.Wrapf(errors.ErrExternal, "%s returned %d", what, resp.StatusCode())
	}
	return nil
}
