// Package edgar talks to SEC EDGAR: ticker lookup, recent filings and document downloads.
package edgar

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"

	"finvisor/internal/adapters/ratelimit"
	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

const (
	DefaultWWWURL  = "https://www.sec.gov"
	DefaultDataURL = "https://data.sec.gov"
)

// Config configures the EDGAR client
type Config struct {
	// UserAgent must identify the caller as "Company email" per SEC fair access rules
	UserAgent string
	WWWURL    string
	DataURL   string
	Timeout   time.Duration
	Limiter   ratelimit.Waiter
}

// Company is an entry of the SEC ticker map
type Company struct {
	CIK    int64  `json:"cik_str"`
	Ticker string `json:"ticker"`
	Title  string `json:"title"`
}

// PaddedCIK returns the ten-digit CIK used in submissions URLs
func (c Company) PaddedCIK() string {
	return fmt.Sprintf("%010d", c.CIK)
}

// Filing is one row of a company's recent filings
type Filing struct {
	CIK             int64
	Ticker          string
	AccessionNumber string
	Form            string
	FilingDate      string
	ReportDate      string
	PrimaryDocument string
}

// DocumentURL is the archive location of the filing's primary document
func (f Filing) DocumentURL(wwwURL string) string {
	return fmt.Sprintf("%s/Archives/edgar/data/%d/%s/%s",
		strings.TrimSuffix(wwwURL, "/"), f.CIK, strings.ReplaceAll(f.AccessionNumber, "-", ""), f.PrimaryDocument)
}

type submissions struct {
	CIK     string   `json:"cik"`
	Name    string   `json:"name"`
	Tickers []string `json:"tickers"`
	Filings struct {
		Recent struct {
			AccessionNumber []string `json:"accessionNumber"`
			FilingDate      []string `json:"filingDate"`
			ReportDate      []string `json:"reportDate"`
			Form            []string `json:"form"`
			PrimaryDocument []string `json:"primaryDocument"`
		} `json:"recent"`
	} `json:"filings"`
}

// Client is a rate-limited EDGAR HTTP client
type Client struct {
	www     *resty.Client
	data    *resty.Client
	wwwURL  string
	limiter ratelimit.Waiter
	log     *logger.Logger

	mu      sync.RWMutex
	tickers map[string]Company
}

// NewClient creates an EDGAR client
func NewClient(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.UserAgent) == "" {
		return nil, errors.NewValidationError("user_agent", "SEC requires a User-Agent with company and email", cfg.UserAgent)
	}
	if cfg.WWWURL == "" {
		cfg.WWWURL = DefaultWWWURL
	}
	if cfg.DataURL == "" {
		cfg.DataURL = DefaultDataURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Limiter == nil {
		cfg.Limiter = ratelimit.NewLimiter("sec", 10, 1)
	}

	newResty := func(base string) *resty.Client {
		return resty.New().
			SetBaseURL(base).
			SetTimeout(cfg.Timeout).
			SetRetryCount(2).
			SetRetryWaitTime(time.Second).
			SetHeader("User-Agent", cfg.UserAgent).
			SetHeader("Accept-Encoding", "gzip, deflate")
	}

	return &Client{
		www:     newResty(cfg.WWWURL),
		data:    newResty(cfg.DataURL),
		wwwURL:  cfg.WWWURL,
		limiter: cfg.Limiter,
		log:     logger.Get().With("component", "edgar"),
	}, nil
}

func (c *Client) get(ctx context.Context, rc *resty.Client, endpoint, path string, result interface{}) (*resty.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	start := time.Now()
	req := rc.R().SetContext(ctx)
	if result != nil {
		req.SetResult(result)
	}
	resp, err := req.Get(path)
	if err == nil && resp.IsError() {
		err = errors.Wrapf(errors.ErrExternal, "sec %s returned %d", path, resp.StatusCode())
		if resp.StatusCode() == http.StatusNotFound {
			err = errors.Wrapf(errors.ErrNotFound, "sec %s", path)
		}
		if resp.StatusCode() == http.StatusTooManyRequests {
			err = errors.Wrapf(errors.ErrRateLimitExceeded, "sec %s", path)
		}
	}
	metrics.RecordExternalAPICall("sec", endpoint, time.Since(start), err)
	if err != nil {
		return nil, errors.Wrapf(err, "sec request %s", path)
	}
	return resp, nil
}

// Company resolves a ticker symbol to its CIK; the ticker map is fetched once
func (c *Client) Company(ctx context.Context, ticker string) (Company, error) {
	ticker = strings.ToUpper(strings.TrimSpace(ticker))
	if ticker == "" {
		return Company{}, errors.NewValidationError("ticker", "must not be empty", ticker)
	}

	c.mu.RLock()
	loaded := c.tickers != nil
	company, ok := c.tickers[ticker]
	c.mu.RUnlock()
	if ok {
		return company, nil
	}
	if loaded {
		return Company{}, errors.Wrapf(errors.ErrUnknownTicker, "%s", ticker)
	}

	if err := c.loadTickers(ctx); err != nil {
		return Company{}, err
	}

	c.mu.RLock()
	company, ok = c.tickers[ticker]
	c.mu.RUnlock()
	if !ok {
		return Company{}, errors.Wrapf(errors.ErrUnknownTicker, "%s", ticker)
	}
	return company, nil
}

func (c *Client) loadTickers(ctx context.Context) error {
	var raw map[string]Company
	if _, err := c.get(ctx, c.www, "company_tickers", "/files/company_tickers.json", &raw); err != nil {
		return err
	}

	tickers := make(map[string]Company, len(raw))
	for _, company := range raw {
		tickers[strings.ToUpper(company.Ticker)] = company
	}

	c.mu.Lock()
	c.tickers = tickers
	c.mu.Unlock()

	c.log.Debugw("Loaded SEC ticker map", "companies", len(tickers))
	return nil
}

// RecentFilings lists the newest filings of the given form, newest first.
// Amendments are only returned when asked for explicitly (e.g. "10-K/A").
func (c *Client) RecentFilings(ctx context.Context, ticker, form string, limit int) ([]Filing, error) {
	company, err := c.Company(ctx, ticker)
	if err != nil {
		return nil, err
	}

	var subs submissions
	path := fmt.Sprintf("/submissions/CIK%s.json", company.PaddedCIK())
	if _, err := c.get(ctx, c.data, "submissions", path, &subs); err != nil {
		return nil, err
	}

	recent := subs.Filings.Recent
	form = strings.ToUpper(strings.TrimSpace(form))
	var filings []Filing
	for i := range recent.AccessionNumber {
		if i >= len(recent.Form) || strings.ToUpper(recent.Form[i]) != form {
			continue
		}
		f := Filing{
			CIK:             company.CIK,
			Ticker:          company.Ticker,
			AccessionNumber: recent.AccessionNumber[i],
			Form:            recent.Form[i],
		}
		if i < len(recent.FilingDate) {
			f.FilingDate = recent.FilingDate[i]
		}
		if i < len(recent.ReportDate) {
			f.ReportDate = recent.ReportDate[i]
		}
		if i < len(recent.PrimaryDocument) {
			f.PrimaryDocument = recent.PrimaryDocument[i]
		}
		if f.PrimaryDocument == "" {
			continue
		}
		filings = append(filings, f)
		if limit > 0 && len(filings) == limit {
			break
		}
	}

	return filings, nil
}

// Download fetches a filing's primary document
func (c *Client) Download(ctx context.Context, f Filing) ([]byte, error) {
	resp, err := c.get(ctx, c.www, "archives", f.DocumentURL(""), nil)
	if err != nil {
		return nil, err
	}
	return resp.Body(), nil
}

// WWWURL returns the archive host
func (c *Client) WWWURL() string {
	return c.wwwURL
}
