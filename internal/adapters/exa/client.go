// Package exa searches recent news through the Exa search API.
package exa

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
)

const DefaultBaseURL = "https://api.exa.ai"

// DefaultNewsDomains are the financial outlets news searches are restricted to
var DefaultNewsDomains = []string{"bloomberg.com", "reuters.com", "wsj.com", "investing.com", "cnbc.com"}

type Config struct {
	APIKey          string
	BaseURL         string
	Category        string
	IncludeDomains  []string
	TextLengthLimit int
	NumResults      int
	Timeout         time.Duration
}

// Result is one search hit with a trimmed body
type Result struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	PublishedDate string `json:"publishedDate,omitempty"`
	Author        string `json:"author,omitempty"`
	Text          string `json:"text,omitempty"`
}

type searchRequest struct {
	Query          string   `json:"query"`
	Type           string   `json:"type"`
	Category       string   `json:"category,omitempty"`
	IncludeDomains []string `json:"includeDomains,omitempty"`
	NumResults     int      `json:"numResults"`
	Contents       contents `json:"contents"`
}

type contents struct {
	Text textOptions `json:"text"`
}

type textOptions struct {
	MaxCharacters int `json:"maxCharacters"`
}

type searchResponse struct {
	Results []Result `json:"results"`
}

type Client struct {
	http *resty.Client
	cfg  Config
}

// NewClient creates an Exa client; an API key is required
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.Wrap(errors.ErrUnauthorized, "exa api key is not configured")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Category == "" {
		cfg.Category = "news"
	}
	if cfg.IncludeDomains == nil {
		cfg.IncludeDomains = DefaultNewsDomains
	}
	if cfg.TextLengthLimit <= 0 {
		cfg.TextLengthLimit = 1000
	}
	if cfg.NumResults <= 0 {
		cfg.NumResults = 5
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	return &Client{
		http: resty.New().
			SetBaseURL(cfg.BaseURL).
			SetTimeout(cfg.Timeout).
			SetHeader("x-api-key", cfg.APIKey).
			SetHeader("Content-Type", "application/json"),
		cfg: cfg,
	}, nil
}

// Search runs a query; numResults <= 0 uses the configured default
func (c *Client) Search(ctx context.Context, query string, numResults int) ([]Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, errors.NewValidationError("query", "must not be empty", query)
	}
	if numResults <= 0 {
		numResults = c.cfg.NumResults
	}

	body := searchRequest{
		Query:          query,
		Type:           "auto",
		Category:       c.cfg.Category,
		IncludeDomains: c.cfg.IncludeDomains,
		NumResults:     numResults,
		Contents:       contents{Text: textOptions{MaxCharacters: c.cfg.TextLengthLimit}},
	}

	var out searchResponse
	start := time.Now()
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&out).
		Post("/search")
	if err == nil && resp.IsError() {
		switch resp.StatusCode() {
		case http.StatusUnauthorized, http.StatusForbidden:
			err = errors.Wrap(errors.ErrUnauthorized, "exa rejected the api key")
		case http.StatusTooManyRequests:
			err = errors.ErrRateLimitExceeded
		default:
			err = errors.Wrapf(errors.ErrExternal, "exa returned %d: %s", resp.StatusCode(), resp.String())
		}
	}
	metrics.RecordExternalAPICall("exa", "search", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "exa search")
	}

	for i := range out.Results {
		out.Results[i].Text = truncate(out.Results[i].Text, c.cfg.TextLengthLimit)
	}
	return out.Results, nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
