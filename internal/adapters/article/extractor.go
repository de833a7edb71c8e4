// Package article downloads web pages and extracts their readable text.
package article

import (
	"bytes"
	"context"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
	"finvisor/pkg/htmltext"
)

// Article is the readable content of a page
type Article struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
	// Truncated is set when Text was cut at the configured limit
	Truncated bool `json:"truncated,omitempty"`
}

type Config struct {
	Timeout  time.Duration
	MaxChars int
}

type Extractor struct {
	http     *resty.Client
	maxChars int
}

func NewExtractor(cfg Config) *Extractor {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.MaxChars <= 0 {
		cfg.MaxChars = 20000
	}
	return &Extractor{
		http: resty.New().
			SetTimeout(cfg.Timeout).
			SetRedirectPolicy(resty.FlexibleRedirectPolicy(5)).
			SetHeader("User-Agent", "Mozilla/5.0 (compatible; finvisor/1.0)").
			SetHeader("Accept", "text/html,application/xhtml+xml,text/plain;q=0.9"),
		maxChars: cfg.MaxChars,
	}
}

// Read fetches rawURL and returns its title and main text
func (e *Extractor) Read(ctx context.Context, rawURL string) (*Article, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, errors.NewValidationError("url", "must be an absolute http(s) url", rawURL)
	}

	start := time.Now()
	resp, err := e.http.R().SetContext(ctx).Get(u.String())
	if err == nil && resp.IsError() {
		err = errors.Wrapf(errors.ErrExternal, "%s returned %d", u.Host, resp.StatusCode())
	}
	metrics.RecordExternalAPICall("article", u.Host, time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch article")
	}

	art := &Article{URL: u.String()}
	if strings.HasPrefix(resp.Header().Get("Content-Type"), "text/plain") {
		art.Text = htmltext.Normalize(resp.String())
	} else {
		page, err := htmltext.ExtractArticle(bytes.NewReader(resp.Body()))
		if err != nil {
			return nil, err
		}
		art.Title = page.Title
		art.Text = page.Text
	}

	if art.Text == "" {
		return nil, errors.Wrapf(errors.ErrNotFound, "no readable text at %s", u.String())
	}
	if r := []rune(art.Text); len(r) > e.maxChars {
		art.Text = string(r[:e.maxChars])
		art.Truncated = true
	}
	return art, nil
}
