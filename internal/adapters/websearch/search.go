// Package websearch runs general web searches through Google Custom Search,
// falling back to DuckDuckGo's HTML endpoint when Google is not configured.
package websearch

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"golang.org/x/net/html"

	"finvisor/internal/metrics"
	"finvisor/pkg/errors"
	"finvisor/pkg/htmltext"
	"finvisor/pkg/logger"
)

const (
	DefaultGoogleURL     = "https://www.googleapis.com"
	DefaultDuckDuckGoURL = "https://html.duckduckgo.com"

	// Custom Search returns at most 10 items per request
	maxGoogleResults = 10
)

// Result is one web search hit
type Result struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

// Searcher is implemented by every search backend
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]Result, error)
}

type Config struct {
	GoogleAPIKey  string
	GoogleCX      string
	GoogleURL     string
	DuckDuckGoURL string
	Timeout       time.Duration
}

// New returns Google when a key and engine id are configured and DuckDuckGo otherwise
func New(cfg Config) Searcher {
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.GoogleAPIKey != "" && cfg.GoogleCX != "" {
		return NewGoogle(cfg)
	}
	logger.Get().Infow("Google search is not configured, using DuckDuckGo")
	return NewDuckDuckGo(cfg)
}

// Google queries the Custom Search JSON API
type Google struct {
	http *resty.Client
	key  string
	cx   string
}

func NewGoogle(cfg Config) *Google {
	if cfg.GoogleURL == "" {
		cfg.GoogleURL = DefaultGoogleURL
	}
	return &Google{
		http: resty.New().SetBaseURL(cfg.GoogleURL).SetTimeout(cfg.Timeout).SetRetryCount(1),
		key:  cfg.GoogleAPIKey,
		cx:   cfg.GoogleCX,
	}
}

type googleResponse struct {
	Items []struct {
		Title   string `json:"title"`
		Link    string `json:"link"`
		Snippet string `json:"snippet"`
	} `json:"items"`
}

func (g *Google) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query, limit, err := prepare(query, limit)
	if err != nil {
		return nil, err
	}
	if limit > maxGoogleResults {
		limit = maxGoogleResults
	}

	var out googleResponse
	start := time.Now()
	resp, err := g.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"key": g.key,
			"cx":  g.cx,
			"q":   query,
			"num": fmt.Sprint(limit),
		}).
		SetResult(&out).
		Get("/customsearch/v1")
	err = statusError(resp, err)
	metrics.RecordExternalAPICall("google", "customsearch", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "google search")
	}

	results := make([]Result, 0, len(out.Items))
	for _, it := range out.Items {
		results = append(results, Result{Title: it.Title, URL: it.Link, Snippet: it.Snippet})
	}
	return results, nil
}

// DuckDuckGo scrapes the no-javascript results page
type DuckDuckGo struct {
	http *resty.Client
}

func NewDuckDuckGo(cfg Config) *DuckDuckGo {
	if cfg.DuckDuckGoURL == "" {
		cfg.DuckDuckGoURL = DefaultDuckDuckGoURL
	}
	return &DuckDuckGo{
		http: resty.New().
			SetBaseURL(cfg.DuckDuckGoURL).
			SetTimeout(cfg.Timeout).
			SetHeader("User-Agent", "Mozilla/5.0 (compatible; finvisor/1.0)"),
	}
}

func (d *DuckDuckGo) Search(ctx context.Context, query string, limit int) ([]Result, error) {
	query, limit, err := prepare(query, limit)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := d.http.R().
		SetContext(ctx).
		SetQueryParam("q", query).
		Get("/html/")
	err = statusError(resp, err)
	metrics.RecordExternalAPICall("duckduckgo", "html", time.Since(start), err)
	if err != nil {
		return nil, errors.Wrap(err, "duckduckgo search")
	}

	results, err := parseDuckDuckGo(resp.Body())
	if err != nil {
		return nil, err
	}
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func prepare(query string, limit int) (string, int, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", 0, errors.NewValidationError("query", "must not be empty", query)
	}
	if limit <= 0 {
		limit = 5
	}
	return query, limit, nil
}

func statusError(resp *resty.Response, err error) error {
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode() == http.StatusTooManyRequests:
		return errors.ErrRateLimitExceeded
	case resp.StatusCode() == http.StatusForbidden, resp.StatusCode() == http.StatusUnauthorized:
		return errors.ErrUnauthorized
	case resp.IsError():
		return errors.Wrapf(errors.ErrExternal, "status %d", resp.StatusCode())
	}
	return nil
}

// parseDuckDuckGo reads result__a links and result__snippet text from a results page
func parseDuckDuckGo(body []byte) ([]Result, error) {
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse duckduckgo results")
	}

	var results []Result
	var visit func(n *html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch {
			case hasClass(n, "result__a"):
				results = append(results, Result{
					Title: nodeText(n),
					URL:   resolveLink(attr(n, "href")),
				})
				return
			case hasClass(n, "result__snippet") && len(results) > 0:
				results[len(results)-1].Snippet = nodeText(n)
				return
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(doc)
	return results, nil
}

// resolveLink unwraps DuckDuckGo's /l/?uddg= redirect links
func resolveLink(href string) string {
	if strings.HasPrefix(href, "//") {
		href = "https:" + href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("uddg"); target != "" {
		return target
	}
	return href
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func nodeText(n *html.Node) string {
	var sb strings.Builder
	var collect func(*html.Node)
	collect = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			collect(c)
		}
	}
	collect(n)
	return strings.TrimSpace(htmltext.Normalize(sb.String()))
}
