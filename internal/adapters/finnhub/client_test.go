package finnhub

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/pkg/errors"
)

func TestClientFilings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/stock/filings", r.URL.Path)
		assert.Equal(t, "AAPL", r.URL.Query().Get("symbol"))
		if r.URL.Query().Get("token") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"accessNumber":"0000320193-24-000123","symbol":"AAPL","cik":"320193","form":"10-K",
			"filedDate":"2024-11-01 00:00:00","reportUrl":"https://www.sec.gov/a.htm","filingUrl":"https://www.sec.gov/idx.htm"}]`))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "secret", BaseURL: srv.URL})
	require.NoError(t, err)

	filings, err := c.Filings(context.Background(), "aapl")
	require.NoError(t, err)
	require.Len(t, filings, 1)
	assert.Equal(t, "10-K", filings[0].Form)
	assert.Equal(t, "https://www.sec.gov/a.htm", filings[0].DocumentURL())

	bad, err := NewClient(Config{APIKey: "wrong", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = bad.Filings(context.Background(), "AAPL")
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestFilingDocumentURLFallback(t *testing.T) {
	assert.Equal(t, "form", Filing{FormURL: "form", FilingURL: "filing"}.DocumentURL())
	assert.Empty(t, Filing{FilingURL: "filing"}.DocumentURL())
	assert.Empty(t, Filing{}.DocumentURL())
}

func TestClientFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte("filing text"))
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "k"})
	require.NoError(t, err)

	body, err := c.Fetch(context.Background(), srv.URL+"/doc")
	require.NoError(t, err)
	assert.Equal(t, "filing text", string(body))

	_, err = c.Fetch(context.Background(), srv.URL+"/missing")
	assert.True(t, errors.Is(err, errors.ErrExternal))
}

func TestNewClientRequiresKey(t *testing.T) {
	_, err := NewClient(Config{})
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}
