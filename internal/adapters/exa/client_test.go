package exa

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/pkg/errors"
)

func TestSearch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search", r.URL.Path)
		if r.Header.Get("x-api-key") != "key" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req searchRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "nvidia earnings", req.Query)
		assert.Equal(t, "news", req.Category)
		assert.Equal(t, DefaultNewsDomains, req.IncludeDomains)
		assert.Equal(t, 5, req.NumResults)
		assert.Equal(t, 10, req.Contents.Text.MaxCharacters)

		_ = json.NewEncoder(w).Encode(searchResponse{Results: []Result{
			{Title: "NVDA beats", URL: "https://reuters.com/a", Text: strings.Repeat("x", 50)},
		}})
	}))
	defer srv.Close()

	c, err := NewClient(Config{APIKey: "key", BaseURL: srv.URL, TextLengthLimit: 10})
	require.NoError(t, err)

	results, err := c.Search(context.Background(), " nvidia earnings ", 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "NVDA beats", results[0].Title)
	assert.Len(t, results[0].Text, 10)

	bad, err := NewClient(Config{APIKey: "nope", BaseURL: srv.URL})
	require.NoError(t, err)
	_, err = bad.Search(context.Background(), "x", 1)
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))
}

func TestSearchValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.True(t, errors.Is(err, errors.ErrUnauthorized))

	c, err := NewClient(Config{APIKey: "key"})
	require.NoError(t, err)
	_, err = c.Search(context.Background(), "  ", 3)
	assert.True(t, errors.Is(err, errors.ErrInvalidInput))
}
