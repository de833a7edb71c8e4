package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"finvisor/internal/agents"
	"finvisor/internal/api/health"
	"finvisor/internal/api/playground"
	"finvisor/pkg/logger"
)

type catalog struct{}

func (catalog) Describe() []agents.AgentInfo {
	return []agents.AgentInfo{{AgentConfig: agents.Catalog()[0], Model: "gemini-2.0-flash"}}
}

func newTestServer(t *testing.T, origins []string) *httptest.Server {
	t.Helper()
	routes := Routes{
		Health:     health.New(logger.Nop(), "finvisor", "test"),
		Playground: playground.New(playground.Deps{Agents: catalog{}}, logger.Nop()),
	}
	srv := httptest.NewServer(NewRouter(ServerConfig{AllowedOrigins: origins}, routes, logger.Nop()))
	t.Cleanup(srv.Close)
	return srv
}

func TestRouter(t *testing.T) {
	srv := newTestServer(t, nil)

	for path, code := range map[string]int{
		"/live":                            http.StatusOK,
		"/health":                          http.StatusOK,
		"/metrics":                         http.StatusOK,
		"/":                                http.StatusOK,
		"/v1/playground/agents":            http.StatusOK,
		"/v1/playground/nope":              http.StatusNotFound,
		"/v1/filings/ingest":               http.StatusNotFound,
		"/v1/playground/agents/x/sessions": http.StatusNotFound,
	} {
		resp, err := http.Get(srv.URL + path)
		require.NoError(t, err, path)
		resp.Body.Close()
		assert.Equal(t, code, resp.StatusCode, path)
		assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"), path)
	}
}

func TestCORS(t *testing.T) {
	srv := newTestServer(t, []string{"https://app.finvisor.dev"})

	req, err := http.NewRequest(http.MethodOptions, srv.URL+"/v1/playground/agents", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "https://app.finvisor.dev")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.finvisor.dev", resp.Header.Get("Access-Control-Allow-Origin"))

	req.Header.Set("Origin", "https://evil.example")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}
