// Package playground serves the configured agents over HTTP: agent listing,
// runs (JSON, SSE and WebSocket), stored sessions and usage.
package playground

import (
	"context"
	"iter"
	"net/http"

	"github.com/go-chi/chi/v5"

	"finvisor/internal/agents"
	"finvisor/internal/api/respond"
	domainsession "finvisor/internal/domain/session"
	aiusage "finvisor/internal/services/ai_usage"
	"finvisor/pkg/logger"
)

// AgentRunner executes agent runs
type AgentRunner interface {
	Run(ctx context.Context, in agents.RunInput) iter.Seq[agents.RunEvent]
	RunSync(ctx context.Context, in agents.RunInput) (*agents.RunResult, error)
	Costs() *agents.CostTracker
}

// AgentCatalog describes the served agents
type AgentCatalog interface {
	Describe() []agents.AgentInfo
}

// SessionStore reads and deletes stored conversations
type SessionStore interface {
	ListSessions(ctx context.Context, appName, userID string) ([]*domainsession.Session, error)
	GetSession(ctx context.Context, appName, userID, sessionID string, opts *domainsession.GetOptions) (*domainsession.Session, error)
	DeleteSession(ctx context.Context, appName, userID, sessionID string) error
}

// UsageReporter summarizes stored usage logs
type UsageReporter interface {
	Summarize(ctx context.Context, userID string, days int) (*aiusage.Summary, error)
}

// Deps wires the playground
type Deps struct {
	Runner   AgentRunner
	Agents   AgentCatalog
	Sessions SessionStore
	// Usage is optional; /usage answers 503 without it
	Usage UsageReporter

	Version       string
	DefaultUserID string
	// AllowedOrigins limits WebSocket origins; empty or "*" allows all
	AllowedOrigins []string
}

// Handler serves the playground routes
type Handler struct {
	deps Deps
	log  *logger.Logger
}

// New creates the playground handler
func New(deps Deps, log *logger.Logger) *Handler {
	return &Handler{deps: deps, log: log.With("component", "playground")}
}

// Routes returns the router mounted under /v1/playground
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/status", h.handleStatus)
	r.Get("/usage", h.handleUsage)
	r.Get("/agents", h.handleAgents)

	r.Route("/agents/{agent_id}", func(r chi.Router) {
		r.Use(h.requireAgent)
		r.Post("/runs", h.handleRun)
		r.Get("/ws", h.handleWebSocket)
		r.Get("/sessions", h.handleListSessions)
		r.Get("/sessions/{session_id}", h.handleGetSession)
		r.Delete("/sessions/{session_id}", h.handleDeleteSession)
	})

	return r
}

type statusResponse struct {
	Status       string             `json:"status"`
	Version      string             `json:"version"`
	Agents       int                `json:"agents"`
	TotalCostUSD float64            `json:"total_cost_usd"`
	Models       []agents.ModelCost `json:"models"`
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	costs := h.deps.Runner.Costs()
	respond.JSON(w, http.StatusOK, statusResponse{
		Status:       "available",
		Version:      h.deps.Version,
		Agents:       len(h.deps.Agents.Describe()),
		TotalCostUSD: costs.TotalCost(),
		Models:       costs.Snapshot(),
	})
}

func (h *Handler) handleAgents(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.deps.Agents.Describe())
}

// requireAgent answers 404 for agent ids outside the catalog
func (h *Handler) requireAgent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := agents.LookupConfig(chi.URLParam(r, "agent_id")); err != nil {
			respond.Error(w, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// userID reads the user from the query string, falling back to the configured default
func (h *Handler) userID(r *http.Request) string {
	if id := r.URL.Query().Get("user_id"); id != "" {
		return id
	}
	return h.deps.DefaultUserID
}
