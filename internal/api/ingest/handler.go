// Package ingest exposes filings ingestion over HTTP.
package ingest

import (
	"context"
	"encoding/json"
	"net/http"

	"finvisor/internal/api/respond"
	"finvisor/internal/services/filings"
	"finvisor/pkg/errors"
	"finvisor/pkg/logger"
)

// Queue hands jobs to the background consumer
type Queue interface {
	Enqueue(ctx context.Context, job filings.IngestJob) (filings.IngestJob, error)
}

// Ingestor runs a job in the request
type Ingestor interface {
	Ingest(ctx context.Context, job filings.IngestJob) (*filings.IngestResult, error)
}

// Handler accepts ingestion jobs. Jobs are queued when a Queue is set,
// otherwise they run inline and the result is returned.
type Handler struct {
	queue    Queue
	ingestor Ingestor
	log      *logger.Logger
}

func New(queue Queue, ingestor Ingestor, log *logger.Logger) *Handler {
	return &Handler{queue: queue, ingestor: ingestor, log: log.With("component", "ingest_api")}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		respond.JSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var job filings.IngestJob
	if err := json.NewDecoder(r.Body).Decode(&job); err != nil {
		respond.Error(w, errors.Wrapf(errors.ErrInvalidInput, "invalid JSON body: %v", err))
		return
	}
	if err := job.Normalize(); err != nil {
		respond.Error(w, err)
		return
	}

	if h.queue != nil {
		queued, err := h.queue.Enqueue(r.Context(), job)
		if err != nil {
			h.log.Errorw("Failed to enqueue ingestion job", "ticker", job.Ticker, "error", err)
			respond.Error(w, err)
			return
		}
		respond.JSON(w, http.StatusAccepted, queued)
		return
	}

	if h.ingestor == nil {
		respond.Error(w, errors.Wrap(errors.ErrUnavailable, "filings ingestion is not configured"))
		return
	}

	result, err := h.ingestor.Ingest(r.Context(), job)
	if err != nil {
		h.log.Warnw("Ingestion failed", "job_id", job.ID, "ticker", job.Ticker, "source", job.Source, "error", err)
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, result)
}
