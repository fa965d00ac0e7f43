package work

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/allocator/pkg/request"
)

// Submitter is the part of Processor the HTTP handlers use
type Submitter interface {
	Submit(ctx context.Context, jobType string, payload any) (string, error)
	Get(ctx context.Context, id string) (*Status, error)
}

// Handlers provides HTTP handlers for job submission and polling
type Handlers struct {
	jobs     Submitter
	registry *Registry
	log      zerolog.Logger
}

// NewHandlers creates new HTTP handlers for the work processor
func NewHandlers(jobs Submitter, registry *Registry, log zerolog.Logger) *Handlers {
	return &Handlers{
		jobs:     jobs,
		registry: registry,
		log:      log.With().Str("handler", "jobs").Logger(),
	}
}

// RegisterRoutes registers job routes. The websocket stream at
// /jobs/{id}/stream is mounted by the server.
func (h *Handlers) RegisterRoutes(r chi.Router) {
	r.Route("/jobs", func(r chi.Router) {
		r.Get("/types", h.ListWorkTypes)
		r.Post("/backfill", h.SubmitUniverseBatch)
		r.Post("/price", h.SubmitPriceBackfill)
		r.Post("/signal", h.SubmitSignalCompute)
		r.Get("/{id}", h.GetJob)
	})
}

// ListWorkTypes returns all registered job types
func (h *Handlers) ListWorkTypes(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]any{"types": h.registry.IDs()})
}

// SubmitUniverseBatch handles POST /api/jobs/backfill
func (h *Handlers) SubmitUniverseBatch(w http.ResponseWriter, r *http.Request) {
	var p UniverseBatchPayload
	if err := request.Decode(r, &p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.submit(w, r, TypeUniverseBatch, p, map[string]any{"queued": len(p.Symbols)})
}

// SubmitPriceBackfill handles POST /api/jobs/price
func (h *Handlers) SubmitPriceBackfill(w http.ResponseWriter, r *http.Request) {
	var p PriceBackfillPayload
	if err := request.Decode(r, &p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.submit(w, r, TypePricesBackfill, p, nil)
}

// SubmitSignalCompute handles POST /api/jobs/signal
func (h *Handlers) SubmitSignalCompute(w http.ResponseWriter, r *http.Request) {
	var p SignalComputePayload
	if err := request.Decode(r, &p); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.submit(w, r, TypeSignalsCompute, p, nil)
}

func (h *Handlers) submit(w http.ResponseWriter, r *http.Request, jobType string, payload any, extra map[string]any) {
	id, err := h.jobs.Submit(r.Context(), jobType, payload)
	if err != nil {
		h.log.Error().Err(err).Str("type", jobType).Msg("Job submission failed")
		status := http.StatusInternalServerError
		if errors.Is(err, ErrUnknownJobType) {
			status = http.StatusBadRequest
		}
		http.Error(w, err.Error(), status)
		return
	}

	resp := map[string]any{"job_id": id, "type": jobType}
	for k, v := range extra {
		resp[k] = v
	}
	h.writeJSON(w, http.StatusAccepted, resp)
}

// GetJob handles GET /api/jobs/{id}
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	st, err := h.jobs.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		h.log.Error().Err(err).Str("job_id", id).Msg("Failed to load job")
		http.Error(w, "Failed to load job", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, st)
}

func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
