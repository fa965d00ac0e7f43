// Package handlers provides HTTP handlers for signal operations.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/pkg/request"
)

// Engine is the subset of signals.Engine used over HTTP
type Engine interface {
	BackfillPrices(ctx context.Context, symbol string, lookbackDays int) (int64, error)
	ComputeAndPersist(ctx context.Context, symbol string, date time.Time) (*domain.SignalSnapshot, error)
	Combine(ctx context.Context, symbol string) (*domain.SignalSnapshot, error)
}

// LatestReader reads stored signals
type LatestReader interface {
	LatestSignals(ctx context.Context, symbol string) (map[domain.SignalKind]domain.SignalObservation, error)
}

// BackfillRequest is the body of POST /signals/backfill
type BackfillRequest struct {
	Symbol       string `json:"symbol" validate:"required,max=16"`
	LookbackDays int    `json:"lookback_days" default:"1095" validate:"gte=1,lte=7300"`
}

// ComputeRequest is the body of POST /signals/compute
type ComputeRequest struct {
	Symbol string `json:"symbol" validate:"required,max=16"`
	// Date defaults to today (UTC)
	Date string `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

// Handler handles signal HTTP requests
type Handler struct {
	engine Engine
	latest LatestReader
	log    zerolog.Logger
}

// NewHandler creates a new signals handler
func NewHandler(engine Engine, latest LatestReader, log zerolog.Logger) *Handler {
	return &Handler{
		engine: engine,
		latest: latest,
		log:    log.With().Str("handler", "signals").Logger(),
	}
}

// HandleBackfill handles POST /api/signals/backfill
func (h *Handler) HandleBackfill(w http.ResponseWriter, r *http.Request) {
	var req BackfillRequest
	if err := request.Decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	affected, err := h.engine.BackfillPrices(r.Context(), req.Symbol, req.LookbackDays)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", req.Symbol).Msg("Backfill failed")
		http.Error(w, "Backfill failed: "+err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":   domain.NormalizeSymbol(req.Symbol),
			"upserted": affected,
		},
		"metadata": metadata(),
	})
}

// HandleCompute handles POST /api/signals/compute
func (h *Handler) HandleCompute(w http.ResponseWriter, r *http.Request) {
	var req ComputeRequest
	if err := request.Decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	date := domain.Today()
	if req.Date != "" {
		// Already validated
		date, _ = time.Parse(domain.DateLayout, req.Date)
	}

	snap, err := h.engine.ComputeAndPersist(r.Context(), req.Symbol, date)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", req.Symbol).Msg("Signal computation failed")
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     snap,
		"metadata": metadata(),
	})
}

// HandlePreview handles GET /api/signals?symbol=VOO
func (h *Handler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		http.Error(w, "symbol required", http.StatusBadRequest)
		return
	}

	snap, err := h.engine.Combine(r.Context(), symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Signal preview failed")
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     snap,
		"metadata": metadata(),
	})
}

// HandleLatest handles GET /api/signals/{symbol}/latest
func (h *Handler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	symbol := chi.URLParam(r, "symbol")

	latest, err := h.latest.LatestSignals(r.Context(), symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to load signals")
		http.Error(w, "Failed to load signals", http.StatusInternalServerError)
		return
	}
	if len(latest) == 0 {
		http.Error(w, "no signals for "+domain.NormalizeSymbol(symbol), http.StatusNotFound)
		return
	}

	out := make(map[string]interface{}, len(latest))
	for kind, obs := range latest {
		out[string(kind)] = map[string]interface{}{
			"date":     obs.Date.Format(domain.DateLayout),
			"value":    obs.Value,
			"metadata": obs.Metadata,
		}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbol":  domain.NormalizeSymbol(symbol),
			"signals": out,
		},
		"metadata": metadata(),
	})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrUnknownAsset):
		return http.StatusNotFound
	case domain.IsNoData(err):
		return http.StatusNotFound
	case domain.IsTransient(err):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func metadata() map[string]interface{} {
	return map[string]interface{}{
		"timestamp": time.Now().Format(time.RFC3339),
	}
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
