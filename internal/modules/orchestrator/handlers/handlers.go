// Package handlers provides HTTP handlers for recommendations, the universe,
// assets and saved portfolios.
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/allocator/internal/domain"
	"github.com/aristath/allocator/internal/modules/orchestrator"
	"github.com/aristath/allocator/internal/modules/store"
	"github.com/aristath/allocator/internal/utils"
	"github.com/aristath/allocator/pkg/request"
)

// Recommender builds allocations
type Recommender interface {
	Recommend(ctx context.Context, req orchestrator.Request) (*orchestrator.Recommendation, error)
}

// UniverseBuilder expands the tracked universe
type UniverseBuilder interface {
	ExpandedUniverse(ctx context.Context, count int) []string
}

// Backfiller fetches prices for many symbols
type Backfiller interface {
	Backfill(ctx context.Context, symbols []string, lookbackDays int) map[string]int64
}

// Catalog is the store surface used by these handlers
type Catalog interface {
	EnsureAssets(ctx context.Context, specs []domain.AssetSpec) ([]int64, error)
	GetAssetBySymbol(ctx context.Context, symbol string) (*domain.Asset, error)
	ListAssets(ctx context.Context, offset, limit int) ([]domain.Asset, error)
	ListUniverse(ctx context.Context) ([]store.UniverseEntry, error)
	SavePortfolio(ctx context.Context, p domain.SavedPortfolio) (*domain.SavedPortfolio, error)
	LoadPortfolios(ctx context.Context, userID string) ([]domain.SavedPortfolio, error)
}

// RecommendQuery is bound from GET /recommend query parameters
type RecommendQuery struct {
	Risk    string   `default:"balanced" validate:"oneof=conservative balanced aggressive"`
	Symbols []string `validate:"max=50,dive,required,max=16"`
	Amount  float64  `default:"10000" validate:"gt=0"`
}

// BuildUniverseRequest is the body of POST /universe/build
type BuildUniverseRequest struct {
	Count        int `json:"count" default:"100" validate:"gte=10,lte=500"`
	LookbackDays int `json:"lookback_days" default:"1095" validate:"gte=1,lte=7300"`
}

// CreateAssetRequest is the body of POST /assets
type CreateAssetRequest struct {
	Symbol     string `json:"symbol" validate:"required,max=16"`
	Name       string `json:"name" validate:"max=200"`
	AssetClass string `json:"asset_class" default:"equity" validate:"oneof=equity etf bond crypto"`
}

// SavePortfolioRequest is the body of POST /portfolios
type SavePortfolioRequest struct {
	Allocations map[string]float64 `json:"allocations" validate:"required,min=1"`
	Policy      map[string]any     `json:"policy"`
	UserID      string             `json:"user_id" validate:"required,max=128"`
}

// Handler handles allocation HTTP requests
type Handler struct {
	recommender Recommender
	universe    UniverseBuilder
	backfiller  Backfiller
	catalog     Catalog
	log         zerolog.Logger
}

// NewHandler creates a new allocation handler
func NewHandler(recommender Recommender, universe UniverseBuilder, backfiller Backfiller, catalog Catalog, log zerolog.Logger) *Handler {
	return &Handler{
		recommender: recommender,
		universe:    universe,
		backfiller:  backfiller,
		catalog:     catalog,
		log:         log.With().Str("handler", "allocation").Logger(),
	}
}

// HandleRecommend handles GET /api/recommend?risk=balanced&amount=10000&symbols=VOO&symbols=QQQM
func (h *Handler) HandleRecommend(w http.ResponseWriter, r *http.Request) {
	q, err := parseRecommendQuery(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	out, err := h.recommender.Recommend(r.Context(), orchestrator.Request{
		Risk:    q.Risk,
		Amount:  q.Amount,
		Symbols: q.Symbols,
	})
	if err != nil {
		h.log.Error().Err(err).Str("risk", q.Risk).Msg("Recommendation failed")
		http.Error(w, "Recommendation failed: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, out)
}

func parseRecommendQuery(r *http.Request) (*RecommendQuery, error) {
	var q RecommendQuery
	if err := request.Defaults(&q); err != nil {
		return nil, err
	}

	values := r.URL.Query()
	if risk := strings.TrimSpace(values.Get("risk")); risk != "" {
		q.Risk = strings.ToLower(risk)
	}
	if amount := values.Get("amount"); amount != "" {
		v, err := strconv.ParseFloat(amount, 64)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("amount must be finite")
		}
		q.Amount = v
	}
	q.Symbols = utils.ParseCSV(values["symbols"]...)

	if err := request.Validate(&q); err != nil {
		return nil, err
	}
	return &q, nil
}

// HandleBuildUniverse handles POST /api/universe/build
func (h *Handler) HandleBuildUniverse(w http.ResponseWriter, r *http.Request) {
	var req BuildUniverseRequest
	if err := request.Decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	symbols := h.universe.ExpandedUniverse(r.Context(), req.Count)
	if _, err := h.catalog.EnsureAssets(r.Context(), orchestrator.AssetSpecs(symbols)); err != nil {
		h.log.Error().Err(err).Msg("Failed to register universe assets")
		http.Error(w, "Failed to register assets", http.StatusInternalServerError)
		return
	}

	upserts := h.backfiller.Backfill(r.Context(), symbols, req.LookbackDays)

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"symbols": symbols,
			"upserts": upserts,
		},
		"metadata": metadata(),
	})
}

// HandleListUniverse handles GET /api/universe/list
func (h *Handler) HandleListUniverse(w http.ResponseWriter, r *http.Request) {
	limit := intParam(r, "limit", 1000)

	entries, err := h.catalog.ListUniverse(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list universe")
		http.Error(w, "Failed to list universe", http.StatusInternalServerError)
		return
	}

	total := len(entries)
	if limit >= 0 && limit < total {
		entries = entries[:limit]
	}
	symbols := make([]string, 0, len(entries))
	for _, e := range entries {
		symbols = append(symbols, e.Symbol)
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": map[string]interface{}{
			"count":   total,
			"symbols": symbols,
			"assets":  entries,
		},
		"metadata": metadata(),
	})
}

// HandleListAssets handles GET /api/assets?offset=0&limit=100
func (h *Handler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	offset := intParam(r, "offset", 0)
	limit := intParam(r, "limit", 100)
	if offset < 0 || limit < 1 || limit > 1000 {
		http.Error(w, "offset must be >= 0 and limit in [1, 1000]", http.StatusBadRequest)
		return
	}

	assets, err := h.catalog.ListAssets(r.Context(), offset, limit)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list assets")
		http.Error(w, "Failed to list assets", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     assets,
		"metadata": metadata(),
	})
}

// HandleCreateAsset handles POST /api/assets
func (h *Handler) HandleCreateAsset(w http.ResponseWriter, r *http.Request) {
	var req CreateAssetRequest
	if err := request.Decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	symbol := domain.NormalizeSymbol(req.Symbol)

	existing, err := h.catalog.GetAssetBySymbol(r.Context(), symbol)
	if err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to look up asset")
		http.Error(w, "Failed to look up asset", http.StatusInternalServerError)
		return
	}
	if existing != nil {
		http.Error(w, "asset "+symbol+" already exists", http.StatusConflict)
		return
	}

	class, _ := domain.ParseAssetClass(req.AssetClass)
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = symbol
	}
	if _, err := h.catalog.EnsureAssets(r.Context(), []domain.AssetSpec{{Symbol: symbol, Name: name, AssetClass: class}}); err != nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to create asset")
		http.Error(w, "Failed to create asset", http.StatusInternalServerError)
		return
	}

	asset, err := h.catalog.GetAssetBySymbol(r.Context(), symbol)
	if err != nil || asset == nil {
		h.log.Error().Err(err).Str("symbol", symbol).Msg("Failed to read created asset")
		http.Error(w, "Failed to read created asset", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data":     asset,
		"metadata": metadata(),
	})
}

// HandleSavePortfolio handles POST /api/portfolios
func (h *Handler) HandleSavePortfolio(w http.ResponseWriter, r *http.Request) {
	var req SavePortfolioRequest
	if err := request.Decode(r, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	saved, err := h.catalog.SavePortfolio(r.Context(), domain.SavedPortfolio{
		UserID:      strings.TrimSpace(req.UserID),
		Allocations: req.Allocations,
		Policy:      req.Policy,
	})
	if err != nil {
		h.log.Error().Err(err).Str("user_id", req.UserID).Msg("Failed to save portfolio")
		http.Error(w, "Failed to save portfolio", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"data":     saved,
		"metadata": metadata(),
	})
}

// HandleLoadPortfolios handles GET /api/portfolios/{userID}
func (h *Handler) HandleLoadPortfolios(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	portfolios, err := h.catalog.LoadPortfolios(r.Context(), userID)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", userID).Msg("Failed to load portfolios")
		http.Error(w, "Failed to load portfolios", http.StatusInternalServerError)
		return
	}
	if portfolios == nil {
		portfolios = []domain.SavedPortfolio{}
	}

	h.writeJSON(w, http.StatusOK, map[string]interface{}{
		"data":     portfolios,
		"metadata": metadata(),
	})
}

func intParam(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return v
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
