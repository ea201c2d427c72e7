// Package server implements spec.md §4.11/§6's HTTP mirror of the MCP tool
// surface: the same internal/modules/analysis.Service backs both, so a web
// UI and an MCP-speaking agent observe identical results. Grounded on the
// teacher's internal/server/server.go (chi router, middleware stack,
// typed Config struct, graceful Start/Shutdown).
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/henrysouchien/portfolio-risk-engine/internal/config"
	"github.com/henrysouchien/portfolio-risk-engine/internal/domain"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/analysis"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/canonicalizer"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/contracts"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/factorintel"
	"github.com/henrysouchien/portfolio-risk-engine/internal/modules/optimize"
)

// basketStore is the persistence seam the /api/baskets routes write
// through; satisfied by internal/database/repositories.BasketRepository.
type basketStore interface {
	List(userID string) ([]domain.Basket, error)
	Get(userID, name string) (*domain.Basket, error)
	Upsert(b domain.Basket) error
	Delete(userID, name string) error
}

// tradePreviewStore is the persistence seam the /api/trades routes write
// through; satisfied by internal/database/repositories.TradePreviewRepository.
type tradePreviewStore interface {
	Create(p domain.TradePreview) (domain.TradePreview, error)
	Get(id string) (*domain.TradePreview, error)
	MarkExecuted(id string, driftWarning bool) error
	CreateBasketGroup(userID, basketName string, previewIDs []string) (domain.BasketTradeGroup, error)
	GetBasketGroup(id string) (*domain.BasketTradeGroup, []domain.TradePreview, error)
}

// targetAllocationStore records the weights a preview asked a scope to
// drift toward; satisfied by
// internal/database/repositories.TargetAllocationRepository.
type targetAllocationStore interface {
	Set(userID, scope string, weights map[string]float64) error
	Get(userID, scope string) (*domain.TargetAllocation, error)
}

// Config holds everything Server needs to construct its router.
type Config struct {
	Port    int
	Log     zerolog.Logger
	Config  *config.Config
	Service *analysis.Service
	Baskets basketStore
	Trades  tradePreviewStore
	Targets targetAllocationStore
	Catalog *contracts.Catalog
	DevMode bool
}

// Server is the HTTP mirror of internal/mcptools.
type Server struct {
	router  *chi.Mux
	server  *http.Server
	log     zerolog.Logger
	cfg     *config.Config
	svc     *analysis.Service
	baskets basketStore
	trades  tradePreviewStore
	targets targetAllocationStore
	catalog *contracts.Catalog
}

// New constructs a Server and wires its routes.
func New(cfg Config) *Server {
	s := &Server{
		router:  chi.NewRouter(),
		log:     cfg.Log.With().Str("component", "server").Logger(),
		cfg:     cfg.Config,
		svc:     cfg.Service,
		baskets: cfg.Baskets,
		trades:  cfg.Trades,
		targets: cfg.Targets,
		catalog: cfg.Catalog,
	}

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		r.Get("/risk-analysis", s.handleGetRiskAnalysis)
		r.Get("/risk-score", s.handleGetRiskScore)
		r.Post("/whatif", s.handleRunWhatIf)
		r.Post("/optimize", s.handleRunOptimization)
		r.Get("/risk-profile", s.handleGetRiskProfile)
		r.Put("/risk-profile", s.handleSetRiskProfile)
		r.Get("/positions", s.handleGetPositions)
		r.Get("/leverage-capacity", s.handleGetLeverageCapacity)
		r.Get("/exit-signals", s.handleCheckExitSignals)
		r.Get("/factor-recommendations", s.handleGetFactorRecommendations)

		r.Route("/baskets", func(r chi.Router) {
			r.Get("/", s.handleListBaskets)
			r.Get("/{name}", s.handleGetBasket)
			r.Put("/{name}", s.handleUpsertBasket)
			r.Delete("/{name}", s.handleDeleteBasket)
			r.Get("/{name}/analysis", s.handleAnalyzeBasket)
		})

		r.Route("/trades", func(r chi.Router) {
			r.Post("/", s.handlePreviewTrade)
			r.Post("/{id}/execute", s.handleExecuteTrade)
			r.Post("/basket", s.handlePreviewBasketTrade)
			r.Post("/basket/{id}/execute", s.handleExecuteBasketTrade)
		})

		r.Route("/futures", func(r chi.Router) {
			r.Get("/{symbol}/months", s.handleGetFuturesMonths)
			r.Get("/{symbol}/curve", s.handleGetFuturesCurve)
			r.Post("/roll", s.handlePreviewFuturesRoll)
			r.Post("/roll/{id}/execute", s.handleExecuteFuturesRoll)
		})
	})
}

func (s *Server) handleGetPositions(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	out, err := s.svc.AnalyzeRisk(r.Context(), userID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll})
	if err != nil {
		writeError(w, err)
		return
	}
	legs := make([]map[string]any, 0, len(out.Portfolio.Legs))
	for _, l := range out.Portfolio.Legs {
		legs = append(legs, map[string]any{"symbol": l.Symbol.Key(), "weight": l.WeightByNotional, "asset_class": l.Classification})
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "legs": legs, "notional_leverage": out.Portfolio.NotionalLeverage})
}

func (s *Server) handleListBaskets(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	baskets, err := s.baskets.List(userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "baskets": baskets})
}

func (s *Server) handleGetBasket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	basket, err := s.baskets.Get(userID, chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	if basket == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"success": false, "error": "basket not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "basket": basket})
}

func (s *Server) handleUpsertBasket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID          string             `json:"user_id"`
		Tickers         []string           `json:"tickers"`
		Weights         map[string]float64 `json:"weights"`
		WeightingMethod string             `json:"weighting_method"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}
	if req.WeightingMethod == "" {
		req.WeightingMethod = "equal"
	}
	basket := domain.Basket{
		UserID: req.UserID, Name: chi.URLParam(r, "name"),
		Tickers: req.Tickers, Weights: req.Weights, WeightingMethod: req.WeightingMethod,
		UpdatedAt: time.Now(),
	}
	if err := s.baskets.Upsert(basket); err != nil {
		writeError(w, err)
		return
	}
	s.svc.InvalidateForMutation(req.UserID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "basket": basket})
}

func (s *Server) handleDeleteBasket(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	name := chi.URLParam(r, "name")
	if err := s.baskets.Delete(userID, name); err != nil {
		writeError(w, err)
		return
	}
	s.svc.InvalidateForMutation(userID)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "deleted": name})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetRiskAnalysis(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	out, err := s.svc.AnalyzeRisk(r.Context(), userID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"decomposition": out.Decomposition,
		"evaluation":    out.Evaluation,
		"excluded":      out.Excluded,
	})
}

func (s *Server) handleGetRiskScore(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	out, err := s.svc.AnalyzeRisk(r.Context(), userID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"score":   out.Evaluation.Score,
		"pass":    out.Evaluation.Pass,
		"flags":   out.Evaluation.Flags,
	})
}

func (s *Server) handleRunWhatIf(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID        string             `json:"user_id"`
		TargetWeights map[string]float64 `json:"target_weights"`
		DeltaChanges  map[string]float64 `json:"delta_changes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}
	scenario, err := s.svc.RunWhatIf(r.Context(), req.UserID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll}, optimize.ChangeRequest{
		TargetWeights: req.TargetWeights,
		DeltaChanges:  req.DeltaChanges,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "scenario": scenario})
}

func (s *Server) handleRunOptimization(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID       string  `json:"user_id"`
		Objective    string  `json:"objective"`
		RiskAversion float64 `json:"risk_aversion"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.UserID == "" {
		req.UserID = "default"
	}
	if req.RiskAversion == 0 {
		req.RiskAversion = 1.0
	}
	objective := optimize.ObjectiveMinVariance
	if req.Objective == "max_return" {
		objective = optimize.ObjectiveMaxReturn
	}
	out, err := s.svc.RunOptimization(r.Context(), req.UserID, canonicalizer.Scope{Kind: canonicalizer.ScopeAll}, objective, req.RiskAversion)
	if err != nil {
		writeError(w, err)
		return
	}
	weights := make(map[string]float64, len(out.Solution.Weights))
	for i, sym := range out.Solution.Symbols {
		weights[sym] = out.Solution.Weights[i]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":       true,
		"weights":       weights,
		"decomposition": out.Decomposition,
		"evaluation":    out.Evaluation,
	})
}

func (s *Server) handleGetRiskProfile(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		userID = "default"
	}
	profile, err := s.svc.GetRiskProfile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "profile": profile})
}

func (s *Server) handleSetRiskProfile(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string              `json:"user_id"`
		Profile map[string]any      `json:"profile"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	http.Error(w, "set_risk_profile via HTTP requires a template or override payload; use the MCP tool surface until the HTTP schema is finalized", http.StatusNotImplemented)
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.log.Info().Int("port", 0).Msg("starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{"success": false, "error": err.Error()})
}
