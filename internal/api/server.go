package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"phx_market/internal/domain"
	"phx_market/internal/report"
	"phx_market/internal/service"

	"github.com/gorilla/mux"
)

// Server exposes the read-only market views over HTTP. Nothing served here
// advances the market; it reports what the shared state holds.
type Server struct {
	router  *mux.Router
	address string
	market  *service.MarketService
	metrics http.Handler
	logger  *slog.Logger
}

// NewServer creates a new API server. metrics may be nil.
func NewServer(market *service.MarketService, address string, metrics http.Handler) *Server {
	s := &Server{
		router:  mux.NewRouter(),
		address: address,
		market:  market,
		metrics: metrics,
		logger:  slog.Default().With("module", "api"),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.healthCheck).Methods(http.MethodGet)

	// Market data routes
	api.HandleFunc("/snapshot", s.getSnapshot).Methods(http.MethodGet)
	api.HandleFunc("/history", s.getHistory).Methods(http.MethodGet)
	api.HandleFunc("/performance", s.getPerformance).Methods(http.MethodGet)
	api.HandleFunc("/stats", s.getStatistics).Methods(http.MethodGet)
	api.HandleFunc("/chart.png", s.getChart).Methods(http.MethodGet)
	api.HandleFunc("/operations", s.getOperations).Methods(http.MethodGet)
	api.HandleFunc("/wallet/{address}", s.getWallet).Methods(http.MethodGet)
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// HTTPServer builds the listener-bound server.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:         s.address,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}
}

func (s *Server) healthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Peek(r.Context()))
}

func (s *Server) getHistory(w http.ResponseWriter, r *http.Request) {
	history := s.market.History(r.Context())
	if limit := queryInt(r, "limit"); limit > 0 && limit < len(history) {
		history = history[len(history)-limit:]
	}
	writeJSON(w, http.StatusOK, history)
}

func (s *Server) getPerformance(w http.ResponseWriter, r *http.Request) {
	perf, err := s.market.Performance(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (s *Server) getStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := s.market.Statistics(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (s *Server) getChart(w http.ResponseWriter, r *http.Request) {
	opts := report.ChartOptions{
		Width:   queryInt(r, "width"),
		Height:  queryInt(r, "height"),
		BasePeg: s.market.BasePeg(),
	}
	w.Header().Set("Content-Type", "image/png")
	if err := report.EncodeChart(w, s.market.History(r.Context()), opts); err != nil {
		w.Header().Del("Content-Type")
		s.writeError(w, err)
	}
}

func (s *Server) getOperations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.market.Operations(r.Context(), queryInt(r, "limit")))
}

func (s *Server) getWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.market.Wallet(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrPerformanceUnavailable), errors.Is(err, report.ErrNotEnoughData):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrLedgerUnavailable):
		status = http.StatusBadGateway
	}
	if status == http.StatusInternalServerError {
		s.logger.Error("Request failed", slog.Any("error", err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string) int {
	n, err := strconv.Atoi(r.URL.Query().Get(key))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
