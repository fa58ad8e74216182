// Package api serves the stored flights table, its grouped counts, the
// rendered chart and pipeline metrics over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"arrivals_etl/internal/aviationstack"
	"arrivals_etl/internal/flights"
	"arrivals_etl/internal/logger"
	"arrivals_etl/internal/pipeline"
	"arrivals_etl/internal/storage"
)

// Store is the read side of the flights table.
type Store interface {
	Flights(ctx context.Context) ([]flights.FlightRow, error)
	CountByDeparture(ctx context.Context) ([]flights.DepartureCount, error)
}

// Runner triggers one pipeline run.
type Runner func(ctx context.Context) (*pipeline.Result, error)

// Server provides REST access to the stored flight data.
type Server struct {
	store       Store
	chartPath   string
	runner      Runner
	metrics     http.Handler
	log         logger.Logger
	authEnabled bool
	apiKeys     map[string]bool

	runMu sync.Mutex // One run at a time; the flights table has a single writer.
}

// Config holds configuration for the API server.
type Config struct {
	ChartPath   string
	AuthEnabled bool
	APIKeys     []string

	// Runner enables POST /api/v1/runs when set.
	Runner Runner
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
	Log     logger.Logger
}

// NewServer creates an API server over store.
func NewServer(store Store, cfg Config) *Server {
	keys := make(map[string]bool)
	for _, k := range cfg.APIKeys {
		if k != "" {
			keys[k] = true
		}
	}
	log := cfg.Log
	if log == nil {
		log = logger.NewNop()
	}

	return &Server{
		store:       store,
		chartPath:   cfg.ChartPath,
		runner:      cfg.Runner,
		metrics:     cfg.Metrics,
		log:         log,
		authEnabled: cfg.AuthEnabled,
		apiKeys:     keys,
	}
}

// Handler returns the full router: middleware, /api/v1 and /metrics.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(corsMiddleware)

	r.Mount("/api/v1", s.Router())
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics)
	}
	return r
}

// ListenAndServe serves Handler on addr until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", addr, "auth", s.authEnabled, "runs", s.runner != nil)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

// Router returns the /api/v1 routes, for embedding in other servers.
func (s *Server) Router() chi.Router {
	r := chi.NewRouter()

	// Health check (no auth required).
	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.authEnabled {
			r.Use(s.authMiddleware)
		}
		r.Get("/flights", s.handleFlights)
		r.Get("/departures", s.handleDepartures)
		r.Get("/chart", s.handleChart)
		r.Post("/runs", s.handleRun)
	})

	return r
}

// corsMiddleware allows browser dashboards on other origins to read the
// API. Preflight requests stop here.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		h.Set("Access-Control-Allow-Methods", strings.Join(corsMethods, ", "))
		h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

var corsMethods = []string{http.MethodGet, http.MethodPost, http.MethodOptions}

// authMiddleware rejects requests without a configured API key: 401 when
// none is given, 403 when it is unknown.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch key := apiKeyFromRequest(r); {
		case key == "":
			writeError(w, http.StatusUnauthorized, "API key required")
		case !s.apiKeys[key]:
			writeError(w, http.StatusForbidden, "Invalid API key")
		default:
			next.ServeHTTP(w, r)
		}
	})
}

// apiKeyFromRequest checks X-API-Key, then a Bearer token, then ?api_key=.
func apiKeyFromRequest(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok && key != "" {
		return key
	}
	return r.URL.Query().Get("api_key")
}

// FlightsResponse is the JSON body of GET /flights.
type FlightsResponse struct {
	Count   int                 `json:"count"`
	Flights []flights.FlightRow `json:"flights"`
}

// DeparturesResponse is the JSON body of GET /departures.
type DeparturesResponse struct {
	Total      int                      `json:"total"`
	Departures []flights.DepartureCount `json:"departures"`
}

// RunResponse is the JSON body of POST /runs.
type RunResponse struct {
	ArrivalAirport string                   `json:"arrival_airport"`
	Records        int                      `json:"records"`
	Rows           int                      `json:"rows"`
	Skipped        int                      `json:"skipped"`
	Departures     []flights.DepartureCount `json:"departures"`
	MirrorErrors   map[string]string        `json:"mirror_errors,omitempty"`
	DurationMS     int64                    `json:"duration_ms"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleFlights(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.Flights(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if rows == nil {
		rows = []flights.FlightRow{}
	}
	writeJSON(w, http.StatusOK, FlightsResponse{Count: len(rows), Flights: rows})
}

func (s *Server) handleDepartures(w http.ResponseWriter, r *http.Request) {
	counts, err := s.store.CountByDeparture(r.Context())
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeparturesResponse{Total: flights.Total(counts), Departures: counts})
}

func (s *Server) handleChart(w http.ResponseWriter, r *http.Request) {
	if s.chartPath == "" {
		writeError(w, http.StatusNotFound, "No chart configured")
		return
	}
	if _, err := os.Stat(s.chartPath); err != nil {
		writeError(w, http.StatusNotFound, "Chart has not been rendered yet")
		return
	}
	http.ServeFile(w, r, s.chartPath)
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	if s.runner == nil {
		writeError(w, http.StatusServiceUnavailable, "Runs are not enabled on this server")
		return
	}
	if !s.runMu.TryLock() {
		writeError(w, http.StatusConflict, "A run is already in progress")
		return
	}
	defer s.runMu.Unlock()

	res, err := s.runner(r.Context())
	if err != nil {
		var rerr *aviationstack.RequestError
		switch {
		case errors.As(err, &rerr):
			writeError(w, http.StatusBadGateway, err.Error())
		case errors.Is(err, pipeline.ErrNoFlights):
			writeError(w, http.StatusUnprocessableEntity, err.Error())
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	resp := RunResponse{
		ArrivalAirport: res.ArrivalAirport,
		Records:        res.Records,
		Rows:           len(res.Rows),
		Skipped:        len(res.Skipped),
		Departures:     res.Counts,
		DurationMS:     res.Duration.Milliseconds(),
	}
	if len(res.MirrorErrors) > 0 {
		resp.MirrorErrors = make(map[string]string, len(res.MirrorErrors))
		for k, v := range res.MirrorErrors {
			resp.MirrorErrors[k] = v.Error()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, storage.ErrNoFlightsTable) {
		writeError(w, http.StatusNotFound, "No flights stored yet")
		return
	}
	s.log.Error("store query failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}

// errorBody is the JSON body of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorBody{Error: message})
}
