// Package api exposes stored scan results over a small HTTP REST surface.
// It serves health probes, the result query endpoint, and the Prometheus
// metrics endpoint for daemon deployments.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/secwebscan/secwebscan/internal/config"
	"github.com/secwebscan/secwebscan/internal/logging"
	"github.com/secwebscan/secwebscan/internal/metrics"
	"github.com/secwebscan/secwebscan/internal/store"
)

const (
	serverShutdownTimeout = 30 * time.Second
	healthCheckTimeout    = 5 * time.Second
	maxQueryLimit         = 1000
)

// Server is the HTTP API server.
type Server struct {
	httpServer *http.Server
	router     *mux.Router
	cfg        config.APIConfig
	store      *store.Store
	logger     *logging.Logger
	startTime  time.Time
}

// New creates an API server over the given store.
func New(cfg config.APIConfig, st *store.Store) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		cfg:       cfg,
		store:     st,
		logger:    logging.Default().WithComponent("api"),
		startTime: time.Now(),
	}

	s.setupRoutes()
	s.setupMiddleware()

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.ListenAddr, strconv.Itoa(cfg.Port)),
		Handler:      s.router,
		ReadTimeout:  cfg.RequestTimeout,
		WriteTimeout: cfg.RequestTimeout,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start runs the server until the context is canceled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info("Starting API server", "address", s.httpServer.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("API server failed: %w", err)
	case <-ctx.Done():
		return s.Stop()
	}
}

// Stop shuts the server down, draining in-flight requests.
func (s *Server) Stop() error {
	s.logger.Info("Stopping API server")

	ctx, cancel := context.WithTimeout(context.Background(), serverShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("API server shutdown: %w", err)
	}
	return nil
}

// Router exposes the mux for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/healthz", s.healthHandler).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/results", s.resultsHandler).Methods(http.MethodGet)
}

func (s *Server) setupMiddleware() {
	s.router.Use(s.loggingMiddleware)
	s.router.Use(mux.CORSMethodMiddleware(s.router))

	if s.cfg.EnableCORS {
		origins := s.cfg.CORSOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		s.router.Use(handlers.CORS(
			handlers.AllowedOrigins(origins),
			handlers.AllowedHeaders([]string{"Content-Type"}),
			handlers.AllowedMethods([]string{http.MethodGet, http.MethodOptions}),
		))
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("Request handled",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// healthResponse is the health probe body.
type healthResponse struct {
	Status   string `json:"status"`
	Uptime   string `json:"uptime"`
	Database string `json:"database"`
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status: "ok",
		Uptime: time.Since(s.startTime).Round(time.Second).String(),
	}

	status := http.StatusOK
	if s.store != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.store.Ping(ctx); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		} else {
			resp.Database = "ok"
		}
	} else {
		resp.Database = "not configured"
	}

	s.writeJSON(w, status, resp)
}

// resultsResponse wraps the result query endpoint's body.
type resultsResponse struct {
	Count   int            `json:"count"`
	Results []store.Result `json:"results"`
}

func (s *Server) resultsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.Filter{
		Target:   q.Get("target"),
		Module:   q.Get("module"),
		Category: q.Get("category"),
		Severity: q.Get("severity"),
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxQueryLimit {
			s.writeError(w, http.StatusBadRequest,
				fmt.Sprintf("limit must be between 1 and %d", maxQueryLimit))
			return
		}
		filter.Limit = limit
	}

	if s.store == nil {
		s.writeError(w, http.StatusServiceUnavailable, "result store is not configured")
		return
	}

	results, err := s.store.QueryResults(r.Context(), filter)
	if err != nil {
		s.logger.WithError(err).Error("Result query failed")
		s.writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	if results == nil {
		results = []store.Result{}
	}

	s.writeJSON(w, http.StatusOK, resultsResponse{
		Count:   len(results),
		Results: results,
	})
}

// errorResponse is the error body shape.
type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, errorResponse{Error: msg})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("Response encoding failed")
	}
}
