// Package api serves the pgpoold admin endpoints over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/pprof"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/guileen/pgpool/logger"
	"github.com/guileen/pgpool/pool"
)

const defaultHealthTimeout = 5 * time.Second

// PoolService is the part of a pool the admin endpoints drive. It is
// satisfied by *pool.Pool for any connection type.
type PoolService interface {
	Ping(ctx context.Context) error
	Stats() pool.Stats
	DrainAll() int
}

type Handler struct {
	pool          PoolService
	healthTimeout time.Duration
}

func NewHandler(p PoolService, healthTimeout time.Duration) *Handler {
	if healthTimeout <= 0 {
		healthTimeout = defaultHealthTimeout
	}
	return &Handler{
		pool:          p,
		healthTimeout: healthTimeout,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.Health)
	r.Get("/stats", h.Stats)
	r.Post("/drain", h.Drain)
}

// NewRouter returns a router with request logging, panic recovery, pprof
// and the admin routes of h.
func NewRouter(h *Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.HandleFunc("/debug/pprof/", pprof.Index)
	r.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	r.HandleFunc("/debug/pprof/profile", pprof.Profile)
	r.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	r.HandleFunc("/debug/pprof/trace", pprof.Trace)
	r.Handle("/debug/pprof/goroutine", pprof.Handler("goroutine"))
	r.Handle("/debug/pprof/heap", pprof.Handler("heap"))
	r.Handle("/debug/pprof/block", pprof.Handler("block"))
	r.Handle("/debug/pprof/mutex", pprof.Handler("mutex"))

	h.RegisterRoutes(r)
	return r
}

type HealthResponse struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

type DrainResponse struct {
	Drained int `json:"drained"`
}

// Health round-trips a connection through the pool
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.healthTimeout)
	defer cancel()
	ctx = logger.WithContextValue(ctx, logger.RequestIDKey, middleware.GetReqID(r.Context()))

	if err := h.pool.Ping(ctx); err != nil {
		logger.WarnContext(ctx, "Health check failed", logger.ErrorField(err))
		writeJSON(w, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pool.Stats())
}

// Drain closes every idle connection
func (h *Handler) Drain(w http.ResponseWriter, r *http.Request) {
	drained := h.pool.DrainAll()
	logger.InfoContext(r.Context(), "Drained idle DB connections", "drained", drained)
	writeJSON(w, http.StatusOK, DrainResponse{Drained: drained})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
