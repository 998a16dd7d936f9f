// Package api exposes the rules engine over HTTP.
package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/clientrules/internal/config"
	"github.com/gyaneshwarpardhi/clientrules/internal/engine"
	"github.com/gyaneshwarpardhi/clientrules/internal/metrics"
)

const (
	maxBatchSize   = 100
	maxImportBytes = 10 << 20

	// actorHeader carries the user recorded on rule changes.
	actorHeader  = "X-User"
	defaultActor = "anonymous"
)

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng    *engine.Engine
	loader *config.Loader
	logger *slog.Logger
	router chi.Router
}

// New creates an HTTP handler and registers all routes. loader may be nil, in
// which case the category endpoints report 503.
func New(eng *engine.Engine, loader *config.Loader, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handler{
		eng:    eng,
		loader: loader,
		logger: logger.With("component", "api"),
		router: chi.NewRouter(),
	}
	h.routes()
	return h.router
}

func (h *Handler) routes() {
	r := h.router
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(h.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	r.Get("/readyz", h.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/rules", func(r chi.Router) {
			r.Get("/", h.listRules)
			r.Post("/", h.createRule)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.getRule)
				r.Put("/", h.updateRule)
				r.Delete("/", h.deleteRule)
				r.Post("/activate", h.setActive(true))
				r.Post("/deactivate", h.setActive(false))
				r.Get("/versions", h.ruleVersions)
				r.Get("/audit", h.ruleAudit)
			})
		})
		r.Get("/audit", h.auditLog)

		r.Post("/evaluate", h.evaluate)
		r.Post("/evaluate/batch", h.evaluateBatch)

		r.Get("/export", h.exportRules)
		r.Post("/import", h.importRules)

		r.Get("/categories", h.listCategories)
		r.Post("/categories/reload", h.reloadCategories)
	})
}

// actor returns the user named by the request, or defaultActor.
func actor(r *http.Request) string {
	if u := r.Header.Get(actorHeader); u != "" {
		return u
	}
	return defaultActor
}

// requestLogger logs one line per request on the structured logger.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			logger.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		})
	}
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if the batch queue is more than 80% full.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	util := h.eng.QueueUtilization()
	metrics.BatchQueueUtilization.Set(util)
	if util > 0.8 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":            "overloaded",
			"queue_utilization": util,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":            "ready",
		"queue_utilization": util,
		"rules":             len(h.eng.GetAllRules()),
	})
}

// GET /v1/categories: the configured client type table.
func (h *Handler) listCategories(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusServiceUnavailable, "no configuration loaded")
		return
	}
	cfg := h.loader.Config()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"version":           cfg.Version,
		"client_categories": cfg.ClientCategories,
	})
}

// POST /v1/categories/reload: re-read the config file. Registered OnChange
// callbacks swap the engine's category registry.
func (h *Handler) reloadCategories(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusServiceUnavailable, "no configuration loaded")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":          true,
		"client_categories": len(cfg.ClientCategories),
	})
}
