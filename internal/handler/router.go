package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/prn-tf/workroom/internal/config"
	"github.com/prn-tf/workroom/internal/metrics"
)

// Router assembles the HTTP surface.
type Router struct {
	auth       *AuthHandler
	projects   *ProjectHandler
	supervisor *SupervisorHandler
	gate       *AuthMiddleware
	metrics    config.MetricsConfig
	rateLimit  config.RateLimitConfig
	logger     zerolog.Logger
}

// RouterConfig contains the router's collaborators.
type RouterConfig struct {
	AuthHandler       *AuthHandler
	ProjectHandler    *ProjectHandler
	SupervisorHandler *SupervisorHandler
	AuthMiddleware    *AuthMiddleware
	Metrics           config.MetricsConfig
	RateLimit         config.RateLimitConfig
	Logger            zerolog.Logger
}

// NewRouter creates a new Router.
func NewRouter(cfg RouterConfig) *Router {
	return &Router{
		auth:       cfg.AuthHandler,
		projects:   cfg.ProjectHandler,
		supervisor: cfg.SupervisorHandler,
		gate:       cfg.AuthMiddleware,
		metrics:    cfg.Metrics,
		rateLimit:  cfg.RateLimit,
		logger:     cfg.Logger.With().Str("component", "router").Logger(),
	}
}

// Handler returns the assembled HTTP handler.
func (rt *Router) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(rt.logger))
	if rt.rateLimit.Enabled {
		r.Use(RateLimit(rt.rateLimit))
	}
	if rt.metrics.Enabled {
		r.Use(metrics.Instrument)
		r.Method(http.MethodGet, rt.metrics.Path, metrics.Handler())
	}

	// Public routes
	r.Get("/health", rt.handleHealth)
	r.Post("/token", rt.auth.Token)
	r.Post("/register", rt.auth.Register)

	// Authenticated routes
	r.Group(func(r chi.Router) {
		r.Use(rt.gate.Handle)

		r.Get("/users/me", rt.auth.Me)
		r.Get("/users/me/api_key", rt.auth.APIKey)
		r.Post("/users/me/update_api_key", rt.auth.UpdateAPIKey)

		r.Post("/projects", rt.projects.Create)
		r.Get("/projects", rt.projects.List)
		r.Get("/projects/{name}/files", rt.projects.Files)
		r.Get("/projects/{name}/files/{file}", rt.projects.Download)
		r.Delete("/projects/{name}/files/{file}", rt.projects.DeleteFile)
		r.Post("/projects/{name}/files/{file}/move", rt.projects.Move)

		r.Post("/upload/{project}", rt.projects.Upload)
		r.Post("/upload/{project}/{folder}", rt.projects.Upload)

		r.Post("/supervisor", rt.supervisor.Contact)
	})

	return r
}

// handleHealth handles health check requests.
func (rt *Router) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
