package httpserver

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	appanalysis "github.com/bryanwahyu/formpulse/internal/application/analysis"
	domain "github.com/bryanwahyu/formpulse/internal/domain/analysis"
	"github.com/bryanwahyu/formpulse/internal/middleware"
)

// Orchestrator is what the control API drives.
type Orchestrator interface {
	Trigger() (*domain.Run, error)
	Snapshot() appanalysis.State
}

type Options struct {
	Token          string
	AllowedOrigins []string
	// trigger rate limit: burst and tokens per second
	RateBurst  int
	RatePerSec int
	Health     map[string]middleware.HealthChecker
	Metrics    *middleware.Metrics
}

type Router struct {
	orch Orchestrator
}

func NewRouter(orch Orchestrator, opts Options) http.Handler {
	r := &Router{orch: orch}
	if opts.Metrics == nil {
		opts.Metrics = middleware.NewMetrics()
	}
	if opts.RateBurst <= 0 {
		opts.RateBurst = 5
	}
	if opts.RatePerSec <= 0 {
		opts.RatePerSec = 1
	}
	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}

	mux := chi.NewRouter()
	mux.Use(middleware.Logging)
	mux.Use(opts.Metrics.Middleware)
	mux.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:         300,
	}))
	mux.Use(middleware.TokenAuth(opts.Token))

	mux.Get("/health", middleware.HealthHandler(opts.Health))
	mux.Get("/metrics", opts.Metrics.Handler)

	mux.Route("/v1", func(rt chi.Router) {
		rt.Get("/status", r.wrap(r.handleStatus))
		rt.With(middleware.RateLimit(middleware.NewRateLimiter(opts.RateBurst, opts.RatePerSec))).
			Post("/trigger", r.wrap(r.handleTrigger))
	})

	return mux
}

type handlerFunc func(http.ResponseWriter, *http.Request) error

func (r *Router) wrap(h handlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := h(w, req); err != nil {
			switch {
			case errors.Is(err, domain.ErrAlreadyRunning):
				writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error()})
			case errors.Is(err, domain.ErrStopped):
				writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": err.Error()})
			default:
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
		}
	}
}

// GET /v1/status
func (r *Router) handleStatus(w http.ResponseWriter, _ *http.Request) error {
	writeJSON(w, http.StatusOK, r.orch.Snapshot())
	return nil
}

// POST /v1/trigger
// Starts a run like the hotkey does; the response does not wait for it.
func (r *Router) handleTrigger(w http.ResponseWriter, _ *http.Request) error {
	run, err := r.orch.Trigger()
	if err != nil {
		return err
	}
	// the worker may already be finishing the run: only fields fixed at creation are read
	writeJSON(w, http.StatusAccepted, map[string]any{
		"id":           run.ID,
		"status":       domain.StatusRunning,
		"triggered_at": run.TriggeredAt,
	})
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
