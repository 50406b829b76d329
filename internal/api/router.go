// Package api is the command surface (C10): a chi JSON/WebSocket router
// exposing the live encounter's commands and read-path queries, the
// out-of-process UI's only way to reach the engine since this system has
// no embedded UI toolkit (spec.md §1 Non-goals).
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/resonance-logs/meterd/internal/encounter"
	"github.com/resonance-logs/meterd/internal/refdata"
	"github.com/resonance-logs/meterd/internal/snapshot"
	"github.com/resonance-logs/meterd/internal/storage"
	"github.com/resonance-logs/meterd/internal/telemetry"
)

// RouterConfig holds the dependencies NewRouter wires into handlers. All
// fields are required except CORSOrigins, DisableLogging and Log (a nil
// Log is replaced by a no-op logger).
type RouterConfig struct {
	Engine *encounter.Engine
	Feed   *snapshot.Feed
	DB     *storage.DB
	Tables *refdata.Tables
	Log    *zap.Logger

	// CORSOrigins defaults to localhost-only when nil, since the live
	// overlay UI normally runs on the same machine as the capture process.
	CORSOrigins []string

	// DisableLogging turns off the request logger middleware, useful for
	// benchmarks and quiet test output.
	DisableLogging bool
}

// routerHandlers holds the handler receivers, mirroring fight-club-go's
// routerHandlers split between router construction and handler bodies.
type routerHandlers struct {
	engine *encounter.Engine
	feed   *snapshot.Feed
	db     *storage.DB
	tables *refdata.Tables
	log    *zap.Logger
	hub    *hub
}

// metrics wraps a handler to record RequestTotal/RequestDuration under
// the route pattern rather than the raw path, keeping label cardinality
// bounded.
func metrics(pattern string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next(sw, r)
		telemetry.RecordRequest(r.Method, pattern, sw.status, time.Since(start))
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// NewRouter constructs the HTTP router and its WebSocket hub. It starts
// no goroutines and opens no listeners — safe to drive with
// httptest.NewServer directly. The returned hub must still be run (see
// Server.Start) for /ws clients to receive events; registration works
// immediately, but nothing is broadcast until then.
func NewRouter(cfg RouterConfig) (*chi.Mux, *hub) {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	r := chi.NewRouter()
	wsHub := newHub(cfg.Feed, cfg.Log)

	if !cfg.DisableLogging {
		r.Use(middleware.Logger)
	}
	r.Use(middleware.Recoverer)

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}))

	h := &routerHandlers{
		engine: cfg.Engine,
		feed:   cfg.Feed,
		db:     cfg.DB,
		tables: cfg.Tables,
		log:    cfg.Log,
		hub:    wsHub,
	}

	r.Route("/commands", func(r chi.Router) {
		r.Post("/reset", metrics("/commands/reset", h.handleReset))
		r.Post("/pause", metrics("/commands/pause", h.handlePause))
		r.Post("/boss-only-dps", metrics("/commands/boss-only-dps", h.handleBossOnlyDPS))
		r.Post("/subscribe/{role}/{uid}", metrics("/commands/subscribe/{role}/{uid}", h.handleSubscribe))
		r.Delete("/subscribe/{role}/{uid}", metrics("/commands/subscribe/{role}/{uid}", h.handleUnsubscribe))
	})

	r.Route("/encounters", func(r chi.Router) {
		r.Get("/", metrics("/encounters", h.handleRecentEncounters))
		r.Get("/{id}/actors", metrics("/encounters/{id}/actors", h.handleEncounterActors))
	})

	r.Get("/ws", h.handleWS)
	r.Handle("/metrics", telemetry.Handler())

	return r, wsHub
}
