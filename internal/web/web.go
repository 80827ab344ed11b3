package web

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"eventcal/internal/config"
	"eventcal/internal/export"
	"eventcal/internal/ics"
	appLog "eventcal/internal/log"
	"eventcal/internal/model"
)

// staticCacheControl lets a CDN hold the static document longer than browsers.
const staticCacheControl = "public, max-age=300, s-maxage=1800"

// EventProvider yields the merged event list. hit reports a cache answer.
type EventProvider interface {
	Events(ctx context.Context) (events []model.Event, hit bool, err error)
}

// Server provides the HTTP API over the aggregation service.
type Server struct {
	cfg    *config.Config
	events EventProvider
	router chi.Router
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, events EventProvider) *Server {
	s := &Server{
		cfg:    cfg,
		events: events,
		router: chi.NewRouter(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	return s.router
}

// StartServer serves on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func StartServer(ctx context.Context, cfg *config.Config, events EventProvider) error {
	s := NewServer(cfg, events)
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+cfg.Listen, "static_file", cfg.StaticFile)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	appLog.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(corsHandler(s.cfg.AllowedOrigins))
	r.Use(prometheusMetrics)

	r.Get("/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		if s.basicAuthEnabled() {
			appLog.Info("HTTP basic auth enabled for /metrics")
			r.Use(s.basicAuthMiddleware)
		}
		r.Handle("/metrics", promhttp.Handler())
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(rateLimit(s.cfg.RateLimit))
		r.Get("/events", s.handleEvents)
		r.Get("/events.ics", s.handleEventsICS)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Events      []model.Event `json:"events"`
	LastUpdated *time.Time    `json:"lastUpdated,omitempty"`
}

// handleEvents returns the merged event list.
//
// With a readable static file configured, its snapshot is served and the
// sources are never contacted. Otherwise the cached aggregation answers,
// refreshing when stale.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if p, ok := s.readStatic(); ok {
		w.Header().Set("Cache-Control", staticCacheControl)
		w.Header().Set("X-Cache", "STATIC")
		updated := p.LastUpdated
		writeJSON(w, http.StatusOK, eventsResponse{Events: p.Events, LastUpdated: &updated})
		return
	}

	events, hit, err := s.events.Events(r.Context())
	if err != nil {
		appLog.Error("api events: aggregation failed", err, "request_id", chimiddleware.GetReqID(r.Context()))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	w.Header().Set("X-Cache", cacheLabel(hit))
	writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}

// handleEventsICS renders the same list as an iCalendar feed.
func (s *Server) handleEventsICS(w http.ResponseWriter, r *http.Request) {
	var events []model.Event
	if p, ok := s.readStatic(); ok {
		w.Header().Set("Cache-Control", staticCacheControl)
		events = p.Events
	} else {
		var (
			hit bool
			err error
		)
		events, hit, err = s.events.Events(r.Context())
		if err != nil {
			appLog.Error("api events.ics: aggregation failed", err)
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		w.Header().Set("X-Cache", cacheLabel(hit))
	}

	w.Header().Set("Content-Type", "text/calendar; charset=utf-8")
	w.Header().Set("Content-Disposition", `inline; filename="events.ics"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(ics.Render("Tampa Events", events, time.Now())))
}

// readStatic loads the configured static snapshot. A missing or corrupt
// file falls back to the live pipeline.
func (s *Server) readStatic() (model.StaticPayload, bool) {
	if s.cfg.StaticFile == "" {
		return model.StaticPayload{}, false
	}
	p, err := export.Read(s.cfg.StaticFile)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			appLog.Warn("static events file unreadable, using live sources", "path", s.cfg.StaticFile, "error", err.Error())
		}
		return model.StaticPayload{}, false
	}
	return p, true
}

func cacheLabel(hit bool) string {
	if hit {
		return "HIT"
	}
	return "MISS"
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
