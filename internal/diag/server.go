// Package diag exposes a small local HTTP surface for poking at the
// running process: health, cache stats, usage summary, session state.
package diag

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/banterworks/banterbot/internal/cache"
	"github.com/banterworks/banterbot/internal/metrics"
	"github.com/banterworks/banterbot/internal/session"
)

// Summarizer yields an aggregate usage report. The no-op metrics
// recorder has nothing to report, so the method hangs off a separate
// interface rather than metrics.Recorder.
type Summarizer interface {
	Summary() (metrics.Summary, error)
}

// Server serves diagnostics on a local address. It never mutates
// anything; every endpoint is a read of shared state.
type Server struct {
	addr    string
	cache   cache.Cache
	usage   Summarizer
	state   *session.State
	logger  *slog.Logger
	httpSrv *http.Server
}

// New builds the diagnostics server. cache and usage may be nil; the
// corresponding fields are omitted from /stats.
func New(addr string, ca cache.Cache, usage Summarizer, state *session.State, logger *slog.Logger) *Server {
	s := &Server{
		addr:   addr,
		cache:  ca,
		usage:  usage,
		state:  state,
		logger: logger,
	}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "banterbot-diag")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/stats", s.handleStats)

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until Shutdown. It returns http.ErrServerClosed on a
// clean stop, same as net/http.
func (s *Server) Start() error {
	s.logger.Info("diagnostics server listening", slog.String("addr", s.addr))
	return s.httpSrv.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpSrv.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type statsResponse struct {
	Persona     string           `json:"persona"`
	PersonaList []string         `json:"personas"`
	Language    string           `json:"language"`
	DryRun      bool             `json:"dry_run"`
	LastEventAt *time.Time       `json:"last_event_at,omitempty"`
	Cache       *cache.Stats     `json:"cache,omitempty"`
	Usage       *metrics.Summary `json:"usage,omitempty"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	snap := s.state.Current()

	resp := statsResponse{
		Persona:  snap.Persona().Name,
		Language: snap.Language,
		DryRun:   snap.DryRun,
	}
	for _, p := range snap.Personas {
		resp.PersonaList = append(resp.PersonaList, p.Name)
	}
	if !snap.LastEventAt.IsZero() {
		t := snap.LastEventAt
		resp.LastEventAt = &t
	}
	if s.cache != nil {
		stats := s.cache.Stats()
		resp.Cache = &stats
	}
	if s.usage != nil {
		summary, err := s.usage.Summary()
		if err != nil {
			s.logger.Error("usage summary failed", slog.String("error", err.Error()))
		} else {
			resp.Usage = &summary
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("diag request",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Int("status", ww.Status()),
			slog.Duration("elapsed", time.Since(start)))
	})
}
