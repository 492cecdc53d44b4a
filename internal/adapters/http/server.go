// Package http is a small host driver that runs session cycles over HTTP.
// Each request is one open/read/write/close cycle against the store.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/aretw0/sqlsession"
	"github.com/aretw0/sqlsession/internal/logging"
	"github.com/aretw0/sqlsession/pkg/domain"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MaxBodyBytes caps a session payload accepted over HTTP.
const MaxBodyBytes = 1 << 20

// Sessions is the subset of session.Provider the server drives.
type Sessions interface {
	Run(ctx context.Context, id string, fn func(ctx context.Context, data []byte) ([]byte, error)) error
	Peek(ctx context.Context, id string) ([]byte, bool, error)
	Destroy(ctx context.Context, id string) error
	Collect(ctx context.Context) error
	Strategy() string
}

// Server maps HTTP requests to session cycles.
type Server struct {
	Sessions Sessions
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

// Option configures the Server.
type Option func(*Server)

// WithLogger configures request error logging.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics exposes g on GET /metrics.
func WithMetrics(g prometheus.Gatherer) Option {
	return func(s *Server) {
		s.gatherer = g
	}
}

// NewHandler creates the HTTP handler.
func NewHandler(sessions Sessions, opts ...Option) http.Handler {
	s := &Server{Sessions: sessions, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", s.health)
	r.Get("/info", s.info)
	if s.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/sessions/{id}", func(r chi.Router) {
		r.Get("/", s.getSession)
		r.Put("/", s.putSession)
		r.Post("/append", s.appendSession)
		r.Delete("/", s.deleteSession)
	})
	r.Post("/gc", s.collect)
	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"app":      "sqlsession-http",
		"version":  sqlsession.Version,
		"strategy": s.Sessions.Strategy(),
	})
}

// getSession peeks without locking; it is not a cycle.
func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	data, found, err := s.Sessions.Peek(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !found {
		http.Error(w, "Session not found", http.StatusNotFound)
		return
	}
	w.Header().Set("Content-Type", "application/octet-stream")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) putSession(w http.ResponseWriter, r *http.Request) {
	s.cycle(w, r, func(_, body []byte) []byte { return body })
}

// appendSession is a read-modify-write cycle: the stored payload is extended
// with the request body while the session lock is held.
func (s *Server) appendSession(w http.ResponseWriter, r *http.Request) {
	s.cycle(w, r, func(current, body []byte) []byte {
		return append(append([]byte{}, current...), body...)
	})
}

func (s *Server) cycle(w http.ResponseWriter, r *http.Request, merge func(current, body []byte) []byte) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, MaxBodyBytes))
	if err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var written []byte
	err = s.Sessions.Run(r.Context(), chi.URLParam(r, "id"), func(_ context.Context, current []byte) ([]byte, error) {
		written = merge(current, body)
		return written, nil
	})
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"bytes": len(written)})
}

func (s *Server) deleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Destroy(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) collect(w http.ResponseWriter, r *http.Request) {
	if err := s.Sessions.Collect(r.Context()); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// fail maps store errors to a status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrLockTimeout):
		status = http.StatusServiceUnavailable
		w.Header().Set("Retry-After", "1")
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	s.logger.Warn("Session request failed",
		"method", r.Method,
		"path", r.URL.Path,
		"status", status,
		"err", err,
	)
	http.Error(w, http.StatusText(status), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
