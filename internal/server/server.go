// Package server exposes the Predictor over HTTP: an HTML form and result
// page for applicants and a JSON API for programmatic callers.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"loanml/internal/telemetry"
	"loanml/pkg/pipeline"
)

// Journal stores served predictions for operators.
type Journal interface {
	Record(ctx context.Context, rec pipeline.PredictionRecord) error
}

// Server routes requests to a shared, read-only Predictor.
type Server struct {
	predictor *pipeline.Predictor
	logger    *zap.Logger
	metrics   *telemetry.Metrics
	journal   Journal
	router    *http.ServeMux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(l *zap.Logger) Option { return func(s *Server) { s.logger = l } }

// WithMetrics sets the metrics sink.
func WithMetrics(m *telemetry.Metrics) Option { return func(s *Server) { s.metrics = m } }

// WithJournal records every served prediction in j.
func WithJournal(j Journal) Option { return func(s *Server) { s.journal = j } }

// New builds a Server around p.
func New(p *pipeline.Predictor, opts ...Option) *Server {
	s := &Server{
		predictor: p,
		logger:    zap.NewNop(),
		metrics:   telemetry.NewNoop(),
		router:    http.NewServeMux(),
	}
	for _, o := range opts {
		o(s)
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	// Pages
	s.router.HandleFunc("GET /{$}", s.handleHome)
	s.router.HandleFunc("GET /apply", s.handleForm)
	s.router.HandleFunc("POST /apply", s.handleFormSubmit)

	// API
	s.router.HandleFunc("POST /api/v1/predict", s.handlePredict)
	s.router.HandleFunc("GET /api/v1/schema", s.handleSchema)
	s.router.HandleFunc("GET /api/v1/options", s.handleOptions)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Timeouts bounds the HTTP server.
type Timeouts struct {
	Read     time.Duration
	Write    time.Duration
	Shutdown time.Duration
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string, t Timeouts) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s,
		ReadTimeout:  t.Read,
		WriteTimeout: t.Write,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), t.Shutdown)
	defer cancel()
	s.logger.Info("shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}
