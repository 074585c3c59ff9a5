// Package httpserver exposes the dispatcher over HTTP. Handlers are
// stateless: every request carries its own context, which is cancelled when
// the client goes away and aborts the in-flight Garnix call.
package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"garnix-insights/src/dispatch"
	"garnix-insights/src/logger"
)

const shutdownTimeout = 30 * time.Second

// Server is the HTTP API server.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	dispatcher *dispatch.Dispatcher
	logger     *slog.Logger
	version    string
	started    time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server's logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger.OrSilent(l)
	}
}

// WithVersion sets the version reported by the health endpoint.
func WithVersion(v string) Option {
	return func(s *Server) {
		s.version = v
	}
}

// New creates a server that serves requests through d.
func New(d *dispatch.Dispatcher, opts ...Option) *Server {
	s := &Server{
		dispatcher: d,
		logger:     logger.NewSilent(),
		version:    "dev",
		started:    time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.setupRouter()
	return s
}

func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(requestLogger(s.logger))
	r.Use(recovery(s.logger))

	r.Get("/", s.index)
	r.Get("/health", s.health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.health)
		r.Post("/build-status", s.postBuildStatus)
		r.Get("/build-status/{commit}", s.getBuildStatus)
		r.Get("/logs/{build}", s.getBuildLog)
		r.Post("/validate-token", s.validateToken)
	})

	r.NotFound(s.notFound)
	r.MethodNotAllowed(s.methodNotAllowed)

	s.router = r
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
