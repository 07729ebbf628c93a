// Package server exposes reconciliation over HTTP.
//
// Routes:
//
//	POST /notifications           handle one completion notification
//	GET  /job-assignments/{guid}  read a job assignment record
//	GET  /artifacts/*             read a stored artifact with a signed URL
//	GET  /healthz                 liveness and database check
//
// Errors are returned as problem JSON ({type, title, detail}).
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/roach88/recon/internal/job"
	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/store"
)

// ShutdownTimeout bounds how long Run waits for in-flight requests.
const ShutdownTimeout = 15 * time.Second

// Reconciler handles notifications. Implemented by *reconcile.Engine.
type Reconciler interface {
	Handle(ctx context.Context, n job.Notification) (reconcile.Result, error)
}

// Assignments reads job assignment records.
type Assignments interface {
	GetAssignment(ctx context.Context, id string) (*job.Assignment, error)
}

// Blobs reads stored artifacts.
type Blobs interface {
	Get(ctx context.Context, key string) (store.ArtifactRecord, error)
}

// Verifier checks signed artifact grants.
type Verifier interface {
	Verify(key, expires, signature string, now time.Time) error
}

// Pinger reports whether the database is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the collaborators a Server serves from.
type Deps struct {
	Reconciler  Reconciler
	Assignments Assignments
	Blobs       Blobs
	Verifier    Verifier
	Health      Pinger
	Logger      *slog.Logger
	Now         func() time.Time
}

// Server routes HTTP requests to reconciliation and record reads.
type Server struct {
	deps   Deps
	router chi.Router
}

// New creates a Server and builds its routes.
func New(deps Deps) *Server {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Server{deps: deps}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Post("/notifications", s.handleNotification)
	r.Get("/job-assignments/{guid}", s.handleGetAssignment)
	r.Get("/artifacts/*", s.handleGetArtifact)
	r.Get("/healthz", s.handleHealth)

	s.router = r
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.deps.Logger.Info("http server listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	s.deps.Logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.deps.Logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
