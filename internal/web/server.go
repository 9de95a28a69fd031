// Package web exposes the card registry over HTTP: bulk import management,
// card CRUD, duplicate review, exports and operational endpoints.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/koffiyao/cartes/internal/audit"
	"github.com/koffiyao/cartes/internal/cards"
	"github.com/koffiyao/cartes/internal/config"
	"github.com/koffiyao/cartes/internal/export"
	"github.com/koffiyao/cartes/internal/importer"
	"github.com/koffiyao/cartes/internal/logging"
)

// CardQueries is the card-store surface the HTTP layer consumes.
// Satisfied by *cards.Queries.
type CardQueries interface {
	GetByID(ctx context.Context, id int64) (*cards.Card, error)
	List(ctx context.Context, search string, limit, offset int) ([]cards.Card, int64, error)
	UpdateFields(ctx context.Context, id int64, fields map[string]string) error
	FindSimilar(ctx context.Context, lastName, firstNames string, limit int) ([]cards.Candidate, error)
	ForEach(ctx context.Context, fn func(*cards.Card) error) error
}

// Server is the HTTP front of the registry.
type Server struct {
	cfg       *config.Config
	queries   CardQueries
	imports   *importer.Service
	exporter  *export.Exporter
	sink      audit.Sink
	jwtSecret string
}

// NewServer wires the HTTP layer.
func NewServer(cfg *config.Config, queries CardQueries, imports *importer.Service, auditSink audit.Sink) *Server {
	return &Server{
		cfg:       cfg,
		queries:   queries,
		imports:   imports,
		exporter:  export.New(queries),
		sink:      auditSink,
		jwtSecret: cfg.Auth.JWTSecret,
	}
}

// Router builds the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authenticate)

		r.Route("/imports", func(r chi.Router) {
			r.With(requireImporter).Post("/", s.handleCreateImport)
			r.Get("/", s.handleListImports)
			r.Get("/{id}", s.handleGetImport)
			r.With(requireImporter).Post("/{id}/cancel", s.handleCancelImport)
		})

		r.Route("/cards", func(r chi.Router) {
			r.Get("/", s.handleListCards)
			r.Get("/{id}", s.handleGetCard)
			r.Patch("/{id}", s.handleUpdateCard)
			r.Get("/{id}/similar", s.handleSimilarCards)
		})

		r.Get("/export/cards.csv", s.handleExportCSV)
		r.Get("/export/cards.xlsx", s.handleExportXLSX)
	})

	return r
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully:
// in-flight requests get ShutdownTimeout to finish and running imports are
// drained before returning.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Server.Addr(),
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown incomplete", "error", err)
		}
		if err := s.imports.WaitForDrain(shutdownCtx); err != nil {
			slog.Warn("imports still running at shutdown", "error", err)
		}
		return nil
	})

	return g.Wait()
}

// handleHealth is the liveness probe.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, r, http.StatusOK, map[string]string{"status": "ok"})
}

// logRequests emits one structured log line per request.
func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()

		next.ServeHTTP(ww, r)

		logging.FromContext(r.Context()).Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"remote", r.RemoteAddr,
		)
	})
}
