package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/docsift/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/docsift/internal/api/middlewares"
	"github.com/markdave123-py/docsift/internal/applog"
	"github.com/markdave123-py/docsift/internal/metrics"
)

// Pinger reports whether the backing store is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

type RouterDeps struct {
	Health      Pinger
	Metrics     *metrics.Metrics
	Ingest      handlers.Processor
	Search      handlers.Searcher
	Documents   handlers.Documents
	Projects    handlers.Projects
	CorsOrigins []string
	MaxUpload   int64
}

// NewRouter builds and wires all routes. Ingestion has no request timeout:
// it answers only once the run is terminal.
func NewRouter(d RouterDeps) http.Handler {
	ingestHandler := handlers.NewIngestHandler(d.Ingest)
	searchHandler := handlers.NewSearchHandler(d.Search)
	docHandler := handlers.NewDocumentHandler(d.Documents, d.MaxUpload)
	projectHandler := handlers.NewProjectHandler(d.Projects)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(appMiddleware.RequestLogger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CorsOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/healthz", healthHandler(d.Health))
	r.Handle("/metrics", d.Metrics.Handler())

	r.Post("/documents/{id}/ingest", ingestHandler.Ingest)

	r.Group(func(api chi.Router) {
		api.Use(middleware.Timeout(60 * time.Second))
		api.Post("/search", searchHandler.Search)
		api.Get("/documents/{id}", docHandler.GetDocument)
		api.Get("/documents/{id}/pages", docHandler.ListPages)
		api.Post("/projects", projectHandler.CreateProject)
		api.Get("/projects", projectHandler.ListProjects)
	})

	r.Group(func(upload chi.Router) {
		upload.Use(middleware.Timeout(5 * time.Minute))
		upload.Post("/documents", docHandler.UploadDocument)
	})

	return r
}

func healthHandler(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		w.Header().Set("Content-Type", "application/json")
		if p != nil {
			if err := p.Ping(ctx); err != nil {
				applog.Warn("health check failed", "error", err)
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"ok":false}`))
				return
			}
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}
}

// Server wraps the HTTP server instance.
type Server struct {
	httpServer *http.Server
}

func NewServer(port string, handler http.Handler) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	applog.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	applog.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
