package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/contexta-ingest/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/contexta-ingest/internal/api/middlewares"
	"github.com/markdave123-py/contexta-ingest/internal/config"
	"github.com/markdave123-py/contexta-ingest/internal/services"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, docs *services.DocumentService, versions *services.VersionService, batches *services.BatchService) *Server {
	return &Server{httpServer: &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg.JWTSecret, docs, versions, batches),
		ReadHeaderTimeout: 10 * time.Second,
	}}
}

func NewRouter(jwtSecret string, docs *services.DocumentService, versions *services.VersionService, batches *services.BatchService) http.Handler {
	docHandler := handlers.NewDocumentHandler(docs, versions)
	batchHandler := handlers.NewBatchHandler(batches)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(5 * time.Minute))

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8888"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Route("/api", func(api chi.Router) {
		api.Use(appMiddleware.JWTMiddleware(jwtSecret))

		api.Route("/documents", func(d chi.Router) {
			d.Post("/", docHandler.UploadDocument)
			d.Get("/", docHandler.GetDocuments)
			d.Route("/{documentID}", func(one chi.Router) {
				one.Get("/", docHandler.GetDocument)
				one.Put("/", docHandler.UpdateDocument)
				one.Delete("/", docHandler.DeleteDocument)
				one.Post("/process", docHandler.ProcessDocument)
				one.Get("/versions", docHandler.GetVersions)
				one.Post("/rollback", docHandler.Rollback)
			})
		})

		api.Post("/batches", batchHandler.UploadBatch)
		api.Get("/batches/{batchID}", batchHandler.GetBatch)
	})

	return r
}

// Start runs the HTTP server until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("app: HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("app: shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
