package api

import (
	"PrintForge/internal/api/handlers"
	"PrintForge/internal/catalog"
	"PrintForge/internal/config"
	"PrintForge/internal/job"
	"PrintForge/internal/pipeline/storage"
	"PrintForge/internal/sdk"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

type Server struct {
	router   *chi.Mux
	client   *sdk.Client
	manager  *job.Manager
	catalog  *catalog.Store
	archiver *storage.Archiver
	cfg      *config.Config
	logger   *zap.Logger

	httpServer *http.Server
}

func NewServer(client *sdk.Client, manager *job.Manager, catalogStore *catalog.Store, archiver *storage.Archiver, cfg *config.Config, logger *zap.Logger) *Server {
	s := &Server{
		client:   client,
		manager:  manager,
		catalog:  catalogStore,
		archiver: archiver,
		cfg:      cfg,
		logger:   logger,
	}

	// Setup router
	s.router = chi.NewRouter()
	s.setupMiddleware()
	s.setupRoutes()

	return s
}

func (s *Server) setupMiddleware() {
	// Recover from panics
	s.router.Use(middleware.Recoverer)

	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Request logger (using built-in logger)
	s.router.Use(middleware.Logger)

	// Note: Timeout middleware removed from global scope
	// Applied per-route instead (see setupRoutes)

	// CORS
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))
}

func (s *Server) setupRoutes() {
	// Create handlers
	executeHandler := handlers.NewExecuteHandler(s.manager, s.client, s.catalog, s.cfg.Pipeline.InputDir, s.logger)
	runsHandler := handlers.NewRunsHandler(s.manager, s.archiver, s.logger)
	streamHandler := handlers.NewStreamHandler(s.manager, s.logger)
	catalogHandler := handlers.NewCatalogHandler(s.catalog, s.logger)

	// Health check with short timeout
	s.router.With(middleware.Timeout(10*time.Second)).Get("/health", s.handleHealth)

	// Run submission endpoint - NO timeout (handles image uploads)
	// The handler returns immediately with a run ID, so timeout isn't needed
	s.router.Post("/api/v1/runs", executeHandler.Handle)

	// Run status endpoints with reasonable timeout
	s.router.With(middleware.Timeout(30*time.Second)).Get("/api/v1/runs", runsHandler.List)
	s.router.With(middleware.Timeout(30*time.Second)).Get("/api/v1/runs/{id}", runsHandler.Get)

	// Archived outputs may be large
	s.router.With(middleware.Timeout(5*time.Minute)).Get("/api/v1/runs/{id}/artifact", runsHandler.Artifact)

	// SSE streaming endpoint - NO timeout (long-lived connection)
	s.router.Get("/api/v1/runs/{id}/stream", streamHandler.StreamProgress)

	// Workflow catalog endpoints
	s.router.With(middleware.Timeout(30*time.Second)).Get("/api/v1/catalog", catalogHandler.Get)
	s.router.With(middleware.Timeout(30*time.Second)).Post("/api/v1/catalog/reload", catalogHandler.Reload)
	s.router.With(middleware.Timeout(30*time.Second)).Put("/api/v1/catalog/selection", catalogHandler.SetSelection)

	// Serve archived files directly when the local backend is in use
	if s.cfg.Storage.Type == "local" {
		fileServer := http.FileServer(http.Dir(s.cfg.Storage.Local.BasePath))
		s.router.With(middleware.Timeout(5*time.Minute)).Handle("/archive/*", http.StripPrefix("/archive", fileServer))
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":  "healthy",
		"service": "printforge",
		"version": "1.0.0",
	})
}

func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.router,
		// Long timeouts to support large file uploads
		ReadTimeout:       10 * time.Minute, // Reading large image files
		WriteTimeout:      10 * time.Minute, // Writing responses (including SSE streams)
		IdleTimeout:       2 * time.Minute,  // Keep-alive connections
		MaxHeaderBytes:    1 << 20,          // 1 MB max header size
		ReadHeaderTimeout: 30 * time.Second, // Prevent slowloris attacks
	}

	s.logger.Info("Starting HTTP server", zap.String("addr", addr))
	return s.httpServer.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down HTTP server")
	if s.httpServer != nil {
		return s.httpServer.Shutdown(ctx)
	}
	return nil
}
