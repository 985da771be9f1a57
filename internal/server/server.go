package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/user/tedshelf-go/internal/catalog"
	"github.com/user/tedshelf-go/internal/ingest"
	"github.com/user/tedshelf-go/internal/store"
)

// Submitter ingests talk URLs on behalf of a user
type Submitter interface {
	Submit(ctx context.Context, user ingest.User, pageURL string) (*ingest.VideoSummary, error)
}

// Catalog is the per-user list API used by the handlers
type Catalog interface {
	Assemble(ctx context.Context, user ingest.User, page int) (*catalog.Page, error)
	SetFavorite(ctx context.Context, userID string, videoID uint, isFavorite bool) error
	Remove(ctx context.Context, userID string, videoID uint) error
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
}

// Server serves the catalog API, health checks and metrics
type Server struct {
	store     store.Store
	submitter Submitter
	catalog   Catalog
	auth      *Authenticator
	validate  *validator.Validate
	router    chi.Router
	server    *http.Server
	startTime time.Time
}

// NewServer creates a new HTTP server instance
func NewServer(st store.Store, submitter Submitter, cat Catalog, auth *Authenticator) *Server {
	s := &Server{
		store:     st,
		submitter: submitter,
		catalog:   cat,
		auth:      auth,
		validate:  newValidator(),
		router:    chi.NewRouter(),
		startTime: time.Now(),
	}

	s.setupRoutes()
	return s
}

// setupRoutes configures the HTTP routes
func (s *Server) setupRoutes() {
	s.router.Use(requestIDMiddleware, requestLogger, recoverer)

	s.router.Get("/health", s.handleHealth)
	s.router.Handle("/metrics", promhttp.Handler())

	s.router.Route("/api/my-videos", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Get("/", s.handleListVideos)
		r.Post("/", s.handleAddVideo)
		r.Delete("/", s.handleRemoveVideo)
		r.Put("/favorite", s.handleSetFavorite)
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, r, errNotFoundRoute)
	})
}

// Handler returns the root handler
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start begins listening on the specified port
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf(":%d", port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       10 * time.Second,
		// Submissions fetch several pages
		WriteTimeout: 90 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info().Int("port", port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Info().Msg("Stopping HTTP server")
	return s.server.Shutdown(ctx)
}

// handleHealth returns JSON with status, database connectivity, and uptime
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	dbStatus := "healthy"
	if err := s.store.Ping(r.Context()); err != nil {
		dbStatus = fmt.Sprintf("unhealthy: %v", err)
	}

	response := HealthResponse{
		Status:   "healthy",
		Database: dbStatus,
		Uptime:   time.Since(s.startTime).Round(time.Second).String(),
	}

	status := http.StatusOK
	if dbStatus != "healthy" {
		response.Status = "unhealthy"
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// GetUptime returns the server uptime
func (s *Server) GetUptime() time.Duration {
	return time.Since(s.startTime)
}
