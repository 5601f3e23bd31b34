package httpserver

import (
	"context"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"grantify-client/internal/cache/service"
	"grantify-client/internal/interaction"
	"grantify-client/internal/models"
	"grantify-client/internal/search"
)

const (
	unixPrefix     = "unix:"
	maxRequestBody = 1 << 20
)

// Reader serves the cached per-user reads
type Reader interface {
	Interactions(ctx context.Context) ([]models.Interaction, error)
	Recommendations(ctx context.Context) ([]models.Recommendation, error)
}

// Option configures a Server
type Option func(*Server)

// WithRecommendations toggles the /recommendations route
func WithRecommendations(enabled bool) Option {
	return func(s *Server) {
		s.recommendations = enabled
	}
}

// Server is the local control API standing in for the UI
type Server struct {
	orchestrator    *search.Orchestrator
	coordinator     *interaction.Coordinator
	reader          Reader
	cacheService    *service.CacheService
	logger          *zap.Logger
	server          *http.Server
	recommendations bool
}

// NewServer creates a new control API server
func NewServer(orchestrator *search.Orchestrator, coordinator *interaction.Coordinator, reader Reader, cacheService *service.CacheService, logger *zap.Logger, opts ...Option) *Server {
	s := &Server{
		orchestrator:    orchestrator,
		coordinator:     coordinator,
		reader:          reader,
		cacheService:    cacheService,
		logger:          logger,
		recommendations: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start serves on addr, either host:port or unix:/path/to/socket
func (s *Server) Start(addr string) error {
	listener, err := s.listen(addr)
	if err != nil {
		return err
	}

	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting control API server", zap.String("addr", addr))
	return s.server.Serve(listener)
}

func (s *Server) listen(addr string) (net.Listener, error) {
	if !strings.HasPrefix(addr, unixPrefix) {
		return net.Listen("tcp", addr)
	}

	socketPath := strings.TrimPrefix(addr, unixPrefix)
	// Remove existing socket file
	if err := os.RemoveAll(socketPath); err != nil {
		s.logger.Warn("Failed to remove existing socket file", zap.String("path", socketPath), zap.Error(err))
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return nil, err
	}

	// Set socket permissions (readable/writable by owner and group)
	if err := os.Chmod(socketPath, 0660); err != nil {
		s.logger.Warn("Failed to set socket permissions", zap.String("path", socketPath), zap.Error(err))
	}
	return listener, nil
}

// Stop stops the HTTP server
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.logger.Info("Stopping control API server")
	return s.server.Shutdown(ctx)
}

// Handler returns the configured router
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	// Search endpoints
	router.HandleFunc("/search", s.handleSearchState).Methods("GET")
	router.HandleFunc("/search", s.handleSearchSubmit).Methods("POST")
	router.HandleFunc("/search/page", s.handleSearchPage).Methods("POST")
	router.HandleFunc("/search/sort", s.handleSearchSort).Methods("POST")
	router.HandleFunc("/search/filters", s.handleSearchFilters).Methods("PATCH")
	router.HandleFunc("/search/refresh", s.handleSearchRefresh).Methods("POST")

	// Interaction endpoints
	router.HandleFunc("/interactions", s.handleListInteractions).Methods("GET")
	router.HandleFunc("/interactions/{id}", s.handlePerformAction).Methods("POST")
	router.HandleFunc("/interactions/{id}", s.handleUndoAction).Methods("DELETE")
	if s.recommendations {
		router.HandleFunc("/recommendations", s.handleRecommendations).Methods("GET")
	}

	// Cache endpoints
	router.HandleFunc("/cache/info", s.handleCacheInfo).Methods("GET")
	router.HandleFunc("/cache/clear", s.handleCacheClear).Methods("POST")

	// Health check
	router.HandleFunc("/health", s.handleHealth).Methods("GET")

	// Prometheus metrics endpoint
	router.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return router
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeResponse(w, map[string]interface{}{
		"status": "healthy",
		"time":   time.Now().UTC(),
	})
}

// parseRequest parses JSON request body
func (s *Server) parseRequest(r *http.Request, v interface{}) error {
	defer func() { _ = r.Body.Close() }()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

// writeResponse writes JSON response
func (s *Server) writeResponse(w http.ResponseWriter, v interface{}) {
	s.writeStatusResponse(w, http.StatusOK, v)
}

func (s *Server) writeStatusResponse(w http.ResponseWriter, statusCode int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to write response", zap.Error(err))
	}
}

// writeErrorResponse writes error response
func (s *Server) writeErrorResponse(w http.ResponseWriter, message string, statusCode int) {
	s.writeStatusResponse(w, statusCode, map[string]interface{}{
		"success": false,
		"error":   message,
	})
}
