// Package status exposes a read-only JSON API over the bot's runtime state:
// health, mirrored open positions, trade history and derived statistics.
package status

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/jbaeza/cyclebot/internal/models"
	"github.com/jbaeza/cyclebot/internal/storage"
)

// PositionSource supplies the currently mirrored open positions. The order
// executor satisfies this.
type PositionSource interface {
	OpenPositions() []models.Position
}

// Config configures the status server.
type Config struct {
	Port      int
	AuthToken string
}

// Server serves the status endpoints.
type Server struct {
	router    *chi.Mux
	server    *http.Server
	storage   storage.Interface
	positions PositionSource
	logger    *logrus.Logger
	port      int
	authToken string
	started   time.Time
}

// NewServer builds the router. Pass an empty AuthToken to disable auth.
func NewServer(cfg Config, store storage.Interface, positions PositionSource, logger *logrus.Logger) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		storage:   store,
		positions: positions,
		logger:    logger,
		port:      cfg.Port,
		authToken: cfg.AuthToken,
		started:   time.Now().UTC(),
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Timeout(30 * time.Second))

	if s.authToken != "" {
		s.router.Use(s.authMiddleware)
	}

	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/api/positions", s.handlePositions)
	s.router.Get("/api/history", s.handleHistory)
	s.router.Get("/api/stats", s.handleStats)
}

func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		if r.Header.Get("Authorization") != "Bearer "+s.authToken {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start blocks serving HTTP until Shutdown or a listener error.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.WithField("port", s.port).Info("starting status server")
	return s.server.ListenAndServe()
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, map[string]any{
		"status":         "ok",
		"uptime_seconds": int(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handlePositions(w http.ResponseWriter, r *http.Request) {
	positions := s.positions.OpenPositions()
	if positions == nil {
		positions = []models.Position{}
	}
	s.writeJSON(w, positions)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	history := s.storage.History()
	if history == nil {
		history = []models.TradeRecord{}
	}
	s.writeJSON(w, history)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, s.storage.Statistics())
}

func (s *Server) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.WithError(err).Error("failed to encode status response")
	}
}
