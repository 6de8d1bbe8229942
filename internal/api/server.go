// Package api provides the HTTP JSON facade over the rewards engine.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/tutu-network/rewards/internal/app/engagement"
	"github.com/tutu-network/rewards/internal/domain"
	"github.com/tutu-network/rewards/internal/health"
)

// Version is reported by /api/version.
const Version = "0.1.0"

// Server is the rewards HTTP API server.
type Server struct {
	engine         *engagement.Engine
	checker        *health.Checker // nil disables /api/health/checks
	metricsEnabled bool
	corsOrigins    []string
}

// NewServer creates a new API server.
func NewServer(engine *engagement.Engine) *Server {
	return &Server{engine: engine}
}

// EnableMetrics enables the /metrics Prometheus endpoint.
func (s *Server) EnableMetrics() { s.metricsEnabled = true }

// SetHealthChecker exposes c on /health and /api/health/checks.
func (s *Server) SetHealthChecker(c *health.Checker) { s.checker = c }

// SetCORSOrigins restricts cross-origin callers. Empty allows any origin.
func (s *Server) SetCORSOrigins(origins []string) { s.corsOrigins = origins }

// Handler returns the chi router with all routes mounted.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(s.cors().Handler)

	r.Get("/health", s.handleHealth)
	r.Get("/api/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"version": Version,
		})
	})
	if s.checker != nil {
		r.Get("/api/health/checks", s.handleHealthChecks)
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/catalog", s.handleCatalog)
		r.Get("/leaderboard", s.handleLeaderboard)
		r.Get("/challenges/{challengeID}/leaderboard", s.handleChallengeLeaderboard)

		r.Route("/users/{userID}", func(r chi.Router) {
			// Queries
			r.Get("/progress", s.handleProgress)
			r.Get("/summary", s.handleSummary)
			r.Get("/ledger", s.handleLedger)
			r.Get("/achievements", s.handleAchievements)
			r.Get("/challenges", s.handleChallenges)
			r.Get("/activity", s.handleActivity)

			// Commands
			r.Post("/points", s.handleAward)
			r.Post("/points/spend", s.handleSpend)
			r.Post("/points/expire", s.handleExpire)
			r.Post("/habits", s.handleHabit)
			r.Post("/checkins", s.handleCheckIn)
			r.Post("/challenges/{challengeID}/start", s.handleChallengeStart)
			r.Post("/challenges/{challengeID}/progress", s.handleChallengeProgress)
			r.Post("/challenges/{challengeID}/complete", s.handleChallengeComplete)
			r.Post("/achievements/{achievementID}/unlock", s.handleUnlock)
			r.Post("/rewards/{rewardID}/claim", s.handleClaim)
		})
	})

	// Prometheus metrics endpoint
	if s.metricsEnabled {
		r.Handle("/metrics", promhttp.Handler())
	}

	return r
}

func (s *Server) cors() *cors.Cors {
	origins := s.corsOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.checker != nil && !s.checker.IsHealthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "degraded",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}

func (s *Server) handleHealthChecks(w http.ResponseWriter, r *http.Request) {
	statuses := s.checker.Statuses()
	if len(statuses) == 0 {
		statuses = s.checker.RunOnce(r.Context())
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"healthy": s.checker.IsHealthy(),
		"checks":  statuses,
	})
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, typ, msg string) {
	writeJSON(w, status, map[string]interface{}{
		"error": map[string]interface{}{
			"message": msg,
			"type":    typ,
		},
	})
}

// writeEngineError maps a domain error to its HTTP status.
func writeEngineError(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), domain.ErrorCode(err), err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrInvalidTransaction),
		errors.Is(err, domain.ErrInvalidOperation),
		errors.Is(err, domain.ErrInvalidCheckIn):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrVersionConflict),
		errors.Is(err, domain.ErrNotActive),
		errors.Is(err, domain.ErrAlreadyStarted),
		errors.Is(err, domain.ErrExpired):
		return http.StatusConflict
	case errors.Is(err, domain.ErrStorage):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}
