package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/clipfolio/forecastd/internal/domain"
	"github.com/clipfolio/forecastd/internal/server/handler"
	"github.com/clipfolio/forecastd/internal/server/middleware"
	"github.com/clipfolio/forecastd/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// Per-client request limit; zero disables the HTTP rate limiter.
	RateLimit       int
	RateLimitWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health      *handler.HealthHandler
	Users       *handler.UserHandler
	Questions   *handler.QuestionHandler
	Forecasts   *handler.ForecastHandler
	Leaderboard *handler.LeaderboardHandler

	// Archive is nil when cold storage is not configured; its routes are
	// then not registered.
	Archive *handler.ArchiveHandler
}

// Server is the HTTP + WebSocket API server for the forecasting platform.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// It wires up middleware (logging, CORS, auth, rate limiting) and attaches
// the WebSocket hub. The limiter may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// User endpoints.
	mux.HandleFunc("POST /api/users", handlers.Users.RegisterUser)
	mux.HandleFunc("GET /api/users/{id}", handlers.Users.GetUser)

	// Question lifecycle endpoints.
	mux.HandleFunc("POST /api/questions", handlers.Questions.CreateQuestion)
	mux.HandleFunc("GET /api/questions", handlers.Questions.ListQuestions)
	mux.HandleFunc("GET /api/questions/{id}", handlers.Questions.GetQuestion)
	mux.HandleFunc("POST /api/questions/{id}/close", handlers.Questions.CloseQuestion)
	mux.HandleFunc("POST /api/questions/{id}/resolve", handlers.Questions.ResolveQuestion)
	mux.HandleFunc("POST /api/questions/{id}/score", handlers.Questions.ScoreQuestion)

	// Forecast endpoints.
	mux.HandleFunc("POST /api/questions/{id}/forecasts", handlers.Forecasts.SubmitForecast)
	mux.HandleFunc("GET /api/questions/{id}/forecasts", handlers.Forecasts.ListForecasts)
	mux.HandleFunc("GET /api/questions/{id}/forecasts/latest", handlers.Forecasts.GetLatestForecast)

	// Leaderboard endpoint.
	mux.HandleFunc("GET /api/leaderboard", handlers.Leaderboard.GetLeaderboard)

	// Archive endpoints.
	if handlers.Archive != nil {
		mux.HandleFunc("GET /api/archive/questions", handlers.Archive.ListArchivedQuestions)
		mux.HandleFunc("GET /api/archive/questions/{id}", handlers.Archive.GetArchivedQuestion)
	}

	// WebSocket endpoint.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateLimitWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
