// Package api exposes the support chatbot over HTTP.
//
// Endpoints:
//
//	POST   /api/chat                    - one conversational turn
//	POST   /api/sessions                - create a session
//	GET    /api/sessions/{id}/history   - conversation history
//	POST   /api/sessions/{id}/clear     - clear history, keep the session
//	DELETE /api/sessions/{id}           - delete the session
//	GET    /api/articles/{id}/similar   - related knowledge base articles
//	GET    /api/topics                  - known article topics
//	GET    /api/status                  - system status
//	GET    /health                      - liveness probe
//	GET    /ready                       - readiness probe
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/alexmeckes/SUMO-chatbot/internal/log"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = ":8080"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds request header reads, preventing
	// Slowloris-style connection exhaustion.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	// Synthesis can take a while, so this exceeds the chat timeout.
	WriteTimeout = 90 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second
)

// Server is the chatbot's HTTP server.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	corsOrigins []string
	trustProxy  bool

	health   *HealthHandler
	chat     *ChatHandler
	session  *SessionHandler
	articles *ArticlesHandler
	status   *StatusHandler
}

// Config carries the server's collaborators. All handlers share the
// same logger.
type Config struct {
	Bot         ChatBot
	Sessions    SessionStore
	Articles    ArticleFinder
	Status      StatusSource
	Pinger      Pinger
	CORSOrigins []string
	TrustProxy  bool // trust X-Real-IP/X-Forwarded-For (behind reverse proxy)
	Logger      log.Logger
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:         mux,
		logger:      logger,
		corsOrigins: cfg.CORSOrigins,
		trustProxy:  cfg.TrustProxy,
		health:      NewHealthHandler(cfg.Pinger, logger),
		chat:        NewChatHandler(cfg.Bot, logger),
		session:     NewSessionHandler(cfg.Sessions, logger),
		articles:    NewArticlesHandler(cfg.Articles, logger),
		status:      NewStatusHandler(cfg.Status, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.session.RegisterRoutes(mux)
	s.articles.RegisterRoutes(mux)
	s.status.RegisterRoutes(mux)

	return s
}

// Handler returns the handler with middleware applied.
// Order: recovery outermost, then CORS, then request logging.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		corsMiddleware(s.corsOrigins),
		loggingMiddleware(s.logger, s.trustProxy),
	)
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
