// Package devserver is an in-memory implementation of the chat backend
// contract. It streams canned answers with citations and a table artifact
// and is used for local development and integration tests.
package devserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// APIPrefix is where the contract routes are mounted.
const APIPrefix = "/api/v1"

// Server wraps the router with its in-memory state and lifecycle management.
type Server struct {
	store      *memStore
	logger     *slog.Logger
	token      string
	chunkDelay time.Duration
	router     *chi.Mux
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request and stream logger.
func WithLogger(l *slog.Logger) Option { return func(s *Server) { s.logger = l } }

// WithToken requires "Authorization: Bearer <token>" on API routes.
func WithToken(token string) Option { return func(s *Server) { s.token = token } }

// WithChunkDelay sets the pause between streamed chunks.
func WithChunkDelay(d time.Duration) Option { return func(s *Server) { s.chunkDelay = d } }

// WithClock overrides time.Now for stored timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.store.now = now }
}

// New creates a server with an empty store.
func New(opts ...Option) *Server {
	s := &Server{
		store:      newMemStore(time.Now),
		logger:     slog.Default(),
		chunkDelay: 40 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler serving every route.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware(s.logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route(APIPrefix, func(r chi.Router) {
		r.Use(bearerAuth(s.token))

		// JSON routes get a request timeout; the stream must stay open.
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(30 * time.Second))

			r.Post("/conversations", s.handleCreateConversation)
			r.Get("/conversations", s.handleListConversations)
			r.Get("/conversations/{conversationID}", s.handleGetConversation)
			r.Patch("/conversations/{conversationID}", s.handleUpdateConversation)
			r.Delete("/conversations/{conversationID}", s.handleDeleteConversation)
			r.Delete("/messages/{messageID}", s.handleDeleteMessage)

			r.Post("/chat/send", s.handleSend)
			r.Get("/chat/suggestions", s.handleSuggestions)

			r.Post("/processing/process", s.handleProcess)
			r.Get("/processing/{processingID}", s.handleGetProcessing)
		})

		r.Post("/chat/stream", s.handleStream)
	})
	return r
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:     s.router,
		ReadTimeout: 5 * time.Second,
		IdleTimeout: 120 * time.Second,
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("devserver listening", "url", "http://"+ln.Addr().String()+APIPrefix)
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down devserver...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("devserver stopped")
	return nil
}
