package api

import (
	"context"
	"net/http"
	"time"
)

// Server wraps the HTTP listener.
type Server struct {
	handler http.Handler
	server  *http.Server
}

// NewServer creates a server around an already-built handler.
func NewServer(handler http.Handler) *Server {
	return &Server{
		handler: handler,
		server: &http.Server{
			Handler: handler,
			// /check can fan out to many upstream lookups, so writes get more
			// room than reads.
			ReadTimeout:       15 * time.Second,
			ReadHeaderTimeout: 5 * time.Second,
			WriteTimeout:      2 * time.Minute,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// ListenAndServe starts the HTTP server and blocks until it stops. After
// Shutdown it returns http.ErrServerClosed.
func (s *Server) ListenAndServe(addr string) error {
	s.server.Addr = addr
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Handler returns the HTTP handler for testing
func (s *Server) Handler() http.Handler {
	return s.handler
}
