package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// NewRouter builds the service router.
func NewRouter(dedupe *DedupeHandler, health *HealthHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/dedupe", dedupe.HandleDedupe).Methods(http.MethodPost)
	r.HandleFunc("/health", health.HandleHealth).Methods(http.MethodGet)
	return r
}

// Server wraps the HTTP server with graceful shutdown.
type Server struct {
	httpServer *http.Server
	port       int
}

// NewServer creates the HTTP server on the given port.
func NewServer(port int, router *mux.Router) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		port: port,
	}
}

// ListenAndServe starts serving until the server is shut down.
func (s *Server) ListenAndServe() error {
	slog.Info("starting server", slog.Int("port", s.port))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	slog.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}
