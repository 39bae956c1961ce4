package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mark3labs/mcp-go/server"

	"github.com/vcto/mcp-progress/internal/middleware"
)

const shutdownTimeout = 5 * time.Second

// HTTPHandler returns the HTTP handler serving MCP on /mcp and a health
// check on /health. Sessions are stateful so progress notifications can be
// streamed back to the client that issued the request. Browser clients are
// served CORS headers when their origin is allowed.
func (s *Server) HTTPHandler() http.Handler {
	streamable := server.NewStreamableHTTPServer(s.mcp, server.WithEndpointPath("/mcp"))

	mux := http.NewServeMux()
	mux.Handle("/mcp", streamable)
	mux.Handle("/mcp/", streamable)
	mux.HandleFunc("/health", s.handleHealth)

	if len(s.origins) == 0 {
		return mux
	}
	return middleware.CORS(middleware.DefaultCORSConfig(s.origins...))(mux)
}

// ServeHTTP listens on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.HTTPHandler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Serving MCP over streamable HTTP at /mcp")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutdown signal received, starting graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-serverErr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	status := map[string]any{
		"status":       "ok",
		"active_tasks": s.manager.GetActiveTaskCount(),
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to encode health response")
	}
}
