package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"oshirase/internal/logging"
)

const shutdownGrace = 5 * time.Second

// Server binds a Handler to a TCP address.
type Server struct {
	bind   string
	logger *slog.Logger
	server *http.Server
	ready  chan net.Addr
}

// NewServer prepares an HTTP server for h on bind.
func NewServer(bind string, h *Handler, logger *slog.Logger) (*Server, error) {
	bind = strings.TrimSpace(bind)
	if bind == "" {
		return nil, errors.New("api bind address is required")
	}
	if h == nil {
		return nil, errors.New("api server requires a handler")
	}
	return &Server{
		bind:   bind,
		logger: logging.NewComponentLogger(logger, "api_server"),
		server: &http.Server{
			Handler:           h.Router(),
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		ready: make(chan net.Addr, 1),
	}, nil
}

// Ready delivers the listening address once Run has bound it.
func (s *Server) Ready() <-chan net.Addr { return s.ready }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	s.ready <- listener.Addr()

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(listener)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("api shutdown: %w", err)
	}
	s.logger.Info("api server stopped")
	return nil
}
