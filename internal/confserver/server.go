package confserver

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/MKhiriev/go-settings/internal/logger"
)

// Server wraps the HTTP server with graceful shutdown on SIGINT/SIGTERM.
type Server struct {
	httpServer *http.Server
	log        *logger.Logger
}

func NewServer(cfg Config, log *logger.Logger) *Server {
	handler := NewHandler(cfg, log)

	return &Server{
		httpServer: &http.Server{
			Addr:              cfg.Address,
			Handler:           handler.Init(),
			ReadHeaderTimeout: cfg.RequestTimeout,
			ReadTimeout:       cfg.RequestTimeout,
			WriteTimeout:      cfg.RequestTimeout,
		},
		log: log,
	}
}

// Run serves until the context is canceled or a termination signal arrives,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("address", s.httpServer.Addr).Msg("config server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.log.Info().Msg("shutting down config server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
