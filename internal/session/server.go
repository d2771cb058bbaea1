package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/homestream/homestream/internal/infrastructure/config"
	"github.com/homestream/homestream/internal/infrastructure/logging"
)

// Server accepts websocket connections and hands them to the registry.
// It exposes a single upgrade endpoint; everything after the upgrade is
// driven by the client pumps.
type Server struct {
	cfg      config.WebSocketConfig
	registry *Registry
	logger   *logging.Logger

	httpServer *http.Server
	upgrader   websocket.Upgrader
}

// NewServer creates a websocket server bound to the configured address.
func NewServer(cfg config.WebSocketConfig, registry *Registry, logger *logging.Logger) *Server {
	s := &Server{
		cfg:      cfg,
		registry: registry,
		logger:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// Browser clients connect from arbitrary origins on the
			// local network; access control happens in the handshake.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}

	mux := http.NewServeMux()
	mux.HandleFunc(cfg.Path, s.handleUpgrade)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  0, // websocket connections are long-lived
		WriteTimeout: 0,
	}
	return s
}

// Run serves until ctx is cancelled, then drains with a short grace
// period. It returns nil on a clean shutdown.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("websocket server listening", "addr", s.httpServer.Addr, "path", s.cfg.Path)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.registry.CloseAll()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("session: shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("session: serve: %w", err)
	}
}

func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := newClient(conn, s.registry, s.logger)
	s.registry.Track(client)

	go client.writePump()
	go client.readPump()
}
