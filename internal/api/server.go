package api

import (
	"context"
	"errors"
	"net/http"

	"go.uber.org/zap"
)

// Server combines the HTTP router with the WebSocket hub. Background
// work — the hub's broadcast loop and the HTTP listener — starts only in
// Start, matching fight-club-go's Server (constructing a Server never
// opens a socket, so it is safe to build in tests).
type Server struct {
	addr string
	log  *zap.Logger

	httpSrv *http.Server
	hub     *hub
}

// NewServer builds a Server from cfg. cfg.Engine, cfg.Feed, cfg.DB, and
// cfg.Tables must be set; cfg.Log defaults to a no-op logger.
func NewServer(addr string, cfg RouterConfig) *Server {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	router, wsHub := NewRouter(cfg)
	return &Server{
		addr:    addr,
		log:     cfg.Log,
		httpSrv: &http.Server{Addr: addr, Handler: router},
		hub:     wsHub,
	}
}

// Start runs the WebSocket hub's broadcast loop and the HTTP listener
// until ctx is cancelled, then shuts the HTTP server down gracefully.
// Intended to run under an errgroup.Group alongside the capture and
// storage-writer goroutines.
func (s *Server) Start(ctx context.Context) error {
	go s.hub.run(ctx)

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("command surface listening", zap.String("addr", s.addr))
		errCh <- s.httpSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		return s.httpSrv.Shutdown(context.Background())
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
