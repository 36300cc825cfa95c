package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol/websocket"
)

// HTTPServer exposes the WebSocket transport and a liveness probe.
type HTTPServer struct {
	server *http.Server
	ws     *websocket.Server
	logger log.Log
}

func NewHTTPServer(addr, path string, ws *websocket.Server, auth *TokenAuth, logger log.Log) *HTTPServer {
	if logger == nil {
		logger = log.Nop()
	}
	s := &HTTPServer{
		ws:     ws,
		logger: logger.With(log.String("component", "http")),
	}

	mux := http.NewServeMux()
	mux.Handle(path, auth.Wrap(ws))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	s.server = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *HTTPServer) Handler() http.Handler { return s.server.Handler }

// Serve accepts connections on l until ctx is done, then shuts down
// gracefully.
func (s *HTTPServer) Serve(ctx context.Context, l net.Listener) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", log.String("addr", l.Addr().String()))
		errCh <- s.server.Serve(l)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
