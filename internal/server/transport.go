package server

import (
	"context"
	"net"

	"github.com/zeusync/netsync/internal/config"
	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/protocol/quic"
	"github.com/zeusync/netsync/internal/core/protocol/websocket"
)

// Listener is a bound server transport. Serve blocks until ctx is done.
type Listener struct {
	Transport protocol.ServerTransport
	Addr      string
	Serve     func(ctx context.Context) error
}

// Listen binds the transport selected by cfg.
func Listen(ctx context.Context, cfg config.TransportConfig, logger log.Log) (*Listener, error) {
	switch cfg.Kind {
	case config.TransportQUIC:
		srv, err := quic.Listen(ctx, cfg.Addr, cfg.QUIC, logger)
		if err != nil {
			return nil, protocol.WrapError(err, "listen quic")
		}
		return &Listener{
			Transport: srv,
			Addr:      srv.Addr(),
			Serve: func(ctx context.Context) error {
				<-ctx.Done()
				return nil
			},
		}, nil

	default:
		l, err := net.Listen("tcp", cfg.Addr)
		if err != nil {
			return nil, protocol.WrapError(err, "listen websocket")
		}
		ws := websocket.NewServer(cfg.WebSocket, logger)
		httpServer := NewHTTPServer(cfg.Addr, cfg.WebSocket.Path, ws, &TokenAuth{Token: cfg.Token, Logger: logger}, logger)
		return &Listener{
			Transport: ws,
			Addr:      l.Addr().String(),
			Serve: func(ctx context.Context) error {
				return httpServer.Serve(ctx, l)
			},
		}, nil
	}
}
