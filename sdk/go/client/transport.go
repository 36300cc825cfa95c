package client

import (
	"fmt"
	"net/url"

	"github.com/zeusync/netsync/internal/config"
	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
	"github.com/zeusync/netsync/internal/core/protocol/quic"
	"github.com/zeusync/netsync/internal/core/protocol/websocket"
)

// NewTransport returns the client end of the transport selected by cfg.
func NewTransport(cfg config.TransportConfig, logger log.Log) protocol.Transport {
	if cfg.Kind == config.TransportQUIC {
		return quic.NewClient(cfg.Addr, cfg.QUIC, logger)
	}
	u := url.URL{Scheme: "ws", Host: cfg.Addr, Path: cfg.WebSocket.Path}
	if cfg.Token != "" {
		u.RawQuery = url.Values{"token": {cfg.Token}}.Encode()
	}
	return websocket.NewClient(u.String(), cfg.WebSocket, logger)
}

// Endpoint describes the endpoint of cfg for logs.
func Endpoint(cfg config.TransportConfig) string {
	return fmt.Sprintf("%s://%s", cfg.Kind, cfg.Addr)
}
