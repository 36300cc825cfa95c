package quic

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/quic-go/quic-go"
	"golang.org/x/sync/errgroup"

	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
)

type connection struct {
	id      protocol.ConnID
	conn    *quic.Conn
	stream  *quic.Stream
	writeMu sync.Mutex
}

func (c *connection) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeFrame(c.stream, data); err != nil {
		return protocol.WrapError(protocol.ErrConnectionLost, err.Error())
	}
	return nil
}

var _ protocol.ServerTransport = (*Server)(nil)

// Server accepts QUIC connections. Every connection must open one stream;
// the first frame on it may be empty and only announces the client.
type Server struct {
	config   Config
	logger   log.Log
	listener *quic.Listener
	group    *errgroup.Group
	cancel   context.CancelFunc
	closed   atomic.Bool

	mu    sync.RWMutex
	conns map[protocol.ConnID]*connection

	onConnect    func(protocol.ConnID)
	onDisconnect func(protocol.ConnID)
	onMessage    func(protocol.ConnID, []byte)
}

// Listen starts accepting on addr until ctx is cancelled or Close is called.
func Listen(ctx context.Context, addr string, config Config, logger log.Log) (*Server, error) {
	if logger == nil {
		logger = log.Nop()
	}
	tlsConfig, err := config.serverTLS()
	if err != nil {
		return nil, err
	}
	listener, err := quic.ListenAddr(addr, tlsConfig, config.quicConfig())
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	group, ctx := errgroup.WithContext(ctx)
	s := &Server{
		config:   config,
		logger:   logger.With(log.String("transport", "quic")),
		listener: listener,
		group:    group,
		cancel:   cancel,
		conns:    make(map[protocol.ConnID]*connection),
	}
	group.Go(func() error { return s.acceptLoop(ctx) })

	s.logger.Info("quic transport listening", log.String("address", listener.Addr().String()))
	return s, nil
}

func (s *Server) Addr() string { return s.listener.Addr().String() }

func (s *Server) acceptLoop(ctx context.Context) error {
	for {
		conn, err := s.listener.Accept(ctx)
		if err != nil {
			if ctx.Err() != nil || s.closed.Load() {
				return nil
			}
			return err
		}
		s.group.Go(func() error {
			s.serve(ctx, conn)
			return nil
		})
	}
}

func (s *Server) serve(ctx context.Context, conn *quic.Conn) {
	stream, err := conn.AcceptStream(ctx)
	if err != nil {
		s.logger.Debug("no stream opened", log.String("remote", conn.RemoteAddr().String()), log.Error(err))
		_ = conn.CloseWithError(1, "no stream")
		return
	}

	c := &connection{id: protocol.ConnID(uuid.NewString()), conn: conn, stream: stream}
	s.mu.Lock()
	s.conns[c.id] = c
	onConnect, onMessage := s.onConnect, s.onMessage
	s.mu.Unlock()

	s.logger.Debug("client connected",
		log.String("conn", string(c.id)),
		log.String("remote", conn.RemoteAddr().String()),
	)
	if onConnect != nil {
		onConnect(c.id)
	}

	for {
		data, err := readFrame(stream, s.config.MaxMessageSize)
		if err != nil {
			s.logger.Debug("client disconnected", log.String("conn", string(c.id)), log.Error(err))
			break
		}
		if len(data) == 0 {
			continue
		}
		if onMessage != nil {
			onMessage(c.id, data)
		}
	}

	s.mu.Lock()
	delete(s.conns, c.id)
	onDisconnect := s.onDisconnect
	s.mu.Unlock()
	_ = conn.CloseWithError(0, "")
	if onDisconnect != nil {
		onDisconnect(c.id)
	}
}

func (s *Server) Send(conn protocol.ConnID, data []byte) error {
	s.mu.RLock()
	c, ok := s.conns[conn]
	s.mu.RUnlock()
	if !ok {
		return protocol.ErrConnectionClosed
	}
	return c.write(data)
}

func (s *Server) OnConnect(handler func(protocol.ConnID)) {
	s.mu.Lock()
	s.onConnect = handler
	s.mu.Unlock()
}

func (s *Server) OnDisconnect(handler func(protocol.ConnID)) {
	s.mu.Lock()
	s.onDisconnect = handler
	s.mu.Unlock()
}

func (s *Server) OnMessageReceived(handler func(protocol.ConnID, []byte)) {
	s.mu.Lock()
	s.onMessage = handler
	s.mu.Unlock()
}

// Close stops accepting, closes every connection and waits for the
// connection goroutines to finish.
func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.cancel()
	err := s.listener.Close()

	s.mu.RLock()
	for _, c := range s.conns {
		_ = c.conn.CloseWithError(0, "server shutdown")
	}
	s.mu.RUnlock()

	if waitErr := s.group.Wait(); waitErr != nil {
		return waitErr
	}
	return err
}
