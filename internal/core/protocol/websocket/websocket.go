// Package websocket carries protocol messages as binary websocket frames.
// One frame is one message.
package websocket

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
)

type Config struct {
	Path              string        `yaml:"path"`
	MaxMessageSize    int64         `yaml:"max_message_size"`
	WriteTimeout      time.Duration `yaml:"write_timeout"`
	ReadBufferSize    int           `yaml:"read_buffer_size"`
	WriteBufferSize   int           `yaml:"write_buffer_size"`
	EnableCompression bool          `yaml:"enable_compression"`
}

// DefaultConfig returns default websocket transport configuration
func DefaultConfig() Config {
	return Config{
		Path:            "/ws",
		MaxMessageSize:  1024 * 1024, // 1MB
		WriteTimeout:    5 * time.Second,
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
	}
}

// connection wraps a websocket with a write lock; gorilla allows one
// concurrent writer.
type connection struct {
	id      protocol.ConnID
	ws      *websocket.Conn
	timeout time.Duration
	writeMu sync.Mutex
	closed  atomic.Bool
}

func newConnection(ws *websocket.Conn, config Config) *connection {
	ws.SetReadLimit(config.MaxMessageSize)
	return &connection{
		id:      protocol.ConnID(uuid.NewString()),
		ws:      ws,
		timeout: config.WriteTimeout,
	}
}

func (c *connection) write(data []byte) error {
	if c.closed.Load() {
		return protocol.ErrConnectionClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.timeout > 0 {
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.timeout))
	}
	if err := c.ws.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return protocol.WrapError(protocol.ErrConnectionLost, err.Error())
	}
	return nil
}

// closeWithReason sends a close frame and closes the socket. Calls after the
// first are no-ops.
func (c *connection) closeWithReason(code int, reason string) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.writeMu.Lock()
	_ = c.ws.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(code, reason), time.Now().Add(time.Second))
	c.writeMu.Unlock()
	return c.ws.Close()
}

// readLoop hands every binary frame to handle until the socket fails.
func (c *connection) readLoop(handle func([]byte)) error {
	for {
		typ, data, err := c.ws.ReadMessage()
		if err != nil {
			return err
		}
		if typ != websocket.BinaryMessage {
			continue
		}
		handle(data)
	}
}

var (
	_ protocol.ServerTransport = (*Server)(nil)
	_ http.Handler             = (*Server)(nil)
)

// Server upgrades HTTP requests and tracks the resulting connections. Mount
// it on any mux; Close disconnects everyone.
type Server struct {
	config   Config
	logger   log.Log
	upgrader websocket.Upgrader

	mu    sync.RWMutex
	conns map[protocol.ConnID]*connection

	onConnect    func(protocol.ConnID)
	onDisconnect func(protocol.ConnID)
	onMessage    func(protocol.ConnID, []byte)

	closed atomic.Bool
}

func NewServer(config Config, logger log.Log) *Server {
	if logger == nil {
		logger = log.Nop()
	}
	return &Server{
		config: config,
		logger: logger.With(log.String("transport", "websocket")),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			EnableCompression: config.EnableCompression,
		},
		conns: make(map[protocol.ConnID]*connection),
	}
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if s.closed.Load() {
		http.Error(w, "server is closed", http.StatusServiceUnavailable)
		return
	}
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", log.Error(err))
		return
	}

	c := newConnection(ws, s.config)
	s.mu.Lock()
	s.conns[c.id] = c
	onConnect, onMessage := s.onConnect, s.onMessage
	s.mu.Unlock()

	s.logger.Debug("client connected",
		log.String("conn", string(c.id)),
		log.String("remote", ws.RemoteAddr().String()),
	)
	if onConnect != nil {
		onConnect(c.id)
	}

	err = c.readLoop(func(data []byte) {
		if onMessage != nil {
			onMessage(c.id, data)
		}
	})

	s.mu.Lock()
	delete(s.conns, c.id)
	onDisconnect := s.onDisconnect
	s.mu.Unlock()
	_ = c.closeWithReason(websocket.CloseNormalClosure, "")

	s.logger.Debug("client disconnected", log.String("conn", string(c.id)), log.Error(err))
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

func (s *Server) ConnCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conns)
}

func (s *Server) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	s.mu.RLock()
	conns := make([]*connection, 0, len(s.conns))
	for _, c := range s.conns {
		conns = append(conns, c)
	}
	s.mu.RUnlock()

	for _, c := range conns {
		_ = c.closeWithReason(websocket.CloseGoingAway, "server shutdown")
	}
	return nil
}

var _ protocol.Transport = (*Client)(nil)

// Client is the dialing side of the transport.
type Client struct {
	url    string
	config Config
	dialer *websocket.Dialer
	logger log.Log

	mu        sync.Mutex
	conn      *connection
	onMessage func([]byte)
	done      chan struct{}
}

func NewClient(url string, config Config, logger log.Log) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		url:    url,
		config: config,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  10 * time.Second,
			ReadBufferSize:    config.ReadBufferSize,
			WriteBufferSize:   config.WriteBufferSize,
			EnableCompression: config.EnableCompression,
		},
		logger: logger.With(log.String("transport", "websocket")),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	ws, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return protocol.WrapError(protocol.ErrConnectionLost, "dial "+c.url+": "+err.Error())
	}
	conn := newConnection(ws, c.config)
	done := make(chan struct{})
	c.conn, c.done = conn, done

	go func() {
		defer close(done)
		err := conn.readLoop(func(data []byte) {
			c.mu.Lock()
			handler := c.onMessage
			c.mu.Unlock()
			if handler != nil {
				handler(data)
			}
		})
		c.logger.Debug("connection closed", log.Error(err))
		_ = conn.closeWithReason(websocket.CloseNormalClosure, "")
		c.mu.Lock()
		if c.conn == conn {
			c.conn = nil
		}
		c.mu.Unlock()
	}()
	return nil
}

// Disconnect closes the socket and waits for the read loop to exit.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.closeWithReason(websocket.CloseNormalClosure, "client disconnect")
	<-done
	return err
}

func (c *Client) SendMessage(data []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return protocol.ErrNotConnected
	}
	return conn.write(data)
}

func (c *Client) OnMessageReceived(handler func([]byte)) {
	c.mu.Lock()
	c.onMessage = handler
	c.mu.Unlock()
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn != nil
}
