package quic

import (
	"context"
	"sync"

	"github.com/quic-go/quic-go"

	"github.com/zeusync/netsync/internal/core/observability/log"
	"github.com/zeusync/netsync/internal/core/protocol"
)

var _ protocol.Transport = (*Client)(nil)

type Client struct {
	addr   string
	config Config
	logger log.Log

	mu        sync.Mutex
	conn      *connection
	done      chan struct{}
	onMessage func([]byte)
}

func NewClient(addr string, config Config, logger log.Log) *Client {
	if logger == nil {
		logger = log.Nop()
	}
	return &Client{
		addr:   addr,
		config: config,
		logger: logger.With(log.String("transport", "quic")),
	}
}

func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return nil
	}

	qc, err := quic.DialAddr(ctx, c.addr, c.config.clientTLS(), c.config.quicConfig())
	if err != nil {
		return protocol.WrapError(protocol.ErrConnectionLost, "dial "+c.addr+": "+err.Error())
	}
	stream, err := qc.OpenStreamSync(ctx)
	if err != nil {
		_ = qc.CloseWithError(1, "open stream")
		return protocol.WrapError(protocol.ErrConnectionLost, "open stream: "+err.Error())
	}

	conn := &connection{conn: qc, stream: stream}
	// An empty frame makes the stream visible to the server right away.
	if err = conn.write(nil); err != nil {
		_ = qc.CloseWithError(1, "announce")
		return err
	}

	done := make(chan struct{})
	c.conn, c.done = conn, done
	go c.readLoop(conn, done)
	return nil
}

func (c *Client) readLoop(conn *connection, done chan struct{}) {
	defer close(done)
	for {
		data, err := readFrame(conn.stream, c.config.MaxMessageSize)
		if err != nil {
			c.logger.Debug("connection closed", log.Error(err))
			break
		}
		c.mu.Lock()
		handler := c.onMessage
		c.mu.Unlock()
		if handler != nil {
			handler(data)
		}
	}
	_ = conn.conn.CloseWithError(0, "")
	c.mu.Lock()
	if c.conn == conn {
		c.conn = nil
	}
	c.mu.Unlock()
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	conn, done := c.conn, c.done
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	err := conn.conn.CloseWithError(0, "client disconnect")
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
