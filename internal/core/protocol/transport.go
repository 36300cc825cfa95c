package protocol

import "context"

// ConnID identifies one server-side connection. It changes on every
// reconnect; stable player identity travels in the Hello message.
type ConnID string

// Transport is the client side of the message-passing contract.
//
// The callback registered with OnMessageReceived may run on any goroutine
// and must only hand the data off (see Inbox).
type Transport interface {
	Connect(ctx context.Context) error
	Disconnect() error
	SendMessage(data []byte) error
	OnMessageReceived(handler func(data []byte))
}

// ServerTransport is the server side of the message-passing contract.
type ServerTransport interface {
	Sender
	OnConnect(handler func(conn ConnID))
	OnDisconnect(handler func(conn ConnID))
	OnMessageReceived(handler func(conn ConnID, data []byte))
	Close() error
}

// Sender delivers a marshaled message to one connection.
type Sender interface {
	Send(conn ConnID, data []byte) error
}

// MessageSender delivers a marshaled message to the server.
type MessageSender interface {
	SendMessage(data []byte) error
}
