package protocol

import "sync"

type EventType uint8

const (
	EventConnect EventType = iota + 1
	EventDisconnect
	EventMessage
)

// Event is one transport notification queued for the next host tick.
type Event struct {
	Type EventType
	Conn ConnID
	Data []byte
}

// Inbox decouples transport goroutines from the single-threaded engines:
// callbacks only append, the host drains once per Update.
type Inbox struct {
	mu     sync.Mutex
	events []Event
}

func NewInbox() *Inbox {
	return &Inbox{events: make([]Event, 0, 64)}
}

func (i *Inbox) Push(event Event) {
	i.mu.Lock()
	i.events = append(i.events, event)
	i.mu.Unlock()
}

// Drain returns every queued event in arrival order and empties the inbox.
func (i *Inbox) Drain() []Event {
	i.mu.Lock()
	defer i.mu.Unlock()
	if len(i.events) == 0 {
		return nil
	}
	out := i.events
	i.events = make([]Event, 0, cap(out))
	return out
}

func (i *Inbox) Len() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.events)
}

// BindServer routes every callback of t into the inbox.
func (i *Inbox) BindServer(t ServerTransport) {
	t.OnConnect(func(conn ConnID) {
		i.Push(Event{Type: EventConnect, Conn: conn})
	})
	t.OnDisconnect(func(conn ConnID) {
		i.Push(Event{Type: EventDisconnect, Conn: conn})
	})
	t.OnMessageReceived(func(conn ConnID, data []byte) {
		i.Push(Event{Type: EventMessage, Conn: conn, Data: data})
	})
}

// BindClient routes incoming messages of t into the inbox.
func (i *Inbox) BindClient(t Transport) {
	t.OnMessageReceived(func(data []byte) {
		i.Push(Event{Type: EventMessage, Data: data})
	})
}
