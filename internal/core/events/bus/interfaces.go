package bus

import "time"

// EventBus is a thread-safe, in-process pub/sub bus for session lifecycle
// notifications.
//
// Delivery is synchronous: Publish calls every matching handler in the
// caller goroutine, in subscription order, and joins handler errors.
// Handlers subscribed with SubscribeAll see every event type.
type EventBus interface {
	Publish(event Event) error

	Subscribe(eventType EventType, handler EventHandler) (Subscription, error)
	SubscribeAll(handler EventHandler) (Subscription, error)
	// Unsubscribe is safe to call with nil.
	Unsubscribe(Subscription) error

	AddObserver(obs EventBusObserver)
	RemoveObserver(obs EventBusObserver)
	// GetMetrics returns counters collected while at least one observer is
	// registered.
	GetMetrics() EventBusMetrics
}

// EventType is the routing key of an Event.
type EventType string

const (
	PlayerConnected    EventType = "player.connected"
	PlayerReady        EventType = "player.ready"
	PlayerDisconnected EventType = "player.disconnected"
	SessionRunning     EventType = "session.running"
	SessionStopped     EventType = "session.stopped"
	TurnReady          EventType = "turn.ready"
	ResyncRequested    EventType = "replication.resync"
)

// Event is one notification. Fields that do not apply to the type are left
// zero.
type Event struct {
	Type      EventType
	Source    string
	Timestamp time.Time
	Conn      string
	Player    uint8
	Turn      uint64
	Data      any
}

type EventHandler func(event Event) error

// Subscription is a registered handler. Cancel is idempotent.
type Subscription interface {
	ID() string
	// EventType is empty for SubscribeAll subscriptions.
	EventType() EventType
	IsActive() bool
	Cancel() error
}

// EventBusObserver is notified about deliveries. Observers should return
// quickly.
type EventBusObserver interface {
	OnPublish(event Event)
	OnDelivered(event Event, handlers int, err error, duration time.Duration)
}

type EventBusMetrics struct {
	Published         uint64
	DeliveredHandlers uint64
	Errors            uint64
	SubscribersActive uint64
}
