package bus

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/netsync/internal/core/observability/log"
)

type testObserver struct {
	publishCount   int
	deliveredCount int
	lastErr        error
}

func (o *testObserver) OnPublish(Event) {
	o.publishCount++
}

func (o *testObserver) OnDelivered(_ Event, handlers int, err error, _ time.Duration) {
	o.deliveredCount += handlers
	o.lastErr = err
}

func TestBasicPublishSubscribe(t *testing.T) {
	b := New()
	var got []Event
	sub, err := b.Subscribe(PlayerReady, func(e Event) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, PlayerReady, sub.EventType())
	assert.NotEmpty(t, sub.ID())

	event := NewEvent(PlayerReady, "lockstep")
	event.Player = 1
	require.NoError(t, b.Publish(event))
	require.NoError(t, b.Publish(NewEvent(PlayerConnected, "lockstep")))

	require.Len(t, got, 1)
	assert.Equal(t, uint8(1), got[0].Player)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestSubscribeErrors(t *testing.T) {
	b := New()
	_, err := b.Subscribe("", func(Event) error { return nil })
	require.Error(t, err)
	_, err = b.Subscribe(TurnReady, nil)
	require.Error(t, err)
}

func TestDeliveryOrderAndSubscribeAll(t *testing.T) {
	b := New()
	var order []string
	_, _ = b.Subscribe(TurnReady, func(Event) error { order = append(order, "first"); return nil })
	_, _ = b.SubscribeAll(func(e Event) error { order = append(order, "all:"+string(e.Type)); return nil })
	_, _ = b.Subscribe(TurnReady, func(Event) error { order = append(order, "third"); return nil })

	require.NoError(t, b.Publish(NewEvent(TurnReady, "test")))
	require.NoError(t, b.Publish(NewEvent(SessionRunning, "test")))
	assert.Equal(t, []string{"first", "all:turn.ready", "third", "all:session.running"}, order)
}

func TestUnsubscribe(t *testing.T) {
	b := New()
	count := 0
	sub, err := b.Subscribe(TurnReady, func(Event) error { count++; return nil })
	require.NoError(t, err)

	require.NoError(t, b.Publish(NewEvent(TurnReady, "test")))
	require.NoError(t, b.Unsubscribe(sub))
	require.NoError(t, sub.Cancel())
	require.NoError(t, b.Unsubscribe(nil))
	require.NoError(t, b.Publish(NewEvent(TurnReady, "test")))

	assert.Equal(t, 1, count)
	assert.False(t, sub.IsActive())
}

func TestPublishErrorsAreJoined(t *testing.T) {
	b := New()
	b.AddObserver(&testObserver{})
	errA, errB := errors.New("a"), errors.New("b")
	_, _ = b.Subscribe(PlayerDisconnected, func(Event) error { return errA })
	_, _ = b.Subscribe(PlayerDisconnected, func(Event) error { return errB })

	err := b.Publish(NewEvent(PlayerDisconnected, "test"))
	require.ErrorIs(t, err, errA)
	require.ErrorIs(t, err, errB)
	assert.Equal(t, uint64(1), b.GetMetrics().Errors)
}

func TestObserverMetricsOptional(t *testing.T) {
	b := New()
	_, _ = b.Subscribe(TurnReady, func(Event) error { return nil })
	require.NoError(t, b.Publish(NewEvent(TurnReady, "test")))
	assert.Zero(t, b.GetMetrics().Published)

	obs := &testObserver{}
	b.AddObserver(obs)
	b.AddObserver(NewLogObserver(log.Nop()))
	require.NoError(t, b.Publish(NewEvent(TurnReady, "test")))

	m := b.GetMetrics()
	assert.Equal(t, uint64(1), m.Published)
	assert.Equal(t, uint64(1), m.DeliveredHandlers)
	assert.Equal(t, uint64(1), m.SubscribersActive)
	assert.Equal(t, 1, obs.publishCount)
	assert.Equal(t, 1, obs.deliveredCount)
	assert.NoError(t, obs.lastErr)

	b.RemoveObserver(obs)
	require.NoError(t, b.Publish(NewEvent(TurnReady, "test")))
	assert.Equal(t, 1, obs.publishCount)
}
