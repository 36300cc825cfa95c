package protocol

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zeusync/netsync/internal/core/wire"
)

func TestMessage_MarshalUnmarshal(t *testing.T) {
	data := Encode(KindTurn, func(w *wire.Writer) {
		w.WriteUint64(7)
	})

	msg, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, KindTurn, msg.Kind)
	assert.Len(t, msg.Payload, 8)
	assert.Equal(t, data, msg.Marshal())
}

func TestUnmarshal_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"zero kind", []byte{0}},
		{"unknown kind", []byte{200, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Unmarshal(tt.data)
			require.Error(t, err)
			assert.Equal(t, ErrorCodeUnknownMessage, GetErrorCode(err))
			assert.True(t, IsFatal(err))
		})
	}
}

func TestError_Classification(t *testing.T) {
	sentinel := errors.New("boom")

	fatal := NewProtocolError(ErrorCodeBitsetMismatch, "scene update", sentinel)
	assert.True(t, fatal.IsFatal())
	assert.False(t, fatal.IsTemporary())
	assert.ErrorIs(t, fatal, sentinel)
	assert.Equal(t, "scene update: boom", fatal.Error())

	cfg := NewProtocolError(ErrorCodeDuplicateTag, "register", nil)
	assert.True(t, cfg.IsConfiguration())
	assert.True(t, IsConfiguration(fmt.Errorf("setup: %w", cfg)))

	lag := WrapError(ErrLagging, "client")
	assert.True(t, lag.IsTemporary())
	assert.Equal(t, ErrorCodeLagging, lag.Code)

	assert.Equal(t, ErrorCodeSuccess, GetErrorCode(nil))
	assert.Equal(t, ErrorCodeUnknownError, GetErrorCode(sentinel))
}

func TestInbox_DrainPreservesOrder(t *testing.T) {
	inbox := NewInbox()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				inbox.Push(Event{Type: EventMessage})
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 800, inbox.Len())
	assert.Len(t, inbox.Drain(), 800)
	assert.Nil(t, inbox.Drain())

	inbox.Push(Event{Type: EventConnect, Conn: "a"})
	inbox.Push(Event{Type: EventMessage, Conn: "a", Data: []byte{1}})
	inbox.Push(Event{Type: EventDisconnect, Conn: "a"})
	events := inbox.Drain()
	require.Len(t, events, 3)
	assert.Equal(t, EventConnect, events[0].Type)
	assert.Equal(t, EventMessage, events[1].Type)
	assert.Equal(t, EventDisconnect, events[2].Type)
}
