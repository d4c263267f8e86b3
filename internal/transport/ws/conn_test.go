package ws

import (
	"testing"

	"github.com/snippetlab/collab-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConn(queueSize int) *conn {
	// без живого *websocket.Conn: здесь проверяется только очередь
	return &conn{
		id:     "c1",
		ident:  domain.Identity{UserID: 1, Username: "alice"},
		out:    make(chan domain.Envelope, queueSize),
		closed: make(chan struct{}),
	}
}

func TestConn_EnqueueBounded(t *testing.T) {
	c := testConn(2)

	require.NoError(t, c.Enqueue(domain.Envelope{Type: domain.EventCodeChange}))
	require.NoError(t, c.Enqueue(domain.Envelope{Type: domain.EventCodeChange}))

	// очередь полна: drop, не блокировка
	err := c.Enqueue(domain.Envelope{Type: domain.EventCodeChange})
	assert.ErrorIs(t, err, domain.ErrQueueFull)
}

func TestConn_EnqueueAfterClose(t *testing.T) {
	c := testConn(2)
	close(c.closed)

	err := c.Enqueue(domain.Envelope{Type: domain.EventCursorChange})
	assert.ErrorIs(t, err, domain.ErrPeerClosed)
}

func TestConn_EnqueuePreservesOrder(t *testing.T) {
	c := testConn(8)

	payloads := []domain.EventType{
		domain.EventTypingStart,
		domain.EventCodeChange,
		domain.EventTypingStop,
	}
	for _, p := range payloads {
		require.NoError(t, c.Enqueue(domain.Envelope{Type: p}))
	}

	for _, want := range payloads {
		got := <-c.out
		assert.Equal(t, want, got.Type)
	}
}
