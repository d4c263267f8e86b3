package ws

import (
	"sync"

	"github.com/snippetlab/collab-service/internal/domain"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// conn — одно живое соединение. Исходящие envelope идут через ограниченную
// очередь out, которую независимо разбирает writeLoop: медленный клиент
// не тормозит рассылку, при переполнении очереди он отбрасывается.
type conn struct {
	id    string
	ident domain.Identity
	ws    *websocket.Conn

	out       chan domain.Envelope
	closed    chan struct{}
	closeOnce sync.Once
}

func newConn(wsc *websocket.Conn, ident domain.Identity, queueSize int) *conn {
	if queueSize <= 0 {
		queueSize = 64
	}
	return &conn{
		id:     uuid.NewString(),
		ident:  ident,
		ws:     wsc,
		out:    make(chan domain.Envelope, queueSize),
		closed: make(chan struct{}),
	}
}

func (c *conn) ID() string                { return c.id }
func (c *conn) Identity() domain.Identity { return c.ident }

// Enqueue не блокируется: очередь полна или соединение закрыто — ошибка,
// peer подлежит удалению (bounded queue + drop).
func (c *conn) Enqueue(env domain.Envelope) error {
	select {
	case <-c.closed:
		return domain.ErrPeerClosed
	default:
	}

	select {
	case c.out <- env:
		return nil
	case <-c.closed:
		return domain.ErrPeerClosed
	default:
		return domain.ErrQueueFull
	}
}

func (c *conn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })

	return c.ws.Close()
}
