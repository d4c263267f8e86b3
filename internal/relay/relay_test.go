package relay

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/snippetlab/collab-service/internal/access"
	"github.com/snippetlab/collab-service/internal/domain"
	"github.com/snippetlab/collab-service/internal/registry"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockPeer struct {
	id    string
	ident domain.Identity

	mu       sync.Mutex
	received []domain.Envelope
	enqErr   error
	closed   bool
}

func (m *mockPeer) ID() string                { return m.id }
func (m *mockPeer) Identity() domain.Identity { return m.ident }

func (m *mockPeer) Enqueue(env domain.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqErr != nil {
		return m.enqErr
	}
	m.received = append(m.received, env)
	return nil
}

func (m *mockPeer) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockPeer) envelopes() []domain.Envelope {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Envelope, len(m.received))
	copy(out, m.received)
	return out
}

func (m *mockPeer) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

type allowAll struct{}

func (allowAll) Allow(ctx context.Context, userID int64, projectID string) error { return nil }

type denyAll struct{}

func (denyAll) Allow(ctx context.Context, userID int64, projectID string) error {
	return domain.ErrAccessDenied
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newRelay(t *testing.T, eval access.Evaluator) (*Relay, *registry.Registry) {
	t.Helper()
	reg := registry.New()
	rl := New(reg, eval)
	rl.SetNow(func() time.Time { return fixedNow })
	return rl, reg
}

func join(t *testing.T, rl *Relay, p *mockPeer, roomID string) {
	t.Helper()
	rl.Register(p)
	rl.HandleJoin(context.Background(), p, roomID)
	require.Empty(t, p.envelopes(), "join must not error for %s", p.ID())
}

func TestRelay_CodeChangeFanOut(t *testing.T) {
	rl, _ := newRelay(t, allowAll{})

	a := &mockPeer{id: "A", ident: domain.Identity{UserID: 1, Username: "alice"}}
	b := &mockPeer{id: "B", ident: domain.Identity{UserID: 2, Username: "bob"}}
	join(t, rl, a, "proj-1")
	join(t, rl, b, "proj-1")
	a.mu.Lock()
	a.received = nil // убираем presence о входе B
	a.mu.Unlock()

	rl.HandleEvent(a, domain.Envelope{
		Type:    domain.EventCodeChange,
		RoomID:  "proj-1",
		Payload: json.RawMessage(`"x=1"`),
		// клиентские поля идентичности должны быть затёрты
		SenderID:       "999",
		SenderUsername: "mallory",
		Timestamp:      42,
	})

	got := b.envelopes()
	require.Len(t, got, 1)
	env := got[0]
	assert.Equal(t, domain.EventCodeChange, env.Type)
	assert.Equal(t, "proj-1", env.RoomID)
	assert.Equal(t, json.RawMessage(`"x=1"`), env.Payload)
	assert.Equal(t, "1", env.SenderID)
	assert.Equal(t, "alice", env.SenderUsername)
	assert.Equal(t, fixedNow.UnixMilli(), env.Timestamp)

	assert.Empty(t, a.envelopes(), "sender receives nothing")
}

func TestRelay_JoinPresence(t *testing.T) {
	rl, _ := newRelay(t, allowAll{})

	a := &mockPeer{id: "A", ident: domain.Identity{UserID: 1, Username: "alice"}}
	b := &mockPeer{id: "B", ident: domain.Identity{UserID: 2, Username: "bob"}}
	join(t, rl, a, "proj-1")
	join(t, rl, b, "proj-1")

	// A уже был в комнате и видит join о B; сам B — нет
	got := a.envelopes()
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventJoin, got[0].Type)
	assert.Equal(t, "proj-1", got[0].RoomID)
	assert.Equal(t, "2", got[0].SenderID)
	assert.Equal(t, "bob", got[0].SenderUsername)
	assert.Empty(t, b.envelopes())

	// повторный join не генерирует повторный presence
	rl.HandleJoin(context.Background(), b, "proj-1")
	assert.Len(t, a.envelopes(), 1)
}

func TestRelay_JoinDenied(t *testing.T) {
	rl, reg := newRelay(t, denyAll{})

	u := &mockPeer{id: "U", ident: domain.Identity{UserID: 7, Username: "uma"}}
	rl.Register(u)
	rl.HandleJoin(context.Background(), u, "proj-2")

	got := u.envelopes()
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventError, got[0].Type)

	var p domain.ErrorPayload
	require.NoError(t, json.Unmarshal(got[0].Payload, &p))
	assert.Equal(t, domain.ErrCodeAccessDenied, p.Code)

	assert.False(t, reg.InRoom(u.ID(), "proj-2"), "denied join must not mutate state")
	rooms, _ := reg.Stats()
	assert.Equal(t, 0, rooms)
}

func TestRelay_EventToUnjoinedRoom(t *testing.T) {
	rl, _ := newRelay(t, allowAll{})

	a := &mockPeer{id: "A", ident: domain.Identity{UserID: 1, Username: "alice"}}
	b := &mockPeer{id: "B", ident: domain.Identity{UserID: 2, Username: "bob"}}
	join(t, rl, a, "proj-1")
	rl.Register(b) // b никуда не входил

	rl.HandleEvent(b, domain.Envelope{Type: domain.EventCodeChange, RoomID: "proj-1"})

	got := b.envelopes()
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventError, got[0].Type)
	var p domain.ErrorPayload
	require.NoError(t, json.Unmarshal(got[0].Payload, &p))
	assert.Equal(t, domain.ErrCodeUnknownRoom, p.Code)

	assert.Empty(t, a.envelopes(), "zero broadcasts on unauthorized event")
}

func TestRelay_TypingRelayed(t *testing.T) {
	rl, _ := newRelay(t, allowAll{})

	a := &mockPeer{id: "A", ident: domain.Identity{UserID: 1, Username: "alice"}}
	b := &mockPeer{id: "B", ident: domain.Identity{UserID: 2, Username: "bob"}}
	join(t, rl, a, "proj-1")
	join(t, rl, b, "proj-1")
	a.mu.Lock()
	a.received = nil
	a.mu.Unlock()

	rl.HandleEvent(b, domain.Envelope{Type: domain.EventTypingStart, RoomID: "proj-1"})
	rl.HandleEvent(b, domain.Envelope{Type: domain.EventTypingStop, RoomID: "proj-1"})

	got := a.envelopes()
	require.Len(t, got, 2)
	assert.Equal(t, domain.EventTypingStart, got[0].Type)
	assert.Equal(t, domain.EventTypingStop, got[1].Type)
}

func TestRelay_DisconnectBroadcastsLeavePerRoom(t *testing.T) {
	rl, reg := newRelay(t, allowAll{})

	a := &mockPeer{id: "A", ident: domain.Identity{UserID: 1, Username: "alice"}}
	b1 := &mockPeer{id: "B1", ident: domain.Identity{UserID: 2, Username: "bob"}}
	b2 := &mockPeer{id: "B2", ident: domain.Identity{UserID: 3, Username: "carol"}}
	join(t, rl, a, "proj-1")
	rl.HandleJoin(context.Background(), a, "proj-2")
	join(t, rl, b1, "proj-1")
	join(t, rl, b2, "proj-2")
	for _, p := range []*mockPeer{b1, b2} {
		p.mu.Lock()
		p.received = nil
		p.mu.Unlock()
	}

	// обрыв без leave-сообщений
	rl.Disconnect(a)

	for _, p := range []*mockPeer{b1, b2} {
		got := p.envelopes()
		require.Len(t, got, 1, "exactly one leave per affected room for %s", p.ID())
		assert.Equal(t, domain.EventLeave, got[0].Type)
		assert.Equal(t, "1", got[0].SenderID)
	}

	// второй Disconnect молчит
	rl.Disconnect(a)
	assert.Len(t, b1.envelopes(), 1)

	_, conns := reg.Stats()
	assert.Equal(t, 2, conns)
}

func TestRelay_ExplicitLeave(t *testing.T) {
	rl, reg := newRelay(t, allowAll{})

	a := &mockPeer{id: "A", ident: domain.Identity{UserID: 1, Username: "alice"}}
	b := &mockPeer{id: "B", ident: domain.Identity{UserID: 2, Username: "bob"}}
	join(t, rl, a, "proj-1")
	join(t, rl, b, "proj-1")
	a.mu.Lock()
	a.received = nil
	a.mu.Unlock()

	rl.HandleLeave(b, "proj-1")

	got := a.envelopes()
	require.Len(t, got, 1)
	assert.Equal(t, domain.EventLeave, got[0].Type)
	assert.False(t, reg.InRoom(b.ID(), "proj-1"))

	// leave не joined комнаты — no-op, без presence
	rl.HandleLeave(b, "proj-9")
	assert.Len(t, a.envelopes(), 1)
}

func TestRelay_UnreachablePeerDropped(t *testing.T) {
	rl, reg := newRelay(t, allowAll{})

	a := &mockPeer{id: "A", ident: domain.Identity{UserID: 1, Username: "alice"}}
	b := &mockPeer{id: "B", ident: domain.Identity{UserID: 2, Username: "bob"}}
	stuck := &mockPeer{id: "C", ident: domain.Identity{UserID: 3, Username: "carol"}}
	join(t, rl, a, "proj-1")
	join(t, rl, b, "proj-1")
	join(t, rl, stuck, "proj-1")
	b.mu.Lock()
	b.received = nil
	b.mu.Unlock()

	stuck.mu.Lock()
	stuck.enqErr = domain.ErrQueueFull
	stuck.mu.Unlock()

	rl.HandleEvent(a, domain.Envelope{Type: domain.EventCodeChange, RoomID: "proj-1"})

	assert.True(t, stuck.isClosed(), "unreachable peer must be closed")
	assert.False(t, reg.InRoom(stuck.ID(), "proj-1"))

	// остальные получили и code-change, и leave об отвалившемся
	got := b.envelopes()
	require.Len(t, got, 2)
	assert.Equal(t, domain.EventCodeChange, got[0].Type)
	assert.Equal(t, domain.EventLeave, got[1].Type)
	assert.Equal(t, "3", got[1].SenderID)
}
