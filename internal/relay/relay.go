package relay

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/snippetlab/collab-service/internal/access"
	"github.com/snippetlab/collab-service/internal/domain"
	"github.com/snippetlab/collab-service/internal/registry"
)

// Relay валидирует входящие события, проставляет отправителя и timestamp
// и раздаёт их остальным участникам комнаты через registry. Ничего не
// персистит: это dumb relay, без OT/CRDT.
type Relay struct {
	reg    *registry.Registry
	access access.Evaluator
	now    func() time.Time
}

func New(reg *registry.Registry, eval access.Evaluator) *Relay {
	return &Relay{
		reg:    reg,
		access: eval,
		now:    time.Now,
	}
}

func (r *Relay) SetNow(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// Register пускает аутентифицированное соединение в registry.
func (r *Relay) Register(p registry.Peer) {
	r.reg.Register(p)
	slog.Info("relay connected", "conn", p.ID(), "user", p.Identity().UserID)
}

// HandleJoin гейтит вход в комнату через access evaluator. Отказ (включая
// таймаут evaluator'а — fail closed) уходит только отправителю и не
// меняет состояние. Успешный первый вход анонсируется остальным.
func (r *Relay) HandleJoin(ctx context.Context, p registry.Peer, roomID string) {
	if roomID == "" {
		r.Reject(p, "", domain.ErrCodeBadEvent, "missing roomId")
		return
	}

	ident := p.Identity()
	check := func(ctx context.Context) error {
		return r.access.Allow(ctx, ident.UserID, roomID)
	}

	joinedNow, err := r.reg.Join(ctx, p.ID(), roomID, check)
	if err != nil {
		if errors.Is(err, domain.ErrAccessDenied) {
			slog.Info("join denied", "conn", p.ID(), "user", ident.UserID, "room", roomID)
			r.Reject(p, roomID, domain.ErrCodeAccessDenied, "access denied")
			return
		}
		slog.Debug("join failed", "conn", p.ID(), "room", roomID, "err", err)
		return
	}
	if !joinedNow {
		// повторный join — no-op, без повторного presence
		return
	}

	slog.Info("room joined", "conn", p.ID(), "user", ident.UserID, "room", roomID)
	r.broadcastPresence(domain.EventJoin, roomID, p)
}

// HandleLeave — явный выход из комнаты; no-op если комната не была joined.
func (r *Relay) HandleLeave(p registry.Peer, roomID string) {
	if !r.reg.Leave(p.ID(), roomID) {
		return
	}
	slog.Info("room left", "conn", p.ID(), "room", roomID)
	r.broadcastPresence(domain.EventLeave, roomID, p)
}

// HandleEvent применяет контракт ретрансляции: membership-проверка,
// серверный штамп отправителя/времени, fan-out без отправителя.
// Успешная доставка не подтверждается (fire-and-forget).
func (r *Relay) HandleEvent(p registry.Peer, env domain.Envelope) {
	if !env.Type.Relayable() {
		r.Reject(p, env.RoomID, domain.ErrCodeBadEvent, "unsupported event type")
		return
	}
	if !r.reg.InRoom(p.ID(), env.RoomID) {
		r.Reject(p, env.RoomID, domain.ErrCodeUnknownRoom, "room not joined")
		return
	}

	ident := p.Identity()
	// идентификация и время — только серверные, клиентские значения затираются
	env.SenderID = ident.UserIDString()
	env.SenderUsername = ident.Username
	env.Timestamp = r.now().UnixMilli()

	failed := r.reg.BroadcastToRoom(env.RoomID, env, p.ID())
	r.dropPeers(failed)
}

// Disconnect снимает соединение со всех комнат и анонсирует leave оставшимся.
// Идемпотентен; вызывается транспортом по завершении read loop и самим
// relay при недоставке.
func (r *Relay) Disconnect(p registry.Peer) {
	affected := r.reg.Unregister(p.ID())
	if affected == nil {
		return
	}
	slog.Info("relay disconnected", "conn", p.ID(), "rooms", len(affected))
	for _, roomID := range affected {
		r.broadcastPresence(domain.EventLeave, roomID, p)
	}
}

func (r *Relay) broadcastPresence(t domain.EventType, roomID string, about registry.Peer) {
	ident := about.Identity()
	env := domain.Envelope{
		Type:           t,
		RoomID:         roomID,
		SenderID:       ident.UserIDString(),
		SenderUsername: ident.Username,
		Timestamp:      r.now().UnixMilli(),
	}
	failed := r.reg.BroadcastToRoom(roomID, env, about.ID())
	r.dropPeers(failed)
}

// dropPeers закрывает недоставленных peers и убирает их из registry.
// Close до Unregister: после завершения Unregister peer уже не может
// принять ни одного сообщения.
func (r *Relay) dropPeers(failed []registry.Peer) {
	for _, p := range failed {
		slog.Warn("peer unreachable, dropping", "conn", p.ID())
		_ = p.Close()
		r.Disconnect(p)
	}
}

// Reject отправляет error envelope только отправителю (транспорт использует его
// для malformed-сообщений).
func (r *Relay) Reject(p registry.Peer, roomID, code, msg string) {
	env := domain.Envelope{
		Type:      domain.EventError,
		RoomID:    roomID,
		Timestamp: r.now().UnixMilli(),
		Payload:   mustErrorPayload(code, msg),
	}
	if err := p.Enqueue(env); err != nil {
		slog.Debug("send error envelope failed", "conn", p.ID(), "err", err)
	}
}
