package registry

import (
	"context"
	"log/slog"
	"sync"

	"github.com/snippetlab/collab-service/internal/domain"
)

// Peer — живое соединение глазами registry. Реализуется ws-транспортом
// (и моками в тестах).
type Peer interface {
	ID() string
	Identity() domain.Identity
	// Enqueue кладёт envelope в исходящую очередь соединения.
	// Не блокируется: при переполнении очереди или закрытом соединении
	// возвращает ошибку, и peer подлежит удалению.
	Enqueue(env domain.Envelope) error
	Close() error
}

// AccessCheck вызывается внутри Join до любых изменений состояния.
type AccessCheck func(ctx context.Context) error

// Registry — единственный источник правды о membership соединений и комнат.
// Инвариант: conn присутствует в rooms[R] <=> R присутствует в joined[conn].
// Обе карты меняются только под mu.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]Peer                // connID -> peer
	rooms  map[string]map[string]Peer     // roomID -> connID -> peer
	joined map[string]map[string]struct{} // connID -> set of roomIDs
}

func New() *Registry {
	return &Registry{
		conns:  make(map[string]Peer),
		rooms:  make(map[string]map[string]Peer),
		joined: make(map[string]map[string]struct{}),
	}
}

// Register принимает аутентифицированное соединение с пустым набором комнат.
func (r *Registry) Register(p Peer) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.conns[p.ID()] = p
	r.joined[p.ID()] = make(map[string]struct{})
}

// Join добавляет соединение в комнату. Проверка доступа выполняется до
// захвата mu (она ходит в БД); отказ не меняет состояние. Повторный Join
// в ту же комнату — no-op, joinedNow=false.
func (r *Registry) Join(ctx context.Context, connID, roomID string, check AccessCheck) (joinedNow bool, err error) {
	if check != nil {
		if err := check(ctx); err != nil {
			return false, err
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.conns[connID]
	if !ok {
		// соединение успело отключиться, пока ждали evaluator
		return false, domain.ErrNotRegistered
	}
	if _, ok := r.joined[connID][roomID]; ok {
		return false, nil
	}

	rs, ok := r.rooms[roomID]
	if !ok {
		rs = make(map[string]Peer)
		r.rooms[roomID] = rs
	}
	rs[connID] = p
	r.joined[connID][roomID] = struct{}{}

	return true, nil
}

// Leave убирает membership. Выход из непосещённой комнаты — no-op.
func (r *Registry) Leave(connID, roomID string) (leftNow bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.joined[connID][roomID]; !ok {
		return false
	}
	delete(r.joined[connID], roomID)
	r.removeFromRoom(connID, roomID)

	return true
}

// Unregister атомарно убирает соединение из всех комнат и возвращает список
// затронутых комнат (для presence-уведомлений). Идемпотентен: повторный
// вызов возвращает nil.
func (r *Registry) Unregister(connID string) (affected []string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, ok := r.joined[connID]
	if !ok {
		return nil
	}
	for roomID := range set {
		r.removeFromRoom(connID, roomID)
		affected = append(affected, roomID)
	}
	delete(r.joined, connID)
	delete(r.conns, connID)

	return affected
}

// InRoom — граница доступа для текущего трафика (relay проверяет перед fan-out).
func (r *Registry) InRoom(connID, roomID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.joined[connID][roomID]
	return ok
}

// Rooms возвращает снапшот комнат соединения.
func (r *Registry) Rooms(connID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.joined[connID]))
	for roomID := range r.joined[connID] {
		out = append(out, roomID)
	}
	return out
}

// Members возвращает снапшот участников комнаты.
func (r *Registry) Members(roomID string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Peer, 0, len(r.rooms[roomID]))
	for _, p := range r.rooms[roomID] {
		out = append(out, p)
	}
	return out
}

// BroadcastToRoom доставляет envelope всем участникам комнаты, кроме exclude.
// Недоставка одному участнику не прерывает рассылку остальным; такие peers
// возвращаются вызывающему для удаления.
func (r *Registry) BroadcastToRoom(roomID string, env domain.Envelope, exclude string) (failed []Peer) {
	r.mu.RLock()
	peers := make([]Peer, 0, len(r.rooms[roomID]))
	for connID, p := range r.rooms[roomID] {
		if connID == exclude {
			continue
		}
		peers = append(peers, p)
	}
	r.mu.RUnlock()

	// enqueue вне mu: медленный peer не держит registry
	for _, p := range peers {
		if err := p.Enqueue(env); err != nil {
			slog.Debug("broadcast enqueue failed",
				"room", roomID, "conn", p.ID(), "err", err)
			failed = append(failed, p)
		}
	}

	return failed
}

// Stats — количество живых комнат и соединений.
func (r *Registry) Stats() (rooms, conns int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.rooms), len(r.conns)
}

// removeFromRoom чистит rooms и собирает пустую комнату. Вызывать под mu.
func (r *Registry) removeFromRoom(connID, roomID string) {
	rs, ok := r.rooms[roomID]
	if !ok {
		return
	}
	delete(rs, connID)
	if len(rs) == 0 {
		delete(r.rooms, roomID)
	}
}
