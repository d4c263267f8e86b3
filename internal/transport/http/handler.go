package http

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/snippetlab/collab-service/internal/registry"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	reg *registry.Registry
}

func NewHandler(reg *registry.Registry) *Handler {
	return &Handler{reg: reg}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type PresenceMember struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

type PresenceResponse struct {
	RoomID  string           `json:"roomId"`
	Members []PresenceMember `json:"members"`
}

type StatsResponse struct {
	Rooms       int `json:"rooms"`
	Connections int `json:"connections"`
}

// GET /collab/rooms/{id}/presence — живые участники комнаты из registry.
// Пустая комната неотличима от несуществующей (комнаты эфемерны).
func (h *Handler) Presence(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "id")
	if roomID == "" {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "missing room id"})
		return
	}

	peers := h.reg.Members(roomID)
	resp := PresenceResponse{RoomID: roomID, Members: make([]PresenceMember, 0, len(peers))}
	seen := make(map[string]struct{}, len(peers))
	for _, p := range peers {
		ident := p.Identity()
		// один пользователь может держать несколько соединений
		if _, ok := seen[ident.UserIDString()]; ok {
			continue
		}
		seen[ident.UserIDString()] = struct{}{}
		resp.Members = append(resp.Members, PresenceMember{
			UserID:   ident.UserIDString(),
			Username: ident.Username,
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// GET /collab/stats
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	rooms, conns := h.reg.Stats()
	writeJSON(w, http.StatusOK, StatsResponse{Rooms: rooms, Connections: conns})
}

// Pinger — liveness-проверка зависимостей (postgres).
type Pinger interface {
	Ping(ctx context.Context) error
}

func Healthz(p Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if p != nil {
			if err := p.Ping(r.Context()); err != nil {
				writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "db unreachable"})
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}
}
