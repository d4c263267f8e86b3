package ws

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/snippetlab/collab-service/internal/auth"
	"github.com/snippetlab/collab-service/internal/domain"
	"github.com/snippetlab/collab-service/internal/relay"

	"github.com/gorilla/websocket"
)

type Config struct {
	PingEvery       time.Duration
	WriteTimeout    time.Duration
	SendQueueSize   int
	MaxMessageBytes int64
}

func (c *Config) withDefaults() {
	if c.PingEvery <= 0 {
		c.PingEvery = 15 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.SendQueueSize <= 0 {
		c.SendQueueSize = 64
	}
	if c.MaxMessageBytes <= 0 {
		c.MaxMessageBytes = 1 << 20
	}
}

type Server struct {
	upgrader websocket.Upgrader
	verifier *auth.Verifier
	relay    *relay.Relay
	cfg      Config
}

func NewServer(verifier *auth.Verifier, rl *relay.Relay, cfg Config) *Server {
	cfg.withDefaults()
	return &Server{
		verifier: verifier,
		relay:    rl,
		cfg:      cfg,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// WS endpoint: GET /ws/collab?access_token=...
// Токен проверяется до upgrade: неаутентифицированное соединение не успевает
// создать никакого состояния. Комнаты подключаются join-сообщениями.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	token := bearerToken(r)
	if token == "" {
		http.Error(w, "missing access_token", http.StatusUnauthorized)
		return
	}
	ident, err := s.verifier.Verify(token)
	if err != nil {
		slog.Info("ws auth failed", "err", err)
		http.Error(w, "invalid access_token", http.StatusUnauthorized)
		return
	}

	wsc, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("ws upgrade failed", "err", err)
		return
	}

	c := newConn(wsc, ident, s.cfg.SendQueueSize)
	s.relay.Register(c)

	go s.writeLoop(c)
	s.readLoop(r, c)

	// порядок важен: сначала закрываем соединение, потом снимаем с registry —
	// после завершения Unregister peer гарантированно ничего не получит
	_ = c.Close()
	s.relay.Disconnect(c)
}

func (s *Server) readLoop(r *http.Request, c *conn) {
	c.ws.SetReadLimit(s.cfg.MaxMessageBytes)
	_ = c.ws.SetReadDeadline(time.Now().Add(2 * s.cfg.PingEvery))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(2 * s.cfg.PingEvery))
	})

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var env domain.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			s.relay.Reject(c, "", domain.ErrCodeBadEvent, "malformed envelope")
			continue
		}

		switch env.Type {
		case domain.EventJoin:
			s.relay.HandleJoin(r.Context(), c, env.RoomID)
		case domain.EventLeave:
			s.relay.HandleLeave(c, env.RoomID)
		default:
			s.relay.HandleEvent(c, env)
		}
	}
}

func (s *Server) writeLoop(c *conn) {
	ticker := time.NewTicker(s.cfg.PingEvery)
	defer ticker.Stop()

	for {
		select {
		case env := <-c.out:
			_ = c.ws.SetWriteDeadline(time.Now().Add(s.cfg.WriteTimeout))
			if err := c.ws.WriteJSON(env); err != nil {
				_ = c.Close()
				return
			}
		case <-ticker.C:
			_ = c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.WriteTimeout))
		case <-c.closed:
			return
		}
	}
}

func bearerToken(r *http.Request) string {
	if t := strings.TrimSpace(r.URL.Query().Get("access_token")); t != "" {
		return t
	}
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") && len(auth) > 7 {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
