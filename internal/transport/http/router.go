package http

import (
	"net/http"
	"time"

	"github.com/snippetlab/collab-service/internal/auth"
	httpmw "github.com/snippetlab/collab-service/internal/transport/http/middleware"
	"github.com/snippetlab/collab-service/internal/transport/ws"

	"github.com/go-chi/chi/v5"
	middlewareChi "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewRouter(h *Handler, verifier *auth.Verifier, wsServer *ws.Server, db Pinger, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middlewareChi.RequestID)
	r.Use(middlewareChi.RealIP)
	r.Use(middlewareChi.Recoverer)

	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	// браузерные редакторы ходят с других origin-ов
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// WS endpoint сам проверяет токен (query param либо заголовок)
	r.Get("/ws/collab", wsServer.HandleWS)

	r.Group(func(pr chi.Router) {
		pr.Use(httpmw.AuthMiddleware(verifier))
		pr.Use(middlewareChi.Timeout(10 * time.Second))

		pr.Route("/collab", func(cr chi.Router) {
			cr.Get("/stats", h.Stats)
			cr.Get("/rooms/{id}/presence", h.Presence)
		})
	})

	// health
	r.Get("/healthz", Healthz(db))

	return r
}
