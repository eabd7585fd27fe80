package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/kiwitu-chat/internal/hub"
	"github.com/DoyleJ11/kiwitu-chat/internal/ws"
)

type Config struct {
	StaticDir string
	WS        ws.HandlerConfig
}

func SetupRoutes(h *hub.Hub, cfg Config, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Upgraded connections log through their session instead.
	wsHandler := ws.Handler(h, cfg.WS, log)
	r.Get("/ws", wsHandler)
	r.Get("/ws/", wsHandler)

	r.Group(func(r chi.Router) {
		r.Use(RequestLogger(log.Named("http")))
		r.Get("/healthz", Healthz)
		r.Get("/stats", Stats(h))
		if cfg.StaticDir != "" {
			r.Handle("/*", http.FileServer(http.Dir(cfg.StaticDir)))
		}
	})
	return r
}
