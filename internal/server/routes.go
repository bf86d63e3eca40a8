package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rx3lixir/bijoy/internal/composer"
	"github.com/rx3lixir/bijoy/internal/conversation"
	"github.com/rx3lixir/bijoy/internal/live"
	"github.com/rx3lixir/bijoy/internal/websocket"
)

type RouterConfig struct {
	ConversationHandler *conversation.Handler
	ComposerHandler     *composer.Handler
	CallHandler         *live.Handler
	WSHandler           *websocket.Handler
	Metrics             http.Handler
	Log                 *slog.Logger
}

func NewRouter(config RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	// Middleware block
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(config.Log))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	if config.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", config.Metrics)
	}

	// Websocket upgrades must not pass through the compressor
	if config.WSHandler != nil {
		r.Route("/ws", config.WSHandler.RegisterRoutes)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Compress(5))

		if config.ConversationHandler != nil {
			config.ConversationHandler.RegisterRoutes(r)
		}
		if config.ComposerHandler != nil {
			config.ComposerHandler.RegisterRoutes(r)
		}
		if config.CallHandler != nil {
			config.CallHandler.RegisterRoutes(r)
		}
	})

	return r
}
