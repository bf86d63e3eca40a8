package websocket

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/bijoy/pkg/httputil"
)

type Handler struct {
	manager *Manager
	log     *slog.Logger
}

func NewHandler(manager *Manager, log *slog.Logger) *Handler {
	return &Handler{manager: manager, log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.HandleConnection)
	r.Get("/stats", httputil.Handler(h.HandleStats, h.log))
}

// HandleConnection upgrades the request. Errors are written before the
// upgrade only; afterwards the connection belongs to the client.
func (h *Handler) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversation_id")
	if conversationID == "" {
		httputil.RespondError(w, r, httputil.BadRequest("conversation_id parameter required"), h.log)
		return
	}

	h.log.Info("establishing websocket connection", "conversation_id", conversationID)

	if err := h.manager.ServeWS(w, r, conversationID); err != nil {
		h.log.Warn("websocket upgrade failed", "conversation_id", conversationID, "error", err)
	}
}

func (h *Handler) HandleStats(w http.ResponseWriter, r *http.Request) error {
	return httputil.RespondJSON(w, http.StatusOK, h.manager.Stats())
}
