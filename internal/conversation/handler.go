package conversation

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/bijoy/internal/reaction"
	"github.com/rx3lixir/bijoy/pkg/httputil"
)

type Handler struct {
	store *Store
	log   *slog.Logger
}

func NewHandler(store *Store, log *slog.Logger) *Handler {
	return &Handler{store: store, log: log}
}

// RegisterRoutes mounts the conversation endpoints. Sending lives in the
// composer handler, mounted on the same tree.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/themes", httputil.Handler(h.HandleListThemes, h.log))
	r.Get("/reactions", httputil.Handler(h.HandleListReactions, h.log))

	r.Get("/conversations", httputil.Handler(h.HandleListConversations, h.log))
	r.Get("/conversations/{conversationID}/messages", httputil.Handler(h.HandleListMessages, h.log))
	r.Put("/conversations/{conversationID}/messages/{messageID}/reaction", httputil.Handler(h.HandleReact, h.log))
	r.Post("/conversations/{conversationID}/messages/{messageID}/unsend", httputil.Handler(h.HandleUnsend, h.log))
	r.Delete("/conversations/{conversationID}/messages/{messageID}", httputil.Handler(h.HandleDeleteForMe, h.log))
	r.Get("/conversations/{conversationID}/settings", httputil.Handler(h.HandleGetSettings, h.log))
	r.Patch("/conversations/{conversationID}/settings", httputil.Handler(h.HandleUpdateSettings, h.log))
}

type ReactRequest struct {
	Kind reaction.Kind `json:"kind"`
}

type SettingsResponse struct {
	Settings
	NoteRemainingSeconds int64 `json:"note_remaining_seconds"`
}

type MessagesResponse struct {
	ConversationID string    `json:"conversation_id"`
	Messages       []Message `json:"messages"`
}

func (h *Handler) HandleListThemes(w http.ResponseWriter, r *http.Request) error {
	return httputil.RespondJSON(w, http.StatusOK, Themes())
}

func (h *Handler) HandleListReactions(w http.ResponseWriter, r *http.Request) error {
	return httputil.RespondJSON(w, http.StatusOK, reaction.All())
}

func (h *Handler) HandleListConversations(w http.ResponseWriter, r *http.Request) error {
	return httputil.RespondJSON(w, http.StatusOK, h.store.Conversations())
}

// HandleListMessages returns the log as it should be rendered
func (h *Handler) HandleListMessages(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}

	msgs := h.store.Messages(convID)
	for i := range msgs {
		msgs[i] = msgs[i].Visible()
	}

	return httputil.RespondJSON(w, http.StatusOK, MessagesResponse{
		ConversationID: convID,
		Messages:       msgs,
	})
}

// HandleReact toggles a reaction. An empty kind clears it.
func (h *Handler) HandleReact(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}
	msgID, err := httputil.PathParam(r, "messageID")
	if err != nil {
		return err
	}

	req := new(ReactRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	kind, err := reaction.Parse(string(req.Kind))
	if err != nil {
		return httputil.BadRequest("Unknown reaction", map[string]string{"kind": string(req.Kind)})
	}

	msg, ok := h.store.SetReaction(convID, msgID, kind)
	if !ok {
		return httputil.NotFound("Message not found")
	}

	h.log.Debug("reaction set",
		"conversation_id", convID,
		"message_id", msgID,
		"reaction", msg.Reaction)

	return httputil.RespondJSON(w, http.StatusOK, msg.Visible())
}

// HandleUnsend retracts a message authored by the local user
func (h *Handler) HandleUnsend(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}
	msgID, err := httputil.PathParam(r, "messageID")
	if err != nil {
		return err
	}

	msg, ok := h.store.Message(msgID)
	if !ok || msg.ConversationID != convID {
		return httputil.NotFound("Message not found")
	}
	if !msg.IsMe(h.store.SelfID()) {
		h.log.Warn("unsend blocked - not the author",
			"conversation_id", convID,
			"message_id", msgID,
			"sender_id", msg.SenderID)
		return httputil.Forbidden("Only your own messages can be unsent")
	}
	if msg.IsUnsent {
		return httputil.Conflict("Message already unsent", nil)
	}

	msg, ok = h.store.Unsend(msgID)
	if !ok {
		return httputil.NotFound("Message not found")
	}

	h.log.Info("message unsent", "conversation_id", convID, "message_id", msgID)
	return httputil.RespondJSON(w, http.StatusOK, msg.Visible())
}

func (h *Handler) HandleDeleteForMe(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}
	msgID, err := httputil.PathParam(r, "messageID")
	if err != nil {
		return err
	}

	msg, ok := h.store.Message(msgID)
	if !ok || msg.ConversationID != convID {
		return httputil.NotFound("Message not found")
	}
	if !h.store.DeleteForMe(msgID) {
		return httputil.NotFound("Message not found")
	}

	return httputil.RespondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) HandleGetSettings(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}

	settings := h.store.GetOrCreateSettings(convID)
	return httputil.RespondJSON(w, http.StatusOK, h.settingsResponse(settings))
}

func (h *Handler) HandleUpdateSettings(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}

	patch := new(SettingsPatch)
	if err := httputil.DecodeJSON(r, patch); err != nil {
		return err
	}

	settings, err := h.store.UpdateSettings(convID, *patch)
	switch {
	case errors.Is(err, ErrNoteLocked):
		return &httputil.HTTPError{
			Status:  http.StatusConflict,
			Message: "Note is locked",
			Cause:   err,
			Details: h.settingsResponse(settings),
		}
	case errors.Is(err, ErrUnknownTheme):
		return httputil.BadRequest("Unknown theme")
	case errors.Is(err, ErrEmptyNote):
		return httputil.BadRequest("Note cannot be empty")
	case err != nil:
		return httputil.Internal(err)
	}

	return httputil.RespondJSON(w, http.StatusOK, h.settingsResponse(settings))
}

func (h *Handler) settingsResponse(s Settings) SettingsResponse {
	return SettingsResponse{
		Settings:             s,
		NoteRemainingSeconds: int64(s.NoteRemaining(h.store.now()).Seconds()),
	}
}
