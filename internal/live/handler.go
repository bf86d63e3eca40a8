package live

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/bijoy/internal/conversation"
	"github.com/rx3lixir/bijoy/internal/device"
	"github.com/rx3lixir/bijoy/pkg/httputil"
)

type Handler struct {
	calls          *Calls
	store          *conversation.Store
	log            *slog.Logger
	connectTimeout time.Duration
}

func NewHandler(calls *Calls, store *conversation.Store, log *slog.Logger, connectTimeout time.Duration) *Handler {
	if connectTimeout == 0 {
		connectTimeout = 15 * time.Second
	}
	return &Handler{calls: calls, store: store, log: log, connectTimeout: connectTimeout}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	const base = "/conversations/{conversationID}/call"
	r.Post(base, httputil.Handler(h.HandleStart, h.log))
	r.Get(base, httputil.Handler(h.HandleStatus, h.log))
	r.Post(base+"/mute", httputil.Handler(h.HandleToggleMute, h.log))
	r.Delete(base, httputil.Handler(h.HandleEnd, h.log))
}

type StartCallRequest struct {
	PartnerName string `json:"partner_name" validate:"required,max=100"`
}

type MuteResponse struct {
	Muted bool `json:"muted"`
}

// HandleStart places a call. The partner is addressed by their nickname
// when the conversation has one.
func (h *Handler) HandleStart(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}

	req := new(StartCallRequest)
	if err := httputil.DecodeJSON(r, req); err != nil {
		return err
	}

	partner := h.store.GetOrCreateSettings(convID).DisplayName(req.PartnerName)

	ctx, cancel := context.WithTimeout(r.Context(), h.connectTimeout)
	defer cancel()

	s, err := h.calls.Start(ctx, convID, partner)
	if err != nil {
		return h.mapError(err, s)
	}

	h.log.Info("call started", "conversation_id", convID, "partner", partner)
	return httputil.RespondJSON(w, http.StatusCreated, s.Status())
}

func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}

	s, ok := h.calls.Get(convID)
	if !ok {
		return httputil.NotFound("No call in progress")
	}
	return httputil.RespondJSON(w, http.StatusOK, s.Status())
}

func (h *Handler) HandleToggleMute(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}

	s, ok := h.calls.Get(convID)
	if !ok {
		return httputil.NotFound("No call in progress")
	}
	return httputil.RespondJSON(w, http.StatusOK, MuteResponse{Muted: s.ToggleMute()})
}

func (h *Handler) HandleEnd(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}

	if err := h.calls.End(convID); err != nil {
		return h.mapError(err, nil)
	}

	h.log.Info("call ended", "conversation_id", convID)
	return httputil.RespondJSON(w, http.StatusNoContent, nil)
}

func (h *Handler) mapError(err error, s *Session) error {
	var details any
	if s != nil {
		details = s.Status()
	}

	var permErr *device.PermissionError
	var transportErr *TransportError

	switch {
	case errors.As(err, &permErr):
		return &httputil.HTTPError{Status: http.StatusForbidden, Message: "Microphone permission denied", Cause: err, Details: details}
	case errors.As(err, &transportErr):
		return &httputil.HTTPError{Status: http.StatusBadGateway, Message: "Connection lost", Cause: err, Details: details}
	case errors.Is(err, device.ErrNoDevice):
		return httputil.Conflict("No audio device connected", err)
	case errors.Is(err, ErrCallActive):
		return httputil.Conflict("A call is already in progress", err)
	case errors.Is(err, ErrNoSession):
		return httputil.NotFound("No call in progress")
	case errors.Is(err, ErrClosed):
		return httputil.Conflict("Call ended", err)
	default:
		return &httputil.HTTPError{Status: http.StatusInternalServerError, Message: "Call failed", Cause: err, Details: details}
	}
}
