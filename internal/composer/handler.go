package composer

import (
	"context"
	"errors"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rx3lixir/bijoy/internal/device"
	"github.com/rx3lixir/bijoy/pkg/httputil"
)

const multipartOverhead = 1 << 20

type Handler struct {
	composer  *Composer
	recorders *Recorders
	log       *slog.Logger
	timeout   time.Duration
}

func NewHandler(c *Composer, recorders *Recorders, log *slog.Logger, timeout time.Duration) *Handler {
	if timeout == 0 {
		timeout = time.Second * 30
	}
	return &Handler{composer: c, recorders: recorders, log: log, timeout: timeout}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	const base = "/conversations/{conversationID}"
	r.Post(base+"/messages", httputil.Handler(h.HandleSendText, h.log))
	r.Post(base+"/attachments", httputil.Handler(h.HandleSendAttachment, h.log))
	r.Get(base+"/recording", httputil.Handler(h.HandleRecordingStatus, h.log))
	r.Post(base+"/recording/start", httputil.Handler(h.HandleRecordingStart, h.log))
	r.Post(base+"/recording/stop", httputil.Handler(h.HandleRecordingStop, h.log))
}

func (h *Handler) ctx(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), h.timeout)
}

type SendTextRequest struct {
	Text string `json:"text" validate:"max=5000"`
}

type StopRecordingRequest struct {
	Send bool `json:"send"`
}

// HandleSendText sends a text message, or a thumbs-up when the text is blank
func (h *Handler) HandleSendText(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}

	req := new(SendTextRequest)
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, req); err != nil {
			return err
		}
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	msg, err := h.composer.Send(ctx, convID, Draft{Text: req.Text})
	if err != nil {
		return h.mapError(err)
	}
	return httputil.RespondJSON(w, http.StatusCreated, msg)
}

// HandleSendAttachment accepts a multipart form with optional text, image
// and video parts
func (h *Handler) HandleSendAttachment(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}

	r.Body = http.MaxBytesReader(w, r.Body, 2*h.composer.maxSize+multipartOverhead)
	if err := r.ParseMultipartForm(multipartOverhead); err != nil {
		return httputil.BadRequest("Invalid multipart form", map[string]string{
			"parse_error": err.Error(),
		})
	}
	defer r.MultipartForm.RemoveAll()

	draft := Draft{Text: r.FormValue("text")}
	for field, dst := range map[string]**Attachment{"image": &draft.Image, "video": &draft.Video} {
		a, closeFn, err := formAttachment(r, field)
		if err != nil {
			return h.mapError(err)
		}
		if a != nil {
			defer closeFn()
			*dst = a
		}
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	msg, err := h.composer.Send(ctx, convID, draft)
	if err != nil {
		return h.mapError(err)
	}

	h.log.Info("attachment message sent",
		"conversation_id", convID,
		"message_id", msg.ID,
		"has_image", msg.Image != "",
		"has_video", msg.Video != "")

	return httputil.RespondJSON(w, http.StatusCreated, msg)
}

func formAttachment(r *http.Request, field string) (*Attachment, func(), error) {
	file, header, err := r.FormFile(field)
	if errors.Is(err, http.ErrMissingFile) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, &AttachmentError{Name: field, Err: err}
	}
	return attachmentFrom(file, header), func() { _ = file.Close() }, nil
}

func attachmentFrom(file multipart.File, header *multipart.FileHeader) *Attachment {
	return &Attachment{
		Name:        header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Body:        file,
	}
}

func (h *Handler) HandleRecordingStatus(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}
	return httputil.RespondJSON(w, http.StatusOK, h.recorders.Status(convID))
}

func (h *Handler) HandleRecordingStart(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	rec := h.recorders.For(convID)
	if err := rec.Start(ctx); err != nil {
		return h.mapError(err)
	}
	return httputil.RespondJSON(w, http.StatusAccepted, rec.Status())
}

func (h *Handler) HandleRecordingStop(w http.ResponseWriter, r *http.Request) error {
	convID, err := httputil.PathParam(r, "conversationID")
	if err != nil {
		return err
	}

	req := new(StopRecordingRequest)
	if r.ContentLength != 0 {
		if err := httputil.DecodeJSON(r, req); err != nil {
			return err
		}
	}

	ctx, cancel := h.ctx(r)
	defer cancel()

	rec, ok := h.recorders.Lookup(convID)
	if !ok {
		return h.mapError(ErrNotRecording)
	}
	msg, err := rec.Stop(ctx, req.Send)
	if err != nil {
		return h.mapError(err)
	}
	if msg == nil {
		return httputil.RespondJSON(w, http.StatusNoContent, nil)
	}
	return httputil.RespondJSON(w, http.StatusCreated, msg)
}

func (h *Handler) mapError(err error) error {
	var attErr *AttachmentError
	var permErr *device.PermissionError

	switch {
	case errors.Is(err, ErrBlocked):
		return &httputil.HTTPError{Status: http.StatusForbidden, Message: "Conversation is blocked", Cause: err}
	case errors.Is(err, ErrAttachmentTooLarge):
		return &httputil.HTTPError{Status: http.StatusRequestEntityTooLarge, Message: "Attachment is too large", Cause: err}
	case errors.As(err, &attErr):
		return httputil.Unprocessable("Attachment could not be read", err)
	case errors.As(err, &permErr):
		return &httputil.HTTPError{Status: http.StatusForbidden, Message: "Microphone permission denied", Cause: err}
	case errors.Is(err, device.ErrNoDevice):
		return httputil.Conflict("No microphone connected", err)
	case errors.Is(err, ErrAlreadyRecording):
		return httputil.Conflict("Already recording", err)
	case errors.Is(err, ErrNotRecording):
		return httputil.Conflict("Not recording", err)
	default:
		return httputil.Internal(err)
	}
}
