// Package composer turns user intents into conversation appends: text and
// attachment sends, and voice recordings.
package composer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/rx3lixir/bijoy/internal/conversation"
	"github.com/rx3lixir/bijoy/internal/media"
	"github.com/rx3lixir/bijoy/pkg/logger"
)

// ThumbsUp is sent in place of an empty draft
const ThumbsUp = "👍"

const defaultMaxAttachmentSize = 25 << 20

// Attachment is a picked file. Size is -1 when unknown.
type Attachment struct {
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Draft struct {
	Text  string
	Image *Attachment
	Video *Attachment
}

type Config struct {
	Store             *conversation.Store
	Media             media.Store
	MaxAttachmentSize int64
	Log               *slog.Logger
}

type Composer struct {
	store   *conversation.Store
	media   media.Store
	maxSize int64
	log     *slog.Logger
}

func New(cfg Config) *Composer {
	if cfg.Media == nil {
		cfg.Media = media.NewInlineStore()
	}
	if cfg.MaxAttachmentSize <= 0 {
		cfg.MaxAttachmentSize = defaultMaxAttachmentSize
	}
	return &Composer{
		store:   cfg.Store,
		media:   cfg.Media,
		maxSize: cfg.MaxAttachmentSize,
		log:     logger.OrDefault(cfg.Log),
	}
}

// Send appends exactly one message built from the draft. An empty draft
// becomes a thumbs-up sticker.
func (c *Composer) Send(ctx context.Context, conversationID string, d Draft) (conversation.Message, error) {
	if c.store.GetOrCreateSettings(conversationID).IsBlocked {
		return conversation.Message{}, ErrBlocked
	}

	payload := conversation.Payload{Text: strings.TrimSpace(d.Text)}

	if d.Image != nil {
		ref, err := c.upload(ctx, media.KindImage, d.Image)
		if err != nil {
			return conversation.Message{}, err
		}
		payload.Image = ref.URL
	}
	if d.Video != nil {
		ref, err := c.upload(ctx, media.KindVideo, d.Video)
		if err != nil {
			return conversation.Message{}, err
		}
		payload.Video = ref.URL
	}

	if payload.Empty() {
		payload.Sticker = ThumbsUp
	}

	return c.append(conversationID, payload)
}

// SendAudio appends a finished voice recording
func (c *Composer) SendAudio(ctx context.Context, conversationID string, data []byte, mimeType string) (conversation.Message, error) {
	if c.store.GetOrCreateSettings(conversationID).IsBlocked {
		return conversation.Message{}, ErrBlocked
	}

	ref, err := c.media.Put(ctx, media.Object{
		Kind:        media.KindAudio,
		ContentType: mimeType,
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		return conversation.Message{}, fmt.Errorf("failed to store recording: %w", err)
	}

	c.log.Debug("recording stored",
		"conversation_id", conversationID,
		"mime_type", mimeType,
		"size", humanize.Bytes(uint64(len(data))))

	return c.append(conversationID, conversation.Payload{Audio: ref.URL})
}

func (c *Composer) append(conversationID string, p conversation.Payload) (conversation.Message, error) {
	msg, ok := c.store.AppendMessage(conversationID, p)
	if !ok {
		return conversation.Message{}, ErrBlocked
	}
	return msg, nil
}

// upload reads the attachment fully so read failures abort before anything
// reaches the store
func (c *Composer) upload(ctx context.Context, kind media.Kind, a *Attachment) (media.Reference, error) {
	if a.Body == nil {
		return media.Reference{}, &AttachmentError{Name: a.Name, Err: io.ErrUnexpectedEOF}
	}
	if a.Size > c.maxSize {
		return media.Reference{}, &AttachmentError{Name: a.Name, Err: ErrAttachmentTooLarge}
	}

	data, err := io.ReadAll(io.LimitReader(a.Body, c.maxSize+1))
	if err != nil {
		return media.Reference{}, &AttachmentError{Name: a.Name, Err: err}
	}
	if int64(len(data)) > c.maxSize {
		return media.Reference{}, &AttachmentError{Name: a.Name, Err: ErrAttachmentTooLarge}
	}
	if len(data) == 0 {
		return media.Reference{}, &AttachmentError{Name: a.Name, Err: io.ErrUnexpectedEOF}
	}

	ref, err := c.media.Put(ctx, media.Object{
		Kind:        kind,
		Name:        a.Name,
		ContentType: a.ContentType,
		Size:        int64(len(data)),
		Body:        bytes.NewReader(data),
	})
	if err != nil {
		return media.Reference{}, fmt.Errorf("failed to store %s: %w", kind, err)
	}

	c.log.Debug("attachment stored",
		"kind", kind,
		"name", a.Name,
		"size", humanize.Bytes(uint64(len(data))))

	return ref, nil
}
