// Package media turns attachment bytes into references that a message can
// carry: inline data URLs or objects in an S3-compatible bucket.
package media

import (
	"context"
	"errors"
	"io"
	"mime"
	"path/filepath"
	"strings"

	"github.com/rx3lixir/bijoy/pkg/audio"
)

// Kind is the message field an object is attached to
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
	KindAudio Kind = "audio"
)

var ErrUnknownKind = errors.New("unknown media kind")

func (k Kind) Valid() bool {
	switch k {
	case KindImage, KindVideo, KindAudio:
		return true
	}
	return false
}

// Object is an attachment about to be stored. Size is -1 when unknown.
type Object struct {
	Kind        Kind
	Name        string
	ContentType string
	Size        int64
	Body        io.Reader
}

// Reference locates a stored object. URL is what a message carries,
// Key identifies it for deletion and is empty for inline objects.
type Reference struct {
	URL  string `json:"url"`
	Key  string `json:"key,omitempty"`
	Size int64  `json:"size"`
}

type Store interface {
	Put(ctx context.Context, obj Object) (Reference, error)
	Delete(ctx context.Context, key string) error
}

// Extension picks a file extension without the dot for obj
func Extension(obj Object) string {
	if obj.Kind == KindAudio {
		return audio.DetectAudioFormat(obj.ContentType, obj.Name)
	}

	if ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(obj.Name)), "."); ext != "" {
		return ext
	}

	ct, _, _ := mime.ParseMediaType(obj.ContentType)
	if exts, err := mime.ExtensionsByType(ct); err == nil && len(exts) > 0 {
		return strings.TrimPrefix(exts[0], ".")
	}
	return "bin"
}

// DetectContentType fills a missing content type from the file name
func DetectContentType(obj Object) string {
	if obj.ContentType != "" {
		return obj.ContentType
	}
	if obj.Kind == KindAudio {
		return audio.ContentType(audio.DetectAudioFormat("", obj.Name))
	}
	if ct := mime.TypeByExtension(filepath.Ext(obj.Name)); ct != "" {
		return ct
	}
	return "application/octet-stream"
}
