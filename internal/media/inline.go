package media

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"
)

// InlineStore embeds objects into the reference itself as base64 data URLs
type InlineStore struct{}

func NewInlineStore() *InlineStore {
	return &InlineStore{}
}

func (s *InlineStore) Put(ctx context.Context, obj Object) (Reference, error) {
	if !obj.Kind.Valid() {
		return Reference{}, fmt.Errorf("%w: %q", ErrUnknownKind, obj.Kind)
	}

	data, err := io.ReadAll(obj.Body)
	if err != nil {
		return Reference{}, fmt.Errorf("failed to read %s: %w", obj.Kind, err)
	}

	return Reference{
		URL:  DataURL(DetectContentType(obj), data),
		Size: int64(len(data)),
	}, nil
}

// Delete is a no-op, inline objects live inside the message
func (s *InlineStore) Delete(ctx context.Context, key string) error {
	return nil
}

func DataURL(contentType string, data []byte) string {
	var b strings.Builder
	b.Grow(len("data:;base64,") + len(contentType) + base64.StdEncoding.EncodedLen(len(data)))
	b.WriteString("data:")
	b.WriteString(contentType)
	b.WriteString(";base64,")
	b.WriteString(base64.StdEncoding.EncodeToString(data))
	return b.String()
}
