package media

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/rx3lixir/bijoy/pkg/logger"
)

const defaultPresignExpiry = 7 * 24 * time.Hour

// S3Store uploads objects to a bucket and references them by presigned URL
type S3Store struct {
	client        *minio.Client
	bucketName    string
	presignExpiry time.Duration
	now           func() time.Time
	log           *slog.Logger
}

func NewS3Store(client *minio.Client, bucketName string, presignExpiry time.Duration, log *slog.Logger) *S3Store {
	if presignExpiry <= 0 {
		presignExpiry = defaultPresignExpiry
	}
	return &S3Store{
		client:        client,
		bucketName:    bucketName,
		presignExpiry: presignExpiry,
		now:           time.Now,
		log:           logger.OrDefault(log),
	}
}

// objectName builds media/<kind>/<yyyy>/<mm>/<dd>/<id>.<ext>
func objectName(obj Object, id string, now time.Time) string {
	return fmt.Sprintf(
		"media/%s/%d/%02d/%02d/%s.%s",
		obj.Kind,
		now.Year(),
		now.Month(),
		now.Day(),
		id,
		Extension(obj),
	)
}

func (s *S3Store) Put(ctx context.Context, obj Object) (Reference, error) {
	if !obj.Kind.Valid() {
		return Reference{}, fmt.Errorf("%w: %q", ErrUnknownKind, obj.Kind)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Reference{}, fmt.Errorf("failed to generate object id: %w", err)
	}
	now := s.now()
	key := objectName(obj, id.String(), now)

	info, err := s.client.PutObject(
		ctx,
		s.bucketName,
		key,
		obj.Body,
		obj.Size,
		minio.PutObjectOptions{
			ContentType: DetectContentType(obj),
			UserMetadata: map[string]string{
				"media-kind": string(obj.Kind),
				"uploaded":   now.Format(time.RFC3339),
			},
		},
	)
	if err != nil {
		return Reference{}, fmt.Errorf("failed to upload to minio: %w", err)
	}

	url, err := s.client.PresignedGetObject(ctx, s.bucketName, key, s.presignExpiry, nil)
	if err != nil {
		return Reference{}, fmt.Errorf("failed to generate presigned url: %w", err)
	}

	s.log.Debug("media uploaded", "key", key, "kind", obj.Kind, "size", info.Size)

	return Reference{URL: url.String(), Key: key, Size: info.Size}, nil
}

func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := s.client.RemoveObject(ctx, s.bucketName, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}
