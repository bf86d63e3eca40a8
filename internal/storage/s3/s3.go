// Package s3 connects to the object storage that holds media attachments.
package s3

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rx3lixir/bijoy/internal/config"
)

const (
	initTimeout = 5 * time.Second
)

// Connect creates a MinIO client and makes sure the media bucket exists
func Connect(ctx context.Context, params config.S3Params, log *slog.Logger) (*minio.Client, error) {
	client, err := minio.New(params.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(params.AccessKeyID, params.SecretAccessKey, ""),
		Secure: params.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	created, err := EnsureBucket(ctx, client, params.BucketName)
	if err != nil {
		return nil, err
	}
	log.Info("object storage ready",
		"endpoint", params.Endpoint,
		"bucket", params.BucketName,
		"created", created,
	)

	return client, nil
}

// EnsureBucket makes sure a bucket exists. It reports whether it had to
// create it.
func EnsureBucket(parentCtx context.Context, client *minio.Client, bucketName string) (bool, error) {
	ctx, cancel := context.WithTimeout(parentCtx, initTimeout)
	defer cancel()

	exist, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return false, fmt.Errorf("failed to check whether bucket %s exists: %w", bucketName, err)
	}
	if exist {
		return false, nil
	}

	if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
		return false, fmt.Errorf("failed to create bucket %s: %w", bucketName, err)
	}
	return true, nil
}
