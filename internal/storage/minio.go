// Package storage wraps the object store that retains original uploaded
// documents and transcription audio alongside the indexed text, grounded
// on WeKnora's internal/handler/system.go minio.New/ListBuckets usage
// (bucket-per-deployment, auto-create on first use).
package storage

import (
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Blobs stores raw object bytes (source documents, downloaded audio) under
// one bucket, keyed by a caller-supplied object name.
type Blobs struct {
	client *minio.Client
	bucket string
}

// Config is the connection/bucket configuration a Blobs store is built from.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

// New connects to the object store and ensures its bucket exists.
func New(ctx context.Context, cfg Config) (*Blobs, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("connect object store: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("check bucket %q: %w", cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("create bucket %q: %w", cfg.Bucket, err)
		}
	}

	return &Blobs{client: client, bucket: cfg.Bucket}, nil
}

// Put uploads data under objectName, overwriting any prior object there.
func (b *Blobs) Put(ctx context.Context, objectName string, data io.Reader, size int64, contentType string) error {
	_, err := b.client.PutObject(ctx, b.bucket, objectName, data, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return fmt.Errorf("put object %q: %w", objectName, err)
	}
	return nil
}

// Get opens objectName for reading; callers must close the returned reader.
func (b *Blobs) Get(ctx context.Context, objectName string) (io.ReadCloser, error) {
	obj, err := b.client.GetObject(ctx, b.bucket, objectName, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %q: %w", objectName, err)
	}
	return obj, nil
}

// Delete removes objectName; deleting a missing object is not an error.
func (b *Blobs) Delete(ctx context.Context, objectName string) error {
	if err := b.client.RemoveObject(ctx, b.bucket, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete object %q: %w", objectName, err)
	}
	return nil
}
