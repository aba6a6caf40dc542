//go:build gcp

package export

import (
	"context"
	"fmt"

	"cloud.google.com/go/storage"
)

// GCSSink uploads exports to a Cloud Storage bucket using ADC.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCSSink(ctx context.Context, bucket, prefix string) (*GCSSink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSSink{client: client, bucket: bucket, prefix: prefix}, nil
}

func newGCSSink(ctx context.Context, cfg SinkConfig) (Sink, error) {
	return NewGCSSink(ctx, cfg.Bucket, cfg.Prefix)
}

func (s *GCSSink) Put(ctx context.Context, name string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	objectPath := s.prefix + name
	w := s.client.Bucket(s.bucket).Object(objectPath).NewWriter(ctx)
	w.ContentType = contentType(name)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return "gs://" + s.bucket + "/" + objectPath, nil
}

func (s *GCSSink) Close() error {
	return s.client.Close()
}
