package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// SinkType selects the export destination.
type SinkType string

const (
	SinkFile SinkType = "file"
	SinkS3   SinkType = "s3"
	SinkGCS  SinkType = "gcs"
)

var (
	ErrInvalidName     = errors.New("export: invalid object name")
	ErrUnsupportedSink = errors.New("export: unsupported sink")
)

// Sink stores an export object and returns where it went.
type Sink interface {
	Put(ctx context.Context, name string, data []byte) (string, error)
}

// SinkConfig carries the settings for every sink type; unused fields are
// ignored.
type SinkConfig struct {
	Type     SinkType
	Dir      string
	Bucket   string
	Prefix   string
	Region   string
	Endpoint string
}

// NewSink builds the sink named by cfg.Type.
func NewSink(ctx context.Context, cfg SinkConfig) (Sink, error) {
	switch cfg.Type {
	case SinkFile, "":
		dir := cfg.Dir
		if dir == "" {
			dir = "exports"
		}
		return NewFileSink(dir)
	case SinkS3:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("export: bucket is required for s3 sink")
		}
		region := cfg.Region
		if region == "" {
			region = "us-east-1"
		}
		return NewS3Sink(ctx, S3Config{Bucket: cfg.Bucket, Region: region, Endpoint: cfg.Endpoint, Prefix: cfg.Prefix})
	case SinkGCS:
		if cfg.Bucket == "" {
			return nil, fmt.Errorf("export: bucket is required for gcs sink")
		}
		return newGCSSink(ctx, cfg)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedSink, cfg.Type)
	}
}

func checkName(name string) error {
	if name == "" || strings.Contains(name, "..") || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// FileSink writes objects into a local directory.
type FileSink struct {
	dir string
}

func NewFileSink(dir string) (*FileSink, error) {
	//nolint:gosec // G301: exports are meant to be shared with auditors
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to ensure export dir: %w", err)
	}
	return &FileSink{dir: dir}, nil
}

// Put writes to a temp file and renames it so readers never see a partial
// export.
func (s *FileSink) Put(_ context.Context, name string, data []byte) (string, error) {
	if err := checkName(name); err != nil {
		return "", err
	}
	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return "", fmt.Errorf("failed to create temp export: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to write export: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to close export: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("failed to publish export: %w", err)
	}
	return path, nil
}
