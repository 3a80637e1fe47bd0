package export

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// Publisher stores a rendered export and returns where it can be found.
type Publisher interface {
	Publish(ctx context.Context, name, contentType string, data []byte) (string, error)
}

// GCSPublisher uploads exports to a Cloud Storage bucket.
type GCSPublisher struct {
	client *storage.Client
	bucket string
}

// NewGCSPublisher creates a publisher for bucket. When credentialsFile is
// empty, application default credentials are used.
func NewGCSPublisher(ctx context.Context, bucket, credentialsFile string) (*GCSPublisher, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS storage client: %w", err)
	}
	return &GCSPublisher{client: client, bucket: bucket}, nil
}

// Publish implements Publisher.
func (p *GCSPublisher) Publish(ctx context.Context, name, contentType string, data []byte) (string, error) {
	writer := p.client.Bucket(p.bucket).Object(name).NewWriter(ctx)
	writer.ContentType = contentType
	writer.CacheControl = "no-cache, no-store, must-revalidate"

	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		_ = writer.Close()
		return "", fmt.Errorf("failed to write GCS object %s: %w", name, err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer for %s: %w", name, err)
	}
	return fmt.Sprintf("gs://%s/%s", p.bucket, name), nil
}

// Close releases the storage client.
func (p *GCSPublisher) Close() error {
	return p.client.Close()
}
