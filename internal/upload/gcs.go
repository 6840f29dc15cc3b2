package upload

import (
	"context"
	"errors"
	"fmt"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSStorage keeps objects in a Google Cloud Storage bucket under a key prefix.
// Objects are written publicly readable.
type GCSStorage struct {
	client *gcs.Client
	bucket string
	prefix string
}

// NewGCSStorage creates the storage client. An empty credentialsFile uses
// application default credentials.
func NewGCSStorage(ctx context.Context, bucket, prefix, credentialsFile string) (*GCSStorage, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}

	client, err := gcs.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}

	return &GCSStorage{client: client, bucket: bucket, prefix: prefix}, nil
}

// Save uploads data to prefix+name.
func (s *GCSStorage) Save(ctx context.Context, name, contentType string, data []byte) (string, error) {
	key := s.prefix + name

	w := s.client.Bucket(s.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.PredefinedACL = "publicRead"

	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize %s: %w", key, err)
	}

	return publicURL(s.bucket, key), nil
}

// Delete removes the object behind publicURL.
func (s *GCSStorage) Delete(ctx context.Context, url string) error {
	key, err := keyFromURL(s.bucket, url)
	if err != nil {
		return err
	}

	err = s.client.Bucket(s.bucket).Object(key).Delete(ctx)
	if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Close releases the storage client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

func publicURL(bucket, key string) string {
	return fmt.Sprintf("%s/%s/%s", gcsPublicHost, bucket, key)
}

func keyFromURL(bucket, url string) (string, error) {
	prefix := fmt.Sprintf("%s/%s/", gcsPublicHost, bucket)
	if !strings.HasPrefix(url, prefix) || len(url) == len(prefix) {
		return "", fmt.Errorf("url %q does not belong to bucket %s", url, bucket)
	}
	return strings.TrimPrefix(url, prefix), nil
}
