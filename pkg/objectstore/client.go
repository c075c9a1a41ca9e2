// Package objectstore wraps the object-store half of the Recording &
// Metadata Store's (C12) dual-write (spec.md §4.11), adapted from the
// teacher's pkg/gcs.GCSClient: same cloud.google.com/go/storage dependency
// and Upload/Delete shape, generalized from a GCS-only client to the
// "local filesystem or object store" split spec.md §6 describes.
package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"cloud.google.com/go/storage"
)

// Client puts and deletes objects in a single bucket.
type Client struct {
	client *storage.Client
	bucket string
}

// New opens a Client against bucket using application-default credentials,
// the same discovery the teacher's NewGCSClient relies on.
func New(ctx context.Context, bucket string) (*Client, error) {
	c, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("objectstore: open client: %w", err)
	}
	return &Client{client: c, bucket: bucket}, nil
}

// Put uploads data at objectPath, overwriting any existing object there.
func (c *Client) Put(ctx context.Context, objectPath string, data []byte) error {
	w := c.client.Bucket(c.bucket).Object(objectPath).NewWriter(ctx)
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return fmt.Errorf("objectstore: write %s: %w", objectPath, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("objectstore: close writer for %s: %w", objectPath, err)
	}
	return nil
}

// Delete removes objectPath. A missing object is not an error, matching the
// teacher's ErrObjectNotExist-is-a-no-op behaviour.
func (c *Client) Delete(ctx context.Context, objectPath string) error {
	err := c.client.Bucket(c.bucket).Object(objectPath).Delete(ctx)
	if err != nil && err != storage.ErrObjectNotExist {
		return fmt.Errorf("objectstore: delete %s: %w", objectPath, err)
	}
	return nil
}

// Close releases the underlying client's resources.
func (c *Client) Close() error {
	return c.client.Close()
}
