package firebase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"

	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"

	"github.com/phrazzld/clientflow/internal/store"
)

// bucket is the slice of a storage bucket the blob store uses.
type bucket interface {
	NewWriter(ctx context.Context, path, contentType string) io.WriteCloser
	Delete(ctx context.Context, path string) error
}

type gcsBucket struct {
	handle *gcs.BucketHandle
}

func (b gcsBucket) NewWriter(ctx context.Context, path, contentType string) io.WriteCloser {
	w := b.handle.Object(path).NewWriter(ctx)
	w.ContentType = contentType
	return w
}

func (b gcsBucket) Delete(ctx context.Context, path string) error {
	err := b.handle.Object(path).Delete(ctx)
	if errors.Is(err, gcs.ErrObjectNotExist) {
		return nil
	}
	return err
}

// BlobStore writes attachments to a Firebase Storage bucket.
type BlobStore struct {
	bucket     bucket
	bucketName string
}

// NewBlobStore opens the app's storage bucket. An empty name selects the
// bucket configured on the app.
func NewBlobStore(ctx context.Context, app *firebase.App, bucketName string) (*BlobStore, error) {
	client, err := app.Storage(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting Storage client: %w", err)
	}

	var handle *gcs.BucketHandle
	if bucketName == "" {
		handle, err = client.DefaultBucket()
	} else {
		handle, err = client.Bucket(bucketName)
	}
	if err != nil {
		return nil, fmt.Errorf("error opening storage bucket: %w", err)
	}

	attrs, err := handle.Attrs(ctx)
	if err != nil {
		return nil, fmt.Errorf("error reading bucket attributes: %w", err)
	}
	return &BlobStore{bucket: gcsBucket{handle: handle}, bucketName: attrs.Name}, nil
}

var _ store.BlobStore = (*BlobStore)(nil)

// Put implements store.BlobStore.Put
func (s *BlobStore) Put(ctx context.Context, path, contentType string, r io.Reader) (string, error) {
	w := s.bucket.NewWriter(ctx, path, contentType)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("uploading %s: %w", path, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalizing %s: %w", path, err)
	}
	return s.DownloadURL(path), nil
}

// Delete implements store.BlobStore.Delete
func (s *BlobStore) Delete(ctx context.Context, path string) error {
	if err := s.bucket.Delete(ctx, path); err != nil {
		return fmt.Errorf("deleting %s: %w", path, err)
	}
	return nil
}

// DownloadURL is the Firebase Storage REST URL for path.
func (s *BlobStore) DownloadURL(path string) string {
	return fmt.Sprintf("https://firebasestorage.googleapis.com/v0/b/%s/o/%s?alt=media",
		s.bucketName, url.PathEscape(path))
}
