package store

import (
	"context"
	"io"
)

// BlobStore holds uploaded attachment bytes.
type BlobStore interface {
	// Put writes r under path and returns a URL the client can fetch it from.
	Put(ctx context.Context, path, contentType string, r io.Reader) (string, error)

	// Delete removes path. Deleting a missing path is not an error.
	Delete(ctx context.Context, path string) error
}
