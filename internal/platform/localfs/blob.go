// Package localfs stores attachment blobs on a filesystem through afero, so
// the same code serves real disks and in-memory test filesystems.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/phrazzld/clientflow/internal/store"
	"github.com/spf13/afero"
)

// ErrInvalidPath is returned for blob paths that escape the root.
var ErrInvalidPath = errors.New("invalid blob path")

// BlobStore writes blobs under a root directory of an afero filesystem.
type BlobStore struct {
	fs      afero.Fs
	baseURL string
}

// NewBlobStore roots a store at dir on fs. URLs returned by Put are baseURL
// joined with the blob path.
func NewBlobStore(fs afero.Fs, dir, baseURL string) (*BlobStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob dir: %w", err)
	}
	return &BlobStore{
		fs:      afero.NewBasePathFs(fs, dir),
		baseURL: strings.TrimRight(baseURL, "/"),
	}, nil
}

var _ store.BlobStore = (*BlobStore)(nil)

// Put implements store.BlobStore.Put
func (s *BlobStore) Put(ctx context.Context, p, contentType string, r io.Reader) (string, error) {
	clean, err := cleanPath(p)
	if err != nil {
		return "", err
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := s.fs.MkdirAll(filepath.Dir(clean), 0o755); err != nil {
		return "", fmt.Errorf("creating blob parent: %w", err)
	}
	if err := afero.WriteReader(s.fs, clean, r); err != nil {
		return "", fmt.Errorf("writing blob %s: %w", clean, err)
	}
	return s.baseURL + "/" + clean, nil
}

// Delete implements store.BlobStore.Delete
func (s *BlobStore) Delete(_ context.Context, p string) error {
	clean, err := cleanPath(p)
	if err != nil {
		return err
	}
	if err := s.fs.Remove(clean); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing blob %s: %w", clean, err)
	}
	return nil
}

// Handler serves stored blobs over HTTP.
func (s *BlobStore) Handler() http.Handler {
	return http.FileServer(afero.NewHttpFs(s.fs).Dir("/"))
}

func cleanPath(p string) (string, error) {
	clean := path.Clean("/" + p)[1:]
	if clean == "" || clean == "." {
		return "", ErrInvalidPath
	}
	return clean, nil
}
