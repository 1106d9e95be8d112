package localfs

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) (*BlobStore, afero.Fs) {
	t.Helper()
	fs := afero.NewMemMapFs()
	s, err := NewBlobStore(fs, "/uploads", "/files/")
	require.NoError(t, err)
	return s, fs
}

func TestPutAndDelete(t *testing.T) {
	s, fs := newStore(t)
	ctx := context.Background()

	url, err := s.Put(ctx, "tasks/1/images/00-a.png", "image/png", strings.NewReader("png-bytes"))
	require.NoError(t, err)
	assert.Equal(t, "/files/tasks/1/images/00-a.png", url)

	data, err := afero.ReadFile(fs, "/uploads/tasks/1/images/00-a.png")
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	require.NoError(t, s.Delete(ctx, "tasks/1/images/00-a.png"))
	exists, err := afero.Exists(fs, "/uploads/tasks/1/images/00-a.png")
	require.NoError(t, err)
	assert.False(t, exists)

	assert.NoError(t, s.Delete(ctx, "tasks/1/images/00-a.png"), "deleting a missing blob is not an error")
}

func TestPathsCannotEscapeRoot(t *testing.T) {
	s, fs := newStore(t)

	url, err := s.Put(context.Background(), "../../etc/passwd", "text/plain", strings.NewReader("x"))
	require.NoError(t, err)
	assert.Equal(t, "/files/etc/passwd", url)

	exists, err := afero.Exists(fs, "/uploads/etc/passwd")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = s.Put(context.Background(), "/", "text/plain", strings.NewReader("x"))
	assert.ErrorIs(t, err, ErrInvalidPath)
}

func TestPutHonoursCancelledContext(t *testing.T) {
	s, _ := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, "a.png", "image/png", strings.NewReader("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestHandlerServesBlobs(t *testing.T) {
	s, _ := newStore(t)
	_, err := s.Put(context.Background(), "tasks/1/a.txt", "text/plain", strings.NewReader("hello"))
	require.NoError(t, err)

	srv := httptest.NewServer(http.StripPrefix("/files", s.Handler()))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/files/tasks/1/a.txt")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "hello", string(body))
}
