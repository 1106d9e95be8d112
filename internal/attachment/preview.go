package attachment

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/disintegration/imaging"
)

// Previewer renders a small inline representation of an accepted file.
type Previewer interface {
	Preview(kind Kind, contentType string, data []byte) (string, error)
}

// ThumbnailPreviewer downsizes images to fit a MaxSide box and encodes them
// as JPEG data URLs. Videos get no preview.
type ThumbnailPreviewer struct {
	MaxSide int
	Quality int
}

// NewThumbnailPreviewer returns a previewer producing 320px thumbnails.
func NewThumbnailPreviewer() ThumbnailPreviewer {
	return ThumbnailPreviewer{MaxSide: 320, Quality: 80}
}

// Preview implements Previewer. Images that cannot be decoded fall back to a
// data URL of the original bytes.
func (p ThumbnailPreviewer) Preview(kind Kind, contentType string, data []byte) (string, error) {
	if kind != KindImage {
		return "", nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return DataURL(contentType, data), nil
	}

	thumb := imaging.Fit(img, p.MaxSide, p.MaxSide, imaging.Lanczos)
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(p.Quality)); err != nil {
		return "", fmt.Errorf("encoding thumbnail: %w", err)
	}
	return DataURL("image/jpeg", buf.Bytes()), nil
}

// DataURL encodes data as a base64 data URL.
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
