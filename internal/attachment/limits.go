package attachment

import "fmt"

// Kind is the media class of a staged file.
type Kind string

const (
	KindImage Kind = "image"
	KindVideo Kind = "video"
)

// Limits bounds a staging area. A zero MaxFiles means only the per-kind caps
// apply.
type Limits struct {
	MaxFiles      int   `json:"max_files,omitempty"`
	MaxImages     int   `json:"max_images"`
	MaxVideos     int   `json:"max_videos"`
	MaxImageBytes int64 `json:"max_image_bytes"`
	MaxVideoBytes int64 `json:"max_video_bytes"`
}

var (
	// SimpleLimits allows up to five images of at most 5MB each, no videos.
	SimpleLimits = Limits{
		MaxFiles:      5,
		MaxImages:     5,
		MaxImageBytes: 5_000_000,
	}

	// ExtendedLimits allows 20 images at 5MB and 5 videos at 100MB.
	ExtendedLimits = Limits{
		MaxImages:     20,
		MaxVideos:     5,
		MaxImageBytes: 5_000_000,
		MaxVideoBytes: 100_000_000,
	}
)

// LimitsForMode maps the attachments.mode setting to its limits.
func LimitsForMode(mode string) (Limits, error) {
	switch mode {
	case "simple":
		return SimpleLimits, nil
	case "extended", "":
		return ExtendedLimits, nil
	}
	return Limits{}, fmt.Errorf("unknown attachment mode %q", mode)
}

func (l Limits) maxCount(kind Kind) int {
	if kind == KindVideo {
		return l.MaxVideos
	}
	return l.MaxImages
}

func (l Limits) maxBytes(kind Kind) int64 {
	if kind == KindVideo {
		return l.MaxVideoBytes
	}
	return l.MaxImageBytes
}

// MaxUploadBytes is the largest request body a full selection can produce.
func (l Limits) MaxUploadBytes() int64 {
	return int64(l.MaxImages)*l.MaxImageBytes + int64(l.MaxVideos)*l.MaxVideoBytes
}

func humanBytes(n int64) string {
	if n%1_000_000 == 0 {
		return fmt.Sprintf("%dMB", n/1_000_000)
	}
	return fmt.Sprintf("%d bytes", n)
}
