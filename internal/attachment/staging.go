package attachment

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/gabriel-vasile/mimetype"
	"github.com/phrazzld/clientflow/internal/domain"
)

// Staging errors. They reach callers wrapped in a domain.ValidationError.
var (
	ErrTooManyFiles    = errors.New("too many files")
	ErrFileTooLarge    = errors.New("file too large")
	ErrUnsupportedType = errors.New("unsupported file type")
	ErrIndexOutOfRange = errors.New("attachment index out of range")
)

// File is a file chosen for upload.
type File struct {
	Name string
	Data []byte
}

// Staged is an accepted file waiting for submission.
type Staged struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	Kind        Kind   `json:"kind"`
	Size        int64  `json:"size"`
	Preview     string `json:"preview,omitempty"`
	Data        []byte `json:"-"`
}

// Staging holds the accepted attachments of one submission form.
type Staging struct {
	limits    Limits
	previewer Previewer

	mu     sync.Mutex
	images []Staged
	videos []Staged
}

// NewStaging creates an empty staging area. A nil previewer disables previews.
func NewStaging(limits Limits, previewer Previewer) *Staging {
	return &Staging{limits: limits, previewer: previewer}
}

// Add validates the whole selection against the limits and stages it. If any
// file is rejected nothing from the selection is staged.
func (s *Staging) Add(files ...File) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	accepted := make([]Staged, 0, len(files))
	counts := map[Kind]int{KindImage: len(s.images), KindVideo: len(s.videos)}
	for _, f := range files {
		staged, err := classify(f)
		if err != nil {
			return err
		}
		counts[staged.Kind]++
		accepted = append(accepted, staged)
	}

	if max := s.limits.MaxFiles; max > 0 && counts[KindImage]+counts[KindVideo] > max {
		return domain.NewValidationError("attachments",
			fmt.Sprintf("maximum %d files allowed per request", max), ErrTooManyFiles)
	}
	for _, kind := range []Kind{KindImage, KindVideo} {
		if max := s.limits.maxCount(kind); counts[kind] > max {
			if max == 0 {
				return domain.NewValidationError(fieldFor(kind),
					fmt.Sprintf("%s uploads are not allowed", kind), ErrUnsupportedType)
			}
			return domain.NewValidationError(fieldFor(kind),
				fmt.Sprintf("maximum %d %ss allowed per request", max, kind), ErrTooManyFiles)
		}
	}
	for _, staged := range accepted {
		if max := s.limits.maxBytes(staged.Kind); staged.Size > max {
			return domain.NewValidationError(fieldFor(staged.Kind),
				fmt.Sprintf("%s size must be at most %s: %s", staged.Kind, humanBytes(max), staged.Name),
				ErrFileTooLarge)
		}
	}

	for i := range accepted {
		if s.previewer == nil {
			continue
		}
		preview, err := s.previewer.Preview(accepted[i].Kind, accepted[i].ContentType, accepted[i].Data)
		if err != nil {
			return fmt.Errorf("rendering preview for %s: %w", accepted[i].Name, err)
		}
		accepted[i].Preview = preview
	}

	for _, staged := range accepted {
		if staged.Kind == KindVideo {
			s.videos = append(s.videos, staged)
		} else {
			s.images = append(s.images, staged)
		}
	}
	return nil
}

// Remove drops the staged file of kind at index.
func (s *Staging) Remove(kind Kind, index int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list := &s.images
	if kind == KindVideo {
		list = &s.videos
	}
	if index < 0 || index >= len(*list) {
		return domain.NewValidationError(fieldFor(kind),
			fmt.Sprintf("no %s at index %d", kind, index), ErrIndexOutOfRange)
	}
	*list = append((*list)[:index], (*list)[index+1:]...)
	return nil
}

// Images returns the staged images in selection order.
func (s *Staging) Images() []Staged {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Staged(nil), s.images...)
}

// Videos returns the staged videos in selection order.
func (s *Staging) Videos() []Staged {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Staged(nil), s.videos...)
}

// Len is the number of staged files of either kind.
func (s *Staging) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.images) + len(s.videos)
}

// Clone returns an independent staging area holding the same files under the
// same limits.
func (s *Staging) Clone() *Staging {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &Staging{
		limits:    s.limits,
		previewer: s.previewer,
		images:    append([]Staged(nil), s.images...),
		videos:    append([]Staged(nil), s.videos...),
	}
}

// Reset empties the staging area after a submission.
func (s *Staging) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.images = nil
	s.videos = nil
}

func classify(f File) (Staged, error) {
	mt := mimetype.Detect(f.Data)
	contentType := mt.String()
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = contentType[:i]
	}

	var kind Kind
	switch {
	case strings.HasPrefix(contentType, "image/"):
		kind = KindImage
	case strings.HasPrefix(contentType, "video/"):
		kind = KindVideo
	default:
		return Staged{}, domain.NewValidationError("attachments",
			fmt.Sprintf("%s is not an image or video (%s)", f.Name, contentType), ErrUnsupportedType)
	}

	return Staged{
		Name:        f.Name,
		ContentType: contentType,
		Kind:        kind,
		Size:        int64(len(f.Data)),
		Data:        f.Data,
	}, nil
}

func fieldFor(kind Kind) string {
	return string(kind) + "s"
}
