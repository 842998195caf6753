package subtitle

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
	"sync"

	_ "golang.org/x/image/webp"
)

// ErrUnknownEmoji is returned when an emoji identifier has no image.
var ErrUnknownEmoji = errors.New("unknown emoji")

// EmojiSource supplies the image for an emoji identifier.
type EmojiSource interface {
	Emoji(id string) (image.Image, error)
}

// DirEmojiSource reads "<id>.png" or "<id>.webp" from a directory and keeps
// decoded images in memory.
type DirEmojiSource struct {
	dir string

	mu     sync.RWMutex
	images map[string]image.Image
}

func NewDirEmojiSource(dir string) *DirEmojiSource {
	return &DirEmojiSource{dir: dir, images: make(map[string]image.Image)}
}

func (s *DirEmojiSource) Emoji(id string) (image.Image, error) {
	s.mu.RLock()
	img, ok := s.images[id]
	s.mu.RUnlock()
	if ok {
		return img, nil
	}

	for _, ext := range []string{".png", ".webp"} {
		data, err := os.ReadFile(filepath.Join(s.dir, filepath.Base(id)+ext))
		if err != nil {
			continue
		}
		img, _, err := image.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decode emoji %q: %w", id, err)
		}
		s.mu.Lock()
		s.images[id] = img
		s.mu.Unlock()
		return img, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEmoji, id)
}

// MemoryEmojiSource holds emoji images supplied as encoded byte buffers.
type MemoryEmojiSource struct {
	mu     sync.RWMutex
	images map[string]image.Image
}

func NewMemoryEmojiSource() *MemoryEmojiSource {
	return &MemoryEmojiSource{images: make(map[string]image.Image)}
}

// Add decodes a PNG or WebP buffer and registers it under id.
func (s *MemoryEmojiSource) Add(id string, data []byte) error {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode emoji %q: %w", id, err)
	}
	s.Set(id, img)
	return nil
}

func (s *MemoryEmojiSource) Set(id string, img image.Image) {
	s.mu.Lock()
	s.images[id] = img
	s.mu.Unlock()
}

func (s *MemoryEmojiSource) Emoji(id string) (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	img, ok := s.images[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownEmoji, id)
	}
	return img, nil
}
