package subtitle

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/gomono"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"
)

// FontSource resolves a font family to a face of the given pixel size.
// The returned face is owned by the caller and must be closed.
type FontSource interface {
	Face(family string, size float64) (font.Face, error)
}

// FontLibrary loads TrueType/OpenType files from a directory and falls back
// to the embedded Go fonts for unknown families.
type FontLibrary struct {
	dir string

	mu    sync.Mutex
	fonts map[string]*opentype.Font
}

// NewFontLibrary returns a library reading font files from dir. dir may be
// empty, in which case only the built-in Go fonts are available.
func NewFontLibrary(dir string) *FontLibrary {
	return &FontLibrary{dir: dir, fonts: make(map[string]*opentype.Font)}
}

// Face implements FontSource. Parsed fonts are shared; faces are not,
// because an opentype face keeps a scratch buffer and is not goroutine safe.
func (l *FontLibrary) Face(family string, size float64) (font.Face, error) {
	if size <= 0 {
		return nil, fmt.Errorf("font %q: invalid size %.2f", family, size)
	}
	f, err := l.font(family)
	if err != nil {
		return nil, err
	}
	face, err := opentype.NewFace(f, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("font %q: %w", family, err)
	}
	return face, nil
}

func (l *FontLibrary) font(family string) (*opentype.Font, error) {
	key := strings.ToLower(strings.TrimSpace(family))

	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.fonts[key]; ok {
		return f, nil
	}

	data := l.lookupFile(key)
	if data == nil {
		data = builtinFont(key)
	}
	f, err := opentype.Parse(data)
	if err != nil {
		return nil, fmt.Errorf("parse font %q: %w", family, err)
	}
	l.fonts[key] = f
	return f, nil
}

// lookupFile searches dir for "<family>.ttf" or "<family>.otf", trying the
// family name as given and with spaces replaced.
func (l *FontLibrary) lookupFile(key string) []byte {
	if l.dir == "" || key == "" {
		return nil
	}
	names := []string{key, strings.ReplaceAll(key, " ", ""), strings.ReplaceAll(key, " ", "-"), strings.ReplaceAll(key, " ", "_")}
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".ttf" && ext != ".otf" {
			continue
		}
		base := strings.ToLower(strings.TrimSuffix(entry.Name(), filepath.Ext(entry.Name())))
		for _, n := range names {
			if base == n {
				data, err := os.ReadFile(filepath.Join(l.dir, entry.Name()))
				if err != nil {
					return nil
				}
				return data
			}
		}
	}
	return nil
}

func builtinFont(key string) []byte {
	switch {
	case strings.Contains(key, "mono"), strings.Contains(key, "courier"):
		return gomono.TTF
	case strings.Contains(key, "bold"), strings.Contains(key, "impact"), strings.Contains(key, "black"):
		return gobold.TTF
	case strings.Contains(key, "italic"):
		return goitalic.TTF
	default:
		return goregular.TTF
	}
}
