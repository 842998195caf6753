package source

import (
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"os"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
	_ "golang.org/x/image/webp"
)

const defaultDPI = 150

// ImageLoader декодирует картинки для логотипов. PDF рендерится через
// go-fitz с первой страницы.
type ImageLoader struct {
	DPI int
}

func (l ImageLoader) Load(path string) (image.Image, error) {
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return l.renderPDF(path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return img, nil
}

func (l ImageLoader) renderPDF(path string) (image.Image, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	defer doc.Close()

	if doc.NumPage() == 0 {
		return nil, fmt.Errorf("pdf %s has no pages", path)
	}
	dpi := l.DPI
	if dpi <= 0 {
		dpi = defaultDPI
	}
	return doc.ImageDPI(0, float64(dpi))
}
