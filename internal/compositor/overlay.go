package compositor

import (
	"fmt"
	"image"
	"image/draw"
	"math"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
	xdraw "golang.org/x/image/draw"

	"github.com/ivlev/vframe/internal/subtitle"
)

const (
	WatermarkText = "text"
	WatermarkQR   = "qr"

	defaultQRSize = 160
)

// Watermark is a text or QR-code mark placed in authoring coordinates.
type Watermark struct {
	Enabled          bool           `yaml:"enabled" json:"enabled"`
	Kind             string         `yaml:"kind,omitempty" json:"kind,omitempty"`
	Text             string         `yaml:"text" json:"text"`
	Font             string         `yaml:"font,omitempty" json:"font,omitempty"`
	Size             float64        `yaml:"size,omitempty" json:"size,omitempty"`
	Color            subtitle.Color `yaml:"color,omitempty" json:"color,omitempty"`
	OutlineColor     subtitle.Color `yaml:"outline_color,omitempty" json:"outline_color,omitempty"`
	OutlineThickness float64        `yaml:"outline_thickness,omitempty" json:"outline_thickness,omitempty"`
	X                float64        `yaml:"x" json:"x"`
	Y                float64        `yaml:"y" json:"y"`
}

func (w Watermark) active() bool {
	return w.Enabled && strings.TrimSpace(w.Text) != ""
}

// subtitle turns a text watermark into an always-visible subtitle. The
// background is suppressed whatever the caller configured.
func (w Watermark) subtitle() subtitle.Subtitle {
	size := w.Size
	if size <= 0 {
		size = 36
	}
	return subtitle.Subtitle{
		Text:             w.Text,
		Font:             w.Font,
		Size:             size,
		Color:            w.Color.Or(subtitle.RGB(255, 255, 255)),
		OutlineColor:     w.OutlineColor,
		OutlineThickness: w.OutlineThickness,
		X:                w.X,
		Y:                w.Y,
	}
}

// Logo is an image overlay with its top-left corner at (X, Y).
type Logo struct {
	Path  string  `yaml:"path" json:"path"`
	X     float64 `yaml:"x" json:"x"`
	Y     float64 `yaml:"y" json:"y"`
	Scale float64 `yaml:"scale,omitempty" json:"scale,omitempty"`
}

// ImageLoader decodes a logo file. source.ImageLoader handles raster formats
// and rasterizes PDFs.
type ImageLoader interface {
	Load(path string) (image.Image, error)
}

type logoKey struct {
	path  string
	scale float64
}

type qrKey struct {
	text string
	size int
}

func (c *Compositor) drawWatermark(dst *image.RGBA, w Watermark, offX, offY int) error {
	sf := c.opts.ScaleFactor()
	if w.Kind != WatermarkQR {
		return c.cache.Draw(dst, w.subtitle(), sf, 1, offX, offY)
	}

	size := int(math.Round(w.Size * sf))
	if w.Size <= 0 {
		size = int(math.Round(defaultQRSize * sf))
	}
	img, err := c.qr(w.Text, size)
	if err != nil {
		return err
	}
	cx := int(math.Round(w.X*sf)) + offX
	cy := int(math.Round(w.Y*sf)) + offY
	b := img.Bounds()
	tl := image.Pt(cx-b.Dx()/2, cy-b.Dy()/2)
	draw.Draw(dst, image.Rectangle{Min: tl, Max: tl.Add(b.Size())}, img, b.Min, draw.Over)
	return nil
}

func (c *Compositor) qr(text string, size int) (image.Image, error) {
	k := qrKey{text: text, size: size}
	c.mu.Lock()
	img, ok := c.qrs[k]
	c.mu.Unlock()
	if ok {
		return img, nil
	}

	q, err := qrcode.New(text, qrcode.Medium)
	if err != nil {
		return nil, fmt.Errorf("encode qr watermark: %w", err)
	}
	img = q.Image(size)

	c.mu.Lock()
	c.qrs[k] = img
	c.mu.Unlock()
	return img, nil
}

func (c *Compositor) drawLogo(dst *image.RGBA, l Logo, offX, offY int) error {
	sf := c.opts.ScaleFactor()
	scale := l.Scale
	if scale <= 0 {
		scale = 1
	}
	img, err := c.logo(l.Path, scale*sf)
	if err != nil {
		return err
	}
	tl := image.Pt(int(math.Round(l.X*sf))+offX, int(math.Round(l.Y*sf))+offY)
	b := img.Bounds()
	draw.Draw(dst, image.Rectangle{Min: tl, Max: tl.Add(b.Size())}, img, b.Min, draw.Over)
	return nil
}

func (c *Compositor) logo(path string, scale float64) (image.Image, error) {
	k := logoKey{path: path, scale: scale}
	c.mu.Lock()
	img, ok := c.logos[k]
	c.mu.Unlock()
	if ok {
		return img, nil
	}
	if c.images == nil {
		return nil, fmt.Errorf("load logo %s: no image loader configured", path)
	}

	src, err := c.images.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load logo %s: %w", path, err)
	}
	b := src.Bounds()
	w := max(1, int(math.Round(float64(b.Dx())*scale)))
	h := max(1, int(math.Round(float64(b.Dy())*scale)))
	scaled := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.CatmullRom.Scale(scaled, scaled.Bounds(), src, b, xdraw.Src, nil)

	c.mu.Lock()
	c.logos[k] = scaled
	c.mu.Unlock()
	return scaled, nil
}
