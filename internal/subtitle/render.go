package subtitle

import (
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"math"

	"golang.org/x/image/font"
	"golang.org/x/image/math/fixed"

	xdraw "golang.org/x/image/draw"
)

const (
	// lineGap is the space between lines in authoring pixels.
	lineGap = 10
	// padding surrounds the block so outlines and backgrounds never clip.
	padding = 10
)

var defaultOutline = RGB(0, 0, 0)

// Rendered is a rasterized subtitle block on a transparent background.
type Rendered struct {
	Image  *image.RGBA
	Margin int
	BlockW int
	BlockH int
}

// OutlineStrategy draws one plain text run with an outline of thickness t
// around the glyph coverage, followed by the fill.
type OutlineStrategy interface {
	DrawText(dst *image.RGBA, face font.Face, text string, dot fixed.Point26_6, fill, outline color.Color, t int)
}

// MultiPassOutline blits the glyphs at every offset in [-t,t]x[-t,t] in the
// outline color and then once in the fill color. Cost is O(t^2) text draws.
type MultiPassOutline struct{}

func (MultiPassOutline) DrawText(dst *image.RGBA, face font.Face, text string, dot fixed.Point26_6, fill, outline color.Color, t int) {
	d := &font.Drawer{Dst: dst, Face: face}
	if t > 0 {
		d.Src = image.NewUniform(outline)
		for dy := -t; dy <= t; dy++ {
			for dx := -t; dx <= t; dx++ {
				if dx == 0 && dy == 0 {
					continue
				}
				d.Dot = fixed.Point26_6{X: dot.X + fixed.I(dx), Y: dot.Y + fixed.I(dy)}
				d.DrawString(text)
			}
		}
	}
	d.Src = image.NewUniform(fill)
	d.Dot = dot
	d.DrawString(text)
}

// DilateOutline rasterizes the glyph coverage once, grows it by t pixels with
// a square max filter and paints the outline through the grown mask. It gives
// the same square-kernel outline as MultiPassOutline in O(t) per pixel.
type DilateOutline struct{}

func (DilateOutline) DrawText(dst *image.RGBA, face font.Face, text string, dot fixed.Point26_6, fill, outline color.Color, t int) {
	b := dst.Bounds()
	mask := image.NewAlpha(b)
	(&font.Drawer{Dst: mask, Src: image.Opaque, Face: face, Dot: dot}).DrawString(text)
	if t > 0 {
		grown := dilate(mask, t)
		draw.DrawMask(dst, b, image.NewUniform(outline), image.Point{}, grown, b.Min, draw.Over)
	}
	draw.DrawMask(dst, b, image.NewUniform(fill), image.Point{}, mask, b.Min, draw.Over)
}

// dilate applies a separable (2r+1)x(2r+1) max filter to an alpha mask.
func dilate(src *image.Alpha, r int) *image.Alpha {
	b := src.Bounds()
	w, h := b.Dx(), b.Dy()
	tmp := image.NewAlpha(b)
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+w]
		out := tmp.Pix[y*tmp.Stride : y*tmp.Stride+w]
		for x := 0; x < w; x++ {
			var m uint8
			for k := max(0, x-r); k <= min(w-1, x+r); k++ {
				if row[k] > m {
					m = row[k]
				}
			}
			out[x] = m
		}
	}
	dst := image.NewAlpha(b)
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			var m uint8
			for k := max(0, y-r); k <= min(h-1, y+r); k++ {
				if v := tmp.Pix[k*tmp.Stride+x]; v > m {
					m = v
				}
			}
			dst.Pix[y*dst.Stride+x] = m
		}
	}
	return dst
}

type renderer struct {
	fonts   FontSource
	emoji   EmojiSource
	outline OutlineStrategy
}

type lineLayout struct {
	segments []segment
	widths   []int
	width    int
}

// render measures and rasterizes one subtitle block. It never touches the
// cache; the caller decides whether the result is stored.
func (r *renderer) render(sub Subtitle, scaleFactor, emojiScale float64) (*Rendered, error) {
	if scaleFactor <= 0 {
		return nil, fmt.Errorf("invalid scale factor %.3f", scaleFactor)
	}
	fontPx := sub.Size * scaleFactor
	face, err := r.fonts.Face(sub.Font, fontPx)
	if err != nil {
		return nil, err
	}
	defer face.Close()

	emojiPx := int(math.Round(fontPx * emojiScale))
	lines := splitLines(sub.Text)
	layouts := make([]lineLayout, len(lines))
	emojis := make(map[string]image.Image)

	blockW := 0
	for i, segs := range lines {
		l := lineLayout{segments: segs, widths: make([]int, len(segs))}
		for j, seg := range segs {
			if seg.isEmoji() {
				if _, ok := emojis[seg.emoji]; !ok {
					img, err := r.emoji.Emoji(seg.emoji)
					if err != nil {
						return nil, err
					}
					emojis[seg.emoji] = img
				}
				l.widths[j] = emojiPx
			} else {
				l.widths[j] = font.MeasureString(face, seg.text).Ceil()
			}
			l.width += l.widths[j]
		}
		layouts[i] = l
		blockW = max(blockW, l.width)
	}

	lineH := int(math.Round(fontPx + lineGap*scaleFactor))
	blockH := lineH * len(lines)
	thickness := int(math.Round(sub.OutlineThickness * scaleFactor))
	margin := thickness + padding

	img := image.NewRGBA(image.Rect(0, 0, blockW+2*margin, blockH+2*margin))
	ascent := face.Metrics().Ascent
	fill := sub.Color.NRGBA()
	outline := sub.OutlineColor.Or(defaultOutline).NRGBA()
	scaled := make(map[string]image.Image, len(emojis))

	for i, l := range layouts {
		y0 := margin + i*lineH
		x := margin + (blockW-l.width)/2

		if !sub.Background.IsZero() && l.width > 0 {
			pad := padding / 2
			rect := image.Rect(x-pad, y0, x+l.width+pad, y0+lineH).Intersect(img.Bounds())
			draw.Draw(img, rect, image.NewUniform(sub.Background.NRGBA()), image.Point{}, draw.Over)
		}

		for j, seg := range l.segments {
			if seg.isEmoji() {
				em, ok := scaled[seg.emoji]
				if !ok {
					em = resizeEmoji(emojis[seg.emoji], emojiPx)
					scaled[seg.emoji] = em
				}
				ey := y0 + (lineH-emojiPx)/2
				draw.Draw(img, image.Rect(x, ey, x+emojiPx, ey+emojiPx), em, image.Point{}, draw.Over)
			} else if seg.text != "" {
				dot := fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y0) + ascent}
				r.outline.DrawText(img, face, seg.text, dot, fill, outline, thickness)
			}
			x += l.widths[j]
		}
	}

	return &Rendered{Image: img, Margin: margin, BlockW: blockW, BlockH: blockH}, nil
}

func resizeEmoji(src image.Image, size int) image.Image {
	if size <= 0 {
		return image.NewRGBA(image.Rectangle{})
	}
	dst := image.NewRGBA(image.Rect(0, 0, size, size))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
	return dst
}
