package compositor

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	xdraw "golang.org/x/image/draw"

	"github.com/ivlev/vframe/internal/subtitle"
)

// gradientMargin is the edge band, in output pixels, over which the
// gradient ramps from black to the base color.
const gradientMargin = 200

var defaultGradientColor = subtitle.RGB(40, 70, 140)

// gradient renders the edge-darkened background for base. Intensity ramps
// linearly over gradientMargin from each edge; the interior is the full color.
func gradient(w, h int, base subtitle.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		dy := min(y, h-1-y)
		for x := 0; x < w; x++ {
			d := min(dy, min(x, w-1-x))
			f := math.Min(1, float64(d)/gradientMargin)
			i := img.PixOffset(x, y)
			img.Pix[i+0] = uint8(float64(base.R) * f)
			img.Pix[i+1] = uint8(float64(base.G) * f)
			img.Pix[i+2] = uint8(float64(base.B) * f)
			img.Pix[i+3] = 255
		}
	}
	return img
}

func fillSolid(dst *image.RGBA, c color.Color) {
	draw.Draw(dst, dst.Bounds(), image.NewUniform(c), image.Point{}, draw.Src)
}

// copyScaled draws src over the whole of dst, scaling when sizes differ.
func copyScaled(dst *image.RGBA, r image.Rectangle, src image.Image) {
	if src.Bounds().Size() == r.Size() {
		draw.Draw(dst, r, src, src.Bounds().Min, draw.Src)
		return
	}
	xdraw.ApproxBiLinear.Scale(dst, r, src, src.Bounds(), xdraw.Src, nil)
}
