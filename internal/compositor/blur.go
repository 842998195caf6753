package compositor

import (
	"image"

	xdraw "golang.org/x/image/draw"
)

// blurDownscale shrinks the frame before blurring; a heavy blur loses
// nothing at quarter resolution and costs a sixteenth of the work.
const blurDownscale = 4

// BlurredBackground resizes frame to w x h and applies an approximate
// Gaussian blur of the given radius (three box-blur passes).
func BlurredBackground(frame image.Image, w, h, radius int) *image.RGBA {
	sw, sh := max(1, w/blurDownscale), max(1, h/blurDownscale)
	small := image.NewRGBA(image.Rect(0, 0, sw, sh))
	xdraw.ApproxBiLinear.Scale(small, small.Bounds(), frame, frame.Bounds(), xdraw.Src, nil)

	r := max(1, radius/blurDownscale)
	tmp := image.NewRGBA(small.Bounds())
	for i := 0; i < 3; i++ {
		boxBlurH(tmp, small, r)
		boxBlurV(small, tmp, r)
	}

	out := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.ApproxBiLinear.Scale(out, out.Bounds(), small, small.Bounds(), xdraw.Src, nil)
	return out
}

func boxBlurH(dst, src *image.RGBA, r int) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for y := 0; y < h; y++ {
		row := src.Pix[y*src.Stride:]
		out := dst.Pix[y*dst.Stride:]
		for c := 0; c < 4; c++ {
			sum, n := 0, 0
			for x := 0; x <= min(r, w-1); x++ {
				sum += int(row[x*4+c])
				n++
			}
			for x := 0; x < w; x++ {
				out[x*4+c] = uint8(sum / n)
				if add := x + r + 1; add < w {
					sum += int(row[add*4+c])
					n++
				}
				if sub := x - r; sub >= 0 {
					sum -= int(row[sub*4+c])
					n--
				}
			}
		}
	}
}

func boxBlurV(dst, src *image.RGBA, r int) {
	w, h := src.Rect.Dx(), src.Rect.Dy()
	for x := 0; x < w; x++ {
		for c := 0; c < 4; c++ {
			off := x*4 + c
			sum, n := 0, 0
			for y := 0; y <= min(r, h-1); y++ {
				sum += int(src.Pix[y*src.Stride+off])
				n++
			}
			for y := 0; y < h; y++ {
				dst.Pix[y*dst.Stride+off] = uint8(sum / n)
				if add := y + r + 1; add < h {
					sum += int(src.Pix[add*src.Stride+off])
					n++
				}
				if sub := y - r; sub >= 0 {
					sum -= int(src.Pix[sub*src.Stride+off])
					n--
				}
			}
		}
	}
}
