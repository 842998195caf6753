package effects

import (
	"context"
	"image"
)

// Enhancer is an opaque per-frame filter (e.g. a face restoration model).
// Implementations may return the input frame itself.
type Enhancer interface {
	Enhance(ctx context.Context, frame *image.RGBA) (*image.RGBA, error)
}

type EnhancerFunc func(ctx context.Context, frame *image.RGBA) (*image.RGBA, error)

func (f EnhancerFunc) Enhance(ctx context.Context, frame *image.RGBA) (*image.RGBA, error) {
	return f(ctx, frame)
}

// Identity returns frames unchanged.
var Identity Enhancer = EnhancerFunc(func(_ context.Context, f *image.RGBA) (*image.RGBA, error) {
	return f, nil
})

// Chain applies enhancers in order.
func Chain(es ...Enhancer) Enhancer {
	return EnhancerFunc(func(ctx context.Context, f *image.RGBA) (*image.RGBA, error) {
		var err error
		for _, e := range es {
			if f, err = e.Enhance(ctx, f); err != nil {
				return nil, err
			}
		}
		return f, nil
	})
}

// Sharpen is an unsharp mask over a 3x3 box neighbourhood. Amount 0 is a
// no-op; 1 doubles local contrast.
type Sharpen struct {
	Amount float64
}

func (s Sharpen) Enhance(_ context.Context, src *image.RGBA) (*image.RGBA, error) {
	if s.Amount <= 0 {
		return src, nil
	}
	b := src.Rect
	w, h := b.Dx(), b.Dy()
	dst := image.NewRGBA(b)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			o := y*src.Stride + x*4
			for c := 0; c < 3; c++ {
				sum, n := 0, 0
				for dy := -1; dy <= 1; dy++ {
					yy := y + dy
					if yy < 0 || yy >= h {
						continue
					}
					for dx := -1; dx <= 1; dx++ {
						xx := x + dx
						if xx < 0 || xx >= w {
							continue
						}
						sum += int(src.Pix[yy*src.Stride+xx*4+c])
						n++
					}
				}
				v := float64(src.Pix[o+c])
				v += s.Amount * (v - float64(sum)/float64(n))
				dst.Pix[y*dst.Stride+x*4+c] = clamp(v)
			}
			dst.Pix[y*dst.Stride+x*4+3] = src.Pix[o+3]
		}
	}
	return dst, nil
}

func clamp(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v + 0.5)
}
