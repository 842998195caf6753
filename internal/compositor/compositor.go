// Package compositor builds the vertical output frames: background, optional
// border, the scaled source frame, subtitles, watermark and logo.
package compositor

import (
	"errors"
	"image"
	"image/color"
	"image/draw"
	"sync"

	"go.uber.org/zap"

	"github.com/ivlev/vframe/internal/subtitle"
	"github.com/ivlev/vframe/internal/system"
)

// FrameParams is everything that varies per frame or per job.
type FrameParams struct {
	// Time is the frame timestamp in seconds, used for subtitle visibility.
	Time          float64
	Style         string
	BorderEnabled bool
	BorderSize    float64
	BorderColor   subtitle.Color
	GradientColor subtitle.Color
	// Background is the pre-blurred frame for the blurred style. It is drawn
	// as given, scaled only if its size differs from the canvas.
	Background image.Image
	Subtitles  []subtitle.Subtitle
	EmojiScale float64
	Watermark  *Watermark
	Logo       *Logo
}

// Compositor is safe for concurrent use by several render jobs.
type Compositor struct {
	opts   Options
	cache  *subtitle.Cache
	frames *system.FramePool
	images ImageLoader
	logger *zap.Logger

	mu        sync.Mutex
	gradients map[subtitle.Color]*image.RGBA
	logos     map[logoKey]image.Image
	qrs       map[qrKey]image.Image
}

// New builds a compositor. A nil cache or frame pool gets a private one.
func New(opts Options, cache *subtitle.Cache, images ImageLoader, frames *system.FramePool, logger *zap.Logger) *Compositor {
	if cache == nil {
		cache = subtitle.NewCache(nil, nil)
	}
	if frames == nil {
		frames = system.NewFramePool()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compositor{
		opts:      opts.withDefaults(),
		cache:     cache,
		frames:    frames,
		images:    images,
		logger:    logger,
		gradients: make(map[subtitle.Color]*image.RGBA),
		logos:     make(map[logoKey]image.Image),
		qrs:       make(map[qrKey]image.Image),
	}
}

func (c *Compositor) Options() Options { return c.opts }

// Geometry resolves the inner video area for p, honouring a "no frame" style.
func (c *Compositor) Geometry(p FrameParams) Geometry {
	border := p.BorderEnabled && !ParseStyle(p.Style).NoFrame
	return c.opts.ComputeGeometry(border, p.BorderSize)
}

// RenderFrame composites frame into a new canvas. Overlay failures do not
// abort the frame: everything drawable is drawn and the joined error is
// returned alongside the canvas. Release the canvas with Release.
func (c *Compositor) RenderFrame(frame image.Image, p FrameParams) (*image.RGBA, error) {
	st := ParseStyle(p.Style)
	border := p.BorderEnabled && !st.NoFrame
	g := c.opts.ComputeGeometry(border, p.BorderSize)
	W, H := c.opts.Width, c.opts.Height

	canvas := c.frames.Get(W, H)
	c.fillBackground(canvas, st, p)

	videoRect := centered(W, H, g.InnerW, g.InnerH)
	if st.Frame && border && g.BorderPx > 0 {
		borderRect := videoRect.Inset(-g.BorderPx).Intersect(canvas.Rect)
		draw.Draw(canvas, borderRect, image.NewUniform(p.BorderColor.Or(subtitle.RGB(255, 255, 255)).NRGBA()), image.Point{}, draw.Src)
	}
	if frame != nil {
		copyScaled(canvas, videoRect, frame)
	}

	offX, offY := c.opts.OverlayOffset(p.BorderSize)
	sf := c.opts.ScaleFactor()
	es := p.EmojiScale
	if es <= 0 {
		es = 1
	}

	var errs []error
	for _, sub := range p.Subtitles {
		if !sub.Visible(p.Time) {
			continue
		}
		if err := c.cache.Draw(canvas, sub, sf, es, offX, offY); err != nil {
			errs = append(errs, err)
		}
	}
	if p.Watermark != nil && p.Watermark.active() {
		if err := c.drawWatermark(canvas, *p.Watermark, offX, offY); err != nil {
			errs = append(errs, err)
		}
	}
	if p.Logo != nil && p.Logo.Path != "" {
		if err := c.drawLogo(canvas, *p.Logo, offX, offY); err != nil {
			errs = append(errs, err)
		}
	}
	return canvas, errors.Join(errs...)
}

// Release returns a canvas from RenderFrame to the frame pool.
func (c *Compositor) Release(canvas *image.RGBA) {
	c.frames.Put(canvas)
}

func (c *Compositor) fillBackground(canvas *image.RGBA, st Style, p FrameParams) {
	switch st.Background {
	case BackgroundWhite:
		fillSolid(canvas, color.White)
	case BackgroundGradient:
		draw.Draw(canvas, canvas.Rect, c.gradient(p.GradientColor.Or(defaultGradientColor)), image.Point{}, draw.Src)
	case BackgroundBlurred:
		if p.Background == nil {
			c.logger.Debug("blurred style without background frame, using black")
			fillSolid(canvas, color.Black)
			return
		}
		copyScaled(canvas, canvas.Rect, p.Background)
	default:
		fillSolid(canvas, color.Black)
	}
}

func (c *Compositor) gradient(base subtitle.Color) *image.RGBA {
	c.mu.Lock()
	defer c.mu.Unlock()
	if g, ok := c.gradients[base]; ok {
		return g
	}
	g := gradient(c.opts.Width, c.opts.Height, base)
	c.gradients[base] = g
	return g
}

func centered(W, H, w, h int) image.Rectangle {
	x, y := (W-w)/2, (H-h)/2
	return image.Rect(x, y, x+w, y+h)
}
