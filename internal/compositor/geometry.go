package compositor

import "math"

const (
	DefaultWidth       = 1080
	DefaultHeight      = 1920
	DefaultBaseWidth   = 1080
	DefaultWidthRatio  = 0.78
	DefaultHeightRatio = 0.70
)

// Options fixes the output canvas and the authoring coordinate space.
type Options struct {
	Width  int
	Height int
	// BaseWidth is the canvas width subtitles, logos and borders are authored
	// against; everything is scaled by Width/BaseWidth.
	BaseWidth   int
	WidthRatio  float64
	HeightRatio float64
}

// DefaultOptions is a 1080x1920 canvas authored at 1080 wide.
func DefaultOptions() Options {
	return Options{
		Width:       DefaultWidth,
		Height:      DefaultHeight,
		BaseWidth:   DefaultBaseWidth,
		WidthRatio:  DefaultWidthRatio,
		HeightRatio: DefaultHeightRatio,
	}
}

func (o Options) withDefaults() Options {
	if o.Width <= 0 {
		o.Width = DefaultWidth
	}
	if o.Height <= 0 {
		o.Height = DefaultHeight
	}
	if o.BaseWidth <= 0 {
		o.BaseWidth = DefaultBaseWidth
	}
	if o.WidthRatio <= 0 || o.WidthRatio > 1 {
		o.WidthRatio = DefaultWidthRatio
	}
	if o.HeightRatio <= 0 || o.HeightRatio > 1 {
		o.HeightRatio = DefaultHeightRatio
	}
	return o
}

// ScaleFactor maps authoring coordinates to output pixels.
func (o Options) ScaleFactor() float64 {
	return float64(o.Width) / float64(o.BaseWidth)
}

// Geometry is the inner video area and border thickness on the canvas.
type Geometry struct {
	InnerW   int
	InnerH   int
	BorderPx int
}

// ComputeGeometry returns the full canvas when the border is disabled, and
// otherwise the ratio-scaled inner area with a border scaled from authoring
// units to output pixels.
func (o Options) ComputeGeometry(borderEnabled bool, borderUnits float64) Geometry {
	if !borderEnabled {
		return Geometry{InnerW: o.Width, InnerH: o.Height}
	}
	return Geometry{
		InnerW:   floor(float64(o.Width) * o.WidthRatio),
		InnerH:   floor(float64(o.Height) * o.HeightRatio),
		BorderPx: int(math.Round(borderUnits * o.ScaleFactor())),
	}
}

// OverlayOffset is the top-left of the video area as if a border were
// present. Overlays are positioned relative to it even when the border is
// off, so authored positions do not move when the border is toggled.
func (o Options) OverlayOffset(borderUnits float64) (int, int) {
	g := o.ComputeGeometry(true, borderUnits)
	return (o.Width - g.InnerW) / 2, (o.Height - g.InnerH) / 2
}

// floor absorbs binary representation error, e.g. 1920*0.70.
func floor(v float64) int {
	return int(math.Floor(v + 1e-9))
}
