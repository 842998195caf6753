package compositor

import (
	"errors"
	"image"
	"image/color"
	"testing"

	"github.com/ivlev/vframe/internal/subtitle"
)

func TestComputeGeometry(t *testing.T) {
	o := DefaultOptions()

	tests := []struct {
		name   string
		border bool
		units  float64
		want   Geometry
	}{
		{"disabled", false, 20, Geometry{InnerW: 1080, InnerH: 1920}},
		{"enabled", true, 0, Geometry{InnerW: 842, InnerH: 1344}},
		{"enabled with border", true, 20, Geometry{InnerW: 842, InnerH: 1344, BorderPx: 20}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := o.ComputeGeometry(tt.border, tt.units); got != tt.want {
				t.Errorf("ComputeGeometry(%v, %v) = %+v, want %+v", tt.border, tt.units, got, tt.want)
			}
		})
	}
}

func TestBorderScalesWithCanvas(t *testing.T) {
	o := Options{Width: 540, Height: 960, BaseWidth: 1080}.withDefaults()
	if got := o.ComputeGeometry(true, 20).BorderPx; got != 10 {
		t.Fatalf("BorderPx = %d, want 10", got)
	}
}

func TestOverlayOffsetIgnoresBorderToggle(t *testing.T) {
	o := DefaultOptions()
	x, y := o.OverlayOffset(10)
	if x != (1080-842)/2 || y != (1920-1344)/2 {
		t.Fatalf("OverlayOffset = (%d, %d)", x, y)
	}
}

func TestParseStyle(t *testing.T) {
	tests := []struct {
		in   string
		want Style
	}{
		{"", Style{Background: BackgroundBlack}},
		{"preto", Style{Background: BackgroundBlack}},
		{"White Frame", Style{Background: BackgroundWhite, Frame: true}},
		{"branco com moldura", Style{Background: BackgroundWhite, Frame: true}},
		{"gradiente", Style{Background: BackgroundGradient}},
		{"desfocado", Style{Background: BackgroundBlurred}},
		{"blurred no frame", Style{Background: BackgroundBlurred, NoFrame: true}},
		{"sem moldura", Style{Background: BackgroundBlack, NoFrame: true}},
	}
	for _, tt := range tests {
		if got := ParseStyle(tt.in); got != tt.want {
			t.Errorf("ParseStyle(%q) = %+v, want %+v", tt.in, got, tt.want)
		}
	}
}

func smallCompositor(loader ImageLoader) *Compositor {
	return New(Options{Width: 108, Height: 192, BaseWidth: 108}, nil, loader, nil, nil)
}

func solid(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

var red = color.RGBA{R: 255, A: 255}

func TestRenderFrameNoFrameForcesFullCanvas(t *testing.T) {
	c := smallCompositor(nil)
	out, err := c.RenderFrame(solid(10, 10, red), FrameParams{Style: "sem moldura", BorderEnabled: true, BorderSize: 5})
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	defer c.Release(out)

	for _, p := range []image.Point{{0, 0}, {107, 191}, {54, 96}} {
		if got := out.RGBAAt(p.X, p.Y); got != red {
			t.Errorf("pixel %v = %v, want video red", p, got)
		}
	}
}

func TestRenderFrameDrawsBorderAroundVideo(t *testing.T) {
	c := smallCompositor(nil)
	p := FrameParams{
		Style:         "white frame",
		BorderEnabled: true,
		BorderSize:    3,
		BorderColor:   subtitle.RGB(0, 0, 255),
	}
	out, err := c.RenderFrame(solid(10, 10, red), p)
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	defer c.Release(out)

	g := c.Geometry(p)
	if g.InnerW != 84 || g.InnerH != 134 || g.BorderPx != 3 {
		t.Fatalf("geometry = %+v", g)
	}
	left := (108 - g.InnerW) / 2
	top := (192 - g.InnerH) / 2

	if got := out.RGBAAt(0, 0); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("background = %v, want white", got)
	}
	if got := out.RGBAAt(left-1, top+10); got != (color.RGBA{0, 0, 255, 255}) {
		t.Errorf("border = %v, want blue", got)
	}
	if got := out.RGBAAt(left, top); got != red {
		t.Errorf("video corner = %v, want red", got)
	}
	if got := out.RGBAAt(left-4, top+10); got != (color.RGBA{255, 255, 255, 255}) {
		t.Errorf("outside border = %v, want white", got)
	}
}

func TestRenderFrameGradientDarkensEdges(t *testing.T) {
	c := smallCompositor(nil)
	out, err := c.RenderFrame(nil, FrameParams{Style: "gradient", GradientColor: subtitle.RGB(200, 200, 200)})
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	defer c.Release(out)

	if edge := out.RGBAAt(0, 96); edge.R != 0 {
		t.Errorf("edge = %v, want black", edge)
	}
	if mid := out.RGBAAt(54, 96); mid.R == 0 || mid.R > 200 {
		t.Errorf("interior = %v, want partial ramp", mid)
	}
}

func TestRenderFrameBlurredUsesSuppliedBackground(t *testing.T) {
	c := smallCompositor(nil)
	green := color.RGBA{G: 255, A: 255}
	out, err := c.RenderFrame(solid(10, 10, red), FrameParams{
		Style:         "blurred",
		BorderEnabled: true,
		Background:    solid(108, 192, green),
	})
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	defer c.Release(out)

	if got := out.RGBAAt(1, 1); got != green {
		t.Errorf("background pixel = %v, want green", got)
	}
	if got := out.RGBAAt(54, 96); got != red {
		t.Errorf("video pixel = %v, want red", got)
	}
}

func TestSubtitlePositionIndependentOfBorder(t *testing.T) {
	c := smallCompositor(nil)
	sub := subtitle.Subtitle{Text: "Hi", Size: 12, Color: subtitle.RGB(255, 255, 0), X: 40, Y: 60}

	offX, offY := c.Options().OverlayOffset(4)
	r, err := c.cache.BBox(sub, c.Options().ScaleFactor(), 1, offX, offY)
	if err != nil {
		t.Fatalf("BBox: %v", err)
	}

	for _, border := range []bool{true, false} {
		out, err := c.RenderFrame(nil, FrameParams{BorderEnabled: border, BorderSize: 4, Subtitles: []subtitle.Subtitle{sub}})
		if err != nil {
			t.Fatalf("RenderFrame: %v", err)
		}
		found := false
		for y := r.Min.Y; y < r.Max.Y && !found; y++ {
			for x := r.Min.X; x < r.Max.X; x++ {
				if p := out.RGBAAt(x, y); p.R > 150 && p.G > 150 && p.B < 50 {
					found = true
					break
				}
			}
		}
		c.Release(out)
		if !found {
			t.Errorf("border=%v: no subtitle pixels inside %v", border, r)
		}
	}
}

func TestSubtitleVisibilityWindow(t *testing.T) {
	c := smallCompositor(nil)
	sub := subtitle.Subtitle{Text: "late", Size: 12, Color: subtitle.RGB(255, 255, 255), X: 54, Y: 96, Start: 5, End: 6}

	out, err := c.RenderFrame(nil, FrameParams{Time: 1, Subtitles: []subtitle.Subtitle{sub}})
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	defer c.Release(out)
	for i := 0; i < len(out.Pix); i += 4 {
		if out.Pix[i] != 0 {
			t.Fatal("subtitle drawn outside its window")
		}
	}
}

type fakeLoader struct {
	img   image.Image
	err   error
	calls int
}

func (f *fakeLoader) Load(string) (image.Image, error) {
	f.calls++
	return f.img, f.err
}

func TestRenderFrameDrawsLogo(t *testing.T) {
	loader := &fakeLoader{img: solid(4, 4, color.RGBA{B: 255, A: 255})}
	c := smallCompositor(loader)
	p := FrameParams{Logo: &Logo{Path: "logo.png", X: 2, Y: 2, Scale: 1}}

	for i := 0; i < 2; i++ {
		out, err := c.RenderFrame(nil, p)
		if err != nil {
			t.Fatalf("RenderFrame: %v", err)
		}
		offX, offY := c.Options().OverlayOffset(0)
		if got := out.RGBAAt(offX+3, offY+3); got.B < 250 || got.R > 5 {
			t.Errorf("logo pixel = %v, want blue", got)
		}
		c.Release(out)
	}
	if loader.calls != 1 {
		t.Fatalf("loader called %d times, want 1", loader.calls)
	}
}

func TestRenderFrameReportsOverlayErrors(t *testing.T) {
	loader := &fakeLoader{err: errors.New("boom")}
	c := smallCompositor(loader)
	out, err := c.RenderFrame(solid(10, 10, red), FrameParams{Logo: &Logo{Path: "bad.png"}})
	if err == nil {
		t.Fatal("expected logo error")
	}
	if out == nil {
		t.Fatal("canvas must still be returned")
	}
	if got := out.RGBAAt(54, 96); got != red {
		t.Errorf("video pixel = %v, want red", got)
	}
	c.Release(out)
}

func TestQRWatermark(t *testing.T) {
	c := smallCompositor(nil)
	out, err := c.RenderFrame(solid(10, 10, red), FrameParams{
		Watermark: &Watermark{Enabled: true, Kind: WatermarkQR, Text: "https://example.com", Size: 60, X: 40, Y: 60},
	})
	if err != nil {
		t.Fatalf("RenderFrame: %v", err)
	}
	defer c.Release(out)

	dark := 0
	video := centered(108, 192, 84, 134)
	for y := video.Min.Y; y < video.Max.Y; y++ {
		for x := video.Min.X; x < video.Max.X; x++ {
			if p := out.RGBAAt(x, y); p.R == 0 && p.G == 0 && p.B == 0 {
				dark++
			}
		}
	}
	if dark == 0 {
		t.Fatal("expected QR modules on the canvas")
	}
}

func TestBlurredBackgroundSize(t *testing.T) {
	bg := BlurredBackground(solid(40, 40, red), 108, 192, 30)
	if bg.Rect.Dx() != 108 || bg.Rect.Dy() != 192 {
		t.Fatalf("size = %v", bg.Rect)
	}
	if got := bg.RGBAAt(50, 90); got.R < 250 {
		t.Errorf("uniform input should stay uniform, got %v", got)
	}
}
