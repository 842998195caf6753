package effects

import (
	"context"
	"errors"
	"image"
	"image/color"
	"strings"
	"testing"
)

func TestScaleFilter(t *testing.T) {
	tests := []struct {
		fit  Fit
		want string
	}{
		{Letterbox, "scale=1080:1920:force_original_aspect_ratio=decrease,pad=1080:1920:(ow-iw)/2:(oh-ih)/2"},
		{Crop, "scale=1080:1920:force_original_aspect_ratio=increase,crop=1080:1920"},
	}
	for _, tt := range tests {
		if got := ScaleFilter(1080, 1920, tt.fit); got != tt.want {
			t.Errorf("ScaleFilter(%s) = %q, want %q", tt.fit, got, tt.want)
		}
	}
}

func TestClipFilterNormalizes(t *testing.T) {
	got := ClipFilter(1080, 1920, 30, Crop)
	for _, part := range []string{"crop=1080:1920", "setsar=1", "fps=30", "format=yuv420p"} {
		if !strings.Contains(got, part) {
			t.Errorf("ClipFilter missing %q: %s", part, got)
		}
	}
}

func TestParseFit(t *testing.T) {
	tests := map[string]Fit{"crop": Crop, "Cortar": Crop, "letterbox": Letterbox, "": Letterbox}
	for in, want := range tests {
		if got := ParseFit(in); got != want {
			t.Errorf("ParseFit(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestChainStopsOnError(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	count := EnhancerFunc(func(_ context.Context, f *image.RGBA) (*image.RGBA, error) {
		calls++
		return f, nil
	})
	fail := EnhancerFunc(func(context.Context, *image.RGBA) (*image.RGBA, error) { return nil, boom })

	_, err := Chain(count, fail, count).Enhance(context.Background(), image.NewRGBA(image.Rect(0, 0, 1, 1)))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestSharpenKeepsFlatAreas(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for y := 0; y < 4; y++ {
		for x := 0; x < 4; x++ {
			img.SetRGBA(x, y, color.RGBA{100, 100, 100, 255})
		}
	}
	img.SetRGBA(1, 1, color.RGBA{200, 200, 200, 255})

	out, err := Sharpen{Amount: 1}.Enhance(context.Background(), img)
	if err != nil {
		t.Fatal(err)
	}
	if got := out.RGBAAt(3, 3); got.R != 100 {
		t.Errorf("flat pixel = %v, want 100", got)
	}
	if got := out.RGBAAt(1, 1); got.R <= 200 {
		t.Errorf("peak = %v, want boosted above 200", got)
	}
}
