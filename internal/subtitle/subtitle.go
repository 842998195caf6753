package subtitle

import (
	"fmt"
	"image/color"
	"strconv"
	"strings"
)

// AlwaysVisible is the end time at or beyond which a subtitle never expires.
const AlwaysVisible = 1e9

// Subtitle is one styled text block positioned in the authoring coordinate space.
type Subtitle struct {
	Text             string  `yaml:"text" json:"text"`
	Font             string  `yaml:"font,omitempty" json:"font,omitempty"`
	Size             float64 `yaml:"size" json:"size"`
	Color            Color   `yaml:"color" json:"color"`
	OutlineColor     Color   `yaml:"outline_color,omitempty" json:"outline_color,omitempty"`
	Background       Color   `yaml:"background,omitempty" json:"background,omitempty"`
	OutlineThickness float64 `yaml:"outline_thickness,omitempty" json:"outline_thickness,omitempty"`
	X                float64 `yaml:"x" json:"x"`
	Y                float64 `yaml:"y" json:"y"`
	Start            float64 `yaml:"start,omitempty" json:"start,omitempty"`
	End              float64 `yaml:"end,omitempty" json:"end,omitempty"`
}

// Visible reports whether the subtitle is shown at time t (seconds).
func (s Subtitle) Visible(t float64) bool {
	if t < s.Start {
		return false
	}
	if s.End <= 0 || s.End >= AlwaysVisible {
		return true
	}
	return t <= s.End
}

// Style is the visual part of a subtitle, shared when one style is forced on
// every job.
type Style struct {
	Font             string  `yaml:"font,omitempty" json:"font,omitempty"`
	Size             float64 `yaml:"size,omitempty" json:"size,omitempty"`
	Color            Color   `yaml:"color,omitempty" json:"color,omitempty"`
	OutlineColor     Color   `yaml:"outline_color,omitempty" json:"outline_color,omitempty"`
	Background       Color   `yaml:"background,omitempty" json:"background,omitempty"`
	OutlineThickness float64 `yaml:"outline_thickness,omitempty" json:"outline_thickness,omitempty"`
}

// WithStyle returns a copy of s carrying st's visual attributes. Text,
// position and timing are untouched.
func (s Subtitle) WithStyle(st Style) Subtitle {
	s.Font = st.Font
	if st.Size > 0 {
		s.Size = st.Size
	}
	s.Color = st.Color
	s.OutlineColor = st.OutlineColor
	s.Background = st.Background
	s.OutlineThickness = st.OutlineThickness
	return s
}

// Color is a non-premultiplied sRGB color that (un)marshals as "#RRGGBB",
// "#RRGGBBAA" or one of a few common names. The zero value means "unset".
type Color color.NRGBA

var namedColors = map[string]Color{
	"black":  {0, 0, 0, 255},
	"white":  {255, 255, 255, 255},
	"red":    {255, 0, 0, 255},
	"green":  {0, 128, 0, 255},
	"blue":   {0, 0, 255, 255},
	"yellow": {255, 255, 0, 255},
	"gray":   {128, 128, 128, 255},
	"grey":   {128, 128, 128, 255},
	"orange": {255, 165, 0, 255},
	"purple": {128, 0, 128, 255},
	"none":   {},
}

// RGB builds an opaque color.
func RGB(r, g, b uint8) Color { return Color{R: r, G: g, B: b, A: 255} }

// ParseColor accepts "#RGB", "#RRGGBB", "#RRGGBBAA" or a color name.
func ParseColor(s string) (Color, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return Color{}, nil
	}
	if c, ok := namedColors[s]; ok {
		return c, nil
	}
	hex := strings.TrimPrefix(s, "#")
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) == 6 {
		hex += "ff"
	}
	if len(hex) != 8 {
		return Color{}, fmt.Errorf("invalid color %q", s)
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("invalid color %q: %w", s, err)
	}
	return Color{R: uint8(v >> 24), G: uint8(v >> 16), B: uint8(v >> 8), A: uint8(v)}, nil
}

// NRGBA returns the standard library form of c.
func (c Color) NRGBA() color.NRGBA { return color.NRGBA(c) }

// IsZero reports whether the color is unset (fully transparent).
func (c Color) IsZero() bool { return c.A == 0 }

// Or returns c, or fallback when c is unset.
func (c Color) Or(fallback Color) Color {
	if c.IsZero() {
		return fallback
	}
	return c
}

func (c Color) String() string {
	if c.A == 255 {
		return fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B)
	}
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// MarshalText implements encoding.TextMarshaler.
func (c Color) MarshalText() ([]byte, error) {
	if c.IsZero() {
		return []byte(""), nil
	}
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Color) UnmarshalText(b []byte) error {
	parsed, err := ParseColor(string(b))
	if err != nil {
		return err
	}
	*c = parsed
	return nil
}
