package compositor

import "strings"

// BackgroundKind selects how the canvas behind the video is filled.
type BackgroundKind int

const (
	BackgroundBlack BackgroundKind = iota
	BackgroundWhite
	BackgroundGradient
	BackgroundBlurred
)

func (k BackgroundKind) String() string {
	switch k {
	case BackgroundWhite:
		return "white"
	case BackgroundGradient:
		return "gradient"
	case BackgroundBlurred:
		return "blurred"
	default:
		return "black"
	}
}

// Style is a parsed style keyword string such as "blurred frame" or the
// Portuguese "desfocado com moldura".
type Style struct {
	Background BackgroundKind
	// Frame draws a solid border rectangle around the video.
	Frame bool
	// NoFrame forces the border off whatever the caller asked for.
	NoFrame bool
}

func ParseStyle(s string) Style {
	s = strings.ToLower(s)
	var st Style

	switch {
	case containsAny(s, "blur", "desfoc"):
		st.Background = BackgroundBlurred
	case containsAny(s, "gradient", "gradiente", "degrad"):
		st.Background = BackgroundGradient
	case containsAny(s, "white", "branco"):
		st.Background = BackgroundWhite
	default:
		st.Background = BackgroundBlack
	}

	if containsAny(s, "no frame", "noframe", "no-frame", "sem moldura", "sem_moldura") {
		st.NoFrame = true
		return st
	}
	st.Frame = containsAny(s, "frame", "moldura", "border", "borda")
	return st
}

// NeedsBlurredBackground reports whether the caller must supply a blurred
// background frame for this style.
func NeedsBlurredBackground(style string) bool {
	return ParseStyle(style).Background == BackgroundBlurred
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
