// Package effects builds ffmpeg filter chains and in-process frame filters.
package effects

import (
	"fmt"
	"strings"
)

// Fit is how a picture is adapted to a target aspect ratio.
type Fit string

const (
	// Letterbox scales to fit inside the target and pads with black.
	Letterbox Fit = "letterbox"
	// Crop scales to cover the target and cuts the overflow, centred.
	Crop Fit = "crop"
)

// ParseFit accepts the English names and the Portuguese "cortar".
func ParseFit(s string) Fit {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "crop", "cover", "cortar":
		return Crop
	default:
		return Letterbox
	}
}

// ScaleFilter maps any input to exactly w x h.
func ScaleFilter(w, h int, fit Fit) string {
	if fit == Crop {
		return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=increase,crop=%d:%d", w, h, w, h)
	}
	return fmt.Sprintf("scale=%d:%d:force_original_aspect_ratio=decrease,pad=%d:%d:(ow-iw)/2:(oh-ih)/2", w, h, w, h)
}

// ClipFilter normalizes an appended clip so it concatenates cleanly with
// the rendered main video.
func ClipFilter(w, h, fps int, fit Fit) string {
	return fmt.Sprintf("%s,setsar=1,fps=%d,format=yuv420p", ScaleFilter(w, h, fit), fps)
}

// AudioNormalizeFilter brings every concat input to one sample format.
func AudioNormalizeFilter() string {
	return "aresample=44100,aformat=sample_fmts=fltp:channel_layouts=stereo"
}

// SilenceFilter generates d seconds of silence for inputs without audio.
func SilenceFilter(d float64) string {
	return fmt.Sprintf("anullsrc=channel_layout=stereo:sample_rate=44100,atrim=duration=%.3f,aformat=sample_fmts=fltp:channel_layouts=stereo", d)
}
