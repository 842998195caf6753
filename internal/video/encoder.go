// Package video drives ffmpeg for encoding composited frames and joining
// clips.
package video

import (
	"fmt"
	"strconv"
)

// EncoderOptions select the ffmpeg video encoder and its rate control.
type EncoderOptions struct {
	Encoder string
	Preset  string
	Quality int
	// Threads caps ffmpeg's encoder threads; 0 lets ffmpeg decide.
	Threads int
}

func (o EncoderOptions) encoder() string {
	if o.Encoder == "" {
		return "libx264"
	}
	return o.Encoder
}

// args returns the codec and quality flags. Quality is a CRF for libx264,
// a CQ for NVENC, and hundreds of kbit/s for VideoToolbox.
func (o EncoderOptions) args() []string {
	enc := o.encoder()
	args := []string{"-c:v", enc, "-pix_fmt", "yuv420p"}

	q := o.Quality
	if q <= 0 {
		q = 23
	}
	switch enc {
	case "h264_videotoolbox", "hevc_videotoolbox":
		args = append(args, "-b:v", fmt.Sprintf("%dk", q*100))
	case "h264_nvenc", "hevc_nvenc":
		args = append(args, "-cq", strconv.Itoa(q))
		if o.Preset != "" {
			args = append(args, "-preset", nvencPreset(o.Preset))
		}
	default:
		preset := o.Preset
		if preset == "" {
			preset = "medium"
		}
		args = append(args, "-crf", strconv.Itoa(q), "-preset", preset)
	}
	if o.Threads > 0 {
		args = append(args, "-threads", strconv.Itoa(o.Threads))
	}
	return args
}

// nvencPreset maps x264 preset names onto NVENC's p1..p7 scale.
func nvencPreset(p string) string {
	switch p {
	case "ultrafast", "superfast":
		return "p1"
	case "veryfast", "faster":
		return "p2"
	case "fast":
		return "p3"
	case "medium":
		return "p4"
	case "slow":
		return "p5"
	case "slower":
		return "p6"
	case "veryslow":
		return "p7"
	}
	return p
}

func audioArgs() []string {
	return []string{"-c:a", "aac", "-b:a", "192k"}
}

func containerArgs(out string) []string {
	if ext := extOf(out); ext == "mp4" || ext == "mov" {
		return []string{"-movflags", "+faststart"}
	}
	return nil
}

func extOf(path string) string {
	for i := len(path) - 1; i >= 0 && path[i] != '/'; i-- {
		if path[i] == '.' {
			return path[i+1:]
		}
	}
	return ""
}
