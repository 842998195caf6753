// Package config holds the per-job render parameters and the persisted
// application settings.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/ivlev/vframe/internal/compositor"
	"github.com/ivlev/vframe/internal/subtitle"
)

// ErrInputMissing reports a job without a usable input video.
var ErrInputMissing = errors.New("input video missing")

type AudioMode string

const (
	AudioKeep    AudioMode = "keep"
	AudioRemove  AudioMode = "remove"
	AudioReplace AudioMode = "replace"
)

// AudioFit decides how a replacement track and the video are reconciled
// when their durations differ.
type AudioFit string

const (
	// FitLoop loops or trims the audio to the video length.
	FitLoop AudioFit = "loop"
	// FitTrimVideo cuts the video to the replacement track's length.
	FitTrimVideo AudioFit = "trim_video"
)

// ClipFit is how appended clips are adapted to the output aspect.
type ClipFit string

const (
	ClipLetterbox ClipFit = "letterbox"
	ClipCrop      ClipFit = "crop"
)

type AudioOptions struct {
	Mode   AudioMode `yaml:"mode,omitempty" json:"mode,omitempty"`
	Folder string    `yaml:"folder,omitempty" json:"folder,omitempty"`
	Fit    AudioFit  `yaml:"fit,omitempty" json:"fit,omitempty"`
	Random bool      `yaml:"random,omitempty" json:"random,omitempty"`
}

// RenderJob is the resolved parameter set for one compositing run.
type RenderJob struct {
	InputPath  string
	OutputPath string
	// OutputDir is used when OutputPath is empty; the file name is derived
	// from the input and the tab.
	OutputDir    string
	OutputFormat string

	Width  int
	Height int
	FPS    int

	Style         string
	BorderEnabled bool
	BorderSize    float64
	BorderColor   subtitle.Color
	GradientColor subtitle.Color
	BlurRadius    int

	Subtitles  []subtitle.Subtitle
	EmojiScale float64
	Watermark  *compositor.Watermark
	Logo       *compositor.Logo

	Audio     AudioOptions
	MergeClip string
	CTAClip   string
	ClipFit   ClipFit
	Enhance   bool

	Threads      int
	VideoEncoder string
	Preset       string
	Quality      int

	// Tab is the 1-based tab number; 0 when the job has no tab.
	Tab int
	// AudioSlot is the position of the job in the sequential audio rotation
	// of a run. Jobs built for one input leave it at Tab-1.
	AudioSlot int
	Timeout   time.Duration
}

// AudioTrack is the index into the replacement folder for sequential audio.
func (j RenderJob) AudioTrack() int {
	return max(0, j.Tab-1, j.AudioSlot)
}

// WithDefaults fills zero values with the 1080x1920 30fps defaults.
func (j RenderJob) WithDefaults() RenderJob {
	if j.Width <= 0 {
		j.Width = compositor.DefaultWidth
	}
	if j.Height <= 0 {
		j.Height = compositor.DefaultHeight
	}
	if j.FPS <= 0 {
		j.FPS = 30
	}
	if j.EmojiScale <= 0 {
		j.EmojiScale = 1
	}
	if j.BlurRadius <= 0 {
		j.BlurRadius = 40
	}
	if j.Audio.Mode == "" {
		j.Audio.Mode = AudioKeep
	}
	if j.Audio.Fit == "" {
		j.Audio.Fit = FitLoop
	}
	if j.ClipFit == "" {
		j.ClipFit = ClipLetterbox
	}
	if j.OutputFormat == "" {
		j.OutputFormat = DefaultOutputFormat
	}
	if j.Preset == "" {
		j.Preset = "medium"
	}
	if j.Quality <= 0 {
		j.Quality = 23
	}
	return j
}

// Validate rejects jobs that cannot start. It does not touch the filesystem.
func (j RenderJob) Validate() error {
	if strings.TrimSpace(j.InputPath) == "" {
		return ErrInputMissing
	}
	switch j.Audio.Mode {
	case "", AudioKeep, AudioRemove:
	case AudioReplace:
		if j.Audio.Folder == "" {
			return fmt.Errorf("audio replace: no audio folder set")
		}
	default:
		return fmt.Errorf("audio mode: unsupported value %q", j.Audio.Mode)
	}
	switch j.Audio.Fit {
	case "", FitLoop, FitTrimVideo:
	default:
		return fmt.Errorf("audio fit: unsupported value %q", j.Audio.Fit)
	}
	return nil
}

// ResolveOutputPath names the output {base}_aba{tab}.{ext}, or
// {base}_render.{ext} without a tab, inside OutputDir (or next to the input).
func (j RenderJob) ResolveOutputPath() string {
	if j.OutputPath != "" {
		return j.OutputPath
	}
	ext := strings.TrimPrefix(j.OutputFormat, ".")
	if ext == "" {
		ext = DefaultOutputFormat
	}
	base := strings.TrimSuffix(filepath.Base(j.InputPath), filepath.Ext(j.InputPath))
	name := base + "_render." + ext
	if j.Tab > 0 {
		name = fmt.Sprintf("%s_aba%d.%s", base, j.Tab, ext)
	}
	dir := j.OutputDir
	if dir == "" {
		dir = filepath.Dir(j.InputPath)
	}
	return filepath.Join(dir, name)
}

// FrameParams maps the job's static compositing parameters. Time and the
// blurred background are filled per frame.
func (j RenderJob) FrameParams() compositor.FrameParams {
	return compositor.FrameParams{
		Style:         j.Style,
		BorderEnabled: j.BorderEnabled,
		BorderSize:    j.BorderSize,
		BorderColor:   j.BorderColor,
		GradientColor: j.GradientColor,
		Subtitles:     j.Subtitles,
		EmojiScale:    j.EmojiScale,
		Watermark:     j.Watermark,
		Logo:          j.Logo,
	}
}
