package video

import (
	"strings"
	"testing"

	"github.com/ivlev/vframe/internal/effects"
)

func TestEncoderArgs(t *testing.T) {
	tests := []struct {
		name string
		opts EncoderOptions
		want string
	}{
		{"x264 default", EncoderOptions{}, "-c:v libx264 -pix_fmt yuv420p -crf 23 -preset medium"},
		{"x264 threads", EncoderOptions{Encoder: "libx264", Preset: "fast", Quality: 20, Threads: 4}, "-c:v libx264 -pix_fmt yuv420p -crf 20 -preset fast -threads 4"},
		{"nvenc", EncoderOptions{Encoder: "h264_nvenc", Preset: "slow", Quality: 28}, "-c:v h264_nvenc -pix_fmt yuv420p -cq 28 -preset p5"},
		{"videotoolbox", EncoderOptions{Encoder: "h264_videotoolbox", Quality: 75}, "-c:v h264_videotoolbox -pix_fmt yuv420p -b:v 7500k"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := strings.Join(tt.opts.args(), " "); got != tt.want {
				t.Errorf("args() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWriterArgsAudio(t *testing.T) {
	base := WriterOptions{Output: "/out/a.mp4", Width: 1080, Height: 1920, FPS: 30}

	silent := strings.Join(buildWriterArgs(base), " ")
	if !strings.Contains(silent, "-an") || strings.Contains(silent, "-shortest") {
		t.Errorf("silent args = %s", silent)
	}

	looped := base
	looped.Audio = AudioSource{Path: "/music/x.mp3", Loop: true}
	got := strings.Join(buildWriterArgs(looped), " ")
	for _, part := range []string{"-stream_loop -1 -i /music/x.mp3", "-map 1:a:0?", "-shortest", "-c:a aac", "-movflags +faststart"} {
		if !strings.Contains(got, part) {
			t.Errorf("looped args missing %q: %s", part, got)
		}
	}
	if !strings.HasSuffix(got, "/out/a.mp4") {
		t.Errorf("output must come last: %s", got)
	}
}

func TestConcatArgsSynthesizesSilence(t *testing.T) {
	opts := ConcatOptions{
		Clips: []Clip{
			{Path: "main.mp4", HasAudio: true},
			{Path: "cta.mp4", HasAudio: false, Duration: 3},
		},
		Output: "out.mkv",
		Width:  1080, Height: 1920, FPS: 30,
		Fit: effects.Crop,
	}
	args := buildConcatArgs(opts)
	var graph string
	for i, a := range args {
		if a == "-filter_complex" {
			graph = args[i+1]
		}
	}
	if !strings.Contains(graph, "[0:a]aresample") {
		t.Errorf("main audio not normalized: %s", graph)
	}
	if !strings.Contains(graph, "anullsrc") || !strings.Contains(graph, "atrim=duration=3.000") {
		t.Errorf("missing silence for clip without audio: %s", graph)
	}
	if !strings.Contains(graph, "[v0][a0][v1][a1]concat=n=2:v=1:a=1[vout][aout]") {
		t.Errorf("concat node = %s", graph)
	}
	if strings.Contains(strings.Join(args, " "), "faststart") {
		t.Error("faststart only applies to mp4/mov")
	}
}
