package video

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"github.com/ivlev/vframe/internal/effects"
)

// Clip is one concat input.
type Clip struct {
	Path     string
	HasAudio bool
	// Duration нужна, чтобы сгенерировать тишину, если HasAudio false.
	Duration float64
}

type ConcatOptions struct {
	Clips   []Clip
	Output  string
	Width   int
	Height  int
	FPS     int
	Fit     effects.Fit
	Encoder EncoderOptions
}

// Concatenate склеивает клипы в один файл с перекодированием. Каждый клип
// приводится к размеру выхода, клипам без звука добавляется тишина,
// чтобы звук не разъезжался.
func Concatenate(ctx context.Context, opts ConcatOptions) error {
	if len(opts.Clips) == 0 {
		return fmt.Errorf("concatenate: no clips")
	}
	cmd := exec.CommandContext(ctx, "ffmpeg", buildConcatArgs(opts)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("ffmpeg concat error: %w, output: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

func buildConcatArgs(opts ConcatOptions) []string {
	args := []string{"-y", "-v", "error"}
	for _, c := range opts.Clips {
		args = append(args, "-i", c.Path)
	}

	var graph, inputs strings.Builder
	for i, c := range opts.Clips {
		fmt.Fprintf(&graph, "[%d:v]%s[v%d];", i, effects.ClipFilter(opts.Width, opts.Height, opts.FPS, opts.Fit), i)
		if c.HasAudio {
			fmt.Fprintf(&graph, "[%d:a]%s[a%d];", i, effects.AudioNormalizeFilter(), i)
		} else {
			fmt.Fprintf(&graph, "%s[a%d];", effects.SilenceFilter(c.Duration), i)
		}
		fmt.Fprintf(&inputs, "[v%d][a%d]", i, i)
	}
	fmt.Fprintf(&graph, "%sconcat=n=%d:v=1:a=1[vout][aout]", inputs.String(), len(opts.Clips))

	args = append(args, "-filter_complex", graph.String(), "-map", "[vout]", "-map", "[aout]")
	args = append(args, opts.Encoder.args()...)
	args = append(args, audioArgs()...)
	args = append(args, containerArgs(opts.Output)...)
	return append(args, opts.Output)
}
