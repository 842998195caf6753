package video

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"io"
	"os/exec"
	"strings"
)

// AudioSource - звуковая дорожка, которую мапим к кадрам.
type AudioSource struct {
	// Path - откуда брать звук; пусто значит без звука.
	Path string
	// Loop зацикливает дорожку до конца видео.
	Loop bool
}

// WriterOptions describe one encoded output file.
type WriterOptions struct {
	Output  string
	Width   int
	Height  int
	FPS     int
	Audio   AudioSource
	Encoder EncoderOptions
}

// FrameWriter отдаёт сырые RGBA-кадры в дочерний процесс ffmpeg.
type FrameWriter struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stderr bytes.Buffer
	w, h   int
}

func NewFrameWriter(ctx context.Context, opts WriterOptions) (*FrameWriter, error) {
	if opts.Width <= 0 || opts.Height <= 0 || opts.FPS <= 0 {
		return nil, fmt.Errorf("frame writer: invalid format %dx%d@%d", opts.Width, opts.Height, opts.FPS)
	}
	fw := &FrameWriter{w: opts.Width, h: opts.Height}
	fw.cmd = exec.CommandContext(ctx, "ffmpeg", buildWriterArgs(opts)...)
	fw.cmd.Stderr = &fw.stderr

	stdin, err := fw.cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe error: %w", err)
	}
	fw.stdin = stdin
	if err := fw.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return fw, nil
}

func buildWriterArgs(opts WriterOptions) []string {
	args := []string{
		"-y", "-v", "error",
		"-f", "rawvideo",
		"-pixel_format", "rgba",
		"-video_size", fmt.Sprintf("%dx%d", opts.Width, opts.Height),
		"-framerate", fmt.Sprintf("%d", opts.FPS),
		"-i", "-",
	}
	if opts.Audio.Path != "" {
		if opts.Audio.Loop {
			args = append(args, "-stream_loop", "-1")
		}
		args = append(args, "-i", opts.Audio.Path, "-map", "0:v:0", "-map", "1:a:0?")
	} else {
		args = append(args, "-map", "0:v:0")
	}

	args = append(args, opts.Encoder.args()...)
	if opts.Audio.Path != "" {
		args = append(args, audioArgs()...)
		args = append(args, "-shortest")
	} else {
		args = append(args, "-an")
	}
	args = append(args, containerArgs(opts.Output)...)
	return append(args, opts.Output)
}

// WriteFrame кодирует один кадр. Кадры другого размера отклоняются.
func (fw *FrameWriter) WriteFrame(img image.Image) error {
	b := img.Bounds()
	if b.Dx() != fw.w || b.Dy() != fw.h {
		return fmt.Errorf("frame size %dx%d, encoder expects %dx%d", b.Dx(), b.Dy(), fw.w, fw.h)
	}
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != b.Dx()*4 || b.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
		draw.Draw(rgba, rgba.Rect, img, b.Min, draw.Src)
	}
	if _, err := fw.stdin.Write(rgba.Pix); err != nil {
		return fmt.Errorf("write raw error: %w: %s", err, fw.stderrText())
	}
	return nil
}

// Close закрывает поток и ждёт, пока ffmpeg допишет файл.
func (fw *FrameWriter) Close() error {
	closeErr := fw.stdin.Close()
	if err := fw.cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg wait error: %w: %s", err, fw.stderrText())
	}
	if closeErr != nil && !errors.Is(closeErr, io.ErrClosedPipe) {
		return closeErr
	}
	return nil
}

func (fw *FrameWriter) stderrText() string {
	return strings.TrimSpace(fw.stderr.String())
}
