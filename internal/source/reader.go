package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os/exec"
	"strings"
)

// ReadOptions controls how ffmpeg decodes the input.
type ReadOptions struct {
	Width  int
	Height int
	FPS    int
	// Filter is an ffmpeg video filter chain that must produce Width x Height.
	Filter string
	// MaxDuration stops decoding after this many seconds; 0 reads everything.
	MaxDuration float64
}

// FrameReader читает декодированные RGBA-кадры из дочернего ffmpeg.
type FrameReader struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	w, h   int
	done   bool
}

func NewFrameReader(ctx context.Context, path string, opts ReadOptions) (*FrameReader, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("frame reader: invalid size %dx%d", opts.Width, opts.Height)
	}

	args := []string{"-v", "error", "-nostdin", "-i", path}
	if opts.MaxDuration > 0 {
		args = append(args, "-t", fmt.Sprintf("%.3f", opts.MaxDuration))
	}
	vf := opts.Filter
	if opts.FPS > 0 {
		vf = joinFilters(vf, fmt.Sprintf("fps=%d", opts.FPS))
	}
	if vf != "" {
		args = append(args, "-vf", vf)
	}
	args = append(args, "-an", "-f", "rawvideo", "-pix_fmt", "rgba", "-")

	r := &FrameReader{w: opts.Width, h: opts.Height}
	r.cmd = exec.CommandContext(ctx, "ffmpeg", args...)
	r.cmd.Stderr = &r.stderr
	stdout, err := r.cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe error: %w", err)
	}
	r.stdout = stdout
	if err := r.cmd.Start(); err != nil {
		return nil, fmt.Errorf("ffmpeg start error: %w", err)
	}
	return r, nil
}

// Next возвращает следующий кадр или io.EOF после последнего.
func (r *FrameReader) Next() (*image.RGBA, error) {
	if r.done {
		return nil, io.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, r.w, r.h))
	if _, err := io.ReadFull(r.stdout, img.Pix); err != nil {
		r.done = true
		if errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("truncated frame: %s", strings.TrimSpace(r.stderr.String()))
		}
		return nil, err
	}
	return img, nil
}

// Close stops the decoder and reports ffmpeg failures.
func (r *FrameReader) Close() error {
	r.stdout.Close()
	if err := r.cmd.Wait(); err != nil {
		if r.done {
			return fmt.Errorf("ffmpeg decode error: %w: %s", err, strings.TrimSpace(r.stderr.String()))
		}
		// Закрыли раньше сами, обрыв пайпа ожидаем.
		return nil
	}
	return nil
}

func joinFilters(a, b string) string {
	switch {
	case a == "":
		return b
	case b == "":
		return a
	}
	return a + "," + b
}
