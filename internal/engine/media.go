package engine

import (
	"context"
	"image"

	"github.com/ivlev/vframe/internal/source"
	"github.com/ivlev/vframe/internal/system"
	"github.com/ivlev/vframe/internal/video"
)

// FrameSource yields decoded frames until io.EOF.
type FrameSource interface {
	Next() (*image.RGBA, error)
	Close() error
}

// FrameSink consumes composited frames in presentation order.
type FrameSink interface {
	WriteFrame(img image.Image) error
	Close() error
}

// Media is the set of external tool operations a render needs.
type Media interface {
	Probe(ctx context.Context, path string) (source.Info, error)
	// Duration works for audio-only files, which Probe rejects.
	Duration(ctx context.Context, path string) (float64, error)
	OpenReader(ctx context.Context, path string, opts source.ReadOptions) (FrameSource, error)
	OpenWriter(ctx context.Context, opts video.WriterOptions) (FrameSink, error)
	Concatenate(ctx context.Context, opts video.ConcatOptions) error
}

// FFmpeg implements Media with the ffmpeg and ffprobe binaries.
type FFmpeg struct{}

func (FFmpeg) Probe(ctx context.Context, path string) (source.Info, error) {
	return source.Probe(ctx, path)
}

func (FFmpeg) Duration(ctx context.Context, path string) (float64, error) {
	return system.MediaDuration(ctx, path)
}

func (FFmpeg) OpenReader(ctx context.Context, path string, opts source.ReadOptions) (FrameSource, error) {
	return source.NewFrameReader(ctx, path, opts)
}

func (FFmpeg) OpenWriter(ctx context.Context, opts video.WriterOptions) (FrameSink, error) {
	return video.NewFrameWriter(ctx, opts)
}

func (FFmpeg) Concatenate(ctx context.Context, opts video.ConcatOptions) error {
	return video.Concatenate(ctx, opts)
}
