package engine

import (
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ivlev/vframe/internal/config"
	"github.com/ivlev/vframe/internal/mediapool"
	"github.com/ivlev/vframe/internal/source"
	"github.com/ivlev/vframe/internal/video"
)

type fakeReader struct {
	n, i int
	w, h int
}

// Next encodes the frame index in the red channel.
func (r *fakeReader) Next() (*image.RGBA, error) {
	if r.i >= r.n {
		return nil, io.EOF
	}
	img := image.NewRGBA(image.Rect(0, 0, r.w, r.h))
	for p := 0; p < len(img.Pix); p += 4 {
		img.Pix[p], img.Pix[p+3] = uint8(r.i), 255
	}
	r.i++
	return img, nil
}

func (r *fakeReader) Close() error { return nil }

type fakeWriter struct {
	m      *fakeMedia
	opts   video.WriterOptions
	failAt int
	count  int
}

func (w *fakeWriter) WriteFrame(img image.Image) error {
	if w.failAt > 0 && w.count == w.failAt {
		return errors.New("disk full")
	}
	w.m.mu.Lock()
	w.m.written = append(w.m.written, img.(*image.RGBA).RGBAAt(img.Bounds().Dx()/2, img.Bounds().Dy()/2))
	w.m.mu.Unlock()
	w.count++
	return nil
}

func (w *fakeWriter) Close() error {
	return os.WriteFile(w.opts.Output, []byte("video"), 0o644)
}

type fakeMedia struct {
	mu        sync.Mutex
	frames    int
	info      source.Info
	durations map[string]float64
	failAt    int

	readOpts   source.ReadOptions
	writerOpts video.WriterOptions
	concat     *video.ConcatOptions
	written    []color.RGBA
}

func (m *fakeMedia) Probe(_ context.Context, path string) (source.Info, error) {
	return m.info, nil
}

func (m *fakeMedia) Duration(_ context.Context, path string) (float64, error) {
	return m.durations[filepath.Base(path)], nil
}

func (m *fakeMedia) OpenReader(_ context.Context, _ string, opts source.ReadOptions) (FrameSource, error) {
	m.readOpts = opts
	return &fakeReader{n: m.frames, w: opts.Width, h: opts.Height}, nil
}

func (m *fakeMedia) OpenWriter(_ context.Context, opts video.WriterOptions) (FrameSink, error) {
	m.writerOpts = opts
	return &fakeWriter{m: m, opts: opts, failAt: m.failAt}, nil
}

func (m *fakeMedia) Concatenate(_ context.Context, opts video.ConcatOptions) error {
	m.concat = &opts
	for _, c := range opts.Clips {
		if _, err := os.Stat(c.Path); err != nil {
			return err
		}
	}
	return os.WriteFile(opts.Output, []byte("joined"), 0o644)
}

func touch(t *testing.T, path string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func smallJob(t *testing.T) config.RenderJob {
	dir := t.TempDir()
	return config.RenderJob{
		InputPath: touch(t, filepath.Join(dir, "in", "clip.mp4")),
		OutputDir: filepath.Join(dir, "out"),
		Width:     108,
		Height:    192,
		FPS:       10,
		Tab:       2,
	}
}

func newTestRenderer(m *fakeMedia) *Renderer {
	return New(nil, nil, WithMedia(m), WithWorkers(3), WithSelector(mediapool.NewSelector(1)))
}

func TestRenderVideoWritesFramesInOrder(t *testing.T) {
	m := &fakeMedia{frames: 25, info: source.Info{Width: 1920, Height: 1080, HasAudio: true}}
	job := smallJob(t)

	out, err := newTestRenderer(m).RenderVideo(context.Background(), job)
	if err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	if want := filepath.Join(job.OutputDir, "clip_aba2.mp4"); out != want {
		t.Fatalf("output = %q, want %q", out, want)
	}
	if len(m.written) != 25 {
		t.Fatalf("wrote %d frames, want 25", len(m.written))
	}
	for i, px := range m.written {
		if int(px.R) != i {
			t.Fatalf("frame %d carries index %d", i, px.R)
		}
	}
	if m.readOpts.Width != 108 || m.readOpts.Height != 192 || m.readOpts.FPS != 10 {
		t.Fatalf("read options = %+v", m.readOpts)
	}
	if m.writerOpts.Audio.Path != job.InputPath {
		t.Fatalf("keep policy should mux the input audio, got %+v", m.writerOpts.Audio)
	}
}

func TestRenderVideoBorderShrinksDecodeSize(t *testing.T) {
	m := &fakeMedia{frames: 2, info: source.Info{Width: 1920, Height: 1080}}
	job := smallJob(t)
	job.BorderEnabled = true
	job.Style = "frame"

	if _, err := newTestRenderer(m).RenderVideo(context.Background(), job); err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	if m.readOpts.Width != 84 || m.readOpts.Height != 134 {
		t.Fatalf("decode size = %dx%d, want 84x134", m.readOpts.Width, m.readOpts.Height)
	}
	if m.writerOpts.Audio.Path != "" {
		t.Fatalf("input without audio should encode silent, got %+v", m.writerOpts.Audio)
	}
}

func TestRenderVideoMissingInput(t *testing.T) {
	m := &fakeMedia{frames: 1}
	job := smallJob(t)
	job.InputPath = filepath.Join(t.TempDir(), "missing.mp4")

	_, err := newTestRenderer(m).RenderVideo(context.Background(), job)
	if !errors.Is(err, config.ErrInputMissing) {
		t.Fatalf("err = %v, want ErrInputMissing", err)
	}
}

func TestRenderVideoReplaceAudio(t *testing.T) {
	music := t.TempDir()
	touch(t, filepath.Join(music, "a.mp3"))
	touch(t, filepath.Join(music, "b.mp3"))
	touch(t, filepath.Join(music, "notes.txt"))

	tests := []struct {
		name       string
		fit        config.AudioFit
		wantTrack  string
		wantLoop   bool
		wantMaxDur float64
	}{
		{"loop", config.FitLoop, "b.mp3", true, 0},
		{"trim video", config.FitTrimVideo, "b.mp3", false, 4.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &fakeMedia{frames: 3, info: source.Info{HasAudio: true}, durations: map[string]float64{"b.mp3": 4.5}}
			job := smallJob(t)
			job.Audio = config.AudioOptions{Mode: config.AudioReplace, Folder: music, Fit: tt.fit}

			if _, err := newTestRenderer(m).RenderVideo(context.Background(), job); err != nil {
				t.Fatalf("RenderVideo: %v", err)
			}
			if got := filepath.Base(m.writerOpts.Audio.Path); got != tt.wantTrack {
				t.Errorf("track = %q, want %q", got, tt.wantTrack)
			}
			if m.writerOpts.Audio.Loop != tt.wantLoop {
				t.Errorf("loop = %v, want %v", m.writerOpts.Audio.Loop, tt.wantLoop)
			}
			if m.readOpts.MaxDuration != tt.wantMaxDur {
				t.Errorf("max duration = %v, want %v", m.readOpts.MaxDuration, tt.wantMaxDur)
			}
		})
	}
}

func TestRenderVideoReplaceAudioFollowsSlot(t *testing.T) {
	music := t.TempDir()
	for _, name := range []string{"a.mp3", "b.mp3", "c.mp3"} {
		touch(t, filepath.Join(music, name))
	}
	m := &fakeMedia{frames: 1}
	job := smallJob(t)
	job.Audio = config.AudioOptions{Mode: config.AudioReplace, Folder: music}
	job.AudioSlot = 5

	if _, err := newTestRenderer(m).RenderVideo(context.Background(), job); err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	if got := filepath.Base(m.writerOpts.Audio.Path); got != "c.mp3" {
		t.Fatalf("track = %q, want c.mp3", got)
	}
}

func TestRenderVideoReplaceAudioEmptyFolder(t *testing.T) {
	m := &fakeMedia{frames: 1}
	job := smallJob(t)
	job.Audio = config.AudioOptions{Mode: config.AudioReplace, Folder: t.TempDir()}

	if _, err := newTestRenderer(m).RenderVideo(context.Background(), job); !errors.Is(err, ErrNoAudio) {
		t.Fatalf("err = %v, want ErrNoAudio", err)
	}
}

func TestRenderVideoRemoveAudio(t *testing.T) {
	m := &fakeMedia{frames: 1, info: source.Info{HasAudio: true}}
	job := smallJob(t)
	job.Audio.Mode = config.AudioRemove

	if _, err := newTestRenderer(m).RenderVideo(context.Background(), job); err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	if m.writerOpts.Audio.Path != "" {
		t.Fatalf("audio = %+v, want none", m.writerOpts.Audio)
	}
}

func TestRenderVideoConcatenatesExtras(t *testing.T) {
	m := &fakeMedia{frames: 20, info: source.Info{Duration: 3}}
	job := smallJob(t)
	job.MergeClip = touch(t, filepath.Join(t.TempDir(), "merge.mp4"))
	job.CTAClip = touch(t, filepath.Join(t.TempDir(), "cta.mp4"))
	job.ClipFit = config.ClipCrop

	out, err := newTestRenderer(m).RenderVideo(context.Background(), job)
	if err != nil {
		t.Fatalf("RenderVideo: %v", err)
	}
	if m.concat == nil || len(m.concat.Clips) != 3 {
		t.Fatalf("concat = %+v", m.concat)
	}
	if m.concat.Output != out || m.concat.Fit != "crop" {
		t.Fatalf("concat options = %+v", m.concat)
	}
	if d := m.concat.Clips[0].Duration; d != 2 {
		t.Fatalf("main clip duration = %v, want 2", d)
	}
	if _, err := os.Stat(m.concat.Clips[0].Path); !os.IsNotExist(err) {
		t.Fatalf("temporary main render not removed: %v", err)
	}
	if data, _ := os.ReadFile(out); string(data) != "joined" {
		t.Fatalf("output = %q", data)
	}
}

func TestRenderVideoEncodeFailureRemovesOutput(t *testing.T) {
	m := &fakeMedia{frames: 30, failAt: 5}
	job := smallJob(t)

	_, err := newTestRenderer(m).RenderVideo(context.Background(), job)
	if err == nil {
		t.Fatal("expected encode error")
	}
	if _, statErr := os.Stat(job.ResolveOutputPath()); !os.IsNotExist(statErr) {
		t.Fatalf("partial output left behind: %v", statErr)
	}
}
