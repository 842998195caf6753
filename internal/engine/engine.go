// Package engine runs one render job end to end: audio policy, the
// decode/composite/encode pipeline and the final clip concatenation.
package engine

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ivlev/vframe/internal/compositor"
	"github.com/ivlev/vframe/internal/config"
	"github.com/ivlev/vframe/internal/effects"
	"github.com/ivlev/vframe/internal/logging"
	"github.com/ivlev/vframe/internal/mediapool"
	"github.com/ivlev/vframe/internal/source"
	"github.com/ivlev/vframe/internal/subtitle"
	"github.com/ivlev/vframe/internal/system"
	"github.com/ivlev/vframe/internal/video"
)

// ErrNoAudio reports a replace policy whose folder holds no audio files.
var ErrNoAudio = errors.New("no audio files available")

// Renderer turns RenderJobs into encoded files. It is safe for concurrent
// use; the subtitle cache and frame pool are shared across jobs.
type Renderer struct {
	media    Media
	cache    *subtitle.Cache
	images   compositor.ImageLoader
	frames   *system.FramePool
	enhancer effects.Enhancer
	selector *mediapool.Selector
	workers  int
	logger   *zap.Logger
}

type Option func(*Renderer)

func WithMedia(m Media) Option { return func(r *Renderer) { r.media = m } }

func WithImageLoader(l compositor.ImageLoader) Option { return func(r *Renderer) { r.images = l } }

func WithEnhancer(e effects.Enhancer) Option { return func(r *Renderer) { r.enhancer = e } }

func WithSelector(s *mediapool.Selector) Option { return func(r *Renderer) { r.selector = s } }

// WithWorkers sets the number of compositing goroutines per job.
func WithWorkers(n int) Option {
	return func(r *Renderer) {
		if n > 0 {
			r.workers = n
		}
	}
}

func New(cache *subtitle.Cache, logger *zap.Logger, opts ...Option) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cache == nil {
		cache = subtitle.NewCache(nil, nil)
	}
	r := &Renderer{
		media:    FFmpeg{},
		cache:    cache,
		images:   source.ImageLoader{},
		frames:   system.NewFramePool(),
		enhancer: effects.Sharpen{Amount: 0.6},
		selector: mediapool.NewSelector(time.Now().UnixNano()),
		workers:  max(1, runtime.NumCPU()/2),
		logger:   logger,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// RenderVideo renders job and returns the path of the written file.
func (r *Renderer) RenderVideo(ctx context.Context, job config.RenderJob) (string, error) {
	job = job.WithDefaults()
	if err := job.Validate(); err != nil {
		return "", err
	}
	if _, err := os.Stat(job.InputPath); err != nil {
		return "", fmt.Errorf("%w: %s", config.ErrInputMissing, job.InputPath)
	}
	if job.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, job.Timeout)
		defer cancel()
	}

	logger := r.logger.With(zap.String(logging.FieldJob, filepath.Base(job.InputPath)))
	if job.Tab > 0 {
		logger = logger.With(zap.Int(logging.FieldTab, job.Tab))
	}
	start := time.Now()

	info, err := r.media.Probe(ctx, job.InputPath)
	if err != nil {
		return "", err
	}
	audio, maxDuration, err := r.resolveAudio(ctx, job, info)
	if err != nil {
		return "", err
	}

	out := job.ResolveOutputPath()
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	extras := r.extraClips(job)
	mainPath := out
	if len(extras) > 0 {
		mainPath = tempSibling(out, "main")
	}

	frames, err := r.renderMain(ctx, job, mainPath, audio, maxDuration)
	if err != nil {
		os.Remove(mainPath)
		return "", err
	}
	logger.Debug("main render encoded", zap.Int("frames", frames), zap.String("path", mainPath))

	if len(extras) > 0 {
		err := r.concat(ctx, job, out, mainPath, audio.Path != "", float64(frames)/float64(job.FPS), extras)
		os.Remove(mainPath)
		if err != nil {
			os.Remove(out)
			return "", err
		}
	}

	logger.Info("render finished",
		zap.String("output", out),
		zap.Int("frames", frames),
		zap.Duration("elapsed", time.Since(start)))
	return out, nil
}

// resolveAudio applies the audio policy. maxDuration is non-zero when the
// video must be cut to a replacement track.
func (r *Renderer) resolveAudio(ctx context.Context, job config.RenderJob, info source.Info) (video.AudioSource, float64, error) {
	switch job.Audio.Mode {
	case config.AudioRemove:
		return video.AudioSource{}, 0, nil
	case config.AudioReplace:
		tracks, err := system.ListMedia(job.Audio.Folder, system.AudioExtensions)
		if err != nil {
			return video.AudioSource{}, 0, fmt.Errorf("list audio folder: %w", err)
		}
		mode := mediapool.Sequential
		if job.Audio.Random {
			mode = mediapool.Random
		}
		track, ok := r.selector.Pick(tracks, job.AudioTrack(), mode)
		if !ok {
			return video.AudioSource{}, 0, fmt.Errorf("%w in %s", ErrNoAudio, job.Audio.Folder)
		}
		if job.Audio.Fit == config.FitTrimVideo {
			d, err := r.media.Duration(ctx, track)
			if err != nil {
				return video.AudioSource{}, 0, err
			}
			return video.AudioSource{Path: track}, d, nil
		}
		return video.AudioSource{Path: track, Loop: true}, 0, nil
	default:
		if !info.HasAudio {
			return video.AudioSource{}, 0, nil
		}
		return video.AudioSource{Path: job.InputPath}, 0, nil
	}
}

type frameItem struct {
	index int
	img   *image.RGBA
}

// renderMain runs decode -> composite -> encode and returns the frame count.
func (r *Renderer) renderMain(ctx context.Context, job config.RenderJob, out string, audio video.AudioSource, maxDuration float64) (int, error) {
	comp := compositor.New(compositor.Options{Width: job.Width, Height: job.Height}, r.cache, r.images, r.frames, r.logger)
	base := job.FrameParams()
	geom := comp.Geometry(base)
	blurred := compositor.NeedsBlurredBackground(job.Style)

	reader, err := r.media.OpenReader(ctx, job.InputPath, source.ReadOptions{
		Width:       geom.InnerW,
		Height:      geom.InnerH,
		FPS:         job.FPS,
		Filter:      effects.ScaleFilter(geom.InnerW, geom.InnerH, effects.Crop),
		MaxDuration: maxDuration,
	})
	if err != nil {
		return 0, err
	}

	writer, err := r.media.OpenWriter(ctx, video.WriterOptions{
		Output: out,
		Width:  job.Width,
		Height: job.Height,
		FPS:    job.FPS,
		Audio:  audio,
		Encoder: video.EncoderOptions{
			Encoder: job.VideoEncoder,
			Preset:  job.Preset,
			Quality: job.Quality,
			Threads: job.Threads,
		},
	})
	if err != nil {
		reader.Close()
		return 0, err
	}

	g, gctx := errgroup.WithContext(ctx)
	decoded := make(chan frameItem, r.workers*2)
	composed := make(chan frameItem, r.workers*2)

	g.Go(func() error {
		defer close(decoded)
		for i := 0; ; i++ {
			img, err := reader.Next()
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return fmt.Errorf("decode frame %d: %w", i, err)
			}
			select {
			case decoded <- frameItem{index: i, img: img}:
			case <-gctx.Done():
				return gctx.Err()
			}
		}
	})

	workers, wctx := errgroup.WithContext(gctx)
	for w := 0; w < r.workers; w++ {
		workers.Go(func() error {
			for {
				var it frameItem
				select {
				case next, ok := <-decoded:
					if !ok {
						return nil
					}
					it = next
				case <-wctx.Done():
					return wctx.Err()
				}
				canvas, err := r.composite(wctx, comp, job, base, blurred, it)
				if err != nil {
					return err
				}
				select {
				case composed <- frameItem{index: it.index, img: canvas}:
				case <-wctx.Done():
					comp.Release(canvas)
					return wctx.Err()
				}
			}
		})
	}
	g.Go(func() error {
		defer close(composed)
		return workers.Wait()
	})

	frames := 0
	g.Go(func() error {
		pending := make(map[int]*image.RGBA)
		defer func() {
			for _, img := range pending {
				comp.Release(img)
			}
		}()
		for it := range composed {
			pending[it.index] = it.img
			for img, ok := pending[frames]; ok; img, ok = pending[frames] {
				delete(pending, frames)
				err := writer.WriteFrame(img)
				comp.Release(img)
				if err != nil {
					return fmt.Errorf("encode frame %d: %w", frames, err)
				}
				frames++
			}
		}
		return nil
	})

	pipeErr := g.Wait()
	readErr := reader.Close()
	writeErr := writer.Close()
	switch {
	case pipeErr != nil:
		return 0, pipeErr
	case readErr != nil:
		return 0, readErr
	case writeErr != nil:
		return 0, writeErr
	case frames == 0:
		return 0, fmt.Errorf("no frames decoded from %s", job.InputPath)
	}
	return frames, nil
}

func (r *Renderer) composite(ctx context.Context, comp *compositor.Compositor, job config.RenderJob, base compositor.FrameParams, blurred bool, it frameItem) (*image.RGBA, error) {
	frame := it.img
	if job.Enhance && r.enhancer != nil {
		enhanced, err := r.enhancer.Enhance(ctx, frame)
		if err != nil {
			return nil, fmt.Errorf("enhance frame %d: %w", it.index, err)
		}
		frame = enhanced
	}

	p := base
	p.Time = float64(it.index) / float64(job.FPS)
	if blurred {
		p.Background = compositor.BlurredBackground(frame, job.Width, job.Height, job.BlurRadius)
	}
	canvas, err := comp.RenderFrame(frame, p)
	if err != nil {
		comp.Release(canvas)
		return nil, fmt.Errorf("composite frame %d: %w", it.index, err)
	}
	return canvas, nil
}

func (r *Renderer) extraClips(job config.RenderJob) []string {
	var clips []string
	for _, c := range []string{job.MergeClip, job.CTAClip} {
		if strings.TrimSpace(c) != "" {
			clips = append(clips, c)
		}
	}
	return clips
}

func (r *Renderer) concat(ctx context.Context, job config.RenderJob, out, mainPath string, mainAudio bool, mainDuration float64, extras []string) error {
	clips := []video.Clip{{Path: mainPath, HasAudio: mainAudio, Duration: mainDuration}}
	for _, path := range extras {
		info, err := r.media.Probe(ctx, path)
		if err != nil {
			return fmt.Errorf("probe clip %s: %w", path, err)
		}
		clips = append(clips, video.Clip{Path: path, HasAudio: info.HasAudio, Duration: info.Duration})
	}
	return r.media.Concatenate(ctx, video.ConcatOptions{
		Clips:  clips,
		Output: out,
		Width:  job.Width,
		Height: job.Height,
		FPS:    job.FPS,
		Fit:    effects.ParseFit(string(job.ClipFit)),
		Encoder: video.EncoderOptions{
			Encoder: job.VideoEncoder,
			Preset:  job.Preset,
			Quality: job.Quality,
			Threads: job.Threads,
		},
	})
}

// tempSibling names a hidden work file next to path with the same extension.
func tempSibling(path, tag string) string {
	dir, name := filepath.Split(path)
	ext := filepath.Ext(name)
	return filepath.Join(dir, "."+strings.TrimSuffix(name, ext)+"."+tag+ext)
}
