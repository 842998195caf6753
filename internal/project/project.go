// Package project reads and writes YAML project files. A project is a set of
// tabs, each describing one render of the same input with its own layout.
package project

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ivlev/vframe/internal/compositor"
	"github.com/ivlev/vframe/internal/config"
	"github.com/ivlev/vframe/internal/mediapool"
	"github.com/ivlev/vframe/internal/subtitle"
)

const Version = "1"

// Project is the on-disk document.
type Project struct {
	Version     string         `yaml:"version"`
	Input       string         `yaml:"input,omitempty"`
	OutputDir   string         `yaml:"output_dir,omitempty"`
	GlobalStyle subtitle.Style `yaml:"global_style,omitempty"`
	MediaPool   mediapool.Pool `yaml:"media_pool,omitempty"`
	Tabs        []Tab          `yaml:"tabs"`
}

// Border is the frame drawn around the inner video area.
type Border struct {
	Enabled bool           `yaml:"enabled"`
	Size    float64        `yaml:"size,omitempty"`
	Color   subtitle.Color `yaml:"color,omitempty"`
}

// Tab is one output variant.
type Tab struct {
	Name string `yaml:"name,omitempty"`
	// Input and OutputDir override the project-level values.
	Input         string                `yaml:"input,omitempty"`
	Output        string                `yaml:"output,omitempty"`
	OutputDir     string                `yaml:"output_dir,omitempty"`
	Format        string                `yaml:"format,omitempty"`
	Style         string                `yaml:"style,omitempty"`
	Border        Border                `yaml:"border,omitempty"`
	GradientColor subtitle.Color        `yaml:"gradient_color,omitempty"`
	BlurRadius    int                   `yaml:"blur_radius,omitempty"`
	Subtitles     []subtitle.Subtitle   `yaml:"subtitles,omitempty"`
	EmojiScale    float64               `yaml:"emoji_scale,omitempty"`
	Watermark     *compositor.Watermark `yaml:"watermark,omitempty"`
	Logo          *compositor.Logo      `yaml:"logo,omitempty"`
	Audio         config.AudioOptions   `yaml:"audio,omitempty"`
	MergeClip     string                `yaml:"merge_clip,omitempty"`
	CTAClip       string                `yaml:"cta_clip,omitempty"`
	ClipFit       config.ClipFit        `yaml:"clip_fit,omitempty"`
	Enhance       bool                  `yaml:"enhance,omitempty"`
	Disabled      bool                  `yaml:"disabled,omitempty"`
}

// Default is a single tab with the default layout, used when no project
// file is given.
func Default() *Project {
	return &Project{Version: Version, Tabs: []Tab{{Name: "main"}}}
}

// Read loads a project file. Relative paths inside it resolve against the
// file's directory.
func Read(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse project %s: %w", path, err)
	}
	p.resolvePaths(filepath.Dir(path))
	return &p, nil
}

// Write stores p as YAML.
func Write(p *Project, path string) error {
	if p.Version == "" {
		p.Version = Version
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func (p *Project) resolvePaths(base string) {
	abs := func(s string) string {
		if s == "" || filepath.IsAbs(s) {
			return s
		}
		return filepath.Join(base, s)
	}
	p.Input = abs(p.Input)
	p.OutputDir = abs(p.OutputDir)
	for i := range p.Tabs {
		t := &p.Tabs[i]
		t.Input = abs(t.Input)
		t.Output = abs(t.Output)
		t.OutputDir = abs(t.OutputDir)
		t.MergeClip = abs(t.MergeClip)
		t.CTAClip = abs(t.CTAClip)
		t.Audio.Folder = abs(t.Audio.Folder)
		if t.Logo != nil {
			t.Logo.Path = abs(t.Logo.Path)
		}
	}
}

// Overrides replace project values when jobs are built for a batch.
type Overrides struct {
	Input       string
	OutputDir   string
	AudioFolder string
	// Round counts the inputs rendered earlier in the same run. Sequential
	// audio advances one full round of tabs per input.
	Round int
}

// Jobs builds one RenderJob per enabled tab. Tab numbers are 1-based
// positions in the file, so disabling a tab does not rename the others.
// Settings fill the encoder parameters; pool, when enabled, assigns merge
// clips by tab slot.
func (p *Project) Jobs(s config.Settings, pool mediapool.Pool, o Overrides) ([]config.RenderJob, error) {
	var jobs []config.RenderJob
	for i, t := range p.Tabs {
		if t.Disabled {
			continue
		}
		job := config.RenderJob{
			InputPath:     firstNonEmpty(o.Input, t.Input, p.Input),
			OutputDir:     firstNonEmpty(o.OutputDir, t.OutputDir, p.OutputDir, s.DefaultOutputPath),
			OutputFormat:  firstNonEmpty(t.Format, s.OutputFormat),
			Style:         t.Style,
			BorderEnabled: t.Border.Enabled,
			BorderSize:    t.Border.Size,
			BorderColor:   t.Border.Color,
			GradientColor: t.GradientColor,
			BlurRadius:    t.BlurRadius,
			Subtitles:     p.subtitles(t, s.ForceGlobalSubtitleStyle),
			EmojiScale:    t.EmojiScale,
			Watermark:     t.Watermark,
			Logo:          t.Logo,
			Audio:         t.Audio,
			MergeClip:     t.MergeClip,
			CTAClip:       t.CTAClip,
			ClipFit:       t.ClipFit,
			Enhance:       t.Enhance,
			Threads:       s.Threads,
			VideoEncoder:  s.VideoEncoder,
			Preset:        s.Preset,
			Quality:       s.Quality,
			Tab:           i + 1,
			AudioSlot:     o.Round*len(p.Tabs) + i,
			Timeout:       s.JobTimeout(),
		}
		if o.Input == "" {
			job.OutputPath = t.Output
		}
		if o.AudioFolder != "" {
			job.Audio.Mode = config.AudioReplace
			job.Audio.Folder = o.AudioFolder
		}
		if pool.Enabled() {
			if clip, ok := pool.ForSlot(i, t.MergeClip); ok {
				job.MergeClip = clip
			}
		}
		if strings.TrimSpace(job.InputPath) == "" {
			return nil, fmt.Errorf("tab %d: %w", i+1, config.ErrInputMissing)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (p *Project) subtitles(t Tab, force bool) []subtitle.Subtitle {
	if !force || len(t.Subtitles) == 0 {
		return t.Subtitles
	}
	out := make([]subtitle.Subtitle, len(t.Subtitles))
	for i, s := range t.Subtitles {
		out[i] = s.WithStyle(p.GlobalStyle)
	}
	return out
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
