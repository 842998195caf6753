package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/vframe/internal/system"
)

const DefaultOutputFormat = "mp4"

var outputFormats = map[string]bool{"mp4": true, "mov": true, "mkv": true, "webm": true}

// Settings are the global, persisted preferences.
type Settings struct {
	Threads                  int    `json:"threads"`
	MaxParallelJobs          int    `json:"max_parallel_jobs"`
	OutputFormat             string `json:"output_format"`
	DefaultOutputPath        string `json:"default_output_path"`
	ForceGlobalSubtitleStyle bool   `json:"force_global_subtitle_style"`
	QueueDir                 string `json:"queue_dir"`
	FontDir                  string `json:"font_dir"`
	EmojiDir                 string `json:"emoji_dir"`
	VideoEncoder             string `json:"video_encoder"`
	Preset                   string `json:"preset"`
	Quality                  int    `json:"quality"`
	// JobTimeoutSeconds bounds a single render; 0 disables the limit.
	JobTimeoutSeconds int    `json:"job_timeout_seconds"`
	LogLevel          string `json:"log_level"`
	LogFormat         string `json:"log_format"`
	Notifications     bool   `json:"notifications"`
	NotificationSound bool   `json:"notification_sound"`
}

// DefaultSettings sizes threads and parallel jobs from the host hardware.
func DefaultSettings() Settings {
	budget := system.DetectBudget()
	return Settings{
		Threads:         budget.Threads,
		MaxParallelJobs: budget.ParallelJobs,
		OutputFormat:    DefaultOutputFormat,
		QueueDir:        defaultDataDir(),
		Preset:          "medium",
		Quality:         23,
		LogLevel:        "info",
		LogFormat:       "console",
		Notifications:   true,
	}
}

func (s Settings) JobTimeout() time.Duration {
	if s.JobTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(s.JobTimeoutSeconds) * time.Second
}

// Normalize repairs out-of-range values and clears persisted paths that no
// longer exist, logging a warning for each change.
func (s Settings) Normalize(logger *zap.Logger) Settings {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultSettings()

	if s.Threads <= 0 {
		s.Threads = def.Threads
	}
	if s.MaxParallelJobs <= 0 {
		s.MaxParallelJobs = def.MaxParallelJobs
	}
	s.OutputFormat = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(s.OutputFormat), "."))
	if !outputFormats[s.OutputFormat] {
		if s.OutputFormat != "" {
			logger.Warn("unsupported output format, using default",
				zap.String("value", s.OutputFormat), zap.String("default", DefaultOutputFormat))
		}
		s.OutputFormat = DefaultOutputFormat
	}
	if s.QueueDir == "" {
		s.QueueDir = def.QueueDir
	}
	if s.JobTimeoutSeconds < 0 {
		s.JobTimeoutSeconds = 0
	}
	if s.Quality <= 0 {
		s.Quality = def.Quality
	}
	if s.Preset == "" {
		s.Preset = def.Preset
	}

	for _, p := range []struct {
		name string
		ptr  *string
	}{
		{"default_output_path", &s.DefaultOutputPath},
		{"font_dir", &s.FontDir},
		{"emoji_dir", &s.EmojiDir},
	} {
		if *p.ptr == "" {
			continue
		}
		if info, err := os.Stat(*p.ptr); err != nil || !info.IsDir() {
			logger.Warn("configured directory is not usable, clearing it",
				zap.String("setting", p.name), zap.String("path", *p.ptr))
			*p.ptr = ""
		}
	}
	return s
}

// JSONStore persists settings in a single JSON file on disk.
type JSONStore struct {
	path string
}

func NewJSONStore(path string) *JSONStore {
	return &JSONStore{path: path}
}

// DefaultSettingsPath is settings.json under the user config directory.
func DefaultSettingsPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "vframe", "settings.json")
}

func (s *JSONStore) Path() string { return s.path }

// Load reads settings from disk. A missing file yields defaults; keys
// absent from the file keep their default values. A corrupt file yields
// defaults together with the decode error.
func (s *JSONStore) Load() (Settings, error) {
	cfg := DefaultSettings()
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read settings: %w", err)
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		return DefaultSettings(), fmt.Errorf("decode settings %s: %w", s.path, err)
	}
	return cfg, nil
}

// Save writes settings as indented JSON and creates parent directories.
func (s *JSONStore) Save(cfg Settings) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create settings dir: %w", err)
	}
	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

func defaultDataDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "."
	}
	return filepath.Join(dir, "vframe")
}

// Set assigns one setting by its JSON key, parsing value according to the
// key's current type.
func (s *Settings) Set(key, value string) error {
	fields, err := s.fields()
	if err != nil {
		return err
	}
	cur, ok := fields[key]
	if !ok {
		return fmt.Errorf("unknown setting %q", key)
	}
	switch cur.(type) {
	case bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
		fields[key] = b
	case float64:
		n, err := strconv.Atoi(value)
		if err != nil {
			return fmt.Errorf("setting %s: %w", key, err)
		}
		fields[key] = n
	default:
		fields[key] = value
	}
	data, err := json.Marshal(fields)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, s)
}

// Keys lists the setting names in sorted order, paired with their values.
func (s Settings) Keys() ([]string, map[string]any, error) {
	fields, err := s.fields()
	if err != nil {
		return nil, nil, err
	}
	keys := make([]string, 0, len(fields))
	for k := range fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys, fields, nil
}

func (s Settings) fields() (map[string]any, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
