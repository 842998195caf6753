package system

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"go.uber.org/zap"
)

var (
	VideoExtensions = []string{".mp4", ".mov", ".mkv", ".avi", ".webm", ".m4v"}
	AudioExtensions = []string{".mp3", ".wav", ".m4a", ".ogg", ".aac", ".flac"}
	ImageExtensions = []string{".png", ".jpg", ".jpeg", ".webp", ".pdf"}
)

// InitResourceLimits пытается увеличить лимит открытых файлов: каждый рендер
// держит открытыми несколько пайпов ffmpeg.
func InitResourceLimits(logger *zap.Logger) {
	var rLimit syscall.Rlimit
	if err := syscall.Getrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("read open file limit", zap.Error(err))
		return
	}

	want := uint64(4096)
	if want > rLimit.Max {
		want = rLimit.Max
	}
	if rLimit.Cur >= want {
		return
	}
	rLimit.Cur = want
	if err := syscall.Setrlimit(syscall.RLIMIT_NOFILE, &rLimit); err != nil {
		logger.Warn("raise open file limit", zap.Error(err))
		return
	}
	logger.Debug("open file limit raised", zap.Uint64("limit", rLimit.Cur))
}

// HasExtension проверяет расширение файла без учёта регистра.
func HasExtension(name string, exts []string) bool {
	ext := strings.ToLower(filepath.Ext(name))
	for _, e := range exts {
		if ext == e {
			return true
		}
	}
	return false
}

// ListMedia возвращает файлы из dir с нужными расширениями, отсортированные по имени.
func ListMedia(dir string, exts []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, entry := range entries {
		if entry.IsDir() || !HasExtension(entry.Name(), exts) {
			continue
		}
		out = append(out, filepath.Join(dir, entry.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// ResolveVideos раскрывает вход пакета: файл берётся как есть, из папки
// берутся все видео по порядку имён.
func ResolveVideos(path string) ([]string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !fi.IsDir() {
		return []string{path}, nil
	}
	videos, err := ListMedia(path, VideoExtensions)
	if err != nil {
		return nil, err
	}
	if len(videos) == 0 {
		return nil, fmt.Errorf("no video files in %s", path)
	}
	return videos, nil
}

// MediaDuration получает длительность файла через ffprobe.
func MediaDuration(ctx context.Context, path string) (float64, error) {
	cmd := exec.CommandContext(ctx, "ffprobe", "-v", "error", "-show_entries", "format=duration", "-of", "default=noprint_wrappers=1:nokey=1", path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w: %s", path, err, strings.TrimSpace(string(out)))
	}
	duration, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: parse duration: %w", path, err)
	}
	return duration, nil
}

// BestH264Encoder выбирает аппаратный энкодер из "ffmpeg -encoders",
// иначе libx264.
func BestH264Encoder(ctx context.Context) string {
	out, err := exec.CommandContext(ctx, "ffmpeg", "-hide_banner", "-encoders").CombinedOutput()
	if err != nil {
		return "libx264"
	}
	for _, name := range []string{"h264_videotoolbox", "h264_nvenc"} {
		if strings.Contains(string(out), name) {
			return name
		}
	}
	return "libx264"
}
