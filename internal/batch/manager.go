package batch

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/ivlev/vframe/internal/logging"
)

const (
	// GlobalQueue names the default queue file.
	GlobalQueue = "global"

	globalFile = "batch_queue.json"
	customDir  = "batch_queues"
)

// Manager owns the current Queue and switches it between queue files:
// <dir>/batch_queue.json for the global queue and
// <dir>/batch_queues/<name>.json for named ones.
type Manager struct {
	switchMu  sync.Mutex
	mu        sync.Mutex
	dir       string
	current   string
	queue     *Queue
	listeners []func(name string)
	logger    *zap.Logger
}

// NewManager opens the global queue in dir.
func NewManager(dir string, store *Store, hooks Hooks, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	m := &Manager{dir: dir, current: GlobalQueue, logger: logger}
	m.queue = NewQueue(m.pathFor(GlobalQueue), store, hooks, logger)
	return m
}

// SanitizeName lower-cases name and maps every character outside
// [a-z0-9_-] to an underscore.
func SanitizeName(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return strings.Trim(b.String(), "_")
}

func (m *Manager) Queue() *Queue { return m.queue }

// Current returns the name of the current queue.
func (m *Manager) Current() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// PathFor returns the file backing the named queue.
func (m *Manager) PathFor(name string) (string, error) {
	n, err := normalize(name)
	if err != nil {
		return "", err
	}
	return m.pathFor(n), nil
}

func (m *Manager) pathFor(name string) string {
	if name == GlobalQueue {
		return filepath.Join(m.dir, globalFile)
	}
	return filepath.Join(m.dir, customDir, name+".json")
}

func normalize(name string) (string, error) {
	if strings.TrimSpace(name) == "" || strings.EqualFold(strings.TrimSpace(name), GlobalQueue) {
		return GlobalQueue, nil
	}
	n := SanitizeName(name)
	if n == "" || n == GlobalQueue {
		return "", fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return n, nil
}

// OnSwitch registers fn to be called with the new queue name after every
// successful Switch.
func (m *Manager) OnSwitch(fn func(name string)) {
	m.mu.Lock()
	m.listeners = append(m.listeners, fn)
	m.mu.Unlock()
}

// Switch persists the current queue and makes name current. An empty name
// or "global" selects the global queue. Switching during a run is refused.
func (m *Manager) Switch(name string) error {
	n, err := normalize(name)
	if err != nil {
		return err
	}

	m.switchMu.Lock()
	defer m.switchMu.Unlock()

	if n == m.Current() {
		return nil
	}
	if err := m.queue.load(m.pathFor(n)); err != nil {
		return err
	}

	m.mu.Lock()
	m.current = n
	listeners := append([]func(string){}, m.listeners...)
	m.mu.Unlock()

	m.logger.Info("queue switched", zap.String(logging.FieldQueue, n))
	for _, fn := range listeners {
		fn(n)
	}
	return nil
}

// List returns the names of the custom queues on disk, sorted. The global
// queue is not included.
func (m *Manager) List() ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(m.dir, customDir))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list queues: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".json" {
			continue
		}
		names = append(names, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(names)
	return names, nil
}

// Delete removes a custom queue file. The current queue and the global
// queue cannot be deleted.
func (m *Manager) Delete(name string) error {
	n, err := normalize(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if n == m.current || n == GlobalQueue {
		return ErrCurrentQueue
	}
	path := m.pathFor(n)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: queue %s", ErrNotFound, n)
		}
		return err
	}
	os.Remove(path + ".lock")
	return nil
}
