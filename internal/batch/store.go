package batch

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"go.uber.org/zap"
)

// Store reads and writes queue files. Writes go to a temp file that is
// renamed into place while holding a lock on <path>.lock, so concurrent
// processes never observe a half-written queue.
type Store struct {
	logger *zap.Logger
}

func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{logger: logger}
}

// Load returns the queue stored at path. A missing, unreadable or corrupt
// file yields an empty state; only the last two are logged. The returned
// state is always inactive, and a batch left processing by a crashed run is
// demoted to pending.
func (s *Store) Load(path string) State {
	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("read queue file, starting empty", zap.String("path", path), zap.Error(err))
		}
		return State{Batches: []Batch{}}
	}

	var st State
	if err := json.Unmarshal(data, &st); err != nil {
		s.logger.Warn("corrupt queue file, starting empty", zap.String("path", path), zap.Error(err))
		return State{Batches: []Batch{}}
	}
	if st.Batches == nil {
		st.Batches = []Batch{}
	}
	st.Active = false
	for i := range st.Batches {
		if st.Batches[i].Status == StatusProcessing {
			st.Batches[i].Status = StatusPending
		}
	}
	st.Cursor = min(max(st.Cursor, 0), len(st.Batches))
	return st
}

// Save writes st to path with is_active forced to false.
func (s *Store) Save(path string, st State) error {
	st.Active = false
	if st.Batches == nil {
		st.Batches = []Batch{}
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("encode queue: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create queue dir: %w", err)
	}

	lock := flock.New(path + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock queue file: %w", err)
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			s.logger.Warn("release queue lock", zap.String("path", path), zap.Error(err))
		}
	}()

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp queue file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write queue file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close queue file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("replace queue file: %w", err)
	}
	return nil
}
