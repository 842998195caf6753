package batch

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ivlev/vframe/internal/logging"
)

// Resources is the shared state a batch run overrides. Save is called when
// a run starts and Restore when it ends or is stopped.
type Resources interface {
	Save()
	Restore()
}

// Hooks connect a Queue to the rest of the application. All hooks are
// called without the queue lock held, so they may call back into the queue.
type Hooks struct {
	// Dispatch starts rendering b. It must return promptly and arrange for
	// exactly one OnBatchComplete call when the render ends.
	Dispatch func(b Batch)
	// Finished receives the outcome counts when a run reaches the end.
	Finished  func(s Summary)
	Resources Resources
	// Changed is called after every persisted mutation.
	Changed func(st State)
}

// Queue is the batch scheduler for one queue file.
type Queue struct {
	mu     sync.Mutex
	path   string
	state  State
	store  *Store
	hooks  Hooks
	logger *zap.Logger
}

// NewQueue loads the queue stored at path.
func NewQueue(path string, store *Store, hooks Hooks, logger *zap.Logger) *Queue {
	if logger == nil {
		logger = zap.NewNop()
	}
	if store == nil {
		store = NewStore(logger)
	}
	return &Queue{
		path:   path,
		state:  store.Load(path),
		store:  store,
		hooks:  hooks,
		logger: logger,
	}
}

// SetHooks replaces the hooks. It is meant for wiring at startup.
func (q *Queue) SetHooks(h Hooks) {
	q.mu.Lock()
	q.hooks = h
	q.mu.Unlock()
}

func (q *Queue) Path() string {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.path
}

// Snapshot returns a deep copy of the in-memory state.
func (q *Queue) Snapshot() State {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.clone()
}

func (q *Queue) Batches() []Batch {
	return q.Snapshot().Batches
}

func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.state.Batches)
}

func (q *Queue) IsActive() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.Active
}

func (q *Queue) IsPaused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.state.Paused
}

// Start begins a run at the first batch, restarting if a run is already in
// progress. It reports false when the queue is empty.
func (q *Queue) Start() bool {
	q.mu.Lock()
	if len(q.state.Batches) == 0 {
		q.mu.Unlock()
		q.logger.Info("queue empty, nothing to start", zap.String(logging.FieldQueue, q.path))
		return false
	}
	restart := q.state.Active
	q.state.Active = true
	q.state.Paused = false
	q.state.Cursor = 0
	hooks := q.hooks
	q.mu.Unlock()

	if hooks.Resources != nil {
		hooks.Resources.Save()
	}
	q.logger.Info("batch run started",
		zap.String(logging.FieldQueue, q.Path()),
		zap.Int("batches", q.Len()),
		zap.Bool("restart", restart))
	q.processCurrent()
	return true
}

// processCurrent marks the batch at the cursor as processing, persists and
// dispatches it.
func (q *Queue) processCurrent() {
	q.mu.Lock()
	if !q.state.Active || q.state.Cursor < 0 || q.state.Cursor >= len(q.state.Batches) {
		q.mu.Unlock()
		return
	}
	b := &q.state.Batches[q.state.Cursor]
	b.Status = StatusProcessing
	b.ErrorMessage = ""
	b.CompletedAt = nil
	dispatched := b.clone()
	st := q.persistLocked()
	hooks := q.hooks
	q.mu.Unlock()

	q.changed(hooks, st)
	q.logger.Info("batch dispatched",
		zap.String(logging.FieldBatchID, dispatched.ID),
		zap.String("name", dispatched.Name),
		zap.String("input", dispatched.InputPath))
	if hooks.Dispatch != nil {
		hooks.Dispatch(dispatched)
	}
}

// OnBatchComplete records the outcome of the batch at the cursor and moves
// on, unless a pause was requested. Calls while inactive are ignored.
func (q *Queue) OnBatchComplete(success bool, errMsg string) {
	q.mu.Lock()
	if !q.state.Active || q.state.Cursor < 0 || q.state.Cursor >= len(q.state.Batches) {
		q.mu.Unlock()
		q.logger.Debug("completion ignored, no batch in flight")
		return
	}
	b := &q.state.Batches[q.state.Cursor]
	if success {
		now := time.Now().UTC()
		b.Status = StatusCompleted
		b.CompletedAt = &now
		b.ErrorMessage = ""
		q.logger.Info("batch completed", zap.String(logging.FieldBatchID, b.ID), zap.String("name", b.Name))
	} else {
		b.Status = StatusError
		b.ErrorMessage = errMsg
		q.logger.Warn("batch failed",
			zap.String(logging.FieldBatchID, b.ID),
			zap.String("name", b.Name),
			zap.String("error", errMsg))
	}

	if q.state.Paused {
		st := q.persistLocked()
		hooks := q.hooks
		q.mu.Unlock()
		q.changed(hooks, st)
		q.logger.Info("queue paused", zap.Int("cursor", st.Cursor))
		return
	}

	q.state.Cursor++
	if q.state.Cursor < len(q.state.Batches) {
		q.mu.Unlock()
		q.processCurrent()
		return
	}
	q.finishLocked()
}

// finishLocked ends the run. It is called with q.mu held and releases it.
func (q *Queue) finishLocked() {
	q.state.Active = false
	q.state.Paused = false
	st := q.persistLocked()
	summary := summarize(st.Batches)
	hooks := q.hooks
	q.mu.Unlock()

	q.changed(hooks, st)
	if hooks.Resources != nil {
		hooks.Resources.Restore()
	}
	q.logger.Info("batch run finished",
		zap.Int("completed", summary.Completed),
		zap.Int("errors", summary.Errors))
	if hooks.Finished != nil {
		hooks.Finished(summary)
	}
}

// Pause asks the run to halt once the in-flight batch reports back.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.state.Paused = true
	st := q.persistLocked()
	hooks := q.hooks
	q.mu.Unlock()
	q.changed(hooks, st)
}

// Resume clears the pause flag. If the batch at the cursor finished while
// paused the run advances past it; a batch still in flight is left alone.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.state.Paused = false
	if !q.state.Active || q.state.Cursor >= len(q.state.Batches) {
		st := q.persistLocked()
		hooks := q.hooks
		q.mu.Unlock()
		q.changed(hooks, st)
		return
	}

	switch q.state.Batches[q.state.Cursor].Status {
	case StatusProcessing:
		st := q.persistLocked()
		hooks := q.hooks
		q.mu.Unlock()
		q.changed(hooks, st)
		return
	case StatusCompleted, StatusError:
		q.state.Cursor++
		if q.state.Cursor >= len(q.state.Batches) {
			q.finishLocked()
			return
		}
	}
	q.mu.Unlock()
	q.processCurrent()
}

// Stop ends the run without interrupting an in-flight render. A batch left
// processing goes back to pending and its late completion is ignored.
func (q *Queue) Stop() {
	q.mu.Lock()
	wasActive := q.state.Active
	q.state.Active = false
	q.state.Paused = false
	if c := q.state.Cursor; c >= 0 && c < len(q.state.Batches) && q.state.Batches[c].Status == StatusProcessing {
		q.state.Batches[c].Status = StatusPending
	}
	st := q.persistLocked()
	hooks := q.hooks
	q.mu.Unlock()

	q.changed(hooks, st)
	if hooks.Resources != nil {
		hooks.Resources.Restore()
	}
	if wasActive {
		q.logger.Info("batch run stopped", zap.Int("cursor", st.Cursor))
	}
}

// Add appends b as a pending batch and returns the stored copy.
func (q *Queue) Add(b Batch) Batch {
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	b.Status = StatusPending
	b.ErrorMessage = ""
	b.CompletedAt = nil
	b = b.clone()

	q.mu.Lock()
	q.state.Batches = append(q.state.Batches, b)
	st := q.persistLocked()
	hooks := q.hooks
	q.mu.Unlock()

	q.changed(hooks, st)
	q.logger.Info("batch added", zap.String(logging.FieldBatchID, b.ID), zap.String("name", b.Name))
	return b.clone()
}

// Remove deletes the batch with id. The batch under the cursor of an active
// run cannot be removed.
func (q *Queue) Remove(id string) error {
	q.mu.Lock()
	idx := -1
	for i, b := range q.state.Batches {
		if b.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		q.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if q.state.Active && idx == q.state.Cursor {
		q.mu.Unlock()
		return ErrBatchRunning
	}
	q.state.Batches = append(q.state.Batches[:idx], q.state.Batches[idx+1:]...)
	if idx < q.state.Cursor {
		q.state.Cursor--
	}
	q.state.Cursor = min(q.state.Cursor, len(q.state.Batches))
	st := q.persistLocked()
	hooks := q.hooks
	q.mu.Unlock()

	q.changed(hooks, st)
	return nil
}

// Clear removes every batch. It is refused while a run is active.
func (q *Queue) Clear() error {
	q.mu.Lock()
	if q.state.Active {
		q.mu.Unlock()
		return ErrQueueActive
	}
	q.state = State{Batches: []Batch{}}
	st := q.persistLocked()
	hooks := q.hooks
	q.mu.Unlock()

	q.changed(hooks, st)
	return nil
}

// Save persists the queue to its file.
func (q *Queue) Save() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.store.Save(q.path, q.state)
}

// load persists the current queue and replaces it with the one at path.
func (q *Queue) load(path string) error {
	q.mu.Lock()
	if q.state.Active {
		q.mu.Unlock()
		return ErrQueueActive
	}
	if err := q.store.Save(q.path, q.state); err != nil {
		q.mu.Unlock()
		return fmt.Errorf("persist outgoing queue: %w", err)
	}
	q.path = path
	q.state = q.store.Load(path)
	st := q.state.clone()
	hooks := q.hooks
	q.mu.Unlock()

	q.changed(hooks, st)
	return nil
}

// persistLocked saves the state and returns a copy for hooks. Persistence
// failures are logged; the in-memory queue stays authoritative.
func (q *Queue) persistLocked() State {
	if err := q.store.Save(q.path, q.state); err != nil {
		q.logger.Warn("persist queue", zap.String("path", q.path), zap.Error(err))
	}
	return q.state.clone()
}

func (q *Queue) changed(h Hooks, st State) {
	if h.Changed != nil {
		h.Changed(st)
	}
}
