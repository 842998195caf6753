// Package orchestrator gates renders behind a single busy flag so an
// immediate render and a batch run never overlap.
package orchestrator

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

// ErrBusy is returned when a render or batch run is already in progress.
var ErrBusy = errors.New("a render is already in progress")

// BatchQueue is the part of batch.Queue the orchestrator drives.
type BatchQueue interface {
	Len() int
	IsActive() bool
	Start() bool
	OnBatchComplete(success bool, errMsg string)
}

// Config wires an Orchestrator.
type Config struct {
	Queue BatchQueue
	// Render starts the immediate render. It must not block on the render
	// itself and must arrange for OnImmediateRenderFinished to be called.
	Render func(ctx context.Context) error
	// Confirm asks whether the queued batches should run once the immediate
	// render ends. It is only asked when the queue is non-empty; nil means no.
	Confirm func(queued int) bool
	// Idle is called, without locks held, each time the gate opens.
	Idle   func()
	Logger *zap.Logger
}

// Orchestrator is the render gate.
type Orchestrator struct {
	mu           sync.Mutex
	busy         bool
	pendingBatch bool

	queue   BatchQueue
	render  func(ctx context.Context) error
	confirm func(int) bool
	idle    func()
	logger  *zap.Logger
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Orchestrator{
		queue:   cfg.Queue,
		render:  cfg.Render,
		confirm: cfg.Confirm,
		idle:    cfg.Idle,
		logger:  cfg.Logger,
	}
}

// StartRenderFlow starts the immediate render. When batches are queued the
// caller is asked whether to run them afterwards.
func (o *Orchestrator) StartRenderFlow(ctx context.Context) error {
	if !o.acquire() {
		return ErrBusy
	}

	pending := false
	if n := o.queue.Len(); n > 0 && o.confirm != nil {
		pending = o.confirm(n)
	}
	o.mu.Lock()
	o.pendingBatch = pending
	o.mu.Unlock()

	o.logger.Info("render flow started", zap.Bool("queue_after", pending))
	if err := o.render(ctx); err != nil {
		o.mu.Lock()
		o.pendingBatch = false
		o.mu.Unlock()
		o.SetBusy(false)
		return err
	}
	return nil
}

// StartQueue runs the batch queue on its own. The flag is cleared again if
// the queue has nothing to run.
func (o *Orchestrator) StartQueue() error {
	if !o.acquire() {
		return ErrBusy
	}
	if !o.queue.Start() {
		o.SetBusy(false)
	}
	return nil
}

func (o *Orchestrator) acquire() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.busy {
		return false
	}
	o.busy = true
	return true
}

// OnImmediateRenderFinished hands control to the batch queue if it was
// requested or already running; otherwise it clears the busy flag. A render
// error is forwarded to an active queue as a failed batch.
func (o *Orchestrator) OnImmediateRenderFinished(err error) {
	o.mu.Lock()
	if o.pendingBatch {
		o.pendingBatch = false
		o.mu.Unlock()
		if err != nil {
			o.logger.Warn("immediate render failed, starting queue anyway", zap.Error(err))
		}
		// The queue clears the flag through SetBusy when its run ends.
		if !o.queue.Start() {
			o.SetBusy(false)
		}
		return
	}
	o.mu.Unlock()

	if o.queue.IsActive() {
		msg := ""
		if err != nil {
			msg = err.Error()
		}
		o.queue.OnBatchComplete(err == nil, msg)
		return
	}
	o.SetBusy(false)
}

func (o *Orchestrator) SetBusy(busy bool) {
	o.mu.Lock()
	opened := o.busy && !busy
	o.busy = busy
	o.mu.Unlock()
	if opened && o.idle != nil {
		o.idle()
	}
}

func (o *Orchestrator) IsBusy() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.busy
}
