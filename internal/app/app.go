// Package app wires the renderer, the worker pool, the render gate and the
// batch queues into one service used by the CLI.
package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/ivlev/vframe/internal/batch"
	"github.com/ivlev/vframe/internal/config"
	"github.com/ivlev/vframe/internal/executor"
	"github.com/ivlev/vframe/internal/logging"
	"github.com/ivlev/vframe/internal/mediapool"
	"github.com/ivlev/vframe/internal/notifications"
	"github.com/ivlev/vframe/internal/orchestrator"
	"github.com/ivlev/vframe/internal/project"
	"github.com/ivlev/vframe/internal/system"
)

// ErrEmptyQueue is returned by RunQueue when there is nothing to run.
var ErrEmptyQueue = errors.New("queue is empty")

// Renderer renders one job. engine.Renderer is the production implementation.
type Renderer interface {
	RenderVideo(ctx context.Context, job config.RenderJob) (string, error)
}

// Deps are the collaborators of a Service.
type Deps struct {
	Settings config.Settings
	Renderer Renderer
	Queues   *batch.Manager
	Pools    *mediapool.Registry
	Notifier notifications.Service
	// Confirm decides whether queued batches run after an immediate render.
	Confirm func(queued int) bool
	Logger  *zap.Logger
}

// Service owns the render lifecycle. Use New; the zero value is not usable.
type Service struct {
	renderer Renderer
	queues   *batch.Manager
	pools    *mediapool.Registry
	notifier notifications.Service
	exec     *executor.Executor
	gate     *orchestrator.Orchestrator
	logger   *zap.Logger

	// ctx scopes renders started from queue hooks; Close cancels it.
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	settings config.Settings
	project  *project.Project
	runStart time.Time
	last     batch.Summary
	// rounds counts inputs dispatched in the current run.
	rounds int
	// seq numbers dispatches; inflight is the one whose completion the
	// queue still expects, 0 when none.
	seq      uint64
	inflight uint64

	// completeMu orders completion forwarding against StopQueue.
	completeMu sync.Mutex

	idleMu sync.Mutex
	idle   chan struct{}
}

func New(d Deps) *Service {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Pools == nil {
		d.Pools = mediapool.NewRegistry(mediapool.Pool{})
	}
	if d.Notifier == nil {
		d.Notifier = notifications.NewService(notifications.Options{}, d.Logger)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Service{
		renderer: d.Renderer,
		queues:   d.Queues,
		pools:    d.Pools,
		notifier: d.Notifier,
		exec:     executor.New(d.Settings.MaxParallelJobs, d.Logger),
		logger:   d.Logger,
		ctx:      ctx,
		cancel:   cancel,
		settings: d.Settings,
		project:  project.Default(),
		idle:     make(chan struct{}),
	}
	s.gate = orchestrator.New(orchestrator.Config{
		Queue:   d.Queues.Queue(),
		Render:  s.renderCurrent,
		Confirm: d.Confirm,
		Idle:    s.onIdle,
		Logger:  d.Logger,
	})
	d.Queues.Queue().SetHooks(batch.Hooks{
		Dispatch:  s.dispatch,
		Finished:  s.finished,
		Resources: runResources{s},
	})
	return s
}

// SetProject selects the project rendered by RenderNow and used as the
// template for batches. Pools follow the project's media pool.
func (s *Service) SetProject(p *project.Project) {
	if p == nil {
		p = project.Default()
	}
	s.mu.Lock()
	s.project = p
	s.mu.Unlock()
	s.pools.Set(p.MediaPool)
}

// ApplySettings swaps the settings used for new jobs and resizes the pool.
func (s *Service) ApplySettings(st config.Settings) {
	s.mu.Lock()
	s.settings = st
	s.mu.Unlock()
	s.exec.Resize(st.MaxParallelJobs)
}

func (s *Service) Queues() *batch.Manager { return s.queues }

func (s *Service) Busy() bool { return s.gate.IsBusy() }

// RenderNow starts rendering the current project's tabs. It returns
// orchestrator.ErrBusy when a render or batch run is in progress.
func (s *Service) RenderNow(ctx context.Context) error {
	return s.gate.StartRenderFlow(ctx)
}

// RunQueue runs the current batch queue and blocks until it finishes. If
// ctx ends first the run is stopped and ctx.Err() returned.
func (s *Service) RunQueue(ctx context.Context) (batch.Summary, error) {
	if s.queues.Queue().Len() == 0 {
		return batch.Summary{}, ErrEmptyQueue
	}
	if err := s.gate.StartQueue(); err != nil {
		return batch.Summary{}, err
	}
	if err := s.WaitIdle(ctx); err != nil {
		s.StopQueue()
		return batch.Summary{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, nil
}

// StopQueue stops the batch run after the in-flight batch, which is not
// interrupted. Its completion is dropped when it arrives.
func (s *Service) StopQueue() {
	s.completeMu.Lock()
	defer s.completeMu.Unlock()

	s.mu.Lock()
	s.inflight = 0
	s.mu.Unlock()

	q := s.queues.Queue()
	active := q.IsActive()
	q.Stop()
	if active {
		s.gate.SetBusy(false)
	}
}

// WaitIdle blocks until no render or batch run is in progress.
func (s *Service) WaitIdle(ctx context.Context) error {
	s.idleMu.Lock()
	if !s.gate.IsBusy() {
		s.idleMu.Unlock()
		return nil
	}
	ch := s.idle
	s.idleMu.Unlock()

	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) onIdle() {
	s.idleMu.Lock()
	close(s.idle)
	s.idle = make(chan struct{})
	s.idleMu.Unlock()
}

// Close abandons queued work and cancels renders started by the queue.
func (s *Service) Close() {
	s.cancel()
	s.exec.Shutdown(false)
}

func (s *Service) snapshot() (config.Settings, *project.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings, s.project
}

func (s *Service) renderCurrent(ctx context.Context) error {
	settings, proj := s.snapshot()
	jobs, err := proj.Jobs(settings, s.pools.Current(), project.Overrides{})
	if err != nil {
		return err
	}
	if len(jobs) == 0 {
		return errors.New("project has no enabled tabs")
	}
	go func() {
		outputs, err := s.renderAll(ctx, jobs)
		if err == nil && !s.queues.Queue().IsActive() {
			for _, out := range outputs {
				s.notify(func(ctx context.Context) error { return s.notifier.NotifyRenderCompleted(ctx, out) })
			}
		}
		s.gate.OnImmediateRenderFinished(err)
	}()
	return nil
}

// dispatch renders one batch: its input (a file or every video in a
// folder) through every tab of the current project. The outcome reaches the
// queue through the render gate.
func (s *Service) dispatch(b batch.Batch) {
	s.mu.Lock()
	s.seq++
	token := s.seq
	s.inflight = token
	s.mu.Unlock()

	// Batches without a pool render with the one in place before the run.
	if b.MediaPool != nil && b.MediaPool.Enabled() {
		s.pools.Set(*b.MediaPool)
	} else {
		s.pools.Set(s.pools.Saved())
	}
	pool := s.pools.Current()

	go func() {
		var err error
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("batch render panicked", zap.String(logging.FieldBatchID, b.ID), zap.Any("panic", r))
				err = fmt.Errorf("render panicked: %v", r)
			}
			s.complete(token, b, err)
		}()

		var jobs []config.RenderJob
		if jobs, err = s.batchJobs(b, pool); err != nil {
			return
		}
		_, err = s.renderAll(s.ctx, jobs)
	}()
}

// complete forwards the outcome of dispatch token to the gate, unless the
// run it belonged to was stopped or superseded.
func (s *Service) complete(token uint64, b batch.Batch, err error) {
	s.completeMu.Lock()
	defer s.completeMu.Unlock()

	s.mu.Lock()
	current := s.inflight == token
	if current {
		s.inflight = 0
	}
	s.mu.Unlock()
	if !current {
		s.logger.Info("dropping completion of stopped batch",
			zap.String(logging.FieldBatchID, b.ID),
			zap.Error(err))
		return
	}
	s.gate.OnImmediateRenderFinished(err)
}

func (s *Service) batchJobs(b batch.Batch, pool mediapool.Pool) ([]config.RenderJob, error) {
	inputs, err := system.ResolveVideos(b.InputPath)
	if err != nil {
		return nil, fmt.Errorf("batch input: %w", err)
	}
	settings, proj := s.snapshot()

	s.mu.Lock()
	round := s.rounds
	s.rounds += len(inputs)
	s.mu.Unlock()

	var jobs []config.RenderJob
	for k, in := range inputs {
		js, err := proj.Jobs(settings, pool, project.Overrides{
			Input:       in,
			OutputDir:   b.OutputFolder,
			AudioFolder: b.AudioFolder,
			Round:       round + k,
		})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, js...)
	}
	return jobs, nil
}

// renderAll runs jobs on the worker pool and waits for all of them. Every
// job runs even if another fails.
func (s *Service) renderAll(ctx context.Context, jobs []config.RenderJob) ([]string, error) {
	outputs := make([]string, len(jobs))
	futures := make([]*executor.Future, len(jobs))
	for i, job := range jobs {
		futures[i] = s.exec.Submit(ctx, func(ctx context.Context) error {
			out, err := s.renderer.RenderVideo(ctx, job)
			if err != nil {
				return fmt.Errorf("%s (tab %d): %w", job.InputPath, job.Tab, err)
			}
			outputs[i] = out
			return nil
		})
	}

	var errs []error
	for _, f := range futures {
		<-f.Done()
		if err := f.Err(); err != nil {
			s.logger.Warn("render failed", zap.Error(err))
			errs = append(errs, err)
		}
	}
	return outputs, errors.Join(errs...)
}

func (s *Service) finished(sum batch.Summary) {
	s.mu.Lock()
	s.last = sum
	elapsed := time.Since(s.runStart)
	s.mu.Unlock()

	s.notify(func(ctx context.Context) error {
		return s.notifier.NotifyQueueCompleted(ctx, sum.Completed, sum.Errors, elapsed)
	})
	s.gate.SetBusy(false)
}

func (s *Service) notify(send func(ctx context.Context) error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := send(ctx); err != nil {
		s.logger.Debug("notification not delivered", zap.Error(err))
	}
}

// runResources snapshots the shared media pool for the length of a run.
type runResources struct{ s *Service }

func (r runResources) Save() {
	r.s.mu.Lock()
	r.s.runStart = time.Now()
	r.s.rounds = 0
	r.s.mu.Unlock()
	r.s.pools.Save()
}

func (r runResources) Restore() { r.s.pools.Restore() }
