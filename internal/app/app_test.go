package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ivlev/vframe/internal/batch"
	"github.com/ivlev/vframe/internal/config"
	"github.com/ivlev/vframe/internal/mediapool"
	"github.com/ivlev/vframe/internal/orchestrator"
	"github.com/ivlev/vframe/internal/project"
)

type fakeRenderer struct {
	mu    sync.Mutex
	jobs  []config.RenderJob
	gate  chan struct{}
	pools *mediapool.Registry
	seen  []mediapool.Pool
	// calls, when set, receives a release channel per render call.
	calls chan chan struct{}
}

func (f *fakeRenderer) RenderVideo(ctx context.Context, job config.RenderJob) (string, error) {
	if f.calls != nil {
		release := make(chan struct{})
		f.calls <- release
		select {
		case <-release:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	f.mu.Lock()
	f.jobs = append(f.jobs, job)
	if f.pools != nil {
		f.seen = append(f.seen, f.pools.Current())
	}
	f.mu.Unlock()
	if strings.Contains(job.InputPath, "bad") {
		return "", errors.New("decode failed")
	}
	return job.ResolveOutputPath(), nil
}

func (f *fakeRenderer) nextCall(t *testing.T) chan struct{} {
	t.Helper()
	select {
	case c := <-f.calls:
		return c
	case <-time.After(5 * time.Second):
		t.Fatal("no render call")
		return nil
	}
}

func (f *fakeRenderer) rendered() []config.RenderJob {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]config.RenderJob(nil), f.jobs...)
}

type fakeNotifier struct {
	mu      sync.Mutex
	renders []string
	queues  [][2]int
}

func (n *fakeNotifier) NotifyRenderCompleted(_ context.Context, out string) error {
	n.mu.Lock()
	n.renders = append(n.renders, out)
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) NotifyQueueCompleted(_ context.Context, completed, failed int, _ time.Duration) error {
	n.mu.Lock()
	n.queues = append(n.queues, [2]int{completed, failed})
	n.mu.Unlock()
	return nil
}

func (n *fakeNotifier) NotifyError(context.Context, error, string) error { return nil }

type fixture struct {
	svc      *Service
	renderer *fakeRenderer
	notifier *fakeNotifier
	pools    *mediapool.Registry
	dir      string
}

func newFixture(t *testing.T, confirm bool) *fixture {
	t.Helper()
	dir := t.TempDir()
	pools := mediapool.NewRegistry(mediapool.Pool{})
	f := &fixture{
		renderer: &fakeRenderer{pools: pools},
		notifier: &fakeNotifier{},
		pools:    pools,
		dir:      dir,
	}
	f.svc = New(Deps{
		Settings: config.Settings{MaxParallelJobs: 2, OutputFormat: "mp4"},
		Renderer: f.renderer,
		Queues:   batch.NewManager(filepath.Join(dir, "queues"), nil, batch.Hooks{}, nil),
		Pools:    pools,
		Notifier: f.notifier,
		Confirm:  func(int) bool { return confirm },
	})
	t.Cleanup(f.svc.Close)
	return f
}

func (f *fixture) video(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(f.dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func waitIdle(t *testing.T, s *Service) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.WaitIdle(ctx); err != nil {
		t.Fatalf("WaitIdle: %v", err)
	}
}

func twoTabs(input string) *project.Project {
	return &project.Project{
		Input: input,
		Tabs:  []project.Tab{{Name: "a", Style: "white frame"}, {Name: "b", Style: "blurred"}},
	}
}

func TestRenderNowRendersEveryTab(t *testing.T) {
	f := newFixture(t, false)
	f.svc.SetProject(twoTabs(f.video(t, "in/clip.mp4")))

	if err := f.svc.RenderNow(context.Background()); err != nil {
		t.Fatalf("RenderNow: %v", err)
	}
	waitIdle(t, f.svc)

	jobs := f.renderer.rendered()
	if len(jobs) != 2 {
		t.Fatalf("rendered %d jobs, want 2", len(jobs))
	}
	if len(f.notifier.renders) != 2 {
		t.Fatalf("render notifications = %v", f.notifier.renders)
	}
	if f.svc.Busy() {
		t.Fatal("still busy after render")
	}
}

func TestRenderNowRejectsWhileBusy(t *testing.T) {
	f := newFixture(t, false)
	f.renderer.gate = make(chan struct{})
	f.svc.SetProject(twoTabs(f.video(t, "clip.mp4")))

	if err := f.svc.RenderNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := f.svc.RenderNow(context.Background()); !errors.Is(err, orchestrator.ErrBusy) {
		t.Fatalf("second RenderNow = %v, want ErrBusy", err)
	}
	close(f.renderer.gate)
	waitIdle(t, f.svc)
}

func TestRunQueue(t *testing.T) {
	f := newFixture(t, false)
	q := f.svc.Queues().Queue()

	good := f.video(t, "batch1/one.mp4")
	f.video(t, "batch1/two.mov")
	bad := f.video(t, "bad.mp4")

	b1 := batch.NewBatch("folder", filepath.Dir(good), filepath.Join(f.dir, "out1"))
	b1.MediaPool = &mediapool.Pool{Primary: "/pool/intro.mp4"}
	q.Add(b1)
	q.Add(batch.NewBatch("broken", bad, filepath.Join(f.dir, "out2")))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sum, err := f.svc.RunQueue(ctx)
	if err != nil {
		t.Fatalf("RunQueue: %v", err)
	}
	if sum != (batch.Summary{Completed: 1, Errors: 1, Total: 2}) {
		t.Fatalf("summary = %+v", sum)
	}

	got := q.Batches()
	if got[0].Status != batch.StatusCompleted || got[1].Status != batch.StatusError {
		t.Fatalf("statuses = %s, %s", got[0].Status, got[1].Status)
	}
	if !strings.Contains(got[1].ErrorMessage, "decode failed") {
		t.Fatalf("error message = %q", got[1].ErrorMessage)
	}

	jobs := f.renderer.rendered()
	if len(jobs) != 3 {
		t.Fatalf("rendered %d jobs, want 2 folder videos + 1 file", len(jobs))
	}
	for _, j := range jobs[:2] {
		if j.OutputDir != filepath.Join(f.dir, "out1") || j.MergeClip != "/pool/intro.mp4" {
			t.Fatalf("batch job = %+v", j)
		}
	}
	if f.pools.Current().Enabled() {
		t.Fatalf("pool not restored after run: %+v", f.pools.Current())
	}
	if len(f.notifier.queues) != 1 || f.notifier.queues[0] != [2]int{1, 1} {
		t.Fatalf("queue notifications = %v", f.notifier.queues)
	}
}

func TestRunQueueEmpty(t *testing.T) {
	f := newFixture(t, false)
	if _, err := f.svc.RunQueue(context.Background()); !errors.Is(err, ErrEmptyQueue) {
		t.Fatalf("RunQueue = %v, want ErrEmptyQueue", err)
	}
}

func TestRenderThenQueueWhenConfirmed(t *testing.T) {
	f := newFixture(t, true)
	f.svc.SetProject(&project.Project{Input: f.video(t, "main.mp4"), Tabs: []project.Tab{{Name: "only"}}})
	f.svc.Queues().Queue().Add(batch.NewBatch("queued", f.video(t, "queued.mp4"), f.dir))

	if err := f.svc.RenderNow(context.Background()); err != nil {
		t.Fatal(err)
	}
	waitIdle(t, f.svc)

	if n := len(f.renderer.rendered()); n != 2 {
		t.Fatalf("rendered %d jobs, want immediate + batch", n)
	}
	if st := f.svc.Queues().Queue().Batches()[0].Status; st != batch.StatusCompleted {
		t.Fatalf("batch status = %s", st)
	}
}

func TestRunQueueCancelStops(t *testing.T) {
	f := newFixture(t, false)
	f.renderer.gate = make(chan struct{})
	q := f.svc.Queues().Queue()
	q.Add(batch.NewBatch("slow", f.video(t, "slow.mp4"), f.dir))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.svc.RunQueue(ctx)
		done <- err
	}()
	for !q.IsActive() {
		time.Sleep(time.Millisecond)
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("RunQueue = %v, want context.Canceled", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("RunQueue did not return after cancel")
	}
	if q.IsActive() || q.Batches()[0].Status != batch.StatusPending {
		t.Fatalf("queue not stopped: %+v", q.Snapshot())
	}
	close(f.renderer.gate)
}

func TestStoppedBatchCompletionDoesNotAdvanceNewRun(t *testing.T) {
	f := newFixture(t, false)
	f.renderer.calls = make(chan chan struct{}, 4)
	f.svc.SetProject(&project.Project{Tabs: []project.Tab{{Name: "only"}}})
	q := f.svc.Queues().Queue()
	q.Add(batch.NewBatch("first", f.video(t, "first.mp4"), f.dir))
	q.Add(batch.NewBatch("second", f.video(t, "second.mp4"), f.dir))

	if err := f.svc.gate.StartQueue(); err != nil {
		t.Fatal(err)
	}
	stopped := f.renderer.nextCall(t)
	f.svc.StopQueue()
	if f.svc.Busy() {
		t.Fatal("busy after stop")
	}

	if err := f.svc.gate.StartQueue(); err != nil {
		t.Fatalf("restart: %v", err)
	}
	running := f.renderer.nextCall(t)

	close(stopped)
	for len(f.renderer.rendered()) == 0 {
		time.Sleep(time.Millisecond)
	}
	time.Sleep(50 * time.Millisecond)

	got := q.Batches()
	if got[0].Status != batch.StatusProcessing || got[1].Status != batch.StatusPending {
		t.Fatalf("statuses after stale completion = %s, %s", got[0].Status, got[1].Status)
	}
	if !f.svc.Busy() {
		t.Fatal("stale completion cleared the busy flag")
	}

	close(running)
	close(f.renderer.nextCall(t))
	waitIdle(t, f.svc)

	got = q.Batches()
	if got[0].Status != batch.StatusCompleted || got[1].Status != batch.StatusCompleted {
		t.Fatalf("final statuses = %s, %s", got[0].Status, got[1].Status)
	}
	if n := len(f.renderer.rendered()); n != 3 {
		t.Fatalf("rendered %d jobs, want 3", n)
	}
}

func TestBatchWithoutPoolUsesPoolFromBeforeRun(t *testing.T) {
	f := newFixture(t, false)
	f.svc.SetProject(&project.Project{
		MediaPool: mediapool.Pool{Primary: "/pool/base.mp4"},
		Tabs:      []project.Tab{{Name: "only"}},
	})
	q := f.svc.Queues().Queue()
	withPool := batch.NewBatch("override", f.video(t, "a.mp4"), f.dir)
	withPool.MediaPool = &mediapool.Pool{Primary: "/pool/override.mp4"}
	q.Add(withPool)
	q.Add(batch.NewBatch("plain", f.video(t, "b.mp4"), f.dir))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.svc.RunQueue(ctx); err != nil {
		t.Fatalf("RunQueue: %v", err)
	}

	want := map[string]string{"a.mp4": "/pool/override.mp4", "b.mp4": "/pool/base.mp4"}
	for _, j := range f.renderer.rendered() {
		if got := j.MergeClip; got != want[filepath.Base(j.InputPath)] {
			t.Errorf("%s merge clip = %q, want %q", filepath.Base(j.InputPath), got, want[filepath.Base(j.InputPath)])
		}
	}
	if got := f.pools.Current().Primary; got != "/pool/base.mp4" {
		t.Fatalf("pool after run = %q", got)
	}
}

func TestSequentialAudioAdvancesPerInput(t *testing.T) {
	f := newFixture(t, false)
	f.svc.SetProject(&project.Project{Tabs: []project.Tab{{Name: "only"}}})
	q := f.svc.Queues().Queue()

	f.video(t, "folder/one.mp4")
	f.video(t, "folder/two.mp4")
	folder := batch.NewBatch("folder", filepath.Join(f.dir, "folder"), f.dir)
	folder.AudioFolder = "/music"
	q.Add(folder)
	single := batch.NewBatch("single", f.video(t, "three.mp4"), f.dir)
	single.AudioFolder = "/music"
	q.Add(single)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := f.svc.RunQueue(ctx); err != nil {
		t.Fatalf("RunQueue: %v", err)
	}

	want := map[string]int{"one.mp4": 0, "two.mp4": 1, "three.mp4": 2}
	jobs := f.renderer.rendered()
	if len(jobs) != 3 {
		t.Fatalf("rendered %d jobs, want 3", len(jobs))
	}
	for _, j := range jobs {
		name := filepath.Base(j.InputPath)
		if got := j.AudioTrack(); got != want[name] {
			t.Errorf("%s audio track = %d, want %d", name, got, want[name])
		}
	}
}
