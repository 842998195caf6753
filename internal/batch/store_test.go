package batch

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/ivlev/vframe/internal/mediapool"
)

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "batch_queue.json")
	done := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	st := State{
		Batches: []Batch{
			{
				ID: "1", Name: "first", InputPath: "/in/a.mp4", OutputFolder: "/out",
				Status: StatusCompleted, CreatedAt: done.Add(-time.Hour), CompletedAt: &done,
				MediaPool: &mediapool.Pool{Primary: "p.mp4", Secondary: []string{"s1.mp4", "s2.mp4"}},
			},
			{
				ID: "2", Name: "second", InputPath: "/in/b", OutputFolder: "/out", AudioFolder: "/music",
				Status: StatusError, ErrorMessage: "boom", CreatedAt: done,
			},
		},
		Cursor: 1,
		Paused: true,
		Active: true,
	}

	store := NewStore(nil)
	if err := store.Save(path, st); err != nil {
		t.Fatalf("Save: %v", err)
	}
	got := store.Load(path)

	if got.Active {
		t.Fatal("is_active must load as false")
	}
	if !reflect.DeepEqual(got.Batches, st.Batches) {
		t.Fatalf("batches = %+v, want %+v", got.Batches, st.Batches)
	}
	if got.Cursor != 1 || !got.Paused {
		t.Fatalf("cursor=%d paused=%v", got.Cursor, got.Paused)
	}
	if _, err := os.Stat(path + ".lock"); err != nil {
		t.Fatalf("lock file missing: %v", err)
	}
}

func TestStoreMissingAndCorrupt(t *testing.T) {
	dir := t.TempDir()
	store := NewStore(nil)

	if st := store.Load(filepath.Join(dir, "none.json")); len(st.Batches) != 0 || st.Cursor != 0 {
		t.Fatalf("missing file = %+v", st)
	}

	bad := filepath.Join(dir, "bad.json")
	if err := os.WriteFile(bad, []byte(`{"batches": [`), 0o644); err != nil {
		t.Fatal(err)
	}
	if st := store.Load(bad); len(st.Batches) != 0 {
		t.Fatalf("corrupt file = %+v", st)
	}
}

func TestStoreLoadDemotesStaleProcessing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "q.json")
	raw := `{"batches":[{"id":"x","name":"x","input_path":"a","output_folder":"b","status":"processing","created_at":"2024-01-01T00:00:00Z"}],"current_batch_index":7,"is_paused":false,"is_active":true}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}
	st := NewStore(nil).Load(path)
	if st.Active || st.Batches[0].Status != StatusPending {
		t.Fatalf("state = %+v", st)
	}
	if st.Cursor != 1 {
		t.Fatalf("cursor = %d, want clamped to 1", st.Cursor)
	}
}
