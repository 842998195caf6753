package batch

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/ivlev/vframe/internal/mediapool"
)

var (
	ErrNotFound     = errors.New("batch not found")
	ErrQueueActive  = errors.New("queue is running")
	ErrBatchRunning = errors.New("batch is processing")
	ErrInvalidName  = errors.New("invalid queue name")
	ErrCurrentQueue = errors.New("cannot delete the current queue")
)

// Status represents the lifecycle of a batch.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Finished reports whether the batch has reached a terminal status.
func (s Status) Finished() bool {
	return s == StatusCompleted || s == StatusError
}

// Batch is one queued render: an input (file or folder), where to write,
// and optional audio and media pool overrides.
type Batch struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	InputPath    string          `json:"input_path"`
	OutputFolder string          `json:"output_folder"`
	AudioFolder  string          `json:"audio_folder,omitempty"`
	Status       Status          `json:"status"`
	ErrorMessage string          `json:"error_message,omitempty"`
	MediaPool    *mediapool.Pool `json:"media_pool_data,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
}

// NewBatch returns a pending batch with a fresh ID.
func NewBatch(name, input, output string) Batch {
	return Batch{
		ID:           uuid.NewString(),
		Name:         name,
		InputPath:    input,
		OutputFolder: output,
		Status:       StatusPending,
		CreatedAt:    time.Now().UTC(),
	}
}

func (b Batch) clone() Batch {
	if b.MediaPool != nil {
		p := b.MediaPool.Clone()
		b.MediaPool = &p
	}
	if b.CompletedAt != nil {
		t := *b.CompletedAt
		b.CompletedAt = &t
	}
	return b
}

// State is one queue as stored on disk.
type State struct {
	Batches []Batch `json:"batches"`
	Cursor  int     `json:"current_batch_index"`
	Paused  bool    `json:"is_paused"`
	Active  bool    `json:"is_active"`
}

func (s State) clone() State {
	out := s
	out.Batches = make([]Batch, len(s.Batches))
	for i, b := range s.Batches {
		out.Batches[i] = b.clone()
	}
	return out
}

// Summary counts the outcome of a run.
type Summary struct {
	Completed int
	Errors    int
	Total     int
}

func summarize(batches []Batch) Summary {
	s := Summary{Total: len(batches)}
	for _, b := range batches {
		switch b.Status {
		case StatusCompleted:
			s.Completed++
		case StatusError:
			s.Errors++
		}
	}
	return s
}
