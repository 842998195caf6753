// Package mediapool distributes media items across parallel render targets.
package mediapool

import (
	"math/rand"
	"strings"
	"sync"
)

// Pool is a primary item plus an ordered list of secondary items.
type Pool struct {
	Primary   string   `json:"primary,omitempty" yaml:"primary,omitempty"`
	Secondary []string `json:"secondary,omitempty" yaml:"secondary,omitempty"`
}

// Enabled reports whether either the primary or any secondary item is set.
func (p Pool) Enabled() bool {
	return strings.TrimSpace(p.Primary) != "" || len(p.Secondary) > 0
}

// ForSlot returns the item for render slot i. Slot 0 keeps its anchor, which
// is the primary item, or anchor when no primary is configured. Slot i>0
// takes Secondary[(i-1) mod len]. ok is false when the pool has nothing for
// the slot and the caller should keep its own item.
func (p Pool) ForSlot(i int, anchor string) (string, bool) {
	if i <= 0 {
		if p.Primary != "" {
			return p.Primary, true
		}
		return anchor, anchor != ""
	}
	return Get(p.Secondary, i-1)
}

// Clone returns a deep copy.
func (p Pool) Clone() Pool {
	out := Pool{Primary: p.Primary}
	if p.Secondary != nil {
		out.Secondary = append([]string(nil), p.Secondary...)
	}
	return out
}

// Get returns items[i mod len(items)]. It is periodic in len(items) and
// reports false for an empty pool or a negative index.
func Get(items []string, i int) (string, bool) {
	if len(items) == 0 || i < 0 {
		return "", false
	}
	return items[i%len(items)], true
}

// Mode selects how a path is chosen from a pool.
type Mode string

const (
	Sequential Mode = "sequential"
	Random     Mode = "random"
)

// Selector picks paths either deterministically by index or at random.
type Selector struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

// NewSelector returns a selector whose random picks are driven by seed.
func NewSelector(seed int64) *Selector {
	return &Selector{rnd: rand.New(rand.NewSource(seed))}
}

// Pick returns one item for slot i according to mode.
func (s *Selector) Pick(items []string, i int, mode Mode) (string, bool) {
	if len(items) == 0 {
		return "", false
	}
	if mode != Random {
		return Get(items, i)
	}
	s.mu.Lock()
	n := s.rnd.Intn(len(items))
	s.mu.Unlock()
	return items[n], true
}

// Registry holds the pool currently assigned to the render tabs. A batch run
// overrides it and must put the previous value back when it ends.
type Registry struct {
	mu      sync.RWMutex
	current Pool
	saved   *Pool
}

func NewRegistry(initial Pool) *Registry {
	return &Registry{current: initial.Clone()}
}

func (r *Registry) Current() Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current.Clone()
}

func (r *Registry) Set(p Pool) {
	r.mu.Lock()
	r.current = p.Clone()
	r.mu.Unlock()
}

// Save snapshots the current pool. A second Save before Restore keeps the
// first snapshot so nested runs restore the original configuration.
func (r *Registry) Save() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved != nil {
		return
	}
	snap := r.current.Clone()
	r.saved = &snap
}

// Restore puts back the snapshot taken by Save, if any.
func (r *Registry) Restore() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saved == nil {
		return
	}
	r.current = *r.saved
	r.saved = nil
}

// Saved returns the snapshot taken by Save, falling back to the current pool.
func (r *Registry) Saved() Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.saved != nil {
		return r.saved.Clone()
	}
	return r.current.Clone()
}
