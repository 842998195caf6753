package system

import (
	"image"
	"sync"
)

// FramePool переиспользует холсты *image.RGBA одного размера, чтобы
// компоновщик не выделял новый холст на каждый кадр.
type FramePool struct {
	mu    sync.RWMutex
	pools map[image.Point]*sync.Pool
}

func NewFramePool() *FramePool {
	return &FramePool{pools: make(map[image.Point]*sync.Pool)}
}

// Get возвращает холст заданного размера. Содержимое не определено.
func (p *FramePool) Get(w, h int) *image.RGBA {
	size := image.Pt(w, h)
	p.mu.RLock()
	pool, ok := p.pools[size]
	p.mu.RUnlock()

	if !ok {
		p.mu.Lock()
		pool, ok = p.pools[size]
		if !ok {
			pool = &sync.Pool{
				New: func() any {
					return image.NewRGBA(image.Rect(0, 0, size.X, size.Y))
				},
			}
			p.pools[size] = pool
		}
		p.mu.Unlock()
	}
	return pool.Get().(*image.RGBA)
}

// Put возвращает холст в пул. Холсты незнакомого размера отбрасываются.
func (p *FramePool) Put(img *image.RGBA) {
	if img == nil || img.Rect.Min != (image.Point{}) {
		return
	}
	p.mu.RLock()
	pool, ok := p.pools[img.Rect.Size()]
	p.mu.RUnlock()
	if ok {
		pool.Put(img)
	}
}
