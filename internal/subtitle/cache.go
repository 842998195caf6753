// Package subtitle renders styled text/emoji subtitle blocks into transparent
// bitmaps and memoizes them per style key, so a block is rasterized once per
// distinct (text, style, scale) no matter how many frames draw it.
package subtitle

import (
	"fmt"
	"hash/maphash"
	"image"
	"image/draw"
	"math"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

const shardCount = 16

// Key identifies one cached bitmap.
type Key struct {
	Text             string
	Font             string
	Size             float64
	Color            Color
	OutlineColor     Color
	Background       Color
	OutlineThickness float64
	ScaleFactor      float64
	EmojiScale       float64
}

// KeyOf builds the style key of sub at the given scales.
func KeyOf(sub Subtitle, scaleFactor, emojiScale float64) Key {
	return Key{
		Text:             sub.Text,
		Font:             sub.Font,
		Size:             sub.Size,
		Color:            sub.Color,
		OutlineColor:     sub.OutlineColor,
		Background:       sub.Background,
		OutlineThickness: sub.OutlineThickness,
		ScaleFactor:      scaleFactor,
		EmojiScale:       emojiScale,
	}
}

func (k Key) String() string {
	return fmt.Sprintf("%q|%q|%g|%s|%s|%s|%g|%g|%g",
		k.Text, k.Font, k.Size, k.Color, k.OutlineColor, k.Background,
		k.OutlineThickness, k.ScaleFactor, k.EmojiScale)
}

// Stats counts cache lookups.
type Stats struct {
	Hits   int64
	Misses int64
}

type shard struct {
	mu sync.RWMutex
	m  map[Key]*Rendered
}

// Cache is a lock-sharded, goroutine-safe subtitle bitmap cache. A miss is
// rendered outside the shard lock; concurrent misses of the same key share
// one render. Failed renders are never stored.
type Cache struct {
	seed   maphash.Seed
	shards [shardCount]shard
	group  singleflight.Group
	r      renderer

	hits   atomic.Int64
	misses atomic.Int64
}

// Option configures a Cache.
type Option func(*Cache)

// WithOutline replaces the default multi-pass outline strategy.
func WithOutline(s OutlineStrategy) Option {
	return func(c *Cache) { c.r.outline = s }
}

func NewCache(fonts FontSource, emoji EmojiSource, opts ...Option) *Cache {
	if fonts == nil {
		fonts = NewFontLibrary("")
	}
	if emoji == nil {
		emoji = NewMemoryEmojiSource()
	}
	c := &Cache{
		seed: maphash.MakeSeed(),
		r:    renderer{fonts: fonts, emoji: emoji, outline: MultiPassOutline{}},
	}
	for i := range c.shards {
		c.shards[i].m = make(map[Key]*Rendered)
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Cache) shardFor(k Key) *shard {
	return &c.shards[maphash.Comparable(c.seed, k)%shardCount]
}

// Render returns the bitmap for sub at the given scales, rasterizing it only
// on the first request for its key.
func (c *Cache) Render(sub Subtitle, scaleFactor, emojiScale float64) (*Rendered, error) {
	key := KeyOf(sub, scaleFactor, emojiScale)
	sh := c.shardFor(key)

	sh.mu.RLock()
	r, ok := sh.m[key]
	sh.mu.RUnlock()
	if ok {
		c.hits.Add(1)
		return r, nil
	}

	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		sh.mu.RLock()
		r, ok := sh.m[key]
		sh.mu.RUnlock()
		if ok {
			return r, nil
		}
		c.misses.Add(1)
		r, err := c.r.render(sub, scaleFactor, emojiScale)
		if err != nil {
			return nil, err
		}
		sh.mu.Lock()
		sh.m[key] = r
		sh.mu.Unlock()
		return r, nil
	})
	if err != nil {
		return nil, fmt.Errorf("render subtitle %q: %w", sub.Text, err)
	}
	return v.(*Rendered), nil
}

// BBox returns the destination rectangle Draw would cover: the bitmap centred
// on (x*scaleFactor+offsetX, y*scaleFactor+offsetY).
func (c *Cache) BBox(sub Subtitle, scaleFactor, emojiScale float64, offsetX, offsetY int) (image.Rectangle, error) {
	r, err := c.Render(sub, scaleFactor, emojiScale)
	if err != nil {
		return image.Rectangle{}, err
	}
	return placement(sub, r, scaleFactor, offsetX, offsetY), nil
}

// Draw composites the cached bitmap for sub onto dst.
func (c *Cache) Draw(dst draw.Image, sub Subtitle, scaleFactor, emojiScale float64, offsetX, offsetY int) error {
	r, err := c.Render(sub, scaleFactor, emojiScale)
	if err != nil {
		return err
	}
	rect := placement(sub, r, scaleFactor, offsetX, offsetY)
	draw.Draw(dst, rect, r.Image, image.Point{}, draw.Over)
	return nil
}

func placement(sub Subtitle, r *Rendered, scaleFactor float64, offsetX, offsetY int) image.Rectangle {
	cx := int(math.Round(sub.X*scaleFactor)) + offsetX
	cy := int(math.Round(sub.Y*scaleFactor)) + offsetY
	w, h := r.Image.Bounds().Dx(), r.Image.Bounds().Dy()
	tl := image.Pt(cx-w/2, cy-h/2)
	return image.Rectangle{Min: tl, Max: tl.Add(image.Pt(w, h))}
}

func (c *Cache) Stats() Stats {
	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load()}
}

// Len returns the number of cached bitmaps.
func (c *Cache) Len() int {
	n := 0
	for i := range c.shards {
		sh := &c.shards[i]
		sh.mu.RLock()
		n += len(sh.m)
		sh.mu.RUnlock()
	}
	return n
}
