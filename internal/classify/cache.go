package classify

import (
	"context"
	"time"

	"beatsketch/internal/beat"

	"github.com/patrickmn/go-cache"
)

// Cached remembers successful answers of an inner classifier for a while,
// keyed by the rendered prompt. Feature vectors that render identically are
// only classified once per TTL. Failures are never cached.
type Cached struct {
	inner Classifier
	cache *cache.Cache
}

var (
	_ Classifier = (*Cached)(nil)
	_ Lookuper   = (*Cached)(nil)
)

// NewCached wraps inner with a cache whose entries expire after ttl.
func NewCached(inner Classifier, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: cache.New(ttl, 2*ttl),
	}
}

// Name reports the wrapped classifier's source.
func (c *Cached) Name() string { return NameOf(c.inner) }

// Lookup returns the cached answer for f without calling the inner
// classifier.
func (c *Cached) Lookup(f beat.Features) (beat.SoundType, bool) {
	v, ok := c.cache.Get(BuildPrompt(f))
	if !ok {
		return 0, false
	}
	return v.(beat.SoundType), true
}

// Classify implements Classifier.
func (c *Cached) Classify(ctx context.Context, f beat.Features) (beat.SoundType, error) {
	if s, ok := c.Lookup(f); ok {
		return s, nil
	}
	s, err := c.inner.Classify(ctx, f)
	if err != nil {
		return s, err
	}
	c.cache.Set(BuildPrompt(f), s, cache.DefaultExpiration)
	return s, nil
}

// Len returns the number of cached entries, including expired ones not yet
// cleaned up.
func (c *Cached) Len() int {
	return c.cache.ItemCount()
}
