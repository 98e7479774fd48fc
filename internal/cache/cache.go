package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/hyperjump/awase/internal/align"
	"github.com/hyperjump/awase/internal/m2"
)

// Cache answers "what edits align this hypothesis file to this source file"
// from the store when possible, and through the aligner otherwise. Concurrent
// requests for the same key collapse into a single aligner call.
type Cache struct {
	store  Store
	group  singleflight.Group
	logger *zap.Logger // optional; when set, logs hits, misses, and regeneration
}

// Option configures a Cache.
type Option func(*Cache)

// WithLogger sets a logger for debug output (hits, misses, regenerated entries).
func WithLogger(l *zap.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// New creates a cache over store.
func New(store Store, opts ...Option) *Cache {
	c := &Cache{store: store}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// GetOrCompute returns the per-sentence edit entries aligning hypothesis to
// source. On a hit the aligner is not invoked. On a miss the aligner runs,
// the result is published to the store, and returned. A store entry that
// fails to parse counts as a miss and is regenerated.
func (c *Cache) GetOrCompute(ctx context.Context, system string, source, hypothesis []string, aligner align.Aligner) ([]m2.Entry, error) {
	key := c.store.Key(system, source, hypothesis)
	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		entries, ok, err := c.store.Get(ctx, key)
		if err != nil {
			// Malformed entry: regenerate rather than abort.
			if c.logger != nil {
				c.logger.Warn("malformed cache entry, regenerating", zap.String("key", key), zap.Error(err))
			}
			_ = c.store.Delete(ctx, key)
		} else if ok {
			if c.logger != nil {
				c.logger.Debug("cache hit", zap.String("system", system), zap.String("key", key))
			}
			return entries, nil
		}

		edits, err := aligner.AlignBatch(ctx, source, hypothesis)
		if err != nil {
			return nil, fmt.Errorf("alignment of %s failed: %w", system, err)
		}
		entries = make([]m2.Entry, len(source))
		for i := range source {
			entries[i] = m2.Entry{Source: source[i], Edits: edits[i]}
		}
		if err := c.store.Put(ctx, key, entries); err != nil {
			// A failed write only loses memoization; the computed result is still good.
			if c.logger != nil {
				c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
		return entries, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]m2.Entry), nil
}

// Invalidate drops the entry for the given triple.
func (c *Cache) Invalidate(ctx context.Context, system string, source, hypothesis []string) error {
	return c.store.Delete(ctx, c.store.Key(system, source, hypothesis))
}

// Close closes the underlying store.
func (c *Cache) Close() error {
	return c.store.Close()
}
