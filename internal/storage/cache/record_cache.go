package cache

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/objones25/fuzzgroup/internal/storage"
	"github.com/objones25/fuzzgroup/internal/storage/monitor"
)

const defaultSize = 10000

// Ensure RecordCache implements RecordSource
var _ storage.RecordSource = (*RecordCache)(nil)

// RecordCache serves records from an in-memory LRU in front of a slower source.
// Only records with every field embedded are cached; others may still change.
type RecordCache struct {
	source storage.RecordSource
	cache  *lru.Cache[string, *storage.Record]
	fields int
}

// NewRecordCache wraps source with an LRU of the given size
func NewRecordCache(source storage.RecordSource, size, fields int) (*RecordCache, error) {
	if source == nil {
		return nil, fmt.Errorf("source cannot be nil")
	}
	if size <= 0 {
		size = defaultSize
	}
	c, err := lru.New[string, *storage.Record](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	return &RecordCache{source: source, cache: c, fields: fields}, nil
}

// Records returns cached records and fetches the misses in one call
func (c *RecordCache) Records(ctx context.Context, ids []string) ([]*storage.Record, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	found := make(map[string]*storage.Record, len(ids))
	var misses []string
	for _, id := range ids {
		if r, ok := c.cache.Get(id); ok {
			found[id] = r
			monitor.RecordCacheHits.Inc()
			continue
		}
		misses = append(misses, id)
		monitor.RecordCacheMisses.Inc()
	}

	if len(misses) > 0 {
		fetched, err := c.source.Records(ctx, misses)
		if err != nil {
			return nil, err
		}
		for _, r := range fetched {
			found[r.ID] = r
			if r.Ready(c.fields) {
				c.cache.Add(r.ID, r)
			}
		}
	}

	records := make([]*storage.Record, 0, len(found))
	for _, id := range ids {
		if r, ok := found[id]; ok {
			records = append(records, r)
		}
	}
	return records, nil
}

// Invalidate drops the given IDs from the cache
func (c *RecordCache) Invalidate(ids ...string) {
	for _, id := range ids {
		c.cache.Remove(id)
	}
}

// Len returns the number of cached records
func (c *RecordCache) Len() int {
	return c.cache.Len()
}

// Purge empties the cache
func (c *RecordCache) Purge() {
	c.cache.Purge()
}
