package marketdata

import (
	"sync"
	"time"

	"arb-monitor/internal/models"
)

// cacheEntry is never modified after it is stored.
type cacheEntry struct {
	snapshot  *models.MarketSnapshot
	expiresAt time.Time
}

// snapshotCache maps asset keys to immutable entries. Writers replace entries
// wholesale, so readers always see a complete snapshot without locking.
type snapshotCache struct {
	entries sync.Map // string -> *cacheEntry
}

func (c *snapshotCache) get(key string, now time.Time) (*models.MarketSnapshot, bool) {
	v, ok := c.entries.Load(key)
	if !ok {
		return nil, false
	}
	e := v.(*cacheEntry)
	if !now.Before(e.expiresAt) {
		return nil, false
	}
	return e.snapshot, true
}

func (c *snapshotCache) put(key string, snap *models.MarketSnapshot, expiresAt time.Time) {
	c.entries.Store(key, &cacheEntry{snapshot: snap, expiresAt: expiresAt})
}

func (c *snapshotCache) delete(key string) {
	c.entries.Delete(key)
}

func (c *snapshotCache) clear() {
	c.entries.Range(func(k, _ any) bool {
		c.entries.Delete(k)
		return true
	})
}
