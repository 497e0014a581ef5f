// Package dedup remembers which incident revisions were already notified.
package dedup

import (
	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
)

// Key identifies one revision of an incident. A new LastChange for the same
// EventID is a different key, so a re-triggered incident notifies again.
type Key struct {
	EventID    string
	LastChange int64
}

// Cache is a fixed-capacity set of keys. When full, the key inserted
// longest ago is evicted first; lookups do not refresh recency.
type Cache struct {
	lru *lru.Cache[Key, struct{}]
}

func New(capacity int) (*Cache, error) {
	if capacity < 1 {
		return nil, errors.Newf("dedup cache capacity must be >= 1, got %d", capacity)
	}
	c, err := lru.New[Key, struct{}](capacity)
	if err != nil {
		return nil, errors.Wrap(err, "dedup cache")
	}
	return &Cache{lru: c}, nil
}

func (c *Cache) Contains(k Key) bool { return c.lru.Contains(k) }

// Insert adds k, evicting the oldest key if the cache is full. It reports
// whether an eviction happened.
func (c *Cache) Insert(k Key) (evicted bool) { return c.lru.Add(k, struct{}{}) }

func (c *Cache) Len() int { return c.lru.Len() }
