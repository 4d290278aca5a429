package query

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	pg_query "github.com/pganalyze/pg_query_go/v5"
)

// CountCache remembers row counts per normalized statement and argument list
// for a fixed duration. Entries record the tables they read so writes can
// drop them early.
type CountCache struct {
	items map[string]countItem
	ttl   time.Duration
	now   func() time.Time
	mu    sync.Mutex
}

type countItem struct {
	count      int
	tables     []Table
	expiration time.Time
}

// NewCountCache returns a cache whose entries live for ttl.
func NewCountCache(ttl time.Duration) *CountCache {
	return &CountCache{
		items: make(map[string]countItem),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Key derives a cache key from a statement and its arguments. Statements that
// differ only in whitespace or literal formatting share a fingerprint. Each
// argument is encoded with its type in Go syntax, so distinct argument lists
// never share a key.
func (c *CountCache) Key(sql string, args []any) string {
	fp, err := pg_query.Fingerprint(sql)
	if err != nil {
		fp = sql
	}
	var b strings.Builder
	b.WriteString(fp)
	for _, a := range args {
		fmt.Fprintf(&b, "|%T:%#v", a, a)
	}
	return b.String()
}

// Get returns the unexpired count stored under key.
func (c *CountCache) Get(key string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	item, ok := c.items[key]
	if !ok {
		return 0, false
	}
	if c.now().After(item.expiration) {
		delete(c.items, key)
		return 0, false
	}
	return item.count, true
}

// Set stores count under key. tables are the relations the count was read
// from.
func (c *CountCache) Set(key string, count int, tables ...Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = countItem{count: count, tables: tables, expiration: c.now().Add(c.ttl)}
}

// Invalidate drops every count read from t.
func (c *CountCache) Invalidate(t Table) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key, item := range c.items {
		if slices.Contains(item.tables, t) {
			delete(c.items, key)
		}
	}
}

// CleanupExpired removes expired entries.
func (c *CountCache) CleanupExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, item := range c.items {
		if now.After(item.expiration) {
			delete(c.items, key)
		}
	}
}
