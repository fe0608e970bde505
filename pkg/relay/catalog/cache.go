// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package catalog caches the tool definitions advertised by remote servers
// so discovery traffic does not hit every server on every listing.
package catalog

import (
	"sync"
	"time"

	"github.com/relaymesh/mcprelay/pkg/relay"
)

// DefaultTTL is how long a cached tool listing is considered fresh.
const DefaultTTL = 5 * time.Minute

type entry struct {
	tools     []relay.ToolInstance
	fetchedAt time.Time
}

// Cache is a TTL cache of tool listings keyed by server id. Expired entries
// are kept until overwritten or invalidated so the service can fall back to
// them when a refetch fails. Safe for concurrent use.
type Cache struct {
	entries map[string]entry
	mu      sync.RWMutex
	ttl     time.Duration
}

// NewCache creates a Cache with the given TTL.
func NewCache(ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache{
		entries: make(map[string]entry),
		ttl:     ttl,
	}
}

// Get returns the cached listing for a server. fresh reports whether the
// entry is within its TTL; stale entries are still returned so callers can
// decide whether to serve them.
func (c *Cache) Get(serverID string) (tools []relay.ToolInstance, fresh, ok bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[serverID]
	if !ok {
		return nil, false, false
	}
	return e.tools, time.Since(e.fetchedAt) < c.ttl, true
}

// Put stores a listing for a server, resetting its TTL.
func (c *Cache) Put(serverID string, tools []relay.ToolInstance) {
	c.mu.Lock()
	c.entries[serverID] = entry{tools: tools, fetchedAt: time.Now()}
	c.mu.Unlock()
}

// Invalidate drops the cached listing for a server, stale fallback included.
func (c *Cache) Invalidate(serverID string) {
	c.mu.Lock()
	delete(c.entries, serverID)
	c.mu.Unlock()
}

// InvalidateAll drops every cached listing.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]entry)
	c.mu.Unlock()
}
