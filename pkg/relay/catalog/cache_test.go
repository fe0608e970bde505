// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/mcprelay/pkg/relay"
)

func TestCacheGetPut(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute)

	_, _, ok := c.Get("srv-1")
	assert.False(t, ok)

	tools := []relay.ToolInstance{{Name: "echo", ServerID: "srv-1"}}
	c.Put("srv-1", tools)

	got, fresh, ok := c.Get("srv-1")
	require.True(t, ok)
	assert.True(t, fresh)
	assert.Equal(t, tools, got)
}

func TestCacheStaleEntryIsStillReturned(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute)
	c.Put("srv-1", []relay.ToolInstance{{Name: "echo"}})

	c.mu.Lock()
	e := c.entries["srv-1"]
	e.fetchedAt = time.Now().Add(-2 * time.Minute)
	c.entries["srv-1"] = e
	c.mu.Unlock()

	got, fresh, ok := c.Get("srv-1")
	require.True(t, ok)
	assert.False(t, fresh, "expired entry should not be fresh")
	assert.Len(t, got, 1)
}

func TestCachePutResetsFreshness(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute)
	c.Put("srv-1", []relay.ToolInstance{{Name: "old"}})

	c.mu.Lock()
	e := c.entries["srv-1"]
	e.fetchedAt = time.Now().Add(-2 * time.Minute)
	c.entries["srv-1"] = e
	c.mu.Unlock()

	c.Put("srv-1", []relay.ToolInstance{{Name: "new"}})

	got, fresh, ok := c.Get("srv-1")
	require.True(t, ok)
	assert.True(t, fresh)
	assert.Equal(t, "new", got[0].Name)
}

func TestCacheInvalidate(t *testing.T) {
	t.Parallel()

	c := NewCache(time.Minute)
	c.Put("srv-1", []relay.ToolInstance{{Name: "echo"}})
	c.Put("srv-2", []relay.ToolInstance{{Name: "sum"}})

	c.Invalidate("srv-1")
	_, _, ok := c.Get("srv-1")
	assert.False(t, ok)
	_, _, ok = c.Get("srv-2")
	assert.True(t, ok)

	c.InvalidateAll()
	_, _, ok = c.Get("srv-2")
	assert.False(t, ok)
}

func TestCacheZeroTTLUsesDefault(t *testing.T) {
	t.Parallel()

	c := NewCache(0)
	assert.Equal(t, DefaultTTL, c.ttl)
}
