// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"net"
	"sync"
	"syscall"
	"time"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/relaymesh/mcprelay/pkg/logger"
	"github.com/relaymesh/mcprelay/pkg/relay"
	"github.com/relaymesh/mcprelay/pkg/relay/session"
	"github.com/relaymesh/mcprelay/pkg/relay/telemetry"
)

// Pool tunables.
const (
	// DefaultIdleTTL is how long an unused client survives in the pool.
	DefaultIdleTTL = 30 * time.Minute
	// DefaultSweepInterval is how often idle clients are reclaimed.
	DefaultSweepInterval = 5 * time.Minute
	// DefaultMaxClients bounds the pool; the least recently used client is
	// evicted to admit a new one.
	DefaultMaxClients = 100
)

// PoolConfig holds the tunables for a Pool.
type PoolConfig struct {
	IdleTTL       time.Duration
	SweepInterval time.Duration
	MaxClients    int
}

// DefaultPoolConfig returns the production pool configuration.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		IdleTTL:       DefaultIdleTTL,
		SweepInterval: DefaultSweepInterval,
		MaxClients:    DefaultMaxClients,
	}
}

type poolEntry struct {
	client   *mcpclient.Client
	conn     *relay.ServerConnection
	scope    string
	lastUsed time.Time
}

// Pool caches initialized MCP clients keyed by server (and, for
// conversation-scoped servers, conversation). Creation is single-flighted
// per key. Safe for concurrent use.
type Pool struct {
	entries map[string]*poolEntry
	mu      sync.Mutex

	group    singleflight.Group
	factory  Factory
	sessions *session.Store
	cfg      PoolConfig
	tracer   trace.Tracer
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewPool creates a client pool backed by the given factory and starts its
// idle sweeper. The session store is consulted on teardown so that sessions
// outlive their clients where the scheme requires it.
func NewPool(factory Factory, sessions *session.Store, cfg PoolConfig) *Pool {
	if cfg.IdleTTL <= 0 {
		cfg.IdleTTL = DefaultIdleTTL
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = DefaultSweepInterval
	}
	if cfg.MaxClients <= 0 {
		cfg.MaxClients = DefaultMaxClients
	}
	p := &Pool{
		entries:  make(map[string]*poolEntry),
		factory:  factory,
		sessions: sessions,
		cfg:      cfg,
		tracer:   otel.Tracer("mcprelay/client"),
		stopCh:   make(chan struct{}),
	}
	go p.sweepRoutine()
	return p
}

func (p *Pool) sweepRoutine() {
	ticker := time.NewTicker(p.cfg.SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			p.sweepIdle()
		case <-p.stopCh:
			return
		}
	}
}

// GetOrCreate returns the pooled client for the server, creating and
// initializing one if needed. Concurrent callers for the same key share one
// creation. The conversationID scopes the client when the server keeps
// per-conversation state; pass "" for shared servers.
func (p *Pool) GetOrCreate(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
) (*mcpclient.Client, error) {
	key := conn.PoolKey(conversationID)

	if c, ok := p.lookup(key); ok {
		return c, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		if c, ok := p.lookup(key); ok {
			return c, nil
		}

		ctx, span := p.tracer.Start(ctx, "pool.create_client", trace.WithAttributes(
			attribute.String("server.id", conn.ID),
			attribute.String("pool.key", key),
		))
		defer span.End()

		c, err := p.factory(ctx, conn, conversationID)
		if err != nil {
			span.RecordError(err)
			return nil, err
		}
		telemetry.ClientCreations.WithLabelValues(conn.ID).Inc()

		p.mu.Lock()
		if len(p.entries) >= p.cfg.MaxClients {
			p.evictLRULocked()
		}
		p.entries[key] = &poolEntry{client: c, conn: conn, scope: conversationID, lastUsed: time.Now()}
		telemetry.PoolSize.Set(float64(len(p.entries)))
		p.mu.Unlock()

		return c, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*mcpclient.Client), nil
}

// lookup returns a live pooled client and refreshes its idle timestamp.
func (p *Pool) lookup(key string) (*mcpclient.Client, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[key]
	if !ok {
		return nil, false
	}
	e.lastUsed = time.Now()
	return e.client, true
}

// Remove closes and drops the client under key. Callers use it after a
// connection-level failure so the next request builds a fresh client.
func (p *Pool) Remove(key string) {
	p.removeWithReason(key, "unhealthy")
}

func (p *Pool) removeWithReason(key, reason string) {
	p.mu.Lock()
	e, ok := p.entries[key]
	if ok {
		delete(p.entries, key)
		telemetry.PoolSize.Set(float64(len(p.entries)))
	}
	p.mu.Unlock()

	if ok {
		p.teardown(e, reason)
	}
}

// teardown closes a client and invalidates its session. Challenge-response
// sessions are deliberately preserved: re-running the handshake is expensive
// and the session key remains valid independent of the client's lifetime.
func (p *Pool) teardown(e *poolEntry, reason string) {
	if e.client != nil {
		if err := e.client.Close(); err != nil {
			logger.Warnf("failed to close client for server %s: %v", e.conn.ID, err)
		}
	}
	if p.sessions != nil && e.conn.AuthType != relay.AuthSimple {
		p.sessions.Invalidate(e.conn.ID, e.scope)
	}
	telemetry.ClientEvictions.WithLabelValues(reason).Inc()
	logger.Debugf("removed pooled client for server %s (%s)", e.conn.ID, reason)
}

// sweepIdle reclaims clients that have been unused longer than the idle TTL.
func (p *Pool) sweepIdle() {
	cutoff := time.Now().Add(-p.cfg.IdleTTL)

	p.mu.Lock()
	var idle []*poolEntry
	for key, e := range p.entries {
		if e.lastUsed.Before(cutoff) {
			delete(p.entries, key)
			idle = append(idle, e)
		}
	}
	telemetry.PoolSize.Set(float64(len(p.entries)))
	p.mu.Unlock()

	for _, e := range idle {
		p.teardown(e, "idle")
	}
}

// evictLRULocked drops the least recently used entry. Caller holds p.mu.
func (p *Pool) evictLRULocked() {
	var (
		oldestKey string
		oldest    *poolEntry
	)
	for key, e := range p.entries {
		if oldest == nil || e.lastUsed.Before(oldest.lastUsed) {
			oldestKey, oldest = key, e
		}
	}
	if oldest == nil {
		return
	}
	delete(p.entries, oldestKey)
	// Teardown without the lock; Close may block on the transport.
	go p.teardown(oldest, "lru")
}

// RemoveServer drops every pooled client for the given server, including
// conversation-scoped ones.
func (p *Pool) RemoveServer(serverID string) {
	p.mu.Lock()
	var victims []*poolEntry
	for key, e := range p.entries {
		if e.conn.ID == serverID {
			delete(p.entries, key)
			victims = append(victims, e)
		}
	}
	telemetry.PoolSize.Set(float64(len(p.entries)))
	p.mu.Unlock()

	for _, e := range victims {
		p.teardown(e, "invalidated")
	}
}

// Len returns the number of pooled clients.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// Close stops the sweeper and tears down every pooled client.
func (p *Pool) Close() {
	p.stopOnce.Do(func() { close(p.stopCh) })

	p.mu.Lock()
	entries := make([]*poolEntry, 0, len(p.entries))
	for _, e := range p.entries {
		entries = append(entries, e)
	}
	p.entries = make(map[string]*poolEntry)
	telemetry.PoolSize.Set(0)
	p.mu.Unlock()

	for _, e := range entries {
		p.teardown(e, "shutdown")
	}
}

// shouldRecreate reports whether an error indicates a broken connection that
// warrants dropping the pooled client.
func shouldRecreate(err error) bool {
	if err == nil {
		return false
	}

	// syscall.Errno implements net.Error, so check it first.
	var syscallErr syscall.Errno
	if errors.As(err, &syscallErr) {
		switch syscallErr { //nolint:exhaustive // only connection failures matter here
		case syscall.ECONNRESET, syscall.ECONNREFUSED, syscall.EPIPE, syscall.ECONNABORTED:
			return true
		default:
			return false
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		// Timeouts may be transient; keep the client.
		return !netErr.Timeout()
	}

	return false
}
