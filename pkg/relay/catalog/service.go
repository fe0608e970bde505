// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package catalog

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/relaymesh/mcprelay/pkg/logger"
	"github.com/relaymesh/mcprelay/pkg/relay"
	"github.com/relaymesh/mcprelay/pkg/relay/auth"
	"github.com/relaymesh/mcprelay/pkg/relay/client"
	"github.com/relaymesh/mcprelay/pkg/relay/rpc"
	"github.com/relaymesh/mcprelay/pkg/relay/session"
	"github.com/relaymesh/mcprelay/pkg/relay/telemetry"
)

// Service answers tool listings from the cache, fetching through the pooled
// client path on a miss. Servers on the challenge-response scheme bypass the
// pool and fetch over the direct-HTTP path, which is the only transport that
// carries their handshake.
type Service struct {
	cache     *Cache
	connector *client.Connector
	rpc       *rpc.Client
	sessions  *session.Store
	headers   *auth.Registry
	tracer    trace.Tracer
}

// NewService creates a catalog service with the given TTL.
func NewService(
	connector *client.Connector,
	rpcClient *rpc.Client,
	sessions *session.Store,
	headers *auth.Registry,
	ttl time.Duration,
) *Service {
	return &Service{
		cache:     NewCache(ttl),
		connector: connector,
		rpc:       rpcClient,
		sessions:  sessions,
		headers:   headers,
		tracer:    otel.Tracer("mcprelay/catalog"),
	}
}

// ServerTools returns the tool definitions for one server.
//
// A fresh cache entry is returned directly. On a miss or expiry the listing
// is refetched; if the fetch fails with a retryable error and a stale entry
// exists, the stale entry is served so transient server trouble does not
// blank out discovery.
func (s *Service) ServerTools(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
) ([]relay.ToolInstance, error) {
	if tools, fresh, ok := s.cache.Get(conn.ID); ok && fresh {
		telemetry.CatalogHits.WithLabelValues(conn.ID).Inc()
		return tools, nil
	}
	telemetry.CatalogMisses.WithLabelValues(conn.ID).Inc()

	ctx, span := s.tracer.Start(ctx, "catalog.fetch_tools", trace.WithAttributes(
		attribute.String("server.id", conn.ID),
	))
	defer span.End()

	tools, err := s.fetch(ctx, conn, conversationID)
	if err == nil {
		s.cache.Put(conn.ID, tools)
		span.SetAttributes(attribute.Int("tools.count", len(tools)))
		return tools, nil
	}
	span.RecordError(err)

	if stale, _, ok := s.cache.Get(conn.ID); ok && relay.Classify(err).Retryable {
		logger.Warnf("serving stale tool catalog for server %s after fetch failure: %v", conn.ID, err)
		telemetry.CatalogStaleServes.WithLabelValues(conn.ID).Inc()
		return stale, nil
	}
	return nil, err
}

// Invalidate drops the cached listing for a server.
func (s *Service) Invalidate(serverID string) {
	s.cache.Invalidate(serverID)
}

// InvalidateAll drops every cached listing.
func (s *Service) InvalidateAll() {
	s.cache.InvalidateAll()
}

func (s *Service) fetch(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
) ([]relay.ToolInstance, error) {
	if conn.AuthType == relay.AuthSimple {
		return s.fetchLegacy(ctx, conn, conversationID)
	}
	return s.connector.ListServerTools(ctx, conn, conversationID)
}

// fetchLegacy lists tools over direct HTTP with a challenge-negotiated
// session.
func (s *Service) fetchLegacy(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
) ([]relay.ToolInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, conn.CallTimeout())
	defer cancel()

	sc, err := s.sessions.Ensure(ctx, conn, conversationID)
	if err != nil {
		return nil, err
	}

	headers := s.headers.Headers(conn)
	for name, values := range session.SessionHeader(sc) {
		for _, v := range values {
			headers.Set(name, v)
		}
	}

	specs, err := s.rpc.ListTools(ctx, conn.URL, headers)
	if err != nil {
		return nil, fmt.Errorf("legacy tool listing for server %s failed: %w", conn.ID, err)
	}

	tools := make([]relay.ToolInstance, 0, len(specs))
	for _, t := range specs {
		tools = append(tools, relay.ToolInstance{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
			ServerID:    conn.ID,
		})
	}
	return tools, nil
}
