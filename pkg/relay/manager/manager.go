// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package manager assembles the connection-management stack: auth header
// construction, session negotiation, client pooling, the tool catalog, and
// compliance probing, behind one façade.
package manager

import (
	"context"
	"fmt"
	"time"

	"github.com/relaymesh/mcprelay/pkg/logger"
	"github.com/relaymesh/mcprelay/pkg/relay"
	"github.com/relaymesh/mcprelay/pkg/relay/auth"
	"github.com/relaymesh/mcprelay/pkg/relay/catalog"
	"github.com/relaymesh/mcprelay/pkg/relay/client"
	"github.com/relaymesh/mcprelay/pkg/relay/compliance"
	"github.com/relaymesh/mcprelay/pkg/relay/rpc"
	"github.com/relaymesh/mcprelay/pkg/relay/session"
	"github.com/relaymesh/mcprelay/pkg/relay/telemetry"
)

// Config holds the manager's tunables.
type Config struct {
	// SessionTTL bounds negotiated session lifetimes.
	SessionTTL time.Duration
	// CatalogTTL bounds tool catalog freshness.
	CatalogTTL time.Duration
	// Pool configures the client pool.
	Pool client.PoolConfig
	// RPCTimeout bounds direct-HTTP calls at the transport level.
	RPCTimeout time.Duration
}

// DefaultConfig returns the production configuration.
func DefaultConfig() Config {
	return Config{
		SessionTTL: session.DefaultTTL,
		CatalogTTL: catalog.DefaultTTL,
		Pool:       client.DefaultPoolConfig(),
		RPCTimeout: relay.DefaultCallTimeout,
	}
}

// Manager owns the full connection-management stack for remote tool
// servers. It is safe for concurrent use and meant to be created once per
// process.
type Manager struct {
	headers   *auth.Registry
	rpc       *rpc.Client
	sessions  *session.Store
	pool      *client.Pool
	connector *client.Connector
	catalog   *catalog.Service
	prober    *compliance.Prober
}

// New creates a Manager with the given configuration.
func New(cfg Config) *Manager {
	headers := auth.NewRegistry()
	rpcClient := rpc.NewClient(cfg.RPCTimeout)
	sessions := session.NewStore(rpcClient, headers, session.Config{TTL: cfg.SessionTTL})
	pool := client.NewPool(client.NewFactory(headers, sessions), sessions, cfg.Pool)
	connector := client.NewConnector(pool)
	cat := catalog.NewService(connector, rpcClient, sessions, headers, cfg.CatalogTTL)

	return &Manager{
		headers:   headers,
		rpc:       rpcClient,
		sessions:  sessions,
		pool:      pool,
		connector: connector,
		catalog:   cat,
		prober:    compliance.NewProber(connector, cat, rpcClient, headers, sessions),
	}
}

// GetServerTools returns the tool definitions for one server, served from
// the catalog cache when fresh.
func (m *Manager) GetServerTools(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
) ([]relay.ToolInstance, error) {
	return m.catalog.ServerTools(ctx, conn, conversationID)
}

// GetTools aggregates tool definitions across servers. A failing server
// contributes nothing; its error is logged and the rest of the catalog is
// still returned. The error is non-nil only when every server failed.
func (m *Manager) GetTools(
	ctx context.Context,
	conns []*relay.ServerConnection,
	conversationID string,
) ([]relay.ToolInstance, error) {
	var (
		all     []relay.ToolInstance
		lastErr error
		failed  int
	)
	for _, conn := range conns {
		tools, err := m.catalog.ServerTools(ctx, conn, conversationID)
		if err != nil {
			logger.Warnf("skipping server %s in tool aggregation: %v", conn.ID, err)
			lastErr = err
			failed++
			continue
		}
		all = append(all, tools...)
	}
	if len(conns) > 0 && failed == len(conns) {
		return nil, fmt.Errorf("all %d servers failed, last error: %w", failed, lastErr)
	}
	return all, nil
}

// ExecuteTool invokes a tool on a server. Challenge-response servers are
// served over the direct-HTTP path with their negotiated session; everything
// else goes through the pooled client.
func (m *Manager) ExecuteTool(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
	toolName string,
	args map[string]any,
) (*relay.ToolResult, error) {
	if conn.AuthType == relay.AuthSimple {
		return m.executeLegacy(ctx, conn, conversationID, toolName, args)
	}
	return m.connector.CallTool(ctx, conn, conversationID, toolName, args)
}

func (m *Manager) executeLegacy(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
	toolName string,
	args map[string]any,
) (*relay.ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, conn.CallTimeout())
	defer cancel()

	sc, err := m.sessions.Ensure(ctx, conn, conversationID)
	if err != nil {
		telemetry.ToolCalls.WithLabelValues(conn.ID, "error").Inc()
		return nil, err
	}

	headers := m.headers.Headers(conn)
	for name, values := range session.SessionHeader(sc) {
		for _, v := range values {
			headers.Set(name, v)
		}
	}

	result, err := m.rpc.CallTool(ctx, conn.URL, headers, toolName, args)
	if err != nil {
		telemetry.ToolCalls.WithLabelValues(conn.ID, "error").Inc()
		return nil, err
	}

	outcome := "ok"
	if result.IsError {
		outcome = "tool_error"
	}
	telemetry.ToolCalls.WithLabelValues(conn.ID, outcome).Inc()
	return result, nil
}

// ListResources returns the server's resource definitions.
func (m *Manager) ListResources(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
) ([]relay.ResourceInstance, error) {
	return m.connector.ListResources(ctx, conn, conversationID)
}

// ListPrompts returns the server's prompt definitions.
func (m *Manager) ListPrompts(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
) ([]relay.PromptInstance, error) {
	return m.connector.ListPrompts(ctx, conn, conversationID)
}

// TestConnection verifies the server is reachable and speaking MCP by
// running the handshake and a tool listing. The returned error, when
// non-nil, carries a sentinel usable with errors.Is and classifiable with
// relay.Classify.
func (m *Manager) TestConnection(ctx context.Context, conn *relay.ServerConnection) error {
	m.catalog.Invalidate(conn.ID)
	_, err := m.catalog.ServerTools(ctx, conn, "")
	return err
}

// RunComplianceReport probes the server's protocol conformance. It never
// fails; findings live in the report.
func (m *Manager) RunComplianceReport(ctx context.Context, conn *relay.ServerConnection) *compliance.Report {
	return m.prober.Probe(ctx, conn)
}

// InvalidateSession drops negotiated sessions and the pooled clients built
// on them. With a conversationID it targets that scope only; with "" it
// drops every scope for the server. The next request renegotiates from
// scratch.
func (m *Manager) InvalidateSession(serverID, conversationID string) {
	if conversationID == "" {
		m.pool.RemoveServer(serverID)
		m.sessions.InvalidateServer(serverID)
		return
	}
	m.pool.Remove(relay.PoolKey(serverID, conversationID))
	m.sessions.Invalidate(serverID, conversationID)
}

// InvalidateCache drops the server's cached tool listing. Pass "" to drop
// every listing.
func (m *Manager) InvalidateCache(serverID string) {
	if serverID == "" {
		m.catalog.InvalidateAll()
		return
	}
	m.catalog.Invalidate(serverID)
}

// Shutdown tears down pooled clients and stops background sweepers.
func (m *Manager) Shutdown() {
	m.pool.Close()
	m.sessions.Stop()
	logger.Info("connection manager shut down")
}
