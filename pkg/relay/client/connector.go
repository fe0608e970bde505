// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"encoding/json"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/relaymesh/mcprelay/pkg/relay"
	"github.com/relaymesh/mcprelay/pkg/relay/telemetry"
)

// Connector drives protocol operations over pooled clients and converts the
// SDK's types into the manager's domain types. A client that fails with a
// connection-level error is dropped from the pool so the next call rebuilds
// it.
type Connector struct {
	pool *Pool
}

// NewConnector creates a Connector over the given pool.
func NewConnector(pool *Pool) *Connector {
	return &Connector{pool: pool}
}

// Pool exposes the underlying pool for lifecycle management.
func (c *Connector) Pool() *Pool {
	return c.pool
}

// ListServerTools fetches the server's tool definitions.
func (c *Connector) ListServerTools(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
) ([]relay.ToolInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, conn.CallTimeout())
	defer cancel()

	mc, err := c.pool.GetOrCreate(ctx, conn, conversationID)
	if err != nil {
		return nil, err
	}

	result, err := mc.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		c.dropOnConnError(conn, conversationID, err)
		return nil, wrapServerError(err, conn.ID, "list tools")
	}

	tools := make([]relay.ToolInstance, 0, len(result.Tools))
	for _, t := range result.Tools {
		tools = append(tools, relay.ToolInstance{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: schemaToMap(t.InputSchema),
			ServerID:    conn.ID,
		})
	}
	return tools, nil
}

// CallTool invokes a named tool on the server.
func (c *Connector) CallTool(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
	name string,
	args map[string]any,
) (*relay.ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, conn.CallTimeout())
	defer cancel()

	mc, err := c.pool.GetOrCreate(ctx, conn, conversationID)
	if err != nil {
		telemetry.ToolCalls.WithLabelValues(conn.ID, "error").Inc()
		return nil, err
	}

	result, err := mc.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		c.dropOnConnError(conn, conversationID, err)
		telemetry.ToolCalls.WithLabelValues(conn.ID, "error").Inc()
		return nil, wrapServerError(err, conn.ID, "call tool "+name)
	}

	outcome := "ok"
	if result.IsError {
		outcome = "tool_error"
	}
	telemetry.ToolCalls.WithLabelValues(conn.ID, outcome).Inc()

	return &relay.ToolResult{
		Content: convertContent(result.Content),
		IsError: result.IsError,
	}, nil
}

// ListResources fetches the server's resource definitions.
func (c *Connector) ListResources(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
) ([]relay.ResourceInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, conn.CallTimeout())
	defer cancel()

	mc, err := c.pool.GetOrCreate(ctx, conn, conversationID)
	if err != nil {
		return nil, err
	}

	result, err := mc.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		c.dropOnConnError(conn, conversationID, err)
		return nil, wrapServerError(err, conn.ID, "list resources")
	}

	resources := make([]relay.ResourceInstance, 0, len(result.Resources))
	for _, r := range result.Resources {
		resources = append(resources, relay.ResourceInstance{
			URI:         r.URI,
			Name:        r.Name,
			Description: r.Description,
			MimeType:    r.MIMEType,
			ServerID:    conn.ID,
		})
	}
	return resources, nil
}

// ListPrompts fetches the server's prompt definitions.
func (c *Connector) ListPrompts(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
) ([]relay.PromptInstance, error) {
	ctx, cancel := context.WithTimeout(ctx, conn.CallTimeout())
	defer cancel()

	mc, err := c.pool.GetOrCreate(ctx, conn, conversationID)
	if err != nil {
		return nil, err
	}

	result, err := mc.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		c.dropOnConnError(conn, conversationID, err)
		return nil, wrapServerError(err, conn.ID, "list prompts")
	}

	prompts := make([]relay.PromptInstance, 0, len(result.Prompts))
	for _, p := range result.Prompts {
		prompts = append(prompts, relay.PromptInstance{
			Name:        p.Name,
			Description: p.Description,
			ServerID:    conn.ID,
		})
	}
	return prompts, nil
}

// Client returns an initialized client for the connection without invoking
// any operation. The compliance prober uses it for handshake checks.
func (c *Connector) Client(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
) (*mcpclient.Client, error) {
	return c.pool.GetOrCreate(ctx, conn, conversationID)
}

func (c *Connector) dropOnConnError(conn *relay.ServerConnection, conversationID string, err error) {
	if shouldRecreate(err) {
		c.pool.Remove(conn.PoolKey(conversationID))
	}
}

// schemaToMap converts the SDK's typed input schema into the loosely typed
// map the catalog stores. A schema that fails to round-trip degrades to nil
// rather than failing the listing.
func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil
	}
	return m
}

// convertContent flattens the SDK's typed content items.
func convertContent(items []mcp.Content) []relay.Content {
	out := make([]relay.Content, 0, len(items))
	for _, item := range items {
		switch v := item.(type) {
		case mcp.TextContent:
			out = append(out, relay.Content{Type: "text", Text: v.Text})
		case mcp.ImageContent:
			out = append(out, relay.Content{Type: "image", Data: v.Data, MimeType: v.MIMEType})
		case mcp.AudioContent:
			out = append(out, relay.Content{Type: "audio", Data: v.Data, MimeType: v.MIMEType})
		case mcp.EmbeddedResource:
			if text, ok := v.Resource.(mcp.TextResourceContents); ok {
				out = append(out, relay.Content{Type: "resource", Text: text.Text, MimeType: text.MIMEType})
			}
		}
	}
	return out
}
