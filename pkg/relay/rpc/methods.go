// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package rpc

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/relaymesh/mcprelay/pkg/relay"
)

// Protocol method names spoken over the direct-HTTP path.
const (
	MethodInitialize    = "initialize"
	MethodAuth          = "auth"
	MethodToolsList     = "tools/list"
	MethodToolsCall     = "tools/call"
	MethodResourcesList = "resources/list"
	MethodPromptsList   = "prompts/list"
)

// ProtocolVersion is the MCP revision this client negotiates.
const ProtocolVersion = "2025-03-26"

const (
	clientName    = "mcprelay"
	clientVersion = "1.0.0"
)

// InitializeParams is the initialize request payload.
type InitializeParams struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ClientInfo      ClientInfo     `json:"clientInfo"`
}

// ClientInfo identifies this client to the server during initialization.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeResult is the decoded initialize response.
type InitializeResult struct {
	ProtocolVersion string         `json:"protocolVersion"`
	Capabilities    map[string]any `json:"capabilities"`
	ServerInfo      struct {
		Name    string `json:"name"`
		Version string `json:"version"`
	} `json:"serverInfo"`
}

// InitializeOutcome bundles the decoded result with the transport-assigned
// session id, when the server issued one.
type InitializeOutcome struct {
	Result    *InitializeResult
	SessionID string

	// RPCError is set when the server answered with a JSON-RPC error
	// envelope instead of a result. Auth-challenge negotiation starts here.
	RPCError *Error
	Status   int
}

// Initialize performs the MCP initialize handshake over direct HTTP.
func (c *Client) Initialize(ctx context.Context, endpoint string, headers http.Header) (*InitializeOutcome, error) {
	res, err := c.Call(ctx, endpoint, headers, MethodInitialize, InitializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      ClientInfo{Name: clientName, Version: clientVersion},
	})
	if err != nil {
		return nil, err
	}

	out := &InitializeOutcome{
		SessionID: res.Header.Get(HeaderSessionID),
		Status:    res.Status,
	}
	if res.Response.Error != nil {
		out.RPCError = res.Response.Error
		return out, nil
	}

	var result InitializeResult
	if err := json.Unmarshal(res.Response.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed initialize result: %v", relay.ErrProtocol, err)
	}
	out.Result = &result
	return out, nil
}

// ToolSpec is one tool definition as listed by a server.
type ToolSpec struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

type toolsListResult struct {
	Tools []ToolSpec `json:"tools"`
}

// ListTools fetches the server's tool definitions.
func (c *Client) ListTools(ctx context.Context, endpoint string, headers http.Header) ([]ToolSpec, error) {
	res, err := c.Call(ctx, endpoint, headers, MethodToolsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	if rpcErr := res.Err(); rpcErr != nil {
		return nil, fmt.Errorf("tools/list rejected by %s: %w", endpoint, rpcErr)
	}

	var result toolsListResult
	if err := json.Unmarshal(res.Response.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed tools/list result: %v", relay.ErrProtocol, err)
	}
	return result.Tools, nil
}

// CallToolParams is the tools/call request payload.
type CallToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type callToolResult struct {
	Content []relay.Content `json:"content"`
	IsError bool            `json:"isError"`
}

// CallTool invokes a named tool with the given arguments.
func (c *Client) CallTool(
	ctx context.Context,
	endpoint string,
	headers http.Header,
	name string,
	args map[string]any,
) (*relay.ToolResult, error) {
	if args == nil {
		args = map[string]any{}
	}
	res, err := c.Call(ctx, endpoint, headers, MethodToolsCall, CallToolParams{Name: name, Arguments: args})
	if err != nil {
		return nil, err
	}
	if rpcErr := res.Err(); rpcErr != nil {
		return nil, fmt.Errorf("tools/call %s rejected by %s: %w", name, endpoint, rpcErr)
	}

	var result callToolResult
	if err := json.Unmarshal(res.Response.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed tools/call result: %v", relay.ErrProtocol, err)
	}
	return &relay.ToolResult{Content: result.Content, IsError: result.IsError}, nil
}

// ResourceSpec is one resource definition as listed by a server.
type ResourceSpec struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description"`
	MimeType    string `json:"mimeType"`
}

type resourcesListResult struct {
	Resources []ResourceSpec `json:"resources"`
}

// ListResources fetches the server's resource definitions.
func (c *Client) ListResources(ctx context.Context, endpoint string, headers http.Header) ([]ResourceSpec, error) {
	res, err := c.Call(ctx, endpoint, headers, MethodResourcesList, map[string]any{})
	if err != nil {
		return nil, err
	}
	if rpcErr := res.Err(); rpcErr != nil {
		return nil, fmt.Errorf("resources/list rejected by %s: %w", endpoint, rpcErr)
	}

	var result resourcesListResult
	if err := json.Unmarshal(res.Response.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed resources/list result: %v", relay.ErrProtocol, err)
	}
	return result.Resources, nil
}

// PromptSpec is one prompt definition as listed by a server.
type PromptSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type promptsListResult struct {
	Prompts []PromptSpec `json:"prompts"`
}

// ListPrompts fetches the server's prompt definitions.
func (c *Client) ListPrompts(ctx context.Context, endpoint string, headers http.Header) ([]PromptSpec, error) {
	res, err := c.Call(ctx, endpoint, headers, MethodPromptsList, map[string]any{})
	if err != nil {
		return nil, err
	}
	if rpcErr := res.Err(); rpcErr != nil {
		return nil, fmt.Errorf("prompts/list rejected by %s: %w", endpoint, rpcErr)
	}

	var result promptsListResult
	if err := json.Unmarshal(res.Response.Result, &result); err != nil {
		return nil, fmt.Errorf("%w: malformed prompts/list result: %v", relay.ErrProtocol, err)
	}
	return result.Prompts, nil
}
