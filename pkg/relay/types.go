// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"strings"
	"time"
)

// This file contains shared domain types used across the relay subpackages.

// AuthScheme identifies how a remote server authenticates callers.
type AuthScheme string

const (
	// AuthNone means the server requires no authentication.
	AuthNone AuthScheme = "none"

	// AuthAPIKey sends the secret in an X-API-Key header.
	AuthAPIKey AuthScheme = "api_key"

	// AuthBearerToken sends the secret as an Authorization bearer token.
	AuthBearerToken AuthScheme = "bearer_token"

	// AuthBasic sends username:secret as HTTP basic credentials.
	AuthBasic AuthScheme = "basic_auth"

	// AuthSimple is the custom MD5 challenge-response scheme. It cannot be
	// expressed as a static header; servers using it are bootstrapped through
	// the auth package's challenge flow and always require a session.
	AuthSimple AuthScheme = "simple_auth"
)

// SessionRequirement records whether a server needs a protocol session.
// It starts unknown and is learned once per process by the session store's
// probe, except for simple_auth servers which always require one.
type SessionRequirement string

const (
	// SessionUnknown means the server has not been probed yet.
	SessionUnknown SessionRequirement = "unknown"

	// SessionRequired means calls must carry a negotiated session id.
	SessionRequired SessionRequirement = "required"

	// SessionNotRequired means the server accepts sessionless calls.
	SessionNotRequired SessionRequirement = "not_required"
)

// ServerConnection describes one remote tool server. It is supplied by the
// host application with credentials already decrypted; the manager treats it
// as immutable except for RequiresSession, which the session store may learn
// and persist back for the remainder of the process lifetime.
type ServerConnection struct {
	// ID is the unique identifier for the server.
	ID string

	// Name is the human-readable server name.
	Name string

	// URL is the server's MCP endpoint.
	URL string

	// AuthType selects the authentication scheme.
	AuthType AuthScheme

	// Username is used by basic_auth and simple_auth.
	Username string

	// Secret is the API key, bearer token, password, or challenge secret,
	// depending on AuthType.
	Secret string

	// Timeout bounds each outbound call to this server. Zero means
	// DefaultCallTimeout.
	Timeout time.Duration

	// RateLimit is the advisory calls-per-minute budget for the server.
	// The manager records it but does not enforce it.
	RateLimit int

	// RequiresSession is the probed tri-state session requirement.
	RequiresSession SessionRequirement
}

// DefaultCallTimeout bounds outbound calls when a server does not configure
// its own timeout.
const DefaultCallTimeout = 30 * time.Second

// CallTimeout returns the per-call timeout for this server.
func (s *ServerConnection) CallTimeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultCallTimeout
}

// PoolKey returns the unit of client and session isolation for this server:
// the server id, combined with the conversation scope when one is supplied.
func (s *ServerConnection) PoolKey(conversationID string) string {
	return PoolKey(s.ID, conversationID)
}

// PoolKey combines a server id with an optional conversation scope.
func PoolKey(serverID, conversationID string) string {
	if conversationID == "" {
		return serverID
	}
	return serverID + "_" + conversationID
}

// TransportKind identifies the wire transport used to reach a server.
type TransportKind string

const (
	// TransportStreamable is the request/response streamable-HTTP transport.
	TransportStreamable TransportKind = "streamable-http"

	// TransportSSE is the server-push SSE transport.
	TransportSSE TransportKind = "sse"
)

// streamingPathHints are URL path fragments that indicate a server-push
// endpoint rather than a plain request/response one.
var streamingPathHints = []string{"/sse", "/events", "/stream"}

// TransportForURL chooses the transport from the endpoint shape: a streaming
// transport when the path hints at a push/event style, streamable-HTTP
// otherwise.
func TransportForURL(rawURL string) TransportKind {
	lower := strings.ToLower(rawURL)
	for _, hint := range streamingPathHints {
		if strings.Contains(lower, hint) {
			return TransportSSE
		}
	}
	return TransportStreamable
}

// ServerInfo is the remote server's self-reported identity from initialize.
type ServerInfo struct {
	Name    string
	Version string
}

// Capabilities records which optional capability sets a server advertises.
type Capabilities struct {
	Tools     bool
	Resources bool
	Prompts   bool
}

// SessionContext is a negotiated protocol session. Owned by the session
// store; its lifetime is independent from the pooled client that negotiated
// it.
type SessionContext struct {
	// SessionID is the server-issued session token.
	SessionID string

	// ProtocolVersion is the version the server reported during initialize.
	ProtocolVersion string

	// ServerInfo is the server's self-reported identity.
	ServerInfo ServerInfo

	// Capabilities is the capability set reported during initialize.
	Capabilities Capabilities

	// CreatedAt is when the session was negotiated.
	CreatedAt time.Time

	// ExpiresAt is the absolute expiry after which the session must be
	// renegotiated.
	ExpiresAt time.Time
}

// Expired reports whether the session is past its expiry.
func (s *SessionContext) Expired() bool {
	return time.Now().After(s.ExpiresAt)
}

// ToolInstance is one tool advertised by a remote server.
type ToolInstance struct {
	// Name is the tool name as advertised by the server.
	Name string

	// Description describes what the tool does.
	Description string

	// InputSchema is the JSON Schema for tool arguments.
	InputSchema map[string]any

	// ServerID identifies the server that provides this tool.
	ServerID string
}

// ResourceInstance is one resource advertised by a remote server.
type ResourceInstance struct {
	URI         string
	Name        string
	Description string
	MimeType    string
	ServerID    string
}

// PromptInstance is one prompt advertised by a remote server.
type PromptInstance struct {
	Name        string
	Description string
	ServerID    string
}

// Content is one MCP content item from a tool result.
type Content struct {
	// Type indicates the content type: "text", "image", "audio".
	Type string

	// Text is the content text (for text content).
	Text string

	// Data is the base64-encoded payload (for image/audio content).
	Data string

	// MimeType is the MIME type (for image/audio content).
	MimeType string
}

// ToolResult is the outcome of a tools/call invocation.
type ToolResult struct {
	// Content is the ordered content items returned by the tool.
	Content []Content

	// IsError indicates a protocol-level tool failure (the call itself
	// succeeded but the tool reported an error).
	IsError bool
}
