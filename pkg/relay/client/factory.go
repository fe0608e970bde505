// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package client creates, pools, and drives MCP protocol clients for remote
// tool servers, using the mark3labs/mcp-go SDK for the wire protocol.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/relaymesh/mcprelay/pkg/logger"
	"github.com/relaymesh/mcprelay/pkg/relay"
	"github.com/relaymesh/mcprelay/pkg/relay/auth"
	"github.com/relaymesh/mcprelay/pkg/relay/rpc"
	"github.com/relaymesh/mcprelay/pkg/relay/session"
)

// maxResponseSize caps HTTP response bodies from tool servers before JSON
// deserialization. Servers needing more should paginate.
const maxResponseSize = 100 * 1024 * 1024 // 100 MB

// Factory creates a started, initialized MCP client for a server connection
// and conversation scope. Abstracted as a function so the pool can be tested
// with fakes.
type Factory func(ctx context.Context, conn *relay.ServerConnection, conversationID string) (*client.Client, error)

// roundTripperFunc adapts a function to http.RoundTripper.
type roundTripperFunc func(*http.Request) (*http.Response, error)

func (f roundTripperFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

// authRoundTripper injects the connection's auth headers, and the negotiated
// session id when one exists, into every outgoing request.
type authRoundTripper struct {
	base      http.RoundTripper
	headers   http.Header
	sessionID string
}

func (a *authRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	clone := req.Clone(req.Context())
	for name, values := range a.headers {
		for _, v := range values {
			clone.Header.Set(name, v)
		}
	}
	if a.sessionID != "" {
		clone.Header.Set(rpc.HeaderSessionID, a.sessionID)
	}
	return a.base.RoundTrip(clone)
}

// NewFactory builds the production client factory. Created clients carry the
// connection's auth headers on every request, negotiate a session first when
// the server demands one, and are initialized before being handed out.
// Sessions are scoped to the same server/conversation key as the pool, and a
// cached session rides along even when the server did not demand one so the
// transport can resume instead of re-handshaking.
func NewFactory(headers *auth.Registry, sessions *session.Store) Factory {
	return func(ctx context.Context, conn *relay.ServerConnection, conversationID string) (*client.Client, error) {
		var sessionID string
		required, err := sessions.RequiresSession(ctx, conn)
		if err != nil {
			return nil, wrapServerError(err, conn.ID, "probe session requirement")
		}
		if required {
			sc, err := sessions.Ensure(ctx, conn, conversationID)
			if err != nil {
				return nil, wrapServerError(err, conn.ID, "negotiate session")
			}
			sessionID = sc.SessionID
		} else if sc, ok := sessions.Get(conn.ID, conversationID); ok {
			sessionID = sc.SessionID
		}

		var base http.RoundTripper = &authRoundTripper{
			base:      http.DefaultTransport,
			headers:   headers.Headers(conn),
			sessionID: sessionID,
		}

		sizeLimited := roundTripperFunc(func(req *http.Request) (*http.Response, error) {
			resp, err := base.RoundTrip(req)
			if err != nil {
				return nil, err
			}
			resp.Body = struct {
				io.Reader
				io.Closer
			}{
				Reader: io.LimitReader(resp.Body, maxResponseSize),
				Closer: resp.Body,
			}
			return resp, nil
		})

		httpClient := &http.Client{
			Transport: sizeLimited,
			Timeout:   conn.CallTimeout(),
		}

		var c *client.Client
		kind := relay.TransportForURL(conn.URL)
		switch kind {
		case relay.TransportStreamable:
			c, err = client.NewStreamableHttpClient(
				conn.URL,
				transport.WithHTTPTimeout(conn.CallTimeout()),
				transport.WithHTTPBasicClient(httpClient),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create streamable-http client for %s: %w", conn.ID, err)
			}
		case relay.TransportSSE:
			c, err = client.NewSSEMCPClient(
				conn.URL,
				transport.WithHTTPClient(httpClient),
			)
			if err != nil {
				return nil, fmt.Errorf("failed to create SSE client for %s: %w", conn.ID, err)
			}
		default:
			return nil, fmt.Errorf("%w: unsupported transport %q for server %s", relay.ErrInvalidConfig, kind, conn.ID)
		}

		logger.Debugf("created %s client for server %s", kind, conn.ID)

		if err := c.Start(ctx); err != nil {
			return nil, wrapServerError(err, conn.ID, "start client")
		}
		if err := initializeClient(ctx, c); err != nil {
			_ = c.Close()
			return nil, wrapServerError(err, conn.ID, "initialize client")
		}
		return c, nil
	}
}

// initializeClient performs the MCP initialization handshake.
func initializeClient(ctx context.Context, c *client.Client) error {
	_, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo: mcp.Implementation{
				Name:    "mcprelay",
				Version: "1.0.0",
			},
			Capabilities: mcp.ClientCapabilities{},
		},
	})
	return err
}

// wrapServerError wraps an error with the matching sentinel so callers can
// branch with errors.Is. Type-based detection runs first, then the string
// pattern fallbacks for errors the SDK surfaces as text.
func wrapServerError(err error, serverID, operation string) error {
	if err == nil {
		return nil
	}

	// Errors from our own layers already carry a sentinel.
	for _, sentinel := range []error{
		relay.ErrAuthenticationFailed, relay.ErrServerUnavailable,
		relay.ErrTimeout, relay.ErrCancelled, relay.ErrProtocol,
		relay.ErrSessionRequired, relay.ErrInvalidConfig,
	} {
		if errors.Is(err, sentinel) {
			return err
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: failed to %s for server %s (timeout): %v",
			relay.ErrTimeout, operation, serverID, err)
	}
	if errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: failed to %s for server %s (cancelled): %v",
			relay.ErrCancelled, operation, serverID, err)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: failed to %s for server %s (timeout): %v",
			relay.ErrTimeout, operation, serverID, err)
	}

	if relay.IsAuthenticationError(err) {
		return fmt.Errorf("%w: failed to %s for server %s: %v",
			relay.ErrAuthenticationFailed, operation, serverID, err)
	}
	if relay.IsTimeoutError(err) {
		return fmt.Errorf("%w: failed to %s for server %s (timeout): %v",
			relay.ErrTimeout, operation, serverID, err)
	}
	if relay.IsConnectionError(err) {
		return fmt.Errorf("%w: failed to %s for server %s (connection error): %v",
			relay.ErrServerUnavailable, operation, serverID, err)
	}

	return fmt.Errorf("%w: failed to %s for server %s: %v",
		relay.ErrServerUnavailable, operation, serverID, err)
}
