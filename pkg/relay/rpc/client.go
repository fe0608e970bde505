// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package rpc implements the direct-HTTP JSON-RPC 2.0 path to remote tool
// servers. It is the legacy fallback behind the pooled client and the only
// path that supports the simple_auth challenge bootstrap end to end.
//
// Responses may arrive as plain JSON or as a single SSE frame whose data
// line carries the JSON-RPC body; both are parsed transparently. The
// envelope parser fails closed: any shape it does not recognize surfaces as
// a protocol error.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/relaymesh/mcprelay/pkg/relay"
)

const (
	// HeaderSessionID carries the negotiated session id on session-bearing
	// requests.
	HeaderSessionID = "Mcp-Session-Id"

	contentTypeJSON = "application/json"
	acceptTypes     = "application/json, text/event-stream"

	// maxResponseSize caps response bodies before JSON deserialization so a
	// misbehaving server cannot exhaust memory.
	maxResponseSize = 16 * 1024 * 1024
)

// Request is a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is a JSON-RPC 2.0 response envelope.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error is a JSON-RPC 2.0 error object.
type Error struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// ErrorCode implements relay.CodedError.
func (e *Error) ErrorCode() int {
	return e.Code
}

// HTTPError is a non-2xx response whose body did not carry a JSON-RPC
// envelope.
type HTTPError struct {
	Status int
	Body   string
}

// Error implements the error interface.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d: %s", e.Status, e.Body)
}

// HTTPStatus implements relay.StatusError.
func (e *HTTPError) HTTPStatus() int {
	return e.Status
}

// CallResult is the outcome of one JSON-RPC call: the parsed envelope plus
// the transport-level status and headers the session store inspects.
type CallResult struct {
	Response *Response
	Status   int
	Header   http.Header
}

// Err returns the embedded JSON-RPC error, if any.
func (r *CallResult) Err() error {
	if r.Response != nil && r.Response.Error != nil {
		return r.Response.Error
	}
	return nil
}

// Client issues JSON-RPC calls over HTTP POST.
type Client struct {
	httpClient *http.Client
	nextID     atomic.Int64
}

// NewClient creates a direct-HTTP JSON-RPC client. The timeout is the
// transport-level bound; callers additionally bound each call with a context
// derived from the target server's configured timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = relay.DefaultCallTimeout
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Call posts one JSON-RPC request and parses the response envelope.
//
// Non-2xx responses that carry a parseable envelope are returned as a
// CallResult with Response.Error set (the simple_auth challenge arrives this
// way). Non-2xx responses without an envelope return an *HTTPError. A 2xx
// response that does not parse as a valid envelope is a protocol error.
func (c *Client) Call(
	ctx context.Context,
	endpoint string,
	headers http.Header,
	method string,
	params any,
) (*CallResult, error) {
	reqBody, err := json.Marshal(Request{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", method, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", contentTypeJSON)
	req.Header.Set("Accept", acceptTypes)
	for name, values := range headers {
		for _, v := range values {
			req.Header.Set(name, v)
		}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s call to %s failed: %w", method, endpoint, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", method, err)
	}

	parsed, parseErr := parseEnvelope(resp.Header.Get("Content-Type"), body)

	if resp.StatusCode >= 400 {
		// Servers signal protocol-level conditions (auth challenges, session
		// requirements) through error envelopes on 4xx responses; surface the
		// envelope when there is one.
		if parseErr == nil && parsed.Error != nil {
			return &CallResult{Response: parsed, Status: resp.StatusCode, Header: resp.Header}, nil
		}
		return nil, &HTTPError{Status: resp.StatusCode, Body: truncate(string(body), 200)}
	}

	if parseErr != nil {
		return nil, fmt.Errorf("%w: %s response from %s: %v", relay.ErrProtocol, method, endpoint, parseErr)
	}

	return &CallResult{Response: parsed, Status: resp.StatusCode, Header: resp.Header}, nil
}

// parseEnvelope decodes a response body into a JSON-RPC envelope, unwrapping
// a single SSE frame when the server streams its reply.
func parseEnvelope(contentType string, body []byte) (*Response, error) {
	payload := body
	if strings.Contains(contentType, "text/event-stream") || looksLikeSSE(body) {
		data, err := extractSSEData(body)
		if err != nil {
			return nil, err
		}
		payload = data
	}

	var resp Response
	dec := json.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&resp); err != nil {
		return nil, fmt.Errorf("malformed JSON-RPC body: %w", err)
	}
	if resp.JSONRPC != "2.0" {
		return nil, fmt.Errorf("malformed JSON-RPC body: version %q", resp.JSONRPC)
	}
	if resp.Result == nil && resp.Error == nil {
		return nil, fmt.Errorf("malformed JSON-RPC body: neither result nor error")
	}
	return &resp, nil
}

// looksLikeSSE detects an SSE frame that arrived without the event-stream
// content type.
func looksLikeSSE(body []byte) bool {
	trimmed := bytes.TrimLeft(body, " \t\r\n")
	return bytes.HasPrefix(trimmed, []byte("event:")) || bytes.HasPrefix(trimmed, []byte("data:"))
}

// extractSSEData concatenates the data lines of the first SSE frame in the
// body, per the SSE framing rules.
func extractSSEData(body []byte) ([]byte, error) {
	var data []string
	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			if len(data) > 0 {
				break // end of first frame
			}
			continue
		}
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimPrefix(rest, " "))
		}
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("event stream frame carried no data line")
	}
	return []byte(strings.Join(data, "\n")), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
