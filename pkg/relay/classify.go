// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"net"
	"strings"
)

// ErrorKind is the closed taxonomy every failure is mapped onto before it
// crosses a component boundary.
type ErrorKind string

const (
	// ErrorKindConnection is a network-level failure. Retryable.
	ErrorKindConnection ErrorKind = "connection"

	// ErrorKindTimeout is a deadline expiry. Retryable.
	ErrorKindTimeout ErrorKind = "timeout"

	// ErrorKindAuth is an authentication or authorization failure.
	ErrorKindAuth ErrorKind = "auth"

	// ErrorKindProtocol means the remote endpoint is not speaking the
	// expected protocol, or sent something the strict parser rejects.
	ErrorKindProtocol ErrorKind = "protocol"

	// ErrorKindUnknown is everything else.
	ErrorKindUnknown ErrorKind = "unknown"
)

// Classification is the value object produced for every failure.
type Classification struct {
	Kind      ErrorKind
	Message   string
	Code      int
	Retryable bool
}

// Err returns the sentinel error for the classification's kind, for callers
// that propagate via errors.Is.
func (c Classification) Err() error {
	switch c.Kind {
	case ErrorKindConnection:
		return ErrServerUnavailable
	case ErrorKindTimeout:
		return ErrTimeout
	case ErrorKindAuth:
		return ErrAuthenticationFailed
	case ErrorKindProtocol:
		return ErrProtocol
	default:
		return nil
	}
}

// Message patterns checked in order by Classify. First match wins; ordering
// matters because a message can match several patterns (a malformed-stream
// message also contains "parse", an SSE failure also looks like a generic
// network error).
var (
	versionMismatchPatterns = []string{
		"protocol version mismatch",
		"unsupported protocol version",
		"incompatible protocol version",
	}
	decodeFailurePatterns = []string{
		"invalid utf-8",
		"can't decode",
		"failed to decode",
		"invalid character",
	}
	notInitializedPatterns = []string{
		"not initialized",
		"client not started",
		"transport not started",
	}
	ssePatterns = []string{
		"sse connection",
		"sse stream",
		"event stream",
		"stream closed",
	}
)

// Classify maps an arbitrary failure onto the closed taxonomy. The result is
// total and deterministic: the same message and code always produce the same
// kind and retryability.
//
// Typed errors are inspected first (context expiry, net.Error timeouts,
// JSON-RPC codes), then the message is matched against the pattern tables in
// a fixed order.
func Classify(err error) Classification {
	if err == nil {
		return Classification{Kind: ErrorKindUnknown}
	}

	msg := err.Error()
	lower := strings.ToLower(msg)

	var code int
	var coded CodedError
	if errors.As(err, &coded) {
		code = coded.ErrorCode()
	}

	c := Classification{Message: msg, Code: code}

	// Version mismatch before anything else: the text often also matches the
	// generic protocol patterns but deserves its own diagnosis.
	if matchesAny(lower, versionMismatchPatterns) {
		c.Kind = ErrorKindProtocol
		return c
	}

	// Malformed streaming payload: almost always means the endpoint is not
	// actually speaking the protocol, so not retryable.
	if matchesAny(lower, decodeFailurePatterns) {
		c.Kind = ErrorKindProtocol
		return c
	}

	// Internal "client/transport not initialized" errors indicate a
	// misconfigured endpoint rather than a transient fault.
	if matchesAny(lower, notInitializedPatterns) {
		c.Kind = ErrorKindProtocol
		return c
	}

	if matchesAny(lower, ssePatterns) {
		c.Kind = ErrorKindConnection
		c.Retryable = true
		return c
	}

	if isNetworkError(err) || matchesAny(lower, connectionErrorPatterns) {
		c.Kind = ErrorKindConnection
		c.Retryable = true
		return c
	}

	if isDeadlineError(err) || matchesAny(lower, timeoutErrorPatterns) {
		c.Kind = ErrorKindTimeout
		c.Retryable = true
		return c
	}

	if matchesAny(lower, authErrorPatterns) {
		c.Kind = ErrorKindAuth
		return c
	}

	if matchesAny(lower, protocolErrorPatterns) {
		c.Kind = ErrorKindProtocol
		return c
	}

	c.Kind = ErrorKindUnknown
	return c
}

// isDeadlineError detects timeouts through the type system rather than text.
func isDeadlineError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// isNetworkError detects connection-level failures through the type system.
// Timeouts are excluded; they are classified separately.
func isNetworkError(err error) bool {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return !opErr.Timeout()
	}
	var dnsErr *net.DNSError
	return errors.As(err, &dnsErr)
}
