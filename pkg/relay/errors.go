// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"errors"
	"strings"
)

// Common domain errors used across relay subpackages.
// These errors should be checked using errors.Is().

var (
	// ErrServerUnavailable indicates the remote server could not be reached.
	// Wrapping errors should include the underlying transport error.
	ErrServerUnavailable = errors.New("server unavailable")

	// ErrTimeout indicates an operation timed out.
	ErrTimeout = errors.New("operation timed out")

	// ErrCancelled indicates an operation was cancelled.
	ErrCancelled = errors.New("operation cancelled")

	// ErrAuthenticationFailed indicates authentication failure.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrProtocol indicates the remote endpoint is not speaking the expected
	// protocol, or sent a payload the strict parser rejects.
	ErrProtocol = errors.New("protocol error")

	// ErrSessionRequired indicates the server rejected a sessionless call and
	// a session must be negotiated before retrying.
	ErrSessionRequired = errors.New("session required")

	// ErrNotFound indicates a requested server, tool, or cache entry was not
	// found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig indicates invalid server or manager configuration.
	ErrInvalidConfig = errors.New("invalid configuration")
)

// CodedError is implemented by errors that carry a JSON-RPC error code.
type CodedError interface {
	ErrorCode() int
}

// StatusError is implemented by errors that carry an HTTP status.
type StatusError interface {
	HTTPStatus() int
}

// JSONRPCSessionRequiredCode is the JSON-RPC error code servers use to
// signal that a call needs a negotiated session.
const JSONRPCSessionRequiredCode = -32000

// JSONRPCAuthChallengeCode is the JSON-RPC error code carrying a simple_auth
// challenge payload.
const JSONRPCAuthChallengeCode = -32001

// IsSessionRequired reports whether an error is the server's "session
// required" signal: JSON-RPC code -32000 with "session" in the message, or a
// plain HTTP 400 response.
func IsSessionRequired(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrSessionRequired) {
		return true
	}
	var coded CodedError
	if errors.As(err, &coded) && coded.ErrorCode() == JSONRPCSessionRequiredCode {
		return strings.Contains(strings.ToLower(err.Error()), "session")
	}
	var status StatusError
	if errors.As(err, &status) {
		return status.HTTPStatus() == 400
	}
	return false
}

// String-based error detection. Remote tool servers are heterogeneous and
// frequently return failures only as free text, so these predicates match on
// message patterns. They are the fallback behind errors.Is() checks.

// authErrorPatterns match authentication and authorization failures.
var authErrorPatterns = []string{
	"401",
	"403",
	"unauthorized",
	"forbidden",
	"authentication failed",
	"authentication required",
	"invalid credentials",
	"invalid token",
	"invalid api key",
}

// timeoutErrorPatterns match timeout and deadline failures.
var timeoutErrorPatterns = []string{
	"timeout",
	"timed out",
	"deadline exceeded",
}

// connectionErrorPatterns match generic network failures.
var connectionErrorPatterns = []string{
	"connection refused",
	"connection reset",
	"connection closed",
	"broken pipe",
	"no such host",
	"network is unreachable",
	"host is unreachable",
	"dial tcp",
	"eof",
}

// protocolErrorPatterns match malformed-payload and protocol failures.
var protocolErrorPatterns = []string{
	"parse error",
	"failed to parse",
	"unmarshal",
	"malformed",
	"invalid json",
	"unexpected end of",
	"protocol error",
	"invalid response",
	"jsonrpc error",
	"method not found",
}

func matchesAny(msg string, patterns []string) bool {
	for _, p := range patterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsAuthenticationError reports whether an error message indicates an
// authentication or authorization failure.
func IsAuthenticationError(err error) bool {
	if err == nil {
		return false
	}
	return matchesAny(strings.ToLower(err.Error()), authErrorPatterns)
}

// IsTimeoutError reports whether an error message indicates a timeout.
func IsTimeoutError(err error) bool {
	if err == nil {
		return false
	}
	return matchesAny(strings.ToLower(err.Error()), timeoutErrorPatterns)
}

// IsConnectionError reports whether an error message indicates a network
// failure.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}
	return matchesAny(strings.ToLower(err.Error()), connectionErrorPatterns)
}

// IsProtocolError reports whether an error message indicates a malformed or
// non-conformant payload.
func IsProtocolError(err error) bool {
	if err == nil {
		return false
	}
	return matchesAny(strings.ToLower(err.Error()), protocolErrorPatterns)
}
