// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"context"
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

type codedTestError struct {
	code int
	msg  string
}

func (e *codedTestError) Error() string  { return e.msg }
func (e *codedTestError) ErrorCode() int { return e.code }

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		err           error
		wantKind      ErrorKind
		wantRetryable bool
	}{
		{
			name:          "nil error is unknown",
			err:           nil,
			wantKind:      ErrorKindUnknown,
			wantRetryable: false,
		},
		{
			name:          "protocol version mismatch",
			err:           errors.New("unsupported protocol version: 2024-11-05"),
			wantKind:      ErrorKindProtocol,
			wantRetryable: false,
		},
		{
			name:          "decode failure",
			err:           errors.New("failed to decode response: invalid character '<'"),
			wantKind:      ErrorKindProtocol,
			wantRetryable: false,
		},
		{
			name:          "invalid utf-8 payload",
			err:           errors.New("invalid UTF-8 in response body"),
			wantKind:      ErrorKindProtocol,
			wantRetryable: false,
		},
		{
			name:          "client not initialized",
			err:           errors.New("client not initialized"),
			wantKind:      ErrorKindProtocol,
			wantRetryable: false,
		},
		{
			name:          "sse stream failure",
			err:           errors.New("SSE stream disconnected unexpectedly"),
			wantKind:      ErrorKindConnection,
			wantRetryable: true,
		},
		{
			name:          "connection refused",
			err:           errors.New("dial tcp 127.0.0.1:9999: connect: connection refused"),
			wantKind:      ErrorKindConnection,
			wantRetryable: true,
		},
		{
			name:          "typed network error",
			err:           &net.OpError{Op: "dial", Err: errors.New("no route to host")},
			wantKind:      ErrorKindConnection,
			wantRetryable: true,
		},
		{
			name:          "context deadline",
			err:           fmt.Errorf("call failed: %w", context.DeadlineExceeded),
			wantKind:      ErrorKindTimeout,
			wantRetryable: true,
		},
		{
			name:          "timeout message",
			err:           errors.New("request timed out after 30s"),
			wantKind:      ErrorKindTimeout,
			wantRetryable: true,
		},
		{
			name:          "unauthorized",
			err:           errors.New("server returned 401 Unauthorized"),
			wantKind:      ErrorKindAuth,
			wantRetryable: false,
		},
		{
			name:          "forbidden",
			err:           errors.New("403 Forbidden: invalid api key"),
			wantKind:      ErrorKindAuth,
			wantRetryable: false,
		},
		{
			name:          "jsonrpc error text",
			err:           errors.New("jsonrpc error -32601: method not found"),
			wantKind:      ErrorKindProtocol,
			wantRetryable: false,
		},
		{
			name:          "unclassifiable",
			err:           errors.New("something odd happened"),
			wantKind:      ErrorKindUnknown,
			wantRetryable: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			c := Classify(tt.err)
			assert.Equal(t, tt.wantKind, c.Kind)
			assert.Equal(t, tt.wantRetryable, c.Retryable)
		})
	}
}

func TestClassifyOrderMattersForAmbiguousErrors(t *testing.T) {
	t.Parallel()

	// A message carrying both a decode failure and a connection word must
	// classify as protocol: structural checks run before network checks.
	c := Classify(errors.New("failed to decode response from connection"))
	assert.Equal(t, ErrorKindProtocol, c.Kind)
	assert.False(t, c.Retryable)
}

func TestClassifyExtractsJSONRPCCode(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("call rejected: %w", &codedTestError{code: -32001, msg: "authentication required"})
	c := Classify(err)
	assert.Equal(t, ErrorKindAuth, c.Kind)
	assert.Equal(t, -32001, c.Code)
}

func TestClassificationErr(t *testing.T) {
	t.Parallel()

	assert.ErrorIs(t, Classify(errors.New("connection refused")).Err(), ErrServerUnavailable)
	assert.ErrorIs(t, Classify(errors.New("401 unauthorized")).Err(), ErrAuthenticationFailed)
	assert.ErrorIs(t, Classify(errors.New("deadline exceeded")).Err(), ErrTimeout)
}
