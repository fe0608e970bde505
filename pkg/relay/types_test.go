// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package relay

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTransportForURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		url  string
		want TransportKind
	}{
		{"http://localhost:8080/mcp", TransportStreamable},
		{"https://tools.example.com/api/v1/rpc", TransportStreamable},
		{"http://localhost:8080/sse", TransportSSE},
		{"http://localhost:8080/events", TransportSSE},
		{"http://localhost:8080/api/stream", TransportSSE},
		{"http://localhost:8080/sse/v2", TransportSSE},
		{"http://localhost:8080/assess", TransportStreamable},
		{"", TransportStreamable},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, TransportForURL(tt.url))
		})
	}
}

func TestPoolKey(t *testing.T) {
	t.Parallel()

	conn := &ServerConnection{ID: "srv-1"}
	assert.Equal(t, "srv-1", conn.PoolKey(""))
	assert.Equal(t, "srv-1_conv-9", conn.PoolKey("conv-9"))
	assert.Equal(t, "srv-1_conv-9", PoolKey("srv-1", "conv-9"))
}

func TestCallTimeout(t *testing.T) {
	t.Parallel()

	conn := &ServerConnection{ID: "srv-1"}
	assert.Equal(t, DefaultCallTimeout, conn.CallTimeout())

	conn.Timeout = 5 * time.Second
	assert.Equal(t, 5*time.Second, conn.CallTimeout())
}

func TestSessionContextExpired(t *testing.T) {
	t.Parallel()

	sc := &SessionContext{ExpiresAt: time.Now().Add(time.Minute)}
	assert.False(t, sc.Expired())

	sc.ExpiresAt = time.Now().Add(-time.Second)
	assert.True(t, sc.Expired())
}
