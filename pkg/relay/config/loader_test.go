// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoaderYAML(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "mcprelay.yaml", `
session_ttl_minutes: 45
catalog_ttl_seconds: 120
max_clients: 25
servers:
  - id: srv-1
    name: Primary
    url: https://mcp.example.com/mcp
    auth_type: bearer_token
    secret: tok-1
    timeout_seconds: 20
  - id: legacy-1
    url: http://legacy.internal/mcp
    auth_type: simple_auth
    username: alice
    secret: pw
`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)

	assert.Equal(t, 45, cfg.SessionTTLMinutes)
	assert.Equal(t, 120, cfg.CatalogTTLSeconds)
	assert.Equal(t, 25, cfg.MaxClients)
	require.Len(t, cfg.Servers, 2)
	assert.Equal(t, "srv-1", cfg.Servers[0].ID)
	assert.Equal(t, "bearer_token", cfg.Servers[0].AuthType)
	assert.Equal(t, 20, cfg.Servers[0].TimeoutSeconds)
	assert.Equal(t, "alice", cfg.Servers[1].Username)

	require.NoError(t, NewValidator().Validate(cfg))
}

func TestLoaderJSON(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "mcprelay.json", `{
  "servers": [
    {"id": "srv-1", "url": "https://mcp.example.com/mcp", "auth_type": "api_key", "secret": "k"}
  ]
}`)

	cfg, err := NewLoader(path).Load()
	require.NoError(t, err)
	require.Len(t, cfg.Servers, 1)
	assert.Equal(t, "api_key", cfg.Servers[0].AuthType)
}

func TestLoaderMissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewLoader(filepath.Join(t.TempDir(), "absent.yaml")).Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read config file")
}

func TestLoaderMalformedFile(t *testing.T) {
	t.Parallel()

	path := writeConfigFile(t, "broken.yaml", "servers: [\n")
	_, err := NewLoader(path).Load()
	require.Error(t, err)
}
