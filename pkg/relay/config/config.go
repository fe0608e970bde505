// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads and validates the connection manager's server
// inventory and tunables from a YAML or JSON file.
package config

import (
	"fmt"
	"time"

	"github.com/relaymesh/mcprelay/pkg/relay"
)

// ServerConfig describes one remote tool server.
type ServerConfig struct {
	ID       string `mapstructure:"id"`
	Name     string `mapstructure:"name"`
	URL      string `mapstructure:"url"`
	AuthType string `mapstructure:"auth_type"`
	Username string `mapstructure:"username"`
	Secret   string `mapstructure:"secret"`

	// TimeoutSeconds overrides the default per-call timeout.
	TimeoutSeconds int `mapstructure:"timeout_seconds"`

	// RateLimit is the advisory requests-per-minute budget.
	RateLimit int `mapstructure:"rate_limit"`
}

// Config is the full configuration file.
type Config struct {
	Servers []ServerConfig `mapstructure:"servers"`

	// SessionTTLMinutes overrides the session lifetime.
	SessionTTLMinutes int `mapstructure:"session_ttl_minutes"`

	// CatalogTTLSeconds overrides the tool catalog freshness window.
	CatalogTTLSeconds int `mapstructure:"catalog_ttl_seconds"`

	// MaxClients overrides the pool bound.
	MaxClients int `mapstructure:"max_clients"`
}

// Connection converts a server entry into the domain type.
func (s *ServerConfig) Connection() *relay.ServerConnection {
	conn := &relay.ServerConnection{
		ID:       s.ID,
		Name:     s.Name,
		URL:      s.URL,
		AuthType: relay.AuthScheme(s.AuthType),
		Username: s.Username,
		Secret:   s.Secret,
	}
	if conn.AuthType == "" {
		conn.AuthType = relay.AuthNone
	}
	if s.TimeoutSeconds > 0 {
		conn.Timeout = time.Duration(s.TimeoutSeconds) * time.Second
	}
	conn.RateLimit = s.RateLimit
	return conn
}

// Connections converts every server entry.
func (c *Config) Connections() []*relay.ServerConnection {
	conns := make([]*relay.ServerConnection, 0, len(c.Servers))
	for i := range c.Servers {
		conns = append(conns, c.Servers[i].Connection())
	}
	return conns
}

// Server returns the entry with the given id.
func (c *Config) Server(id string) (*ServerConfig, error) {
	for i := range c.Servers {
		if c.Servers[i].ID == id {
			return &c.Servers[i], nil
		}
	}
	return nil, fmt.Errorf("%w: server %q not configured", relay.ErrNotFound, id)
}
