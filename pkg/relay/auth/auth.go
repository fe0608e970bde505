// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package auth builds outgoing authentication material for remote tool
// servers. Static schemes (API key, bearer token, basic auth) resolve to
// request headers through a strategy registry; the challenge-response
// scheme is handled separately by ChallengeAuthenticator because it needs
// a protocol round trip before any header exists.
package auth

import (
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/relaymesh/mcprelay/pkg/logger"
	"github.com/relaymesh/mcprelay/pkg/relay"
)

// Strategy produces the request headers for one authentication scheme.
//
// Implementations must be thread-safe; one instance serves all servers that
// share a scheme. Missing credentials yield an empty header set rather than
// an error so that misconfigured servers fail at the remote end with a
// classifiable auth error instead of failing locally.
type Strategy interface {
	// Name returns the scheme identifier the strategy serves.
	Name() string

	// Headers builds the outgoing headers for the given server connection.
	Headers(conn *relay.ServerConnection) http.Header
}

// Registry dispatches header construction to the Strategy registered for a
// connection's scheme. Safe for concurrent use.
type Registry struct {
	strategies map[relay.AuthScheme]Strategy
	mu         sync.RWMutex
}

// NewRegistry creates a Registry pre-populated with the built-in strategies
// for every supported scheme.
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[relay.AuthScheme]Strategy)}
	for _, s := range []Strategy{
		&noneStrategy{},
		&apiKeyStrategy{},
		&bearerTokenStrategy{},
		&basicAuthStrategy{},
		&simpleAuthStrategy{},
	} {
		// Built-in registration cannot collide.
		_ = r.Register(s)
	}
	return r
}

// Register adds a strategy under its own scheme name. It returns an error if
// the strategy is nil or the scheme is already registered.
func (r *Registry) Register(s Strategy) error {
	if s == nil {
		return errors.New("strategy cannot be nil")
	}
	scheme := relay.AuthScheme(s.Name())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.strategies[scheme]; exists {
		return fmt.Errorf("strategy %q is already registered", scheme)
	}
	r.strategies[scheme] = s
	return nil
}

// Headers builds the authentication headers for the given connection.
//
// Unknown schemes and nil connections produce an empty header set. This is
// deliberate: header construction sits on every request path and must never
// be the component that rejects a call.
func (r *Registry) Headers(conn *relay.ServerConnection) http.Header {
	if conn == nil {
		return http.Header{}
	}

	scheme := conn.AuthType
	if scheme == "" {
		scheme = relay.AuthNone
	}

	r.mu.RLock()
	s, ok := r.strategies[scheme]
	r.mu.RUnlock()

	if !ok {
		logger.Warnf("unknown auth scheme %q for server %s, sending no auth headers", scheme, conn.ID)
		return http.Header{}
	}
	return s.Headers(conn)
}
