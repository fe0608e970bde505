// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package session negotiates and caches protocol sessions with remote tool
// servers. Negotiation is single-flighted per server so a burst of callers
// against a cold server produces exactly one handshake.
package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/relaymesh/mcprelay/pkg/logger"
	"github.com/relaymesh/mcprelay/pkg/relay"
	"github.com/relaymesh/mcprelay/pkg/relay/auth"
	"github.com/relaymesh/mcprelay/pkg/relay/rpc"
	"github.com/relaymesh/mcprelay/pkg/relay/telemetry"
)

// DefaultTTL is how long a negotiated session is trusted before it is
// renegotiated.
const DefaultTTL = 30 * time.Minute

// Config holds the tunables for a Store.
type Config struct {
	// TTL bounds the lifetime of cached sessions.
	TTL time.Duration
}

// DefaultConfig returns the production Store configuration.
func DefaultConfig() Config {
	return Config{TTL: DefaultTTL}
}

// sessionEntry pairs a cached session with the server it belongs to so
// server-wide invalidation can find every conversation scope.
type sessionEntry struct {
	serverID string
	sc       *relay.SessionContext
}

// Store caches negotiated sessions keyed by server and conversation scope,
// the same unit the client pool isolates on, and knows how to establish one
// for every supported auth scheme. Safe for concurrent use.
type Store struct {
	sessions map[string]*sessionEntry
	mu       sync.RWMutex

	ttl        time.Duration
	group      singleflight.Group
	rpc        *rpc.Client
	headers    *auth.Registry
	challenger *auth.ChallengeAuthenticator
	stopCh     chan struct{}
}

// NewStore creates a session store and starts its expiry sweeper.
func NewStore(rpcClient *rpc.Client, headers *auth.Registry, cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	s := &Store{
		sessions:   make(map[string]*sessionEntry),
		ttl:        cfg.TTL,
		rpc:        rpcClient,
		headers:    headers,
		challenger: auth.NewChallengeAuthenticator(rpcClient),
		stopCh:     make(chan struct{}),
	}
	go s.sweepRoutine()
	return s
}

func (s *Store) sweepRoutine() {
	ticker := time.NewTicker(s.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweepExpired()
		case <-s.stopCh:
			return
		}
	}
}

func (s *Store) sweepExpired() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, e := range s.sessions {
		if e.sc.Expired() {
			delete(s.sessions, key)
		}
	}
}

// Get returns the cached session for a server and conversation scope, if one
// exists and has not expired. Pass "" for the shared scope.
func (s *Store) Get(serverID, conversationID string) (*relay.SessionContext, bool) {
	key := relay.PoolKey(serverID, conversationID)

	s.mu.RLock()
	e, ok := s.sessions[key]
	s.mu.RUnlock()

	if !ok {
		return nil, false
	}
	if e.sc.Expired() {
		s.Invalidate(serverID, conversationID)
		return nil, false
	}
	return e.sc, true
}

// Put stores a session for a server and conversation scope, replacing any
// previous one.
func (s *Store) Put(serverID, conversationID string, sc *relay.SessionContext) {
	key := relay.PoolKey(serverID, conversationID)
	s.mu.Lock()
	s.sessions[key] = &sessionEntry{serverID: serverID, sc: sc}
	s.mu.Unlock()
}

// Invalidate drops the cached session for one server and conversation scope.
// The next Ensure call renegotiates from scratch.
func (s *Store) Invalidate(serverID, conversationID string) {
	s.mu.Lock()
	delete(s.sessions, relay.PoolKey(serverID, conversationID))
	s.mu.Unlock()
}

// InvalidateServer drops every cached session for a server across all
// conversation scopes.
func (s *Store) InvalidateServer(serverID string) {
	s.mu.Lock()
	for key, e := range s.sessions {
		if e.serverID == serverID {
			delete(s.sessions, key)
		}
	}
	s.mu.Unlock()
}

// Len returns the number of cached sessions, expired or not.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Stop halts the expiry sweeper. The store remains usable afterwards but no
// longer reclaims expired entries in the background.
func (s *Store) Stop() {
	close(s.stopCh)
}

// Ensure returns a live session for the server and conversation scope,
// negotiating one if the cache has no valid entry. Concurrent calls for the
// same scope share one negotiation; distinct scopes negotiate independently
// so each conversation holds its own session.
func (s *Store) Ensure(
	ctx context.Context,
	conn *relay.ServerConnection,
	conversationID string,
) (*relay.SessionContext, error) {
	if sc, ok := s.Get(conn.ID, conversationID); ok {
		return sc, nil
	}

	v, err, _ := s.group.Do(conn.PoolKey(conversationID), func() (any, error) {
		// A negotiation that finished while we queued serves this caller too.
		if sc, ok := s.Get(conn.ID, conversationID); ok {
			return sc, nil
		}
		sc, err := s.negotiate(ctx, conn)
		if err != nil {
			return nil, err
		}
		telemetry.SessionNegotiations.WithLabelValues(conn.ID, string(conn.AuthType)).Inc()
		s.Put(conn.ID, conversationID, sc)
		return sc, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*relay.SessionContext), nil
}

// negotiate establishes a session using the scheme the connection is
// configured with.
func (s *Store) negotiate(ctx context.Context, conn *relay.ServerConnection) (*relay.SessionContext, error) {
	if conn.AuthType == relay.AuthSimple {
		return s.negotiateChallenge(ctx, conn)
	}
	return s.negotiateStatic(ctx, conn)
}

// negotiateStatic initializes with the scheme's static headers and captures
// whatever session id the transport hands back.
func (s *Store) negotiateStatic(ctx context.Context, conn *relay.ServerConnection) (*relay.SessionContext, error) {
	out, err := s.rpc.Initialize(ctx, conn.URL, s.headers.Headers(conn))
	if err != nil {
		return nil, fmt.Errorf("session negotiation with %s failed: %w", conn.ID, err)
	}
	if out.RPCError != nil {
		if out.RPCError.Code == relay.JSONRPCAuthChallengeCode {
			return nil, fmt.Errorf("%w: server %s demands challenge-response auth but scheme is %s",
				relay.ErrAuthenticationFailed, conn.ID, conn.AuthType)
		}
		return nil, fmt.Errorf("%w: server %s rejected initialize: %v",
			relay.ErrProtocol, conn.ID, out.RPCError)
	}
	return s.buildContext(out.SessionID, out.Result), nil
}

// negotiateChallenge runs the challenge handshake, then re-initializes with
// the granted session key to pick up server info and capabilities.
func (s *Store) negotiateChallenge(ctx context.Context, conn *relay.ServerConnection) (*relay.SessionContext, error) {
	sessionKey, err := s.challenger.Negotiate(ctx, conn)
	if err != nil {
		return nil, err
	}

	headers := http.Header{}
	if sessionKey != "" {
		headers.Set(rpc.HeaderSessionID, sessionKey)
	}
	out, err := s.rpc.Initialize(ctx, conn.URL, headers)
	if err != nil {
		return nil, fmt.Errorf("post-auth initialize with %s failed: %w", conn.ID, err)
	}
	if out.RPCError != nil {
		return nil, fmt.Errorf("%w: server %s rejected the freshly granted session: %v",
			relay.ErrAuthenticationFailed, conn.ID, out.RPCError)
	}

	sc := s.buildContext(sessionKey, out.Result)
	logger.Infof("established challenge-response session with server %s", conn.ID)
	return sc, nil
}

func (s *Store) buildContext(sessionID string, result *rpc.InitializeResult) *relay.SessionContext {
	now := time.Now()
	sc := &relay.SessionContext{
		SessionID: sessionID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.ttl),
	}
	if result != nil {
		sc.ProtocolVersion = result.ProtocolVersion
		sc.ServerInfo = relay.ServerInfo{
			Name:    result.ServerInfo.Name,
			Version: result.ServerInfo.Version,
		}
		sc.Capabilities = capabilitiesFrom(result.Capabilities)
	}
	return sc
}

func capabilitiesFrom(caps map[string]any) relay.Capabilities {
	_, tools := caps["tools"]
	_, resources := caps["resources"]
	_, prompts := caps["prompts"]
	return relay.Capabilities{Tools: tools, Resources: resources, Prompts: prompts}
}

// SessionHeader builds the request header carrying a session id. An empty
// session id yields an empty header set.
func SessionHeader(sc *relay.SessionContext) http.Header {
	h := http.Header{}
	if sc != nil && sc.SessionID != "" {
		h.Set(rpc.HeaderSessionID, sc.SessionID)
	}
	return h
}

// RequiresSession reports whether the server insists on a session before
// serving requests. Challenge-response servers always do and are never
// probed. For other schemes the answer is probed once with a bare tools/list
// and then persisted on the connection.
func (s *Store) RequiresSession(ctx context.Context, conn *relay.ServerConnection) (bool, error) {
	if conn.AuthType == relay.AuthSimple {
		conn.RequiresSession = relay.SessionRequired
		return true, nil
	}

	switch conn.RequiresSession {
	case relay.SessionRequired:
		return true, nil
	case relay.SessionNotRequired:
		return false, nil
	}

	required, err := s.probe(ctx, conn)
	if err != nil {
		// Transport failure tells us nothing; leave the question open.
		return false, err
	}

	if required {
		conn.RequiresSession = relay.SessionRequired
	} else {
		conn.RequiresSession = relay.SessionNotRequired
	}
	logger.Debugf("session probe for server %s: %s", conn.ID, conn.RequiresSession)
	return required, nil
}

// probe interprets a sessionless tools/list. A 400, a session-demanding
// JSON-RPC error, or a body we cannot parse all mean the server wants a
// session first.
func (s *Store) probe(ctx context.Context, conn *relay.ServerConnection) (bool, error) {
	res, err := s.rpc.Call(ctx, conn.URL, s.headers.Headers(conn), rpc.MethodToolsList, map[string]any{})
	if err != nil {
		var httpErr *rpc.HTTPError
		if errors.As(err, &httpErr) && httpErr.Status == http.StatusBadRequest {
			return true, nil
		}
		if errors.Is(err, relay.ErrProtocol) {
			return true, nil
		}
		return false, err
	}

	if res.Response != nil && res.Response.Error != nil {
		rpcErr := res.Response.Error
		if rpcErr.Code == relay.JSONRPCSessionRequiredCode &&
			strings.Contains(strings.ToLower(rpcErr.Message), "session") {
			return true, nil
		}
	}
	return false, nil
}
