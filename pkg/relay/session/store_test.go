// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package session

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/mcprelay/pkg/relay"
	"github.com/relaymesh/mcprelay/pkg/relay/auth"
	"github.com/relaymesh/mcprelay/pkg/relay/rpc"
)

func newTestStore(t *testing.T, ttl time.Duration) *Store {
	t.Helper()
	s := NewStore(rpc.NewClient(5*time.Second), auth.NewRegistry(), Config{TTL: ttl})
	t.Cleanup(s.Stop)
	return s
}

// staticServer fakes a bearer-protected server that issues a session id on
// initialize and counts handshakes.
func staticServer(t *testing.T, initCount *atomic.Int64) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")

		if req.Method == rpc.MethodInitialize {
			initCount.Add(1)
			w.Header().Set(rpc.HeaderSessionID, "sess-static")
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-03-26","capabilities":{"tools":{},"prompts":{}},"serverInfo":{"name":"fake","version":"1.0"}}}`))
			return
		}
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{}}`))
	}))
}

func TestEnsureNegotiatesAndCaches(t *testing.T) {
	t.Parallel()

	var inits atomic.Int64
	srv := staticServer(t, &inits)
	defer srv.Close()

	store := newTestStore(t, time.Minute)
	conn := &relay.ServerConnection{ID: "s1", URL: srv.URL, AuthType: relay.AuthBearerToken, Secret: "tok1"}

	sc, err := store.Ensure(context.Background(), conn, "")
	require.NoError(t, err)
	assert.Equal(t, "sess-static", sc.SessionID)
	assert.Equal(t, "2025-03-26", sc.ProtocolVersion)
	assert.Equal(t, "fake", sc.ServerInfo.Name)
	assert.True(t, sc.Capabilities.Tools)
	assert.True(t, sc.Capabilities.Prompts)
	assert.False(t, sc.Capabilities.Resources)

	// Second call within the TTL reuses the cached session.
	sc2, err := store.Ensure(context.Background(), conn, "")
	require.NoError(t, err)
	assert.Same(t, sc, sc2)
	assert.Equal(t, int64(1), inits.Load())
}

func TestEnsureScopesByConversation(t *testing.T) {
	t.Parallel()

	var inits atomic.Int64
	srv := staticServer(t, &inits)
	defer srv.Close()

	store := newTestStore(t, time.Minute)
	conn := &relay.ServerConnection{ID: "s1", URL: srv.URL, AuthType: relay.AuthBearerToken, Secret: "tok1"}

	scA, err := store.Ensure(context.Background(), conn, "conv-a")
	require.NoError(t, err)
	scB, err := store.Ensure(context.Background(), conn, "conv-b")
	require.NoError(t, err)

	// Each conversation negotiates and holds its own session.
	assert.NotSame(t, scA, scB)
	assert.Equal(t, int64(2), inits.Load())
	assert.Equal(t, 2, store.Len())

	// Re-asking within a scope reuses that scope's session.
	again, err := store.Ensure(context.Background(), conn, "conv-a")
	require.NoError(t, err)
	assert.Same(t, scA, again)
	assert.Equal(t, int64(2), inits.Load())

	// Dropping one scope leaves the other untouched.
	store.Invalidate("s1", "conv-a")
	_, ok := store.Get("s1", "conv-a")
	assert.False(t, ok)
	_, ok = store.Get("s1", "conv-b")
	assert.True(t, ok)
}

func TestInvalidateServerDropsAllScopes(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, time.Minute)
	expiry := time.Now().Add(time.Minute)
	store.Put("s1", "", &relay.SessionContext{SessionID: "a", ExpiresAt: expiry})
	store.Put("s1", "conv-a", &relay.SessionContext{SessionID: "b", ExpiresAt: expiry})
	store.Put("s2", "conv-a", &relay.SessionContext{SessionID: "c", ExpiresAt: expiry})

	store.InvalidateServer("s1")

	_, ok := store.Get("s1", "")
	assert.False(t, ok)
	_, ok = store.Get("s1", "conv-a")
	assert.False(t, ok)
	_, ok = store.Get("s2", "conv-a")
	assert.True(t, ok)
}

func TestEnsureSingleFlight(t *testing.T) {
	t.Parallel()

	var inits atomic.Int64
	srv := staticServer(t, &inits)
	defer srv.Close()

	store := newTestStore(t, time.Minute)
	conn := &relay.ServerConnection{ID: "s1", URL: srv.URL, AuthType: relay.AuthBearerToken, Secret: "tok1"}

	const callers = 20
	var wg sync.WaitGroup
	wg.Add(callers)
	for i := 0; i < callers; i++ {
		go func() {
			defer wg.Done()
			_, err := store.Ensure(context.Background(), conn, "")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// A burst against a cold server produces at most one handshake; allow a
	// small margin for goroutines that miss the singleflight window.
	assert.LessOrEqual(t, inits.Load(), int64(2))
	assert.Equal(t, 1, store.Len())
}

func TestEnsureExpiryTriggersRenegotiation(t *testing.T) {
	t.Parallel()

	var inits atomic.Int64
	srv := staticServer(t, &inits)
	defer srv.Close()

	store := newTestStore(t, time.Minute)
	conn := &relay.ServerConnection{ID: "s1", URL: srv.URL, AuthType: relay.AuthBearerToken, Secret: "tok1"}

	sc, err := store.Ensure(context.Background(), conn, "")
	require.NoError(t, err)

	// Force expiry.
	sc.ExpiresAt = time.Now().Add(-time.Second)

	_, err = store.Ensure(context.Background(), conn, "")
	require.NoError(t, err)
	assert.Equal(t, int64(2), inits.Load())
}

func TestEnsureRejectsUnexpectedChallenge(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32001,"message":"authentication required","data":{"method":"auth-challenge","params":{"key":"k","challenge_id":"c"}}}}`))
	}))
	defer srv.Close()

	store := newTestStore(t, time.Minute)
	conn := &relay.ServerConnection{ID: "s1", URL: srv.URL, AuthType: relay.AuthBearerToken, Secret: "tok1"}

	_, err := store.Ensure(context.Background(), conn, "")
	assert.ErrorIs(t, err, relay.ErrAuthenticationFailed)
}

func TestInvalidate(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, time.Minute)
	store.Put("s1", "", &relay.SessionContext{SessionID: "x", ExpiresAt: time.Now().Add(time.Minute)})

	_, ok := store.Get("s1", "")
	require.True(t, ok)

	store.Invalidate("s1", "")
	_, ok = store.Get("s1", "")
	assert.False(t, ok)
}

func TestGetDropsExpired(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, time.Minute)
	store.Put("s1", "", &relay.SessionContext{SessionID: "x", ExpiresAt: time.Now().Add(-time.Second)})

	_, ok := store.Get("s1", "")
	assert.False(t, ok)
	assert.Equal(t, 0, store.Len())
}

func TestRequiresSession(t *testing.T) {
	t.Parallel()

	t.Run("simple auth always requires, never probes", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, time.Minute)
		conn := &relay.ServerConnection{ID: "s1", URL: "http://127.0.0.1:1", AuthType: relay.AuthSimple}

		required, err := store.RequiresSession(context.Background(), conn)
		require.NoError(t, err)
		assert.True(t, required)
		assert.Equal(t, relay.SessionRequired, conn.RequiresSession)
	})

	t.Run("persisted answer skips the probe", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, time.Minute)
		conn := &relay.ServerConnection{
			ID: "s1", URL: "http://127.0.0.1:1",
			AuthType: relay.AuthBearerToken, RequiresSession: relay.SessionNotRequired,
		}

		required, err := store.RequiresSession(context.Background(), conn)
		require.NoError(t, err)
		assert.False(t, required)
	})

	t.Run("http 400 means required", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "session header missing", http.StatusBadRequest)
		}))
		defer srv.Close()

		store := newTestStore(t, time.Minute)
		conn := &relay.ServerConnection{ID: "s1", URL: srv.URL, AuthType: relay.AuthBearerToken, Secret: "t"}

		required, err := store.RequiresSession(context.Background(), conn)
		require.NoError(t, err)
		assert.True(t, required)
		assert.Equal(t, relay.SessionRequired, conn.RequiresSession)
	})

	t.Run("-32000 with session message means required", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32000,"message":"session required before tools/list"}}`))
		}))
		defer srv.Close()

		store := newTestStore(t, time.Minute)
		conn := &relay.ServerConnection{ID: "s1", URL: srv.URL, AuthType: relay.AuthBearerToken, Secret: "t"}

		required, err := store.RequiresSession(context.Background(), conn)
		require.NoError(t, err)
		assert.True(t, required)
	})

	t.Run("unparseable body means required", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("<html>totally not jsonrpc</html>"))
		}))
		defer srv.Close()

		store := newTestStore(t, time.Minute)
		conn := &relay.ServerConnection{ID: "s1", URL: srv.URL, AuthType: relay.AuthBearerToken, Secret: "t"}

		required, err := store.RequiresSession(context.Background(), conn)
		require.NoError(t, err)
		assert.True(t, required)
	})

	t.Run("successful sessionless listing means not required", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"tools":[]}}`))
		}))
		defer srv.Close()

		store := newTestStore(t, time.Minute)
		conn := &relay.ServerConnection{ID: "s1", URL: srv.URL, AuthType: relay.AuthBearerToken, Secret: "t"}

		required, err := store.RequiresSession(context.Background(), conn)
		require.NoError(t, err)
		assert.False(t, required)
		assert.Equal(t, relay.SessionNotRequired, conn.RequiresSession)
	})

	t.Run("transport failure leaves the question open", func(t *testing.T) {
		t.Parallel()
		store := newTestStore(t, time.Minute)
		conn := &relay.ServerConnection{
			ID: "s1", URL: "http://127.0.0.1:1",
			AuthType: relay.AuthBearerToken, Secret: "t",
			RequiresSession: relay.SessionUnknown,
		}

		_, err := store.RequiresSession(context.Background(), conn)
		require.Error(t, err)
		assert.Equal(t, relay.SessionUnknown, conn.RequiresSession)
	})
}

func TestSessionHeader(t *testing.T) {
	t.Parallel()

	assert.Empty(t, SessionHeader(nil))
	assert.Empty(t, SessionHeader(&relay.SessionContext{}))

	h := SessionHeader(&relay.SessionContext{SessionID: "sess-1"})
	assert.Equal(t, "sess-1", h.Get(rpc.HeaderSessionID))
}
