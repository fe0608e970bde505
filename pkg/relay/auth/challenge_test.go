// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relaymesh/mcprelay/pkg/relay"
	"github.com/relaymesh/mcprelay/pkg/relay/rpc"
)

func TestHashChallengeResponse(t *testing.T) {
	t.Parallel()

	// md5("pw") = 8fe4c11451281c094a6578e6ddbf5eed
	// md5("abc123" + md5("pw")) = 9e6d86ec56f5668d5deb0aa3de617c6e
	assert.Equal(t, "9e6d86ec56f5668d5deb0aa3de617c6e", HashChallengeResponse("abc123", "pw"))

	// Different secrets must produce different hashes for the same key.
	assert.NotEqual(t,
		HashChallengeResponse("abc123", "pw"),
		HashChallengeResponse("abc123", "wrong"))
}

func TestParseChallenge(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		err    *rpc.Error
		want   Challenge
		wantOK bool
	}{
		{
			name: "challenge_id variant",
			err: &rpc.Error{
				Code: -32001,
				Data: json.RawMessage(`{"method":"auth-challenge","params":{"key":"abc123","challenge_id":"ch-1"}}`),
			},
			want:   Challenge{Key: "abc123", ID: "ch-1"},
			wantOK: true,
		},
		{
			name: "id variant",
			err: &rpc.Error{
				Code: -32001,
				Data: json.RawMessage(`{"method":"auth-challenge","params":{"key":"abc123","id":"ch-2"}}`),
			},
			want:   Challenge{Key: "abc123", ID: "ch-2"},
			wantOK: true,
		},
		{
			name: "wrong code",
			err: &rpc.Error{
				Code: -32000,
				Data: json.RawMessage(`{"method":"auth-challenge","params":{"key":"abc123","id":"ch-2"}}`),
			},
			wantOK: false,
		},
		{
			name: "wrong data method",
			err: &rpc.Error{
				Code: -32001,
				Data: json.RawMessage(`{"method":"something-else","params":{"key":"abc123","id":"ch-2"}}`),
			},
			wantOK: false,
		},
		{
			name: "missing key",
			err: &rpc.Error{
				Code: -32001,
				Data: json.RawMessage(`{"method":"auth-challenge","params":{"challenge_id":"ch-1"}}`),
			},
			wantOK: false,
		},
		{
			name:   "no data",
			err:    &rpc.Error{Code: -32001},
			wantOK: false,
		},
		{
			name:   "nil error",
			err:    nil,
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := ParseChallenge(tt.err)
			assert.Equal(t, tt.wantOK, ok)
			if tt.wantOK {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

// challengeServer fakes the legacy challenge-response handshake. The secret
// is "pw" for user "alice"; the challenge key is fixed to "abc123".
func challengeServer(t *testing.T) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpc.Request
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		w.Header().Set("Content-Type", "application/json")

		switch req.Method {
		case rpc.MethodInitialize:
			if r.Header.Get(rpc.HeaderSessionID) == "sess-key-1" {
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-03-26","capabilities":{"tools":{}},"serverInfo":{"name":"legacy","version":"0.9"}}}`))
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32001,"message":"authentication required","data":{"method":"auth-challenge","params":{"key":"abc123","challenge_id":"ch-1"}}}}`))

		case rpc.MethodAuth:
			params, _ := json.Marshal(req.Params)
			var auth struct {
				Username       string `json:"username"`
				HashedResponse string `json:"hashed_response"`
				ChallengeID    string `json:"challenge_id"`
			}
			require.NoError(t, json.Unmarshal(params, &auth))

			// md5("abc123" + md5("pw"))
			if auth.Username == "alice" && auth.ChallengeID == "ch-1" &&
				auth.HashedResponse == "9e6d86ec56f5668d5deb0aa3de617c6e" {
				_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":2,"result":{"params":{"session_key":"sess-key-1"}}}`))
				return
			}
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":2,"error":{"code":-32001,"message":"invalid credentials"}}`))

		default:
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":0,"error":{"code":-32601,"message":"method not found"}}`))
		}
	}))
}

func TestChallengeAuthenticatorNegotiate(t *testing.T) {
	t.Parallel()

	t.Run("correct credentials obtain a session key", func(t *testing.T) {
		t.Parallel()
		srv := challengeServer(t)
		defer srv.Close()

		a := NewChallengeAuthenticator(rpc.NewClient(5 * time.Second))
		key, err := a.Negotiate(context.Background(), &relay.ServerConnection{
			ID: "legacy-1", URL: srv.URL, AuthType: relay.AuthSimple,
			Username: "alice", Secret: "pw",
		})
		require.NoError(t, err)
		assert.Equal(t, "sess-key-1", key)
	})

	t.Run("wrong password fails authentication", func(t *testing.T) {
		t.Parallel()
		srv := challengeServer(t)
		defer srv.Close()

		a := NewChallengeAuthenticator(rpc.NewClient(5 * time.Second))
		_, err := a.Negotiate(context.Background(), &relay.ServerConnection{
			ID: "legacy-1", URL: srv.URL, AuthType: relay.AuthSimple,
			Username: "alice", Secret: "wrong",
		})
		assert.ErrorIs(t, err, relay.ErrAuthenticationFailed)
	})

	t.Run("rejection without challenge is a protocol failure", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"error":{"code":-32600,"message":"go away"}}`))
		}))
		defer srv.Close()

		a := NewChallengeAuthenticator(rpc.NewClient(5 * time.Second))
		_, err := a.Negotiate(context.Background(), &relay.ServerConnection{
			ID: "legacy-2", URL: srv.URL, AuthType: relay.AuthSimple,
			Username: "alice", Secret: "pw",
		})
		assert.ErrorIs(t, err, relay.ErrProtocol)
		assert.NotErrorIs(t, err, relay.ErrAuthenticationFailed)
	})

	t.Run("uncontested initialize returns transport session", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.Header().Set(rpc.HeaderSessionID, "sess-open")
			_, _ = w.Write([]byte(`{"jsonrpc":"2.0","id":1,"result":{"protocolVersion":"2025-03-26","capabilities":{},"serverInfo":{"name":"open","version":"1.0"}}}`))
		}))
		defer srv.Close()

		a := NewChallengeAuthenticator(rpc.NewClient(5 * time.Second))
		key, err := a.Negotiate(context.Background(), &relay.ServerConnection{
			ID: "open-1", URL: srv.URL, AuthType: relay.AuthSimple,
			Username: "alice", Secret: "pw",
		})
		require.NoError(t, err)
		assert.Equal(t, "sess-open", key)
	})
}
