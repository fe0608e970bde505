// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"context"
	"crypto/md5" //nolint:gosec // the legacy handshake mandates MD5
	"encoding/hex"
	"fmt"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/relaymesh/mcprelay/pkg/logger"
	"github.com/relaymesh/mcprelay/pkg/relay"
	"github.com/relaymesh/mcprelay/pkg/relay/rpc"
)

// challengeMethod is the marker legacy servers place in the error data of a
// rejected initialize to start the handshake.
const challengeMethod = "auth-challenge"

// Challenge is the server-issued half of the handshake.
type Challenge struct {
	// Key is the per-handshake challenge string mixed into the response hash.
	Key string
	// ID correlates the auth call with the challenge that produced it.
	ID string
}

// ParseChallenge extracts a challenge from a JSON-RPC error, tolerating the
// field variants legacy servers emit. It reports false when the error is not
// an auth challenge.
func ParseChallenge(rpcErr *rpc.Error) (Challenge, bool) {
	if rpcErr == nil || rpcErr.Code != relay.JSONRPCAuthChallengeCode {
		return Challenge{}, false
	}

	data := gjson.ParseBytes(rpcErr.Data)
	if data.Get("method").String() != challengeMethod {
		return Challenge{}, false
	}

	ch := Challenge{
		Key: data.Get("params.key").String(),
		ID:  data.Get("params.challenge_id").String(),
	}
	if ch.ID == "" {
		ch.ID = data.Get("params.id").String()
	}
	return ch, ch.Key != "" && ch.ID != ""
}

// HashChallengeResponse computes the response hash the server expects:
// the hex MD5 of the challenge key concatenated with the hex MD5 of the
// shared secret.
func HashChallengeResponse(challengeKey, secret string) string {
	inner := md5.Sum([]byte(secret)) //nolint:gosec // protocol-mandated
	outer := md5.Sum([]byte(challengeKey + hex.EncodeToString(inner[:]))) //nolint:gosec // protocol-mandated
	return hex.EncodeToString(outer[:])
}

// ChallengeAuthenticator performs the challenge-response handshake for
// servers configured with the simple_auth scheme.
type ChallengeAuthenticator struct {
	client *rpc.Client
}

// NewChallengeAuthenticator creates an authenticator backed by the given
// direct-HTTP client.
func NewChallengeAuthenticator(client *rpc.Client) *ChallengeAuthenticator {
	return &ChallengeAuthenticator{client: client}
}

type authCallParams struct {
	Username       string `json:"username"`
	HashedResponse string `json:"hashed_response"`
	ChallengeID    string `json:"challenge_id"`
}

// Negotiate runs the full handshake against the server and returns the
// granted session key.
//
// The flow is: send initialize with no credentials, expect a challenge in
// the error envelope, answer it with the hashed response over the auth
// method, then hand the session key back to the caller, which re-initializes
// with the session header set. If the server grants a session outright
// without challenging, that session id is returned as-is.
func (a *ChallengeAuthenticator) Negotiate(ctx context.Context, conn *relay.ServerConnection) (string, error) {
	out, err := a.client.Initialize(ctx, conn.URL, http.Header{})
	if err != nil {
		return "", fmt.Errorf("challenge handshake with %s failed: %w", conn.ID, err)
	}

	if out.RPCError == nil {
		// The server accepted initialize uncredentialed.
		logger.Debugf("server %s granted a session without challenging", conn.ID)
		return out.SessionID, nil
	}

	ch, ok := ParseChallenge(out.RPCError)
	if !ok {
		// A rejection that is not a well-formed challenge means the server
		// is not speaking the handshake dialect at all.
		return "", fmt.Errorf("%w: server %s rejected initialize without a usable challenge: %s",
			relay.ErrProtocol, conn.ID, out.RPCError.Message)
	}

	res, err := a.client.Call(ctx, conn.URL, http.Header{}, rpc.MethodAuth, authCallParams{
		Username:       conn.Username,
		HashedResponse: HashChallengeResponse(ch.Key, conn.Secret),
		ChallengeID:    ch.ID,
	})
	if err != nil {
		return "", fmt.Errorf("auth call to %s failed: %w", conn.ID, err)
	}
	if rpcErr := res.Err(); rpcErr != nil {
		return "", fmt.Errorf("%w: server %s rejected challenge response: %v",
			relay.ErrAuthenticationFailed, conn.ID, rpcErr)
	}

	result := gjson.ParseBytes(res.Response.Result)
	sessionKey := result.Get("params.session_key").String()
	if sessionKey == "" {
		sessionKey = result.Get("session_key").String()
	}
	if sessionKey == "" {
		return "", fmt.Errorf("%w: server %s returned no session key after successful auth",
			relay.ErrAuthenticationFailed, conn.ID)
	}

	logger.Debugf("challenge handshake with %s succeeded", conn.ID)
	return sessionKey, nil
}
