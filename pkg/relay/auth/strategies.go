// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

package auth

import (
	"encoding/base64"
	"net/http"

	"github.com/relaymesh/mcprelay/pkg/relay"
)

// Header names used by the static strategies.
const (
	headerAPIKey        = "X-API-Key"
	headerAuthorization = "Authorization"
)

// noneStrategy sends no authentication material.
type noneStrategy struct{}

func (*noneStrategy) Name() string { return string(relay.AuthNone) }

func (*noneStrategy) Headers(_ *relay.ServerConnection) http.Header {
	return http.Header{}
}

// apiKeyStrategy sends the secret as an X-API-Key header.
type apiKeyStrategy struct{}

func (*apiKeyStrategy) Name() string { return string(relay.AuthAPIKey) }

func (*apiKeyStrategy) Headers(conn *relay.ServerConnection) http.Header {
	h := http.Header{}
	if conn.Secret != "" {
		h.Set(headerAPIKey, conn.Secret)
	}
	return h
}

// bearerTokenStrategy sends the secret as an RFC 6750 bearer token.
type bearerTokenStrategy struct{}

func (*bearerTokenStrategy) Name() string { return string(relay.AuthBearerToken) }

func (*bearerTokenStrategy) Headers(conn *relay.ServerConnection) http.Header {
	h := http.Header{}
	if conn.Secret != "" {
		h.Set(headerAuthorization, "Bearer "+conn.Secret)
	}
	return h
}

// basicAuthStrategy sends RFC 7617 basic credentials built from the
// connection's username and secret.
type basicAuthStrategy struct{}

func (*basicAuthStrategy) Name() string { return string(relay.AuthBasic) }

func (*basicAuthStrategy) Headers(conn *relay.ServerConnection) http.Header {
	h := http.Header{}
	if conn.Username == "" || conn.Secret == "" {
		return h
	}
	creds := base64.StdEncoding.EncodeToString([]byte(conn.Username + ":" + conn.Secret))
	h.Set(headerAuthorization, "Basic "+creds)
	return h
}

// simpleAuthStrategy covers the challenge-response scheme. No static header
// exists: authentication happens through the protocol-level handshake in
// ChallengeAuthenticator and the resulting session id travels in the
// session header, not here.
type simpleAuthStrategy struct{}

func (*simpleAuthStrategy) Name() string { return string(relay.AuthSimple) }

func (*simpleAuthStrategy) Headers(_ *relay.ServerConnection) http.Header {
	return http.Header{}
}
