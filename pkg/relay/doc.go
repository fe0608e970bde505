// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package relay contains the shared domain types for the mcprelay client
// manager: server connection descriptors, negotiated session state, tool
// catalog entries, and the closed error taxonomy used at every component
// boundary.
//
// Subpackages implement the moving parts: auth (header strategies and the
// challenge-response bootstrap), rpc (the direct-HTTP JSON-RPC path), session
// (the session store), client (transport factory and client pool), catalog
// (tool catalog cache), compliance (the protocol prober), and manager (the
// top-level context object that owns the stores).
package relay
