// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package compliance probes remote tool servers for MCP protocol
// conformance and produces a structured report. Probing never fails: every
// outcome, including an unreachable server, is expressed in the report.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/relaymesh/mcprelay/pkg/logger"
	"github.com/relaymesh/mcprelay/pkg/relay"
	"github.com/relaymesh/mcprelay/pkg/relay/auth"
	"github.com/relaymesh/mcprelay/pkg/relay/catalog"
	"github.com/relaymesh/mcprelay/pkg/relay/client"
	"github.com/relaymesh/mcprelay/pkg/relay/rpc"
	"github.com/relaymesh/mcprelay/pkg/relay/session"
)

// StepStatus is the outcome of one probe step.
type StepStatus string

// Probe step outcomes.
const (
	StatusPassed  StepStatus = "passed"
	StatusFailed  StepStatus = "failed"
	StatusSkipped StepStatus = "skipped"
)

// Probe step names, in execution order.
const (
	StepConnectivity  = "connectivity"
	StepHandshake     = "handshake"
	StepToolDiscovery = "tool_discovery"
	StepCapabilities  = "capability_probing"
)

// Transport paths a probe step can succeed over.
const (
	PathPooled = "pooled"
	PathLegacy = "legacy"
)

// StepResult records the outcome of one probe step.
type StepResult struct {
	Name     string        `json:"name"`
	Status   StepStatus    `json:"status"`
	Duration time.Duration `json:"duration"`
	// Path records which transport path served the step, where the step
	// distinguishes one.
	Path            string   `json:"path,omitempty"`
	Issues          []string `json:"issues,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
}

// Report is the outcome of a full compliance probe.
type Report struct {
	ID        string        `json:"id"`
	ServerID  string        `json:"server_id"`
	URL       string        `json:"url"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`

	// Compliant is true when connectivity, handshake, and tool discovery
	// all passed. Capability probing covers optional protocol surface and
	// never affects compliance.
	Compliant bool `json:"compliant"`

	Steps []StepResult `json:"steps"`
}

// Prober runs the compliance checks over the same fetch paths production
// traffic uses: the pooled client for regular servers, the direct-HTTP path
// for challenge-response ones, and the catalog service for tool discovery.
type Prober struct {
	connector *client.Connector
	catalog   *catalog.Service
	rpc       *rpc.Client
	headers   *auth.Registry
	sessions  *session.Store
}

// NewProber creates a Prober sharing the manager's connector, catalog,
// auth registry, and session store so probes authenticate and fetch exactly
// like production traffic.
func NewProber(
	connector *client.Connector,
	cat *catalog.Service,
	rpcClient *rpc.Client,
	headers *auth.Registry,
	sessions *session.Store,
) *Prober {
	return &Prober{
		connector: connector,
		catalog:   cat,
		rpc:       rpcClient,
		headers:   headers,
		sessions:  sessions,
	}
}

// probeRun carries the state one probe accumulates across steps, most
// importantly the capabilities the handshake advertised.
type probeRun struct {
	p    *Prober
	conn *relay.ServerConnection
	caps relay.Capabilities
}

// Probe checks the server in four ordered steps: connectivity, protocol
// handshake, tool discovery, and capability probing driven by what the
// handshake advertised. A failed step skips the steps that depend on it.
func (p *Prober) Probe(ctx context.Context, conn *relay.ServerConnection) *Report {
	report := &Report{
		ID:        uuid.NewString(),
		ServerID:  conn.ID,
		URL:       conn.URL,
		StartedAt: time.Now(),
	}

	run := &probeRun{p: p, conn: conn}
	steps := []struct {
		name string
		run  func(context.Context, *StepResult) bool
	}{
		{StepConnectivity, run.checkConnectivity},
		{StepHandshake, run.checkHandshake},
		{StepToolDiscovery, run.checkToolDiscovery},
		{StepCapabilities, run.checkCapabilities},
	}

	stop := false
	for _, step := range steps {
		result := StepResult{Name: step.name, Status: StatusSkipped}
		if !stop {
			start := time.Now()
			if step.run(ctx, &result) {
				result.Status = StatusPassed
			} else {
				result.Status = StatusFailed
				// Capability probing is the last step and optional; only
				// mandatory failures cut the probe short.
				if step.name != StepCapabilities {
					stop = true
				}
			}
			result.Duration = time.Since(start)
		}
		report.Steps = append(report.Steps, result)
	}

	report.Duration = time.Since(report.StartedAt)
	report.Compliant = true
	for _, s := range report.Steps {
		if s.Name != StepCapabilities && s.Status != StatusPassed {
			report.Compliant = false
		}
	}

	logger.Infof("compliance probe %s for server %s: compliant=%t", report.ID, conn.ID, report.Compliant)
	return report
}

// checkConnectivity obtains a pooled client for the server, falling back to
// the legacy direct-HTTP handshake, and records which path succeeded. Any
// response proves reachability; protocol-level rejections are the handshake
// step's concern.
func (r *probeRun) checkConnectivity(ctx context.Context, result *StepResult) bool {
	var pooledErr error
	if r.conn.AuthType != relay.AuthSimple {
		_, pooledErr = r.p.connector.Client(ctx, r.conn, "")
		if pooledErr == nil {
			result.Path = PathPooled
			return true
		}
	}

	_, err := r.p.rpc.Initialize(ctx, r.conn.URL, r.p.headers.Headers(r.conn))
	if err == nil || reachedServer(err) {
		result.Path = PathLegacy
		return true
	}

	if pooledErr != nil {
		result.Issues = append(result.Issues, fmt.Sprintf("pooled client unavailable: %v", pooledErr))
	}
	result.Issues = append(result.Issues, fmt.Sprintf("endpoint unreachable: %v", err))
	result.Recommendations = append(result.Recommendations,
		"check that the server is running and reachable from this host")
	return false
}

// reachedServer reports whether an error still proves the endpoint answered:
// a non-2xx status or a malformed body both require a live server.
func reachedServer(err error) bool {
	var httpErr *rpc.HTTPError
	return errors.As(err, &httpErr) || errors.Is(err, relay.ErrProtocol)
}

// checkHandshake runs the initialize exchange with the server's configured
// auth scheme, including the challenge handshake for simple_auth servers,
// and captures the capabilities the server advertised for the final step.
func (r *probeRun) checkHandshake(ctx context.Context, result *StepResult) bool {
	if r.conn.AuthType == relay.AuthSimple {
		sc, err := r.p.sessions.Ensure(ctx, r.conn, "")
		if err != nil {
			result.Issues = append(result.Issues, fmt.Sprintf("challenge handshake failed: %v", err))
			result.Recommendations = append(result.Recommendations,
				"verify the configured username and secret")
			return false
		}
		r.caps = sc.Capabilities
		return true
	}

	out, err := r.p.rpc.Initialize(ctx, r.conn.URL, r.p.headers.Headers(r.conn))
	if err != nil {
		result.Issues = append(result.Issues, fmt.Sprintf("initialize failed: %v", err))
		result.Recommendations = append(result.Recommendations,
			"confirm the endpoint speaks MCP over HTTP POST")
		return false
	}
	if out.RPCError != nil {
		result.Issues = append(result.Issues, fmt.Sprintf("initialize rejected: %v", out.RPCError))
		if out.RPCError.Code == relay.JSONRPCAuthChallengeCode {
			result.Recommendations = append(result.Recommendations,
				"server demands challenge-response auth; configure the simple_auth scheme")
		}
		return false
	}
	if out.Result != nil {
		_, tools := out.Result.Capabilities["tools"]
		_, resources := out.Result.Capabilities["resources"]
		_, prompts := out.Result.Capabilities["prompts"]
		r.caps = relay.Capabilities{Tools: tools, Resources: resources, Prompts: prompts}

		if out.Result.ProtocolVersion != rpc.ProtocolVersion {
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("server negotiated protocol %s, client prefers %s",
					out.Result.ProtocolVersion, rpc.ProtocolVersion))
		}
	}
	return true
}

// checkToolDiscovery lists tools through the catalog service, the same fetch
// production traffic uses, and flags an empty catalog.
func (r *probeRun) checkToolDiscovery(ctx context.Context, result *StepResult) bool {
	tools, err := r.p.catalog.ServerTools(ctx, r.conn, "")
	if err != nil {
		result.Issues = append(result.Issues, fmt.Sprintf("tool discovery failed: %v", err))
		result.Recommendations = append(result.Recommendations,
			"tool discovery is mandatory for catalog integration")
		return false
	}
	if len(tools) == 0 {
		result.Recommendations = append(result.Recommendations,
			"server advertises no tools; verify it is fully started")
	}
	for _, t := range tools {
		if t.Name == "" {
			result.Issues = append(result.Issues, "server advertises a tool with an empty name")
			return false
		}
	}
	return true
}

// checkCapabilities probes the optional listing surfaces the handshake
// advertised. Missing advertisements and listing failures are recorded as
// recommendations, not compliance issues.
func (r *probeRun) checkCapabilities(ctx context.Context, result *StepResult) bool {
	if r.caps.Resources {
		if err := r.listResources(ctx); err != nil {
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("resources advertised but resources/list failed: %v", err))
		}
	} else {
		result.Recommendations = append(result.Recommendations,
			"server does not advertise resources support")
	}

	if r.caps.Prompts {
		if err := r.listPrompts(ctx); err != nil {
			result.Recommendations = append(result.Recommendations,
				fmt.Sprintf("prompts advertised but prompts/list failed: %v", err))
		}
	} else {
		result.Recommendations = append(result.Recommendations,
			"server does not advertise prompts support")
	}
	return true
}

func (r *probeRun) listResources(ctx context.Context) error {
	if r.conn.AuthType == relay.AuthSimple {
		_, err := r.p.rpc.ListResources(ctx, r.conn.URL, r.legacyHeaders(ctx))
		return err
	}
	_, err := r.p.connector.ListResources(ctx, r.conn, "")
	return err
}

func (r *probeRun) listPrompts(ctx context.Context) error {
	if r.conn.AuthType == relay.AuthSimple {
		_, err := r.p.rpc.ListPrompts(ctx, r.conn.URL, r.legacyHeaders(ctx))
		return err
	}
	_, err := r.p.connector.ListPrompts(ctx, r.conn, "")
	return err
}

// legacyHeaders builds the request headers for direct-HTTP probe calls,
// attaching the negotiated session for challenge-response servers.
func (r *probeRun) legacyHeaders(ctx context.Context) http.Header {
	headers := r.p.headers.Headers(r.conn)
	if sc, err := r.p.sessions.Ensure(ctx, r.conn, ""); err == nil {
		for name, values := range session.SessionHeader(sc) {
			for _, v := range values {
				headers.Set(name, v)
			}
		}
	}
	return headers
}
