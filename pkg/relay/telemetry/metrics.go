// SPDX-FileCopyrightText: Copyright 2026 Relay Mesh Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry exposes Prometheus metrics for the connection manager.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "mcprelay"

var (
	// ClientCreations counts pooled client creations per server.
	ClientCreations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "client_creations_total",
		Help:      "Number of MCP clients created by the pool.",
	}, []string{"server_id"})

	// ClientEvictions counts pool evictions by reason (idle, lru, unhealthy, shutdown).
	ClientEvictions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "client_evictions_total",
		Help:      "Number of MCP clients evicted from the pool.",
	}, []string{"reason"})

	// PoolSize tracks the number of live pooled clients.
	PoolSize = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "pool",
		Name:      "size",
		Help:      "Number of MCP clients currently pooled.",
	})

	// CatalogHits counts tool catalog cache hits per server.
	CatalogHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "cache_hits_total",
		Help:      "Number of tool catalog reads served from cache.",
	}, []string{"server_id"})

	// CatalogMisses counts tool catalog cache misses per server.
	CatalogMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "cache_misses_total",
		Help:      "Number of tool catalog reads that required a fetch.",
	}, []string{"server_id"})

	// CatalogStaleServes counts catalog reads answered with expired entries
	// after a retryable fetch failure.
	CatalogStaleServes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "catalog",
		Name:      "stale_serves_total",
		Help:      "Number of tool catalog reads served stale after a fetch failure.",
	}, []string{"server_id"})

	// ToolCalls counts tool invocations by server and outcome.
	ToolCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "tools",
		Name:      "calls_total",
		Help:      "Number of tool invocations by outcome.",
	}, []string{"server_id", "outcome"})

	// SessionNegotiations counts session negotiations by server and scheme.
	SessionNegotiations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "session",
		Name:      "negotiations_total",
		Help:      "Number of protocol session negotiations.",
	}, []string{"server_id", "scheme"})
)
