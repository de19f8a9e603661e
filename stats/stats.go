// Package stats collects the node's Prometheus metrics: pool admission,
// sandbox outcomes, daemon reuse/restart, per-state coordinator latency.
// Grounded on the teacher's `stats` package convention of a package-level
// registry instrumented from the xaction and proxy handlers it measures.
/*
 * Copyright (c) 2024, zexec authors.
 */
package stats

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	PoolQueueDepth = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zexec_pool_queue_depth",
		Help: "current queue depth per named worker pool",
	}, []string{"pool"})

	PoolInFlight = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "zexec_pool_inflight",
		Help: "in-flight task count per named worker pool",
	}, []string{"pool"})

	PoolForceSpawns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zexec_pool_force_spawns_total",
		Help: "validator force_spawn admission bypasses, per pool",
	}, []string{"pool"})

	SandboxRuns = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zexec_sandbox_runs_total",
		Help: "sandbox invocations by outcome RunCode",
	}, []string{"runcode"})

	SandboxDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zexec_sandbox_duration_seconds",
		Help:    "wall-clock duration of sandbox invocations",
		Buckets: prometheus.DefBuckets,
	}, []string{"mode"}) // mode: standalone|daemon

	DaemonReuse = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zexec_daemon_reuse_total",
		Help: "daemon socket reuse attempts by outcome",
	}, []string{"outcome"}) // hit|miss|restart|terminal

	CoordinatorState = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "zexec_coordinator_state_seconds",
		Help:    "latency spent in each coordinator state",
		Buckets: prometheus.DefBuckets,
	}, []string{"state"})

	CoordinatorErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "zexec_coordinator_errors_total",
		Help: "terminal errors by ErrKind",
	}, []string{"kind"})
)

// Registry is the process-wide Prometheus registry; cmd/zexecnode exposes
// it on the internal admin server's /metrics endpoint.
var Registry = prometheus.NewRegistry()

func init() {
	Registry.MustRegister(
		PoolQueueDepth, PoolInFlight, PoolForceSpawns,
		SandboxRuns, SandboxDuration,
		DaemonReuse,
		CoordinatorState, CoordinatorErrors,
	)
}
