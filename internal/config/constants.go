// Package config provides configuration loading and the named constants for
// the twin engine.
//
// Threshold values live here rather than next to the code that applies them,
// so that the state machines, the liveness monitor and the tests all agree on
// a single set of numbers.
package config

import "time"

// Device state machine thresholds.
const (
	// HostCPUHighLoad - a host whose CPU utilization reaches this value is
	// classified high-load.
	HostCPUHighLoad = 90.0

	// LinkWarnUtilization - link utilization (percent of capacity) at which
	// a link is classified warning.
	LinkWarnUtilization = 70.0

	// LinkCriticalUtilization - link utilization at which a link is
	// classified high-load.
	LinkCriticalUtilization = 90.0

	// LinkZeroTraffic - throughput at or below this value (Mbps) is treated
	// as no traffic, absorbing floating point rounding, and collapses the
	// link to down.
	LinkZeroTraffic = 0.01

	// SwitchDropWarnThreshold - total dropped packets across a switch's
	// ports above which a warning is logged. Diagnostic only; does not
	// change switch status.
	SwitchDropWarnThreshold = 100
)

// Liveness monitor timing. The interval is deliberately half the timeout so
// a silent entity is declared dead within at most 1.5x the timeout.
//
// Source revisions disagreed on the timeout (6s and 10s were both observed);
// 6s is the value the shipped monitor used and is the one kept here.
const (
	// LivenessTimeout - an entity whose last update is older than this is
	// forced offline (hosts/switches) or down (links).
	LivenessTimeout = 6 * time.Second

	// MonitorInterval - how often the liveness monitor scans the registry.
	MonitorInterval = 3 * time.Second
)

// Persistence queue and recorder behavior.
const (
	// DefaultQueueDepth is the capacity of the bounded queue between the
	// ingestion hot path and the persistence worker.
	DefaultQueueDepth = 256

	// DefaultQueueOfferTimeout is how long a producer waits for queue space
	// before dropping the batch.
	DefaultQueueOfferTimeout = 50 * time.Millisecond

	// RecorderFailureStreak is the number of consecutive sink write
	// failures after which the recorder backs off.
	RecorderFailureStreak = 5

	// RecorderCooldown is how long the recorder sleeps after a failure
	// streak before retrying.
	RecorderCooldown = 5 * time.Second
)

// Pagination bounds for the action history endpoint.
const (
	DefaultHistoryLimit = 50
	MaxHistoryLimit     = 200
)

// Snapshot response caching.
const (
	// SnapshotCacheTTL is the TTL for the cached /network/status response.
	SnapshotCacheTTL = 2 * time.Second
)

// Connection checks.
const (
	RedisConnectTimeout    = 5 * time.Second
	DatabaseConnectTimeout = 10 * time.Second
)
