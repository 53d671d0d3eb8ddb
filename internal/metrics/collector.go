// Package metrics provides the engine's self-health report.
package metrics

import (
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/twinlab/nettwin/internal/twin"
	"github.com/twinlab/nettwin/pkg/types"
)

// QueueStatsProvider reports the persistence queue's state.
type QueueStatsProvider interface {
	Len() int
	Dropped() int64
}

// ActionStatsProvider reports per-status action counts.
type ActionStatsProvider interface {
	Counts() map[string]int
}

// Collector gathers the engine health report with caching, so a dashboard
// polling the health endpoint does not hammer gopsutil.
type Collector struct {
	reg     *twin.Registry
	queue   QueueStatsProvider
	actions ActionStatsProvider

	startTime time.Time

	mu            sync.RWMutex
	cached        *types.EngineHealth
	cacheExpiry   time.Time
	cacheDuration time.Duration
}

// NewCollector creates a collector.
func NewCollector(reg *twin.Registry, queue QueueStatsProvider, actions ActionStatsProvider) *Collector {
	return &Collector{
		reg:           reg,
		queue:         queue,
		actions:       actions,
		startTime:     time.Now(),
		cacheDuration: 5 * time.Second,
	}
}

// Health returns the current engine health. Results are cached briefly.
func (c *Collector) Health() types.EngineHealth {
	c.mu.RLock()
	if c.cached != nil && time.Now().Before(c.cacheExpiry) {
		health := *c.cached
		c.mu.RUnlock()
		return health
	}
	c.mu.RUnlock()

	health := c.collect()

	c.mu.Lock()
	c.cached = &health
	c.cacheExpiry = time.Now().Add(c.cacheDuration)
	c.mu.Unlock()

	return health
}

func (c *Collector) collect() types.EngineHealth {
	health := types.EngineHealth{
		Status:        "healthy",
		Timestamp:     time.Now(),
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Goroutines:    runtime.NumGoroutine(),
	}

	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		if cpu, err := proc.CPUPercent(); err == nil {
			health.ProcessCPUPercent = cpu
		}
		if mem, err := proc.MemoryInfo(); err == nil {
			health.ProcessMemoryMB = float64(mem.RSS) / (1024 * 1024)
		}
	}

	c.reg.RLock()
	health.Hosts, health.Switches, health.Links = c.reg.Counts()
	c.reg.RUnlock()

	if c.queue != nil {
		health.QueueDepth = c.queue.Len()
		health.QueueDropped = c.queue.Dropped()
	}
	if c.actions != nil {
		health.Actions = c.actions.Counts()
	}
	return health
}
