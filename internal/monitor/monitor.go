// Package monitor implements the liveness sweep: entities that were seen and
// then went silent are forced offline (hosts, switches) or down (links).
package monitor

import (
	"log/slog"
	"sync"
	"time"

	"github.com/twinlab/nettwin/internal/twin"
	"github.com/twinlab/nettwin/pkg/types"
)

// Broadcaster pushes an event to all dashboard subscribers.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Monitor is the periodic liveness sweeper.
//
// Entities that have never reported (last update is nil) are left alone. The
// grace period is deliberate: a device that is configured but not yet
// reporting stays unknown rather than flapping to offline before its first
// sample.
type Monitor struct {
	reg      *twin.Registry
	bus      Broadcaster
	logger   *slog.Logger
	interval time.Duration
	timeout  time.Duration

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates a monitor over the registry.
func New(reg *twin.Registry, bus Broadcaster, interval, timeout time.Duration, logger *slog.Logger) *Monitor {
	return &Monitor{
		reg:      reg,
		bus:      bus,
		logger:   logger.With("component", "monitor"),
		interval: interval,
		timeout:  timeout,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the background sweep loop.
func (m *Monitor) Start() {
	m.wg.Add(1)
	go m.run()
	m.logger.Info("liveness monitor started",
		"interval", m.interval,
		"timeout", m.timeout)
}

// Stop stops the monitor and waits for the in-flight sweep to finish.
func (m *Monitor) Stop() {
	close(m.stopCh)
	m.wg.Wait()
	m.logger.Info("liveness monitor stopped")
}

func (m *Monitor) run() {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Sweep(time.Now())
		}
	}
}

// event is a broadcast deferred until after the registry lock is released.
type event struct {
	name string
	data any
}

// Sweep runs one liveness pass. Exported so a control path can force a pass
// and so tests can drive the monitor without the ticker.
func (m *Monitor) Sweep(now time.Time) {
	cutoff := now.Add(-m.timeout)

	m.reg.Lock()
	var events []event

	for _, h := range m.reg.Hosts() {
		if !stale(h.LastUpdate, cutoff) || h.Status == twin.StatusOffline {
			continue
		}
		if err := h.ForceStatus(twin.StatusOffline); err != nil {
			m.logger.Error("forcing host offline", "host", h.Name, "error", err)
			continue
		}
		m.logger.Info("host went silent, marking offline",
			"host", h.Name,
			"last_update", h.LastUpdate)
		events = append(events, event{types.EventHostUpdated, h.View()})
	}

	for _, s := range m.reg.Switches() {
		if !stale(s.LastUpdate, cutoff) || s.Status == twin.StatusOffline {
			continue
		}
		if err := s.ForceStatus(twin.StatusOffline); err != nil {
			m.logger.Error("forcing switch offline", "switch", s.Name, "error", err)
			continue
		}
		m.logger.Info("switch went silent, marking offline",
			"switch", s.Name,
			"last_update", s.LastUpdate)
		events = append(events, event{types.EventSwitchUpdated, s.View()})
	}

	for _, l := range m.reg.Links() {
		if !stale(l.LastUpdate, cutoff) || l.Status == twin.StatusDown {
			continue
		}
		if err := l.ForceStatus(twin.StatusDown); err != nil {
			m.logger.Error("forcing link down", "link", l.ID, "error", err)
			continue
		}
		m.logger.Info("link went silent, marking down",
			"link", l.ID,
			"last_update", l.LastUpdate)
		events = append(events, event{types.EventLinkUpdated, l.View()})
	}

	m.reg.Unlock()

	for _, ev := range events {
		m.bus.Broadcast(ev.name, ev.data)
	}
}

func stale(last *time.Time, cutoff time.Time) bool {
	return last != nil && last.Before(cutoff)
}
