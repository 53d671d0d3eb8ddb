package ingest

import (
	"log/slog"
	"strings"

	"github.com/twinlab/nettwin/internal/config"
	"github.com/twinlab/nettwin/internal/twin"
	"github.com/twinlab/nettwin/pkg/types"
)

// Broadcaster pushes an event to all dashboard subscribers.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// event is a broadcast deferred until after the registry lock is released.
type event struct {
	name string
	data any
}

// Pipeline applies incoming telemetry to the registry and fans the resulting
// state out: a derived echo to subscribers, the raw batch to the persistence
// queue.
type Pipeline struct {
	reg    *twin.Registry
	queue  *Queue
	bus    Broadcaster
	logger *slog.Logger
}

// NewPipeline wires a pipeline to its registry, queue and broadcaster.
func NewPipeline(reg *twin.Registry, queue *Queue, bus Broadcaster, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		reg:    reg,
		queue:  queue,
		bus:    bus,
		logger: logger.With("component", "ingest"),
	}
}

// Process applies one telemetry batch. Entities are applied in a fixed order
// (hosts, links, switches, latency); unknown names are skipped with a debug
// log rather than rejected, since the agent's view of the topology may be
// momentarily ahead of ours.
//
// All mutation and all broadcast payload construction happen under one
// write-lock hold, so subscribers never see a half-applied batch. The
// broadcasts themselves, and the queue offer, happen after the lock is
// released.
func (p *Pipeline) Process(batch types.TelemetryBatch) {
	at := batch.Time()

	p.reg.Lock()
	events := make([]event, 0, 4)
	echo := types.TelemetryBatch{Timestamp: batch.Timestamp}

	for _, hm := range batch.Hosts {
		h := p.reg.GetHost(hm.Name)
		if h == nil {
			p.logger.Debug("telemetry for unknown host", "host", hm.Name)
			continue
		}
		wasOffline := h.Status == twin.StatusOffline
		h.ApplyMetrics(hm.CPU, hm.Mem, at)
		if wasOffline {
			events = append(events, event{types.EventHostUpdated, h.View()})
		}
		echo.Hosts = append(echo.Hosts, types.HostMetric{
			Name:   h.Name,
			CPU:    h.CPUUtilization,
			Mem:    h.MemoryUsage,
			Status: string(h.Status),
		})
	}

	for _, lm := range batch.Links {
		a, b, ok := strings.Cut(lm.ID, "-")
		if !ok {
			p.logger.Debug("malformed link id in telemetry", "id", lm.ID)
			continue
		}
		l := p.reg.GetLink(a, b)
		if l == nil {
			p.logger.Debug("telemetry for unknown link", "id", lm.ID)
			continue
		}
		wasDown := l.Status == twin.StatusDown
		l.ApplyMetrics(lm.BW, lm.Latency, lm.Jitter, at)
		if wasDown && l.Status != twin.StatusDown {
			events = append(events, event{types.EventLinkUpdated, l.View()})
		}
		echo.Links = append(echo.Links, types.LinkMetric{
			ID:      l.ID,
			BW:      l.CurrentThroughput,
			Latency: l.Latency,
			Jitter:  l.Jitter,
			Loss:    lm.Loss,
			Status:  string(l.Status),
		})
	}

	for _, se := range batch.Switches {
		s := p.reg.GetSwitch(se.Name)
		if s == nil {
			p.logger.Debug("telemetry for unknown switch", "switch", se.Name)
			continue
		}
		wasOffline := s.Status == twin.StatusOffline
		s.Heartbeat(at)
		if len(se.Ports) > 0 {
			s.ApplyPortStats(se.Ports, at)
			if dropped := s.TotalDropped(); dropped > config.SwitchDropWarnThreshold {
				p.logger.Warn("switch dropping packets",
					"switch", s.Name,
					"dropped", dropped)
			}
		}
		if wasOffline {
			events = append(events, event{types.EventSwitchUpdated, s.View()})
		}
		echo.Switches = append(echo.Switches, types.SwitchEntry{
			Name:   s.Name,
			Status: string(s.Status),
		})
	}

	for _, sample := range batch.Latency {
		src, dst, ok := strings.Cut(sample.Pair, "-")
		if !ok {
			p.logger.Debug("malformed latency pair", "pair", sample.Pair)
			continue
		}
		p.reg.SetPathMetrics(src, dst, sample.Latency, sample.Loss, sample.Jitter, at)
	}
	echo.Latency = batch.Latency

	p.reg.Unlock()

	for _, ev := range events {
		p.bus.Broadcast(ev.name, ev.data)
	}
	p.bus.Broadcast(types.EventNetworkBatchUpdate, echo)

	p.queue.Offer(batch)
}
