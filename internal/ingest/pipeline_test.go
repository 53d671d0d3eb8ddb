package ingest

import (
	"testing"
	"time"

	"github.com/twinlab/nettwin/internal/twin"
	"github.com/twinlab/nettwin/pkg/types"
)

type recordingBus struct {
	events []string
	data   []any
}

func (b *recordingBus) Broadcast(event string, data any) {
	b.events = append(b.events, event)
	b.data = append(b.data, data)
}

func (b *recordingBus) echo(t *testing.T) types.TelemetryBatch {
	t.Helper()
	for i, ev := range b.events {
		if ev == types.EventNetworkBatchUpdate {
			return b.data[i].(types.TelemetryBatch)
		}
	}
	t.Fatal("no network_batch_update broadcast")
	return types.TelemetryBatch{}
}

func newTestPipeline(t *testing.T) (*Pipeline, *twin.Registry, *recordingBus, *Queue) {
	t.Helper()
	reg := twin.NewRegistry("test")
	if _, err := reg.AddHost("h1", "10.0.0.1", "00:00:00:00:00:01"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.AddSwitch("s1", "0000000000000001"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.AddLink("h1", "s1", 100); err != nil {
		t.Fatal(err)
	}
	bus := &recordingBus{}
	q := NewQueue(4, 10*time.Millisecond, testLogger())
	return NewPipeline(reg, q, bus, testLogger()), reg, bus, q
}

func TestProcessAppliesAndEchoesDerivedState(t *testing.T) {
	p, reg, bus, q := newTestPipeline(t)

	p.Process(types.TelemetryBatch{
		Timestamp: 1700000000,
		Hosts:     []types.HostMetric{{Name: "h1", CPU: 95, Mem: 10}},
		Links:     []types.LinkMetric{{ID: "h1-s1", BW: 95}},
		Switches:  []types.SwitchEntry{{Name: "s1"}},
	})

	reg.RLock()
	defer reg.RUnlock()
	if got := reg.GetHost("h1").Status; got != twin.StatusHighLoad {
		t.Errorf("h1 status = %q, want high-load", got)
	}
	l := reg.GetLink("h1", "s1")
	if l.Status != twin.StatusHighLoad {
		t.Errorf("link status = %q, want high-load", l.Status)
	}
	if l.Utilization != 95 {
		t.Errorf("link utilization = %v, want 95", l.Utilization)
	}
	if got := reg.GetSwitch("s1").Status; got != twin.StatusUp {
		t.Errorf("s1 status = %q, want up", got)
	}

	g := twin.Project(reg)
	if label := g.GraphData.Edges[0].Label; label != "95.0 Mbps" {
		t.Errorf("edge label = %q, want %q", label, "95.0 Mbps")
	}

	// The echo carries registry-derived statuses, not the raw input.
	echo := bus.echo(t)
	if echo.Hosts[0].Status != "high-load" {
		t.Errorf("echoed host status = %q, want high-load", echo.Hosts[0].Status)
	}
	if echo.Links[0].Status != "high-load" {
		t.Errorf("echoed link status = %q, want high-load", echo.Links[0].Status)
	}
	if echo.Switches[0].Status != "up" {
		t.Errorf("echoed switch status = %q, want up", echo.Switches[0].Status)
	}

	// The raw batch, not the echo, is queued for persistence.
	if q.Len() != 1 {
		t.Fatalf("queue length = %d, want 1", q.Len())
	}
	raw := <-q.Out()
	if raw.Hosts[0].Status != "" {
		t.Errorf("queued batch carries derived status %q, want raw input", raw.Hosts[0].Status)
	}
}

func TestProcessEagerEventOnHostRevival(t *testing.T) {
	p, reg, bus, _ := newTestPipeline(t)

	reg.Lock()
	if err := reg.GetHost("h1").ForceStatus(twin.StatusOffline); err != nil {
		t.Fatal(err)
	}
	reg.Unlock()

	p.Process(types.TelemetryBatch{
		Hosts: []types.HostMetric{{Name: "h1", CPU: 10, Mem: 20}},
	})

	if len(bus.events) < 1 || bus.events[0] != types.EventHostUpdated {
		t.Fatalf("events = %v, want host_updated first", bus.events)
	}
	view := bus.data[0].(twin.HostView)
	if view.Status != twin.StatusUp {
		t.Errorf("event payload status = %q, want up", view.Status)
	}

	// A second healthy update is routine; no per-host event.
	bus.events, bus.data = nil, nil
	p.Process(types.TelemetryBatch{
		Hosts: []types.HostMetric{{Name: "h1", CPU: 12, Mem: 20}},
	})
	for _, ev := range bus.events {
		if ev == types.EventHostUpdated {
			t.Error("routine healthy update broadcast a per-host event")
		}
	}
}

func TestProcessEagerEventOnLinkRevival(t *testing.T) {
	p, reg, bus, _ := newTestPipeline(t)

	reg.Lock()
	if err := reg.GetLink("h1", "s1").ForceStatus(twin.StatusDown); err != nil {
		t.Fatal(err)
	}
	reg.Unlock()

	p.Process(types.TelemetryBatch{
		Links: []types.LinkMetric{{ID: "s1-h1", BW: 50}},
	})

	if len(bus.events) < 1 || bus.events[0] != types.EventLinkUpdated {
		t.Fatalf("events = %v, want link_updated first", bus.events)
	}
	view := bus.data[0].(twin.LinkView)
	if view.Status != twin.StatusUp {
		t.Errorf("event payload status = %q, want up", view.Status)
	}
}

func TestProcessSkipsUnknownEntities(t *testing.T) {
	p, _, bus, q := newTestPipeline(t)

	p.Process(types.TelemetryBatch{
		Hosts:    []types.HostMetric{{Name: "ghost", CPU: 50}},
		Links:    []types.LinkMetric{{ID: "ghost-s9", BW: 10}, {ID: "malformed"}},
		Switches: []types.SwitchEntry{{Name: "s9"}},
	})

	echo := bus.echo(t)
	if len(echo.Hosts) != 0 || len(echo.Links) != 0 || len(echo.Switches) != 0 {
		t.Errorf("unknown entities leaked into the echo: %+v", echo)
	}
	if q.Len() != 1 {
		t.Errorf("queue length = %d, want 1 (raw batch still recorded)", q.Len())
	}
}

func TestProcessRecordsPathMetrics(t *testing.T) {
	p, reg, _, _ := newTestPipeline(t)
	if _, err := reg.AddHost("h2", "10.0.0.2", "00:00:00:00:00:02"); err != nil {
		t.Fatal(err)
	}

	p.Process(types.TelemetryBatch{
		Latency: []types.LatencySample{{Pair: "h2-h1", Latency: 3.5, Loss: 1, Jitter: 0.2}},
	})

	reg.RLock()
	defer reg.RUnlock()
	pm, ok := reg.PathMetricsFor("h1", "h2")
	if !ok {
		t.Fatal("path metrics not recorded")
	}
	if pm.LatencyMS != 3.5 || pm.LossPct != 1 || pm.JitterMS != 0.2 {
		t.Errorf("path metrics = %+v", pm)
	}
}
