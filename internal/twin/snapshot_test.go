package twin

import (
	"testing"
	"time"
)

func TestProjectGroupsAndTotals(t *testing.T) {
	r := seedRegistry(t)
	r.GetHost("h2").ForceStatus(StatusOffline)

	g := Project(r)
	if g.TotalHosts != 2 || g.TotalSwitches != 1 || g.TotalLinks != 1 {
		t.Fatalf("totals = %d/%d/%d", g.TotalHosts, g.TotalSwitches, g.TotalLinks)
	}
	if len(g.GraphData.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3", len(g.GraphData.Nodes))
	}

	groups := map[string]string{}
	for _, n := range g.GraphData.Nodes {
		groups[n.ID] = n.Group
	}
	if groups["h1"] != "host" {
		t.Errorf("h1 group = %q", groups["h1"])
	}
	if groups["h2"] != "host-offline" {
		t.Errorf("h2 group = %q", groups["h2"])
	}
	if groups["s1"] != "switch" {
		t.Errorf("s1 group = %q", groups["s1"])
	}
}

func TestProjectLiveEdgeLabel(t *testing.T) {
	r := seedRegistry(t)
	r.GetLink("h1", "s1").ApplyMetrics(95, 2, 0, time.Now())

	g := Project(r)
	e := g.GraphData.Edges[0]
	if e.Label != "95.0 Mbps" {
		t.Errorf("label = %q, want %q", e.Label, "95.0 Mbps")
	}
	if e.Utilization != 95 {
		t.Errorf("utilization = %v, want 95", e.Utilization)
	}
	if e.Status != StatusHighLoad {
		t.Errorf("status = %q, want high-load", e.Status)
	}
}

func TestProjectDeadEdgeForcedDown(t *testing.T) {
	r := seedRegistry(t)
	l := r.GetLink("h1", "s1")
	l.ApplyMetrics(95, 2, 0, time.Now())

	// Simulate a stale residual value slipping past the entity mutation.
	l.Status = StatusDown
	l.Utilization = 95

	g := Project(r)
	e := g.GraphData.Edges[0]
	if e.Label != "DOWN" {
		t.Errorf("label = %q, want DOWN", e.Label)
	}
	if e.Utilization != 0 {
		t.Errorf("utilization = %v, want 0", e.Utilization)
	}
}

func TestProjectUnknownEdgeOffline(t *testing.T) {
	r := seedRegistry(t)

	g := Project(r) // link never updated, still unknown
	e := g.GraphData.Edges[0]
	if e.Label != "OFFLINE" {
		t.Errorf("label = %q, want OFFLINE", e.Label)
	}
	if e.Utilization != 0 {
		t.Errorf("utilization = %v, want 0", e.Utilization)
	}
}

func TestProjectDoesNotMutate(t *testing.T) {
	r := seedRegistry(t)
	l := r.GetLink("h1", "s1")
	l.ApplyMetrics(50, 1, 0, time.Now())

	before := *l
	_ = Project(r)
	_ = Project(r)
	if *l != before {
		t.Error("projection mutated the link")
	}
}
