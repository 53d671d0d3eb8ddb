package twin

import (
	"errors"
	"testing"
	"time"

	"github.com/twinlab/nettwin/pkg/types"
)

func seedRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry("test")
	if _, err := r.AddHost("h1", "10.0.0.1", "00:00:00:00:00:01"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddHost("h2", "10.0.0.2", "00:00:00:00:00:02"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddSwitch("s1", "0000000000000001"); err != nil {
		t.Fatal(err)
	}
	if _, err := r.AddLink("h1", "s1", 100); err != nil {
		t.Fatal(err)
	}
	return r
}

func TestRegistryDuplicateAddRejected(t *testing.T) {
	r := seedRegistry(t)

	if _, err := r.AddHost("h1", "10.0.0.9", "ff:ff:ff:ff:ff:ff"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate host: err = %v, want ErrAlreadyExists", err)
	}
	if _, err := r.AddSwitch("s1", "9"); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate switch: err = %v, want ErrAlreadyExists", err)
	}
	// Reverse endpoint order still collides on the canonical id.
	if _, err := r.AddLink("s1", "h1", 10); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("duplicate link: err = %v, want ErrAlreadyExists", err)
	}

	// Rejected adds do not clobber existing state.
	if r.GetHost("h1").IPAddress != "10.0.0.1" {
		t.Error("duplicate add overwrote existing host")
	}
}

func TestRegistryLinkEndpointMustExist(t *testing.T) {
	r := seedRegistry(t)
	if _, err := r.AddLink("h1", "ghost", 100); !errors.Is(err, ErrEndpointMissing) {
		t.Errorf("err = %v, want ErrEndpointMissing", err)
	}
}

func TestRegistryGetLinkEitherOrder(t *testing.T) {
	r := seedRegistry(t)
	a := r.GetLink("h1", "s1")
	b := r.GetLink("s1", "h1")
	if a == nil || a != b {
		t.Errorf("GetLink not symmetric: %v vs %v", a, b)
	}
}

func TestRegistryRebuildTopology(t *testing.T) {
	r := seedRegistry(t)
	r.GetHost("h1").ApplyMetrics(50, 50, time.Now())

	spec := types.TopologySpec{
		Hosts: []types.TopologyHost{
			{Name: "hx", IP: "10.1.0.1"},
		},
		Switches: []types.TopologySwitch{
			{Name: "sx", DPID: "000000000000000a"},
		},
		Links: []types.TopologyLink{
			{From: "hx", To: "sx"}, // no bandwidth: defaults to 100
		},
	}
	if err := r.RebuildTopology(spec); err != nil {
		t.Fatal(err)
	}

	if r.GetHost("h1") != nil {
		t.Error("old host survived rebuild")
	}
	hx := r.GetHost("hx")
	if hx == nil {
		t.Fatal("new host missing after rebuild")
	}
	if hx.MACAddress != "00:00:00:00:00:00" {
		t.Errorf("default mac = %q", hx.MACAddress)
	}
	l := r.GetLink("sx", "hx")
	if l == nil {
		t.Fatal("new link missing after rebuild")
	}
	if l.BandwidthCapacity != 100 {
		t.Errorf("default capacity = %v, want 100", l.BandwidthCapacity)
	}
}

func TestRegistryRebuildRejectsDanglingLink(t *testing.T) {
	r := NewRegistry("test")
	err := r.RebuildTopology(types.TopologySpec{
		Links: []types.TopologyLink{{From: "a", To: "b"}},
	})
	if !errors.Is(err, ErrEndpointMissing) {
		t.Errorf("err = %v, want ErrEndpointMissing", err)
	}
}

func TestRegistryPathMetrics(t *testing.T) {
	r := seedRegistry(t)
	at := time.Now()
	r.SetPathMetrics("h2", "h1", 12.5, 0.5, 1.1, at)

	p, ok := r.PathMetricsFor("h1", "h2")
	if !ok {
		t.Fatal("path metrics not found via reversed pair")
	}
	if p.Pair != "h1-h2" || p.LatencyMS != 12.5 {
		t.Errorf("path metrics = %+v", p)
	}
}
