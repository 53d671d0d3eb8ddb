package twin

import (
	"fmt"
	"sync"
	"time"

	"github.com/twinlab/nettwin/pkg/types"
)

// Registry owns the collections of host, switch and link twins. It is the
// single piece of shared mutable state in the engine.
//
// The embedded RWMutex is the coarse lock described in the concurrency
// model: every mutation path (telemetry apply, control toggles, topology
// reinitialization, liveness forcing) takes Lock for the duration of the
// mutation and for building any broadcast payload derived from it, so
// observers never see a half-applied batch. Plain snapshot reads take RLock.
// Registry methods themselves do not lock; the caller holds the mutex.
type Registry struct {
	sync.RWMutex

	name     string
	hosts    map[string]*Host
	switches map[string]*Switch
	links    map[string]*Link
	paths    map[string]PathMetrics
}

// NewRegistry creates an empty registry.
func NewRegistry(name string) *Registry {
	return &Registry{
		name:     name,
		hosts:    make(map[string]*Host),
		switches: make(map[string]*Switch),
		links:    make(map[string]*Link),
		paths:    make(map[string]PathMetrics),
	}
}

// Name returns the registry's descriptive name.
func (r *Registry) Name() string { return r.name }

// AddHost registers a new host. Duplicate names are rejected, not
// overwritten.
func (r *Registry) AddHost(name, ip, mac string) (*Host, error) {
	if _, ok := r.hosts[name]; ok {
		return nil, fmt.Errorf("host %q: %w", name, ErrAlreadyExists)
	}
	h := NewHost(name, ip, mac)
	r.hosts[name] = h
	return h, nil
}

// AddSwitch registers a new switch. Duplicate names are rejected.
func (r *Registry) AddSwitch(name, dpid string) (*Switch, error) {
	if _, ok := r.switches[name]; ok {
		return nil, fmt.Errorf("switch %q: %w", name, ErrAlreadyExists)
	}
	s := NewSwitch(name, dpid)
	r.switches[name] = s
	return s, nil
}

// AddLink registers a new link. Both endpoints must already exist as a host
// or a switch, and the canonical id must be new.
func (r *Registry) AddLink(node1, node2 string, capacity float64) (*Link, error) {
	id := LinkID(node1, node2)
	if _, ok := r.links[id]; ok {
		return nil, fmt.Errorf("link %q: %w", id, ErrAlreadyExists)
	}
	if !r.nodeExists(node1) {
		return nil, fmt.Errorf("link %q: node %q: %w", id, node1, ErrEndpointMissing)
	}
	if !r.nodeExists(node2) {
		return nil, fmt.Errorf("link %q: node %q: %w", id, node2, ErrEndpointMissing)
	}
	l := NewLink(node1, node2, capacity)
	r.links[id] = l
	return l, nil
}

func (r *Registry) nodeExists(name string) bool {
	if _, ok := r.hosts[name]; ok {
		return true
	}
	_, ok := r.switches[name]
	return ok
}

// GetHost returns the host with the given name, or nil.
func (r *Registry) GetHost(name string) *Host { return r.hosts[name] }

// GetSwitch returns the switch with the given name, or nil.
func (r *Registry) GetSwitch(name string) *Switch { return r.switches[name] }

// GetLink resolves a link from either endpoint order. Upstream producers
// are not guaranteed to pass endpoints in canonical order; LinkID
// canonicalizes, so both directions converge on the same entry.
func (r *Registry) GetLink(a, b string) *Link { return r.links[LinkID(a, b)] }

// SetPathMetrics records the latest latency/loss/jitter sample for an
// endpoint pair.
func (r *Registry) SetPathMetrics(src, dst string, latency, loss, jitter float64, at time.Time) {
	pair := LinkID(src, dst)
	r.paths[pair] = PathMetrics{
		Pair:      pair,
		LatencyMS: latency,
		LossPct:   loss,
		JitterMS:  jitter,
		UpdatedAt: at,
	}
}

// PathMetricsFor returns the stored sample for an endpoint pair.
func (r *Registry) PathMetricsFor(src, dst string) (PathMetrics, bool) {
	p, ok := r.paths[LinkID(src, dst)]
	return p, ok
}

// Counts returns the entity totals.
func (r *Registry) Counts() (hosts, switches, links int) {
	return len(r.hosts), len(r.switches), len(r.links)
}

// Hosts iterates all hosts. Order is map order; callers needing stable
// output sort the projection instead.
func (r *Registry) Hosts() map[string]*Host { return r.hosts }

// Switches iterates all switches.
func (r *Registry) Switches() map[string]*Switch { return r.switches }

// Links iterates all links.
func (r *Registry) Links() map[string]*Link { return r.links }

// RebuildTopology clears the registry and rebuilds it from spec. It is the
// only deletion path; individual devices are never removed in steady state.
// The caller holds the write lock, so readers see either the old topology
// or the new one, never a mix.
func (r *Registry) RebuildTopology(spec types.TopologySpec) error {
	r.hosts = make(map[string]*Host)
	r.switches = make(map[string]*Switch)
	r.links = make(map[string]*Link)
	r.paths = make(map[string]PathMetrics)

	for _, h := range spec.Hosts {
		mac := h.MAC
		if mac == "" {
			mac = "00:00:00:00:00:00"
		}
		if _, err := r.AddHost(h.Name, h.IP, mac); err != nil {
			return err
		}
	}
	for _, s := range spec.Switches {
		dpid := s.DPID
		if dpid == "" {
			dpid = "0000000000000001"
		}
		if _, err := r.AddSwitch(s.Name, dpid); err != nil {
			return err
		}
	}
	for _, l := range spec.Links {
		n1, n2 := l.Endpoints()
		capacity := l.Capacity()
		if capacity <= 0 {
			capacity = 100
		}
		if _, err := r.AddLink(n1, n2, capacity); err != nil {
			return err
		}
	}
	return nil
}
