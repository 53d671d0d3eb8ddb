package twin

import (
	"time"

	"github.com/twinlab/nettwin/internal/config"
)

// LinkID returns the canonical id for the link between a and b: the two
// endpoint names joined in lexicographic order, so (a,b) and (b,a) always
// converge on the same entity.
func LinkID(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return a + "-" + b
}

// Link is the digital twin of one link. Node1/Node2 keep the order they were
// supplied in; the canonical ID does not.
type Link struct {
	ID                string
	Node1             string
	Node2             string
	BandwidthCapacity float64 // Mbps

	Status            Status
	CurrentThroughput float64 // Mbps
	Latency           float64 // ms
	Jitter            float64 // ms
	Utilization       float64 // percent of capacity
	LastUpdate        *time.Time
}

// NewLink creates a link in the unknown state.
func NewLink(node1, node2 string, capacity float64) *Link {
	return &Link{
		ID:                LinkID(node1, node2),
		Node1:             node1,
		Node2:             node2,
		BandwidthCapacity: capacity,
		Status:            StatusUnknown,
	}
}

// ApplyMetrics records a throughput/latency/jitter sample and re-classifies
// the link.
//
// Zero throughput (within rounding) collapses the link to down without
// evaluating utilization: a link with no traffic is definitionally not
// congested. Any real traffic re-classifies from scratch, which is also what
// revives a down link.
func (l *Link) ApplyMetrics(throughput, latency, jitter float64, at time.Time) {
	l.CurrentThroughput = throughput
	l.Latency = latency
	l.Jitter = jitter
	l.LastUpdate = &at

	if throughput <= config.LinkZeroTraffic {
		l.setStatus(StatusDown)
		return
	}

	l.Utilization = l.utilization()
	switch {
	case l.Utilization >= config.LinkCriticalUtilization:
		l.setStatus(StatusHighLoad)
	case l.Utilization >= config.LinkWarnUtilization:
		l.setStatus(StatusWarning)
	default:
		l.setStatus(StatusUp)
	}
}

// ForceStatus is the externally driven transition used by the liveness
// monitor and explicit control toggles.
func (l *Link) ForceStatus(s Status) error {
	if err := validateStatus(s, StatusUp, StatusDown, StatusUnknown, StatusWarning, StatusHighLoad); err != nil {
		return err
	}
	l.setStatus(s)
	return nil
}

// setStatus applies the status and pins utilization to zero for dead links:
// a down link never reports residual throughput.
func (l *Link) setStatus(s Status) {
	l.Status = s
	if l.Status == StatusDown || l.Status == StatusUnknown {
		l.Utilization = 0
	}
}

func (l *Link) utilization() float64 {
	if l.BandwidthCapacity == 0 {
		return 0
	}
	return l.CurrentThroughput / l.BandwidthCapacity * 100
}

// LinkView is the JSON form of a link, used in events and snapshots.
type LinkView struct {
	ID                string     `json:"id"`
	Node1             string     `json:"node1"`
	Node2             string     `json:"node2"`
	Status            Status     `json:"status"`
	BandwidthCapacity float64    `json:"bandwidth_capacity"`
	CurrentThroughput float64    `json:"current_throughput"`
	Utilization       float64    `json:"utilization"`
	Latency           float64    `json:"latency"`
	Jitter            float64    `json:"jitter"`
	LastUpdate        *time.Time `json:"last_update_time"`
}

// View returns a copy of the link's current state.
func (l *Link) View() LinkView {
	return LinkView{
		ID:                l.ID,
		Node1:             l.Node1,
		Node2:             l.Node2,
		Status:            l.Status,
		BandwidthCapacity: l.BandwidthCapacity,
		CurrentThroughput: l.CurrentThroughput,
		Utilization:       l.Utilization,
		Latency:           l.Latency,
		Jitter:            l.Jitter,
		LastUpdate:        l.LastUpdate,
	}
}

// PathMetrics holds the latest latency/loss/jitter sample for an endpoint
// pair. Kept as an opaque pass-through; path-level aggregation happens in
// the time-series sink.
type PathMetrics struct {
	Pair      string    `json:"pair"`
	LatencyMS float64   `json:"latency_ms"`
	LossPct   float64   `json:"loss_percent"`
	JitterMS  float64   `json:"jitter_ms"`
	UpdatedAt time.Time `json:"updated_at"`
}
