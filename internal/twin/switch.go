package twin

import (
	"fmt"
	"sort"
	"time"

	"github.com/twinlab/nettwin/pkg/types"
)

// Switch is the digital twin of one switch.
type Switch struct {
	Name string
	DPID string

	Status     Status
	PortList   []string
	PortStats  map[string]PortStat
	LastUpdate *time.Time
}

// PortStat is one port's counters, stamped with the owning switch and a
// composite port id.
type PortStat struct {
	Switch    string `json:"switch"`
	PortID    string `json:"port_id"`
	Name      string `json:"name"`
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
}

// NewSwitch creates a switch in the unknown state.
func NewSwitch(name, dpid string) *Switch {
	return &Switch{
		Name:      name,
		DPID:      dpid,
		Status:    StatusUnknown,
		PortStats: make(map[string]PortStat),
	}
}

// Heartbeat records that the switch has been seen and revives it if it was
// offline or never classified.
func (s *Switch) Heartbeat(at time.Time) {
	s.LastUpdate = &at
	if s.Status == StatusOffline || s.Status == StatusUnknown {
		s.Status = StatusUp
	}
}

// ApplyPortStats replaces the switch's port list and per-port counters with
// the given stats. Status is untouched; liveness comes from Heartbeat.
func (s *Switch) ApplyPortStats(stats map[string]types.PortCounters, at time.Time) {
	s.LastUpdate = &at

	ports := make([]string, 0, len(stats))
	portStats := make(map[string]PortStat, len(stats))
	for name, c := range stats {
		ports = append(ports, name)
		portStats[name] = PortStat{
			Switch:    s.Name,
			PortID:    fmt.Sprintf("%s:%s", s.Name, name),
			Name:      name,
			RxPackets: c.RxPackets,
			TxPackets: c.TxPackets,
			RxBytes:   c.RxBytes,
			TxBytes:   c.TxBytes,
			Dropped:   c.Dropped,
			Errors:    c.Errors,
		}
	}
	sort.Strings(ports)
	s.PortList = ports
	s.PortStats = portStats
}

// TotalDropped sums dropped packets across all ports, for threshold logging.
func (s *Switch) TotalDropped() uint64 {
	var total uint64
	for _, p := range s.PortStats {
		total += p.Dropped
	}
	return total
}

// ForceStatus is the externally driven transition used by the liveness
// monitor and explicit control toggles.
func (s *Switch) ForceStatus(st Status) error {
	if err := validateStatus(st, StatusUp, StatusUnknown, StatusOffline, StatusHighLoad); err != nil {
		return err
	}
	s.Status = st
	return nil
}

// SwitchView is the JSON form of a switch, used in events and snapshots.
type SwitchView struct {
	Name       string              `json:"name"`
	DPID       string              `json:"dpid"`
	Status     Status              `json:"status"`
	Ports      []string            `json:"ports"`
	PortStats  map[string]PortStat `json:"port_stats"`
	LastUpdate *time.Time          `json:"last_update_time"`
}

// View returns a copy of the switch's current state.
func (s *Switch) View() SwitchView {
	ports := make([]string, len(s.PortList))
	copy(ports, s.PortList)
	stats := make(map[string]PortStat, len(s.PortStats))
	for k, v := range s.PortStats {
		stats[k] = v
	}
	return SwitchView{
		Name:       s.Name,
		DPID:       s.DPID,
		Status:     s.Status,
		Ports:      ports,
		PortStats:  stats,
		LastUpdate: s.LastUpdate,
	}
}
