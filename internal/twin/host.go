package twin

import (
	"time"

	"github.com/twinlab/nettwin/internal/config"
)

// Host is the digital twin of one network host. Name, IP and MAC are fixed
// at creation; everything else is driven by telemetry and control traffic.
type Host struct {
	Name       string
	IPAddress  string
	MACAddress string

	Status         Status
	CPUUtilization float64
	MemoryUsage    float64
	TxBytes        uint64
	RxBytes        uint64
	LastUpdate     *time.Time
}

// NewHost creates a host in the unknown state.
func NewHost(name, ip, mac string) *Host {
	return &Host{
		Name:       name,
		IPAddress:  ip,
		MACAddress: mac,
		Status:     StatusUnknown,
	}
}

// ApplyMetrics records a CPU/memory sample and re-evaluates status.
//
// A metrics update is proof of life: an offline host is revived before the
// thresholds are applied, so a busy host that comes back reports high-load
// within the same call. Healthy repeat updates leave an up host untouched.
func (h *Host) ApplyMetrics(cpu, mem float64, at time.Time) {
	h.CPUUtilization = cpu
	h.MemoryUsage = mem
	h.LastUpdate = &at

	if h.Status == StatusOffline {
		h.Status = StatusUp
	}
	switch {
	case cpu >= config.HostCPUHighLoad:
		h.Status = StatusHighLoad
	case h.Status == StatusHighLoad || h.Status == StatusUnknown:
		h.Status = StatusUp
	}
}

// ApplyNetworkCounters records the host's cumulative traffic counters.
func (h *Host) ApplyNetworkCounters(tx, rx uint64) {
	h.TxBytes = tx
	h.RxBytes = rx
}

// ForceStatus is the externally driven transition used by the liveness
// monitor and explicit control toggles.
func (h *Host) ForceStatus(s Status) error {
	if err := validateStatus(s, StatusUp, StatusUnknown, StatusOffline, StatusHighLoad); err != nil {
		return err
	}
	h.Status = s
	return nil
}

// HostView is the JSON form of a host, used in events and snapshots.
type HostView struct {
	Name           string     `json:"name"`
	IPAddress      string     `json:"ip_address"`
	MACAddress     string     `json:"mac_address"`
	Status         Status     `json:"status"`
	CPUUtilization float64    `json:"cpu_utilization"`
	MemoryUsage    float64    `json:"memory_usage"`
	TxBytes        uint64     `json:"tx_bytes"`
	RxBytes        uint64     `json:"rx_bytes"`
	LastUpdate     *time.Time `json:"last_update_time"`
}

// View returns a copy of the host's current state.
func (h *Host) View() HostView {
	return HostView{
		Name:           h.Name,
		IPAddress:      h.IPAddress,
		MACAddress:     h.MACAddress,
		Status:         h.Status,
		CPUUtilization: h.CPUUtilization,
		MemoryUsage:    h.MemoryUsage,
		TxBytes:        h.TxBytes,
		RxBytes:        h.RxBytes,
		LastUpdate:     h.LastUpdate,
	}
}
