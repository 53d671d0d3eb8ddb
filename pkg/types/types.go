// Package types defines the wire types shared between the twin server and
// the remote network agent.
//
// # Design Principles
//
// 1. Simplicity: types mirror the JSON messages on the bus directly
// 2. Serialization: everything here is JSON-serializable
// 3. Validation: types carry Validate() methods where a schema exists
package types

import (
	"encoding/json"
	"fmt"
	"time"
)

// =============================================================================
// TELEMETRY
// =============================================================================

// TelemetryBatch is one periodic push of metrics from the agent covering all
// entities. The same shape is re-published as the derived echo, with each
// entry's status re-derived from the canonical registry state.
type TelemetryBatch struct {
	Timestamp float64         `json:"timestamp"` // unix seconds
	Hosts     []HostMetric    `json:"hosts"`
	Links     []LinkMetric    `json:"links"`
	Switches  []SwitchEntry   `json:"switches"`
	Latency   []LatencySample `json:"latency,omitempty"`
}

// Time converts the batch timestamp to a time.Time, falling back to now for
// batches without one.
func (b TelemetryBatch) Time() time.Time {
	if b.Timestamp <= 0 {
		return time.Now()
	}
	sec := int64(b.Timestamp)
	nsec := int64((b.Timestamp - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}

// HostMetric is one host entry in a telemetry batch.
type HostMetric struct {
	Name   string  `json:"name"`
	CPU    float64 `json:"cpu"`
	Mem    float64 `json:"mem"`
	Status string  `json:"status,omitempty"`
}

// LinkMetric is one link entry in a telemetry batch. ID is of the form
// "endpointA-endpointB".
type LinkMetric struct {
	ID      string  `json:"id"`
	BW      float64 `json:"bw"` // observed throughput, Mbps
	Latency float64 `json:"latency,omitempty"`
	Jitter  float64 `json:"jitter,omitempty"`
	Loss    float64 `json:"loss,omitempty"`
	Status  string  `json:"status,omitempty"`
}

// SwitchEntry is one switch entry in a telemetry batch. On the wire it is
// either a bare string (heartbeat only) or an object with optional port
// counters; the custom decoder absorbs both forms.
type SwitchEntry struct {
	Name   string                  `json:"name"`
	Ports  map[string]PortCounters `json:"ports,omitempty"`
	Status string                  `json:"status,omitempty"`
}

// UnmarshalJSON accepts both the bare-string and the object form.
func (s *SwitchEntry) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		return json.Unmarshal(data, &s.Name)
	}
	type alias SwitchEntry
	var a alias
	if err := json.Unmarshal(data, &a); err != nil {
		return fmt.Errorf("switch entry: %w", err)
	}
	*s = SwitchEntry(a)
	return nil
}

// MarshalJSON emits the compact string form when only a name is present.
func (s SwitchEntry) MarshalJSON() ([]byte, error) {
	if s.Ports == nil && s.Status == "" {
		return json.Marshal(s.Name)
	}
	type alias SwitchEntry
	return json.Marshal(alias(s))
}

// PortCounters holds per-port traffic counters reported by a switch.
type PortCounters struct {
	RxPackets uint64 `json:"rx_packets"`
	TxPackets uint64 `json:"tx_packets"`
	RxBytes   uint64 `json:"rx_bytes"`
	TxBytes   uint64 `json:"tx_bytes"`
	Dropped   uint64 `json:"dropped"`
	Errors    uint64 `json:"errors"`
}

// LatencySample is one path latency/jitter measurement keyed by an endpoint
// pair ("A-B").
type LatencySample struct {
	Pair    string  `json:"pair"`
	Latency float64 `json:"latency"`
	Loss    float64 `json:"loss"`
	Jitter  float64 `json:"jitter,omitempty"`
}

// =============================================================================
// TOPOLOGY
// =============================================================================

// TopologySpec describes a full network topology, as submitted by the agent
// on startup or by an operator through the import endpoint.
type TopologySpec struct {
	Hosts    []TopologyHost   `json:"hosts"`
	Switches []TopologySwitch `json:"switches"`
	Links    []TopologyLink   `json:"links"`
}

// TopologyHost declares one host of a topology.
type TopologyHost struct {
	Name string `json:"name"`
	IP   string `json:"ip"`
	MAC  string `json:"mac"`
}

// TopologySwitch declares one switch of a topology.
type TopologySwitch struct {
	Name string `json:"name"`
	DPID string `json:"dpid"`
}

// TopologyLink declares one link of a topology. The import schema uses
// from/to; the agent init path uses node1/node2. Both are accepted.
type TopologyLink struct {
	From      string  `json:"from,omitempty"`
	To        string  `json:"to,omitempty"`
	Node1     string  `json:"node1,omitempty"`
	Node2     string  `json:"node2,omitempty"`
	Bandwidth float64 `json:"bandwidth,omitempty"`
	BW        float64 `json:"bw,omitempty"`
}

// Endpoints returns the two endpoint names regardless of which field pair
// the producer used.
func (l TopologyLink) Endpoints() (string, string) {
	if l.From != "" || l.To != "" {
		return l.From, l.To
	}
	return l.Node1, l.Node2
}

// Capacity returns the declared bandwidth in Mbps, preferring the long form.
func (l TopologyLink) Capacity() float64 {
	if l.Bandwidth > 0 {
		return l.Bandwidth
	}
	return l.BW
}

// =============================================================================
// COMMANDS
// =============================================================================

// Command names understood by the remote agent.
const (
	CommandToggleDevice   = "toggle_device"
	CommandToggleLink     = "toggle_link"
	CommandUpdateLink     = "update_link_conditions"
	CommandReloadTopology = "reload_topology"
)

// CommandMessage is dispatched to the agent on the command channel. The
// action id correlates the eventual result with a pending Action.
type CommandMessage struct {
	ActionID string         `json:"action_id"`
	Command  string         `json:"command"`
	Data     map[string]any `json:"data"`
}

// CommandResult is published by the agent when a command finishes.
type CommandResult struct {
	ActionID string         `json:"action_id"`
	Command  string         `json:"command"`
	Success  bool           `json:"success"`
	Message  string         `json:"message,omitempty"`
	Error    string         `json:"error,omitempty"`
	Result   map[string]any `json:"result,omitempty"`
}

// =============================================================================
// ACTIONS
// =============================================================================

// ActionType classifies a control intent.
type ActionType string

const (
	ActionImportTopology ActionType = "IMPORT_TOPOLOGY"
	ActionToggleDevice   ActionType = "TOGGLE_DEVICE"
	ActionToggleLink     ActionType = "TOGGLE_LINK"
	ActionUpdateLink     ActionType = "UPDATE_LINK"
)

// ActionStatus is the lifecycle state of an Action.
type ActionStatus string

const (
	ActionPending ActionStatus = "PENDING"
	ActionSuccess ActionStatus = "SUCCESS"
	ActionFailed  ActionStatus = "FAILED"
)

// Action is the audit/correlation record for one asynchronously-executed
// control command. Created PENDING; resolved exactly once (or never, if the
// agent goes away) when the correlated result arrives.
type Action struct {
	ActionID     string         `json:"action_id"`
	Timestamp    time.Time      `json:"timestamp"`
	ActionType   ActionType     `json:"action_type"`
	Target       string         `json:"target"`
	Parameters   map[string]any `json:"parameters"`
	Status       ActionStatus   `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CompletedAt  *time.Time     `json:"completed_at,omitempty"`
}

// =============================================================================
// EVENTS
// =============================================================================

// Broadcast event names pushed to dashboard subscribers.
const (
	EventInitialState       = "initial_state"
	EventHostUpdated        = "host_updated"
	EventSwitchUpdated      = "switch_updated"
	EventLinkUpdated        = "link_updated"
	EventNetworkBatchUpdate = "network_batch_update"
	EventActionStarted      = "action_started"
	EventActionCompleted    = "action_completed"
	EventActionFailed       = "action_failed"
)

// =============================================================================
// HEALTH
// =============================================================================

// EngineHealth is the self-health report served by the health endpoint.
type EngineHealth struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	UptimeSeconds float64   `json:"uptime_seconds"`
	Goroutines    int       `json:"goroutines"`

	ProcessCPUPercent float64 `json:"process_cpu_percent"`
	ProcessMemoryMB   float64 `json:"process_memory_mb"`

	Hosts    int `json:"hosts"`
	Switches int `json:"switches"`
	Links    int `json:"links"`

	QueueDepth   int   `json:"queue_depth"`
	QueueDropped int64 `json:"queue_dropped"`

	Actions map[string]int `json:"actions"`
}
