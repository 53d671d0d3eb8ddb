// Package twin holds the in-memory network model: the per-device state
// machines (host, switch, link), the registry that owns them, and the
// read-only snapshot projection consumed by dashboards.
//
// Every state machine is self-healing on data receipt (a metrics update
// always tries to move the entity toward a healthy classification unless the
// data itself says otherwise) and externally forceable (the liveness monitor
// and operator toggles can push it to a terminal bad state at any time).
// These two channels are what let the monitor and the telemetry pipeline
// cooperate without extra synchronization.
package twin

import (
	"errors"
	"fmt"
)

// Status is the canonical status of a device or link.
type Status string

const (
	StatusUnknown  Status = "unknown"
	StatusUp       Status = "up"
	StatusWarning  Status = "warning" // links only
	StatusHighLoad Status = "high-load"
	StatusOffline  Status = "offline" // hosts and switches
	StatusDown     Status = "down"    // links
)

// Sentinel errors returned by the registry and the state machines.
var (
	ErrAlreadyExists   = errors.New("already exists")
	ErrNotFound        = errors.New("not found")
	ErrEndpointMissing = errors.New("endpoint does not exist")
	ErrInvalidStatus   = errors.New("invalid status")
)

func validateStatus(s Status, valid ...Status) error {
	for _, v := range valid {
		if s == v {
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}
