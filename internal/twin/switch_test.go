package twin

import (
	"testing"
	"time"

	"github.com/twinlab/nettwin/pkg/types"
)

func TestSwitchHeartbeatRevives(t *testing.T) {
	s := NewSwitch("s1", "0000000000000001")
	s.Heartbeat(time.Now())
	if s.Status != StatusUp {
		t.Fatalf("status = %q, want up", s.Status)
	}

	s.ForceStatus(StatusOffline)
	s.Heartbeat(time.Now())
	if s.Status != StatusUp {
		t.Errorf("status after heartbeat = %q, want up", s.Status)
	}
}

func TestSwitchApplyPortStats(t *testing.T) {
	s := NewSwitch("s1", "0000000000000001")
	at := time.Now()
	s.ApplyPortStats(map[string]types.PortCounters{
		"s1-eth2": {RxPackets: 10, Dropped: 40},
		"s1-eth1": {TxPackets: 5, Dropped: 70},
	}, at)

	if len(s.PortList) != 2 || s.PortList[0] != "s1-eth1" || s.PortList[1] != "s1-eth2" {
		t.Errorf("port list = %v, want sorted [s1-eth1 s1-eth2]", s.PortList)
	}
	p := s.PortStats["s1-eth1"]
	if p.Switch != "s1" || p.PortID != "s1:s1-eth1" {
		t.Errorf("port stamp = %+v", p)
	}
	if got := s.TotalDropped(); got != 110 {
		t.Errorf("total dropped = %d, want 110", got)
	}
	if s.Status != StatusUnknown {
		t.Errorf("port stats must not change status, got %q", s.Status)
	}

	// A later report fully replaces the previous one.
	s.ApplyPortStats(map[string]types.PortCounters{
		"s1-eth3": {Dropped: 1},
	}, at)
	if len(s.PortList) != 1 || s.PortList[0] != "s1-eth3" {
		t.Errorf("port list after replace = %v", s.PortList)
	}
	if got := s.TotalDropped(); got != 1 {
		t.Errorf("total dropped after replace = %d, want 1", got)
	}
}

func TestSwitchForceStatusRejectsInvalid(t *testing.T) {
	s := NewSwitch("s1", "0000000000000001")
	if err := s.ForceStatus(Status("down")); err == nil {
		t.Error("down is not a valid switch status")
	}
}
