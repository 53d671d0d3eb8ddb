package metrics

import (
	"testing"

	"github.com/twinlab/nettwin/internal/twin"
)

type fakeQueue struct{}

func (fakeQueue) Len() int       { return 3 }
func (fakeQueue) Dropped() int64 { return 7 }

type fakeActions struct{}

func (fakeActions) Counts() map[string]int {
	return map[string]int{"PENDING": 2, "SUCCESS": 5}
}

func TestHealthReport(t *testing.T) {
	reg := twin.NewRegistry("test")
	if _, err := reg.AddHost("h1", "10.0.0.1", "00:00:00:00:00:01"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.AddSwitch("s1", "0000000000000001"); err != nil {
		t.Fatal(err)
	}

	c := NewCollector(reg, fakeQueue{}, fakeActions{})
	h := c.Health()

	if h.Status != "healthy" {
		t.Errorf("status = %q", h.Status)
	}
	if h.Hosts != 1 || h.Switches != 1 || h.Links != 0 {
		t.Errorf("counts = %d/%d/%d", h.Hosts, h.Switches, h.Links)
	}
	if h.QueueDepth != 3 || h.QueueDropped != 7 {
		t.Errorf("queue = %d/%d", h.QueueDepth, h.QueueDropped)
	}
	if h.Actions["SUCCESS"] != 5 {
		t.Errorf("actions = %v", h.Actions)
	}
	if h.Goroutines < 1 {
		t.Errorf("goroutines = %d", h.Goroutines)
	}
}

func TestHealthCached(t *testing.T) {
	reg := twin.NewRegistry("test")
	c := NewCollector(reg, fakeQueue{}, fakeActions{})

	first := c.Health()
	reg.Lock()
	reg.AddHost("h1", "10.0.0.1", "00:00:00:00:00:01")
	reg.Unlock()

	// Within the cache window the stale count is expected.
	second := c.Health()
	if second.Hosts != first.Hosts {
		t.Errorf("cache miss: hosts %d -> %d", first.Hosts, second.Hosts)
	}
}
