package actions

import (
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/twinlab/nettwin/pkg/types"
)

type recordingBus struct {
	events []string
	data   []any
}

func (b *recordingBus) Broadcast(event string, data any) {
	b.events = append(b.events, event)
	b.data = append(b.data, data)
}

func testLog() (*Log, *recordingBus) {
	bus := &recordingBus{}
	return NewLog(bus, slog.New(slog.NewTextHandler(io.Discard, nil))), bus
}

func TestCreateAssignsIDAndBroadcasts(t *testing.T) {
	l, bus := testLog()

	a := l.Create(types.ActionToggleDevice, "h1", map[string]any{"device": "h1"})
	if !strings.HasPrefix(a.ActionID, "act_") {
		t.Errorf("id = %q, want act_ prefix", a.ActionID)
	}
	if a.Status != types.ActionPending {
		t.Errorf("status = %q, want PENDING", a.Status)
	}
	if len(bus.events) != 1 || bus.events[0] != types.EventActionStarted {
		t.Errorf("events = %v, want [action_started]", bus.events)
	}

	got, ok := l.Get(a.ActionID)
	if !ok {
		t.Fatal("created action not found by id")
	}
	if got.Target != "h1" {
		t.Errorf("target = %q, want h1", got.Target)
	}
}

func TestResolveSuccess(t *testing.T) {
	l, bus := testLog()
	a := l.Create(types.ActionToggleLink, "h1-s1", nil)

	l.Resolve(types.CommandResult{
		ActionID: a.ActionID,
		Command:  types.CommandToggleLink,
		Success:  true,
		Message:  "link toggled",
	})

	got, _ := l.Get(a.ActionID)
	if got.Status != types.ActionSuccess {
		t.Errorf("status = %q, want SUCCESS", got.Status)
	}
	if got.CompletedAt == nil {
		t.Error("CompletedAt not set")
	}
	if last := bus.events[len(bus.events)-1]; last != types.EventActionCompleted {
		t.Errorf("last event = %q, want action_completed", last)
	}
}

func TestResolveFailure(t *testing.T) {
	l, bus := testLog()
	a := l.Create(types.ActionUpdateLink, "h1-s1", map[string]any{"bandwidth": 50})

	l.Resolve(types.CommandResult{
		ActionID: a.ActionID,
		Success:  false,
		Error:    "no such link",
	})

	got, _ := l.Get(a.ActionID)
	if got.Status != types.ActionFailed {
		t.Errorf("status = %q, want FAILED", got.Status)
	}
	if got.ErrorMessage != "no such link" {
		t.Errorf("error = %q", got.ErrorMessage)
	}
	if last := bus.events[len(bus.events)-1]; last != types.EventActionFailed {
		t.Errorf("last event = %q, want action_failed", last)
	}
}

func TestResolveUnknownIDDropped(t *testing.T) {
	l, bus := testLog()

	l.Resolve(types.CommandResult{ActionID: "act_missing", Success: true})

	if len(bus.events) != 0 {
		t.Errorf("events = %v, want none for an unknown id", bus.events)
	}
}

func TestResolveDuplicateOverwrites(t *testing.T) {
	l, _ := testLog()
	a := l.Create(types.ActionToggleDevice, "h1", nil)

	l.Resolve(types.CommandResult{ActionID: a.ActionID, Success: true})
	l.Resolve(types.CommandResult{ActionID: a.ActionID, Success: false, Error: "late failure"})

	got, _ := l.Get(a.ActionID)
	if got.Status != types.ActionFailed {
		t.Errorf("status = %q, want FAILED after the late result", got.Status)
	}
	if got.ErrorMessage != "late failure" {
		t.Errorf("error = %q", got.ErrorMessage)
	}
}

func TestHistoryNewestFirstWithFilterAndPaging(t *testing.T) {
	l, _ := testLog()
	var ids []string
	for i := 0; i < 5; i++ {
		a := l.Create(types.ActionToggleDevice, "h1", nil)
		ids = append(ids, a.ActionID)
	}
	l.Resolve(types.CommandResult{ActionID: ids[1], Success: true})
	l.Resolve(types.CommandResult{ActionID: ids[3], Success: true})

	all := l.History(10, 0, "")
	if len(all) != 5 {
		t.Fatalf("history length = %d, want 5", len(all))
	}
	if all[0].ActionID != ids[4] || all[4].ActionID != ids[0] {
		t.Error("history not newest-first")
	}

	pending := l.History(10, 0, types.ActionPending)
	if len(pending) != 3 {
		t.Errorf("pending count = %d, want 3", len(pending))
	}

	page := l.History(2, 1, "")
	if len(page) != 2 {
		t.Fatalf("page length = %d, want 2", len(page))
	}
	if page[0].ActionID != ids[3] {
		t.Errorf("page starts at %q, want %q", page[0].ActionID, ids[3])
	}

	counts := l.Counts()
	if counts["PENDING"] != 3 || counts["SUCCESS"] != 2 {
		t.Errorf("counts = %v", counts)
	}
}
