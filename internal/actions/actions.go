// Package actions tracks control commands through their asynchronous
// lifecycle: created PENDING when dispatched, resolved when the agent's
// result arrives on the bus.
package actions

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/twinlab/nettwin/pkg/types"
)

// Broadcaster pushes an event to all dashboard subscribers.
type Broadcaster interface {
	Broadcast(event string, data any)
}

// Log is the in-memory action store. Records are append-only; resolution
// mutates a record in place but nothing is ever removed, so the history
// endpoint can serve the full audit trail for the process lifetime.
type Log struct {
	mu     sync.Mutex
	bus    Broadcaster
	logger *slog.Logger

	ordered []*types.Action
	byID    map[string]*types.Action
}

// NewLog creates an empty action log.
func NewLog(bus Broadcaster, logger *slog.Logger) *Log {
	return &Log{
		bus:    bus,
		logger: logger.With("component", "actions"),
		byID:   make(map[string]*types.Action),
	}
}

// Create records a new PENDING action and broadcasts action_started. The
// returned id goes both to the HTTP caller and onto the command message, so
// the eventual result can be correlated back.
func (l *Log) Create(actionType types.ActionType, target string, params map[string]any) *types.Action {
	a := &types.Action{
		ActionID:   "act_" + uuid.New().String(),
		Timestamp:  time.Now(),
		ActionType: actionType,
		Target:     target,
		Parameters: params,
		Status:     types.ActionPending,
	}

	l.mu.Lock()
	l.ordered = append(l.ordered, a)
	l.byID[a.ActionID] = a
	l.mu.Unlock()

	l.logger.Info("action created",
		"action_id", a.ActionID,
		"type", a.ActionType,
		"target", a.Target)
	l.bus.Broadcast(types.EventActionStarted, *a)
	return a
}

// Resolve applies a command result to its pending action. Results for
// unknown ids are logged and dropped; the HTTP caller already got its
// acknowledgment, so there is no one to surface an error to. A second result
// for the same id overwrites the terminal state with a warning.
func (l *Log) Resolve(res types.CommandResult) {
	l.mu.Lock()
	a, ok := l.byID[res.ActionID]
	if !ok {
		l.mu.Unlock()
		l.logger.Warn("result for unknown action, dropping",
			"action_id", res.ActionID,
			"command", res.Command)
		return
	}
	if a.Status != types.ActionPending {
		l.logger.Warn("duplicate result for resolved action, overwriting",
			"action_id", a.ActionID,
			"previous_status", a.Status)
	}

	now := time.Now()
	a.CompletedAt = &now
	if res.Success {
		a.Status = types.ActionSuccess
		a.ErrorMessage = ""
	} else {
		a.Status = types.ActionFailed
		a.ErrorMessage = res.Error
	}
	record := *a
	l.mu.Unlock()

	if res.Success {
		l.logger.Info("action completed",
			"action_id", record.ActionID,
			"type", record.ActionType)
		l.bus.Broadcast(types.EventActionCompleted, record)
	} else {
		l.logger.Warn("action failed",
			"action_id", record.ActionID,
			"type", record.ActionType,
			"error", record.ErrorMessage)
		l.bus.Broadcast(types.EventActionFailed, record)
	}
}

// Get returns a copy of the action with the given id.
func (l *Log) Get(id string) (types.Action, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.byID[id]
	if !ok {
		return types.Action{}, false
	}
	return *a, true
}

// History returns actions newest-first, optionally filtered by status, with
// offset/limit pagination applied after filtering.
func (l *Log) History(limit, offset int, status types.ActionStatus) []types.Action {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]types.Action, 0, limit)
	skipped := 0
	for i := len(l.ordered) - 1; i >= 0 && len(out) < limit; i-- {
		a := l.ordered[i]
		if status != "" && a.Status != status {
			continue
		}
		if skipped < offset {
			skipped++
			continue
		}
		out = append(out, *a)
	}
	return out
}

// Counts returns the number of actions per status.
func (l *Log) Counts() map[string]int {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[string]int, 3)
	for _, a := range l.ordered {
		counts[string(a.Status)]++
	}
	return counts
}
