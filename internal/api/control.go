package api

import (
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"

	"github.com/twinlab/nettwin/internal/config"
	"github.com/twinlab/nettwin/pkg/types"
)

// delayPattern matches the delay syntax the agent's traffic shaper accepts:
// a number with an ms/us/s unit, e.g. "10ms", "0.5s".
var delayPattern = regexp.MustCompile(`^\d+(\.\d+)?(ms|us|s)$`)

// dispatch creates the action record, publishes the command, and writes the
// 202 acknowledgment. The caller has already validated the request; from
// here on, failure to publish is the only thing that can stop the action.
func (s *Server) dispatch(w http.ResponseWriter, r *http.Request,
	actionType types.ActionType, target, command string, data map[string]any) {

	a := s.actionLog.Create(actionType, target, data)

	msg := types.CommandMessage{
		ActionID: a.ActionID,
		Command:  command,
		Data:     data,
	}
	if err := s.commands.PublishCommand(r.Context(), msg); err != nil {
		s.logger.Error("command publish failed",
			"action_id", a.ActionID,
			"command", command,
			"error", err)
		s.actionLog.Resolve(types.CommandResult{
			ActionID: a.ActionID,
			Command:  command,
			Success:  false,
			Error:    "command dispatch failed: " + err.Error(),
		})
		writeError(w, http.StatusBadGateway, "failed to dispatch command to agent")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"action_id": a.ActionID,
		"status":    a.Status,
		"message":   "command dispatched",
	})
}

// toggleRequest is the optional toggle body. Without one, the agent flips
// the current state.
type toggleRequest struct {
	Action string `json:"action,omitempty"`
}

func readToggleAction(r *http.Request, valid ...string) (string, error) {
	if r.Body == nil || r.ContentLength == 0 {
		return "", nil
	}
	var req toggleRequest
	if err := readJSON(r, &req); err != nil {
		return "", err
	}
	if req.Action == "" {
		return "", nil
	}
	for _, v := range valid {
		if req.Action == v {
			return req.Action, nil
		}
	}
	return "", fmt.Errorf("action must be one of %s", strings.Join(valid, ", "))
}

func (s *Server) handleToggleDevice(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	action, err := readToggleAction(r, "enable", "disable")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	s.reg.RLock()
	known := s.reg.GetHost(name) != nil || s.reg.GetSwitch(name) != nil
	s.reg.RUnlock()
	if !known {
		writeError(w, http.StatusNotFound, "unknown device: "+name)
		return
	}

	data := map[string]any{"device": name}
	if action != "" {
		data["action"] = action
	}
	s.dispatch(w, r, types.ActionToggleDevice, name, types.CommandToggleDevice, data)
}

func (s *Server) handleToggleLink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !strings.Contains(id, "-") {
		writeError(w, http.StatusBadRequest, "malformed link id: "+id)
		return
	}

	action, err := readToggleAction(r, "up", "down")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	l := s.lookupLink(id)
	if l == nil {
		writeError(w, http.StatusNotFound, "unknown link: "+id)
		return
	}

	data := map[string]any{"link": l.ID, "node1": l.Node1, "node2": l.Node2}
	if action != "" {
		data["action"] = action
	}
	s.dispatch(w, r, types.ActionToggleLink, l.ID, types.CommandToggleLink, data)
}

// updateLinkRequest is the PUT body for link condition updates. All fields
// are optional but at least one must be present; unknown fields are
// rejected.
type updateLinkRequest struct {
	Bandwidth *float64 `json:"bandwidth,omitempty"`
	Delay     *string  `json:"delay,omitempty"`
	Loss      *float64 `json:"loss,omitempty"`
}

func (req *updateLinkRequest) validate() string {
	if req.Bandwidth == nil && req.Delay == nil && req.Loss == nil {
		return "at least one of bandwidth, delay, loss is required"
	}
	if req.Bandwidth != nil && *req.Bandwidth <= 0 {
		return "bandwidth must be greater than 0"
	}
	if req.Delay != nil && !delayPattern.MatchString(*req.Delay) {
		return "delay must be a number with an ms/us/s suffix, e.g. \"10ms\""
	}
	if req.Loss != nil && (*req.Loss < 0 || *req.Loss > 100) {
		return "loss must be between 0 and 100"
	}
	return ""
}

func (s *Server) handleUpdateLink(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	var req updateLinkRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if msg := req.validate(); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	l := s.lookupLink(id)
	if l == nil {
		writeError(w, http.StatusNotFound, "unknown link: "+id)
		return
	}

	data := map[string]any{"link": l.ID, "node1": l.Node1, "node2": l.Node2}
	if req.Bandwidth != nil {
		data["bandwidth"] = *req.Bandwidth
	}
	if req.Delay != nil {
		data["delay"] = *req.Delay
	}
	if req.Loss != nil {
		data["loss"] = *req.Loss
	}

	s.dispatch(w, r, types.ActionUpdateLink, l.ID, types.CommandUpdateLink, data)
}

func (s *Server) handleImportTopology(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Topology types.TopologySpec `json:"topology"`
	}
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	spec := req.Topology
	if msg := validateImportTopology(spec); msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}

	// The registry is not touched here. The agent rebuilds its network
	// and re-declares the live topology through the init endpoint, so the
	// twin never reflects a topology that does not actually exist yet.
	data := map[string]any{
		"hosts":    spec.Hosts,
		"switches": spec.Switches,
		"links":    spec.Links,
	}
	s.dispatch(w, r, types.ActionImportTopology, "topology", types.CommandReloadTopology, data)
}

// validateImportTopology enforces the external import schema on top of the
// structural checks: imported hosts carry an address pair, switches a dpid,
// and links name their endpoints as from/to. The agent's own declaration
// (validateTopology) stays looser because the agent fills in defaults.
func validateImportTopology(spec types.TopologySpec) string {
	for _, h := range spec.Hosts {
		if h.IP == "" {
			return "host ip is required: " + h.Name
		}
		if h.MAC == "" {
			return "host mac is required: " + h.Name
		}
	}
	for _, sw := range spec.Switches {
		if sw.DPID == "" {
			return "switch dpid is required: " + sw.Name
		}
	}
	for _, l := range spec.Links {
		if l.From == "" || l.To == "" {
			return "link from/to endpoints are required"
		}
	}
	return validateTopology(spec)
}

func validateTopology(spec types.TopologySpec) string {
	if len(spec.Hosts) == 0 && len(spec.Switches) == 0 {
		return "topology must declare at least one host or switch"
	}
	names := make(map[string]bool)
	for _, h := range spec.Hosts {
		if h.Name == "" {
			return "host name is required"
		}
		if names[h.Name] {
			return "duplicate node name: " + h.Name
		}
		names[h.Name] = true
	}
	for _, sw := range spec.Switches {
		if sw.Name == "" {
			return "switch name is required"
		}
		if names[sw.Name] {
			return "duplicate node name: " + sw.Name
		}
		names[sw.Name] = true
	}
	for _, l := range spec.Links {
		n1, n2 := l.Endpoints()
		if n1 == "" || n2 == "" {
			return "link endpoints are required"
		}
		if !names[n1] {
			return "link references unknown node: " + n1
		}
		if !names[n2] {
			return "link references unknown node: " + n2
		}
	}
	return ""
}

func (s *Server) handleActionHistory(w http.ResponseWriter, r *http.Request) {
	limit := config.DefaultHistoryLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		if n > config.MaxHistoryLimit {
			n = config.MaxHistoryLimit
		}
		limit = n
	}

	offset := 0
	if v := r.URL.Query().Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "offset must be a non-negative integer")
			return
		}
		offset = n
	}

	var status types.ActionStatus
	switch v := r.URL.Query().Get("status"); v {
	case "", string(types.ActionPending), string(types.ActionSuccess), string(types.ActionFailed):
		status = types.ActionStatus(v)
	default:
		writeError(w, http.StatusBadRequest, "status must be PENDING, SUCCESS or FAILED")
		return
	}

	history := s.actionLog.History(limit, offset, status)
	writeJSON(w, http.StatusOK, map[string]any{
		"actions": history,
		"count":   len(history),
	})
}

func (s *Server) handleGetAction(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	a, ok := s.actionLog.Get(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown action: "+id)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// linkRef is a copy of a link's identity, safe to use after the registry
// lock is released.
type linkRef struct {
	ID    string
	Node1 string
	Node2 string
}

// lookupLink resolves a link path parameter, tolerating either endpoint
// order in the id.
func (s *Server) lookupLink(id string) *linkRef {
	a, b, ok := strings.Cut(id, "-")
	if !ok {
		return nil
	}
	s.reg.RLock()
	defer s.reg.RUnlock()
	l := s.reg.GetLink(a, b)
	if l == nil {
		return nil
	}
	return &linkRef{ID: l.ID, Node1: l.Node1, Node2: l.Node2}
}
