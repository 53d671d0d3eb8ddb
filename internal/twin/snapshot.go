package twin

import (
	"fmt"
	"sort"
	"time"
)

// Graph is the presentation projection of the registry: one node per host
// and switch, one edge per link, with derived display fields.
type Graph struct {
	ModelName     string    `json:"model_name"`
	Timestamp     time.Time `json:"timestamp"`
	TotalHosts    int       `json:"total_hosts"`
	TotalSwitches int       `json:"total_switches"`
	TotalLinks    int       `json:"total_links"`
	GraphData     GraphData `json:"graph_data"`
}

// GraphData holds the node and edge lists.
type GraphData struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Node is one host or switch in the presentation graph.
type Node struct {
	ID      string `json:"id"`
	Label   string `json:"label"`
	Group   string `json:"group"`
	Details any    `json:"details"`
}

// Edge is one link in the presentation graph.
type Edge struct {
	ID          string   `json:"id"`
	From        string   `json:"from"`
	To          string   `json:"to"`
	Label       string   `json:"label"`
	Utilization float64  `json:"utilization"`
	Status      Status   `json:"status"`
	Details     LinkView `json:"details"`
}

// Project builds the presentation graph from the registry's current state.
// It never mutates the registry; the caller holds at least the read lock.
//
// The dead-link rule is enforced here as well as in the link state machine:
// an edge whose link is down, offline or unknown gets a DOWN/OFFLINE label
// and zero utilization even if the entity still holds a stale value, because
// entity state and projection are produced at different times.
func Project(r *Registry) Graph {
	nodes := make([]Node, 0, len(r.hosts)+len(r.switches))

	for _, name := range sortedKeys(r.hosts) {
		h := r.hosts[name]
		group := "host"
		if h.Status == StatusOffline {
			group = "host-offline"
		}
		nodes = append(nodes, Node{
			ID:      h.Name,
			Label:   h.Name,
			Group:   group,
			Details: h.View(),
		})
	}
	for _, name := range sortedKeys(r.switches) {
		s := r.switches[name]
		group := "switch"
		if s.Status == StatusOffline {
			group = "switch-offline"
		}
		nodes = append(nodes, Node{
			ID:      s.Name,
			Label:   s.Name,
			Group:   group,
			Details: s.View(),
		})
	}

	edges := make([]Edge, 0, len(r.links))
	for _, id := range sortedKeys(r.links) {
		l := r.links[id]
		view := l.View()

		var label string
		utilization := view.Utilization
		switch l.Status {
		case StatusDown:
			label = "DOWN"
			utilization = 0
		case StatusOffline, StatusUnknown:
			label = "OFFLINE"
			utilization = 0
		default:
			label = fmt.Sprintf("%.1f Mbps", l.CurrentThroughput)
		}

		edges = append(edges, Edge{
			ID:          l.ID,
			From:        l.Node1,
			To:          l.Node2,
			Label:       label,
			Utilization: utilization,
			Status:      l.Status,
			Details:     view,
		})
	}

	hosts, switches, links := r.Counts()
	return Graph{
		ModelName:     r.name,
		Timestamp:     time.Now(),
		TotalHosts:    hosts,
		TotalSwitches: switches,
		TotalLinks:    links,
		GraphData:     GraphData{Nodes: nodes, Edges: edges},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
