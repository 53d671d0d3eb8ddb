// Package graphdb mirrors the twin topology into Neo4j, where operators can
// run path and neighborhood queries the snapshot projection does not cover.
package graphdb

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/twinlab/nettwin/internal/twin"
)

// Mirror maintains the Neo4j copy of the topology. The mirror is rebuilt
// wholesale on topology changes; it is a query surface, not a source of
// truth, so losing it costs nothing but a rebuild.
type Mirror struct {
	driver neo4j.DriverWithContext
	logger *slog.Logger
}

// New connects to Neo4j and verifies connectivity.
func New(ctx context.Context, uri, username, password string, logger *slog.Logger) (*Mirror, error) {
	auth := neo4j.NoAuth()
	if username != "" {
		auth = neo4j.BasicAuth(username, password, "")
	}

	driver, err := neo4j.NewDriverWithContext(uri, auth)
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		driver.Close(ctx)
		return nil, fmt.Errorf("verifying neo4j connectivity: %w", err)
	}

	logger.Info("connected to neo4j", "uri", uri)
	return &Mirror{
		driver: driver,
		logger: logger.With("component", "graphdb"),
	}, nil
}

// Close releases the driver.
func (m *Mirror) Close(ctx context.Context) error {
	return m.driver.Close(ctx)
}

// Rebuild replaces the graph with the given snapshot: wipe, then one Device
// node per graph node and one LINKS relationship per edge.
func (m *Mirror) Rebuild(ctx context.Context, g twin.Graph) error {
	if err := m.query(ctx, `MATCH (n:Device) DETACH DELETE n`, nil); err != nil {
		return fmt.Errorf("clearing graph: %w", err)
	}

	for _, n := range g.GraphData.Nodes {
		err := m.query(ctx,
			`CREATE (d:Device {id: $id, label: $label, group: $group, status: $status})`,
			map[string]any{
				"id":     n.ID,
				"label":  n.Label,
				"group":  n.Group,
				"status": nodeStatus(n.Details),
			})
		if err != nil {
			return fmt.Errorf("creating node %s: %w", n.ID, err)
		}
	}

	for _, e := range g.GraphData.Edges {
		err := m.query(ctx,
			`MATCH (a:Device {id: $from}), (b:Device {id: $to})
			 CREATE (a)-[:LINKS {id: $id, status: $status, capacity_mbps: $capacity}]->(b)`,
			map[string]any{
				"from":     e.From,
				"to":       e.To,
				"id":       e.ID,
				"status":   string(e.Status),
				"capacity": e.Details.BandwidthCapacity,
			})
		if err != nil {
			return fmt.Errorf("creating edge %s: %w", e.ID, err)
		}
	}

	m.logger.Info("topology mirrored to neo4j",
		"nodes", len(g.GraphData.Nodes),
		"edges", len(g.GraphData.Edges))
	return nil
}

func (m *Mirror) query(ctx context.Context, cypher string, args map[string]any) error {
	_, err := neo4j.ExecuteQuery(ctx, m.driver, cypher, args,
		neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithDatabase("neo4j"))
	return err
}

// nodeStatus pulls the status out of a node's details view.
func nodeStatus(details any) string {
	switch v := details.(type) {
	case twin.HostView:
		return string(v.Status)
	case twin.SwitchView:
		return string(v.Status)
	default:
		return ""
	}
}
