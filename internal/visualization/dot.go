// Package visualization renders simulation runs in various output formats.
package visualization

import (
	"context"
	"fmt"
	"strings"

	"github.com/nvandessel/crowdsim/internal/epidemic"
	"github.com/nvandessel/crowdsim/internal/store"
)

// Format specifies the output format for contact graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
)

// stateColors maps initial health states to DOT fill colors.
var stateColors = map[epidemic.HealthState]string{
	epidemic.Susceptible: "mediumseagreen",
	epidemic.Infected:    "tomato",
	epidemic.Recovered:   "orange",
}

// RenderDOT produces a Graphviz DOT representation of the contact graph of
// a persisted run. Edges point from the infected source to the target;
// contaminating contacts are drawn bold.
func RenderDOT(ctx context.Context, s store.Store, runID string) (string, error) {
	users, contacts, err := loadGraph(ctx, s, runID)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString("digraph contacts {\n")
	b.WriteString("  layout=neato;\n")
	b.WriteString("  node [shape=circle, style=filled, fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=9];\n\n")

	for _, u := range users {
		color := stateColors[u.InitialState]
		if color == "" {
			color = "lightgray"
		}
		b.WriteString(fmt.Sprintf("  %d [fillcolor=%q, tooltip=%q];\n", u.AgentID, color, u.InitialState.String()))
	}
	b.WriteString("\n")

	for _, c := range contacts {
		style := "dashed"
		color := "gray40"
		if c.Contaminated {
			style = "bold"
			color = "red"
		}
		b.WriteString(fmt.Sprintf("  %d -> %d [label=\"t%d\", style=%s, color=%s];\n",
			c.Source, c.Target, c.Tick, style, color))
	}

	b.WriteString("}\n")
	return b.String(), nil
}

// RenderJSON produces a JSON graph representation with nodes and edges arrays.
func RenderJSON(ctx context.Context, s store.Store, runID string) (map[string]interface{}, error) {
	users, contacts, err := loadGraph(ctx, s, runID)
	if err != nil {
		return nil, err
	}

	jsonNodes := make([]map[string]interface{}, 0, len(users))
	for _, u := range users {
		jsonNodes = append(jsonNodes, map[string]interface{}{
			"id":    u.AgentID,
			"state": u.InitialState.String(),
		})
	}

	jsonEdges := make([]map[string]interface{}, 0, len(contacts))
	infections := 0
	for _, c := range contacts {
		if c.Contaminated {
			infections++
		}
		jsonEdges = append(jsonEdges, map[string]interface{}{
			"source":       c.Source,
			"target":       c.Target,
			"tick":         c.Tick,
			"contaminated": c.Contaminated,
		})
	}

	return map[string]interface{}{
		"run_id":     runID,
		"nodes":      jsonNodes,
		"edges":      jsonEdges,
		"node_count": len(jsonNodes),
		"edge_count": len(jsonEdges),
		"infections": infections,
	}, nil
}

func loadGraph(ctx context.Context, s store.Store, runID string) ([]store.User, []store.Contact, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, nil, fmt.Errorf("get run: %w", err)
	}
	users, err := s.ListUsers(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("list users: %w", err)
	}
	contacts, err := s.ListContacts(ctx, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("list contacts: %w", err)
	}
	return users, contacts, nil
}
