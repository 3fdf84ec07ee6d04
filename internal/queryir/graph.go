package queryir

import (
	"fmt"
	"slices"
	"strings"
)

// GraphMode says how attributes outside an entity graph are treated.
type GraphMode int

const (
	// GraphFetch loads only the graph's attributes eagerly; everything else
	// is delayed.
	GraphFetch GraphMode = iota + 1
	// GraphLoad loads the graph's attributes eagerly and leaves everything
	// else at its mapped default.
	GraphLoad
)

// EntityGraph is a requested tree of associations to load with the result.
type EntityGraph struct {
	Mode  GraphMode
	Nodes map[string]*EntityGraph
}

// Contains reports whether the graph names attribute.
func (g *EntityGraph) Contains(attribute string) bool {
	if g == nil {
		return false
	}
	_, ok := g.Nodes[attribute]
	return ok
}

// Sub returns the subgraph for attribute. The subgraph inherits the mode.
func (g *EntityGraph) Sub(attribute string) *EntityGraph {
	if g == nil {
		return nil
	}
	sub := g.Nodes[attribute]
	if sub == nil {
		return &EntityGraph{Mode: g.Mode}
	}
	return sub
}

// String renders the graph in the syntax accepted by ParseEntityGraph with
// attributes sorted.
func (g *EntityGraph) String() string {
	if g == nil || len(g.Nodes) == 0 {
		return ""
	}
	names := make([]string, 0, len(g.Nodes))
	for n := range g.Nodes {
		names = append(names, n)
	}
	slices.Sort(names)
	parts := make([]string, len(names))
	for i, n := range names {
		parts[i] = n
		if sub := g.Nodes[n].String(); sub != "" {
			parts[i] += "(" + sub + ")"
		}
	}
	return strings.Join(parts, ",")
}

// ParseEntityGraph parses "customer,items(product)".
func ParseEntityGraph(s string, mode GraphMode) (*EntityGraph, error) {
	g, rest, err := parseGraphNodes(strings.ReplaceAll(s, " ", ""), mode)
	if err != nil {
		return nil, err
	}
	if rest != "" {
		return nil, fmt.Errorf("entity graph %q: unexpected %q", s, rest)
	}
	return g, nil
}

func parseGraphNodes(s string, mode GraphMode) (*EntityGraph, string, error) {
	g := &EntityGraph{Mode: mode, Nodes: map[string]*EntityGraph{}}
	for s != "" && s[0] != ')' {
		end := strings.IndexAny(s, ",()")
		if end < 0 {
			end = len(s)
		}
		name := s[:end]
		if name == "" {
			return nil, "", fmt.Errorf("entity graph: empty attribute name")
		}
		s = s[end:]
		sub := &EntityGraph{Mode: mode, Nodes: map[string]*EntityGraph{}}
		if strings.HasPrefix(s, "(") {
			var err error
			sub, s, err = parseGraphNodes(s[1:], mode)
			if err != nil {
				return nil, "", err
			}
			if !strings.HasPrefix(s, ")") {
				return nil, "", fmt.Errorf("entity graph: missing ')' after %q", name)
			}
			s = s[1:]
		}
		g.Nodes[name] = sub
		s = strings.TrimPrefix(s, ",")
	}
	return g, s, nil
}
