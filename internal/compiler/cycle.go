package compiler

import (
	"fmt"
	"slices"
	"strings"

	mm "github.com/roach88/ormsql/internal/metamodel"
)

// CycleWarning represents a cycle of eagerly fetched associations.
//
// Cycles are warnings, not errors: fetch planning stops at an association
// whose relationship is already being fetched, so the cycle only costs the
// extra secondary selects it takes to reach that point.
type CycleWarning struct {
	Path    []string `json:"path"`    // Entities on the cycle: ["Customer", "Order", "Customer"]
	Via     []string `json:"via"`     // Association taken at each step: ["Customer.orders", "Order.customer"]
	Message string   `json:"message"` // Human-readable description
	Level   string   `json:"level"`   // "warning" or "info"
}

// AnalyzeFetchCycles finds cycles in the graph of eager associations.
//
// The algorithm:
//  1. Build entity → target edges from every eager or join-fetched association
//  2. Use Tarjan's algorithm to find strongly connected components
//  3. Report each SCC with size > 1 or self-loops as a cycle warning
//
// Nodes and edges are visited in name order so the warnings are stable.
// A model without eager cycles returns an empty warning list.
func AnalyzeFetchCycles(m *mm.Model) []CycleWarning {
	graph := buildFetchGraph(m)
	if len(graph) == 0 {
		return []CycleWarning{}
	}

	warnings := []CycleWarning{}
	for _, scc := range tarjanSCC(graph) {
		if len(scc) > 1 || hasSelfLoop(scc[0], graph) {
			warnings = append(warnings, cycleSCCToWarning(scc, graph))
		}
	}
	slices.SortFunc(warnings, func(a, b CycleWarning) int {
		return strings.Compare(strings.Join(a.Path, ","), strings.Join(b.Path, ","))
	})
	return warnings
}

type fetchEdge struct {
	target string
	via    string
}

// fetchGraph maps entity name → eager associations leaving it.
type fetchGraph map[string][]fetchEdge

func buildFetchGraph(m *mm.Model) fetchGraph {
	graph := make(fetchGraph)
	for _, e := range m.Entities() {
		for _, a := range e.AllAttributes() {
			if !a.IsAssociation() || !(a.Eager || a.JoinFetch) || a.TargetEntity == nil {
				continue
			}
			graph[e.Name] = append(graph[e.Name], fetchEdge{target: a.TargetEntity.Name, via: e.Name + "." + a.Name})
		}
	}
	for name, edges := range graph {
		slices.SortFunc(edges, func(a, b fetchEdge) int { return strings.Compare(a.via, b.via) })
		graph[name] = edges
	}
	return graph
}

func (g fetchGraph) nodes() []string {
	seen := map[string]bool{}
	var nodes []string
	for name, edges := range g {
		if !seen[name] {
			seen[name] = true
			nodes = append(nodes, name)
		}
		for _, e := range edges {
			if !seen[e.target] {
				seen[e.target] = true
				nodes = append(nodes, e.target)
			}
		}
	}
	slices.Sort(nodes)
	return nodes
}

func hasSelfLoop(node string, graph fetchGraph) bool {
	return slices.ContainsFunc(graph[node], func(e fetchEdge) bool { return e.target == node })
}

// tarjanSCC finds strongly connected components using Tarjan's algorithm.
//
// Single-node SCCs without self-loops are NOT cycles.
func tarjanSCC(graph fetchGraph) [][]string {
	var (
		index   = 0
		stack   []string
		indices = make(map[string]int)
		lowlink = make(map[string]int)
		onStack = make(map[string]bool)
		sccs    [][]string
	)

	var strongConnect func(string)
	strongConnect = func(v string) {
		indices[v] = index
		lowlink[v] = index
		index++
		stack = append(stack, v)
		onStack[v] = true

		for _, e := range graph[v] {
			w := e.target
			if _, visited := indices[w]; !visited {
				strongConnect(w)
				lowlink[v] = min(lowlink[v], lowlink[w])
			} else if onStack[w] {
				lowlink[v] = min(lowlink[v], indices[w])
			}
		}

		// v is a root node: pop the stack and emit an SCC
		if lowlink[v] == indices[v] {
			var scc []string
			for {
				w := stack[len(stack)-1]
				stack = stack[:len(stack)-1]
				onStack[w] = false
				scc = append(scc, w)
				if w == v {
					break
				}
			}
			slices.Sort(scc)
			sccs = append(sccs, scc)
		}
	}

	for _, node := range graph.nodes() {
		if _, visited := indices[node]; !visited {
			strongConnect(node)
		}
	}
	return sccs
}

func cycleSCCToWarning(scc []string, graph fetchGraph) CycleWarning {
	if len(scc) == 1 {
		name := scc[0]
		var via string
		for _, e := range graph[name] {
			if e.target == name {
				via = e.via
				break
			}
		}
		return CycleWarning{
			Path:    []string{name, name},
			Via:     []string{via},
			Message: fmt.Sprintf("Eager association fetches its own entity: %s", via),
			Level:   "warning",
		}
	}

	path, via := reconstructCyclePath(scc, graph)
	return CycleWarning{
		Path:    path,
		Via:     via,
		Message: fmt.Sprintf("Eager fetch cycle: %s", strings.Join(via, " → ")),
		Level:   "warning",
	}
}

// reconstructCyclePath starts at the first SCC member and follows edges to
// other members until it returns to the start.
func reconstructCyclePath(scc []string, graph fetchGraph) ([]string, []string) {
	members := make(map[string]bool, len(scc))
	for _, n := range scc {
		members[n] = true
	}

	start := scc[0]
	current := start
	path := []string{current}
	var via []string
	visited := map[string]bool{}
	for {
		visited[current] = true
		var next *fetchEdge
		for i, e := range graph[current] {
			if e.target != current && members[e.target] && (!visited[e.target] || e.target == start) {
				next = &graph[current][i]
				break
			}
		}
		if next == nil {
			break
		}
		path = append(path, next.target)
		via = append(via, next.via)
		if next.target == start {
			break
		}
		current = next.target
	}
	return path, via
}
