package topology

import (
	"fmt"
	"sort"
)

// Graph is the validated description of a dataflow: nodes plus the
// edges implied by each transform/sink's Reads list. It carries no
// runtime state; Build turns a validated Graph into a running Topology.
type Graph struct {
	nodes map[string]NodeSpec
	order []string // insertion order, for deterministic error messages
}

// NewGraph returns an empty Graph ready for AddNode calls.
func NewGraph() *Graph {
	return &Graph{nodes: make(map[string]NodeSpec)}
}

// AddNode registers spec. Duplicate names are caught by Validate, not
// here, so every problem surfaces together; the node table keeps the
// last spec registered under a name.
func (g *Graph) AddNode(spec NodeSpec) {
	g.order = append(g.order, spec.Name)
	g.nodes[spec.Name] = spec
}

// Validate checks spec.md §4.6's three rules: unique names with
// resolving input references, no edge whose declared input type is not
// a superset of its upstream's output type, and no cycle (via an
// iterative Kahn sort, rejecting on residual edges). It returns every
// violation found, not just the first.
func (g *Graph) Validate() error {
	var problems []string

	seen := make(map[string]int)
	for _, name := range g.order {
		seen[name]++
	}
	for name, count := range seen {
		if count > 1 {
			problems = append(problems, fmt.Sprintf("duplicate node name %q", name))
		}
	}

	for _, name := range g.order {
		spec := g.nodes[name]
		if spec.Role == RoleSource && len(spec.Reads) > 0 {
			problems = append(problems, fmt.Sprintf("source %q must not declare Reads", name))
		}
		if spec.Role != RoleSource && len(spec.Reads) == 0 {
			problems = append(problems, fmt.Sprintf("%s %q has no upstream (empty Reads)", spec.Role, name))
		}
		for _, upstream := range spec.Reads {
			up, ok := g.nodes[upstream]
			if !ok {
				problems = append(problems, fmt.Sprintf("%s %q reads from unknown node %q", spec.Role, name, upstream))
				continue
			}
			if up.Role == RoleSink {
				problems = append(problems, fmt.Sprintf("%s %q reads from sink %q, sinks have no output", spec.Role, name, upstream))
				continue
			}
			if !spec.Inputs.Contains(up.Outputs) {
				problems = append(problems, fmt.Sprintf(
					"%s %q declares input %s which is not a superset of upstream %q's output %s",
					spec.Role, name, spec.Inputs, upstream, up.Outputs))
			}
		}
	}

	if cyc := g.findCycle(); len(cyc) > 0 {
		problems = append(problems, fmt.Sprintf("cycle detected: %v", cyc))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// findCycle runs an iterative Kahn topological sort over the Reads
// edges; any node left with unresolved in-degree after the queue drains
// is on a cycle or downstream of one. Returns the residual node names, sorted for a
// deterministic error message, or nil if the graph is acyclic.
func (g *Graph) findCycle() []string {
	order, residual := g.kahn()
	_ = order
	return residual
}

// TopoOrder returns node names in upstream-before-downstream order via
// the same Kahn sort Validate uses for cycle detection. Used by Reload
// to bring up added nodes only after the upstreams they read from
// already exist. The result is meaningless (partial) if the graph has a
// cycle; call Validate first.
func (g *Graph) TopoOrder() []string {
	order, _ := g.kahn()
	return order
}

func (g *Graph) kahn() (order []string, residual []string) {
	indegree := make(map[string]int, len(g.nodes))
	downstreamOf := make(map[string][]string, len(g.nodes))
	for name := range g.nodes {
		indegree[name] = 0
	}
	for _, name := range g.order {
		spec := g.nodes[name]
		for _, upstream := range spec.Reads {
			if _, ok := g.nodes[upstream]; !ok {
				continue // already reported by Validate's reference check
			}
			indegree[name]++
			downstreamOf[upstream] = append(downstreamOf[upstream], name)
		}
	}

	var queue []string
	for _, name := range g.order {
		if indegree[name] == 0 {
			queue = append(queue, name)
		}
	}

	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		order = append(order, n)
		for _, downstream := range downstreamOf[n] {
			indegree[downstream]--
			if indegree[downstream] == 0 {
				queue = append(queue, downstream)
			}
		}
	}

	if len(order) == len(g.nodes) {
		return order, nil
	}

	for name, deg := range indegree {
		if deg > 0 {
			residual = append(residual, name)
		}
	}
	sort.Strings(residual)
	return order, residual
}

// Nodes returns every registered node spec, in insertion order.
func (g *Graph) Nodes() []NodeSpec {
	out := make([]NodeSpec, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// Node looks up a single node spec by name.
func (g *Graph) Node(name string) (NodeSpec, bool) {
	spec, ok := g.nodes[name]
	return spec, ok
}

// downstreamsOf returns every node that reads directly from name, in
// insertion order, for wiring the runtime Fanout in Build.
func (g *Graph) downstreamsOf(name string) []string {
	var out []string
	for _, n := range g.order {
		spec := g.nodes[n]
		for _, upstream := range spec.Reads {
			if upstream == name {
				out = append(out, n)
				break
			}
		}
	}
	return out
}
