package topology

import (
	"bytes"
	"fmt"
)

// NodeFingerprint returns a byte fingerprint of one node's configuration
// (typically a hash of its serialized config, the way
// pkg/hotreload.ConfigReloader fingerprints the whole config file with
// sha256). Reload preserves a node whose name exists in both the running
// and the new graph and whose fingerprint is byte-identical; everything
// else is torn down and replaced.
type NodeFingerprint func(nodeName string) []byte

// Reload validates newGraph, then diffs it against the graph currently
// running in t, per spec.md §4.6: "Validate the new graph; diff against
// the running one; start new components before stopping removed ones;
// rewire edges via the fan-out control channel. Components whose
// configs are byte-identical are preserved; others are torn down and
// replaced. A failed new component aborts the reload without affecting
// the running graph."
func (t *Topology) Reload(newGraph *Graph, newComponents Components, fingerprint NodeFingerprint) error {
	if err := newGraph.Validate(); err != nil {
		return fmt.Errorf("topology: reload aborted, new graph invalid: %w", err)
	}

	oldSpecs := make(map[string]NodeSpec)
	for _, spec := range t.graph.Nodes() {
		oldSpecs[spec.Name] = spec
	}
	newSpecs := make(map[string]NodeSpec)
	for _, spec := range newGraph.Nodes() {
		newSpecs[spec.Name] = spec
	}

	newFingerprints := make(map[string][]byte, len(newSpecs))
	for name := range newSpecs {
		if fingerprint != nil {
			newFingerprints[name] = fingerprint(name)
		}
	}

	var toAdd, toReplace, toRemove []string
	for name := range newSpecs {
		old, existed := oldSpecs[name]
		if !existed {
			toAdd = append(toAdd, name)
			continue
		}
		if old.Role != newSpecs[name].Role || !bytes.Equal(t.fingerprints[name], newFingerprints[name]) {
			toReplace = append(toReplace, name)
		}
		// else: byte-identical, preserved untouched.
	}
	for name := range oldSpecs {
		if _, stillPresent := newSpecs[name]; !stillPresent {
			toRemove = append(toRemove, name)
		}
	}

	t.logger.WithField("add", len(toAdd)).WithField("replace", len(toReplace)).
		WithField("remove", len(toRemove)).Info("topology reload: diff computed")

	// Start new components (brand-new and replaced) before stopping
	// anything, walking new nodes in upstream-before-downstream order so
	// a newly added transform's fanout exists before a newly added
	// downstream tries to attach to it.
	startSet := make(map[string]bool, len(toAdd)+len(toReplace))
	for _, name := range toAdd {
		startSet[name] = true
	}
	for _, name := range toReplace {
		startSet[name] = true
	}

	// Validate against the merged registry, not the raw newComponents:
	// callers are only required to supply implementations for nodes
	// being added or replaced (mergeComponents carries the rest forward
	// from the running topology), so checking newComponents directly
	// would reject every reload that doesn't restate the whole graph.
	mergedComponents := mergeComponents(t.components, newComponents, startSet)
	for _, spec := range newGraph.Nodes() {
		if err := checkComponent(mergedComponents, spec); err != nil {
			return fmt.Errorf("topology: reload aborted: %w", err)
		}
	}

	for _, name := range newGraph.TopoOrder() {
		if !startSet[name] {
			continue
		}
		spec := newSpecs[name]
		if spec.Role != RoleSource {
			t.edges[name] = NewEdge(name, t.edgeConfig(name))
		}
		if spec.Role != RoleSink {
			t.fanouts[name] = NewFanout()
		}
	}
	for _, name := range newGraph.TopoOrder() {
		if !startSet[name] {
			continue
		}
		if fanout, ok := t.fanouts[name]; ok {
			syncFanoutOutputs(fanout, newGraph.downstreamsOf(name), t.edges)
		}
	}

	t.components = mergedComponents

	// startNode overwrites a replaced node's handles; keep the old ones.
	oldStops := make(map[string]func(), len(toReplace))
	t.nodeMu.Lock()
	for _, name := range toReplace {
		cancel, done := t.nodeCancel[name], t.nodeDone[name]
		oldStops[name] = func() {
			if cancel != nil {
				cancel()
			}
			if done != nil {
				<-done
			}
		}
	}
	t.nodeMu.Unlock()

	for _, name := range newGraph.TopoOrder() {
		if !startSet[name] {
			continue
		}
		t.startNode(newSpecs[name])
	}

	// Rewire every *preserved* upstream's fanout to exactly the new
	// graph's wiring: syncFanoutOutputs both attaches any newly
	// added/replaced downstream (AddOutput is keyed/idempotent by edge
	// name, so a replaced downstream correctly swaps in its new Edge)
	// and detaches any output the new graph no longer names as a
	// downstream of this node, even though the node itself was never
	// touched — a node's own preservation says nothing about whether its
	// neighbors' wiring changed.
	for _, name := range newGraph.TopoOrder() {
		if startSet[name] {
			continue
		}
		if fanout, ok := t.fanouts[name]; ok {
			syncFanoutOutputs(fanout, newGraph.downstreamsOf(name), t.edges)
		}
	}

	// Now stop removed and old-replaced nodes.
	for _, name := range toReplace {
		oldStops[name]()
	}
	for _, name := range toRemove {
		t.stopNode(name)
		if up := t.upstreamsInGraph(oldSpecs[name]); len(up) > 0 {
			for _, u := range up {
				if fanout, ok := t.fanouts[u]; ok {
					fanout.RemoveOutput(name)
				}
			}
		}
		delete(t.edges, name)
		delete(t.fanouts, name)
	}

	t.graph = newGraph
	t.fingerprints = newFingerprints

	t.logger.Info("topology reload completed")
	return nil
}

func (t *Topology) upstreamsInGraph(spec NodeSpec) []string {
	return spec.Reads
}

// syncFanoutOutputs makes fanout's attached outputs match wanted exactly:
// it adds any edge named in wanted that isn't already attached and
// removes any currently-attached output no longer named in wanted. Used
// by Reload so a node's own wiring (its Reads list) can change even when
// the node itself is preserved untouched.
func syncFanoutOutputs(fanout *Fanout, wanted []string, edges map[string]*Edge) {
	want := make(map[string]bool, len(wanted))
	for _, name := range wanted {
		want[name] = true
		if edge, ok := edges[name]; ok {
			fanout.AddOutput(edge)
		}
	}
	for _, existing := range fanout.Outputs() {
		if !want[existing] {
			fanout.RemoveOutput(existing)
		}
	}
}

// mergeComponents returns a Components value where every name in
// changed is taken from next and every other name is preserved from
// prev, so a Reload call only needs to supply implementations for the
// nodes it is actually adding or replacing.
func mergeComponents(prev, next Components, changed map[string]bool) Components {
	out := Components{
		Sources:    make(map[string]Source),
		Transforms: make(map[string]FunctionTransform),
		Ticks:      make(map[string]TickTransform),
		Tasks:      make(map[string]TaskTransform),
		Sinks:      make(map[string]Sink),
	}
	for name, s := range prev.Sources {
		out.Sources[name] = s
	}
	for name, s := range prev.Transforms {
		out.Transforms[name] = s
	}
	for name, s := range prev.Ticks {
		out.Ticks[name] = s
	}
	for name, s := range prev.Tasks {
		out.Tasks[name] = s
	}
	for name, s := range prev.Sinks {
		out.Sinks[name] = s
	}
	for name := range changed {
		delete(out.Sources, name)
		delete(out.Transforms, name)
		delete(out.Ticks, name)
		delete(out.Tasks, name)
		delete(out.Sinks, name)
		if s, ok := next.Sources[name]; ok {
			out.Sources[name] = s
		}
		if s, ok := next.Transforms[name]; ok {
			out.Transforms[name] = s
		}
		if s, ok := next.Ticks[name]; ok {
			out.Ticks[name] = s
		}
		if s, ok := next.Tasks[name]; ok {
			out.Tasks[name] = s
		}
		if s, ok := next.Sinks[name]; ok {
			out.Sinks[name] = s
		}
	}
	return out
}
