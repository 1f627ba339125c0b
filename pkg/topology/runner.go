package topology

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Components supplies the runtime implementation behind every node name
// declared in a Graph. A transform may be registered in Transforms (a
// plain FunctionTransform) or Ticks (a TickTransform, which also
// satisfies FunctionTransform) but not both.
type Components struct {
	Sources    map[string]Source
	Transforms map[string]FunctionTransform
	Ticks      map[string]TickTransform
	Tasks      map[string]TaskTransform
	Sinks      map[string]Sink
}

func (c Components) lookupTransform(name string) (FunctionTransform, bool) {
	if t, ok := c.Ticks[name]; ok {
		return t, true
	}
	if t, ok := c.Transforms[name]; ok {
		return t, true
	}
	return nil, false
}

// Topology is a running, wired dataflow: one bounded Edge per non-source
// node's input, one Fanout per non-sink node's output, and one goroutine
// per node driving its Role-specific run loop.
type Topology struct {
	graph  *Graph
	logger *logrus.Logger

	edges   map[string]*Edge   // keyed by node name: this node's input queue
	fanouts map[string]*Fanout // keyed by node name: this node's output fanout (absent for sinks)

	components Components

	rootCtx context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	nodeMu     sync.Mutex
	nodeCancel map[string]context.CancelFunc
	nodeDone   map[string]chan struct{}

	edgeConfig   EdgeConfigFunc
	fingerprints map[string][]byte

	shutdownDeadline time.Duration
}

// EdgeConfigFunc lets the caller vary capacity/drop_newest per node name;
// nodes absent from its decisions get DefaultEdgeConfig.
type EdgeConfigFunc func(nodeName string) EdgeConfig

// Build validates graph and wires it into a ready-to-Start Topology.
// components must supply an implementation for every node name declared
// in graph, matching each node's declared Role.
func Build(graph *Graph, components Components, edgeConfig EdgeConfigFunc, logger *logrus.Logger) (*Topology, error) {
	if err := graph.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if edgeConfig == nil {
		edgeConfig = func(string) EdgeConfig { return DefaultEdgeConfig() }
	}

	t := &Topology{
		graph:            graph,
		logger:           logger,
		edges:            make(map[string]*Edge),
		fanouts:          make(map[string]*Fanout),
		components:       components,
		nodeCancel:       make(map[string]context.CancelFunc),
		nodeDone:         make(map[string]chan struct{}),
		edgeConfig:       edgeConfig,
		fingerprints:     make(map[string][]byte),
		shutdownDeadline: 30 * time.Second,
	}

	for _, spec := range graph.Nodes() {
		if err := checkComponent(components, spec); err != nil {
			return nil, err
		}
		if spec.Role != RoleSource {
			t.edges[spec.Name] = NewEdge(spec.Name, edgeConfig(spec.Name))
		}
		if spec.Role != RoleSink {
			t.fanouts[spec.Name] = NewFanout()
		}
	}

	for _, spec := range graph.Nodes() {
		fanout, ok := t.fanouts[spec.Name]
		if !ok {
			continue
		}
		for _, downstream := range graph.downstreamsOf(spec.Name) {
			fanout.AddOutput(t.edges[downstream])
		}
	}

	return t, nil
}

func checkComponent(components Components, spec NodeSpec) error {
	switch spec.Role {
	case RoleSource:
		if _, ok := components.Sources[spec.Name]; !ok {
			return fmt.Errorf("topology: no Source registered for node %q", spec.Name)
		}
	case RoleTransform:
		if _, ok := components.lookupTransform(spec.Name); ok {
			return nil
		}
		if _, ok := components.Tasks[spec.Name]; ok {
			return nil
		}
		return fmt.Errorf("topology: no transform registered for node %q", spec.Name)
	case RoleSink:
		if _, ok := components.Sinks[spec.Name]; !ok {
			return fmt.Errorf("topology: no Sink registered for node %q", spec.Name)
		}
	}
	return nil
}

// SetShutdownDeadline overrides the default 30s grace period Stop grants
// in-flight work before abandoning it.
func (t *Topology) SetShutdownDeadline(d time.Duration) { t.shutdownDeadline = d }

// Start launches one goroutine per node. It returns once every goroutine
// has been spawned; run-loop errors are logged, not returned, since a
// single misbehaving node must not prevent the rest of the graph from
// running (matching the teacher dispatcher's "continue on a per-sink
// send failure" posture in internal/dispatcher.processBatch).
func (t *Topology) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.rootCtx = ctx
	t.cancel = cancel

	for _, spec := range t.graph.Nodes() {
		t.startNode(spec)
	}
}

// startNode spawns the goroutine for one node against its own
// cancellable child of the topology's root context, so Reload can stop
// an individual node (a changed/removed component) without affecting
// the rest of the running graph.
func (t *Topology) startNode(spec NodeSpec) {
	nodeCtx, cancel := context.WithCancel(t.rootCtx)
	done := make(chan struct{})

	t.nodeMu.Lock()
	t.nodeCancel[spec.Name] = cancel
	t.nodeDone[spec.Name] = done
	t.nodeMu.Unlock()

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		defer close(done)
		t.runNode(nodeCtx, spec)
	}()
}

// stopNode cancels and waits for one node's goroutine to finish,
// without touching any other node. Used by Reload to tear down a
// removed or config-changed component.
func (t *Topology) stopNode(name string) {
	t.nodeMu.Lock()
	cancel, hasCancel := t.nodeCancel[name]
	done, hasDone := t.nodeDone[name]
	delete(t.nodeCancel, name)
	delete(t.nodeDone, name)
	t.nodeMu.Unlock()

	if hasCancel {
		cancel()
	}
	if hasDone {
		<-done
	}
}

func (t *Topology) runNode(ctx context.Context, spec NodeSpec) {
	logger := t.logger.WithField("node", spec.Name).WithField("role", spec.Role.String())

	switch spec.Role {
	case RoleSource:
		t.runSource(ctx, spec, logger)
	case RoleTransform:
		if task, ok := t.components.Tasks[spec.Name]; ok {
			t.runTask(ctx, spec, task, logger)
			return
		}
		if tick, ok := t.components.Ticks[spec.Name]; ok {
			t.runTick(ctx, spec, tick, logger)
			return
		}
		transform, _ := t.components.lookupTransform(spec.Name)
		t.runFunction(ctx, spec, transform, logger)
	case RoleSink:
		t.runSink(ctx, spec, logger)
	}
}

func (t *Topology) runSource(ctx context.Context, spec NodeSpec, logger *logrus.Entry) {
	// A Source gives no signal when it goes idle, so a coalescing batcher
	// would hold its events until Run returns; capacity 1 forwards each
	// emitted event at once as its own array.
	out := newFanoutOutput(1, t.fanouts[spec.Name])
	src := t.components.Sources[spec.Name]
	logger.Info("source starting")
	if err := src.Run(ctx, out); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("source exited with error")
	}
	if err := out.flush(ctx); err != nil {
		logger.WithError(err).Warn("source final flush failed")
	}
	logger.Info("source stopped")
}

func (t *Topology) runFunction(ctx context.Context, spec NodeSpec, transform FunctionTransform, logger *logrus.Entry) {
	in := t.edges[spec.Name]
	out := newFanoutOutput(100, t.fanouts[spec.Name])
	logger.Info("transform starting")
	for {
		select {
		case <-ctx.Done():
			_ = out.flush(context.Background())
			logger.Info("transform stopped")
			return
		case batch, ok := <-in.Recv():
			if !ok {
				_ = out.flush(context.Background())
				logger.Info("transform input closed")
				return
			}
			for _, e := range batch.Events() {
				if err := transform.Process(ctx, e, out); err != nil {
					logger.WithError(err).Warn("transform processing error")
				}
			}
			if err := out.flush(ctx); err != nil {
				logger.WithError(err).Warn("transform flush failed")
			}
		}
	}
}

func (t *Topology) runTick(ctx context.Context, spec NodeSpec, transform TickTransform, logger *logrus.Entry) {
	in := t.edges[spec.Name]
	out := newFanoutOutput(100, t.fanouts[spec.Name])
	interval := transform.TickInterval()
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("tick transform starting")
	for {
		select {
		case <-ctx.Done():
			_ = out.flush(context.Background())
			logger.Info("tick transform stopped")
			return
		case batch, ok := <-in.Recv():
			if !ok {
				_ = out.flush(context.Background())
				logger.Info("tick transform input closed")
				return
			}
			for _, e := range batch.Events() {
				if err := transform.Process(ctx, e, out); err != nil {
					logger.WithError(err).Warn("tick transform processing error")
				}
			}
			if err := out.flush(ctx); err != nil {
				logger.WithError(err).Warn("tick transform flush failed")
			}
		case <-ticker.C:
			if err := transform.Tick(ctx, out); err != nil {
				logger.WithError(err).Warn("tick invocation failed")
			}
			if err := out.flush(ctx); err != nil {
				logger.WithError(err).Warn("tick transform flush failed")
			}
		}
	}
}

func (t *Topology) runTask(ctx context.Context, spec NodeSpec, task TaskTransform, logger *logrus.Entry) {
	in := t.edges[spec.Name]
	out := newFanoutOutput(100, t.fanouts[spec.Name])
	logger.Info("task transform starting")
	if err := task.Run(ctx, in.Recv(), out); err != nil && ctx.Err() == nil {
		logger.WithError(err).Error("task transform exited with error")
	}
	_ = out.flush(context.Background())
	logger.Info("task transform stopped")
}

// bufferRunner is implemented by a Sink that owns a background drain
// loop over a disk buffer placed in front of it (see BufferedSink).
// runSink starts it alongside the node's ordinary edge-to-Send loop and
// waits for it to finish during shutdown, so the buffer gets a chance to
// flush regardless of how the node is torn down.
type bufferRunner interface {
	Run(ctx context.Context) error
}

func (t *Topology) runSink(ctx context.Context, spec NodeSpec, logger *logrus.Entry) {
	in := t.edges[spec.Name]
	sink := t.components.Sinks[spec.Name]

	if br, ok := sink.(bufferRunner); ok {
		done := make(chan struct{})
		go func() {
			defer close(done)
			if err := br.Run(ctx); err != nil {
				logger.WithError(err).Error("disk buffer drain loop exited with error")
			}
		}()
		defer func() { <-done }()
	}

	logger.Info("sink starting")
	for {
		select {
		case <-ctx.Done():
			t.drainSink(in, sink, logger)
			logger.Info("sink stopped")
			return
		case batch, ok := <-in.Recv():
			if !ok {
				logger.Info("sink input closed")
				return
			}
			if err := sink.Send(ctx, batch); err != nil {
				logger.WithError(err).Error("sink send failed")
			}
		}
	}
}

// drainSink processes whatever is already queued on the sink's input
// edge once shutdown begins, matching the teacher dispatcher's
// drainQueue behavior (internal/dispatcher.go) and spec.md §4.6's "fan-
// out drains" shutdown ordering.
func (t *Topology) drainSink(in *Edge, sink Sink, logger *logrus.Entry) {
	for {
		select {
		case batch, ok := <-in.Recv():
			if !ok {
				return
			}
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := sink.Send(ctx, batch); err != nil {
				logger.WithError(err).Error("sink send failed during drain")
			}
			cancel()
		default:
			return
		}
	}
}

// Edge exposes the input Edge for a node, primarily for metrics/admin
// introspection (queue depth, drop counts).
func (t *Topology) Edge(name string) (*Edge, bool) {
	e, ok := t.edges[name]
	return e, ok
}

// Fanout exposes the output Fanout for a node, used by Reload to rewire
// edges at runtime.
func (t *Topology) Fanout(name string) (*Fanout, bool) {
	f, ok := t.fanouts[name]
	return f, ok
}

// Graph exposes the currently running graph, primarily for admin
// introspection (listing nodes/edges for a topology dump).
func (t *Topology) Graph() *Graph {
	return t.graph
}
