package routerconfig

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/ssw/routeflow/pkg/bufferdisk"
	"github.com/ssw/routeflow/pkg/topology"
	"github.com/ssw/routeflow/pkg/transforms"
	"github.com/ssw/routeflow/refsinks/kafka"
	"github.com/ssw/routeflow/refsources/filetail"
)

// Build translates doc into a validated Graph plus the Components
// implementing every node it names, wiring the concrete reference
// integrations (refsources/filetail, refsinks/kafka) and transforms
// (pkg/transforms) this module ships. An unrecognized Type is a
// configuration error, not a panic, matching the teacher's fail-fast
// posture in app.initializeComponents.
func Build(doc *Document, logger *logrus.Logger) (*topology.Graph, topology.Components, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	graph := topology.NewGraph()
	components := topology.Components{
		Sources:    make(map[string]topology.Source),
		Transforms: make(map[string]topology.FunctionTransform),
		Ticks:      make(map[string]topology.TickTransform),
		Sinks:      make(map[string]topology.Sink),
	}

	for name, node := range doc.Sources {
		src, outputs, err := buildSource(node, logger)
		if err != nil {
			return nil, topology.Components{}, fmt.Errorf("routerconfig: source %q: %w", name, err)
		}
		components.Sources[name] = src
		graph.AddNode(topology.NodeSpec{Name: name, Role: topology.RoleSource, Outputs: outputs})
	}

	for name, node := range doc.Transforms {
		transform, kind, err := buildTransform(node, logger)
		if err != nil {
			return nil, topology.Components{}, fmt.Errorf("routerconfig: transform %q: %w", name, err)
		}
		switch t := transform.(type) {
		case topology.TickTransform:
			components.Ticks[name] = t
		default:
			components.Transforms[name] = transform
		}
		graph.AddNode(topology.NodeSpec{Name: name, Role: topology.RoleTransform, Inputs: kind, Outputs: kind, Reads: node.Inputs})
	}

	for name, node := range doc.Sinks {
		sink, inputs, err := buildSink(node, logger)
		if err != nil {
			return nil, topology.Components{}, fmt.Errorf("routerconfig: sink %q: %w", name, err)
		}
		if node.Buffer != nil {
			sink, err = wrapBuffered(name, node.Buffer, sink, logger)
			if err != nil {
				return nil, topology.Components{}, fmt.Errorf("routerconfig: sink %q buffer: %w", name, err)
			}
		}
		components.Sinks[name] = sink
		graph.AddNode(topology.NodeSpec{Name: name, Role: topology.RoleSink, Inputs: inputs, Reads: node.Inputs})
	}

	if err := graph.Validate(); err != nil {
		return nil, topology.Components{}, err
	}

	return graph, components, nil
}

func buildSource(node NodeConfig, logger *logrus.Logger) (topology.Source, topology.DataKind, error) {
	switch node.Type {
	case "filetail":
		var cfg filetail.Config
		if err := node.decodeOptions(&cfg); err != nil {
			return nil, 0, err
		}
		src, err := filetail.New(cfg, logger)
		if err != nil {
			return nil, 0, err
		}
		return src, topology.DataLog, nil
	default:
		return nil, 0, fmt.Errorf("unknown source type %q", node.Type)
	}
}

func buildTransform(node NodeConfig, logger *logrus.Logger) (topology.FunctionTransform, topology.DataKind, error) {
	switch node.Type {
	case "throttle":
		var cfg transforms.ThrottleConfig
		if err := node.decodeOptions(&cfg); err != nil {
			return nil, 0, err
		}
		t, err := transforms.NewThrottle(cfg, logger)
		if err != nil {
			return nil, 0, err
		}
		return t, topology.DataAny, nil
	case "dedupe":
		var cfg transforms.DedupeConfig
		if err := node.decodeOptions(&cfg); err != nil {
			return nil, 0, err
		}
		t, err := transforms.NewDedupe(cfg, logger)
		if err != nil {
			return nil, 0, err
		}
		return t, topology.DataAny, nil
	default:
		return nil, 0, fmt.Errorf("unknown transform type %q", node.Type)
	}
}

// wrapBuffered opens a disk buffer at cfg.Path and decorates sink with
// it, so the node's edge-to-Send loop only ever writes to disk while a
// background goroutine (started by topology's runSink) drains the
// buffer into the real sink.
func wrapBuffered(name string, cfg *BufferConfig, sink topology.Sink, logger *logrus.Logger) (topology.Sink, error) {
	buf, err := bufferdisk.New(bufferdisk.Config{
		Path:               cfg.Path,
		MaxSize:            cfg.MaxSize,
		MaxUncompactedSize: cfg.MaxUncompactedSize,
		FlushAckThreshold:  cfg.FlushAckThreshold,
		ReadBatchSize:      cfg.ReadBatchSize,
	}, logger)
	if err != nil {
		return nil, err
	}
	return topology.NewBufferedSink(buf, sink, logger.WithField("sink", name)), nil
}

func buildSink(node NodeConfig, logger *logrus.Logger) (topology.Sink, topology.DataKind, error) {
	switch node.Type {
	case "kafka":
		var cfg kafka.Config
		if err := node.decodeOptions(&cfg); err != nil {
			return nil, 0, err
		}
		sink, err := kafka.New(cfg, logger)
		if err != nil {
			return nil, 0, err
		}
		return sink, topology.DataAny, nil
	default:
		return nil, 0, fmt.Errorf("unknown sink type %q", node.Type)
	}
}

// EdgeConfig returns a topology.EdgeConfigFunc honoring doc's per-node
// edges overrides, falling back to topology.DefaultEdgeConfig for any
// node the document doesn't mention.
func (doc *Document) EdgeConfig() topology.EdgeConfigFunc {
	return func(name string) topology.EdgeConfig {
		if override, ok := doc.Edges[name]; ok {
			cfg := topology.DefaultEdgeConfig()
			if override.Capacity > 0 {
				cfg.Capacity = override.Capacity
			}
			cfg.DropNewest = override.DropNewest
			return cfg
		}
		return topology.DefaultEdgeConfig()
	}
}

// Fingerprint returns a topology.NodeFingerprint closed over doc, used
// by Topology.Reload to decide which nodes are byte-identical across a
// reload and can be preserved untouched.
func (doc *Document) Fingerprint() topology.NodeFingerprint {
	return func(name string) []byte {
		if node, ok := doc.Sources[name]; ok {
			return node.fingerprint()
		}
		if node, ok := doc.Transforms[name]; ok {
			return node.fingerprint()
		}
		if node, ok := doc.Sinks[name]; ok {
			return node.fingerprint()
		}
		return nil
	}
}
