package routerconfig

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ssw/routeflow/pkg/topology"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestBuildWiresKnownNodeTypes(t *testing.T) {
	doc, err := Load(writeSample(t))
	require.NoError(t, err)

	graph, components, err := Build(doc, quietLogger())
	require.NoError(t, err)

	assert.Len(t, graph.Nodes(), 3)
	assert.Contains(t, components.Sources, "tail")
	assert.Contains(t, components.Ticks, "limit")
	assert.Contains(t, components.Sinks, "out")
}

func TestBuildWrapsSinkWithDiskBufferWhenConfigured(t *testing.T) {
	doc, err := Load(writeSample(t))
	require.NoError(t, err)

	node := doc.Sinks["out"]
	node.Buffer = &BufferConfig{Path: t.TempDir()}
	doc.Sinks["out"] = node

	_, components, err := Build(doc, quietLogger())
	require.NoError(t, err)

	sink, ok := components.Sinks["out"]
	require.True(t, ok)
	_, ok = sink.(*topology.BufferedSink)
	assert.True(t, ok, "expected sink %q to be wrapped in a *topology.BufferedSink", "out")
}

func TestBuildRejectsUnknownType(t *testing.T) {
	doc := &Document{
		Sources: map[string]NodeConfig{"src": {Type: "does-not-exist"}},
		Sinks:   map[string]NodeConfig{"out": {Type: "kafka"}},
	}
	_, _, err := Build(doc, quietLogger())
	assert.Error(t, err)
}

func TestEdgeConfigHonorsOverride(t *testing.T) {
	doc := &Document{Edges: map[string]EdgeOverride{"limit": {Capacity: 42, DropNewest: true}}}
	fn := doc.EdgeConfig()

	cfg := fn("limit")
	assert.Equal(t, 42, cfg.Capacity)
	assert.True(t, cfg.DropNewest)

	defaultCfg := fn("unconfigured")
	assert.Equal(t, topology.DefaultEdgeConfig(), defaultCfg)
}

func TestFingerprintIsStableAndChangesWithInputs(t *testing.T) {
	doc, err := Load(writeSample(t))
	require.NoError(t, err)
	fp := doc.Fingerprint()

	first := fp("tail")
	second := fp("tail")
	assert.Equal(t, first, second)

	node := doc.Sources["tail"]
	node.Inputs = []string{"changed"}
	doc.Sources["tail"] = node

	assert.NotEqual(t, first, fp("tail"))
}
