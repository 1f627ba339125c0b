package topology

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGraphValidateAcceptsSimplePipeline(t *testing.T) {
	g := NewGraph()
	g.AddNode(NodeSpec{Name: "src", Role: RoleSource, Outputs: DataLog})
	g.AddNode(NodeSpec{Name: "xform", Role: RoleTransform, Inputs: DataLog, Outputs: DataLog, Reads: []string{"src"}})
	g.AddNode(NodeSpec{Name: "sink", Role: RoleSink, Inputs: DataAny, Reads: []string{"xform"}})

	require.NoError(t, g.Validate())
}

func TestGraphValidateRejectsDuplicateNames(t *testing.T) {
	g := NewGraph()
	g.AddNode(NodeSpec{Name: "src", Role: RoleSource, Outputs: DataLog})
	g.order = append(g.order, "src") // simulate a duplicate insertion path

	err := g.Validate()
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestGraphValidateRejectsUnknownUpstream(t *testing.T) {
	g := NewGraph()
	g.AddNode(NodeSpec{Name: "sink", Role: RoleSink, Inputs: DataAny, Reads: []string{"missing"}})

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown node")
}

func TestGraphValidateRejectsNarrowerInputThanUpstreamOutput(t *testing.T) {
	g := NewGraph()
	g.AddNode(NodeSpec{Name: "src", Role: RoleSource, Outputs: DataLog | DataMetric})
	g.AddNode(NodeSpec{Name: "sink", Role: RoleSink, Inputs: DataLog, Reads: []string{"src"}})

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not a superset")
}

func TestGraphValidateRejectsCycle(t *testing.T) {
	g := NewGraph()
	g.AddNode(NodeSpec{Name: "a", Role: RoleTransform, Inputs: DataLog, Outputs: DataLog, Reads: []string{"b"}})
	g.AddNode(NodeSpec{Name: "b", Role: RoleTransform, Inputs: DataLog, Outputs: DataLog, Reads: []string{"a"}})

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle detected")
}

func TestGraphValidateRejectsSourceWithReads(t *testing.T) {
	g := NewGraph()
	g.AddNode(NodeSpec{Name: "src", Role: RoleSource, Outputs: DataLog, Reads: []string{"ghost"}})

	err := g.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must not declare Reads")
}

func TestGraphTopoOrderRespectsDependencies(t *testing.T) {
	g := NewGraph()
	g.AddNode(NodeSpec{Name: "sink", Role: RoleSink, Inputs: DataAny, Reads: []string{"xform"}})
	g.AddNode(NodeSpec{Name: "xform", Role: RoleTransform, Inputs: DataLog, Outputs: DataLog, Reads: []string{"src"}})
	g.AddNode(NodeSpec{Name: "src", Role: RoleSource, Outputs: DataLog})

	require.NoError(t, g.Validate())
	order := g.TopoOrder()
	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["src"], pos["xform"])
	assert.Less(t, pos["xform"], pos["sink"])
}

func TestDataKindContainsAndString(t *testing.T) {
	assert.True(t, DataAny.Contains(DataLog))
	assert.False(t, DataLog.Contains(DataMetric))
	assert.Equal(t, "any", DataAny.String())
	assert.Equal(t, "log", DataLog.String())
}
