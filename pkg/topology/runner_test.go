package topology

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/value"
)

// fixedSource emits n log events as soon as it is run, then blocks until
// ctx is cancelled, the way a real Source's Run blocks for its own
// lifetime rather than returning once its backlog is drained.
type fixedSource struct {
	n int
}

func (s *fixedSource) Run(ctx context.Context, out Output) error {
	for i := 0; i < s.n; i++ {
		e := event.NewLog(event.NewLogEvent(value.Object(nil)), event.NewMetadata("test", "t"))
		if err := out.Emit(ctx, e); err != nil {
			return err
		}
	}
	<-ctx.Done()
	return nil
}

// passthroughTransform forwards every event unchanged.
type passthroughTransform struct{}

func (passthroughTransform) Process(ctx context.Context, e event.Event, out Output) error {
	return out.Emit(ctx, e)
}

// collectSink records every delivered event under a mutex for
// assertions from the test goroutine.
type collectSink struct {
	mu   sync.Mutex
	recv int
}

func (s *collectSink) Send(ctx context.Context, batch event.Array) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recv += batch.Len()
	return nil
}

func (s *collectSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.recv
}

func buildLinearGraph() *Graph {
	g := NewGraph()
	g.AddNode(NodeSpec{Name: "src", Role: RoleSource, Outputs: DataLog})
	g.AddNode(NodeSpec{Name: "xform", Role: RoleTransform, Inputs: DataLog, Outputs: DataLog, Reads: []string{"src"}})
	g.AddNode(NodeSpec{Name: "sink", Role: RoleSink, Inputs: DataAny, Reads: []string{"xform"}})
	return g
}

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func TestTopologyDeliversEventsSourceToSink(t *testing.T) {
	defer goleak.VerifyNone(t)

	g := buildLinearGraph()
	sink := &collectSink{}
	components := Components{
		Sources:    map[string]Source{"src": &fixedSource{n: 5}},
		Transforms: map[string]FunctionTransform{"xform": passthroughTransform{}},
		Sinks:      map[string]Sink{"sink": sink},
	}

	topo, err := Build(g, components, nil, quietLogger())
	require.NoError(t, err)

	topo.Start(context.Background())

	require.Eventually(t, func() bool {
		return sink.count() == 5
	}, time.Second, 5*time.Millisecond)

	assert.True(t, topo.Stop())
}

func TestTopologyStopReturnsFalseWhenDeadlineExceeded(t *testing.T) {
	g := NewGraph()
	g.AddNode(NodeSpec{Name: "src", Role: RoleSource, Outputs: DataLog})
	g.AddNode(NodeSpec{Name: "sink", Role: RoleSink, Inputs: DataAny, Reads: []string{"src"}})

	components := Components{
		Sources: map[string]Source{"src": &blockingSource{}},
		Sinks:   map[string]Sink{"sink": &collectSink{}},
	}

	topo, err := Build(g, components, nil, quietLogger())
	require.NoError(t, err)
	topo.SetShutdownDeadline(20 * time.Millisecond)

	topo.Start(context.Background())
	assert.False(t, topo.Stop())
}

// blockingSource ignores ctx cancellation for longer than any deadline
// used in tests, simulating a stuck node so Stop's deadline path can be
// exercised without leaking a goroutine forever.
type blockingSource struct{}

func (s *blockingSource) Run(ctx context.Context, out Output) error {
	time.Sleep(time.Second)
	return nil
}

func TestTopologyStopIsIdempotentWhenNeverStarted(t *testing.T) {
	g := buildLinearGraph()
	components := Components{
		Sources:    map[string]Source{"src": &fixedSource{n: 0}},
		Transforms: map[string]FunctionTransform{"xform": passthroughTransform{}},
		Sinks:      map[string]Sink{"sink": &collectSink{}},
	}
	topo, err := Build(g, components, nil, quietLogger())
	require.NoError(t, err)

	assert.True(t, topo.Stop())
}
