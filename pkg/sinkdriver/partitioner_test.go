package sinkdriver

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ssw/routeflow/pkg/event"
	"github.com/ssw/routeflow/pkg/value"
)

func newLogWithTenant(tenant string) event.Event {
	body := value.Object(nil)
	_ = body.Insert(value.ParsePath(".tenant"), value.Bytes([]byte(tenant)))
	return event.NewLog(event.NewLogEvent(body), event.NewMetadata("test", "t1"))
}

func TestPartitionerStableForSameKey(t *testing.T) {
	p := &Partitioner{KeyPath: value.ParsePath(".tenant"), NumBuckets: 8}
	e1 := newLogWithTenant("acme")
	e2 := newLogWithTenant("acme")
	assert.Equal(t, p.Partition(e1), p.Partition(e2))
}

func TestPartitionerFallsBackToZeroWhenKeyMissing(t *testing.T) {
	p := &Partitioner{KeyPath: value.ParsePath(".tenant"), NumBuckets: 8}
	e := event.NewLog(event.NewLogEvent(value.Object(nil)), event.NewMetadata("test", "t1"))
	assert.Equal(t, uint32(0), p.Partition(e))
}

func TestGroupByPartitionSplitsEvents(t *testing.T) {
	p := &Partitioner{KeyPath: value.ParsePath(".tenant"), NumBuckets: 4}
	events := []event.Event{
		newLogWithTenant("acme"),
		newLogWithTenant("globex"),
		newLogWithTenant("acme"),
	}
	arr, err := event.NewArray(events)
	assert.NoError(t, err)

	groups := p.GroupByPartition(arr)
	total := 0
	for _, g := range groups {
		total += len(g)
	}
	assert.Equal(t, 3, total)
}
