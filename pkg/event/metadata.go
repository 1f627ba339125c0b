// Package event implements the Log/Metric/Trace event model that flows
// through the topology runtime: the Event sum type, EventArray batches,
// the Metadata side-channel, and finalization tokens used for
// at-least-once acknowledgement.
package event

import (
	"sync"

	"github.com/ssw/routeflow/pkg/value"
)

// Metadata is the side-channel attached to every event: data that rides
// alongside the event body but is never delivered to a sink by default
// (source name, ingest timestamp, per-event remap-assigned fields
// reachable only through the "%"-rooted path namespace).
type Metadata struct {
	mu             sync.RWMutex
	sourceType     string
	sourceID       string
	ingestedAt     value.Value
	fields         value.Value
	finalizers     []*Finalizer
	schemaDef      string
	droppedReason  string
	secretsByField map[string]string
}

// NewMetadata returns Metadata with an empty Object field bag.
func NewMetadata(sourceType, sourceID string) *Metadata {
	return &Metadata{
		sourceType: sourceType,
		sourceID:   sourceID,
		fields:     value.Object(nil),
	}
}

func (m *Metadata) SourceType() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sourceType
}

func (m *Metadata) SourceID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sourceID
}

// Get reads a metadata-rooted path (spec §3's side-channel access).
func (m *Metadata) Get(path value.Path) (*value.Value, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fields.Get(path)
}

// Insert writes a metadata-rooted path, materializing containers as
// needed.
func (m *Metadata) Insert(path value.Path, v value.Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fields.Insert(path, v)
}

// Remove deletes a metadata-rooted path.
func (m *Metadata) Remove(path value.Path, compact bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fields.Remove(path, compact)
}

// Clone deep-copies the field bag but shares no finalizer state: a cloned
// event starts its own delivery lifecycle.
func (m *Metadata) Clone() *Metadata {
	m.mu.RLock()
	defer m.mu.RUnlock()
	secrets := make(map[string]string, len(m.secretsByField))
	for k, v := range m.secretsByField {
		secrets[k] = v
	}
	return &Metadata{
		sourceType:     m.sourceType,
		sourceID:       m.sourceID,
		fields:         m.fields.Clone(),
		schemaDef:      m.schemaDef,
		secretsByField: secrets,
	}
}

// AddFinalizer attaches f so it is notified when this event's delivery
// status resolves.
func (m *Metadata) AddFinalizer(f *Finalizer) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finalizers = append(m.finalizers, f)
}

// Finalizers returns the attached finalizers.
func (m *Metadata) Finalizers() []*Finalizer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Finalizer, len(m.finalizers))
	copy(out, m.finalizers)
	return out
}
