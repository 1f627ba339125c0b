package routerconfig

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDocument = `
app:
  name: test-router
admin:
  addr: ":9401"
sources:
  tail:
    type: filetail
    options:
      paths: ["/var/log/app.log"]
      seek: beginning
transforms:
  limit:
    type: throttle
    inputs: ["tail"]
    options:
      threshold: 100
      window_secs: 1s
sinks:
  out:
    type: kafka
    inputs: ["limit"]
    options:
      brokers: ["localhost:9092"]
      topic: events
`

func writeSample(t *testing.T) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "router.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sampleDocument), 0o644))
	return path
}

func TestLoadAppliesDefaultsAndValidates(t *testing.T) {
	doc, err := Load(writeSample(t))
	require.NoError(t, err)

	assert.Equal(t, "test-router", doc.App.Name)
	assert.Equal(t, "production", doc.App.Environment)
	assert.Equal(t, "info", doc.App.LogLevel)
	assert.Equal(t, ":9401", doc.Admin.Addr)
	assert.Equal(t, ":8001", doc.Metrics.Addr)
	assert.Equal(t, "test-router", doc.Tracing.ServiceName)
}

func TestLoadRejectsMissingSources(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "router.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sinks:\n  out:\n    type: kafka\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRejectsMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/router.yaml")
	assert.Error(t, err)
}
