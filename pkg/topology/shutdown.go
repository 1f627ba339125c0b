package topology

import (
	"time"
)

// Stop broadcasts shutdown to every node and waits up to the configured
// deadline (see SetShutdownDeadline) for every node goroutine to finish
// its drain. Matches spec.md §4.6's "Shutdown" rule: sources stop
// accepting new data, fan-out drains, transforms and sinks finish
// in-flight work until the deadline, then abort. Returns true if every
// node finished within the deadline, false if Stop gave up waiting.
func (t *Topology) Stop() bool {
	if t.cancel == nil {
		return true
	}
	t.cancel()

	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		t.logger.Info("topology shutdown completed within deadline")
		return true
	case <-time.After(t.shutdownDeadline):
		t.logger.Warn("topology shutdown deadline exceeded, abandoning in-flight work")
		return false
	}
}
