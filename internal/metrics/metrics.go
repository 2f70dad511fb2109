// Package metrics defines the narrow Sink contract the core depends
// on, plus a Prometheus-backed implementation. The core only ever sees the
// interface — the metrics-and-events recorder is an external collaborator
// per spec.md §1, wired in behind its own boundary rather than imported
// directly into the browser pool or stream engine.
package metrics

// Sink is the set of observability hooks the browser pool and stream
// engine call. A no-op implementation (Noop) satisfies it for tests.
type Sink interface {
	BrowserCreated()
	BrowserClosed(reason string)
	BrowserEvicted()
	FrameEmitted(bytesSent int)
	FrameDropped()
	LatencyReported(ms float64)
}

// Noop discards every observation; useful in tests that don't care about
// metrics wiring.
type Noop struct{}

func (Noop) BrowserCreated()            {}
func (Noop) BrowserClosed(string)       {}
func (Noop) BrowserEvicted()            {}
func (Noop) FrameEmitted(int)           {}
func (Noop) FrameDropped()              {}
func (Noop) LatencyReported(float64)    {}
