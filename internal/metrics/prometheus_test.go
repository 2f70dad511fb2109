package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusSinkTracksActiveBrowsers(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.BrowserCreated()
	p.BrowserCreated()
	p.BrowserClosed("idle_timeout")

	got := testutil.ToFloat64(p.activeBrowsers)
	if got != 1 {
		t.Fatalf("expected active_browsers=1, got %v", got)
	}
}

func TestPrometheusSinkTracksFrames(t *testing.T) {
	reg := prometheus.NewRegistry()
	p := NewPrometheus(reg)

	p.FrameEmitted(1024)
	p.FrameEmitted(2048)
	p.FrameDropped()

	if got := testutil.ToFloat64(p.framesEmitted); got != 2 {
		t.Fatalf("expected frames_emitted=2, got %v", got)
	}
	if got := testutil.ToFloat64(p.bytesSent); got != 3072 {
		t.Fatalf("expected bytes_sent=3072, got %v", got)
	}
	if got := testutil.ToFloat64(p.framesDropped); got != 1 {
		t.Fatalf("expected frames_dropped=1, got %v", got)
	}
}
