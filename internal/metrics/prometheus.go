package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus is the production Sink, registering its collectors against a
// caller-supplied registry (so tests and the composition root can each use
// their own registry instead of fighting over the global default one).
type Prometheus struct {
	activeBrowsers prometheus.Gauge
	browsersClosed *prometheus.CounterVec
	browsersEvicted prometheus.Counter
	framesEmitted  prometheus.Counter
	framesDropped  prometheus.Counter
	bytesSent      prometheus.Counter
	latencyMs      prometheus.Histogram
}

// NewPrometheus creates and registers the collectors against reg.
func NewPrometheus(reg prometheus.Registerer) *Prometheus {
	p := &Prometheus{
		activeBrowsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "streamserver_active_browsers",
			Help: "Number of browser instances currently held by the pool.",
		}),
		browsersClosed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "streamserver_browsers_closed_total",
			Help: "Browser instances closed, labeled by reason.",
		}, []string{"reason"}),
		browsersEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamserver_browsers_evicted_total",
			Help: "Browser instances closed specifically by LRU eviction on admission.",
		}),
		framesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamserver_frames_emitted_total",
			Help: "Frames successfully written to a socket's outbound channel.",
		}),
		framesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamserver_frames_dropped_total",
			Help: "Frames dropped because the outbound channel was full.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "streamserver_bytes_sent_total",
			Help: "Compressed frame bytes sent across all clients.",
		}),
		latencyMs: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "streamserver_reported_latency_ms",
			Help:    "Client-reported latency, a drift-biased hint, not an absolute metric.",
			Buckets: []float64{10, 25, 50, 100, 150, 200, 300, 500},
		}),
	}

	reg.MustRegister(
		p.activeBrowsers, p.browsersClosed, p.browsersEvicted,
		p.framesEmitted, p.framesDropped, p.bytesSent, p.latencyMs,
	)
	return p
}

func (p *Prometheus) BrowserCreated()      { p.activeBrowsers.Inc() }
func (p *Prometheus) BrowserEvicted()      { p.browsersEvicted.Inc() }

func (p *Prometheus) BrowserClosed(reason string) {
	p.activeBrowsers.Dec()
	p.browsersClosed.WithLabelValues(reason).Inc()
}

func (p *Prometheus) FrameEmitted(bytesSent int) {
	p.framesEmitted.Inc()
	p.bytesSent.Add(float64(bytesSent))
}

func (p *Prometheus) FrameDropped() { p.framesDropped.Inc() }

func (p *Prometheus) LatencyReported(ms float64) { p.latencyMs.Observe(ms) }
