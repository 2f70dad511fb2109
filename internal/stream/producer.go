package stream

import (
	"context"
	"log/slog"
	"time"

	"github.com/loool999/browser-test-2/internal/browser"
	"github.com/loool999/browser-test-2/internal/clock"
	"github.com/loool999/browser-test-2/internal/codec"
	"github.com/loool999/browser-test-2/internal/metrics"
)

// Snapshotter is the Stream Engine's only window into the Browser Pool: it
// needs nothing but the ability to capture the bound instance's viewport.
type Snapshotter interface {
	Snapshot(ctx context.Context, id string, opts browser.ScreenshotOptions) ([]byte, error)
}

// FrameSink is the outbound side of the socket: Emit reports whether the
// frame was accepted. A false return means the channel was full and the
// frame was dropped, per spec.md §5's "drop if full" backpressure policy —
// the producer never blocks waiting for a slow client.
type FrameSink interface {
	Emit(Frame) bool
}

// command is the sealed set of messages a Producer accepts on its mailbox.
type command interface{}

// PauseResume is a `stream-control` message.
type PauseResume struct {
	Streaming bool
}

// LatencyReport is a `latency-report` message or a derived frame-age ack.
type LatencyReport struct {
	LatencyMs float64
}

// terminateCmd asks the loop to exit at its next suspension point.
type terminateCmd struct{}

// Producer is the per-client producer loop described in spec.md §4.3: it
// owns one StreamState, reads control messages off a mailbox, and paces
// frame capture against the Browser Pool via Snapshotter. One goroutine per
// socket, isolated from every other client's Producer.
type Producer struct {
	socketID  string
	browserID string

	pool    Snapshotter
	sink    FrameSink
	clock   clock.Clock
	logger  *slog.Logger
	metrics metrics.Sink
	onResize func(ctx context.Context, width, height int) error

	mailbox chan command
	done    chan struct{}

	state state
}

// Options configures a new Producer.
type Options struct {
	SocketID         string
	BrowserID        string
	Pool             Snapshotter
	Sink             FrameSink
	Clock            clock.Clock
	Logger           *slog.Logger
	Metrics          metrics.Sink
	ScreenshotFormat string
	Init             InitParams
	OnResize         func(ctx context.Context, width, height int) error
}

// New builds a Producer in the Running state (Idle -> Running happens
// implicitly on construction, mirroring spec.md §4.3's state machine: the
// state machine's Idle state has no observable behaviour distinct from "not
// yet constructed").
func New(opts Options) *Producer {
	if opts.Metrics == nil {
		opts.Metrics = metrics.Noop{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Producer{
		socketID:  opts.SocketID,
		browserID: opts.BrowserID,
		pool:      opts.Pool,
		sink:      opts.Sink,
		clock:     opts.Clock,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		onResize:  opts.OnResize,
		mailbox:   make(chan command, 16),
		done:      make(chan struct{}),
		state:     newState(opts.Init, opts.ScreenshotFormat),
	}
}

// Snapshot returns a read-only view of the current StreamState. Safe to
// call from any goroutine; it races benignly with the owning loop on plain
// field reads the same way a single-writer/many-reader counter would, so
// the returned fields are not guaranteed to come from the same loop turn.
func (p *Producer) Snapshot() Snapshot {
	return p.state.snapshot()
}

// UpdateSettings enqueues a `stream-settings` change. Returns false if the
// producer has already terminated and the mailbox is not being drained.
func (p *Producer) UpdateSettings(u SettingsUpdate) bool {
	return p.send(u)
}

// SetStreaming enqueues a `stream-control` change.
func (p *Producer) SetStreaming(streaming bool) bool {
	return p.send(PauseResume{Streaming: streaming})
}

// ReportLatency enqueues a `latency-report` sample.
func (p *Producer) ReportLatency(latencyMs float64) bool {
	return p.send(LatencyReport{LatencyMs: latencyMs})
}

// Terminate asks the loop to stop at its next suspension point. Safe to
// call multiple times.
func (p *Producer) Terminate() {
	p.send(terminateCmd{})
}

// Done returns a channel closed once the producer loop has exited.
func (p *Producer) Done() <-chan struct{} {
	return p.done
}

func (p *Producer) send(cmd command) bool {
	select {
	case p.mailbox <- cmd:
		return true
	case <-p.done:
		return false
	}
}

// Run drives the producer loop until ctx is cancelled, the mailbox
// delivers a terminateCmd, or a capture error occurs. It must be called
// from exactly one goroutine and only once.
func (p *Producer) Run(ctx context.Context) {
	defer close(p.done)

	for {
		if p.state.terminated {
			return
		}
		if !p.state.active {
			select {
			case <-ctx.Done():
				return
			case cmd := <-p.mailbox:
				p.handle(ctx, cmd)
			}
			continue
		}

		frameStart := p.clock.Now()
		ok := p.produceFrame(ctx)
		if !ok {
			return
		}
		elapsed := p.clock.Now().Sub(frameStart)
		p.adaptFromElapsed(elapsed)

		sleepFor := paceSleep(p.state.targetFps, elapsed)
		timer := p.clock.NewTimer(sleepFor)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case cmd := <-p.mailbox:
			timer.Stop()
			p.handle(ctx, cmd)
		case <-timer.C():
		}
	}
}

// paceSleep implements spec.md §4.3 step (vii): sleep for
// max(1ms, (1000/targetFps) - processingTime).
func paceSleep(targetFps int, processing time.Duration) time.Duration {
	if targetFps <= 0 {
		targetFps = DefaultFps
	}
	budget := time.Duration(1000/float64(targetFps)*float64(time.Millisecond))
	remaining := budget - processing
	if remaining < time.Millisecond {
		return time.Millisecond
	}
	return remaining
}

func (p *Producer) handle(ctx context.Context, cmd command) {
	switch c := cmd.(type) {
	case SettingsUpdate:
		p.applySettingsUpdate(ctx, c)
	case PauseResume:
		p.applyPauseResume(c)
	case LatencyReport:
		p.applyLatencyReport(c.LatencyMs)
	case terminateCmd:
		p.state.terminated = true
	}
}

func (p *Producer) applySettingsUpdate(ctx context.Context, u SettingsUpdate) {
	changed := false
	if u.Fps != nil {
		fps := clampInt(*u.Fps, MinFps, MaxFps)
		if fps != p.state.targetFps {
			p.state.targetFps = fps
			changed = true
		}
	}
	if u.Quality != nil {
		q := clampInt(*u.Quality, MinQuality, MaxQuality)
		if q != p.state.quality {
			p.state.quality = q
			changed = true
		}
	}
	if u.Adaptive != nil && *u.Adaptive != p.state.adaptive {
		p.state.adaptive = *u.Adaptive
		changed = true
	}
	if u.ConnectionQuality != "" && u.ConnectionQuality != p.state.connectionClass {
		p.state.connectionClass = u.ConnectionQuality
		p.state.keyframeInterval = maxInt(1, PresetFor(u.ConnectionQuality, p.state.deviceClass).KeyframeInterval)
		changed = true
	}
	if (u.Width != nil || u.Height != nil) && p.onResize != nil {
		w, h := valueOr(u.Width, 0), valueOr(u.Height, 0)
		if err := p.onResize(ctx, w, h); err != nil {
			p.logger.Warn("stream settings resize failed", slog.String("socket_id", p.socketID), slog.Any("error", err))
		} else {
			changed = true
		}
	}

	if changed {
		p.logger.Info("stream settings updated",
			slog.String("socket_id", p.socketID),
			slog.Int("fps", p.state.targetFps),
			slog.Int("quality", p.state.quality))
		p.state.keyframeCounter = 0
	}
}

func valueOr(v *int, def int) int {
	if v == nil {
		return def
	}
	return *v
}

// applyPauseResume implements spec.md §4.3's pause/resume and state
// machine: Running<->Paused, with a forced-keyframe restart if more than a
// second has elapsed since the last frame.
func (p *Producer) applyPauseResume(c PauseResume) {
	if c.Streaming == p.state.active {
		return
	}
	p.state.active = c.Streaming
	if c.Streaming {
		nowMs := p.clock.Now().UnixMilli()
		if nowMs-p.state.lastFrameAt > 1000 {
			p.state.keyframeCounter = 0
		}
	}
}

// applyLatencyReport implements spec.md §4.3's latency-driven adaptation,
// independent of the per-frame observedFps adaptation.
func (p *Producer) applyLatencyReport(latencyMs float64) {
	if !p.state.adaptive {
		return
	}
	switch {
	case latencyMs > 200:
		p.state.quality = maxInt(MinQuality, p.state.quality-5)
		p.state.targetFps = maxInt(MinFps, p.state.targetFps-2)
	case latencyMs > 100:
		p.state.quality = maxInt(MinQuality, p.state.quality-2)
	default:
		p.state.quality = minInt(MaxQuality, p.state.quality+1)
		if p.state.targetFps < DefaultFps {
			p.state.targetFps = minInt(MaxFps, p.state.targetFps+1)
		}
	}
}

// adaptFromElapsed implements spec.md §4.3's per-frame observedFps
// adaptation, independent of latency reports.
func (p *Producer) adaptFromElapsed(elapsed time.Duration) {
	if !p.state.adaptive {
		return
	}
	ms := elapsed.Milliseconds()
	if ms <= 0 {
		return
	}
	observedFps := 1000.0 / float64(ms)
	target := float64(p.state.targetFps)

	if observedFps < 0.9*target && p.state.quality > MinQuality {
		p.state.quality = maxInt(MinQuality, p.state.quality-5)
	} else if observedFps > 1.1*target && p.state.quality < MaxQuality {
		p.state.quality = minInt(MaxQuality, p.state.quality+2)
	}
}

// produceFrame captures, encodes, and emits one frame. Returns false on a
// capture failure, which terminates the loop per spec.md §4.3's failure
// semantics ("correctness over silent degradation").
func (p *Producer) produceFrame(ctx context.Context) bool {
	isKeyframe := p.state.keyframeCounter%p.state.keyframeInterval == 0

	raw, err := p.pool.Snapshot(ctx, p.browserID, browser.ScreenshotOptions{
		Format:  p.state.screenshotFormat,
		Quality: p.state.quality,
	})
	if err != nil {
		p.logger.Error("snapshot failed, terminating producer loop",
			slog.String("socket_id", p.socketID),
			slog.String("browser_id", p.browserID),
			slog.Any("error", err))
		return false
	}

	payload := codec.Encode(raw)
	frame := Frame{
		Image:      payload.Data,
		IsKeyframe: isKeyframe,
		Quality:    p.state.quality,
		Timestamp:  p.nextTimestamp(),
	}

	if p.sink.Emit(frame) {
		p.metrics.FrameEmitted(payload.ByteLen)
	} else {
		p.metrics.FrameDropped()
	}

	p.state.keyframeCounter++
	p.state.frameCount++
	p.state.bytesSent += int64(payload.ByteLen)
	p.state.lastFrameAt = p.clock.Now().UnixMilli()
	return true
}

// nextTimestamp returns a strictly increasing millisecond timestamp even when the underlying clock does not advance between calls
// (true of clock.Fake in tests), per spec.md §5's ordering guarantee.
func (p *Producer) nextTimestamp() int64 {
	now := p.clock.Now().UnixMilli()
	if now <= p.state.lastTimestampMs {
		now = p.state.lastTimestampMs + 1
	}
	p.state.lastTimestampMs = now
	return now
}
