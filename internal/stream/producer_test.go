package stream

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/loool999/browser-test-2/internal/clock"
)

func intPtr(v int) *int    { return &v }
func boolPtr(v bool) *bool { return &v }

func newTestProducer(t *testing.T, fc *clock.Fake, pool *fakePool, sink *fakeSink, init InitParams) *Producer {
	t.Helper()
	return New(Options{
		SocketID:         "sock-1",
		BrowserID:        "browser-1",
		Pool:             pool,
		Sink:             sink,
		Clock:            fc,
		ScreenshotFormat: "jpeg",
		Init:             init,
	})
}

func TestClampOnInit(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	pool := newFakePool()
	sink := &fakeSink{}

	p := newTestProducer(t, fc, pool, sink, InitParams{
		Fps:     intPtr(120),
		Quality: intPtr(10),
	})

	snap := p.Snapshot()
	if snap.TargetFps != MaxFps {
		t.Fatalf("expected fps clamped to %d, got %d", MaxFps, snap.TargetFps)
	}
	if snap.Quality != MinQuality {
		t.Fatalf("expected quality clamped to %d, got %d", MinQuality, snap.Quality)
	}
}

// Runs the producer loop for exactly one frame then terminates it, by
// sending a terminateCmd through the mailbox right after observing the
// first frame. clock.Fake's timer channel never auto-fires, so the loop
// blocks on the mailbox between frames — ideal for deterministic
// single-frame assertions.
func runOneFrameThenStop(t *testing.T, p *Producer) Frame {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go p.Run(ctx)

	deadline := time.After(2 * time.Second)
	sink := p.sink.(*fakeSink)
	for sink.count() == 0 {
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for first frame")
		case <-time.After(time.Millisecond):
		}
	}
	frame := sink.last()
	p.Terminate()
	<-p.Done()
	return frame
}

func TestFirstFrameCarriesClampedQuality(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	pool := newFakePool()
	sink := &fakeSink{}
	p := newTestProducer(t, fc, pool, sink, InitParams{Quality: intPtr(10)})

	frame := runOneFrameThenStop(t, p)
	if frame.Quality != MinQuality {
		t.Fatalf("expected first frame quality=%d, got %d", MinQuality, frame.Quality)
	}
	if !frame.IsKeyframe {
		t.Fatalf("expected the very first frame to be a keyframe")
	}
}

func TestForcedKeyframeOnSettingsChange(t *testing.T) {
	sink := &fakeSink{}
	p := &Producer{
		socketID: "sock-1",
		logger:   slog.Default(),
		state:    newState(InitParams{}, "jpeg"),
	}
	// Advance the keyframe counter as if 7 frames had already been produced.
	p.state.keyframeCounter = 7
	p.state.keyframeInterval = 10

	q := 50
	p.applySettingsUpdate(context.Background(), SettingsUpdate{Quality: &q})

	if p.state.keyframeCounter != 0 {
		t.Fatalf("expected settings change to reset keyframeCounter to 0, got %d", p.state.keyframeCounter)
	}
	isKeyframe := p.state.keyframeCounter%p.state.keyframeInterval == 0
	if !isKeyframe {
		t.Fatalf("expected next frame to be a keyframe after settings change")
	}
	if p.state.quality != 50 {
		t.Fatalf("expected quality updated to 50, got %d", p.state.quality)
	}
	_ = sink
}

func TestLatencyDrivenDownshift(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p := &Producer{clock: fc, state: newState(InitParams{}, "jpeg")}
	p.state.targetFps = DefaultFps
	p.state.quality = DefaultQuality

	for i := 0; i < 3; i++ {
		p.applyLatencyReport(250)
	}

	if p.state.quality != DefaultQuality-15 {
		t.Fatalf("expected quality to drop by 15 total, got %d (from %d)", p.state.quality, DefaultQuality)
	}
	if p.state.targetFps != DefaultFps-6 {
		t.Fatalf("expected fps to drop by 6 total, got %d (from %d)", p.state.targetFps, DefaultFps)
	}
}

func TestLatencyDownshiftFloors(t *testing.T) {
	p := &Producer{state: newState(InitParams{}, "jpeg")}
	p.state.quality = MinQuality + 2
	p.state.targetFps = MinFps + 1

	for i := 0; i < 5; i++ {
		p.applyLatencyReport(300)
	}

	if p.state.quality != MinQuality {
		t.Fatalf("expected quality floored at %d, got %d", MinQuality, p.state.quality)
	}
	if p.state.targetFps != MinFps {
		t.Fatalf("expected fps floored at %d, got %d", MinFps, p.state.targetFps)
	}
}

func TestAdaptiveDisabledIgnoresLatency(t *testing.T) {
	p := &Producer{state: newState(InitParams{Adaptive: boolPtr(false)}, "jpeg")}
	startQuality := p.state.quality
	p.applyLatencyReport(300)
	if p.state.quality != startQuality {
		t.Fatalf("expected quality unchanged when adaptive is off, got %d (from %d)", p.state.quality, startQuality)
	}
}

func TestPauseStopsEmissionAndResumeForcesKeyframe(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p := &Producer{clock: fc, state: newState(InitParams{}, "jpeg")}
	p.state.keyframeCounter = 4
	p.state.lastFrameAt = fc.Now().UnixMilli()

	p.applyPauseResume(PauseResume{Streaming: false})
	if p.state.active {
		t.Fatalf("expected active=false after pause")
	}

	fc.Advance(2 * time.Second) // more than 1s since lastFrameAt
	p.applyPauseResume(PauseResume{Streaming: true})
	if !p.state.active {
		t.Fatalf("expected active=true after resume")
	}
	if p.state.keyframeCounter != 0 {
		t.Fatalf("expected stale resume to force keyframeCounter=0, got %d", p.state.keyframeCounter)
	}
}

func TestResumeWithoutStalenessKeepsCounter(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p := &Producer{clock: fc, state: newState(InitParams{}, "jpeg")}
	p.state.keyframeCounter = 4
	p.state.lastFrameAt = fc.Now().UnixMilli()

	p.applyPauseResume(PauseResume{Streaming: false})
	fc.Advance(200 * time.Millisecond) // well under 1s
	p.applyPauseResume(PauseResume{Streaming: true})

	if p.state.keyframeCounter != 4 {
		t.Fatalf("expected non-stale resume to leave keyframeCounter untouched, got %d", p.state.keyframeCounter)
	}
}

func TestMonotoneTimestamps(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p := &Producer{clock: fc, state: newState(InitParams{}, "jpeg")}

	var last int64 = -1
	for i := 0; i < 5; i++ {
		ts := p.nextTimestamp()
		if ts <= last {
			t.Fatalf("expected strictly increasing timestamps, got %d after %d", ts, last)
		}
		last = ts
	}
}

func TestCaptureFailureTerminatesLoop(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	pool := &fakePool{failAfter: 1} // first call succeeds, every call after fails
	sink := &fakeSink{}
	p := newTestProducer(t, fc, pool, sink, InitParams{})

	ctx := context.Background()
	if ok := p.produceFrame(ctx); !ok {
		t.Fatalf("expected the first snapshot to succeed")
	}
	if ok := p.produceFrame(ctx); ok {
		t.Fatalf("expected produceFrame to report failure once the pool starts erroring")
	}
}

func TestRunTerminatesOnCaptureFailure(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	pool := &fakePool{failAfter: 0} // every Snapshot call fails, so Run exits on its first frame
	sink := &fakeSink{}
	p := newTestProducer(t, fc, pool, sink, InitParams{})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected Run to exit after a capture failure, it is still running")
	}
}
