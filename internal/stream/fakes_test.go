package stream

import (
	"context"
	"sync"

	"github.com/loool999/browser-test-2/internal/browser"
)

// fakePool is a minimal Snapshotter for producer tests: every call returns
// a fixed byte blob unless failAfter is reached, after which it errors.
type fakePool struct {
	mu        sync.Mutex
	calls     int
	failAfter int // -1 means never fail; N means the (N+1)th call onward fails
}

func newFakePool() *fakePool { return &fakePool{failAfter: -1} }

func (f *fakePool) Snapshot(ctx context.Context, id string, opts browser.ScreenshotOptions) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.failAfter >= 0 && f.calls > f.failAfter {
		return nil, errSnapshotFailed
	}
	return []byte("raw-screenshot-bytes"), nil
}

var errSnapshotFailed = &snapshotError{}

type snapshotError struct{}

func (e *snapshotError) Error() string { return "snapshot failed" }

// fakeSink records every frame it's given and never reports backpressure.
type fakeSink struct {
	mu     sync.Mutex
	frames []Frame
	full   bool
}

func (s *fakeSink) Emit(f Frame) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.full {
		return false
	}
	s.frames = append(s.frames, f)
	return true
}

func (s *fakeSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.frames)
}

func (s *fakeSink) last() Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames[len(s.frames)-1]
}
