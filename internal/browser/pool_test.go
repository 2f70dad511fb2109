package browser

import (
	"context"
	"testing"
	"time"

	"github.com/loool999/browser-test-2/internal/apperr"
	"github.com/loool999/browser-test-2/internal/clock"
	"github.com/loool999/browser-test-2/internal/metrics"
)

func isNotFound(err error) bool {
	return apperr.Is(err, apperr.NotFound)
}

func newTestPool(t *testing.T, maxBrowsers int, idleTimeout time.Duration, fc *clock.Fake) (*Pool, *fakeLauncher) {
	t.Helper()
	launcher := &fakeLauncher{}
	p, err := New(launcher, maxBrowsers, idleTimeout, fc, metrics.Noop{}, nil)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return p, launcher
}

// Scenario 1 from spec.md §8: MaxBrowsers=2. Create A (t=0), B (t=1).
// Touch A (t=2). Create C (t=3). Expected: B is closed; live set is {A,C}.
func TestLRUEvictionScenario(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p, _ := newTestPool(t, 2, time.Hour, fc)
	ctx := context.Background()

	idA, err := p.Create(ctx, "a.example", 1280, 720)
	if err != nil {
		t.Fatalf("create A failed: %v", err)
	}

	fc.Advance(time.Second)
	idB, err := p.Create(ctx, "b.example", 1280, 720)
	if err != nil {
		t.Fatalf("create B failed: %v", err)
	}

	fc.Advance(time.Second) // t=2, touch A
	if err := p.Navigate(ctx, idA, "a2.example"); err != nil {
		t.Fatalf("touch A failed: %v", err)
	}

	fc.Advance(time.Second) // t=3, create C
	idC, err := p.Create(ctx, "c.example", 1280, 720)
	if err != nil {
		t.Fatalf("create C failed: %v", err)
	}

	if p.Count() != 2 {
		t.Fatalf("expected count=2 after eviction, got %d", p.Count())
	}

	ids := p.List()
	live := map[string]bool{}
	for _, id := range ids {
		live[id] = true
	}
	if !live[idA] || !live[idC] {
		t.Fatalf("expected live set {A,C}, got %v", ids)
	}
	if live[idB] {
		t.Fatalf("expected B to be evicted, but it is still live")
	}
}

func TestCapacityInvariant(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p, _ := newTestPool(t, 3, time.Hour, fc)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		if _, err := p.Create(ctx, "example.com", 800, 600); err != nil {
			t.Fatalf("create %d failed: %v", i, err)
		}
		if p.Count() > 3 {
			t.Fatalf("pool exceeded capacity: count=%d", p.Count())
		}
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p, _ := newTestPool(t, 2, time.Hour, fc)
	ctx := context.Background()

	id, err := p.Create(ctx, "example.com", 800, 600)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	if !p.Close(id) {
		t.Fatalf("expected first Close to report true")
	}
	if p.Close(id) {
		t.Fatalf("expected second Close on the same id to report false")
	}
}

func TestIdleReaping(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p, launcher := newTestPool(t, 5, 10*time.Minute, fc)
	ctx := context.Background()

	id, err := p.Create(ctx, "example.com", 800, 600)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	fc.Advance(5 * time.Minute)
	if n := p.ReapIdle(); n != 0 {
		t.Fatalf("expected no reaping before idle timeout, reaped %d", n)
	}

	fc.Advance(6 * time.Minute) // total 11 minutes since creation
	if n := p.ReapIdle(); n != 1 {
		t.Fatalf("expected 1 instance reaped after idle timeout, got %d", n)
	}
	if p.Count() != 0 {
		t.Fatalf("expected pool empty after reaping, got count=%d", p.Count())
	}

	launcher.mu.Lock()
	closed := launcher.closed
	launcher.mu.Unlock()
	if closed != 1 {
		t.Fatalf("expected exactly one browser closed by the reaper, got %d", closed)
	}

	_ = id
}

func TestNotFoundOnUnknownID(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p, _ := newTestPool(t, 2, time.Hour, fc)
	ctx := context.Background()

	if _, err := p.Snapshot(ctx, "does-not-exist", ScreenshotOptions{}); !isNotFound(err) {
		t.Fatalf("expected NotFound error, got %v", err)
	}
	if err := p.Execute(ctx, "does-not-exist", ActionClick, ActionParams{}); !isNotFound(err) {
		t.Fatalf("expected NotFound error, got %v", err)
	}
}

func TestUnknownActionRejected(t *testing.T) {
	fc := clock.NewFake(time.Unix(0, 0))
	p, _ := newTestPool(t, 2, time.Hour, fc)
	ctx := context.Background()

	id, err := p.Create(ctx, "example.com", 800, 600)
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	err = p.Execute(ctx, id, ActionType("does-not-exist"), ActionParams{})
	if err == nil {
		t.Fatalf("expected error for unknown action")
	}
}
