package browser

import (
	"context"
	"log/slog"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/google/uuid"

	"github.com/loool999/browser-test-2/internal/apperr"
	"github.com/loool999/browser-test-2/internal/clock"
	"github.com/loool999/browser-test-2/internal/metrics"
)

// Pool owns a bounded set of Instances: create, look up, evict (LRU when
// full), reap (idle timeout), and destroy, plus the atomic input-action
// executor. Every mutating operation is serialized on a single mutex,
// matching spec.md §5's "single mutex guarding the map" option — the LRU
// cache used for recency tracking is not safe to mutate under a separate
// lock from the instances map, so both live under this one.
type Pool struct {
	mu          sync.Mutex
	instances   map[string]*Instance
	recency     *lru.Cache[string, struct{}]
	maxBrowsers int
	idleTimeout time.Duration
	launcher    Launcher
	clock       clock.Clock
	metrics     metrics.Sink
	logger      *slog.Logger
}

// New builds a Pool with the given capacity and idle timeout. maxBrowsers
// must be at least 1.
func New(launcher Launcher, maxBrowsers int, idleTimeout time.Duration, clk clock.Clock, sink metrics.Sink, logger *slog.Logger) (*Pool, error) {
	if maxBrowsers < 1 {
		maxBrowsers = 1
	}
	cache, err := lru.New[string, struct{}](maxBrowsers)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unknown, "browser.New", err)
	}
	if sink == nil {
		sink = metrics.Noop{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pool{
		instances:   make(map[string]*Instance),
		recency:     cache,
		maxBrowsers: maxBrowsers,
		idleTimeout: idleTimeout,
		launcher:    launcher,
		clock:       clk,
		metrics:     sink,
		logger:      logger,
	}, nil
}

// Create launches a new browser instance, evicting the least-recently-used
// instance first if the pool is already at capacity, per spec.md §4.2's
// admission policy.
func (p *Pool) Create(ctx context.Context, url string, width, height int) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.instances) >= p.maxBrowsers {
		if victimID, _, ok := p.recency.GetOldest(); ok {
			p.evictLocked(victimID)
		}
	}

	ctrl, err := p.launcher.Launch(ctx, Viewport{Width: width, Height: height})
	if err != nil {
		return "", err
	}

	finalURL, err := ctrl.Navigate(ctx, url)
	if err != nil {
		ctrl.Close()
		return "", err
	}

	id := uuid.New().String()
	now := p.clock.Now()
	inst := newInstance(id, Viewport{Width: width, Height: height}, finalURL, now, ctrl)

	p.instances[id] = inst
	p.recency.Add(id, struct{}{})
	p.metrics.BrowserCreated()
	p.logger.Info("browser created", slog.String("browser_id", id), slog.String("url", finalURL))
	return id, nil
}

// evictLocked closes and removes id. Callers must hold p.mu.
func (p *Pool) evictLocked(id string) {
	inst, ok := p.instances[id]
	if !ok {
		return
	}
	delete(p.instances, id)
	p.recency.Remove(id)

	if err := inst.ctrl.Close(); err != nil {
		p.logger.Warn("error closing evicted browser", slog.String("browser_id", id), slog.Any("error", err))
	}
	p.metrics.BrowserEvicted()
	p.metrics.BrowserClosed("lru_evicted")
	p.logger.Info("browser evicted", slog.String("browser_id", id))
}

// Close closes and removes the instance with the given id. Idempotent:
// closing an already-closed or unknown id returns false, not an error, per
// spec.md §4.2's "removing the record from the pool is idempotent."
func (p *Pool) Close(id string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instances[id]
	if !ok {
		return false
	}
	delete(p.instances, id)
	p.recency.Remove(id)

	if err := inst.ctrl.Close(); err != nil {
		p.logger.Warn("error closing browser", slog.String("browser_id", id), slog.Any("error", err))
	}
	p.metrics.BrowserClosed("explicit")
	p.logger.Info("browser closed", slog.String("browser_id", id))
	return true
}

func (p *Pool) get(id string) (*Instance, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	inst, ok := p.instances[id]
	if ok {
		p.recency.Get(id) // bump recency on lookup; callers touch lastActivityAt only after the operation succeeds
	}
	return inst, ok
}

// Snapshot takes a screenshot of the given instance's current page.
func (p *Pool) Snapshot(ctx context.Context, id string, opts ScreenshotOptions) ([]byte, error) {
	inst, ok := p.get(id)
	if !ok {
		return nil, apperr.New(apperr.NotFound, "browser.Snapshot", "unknown browser id")
	}

	raw, err := inst.ctrl.Screenshot(ctx, opts)
	if err != nil {
		return nil, err
	}
	inst.touch(p.clock.Now())
	return raw, nil
}

// Navigate sends the instance to url, prepending https:// if the input
// lacks a scheme (handled by the Controller implementation).
func (p *Pool) Navigate(ctx context.Context, id string, url string) error {
	inst, ok := p.get(id)
	if !ok {
		return apperr.New(apperr.NotFound, "browser.Navigate", "unknown browser id")
	}

	finalURL, err := inst.ctrl.Navigate(ctx, url)
	if err != nil {
		return err
	}
	inst.setCurrentURL(finalURL)
	inst.touch(p.clock.Now())
	return nil
}

// Execute runs one action from the closed verb set against the instance.
func (p *Pool) Execute(ctx context.Context, id string, action ActionType, params ActionParams) error {
	inst, ok := p.get(id)
	if !ok {
		return apperr.New(apperr.NotFound, "browser.Execute", "unknown browser id")
	}
	if !knownActions[action] {
		return apperr.New(apperr.Validation, "browser.Execute", "unknown action")
	}

	if err := inst.ctrl.Execute(ctx, action, params); err != nil {
		return err
	}
	inst.touch(p.clock.Now())
	return nil
}

// Resize changes the instance's viewport.
func (p *Pool) Resize(ctx context.Context, id string, width, height int) error {
	inst, ok := p.get(id)
	if !ok {
		return apperr.New(apperr.NotFound, "browser.Resize", "unknown browser id")
	}

	if err := inst.ctrl.SetViewport(ctx, width, height); err != nil {
		return err
	}
	inst.setViewport(Viewport{Width: width, Height: height})
	inst.touch(p.clock.Now())
	return nil
}

// CurrentURL returns the instance's last-navigated URL.
func (p *Pool) CurrentURL(id string) (string, error) {
	inst, ok := p.get(id)
	if !ok {
		return "", apperr.New(apperr.NotFound, "browser.CurrentURL", "unknown browser id")
	}
	return inst.CurrentURL(), nil
}

// List returns every live instance id. Order is unspecified.
func (p *Pool) List() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]string, 0, len(p.instances))
	for id := range p.instances {
		ids = append(ids, id)
	}
	return ids
}

// Count returns the number of live instances.
func (p *Pool) Count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.instances)
}

// ReapIdle closes every instance whose last activity predates the idle
// timeout. Safe to call concurrently with any other Pool method.
func (p *Pool) ReapIdle() int {
	now := p.clock.Now()

	p.mu.Lock()
	var expired []string
	for id, inst := range p.instances {
		if now.Sub(inst.LastActivityAt()) > p.idleTimeout {
			expired = append(expired, id)
		}
	}
	for _, id := range expired {
		inst, ok := p.instances[id]
		if !ok {
			continue // already removed by a concurrent Close/evict
		}
		delete(p.instances, id)
		p.recency.Remove(id)
		if err := inst.ctrl.Close(); err != nil {
			p.logger.Warn("error closing idle browser", slog.String("browser_id", id), slog.Any("error", err))
		}
		p.metrics.BrowserClosed("idle_timeout")
	}
	p.mu.Unlock()

	if len(expired) > 0 {
		p.logger.Info("idle reaper closed browsers", slog.Int("count", len(expired)))
	}
	return len(expired)
}

// Shutdown closes every live instance and stops the launcher.
func (p *Pool) Shutdown() error {
	p.mu.Lock()
	for id, inst := range p.instances {
		if err := inst.ctrl.Close(); err != nil {
			p.logger.Warn("error closing browser during shutdown", slog.String("browser_id", id), slog.Any("error", err))
		}
	}
	p.instances = make(map[string]*Instance)
	p.recency.Purge()
	p.mu.Unlock()

	return p.launcher.Shutdown()
}
