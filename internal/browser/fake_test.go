package browser

import (
	"context"
	"sync"
)

// fakeLauncher and fakeController let pool_test.go exercise admission,
// eviction, and reaping without a real browser process.
type fakeLauncher struct {
	mu     sync.Mutex
	closed int
}

func (f *fakeLauncher) Launch(ctx context.Context, viewport Viewport) (InstanceController, error) {
	return &fakeController{url: "about:blank", launcher: f}, nil
}

func (f *fakeLauncher) Shutdown() error { return nil }

type fakeController struct {
	mu       sync.Mutex
	url      string
	closed   bool
	launcher *fakeLauncher
	actions  []ActionType
}

func (c *fakeController) Navigate(ctx context.Context, url string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.url = url
	return url, nil
}

func (c *fakeController) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	return []byte("fake-screenshot-bytes"), nil
}

func (c *fakeController) SetViewport(ctx context.Context, width, height int) error {
	return nil
}

func (c *fakeController) Execute(ctx context.Context, action ActionType, params ActionParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions = append(c.actions, action)
	return nil
}

func (c *fakeController) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.launcher.mu.Lock()
	c.launcher.closed++
	c.launcher.mu.Unlock()
	return nil
}
