package browser

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/playwright-community/playwright-go"

	"github.com/loool999/browser-test-2/internal/apperr"
)

// InstanceController is the live control surface for one browser instance:
// navigation, screenshotting, input, and teardown. It is the pool's only
// window into the underlying automation library.
type InstanceController interface {
	Navigate(ctx context.Context, url string) (string, error)
	Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error)
	SetViewport(ctx context.Context, width, height int) error
	Execute(ctx context.Context, action ActionType, params ActionParams) error
	Close() error
}

// Launcher starts new InstanceControllers and owns the process-wide
// automation runtime.
type Launcher interface {
	Launch(ctx context.Context, viewport Viewport) (InstanceController, error)
	Shutdown() error
}

// PlaywrightLauncher is the production Launcher, backed by
// github.com/playwright-community/playwright-go driving headless Chromium.
type PlaywrightLauncher struct {
	pw *playwright.Playwright
}

// NewPlaywrightLauncher installs and starts the Playwright driver. This is
// a slow, one-time operation and should be called once at startup from the
// composition root.
func NewPlaywrightLauncher() (*PlaywrightLauncher, error) {
	opts := &playwright.RunOptions{
		Verbose: false,
		Stdout:  io.Discard,
		Stderr:  io.Discard,
	}

	if err := playwright.Install(opts); err != nil {
		return nil, apperr.Wrap(apperr.Unknown, "browser.Install", err)
	}

	pw, err := playwright.Run(opts)
	if err != nil {
		return nil, apperr.Wrap(apperr.Unknown, "browser.Run", err)
	}

	return &PlaywrightLauncher{pw: pw}, nil
}

func (l *PlaywrightLauncher) Launch(ctx context.Context, viewport Viewport) (InstanceController, error) {
	headless := true
	browser, err := l.pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: &headless,
	})
	if err != nil {
		return nil, apperr.Wrap(apperr.Unknown, "browser.Launch", err)
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		Viewport: &playwright.Size{Width: viewport.Width, Height: viewport.Height},
	})
	if err != nil {
		browser.Close()
		return nil, apperr.Wrap(apperr.Unknown, "browser.NewContext", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		browser.Close()
		return nil, apperr.Wrap(apperr.Unknown, "browser.NewPage", err)
	}

	return &playwrightController{browser: browser, bctx: bctx, page: page}, nil
}

func (l *PlaywrightLauncher) Shutdown() error {
	if err := l.pw.Stop(); err != nil {
		return apperr.Wrap(apperr.Unknown, "browser.Shutdown", err)
	}
	return nil
}

type playwrightController struct {
	browser playwright.Browser
	bctx    playwright.BrowserContext
	page    playwright.Page
}

// normalizeURL prepends https:// when the input lacks a scheme, per
// spec.md §4.2's admission/navigation policy.
func normalizeURL(raw string) string {
	if strings.Contains(raw, "://") {
		return raw
	}
	return "https://" + raw
}

func (c *playwrightController) Navigate(ctx context.Context, url string) (string, error) {
	waitUntil := playwright.WaitUntilStateDomcontentloaded
	_, err := c.page.Goto(normalizeURL(url), playwright.PageGotoOptions{
		WaitUntil: waitUntil,
	})
	if err != nil {
		return "", apperr.Wrap(apperr.Navigation, "browser.Navigate", err)
	}
	return c.page.URL(), nil
}

func (c *playwrightController) Screenshot(ctx context.Context, opts ScreenshotOptions) ([]byte, error) {
	shotType := playwright.ScreenshotTypeJpeg
	if opts.Format == "png" {
		shotType = playwright.ScreenshotTypePng
	}

	screenshotOpts := playwright.PageScreenshotOptions{
		Type:     shotType,
		FullPage: &opts.FullPage,
	}
	if shotType == playwright.ScreenshotTypeJpeg && opts.Quality > 0 {
		quality := opts.Quality
		screenshotOpts.Quality = &quality
	}

	raw, err := c.page.Screenshot(screenshotOpts)
	if err != nil {
		return nil, apperr.Wrap(apperr.Capture, "browser.Screenshot", err)
	}
	return raw, nil
}

func (c *playwrightController) SetViewport(ctx context.Context, width, height int) error {
	if err := c.page.SetViewportSize(width, height); err != nil {
		return apperr.Wrap(apperr.Unknown, "browser.SetViewport", err)
	}
	return nil
}

func (c *playwrightController) Execute(ctx context.Context, action ActionType, params ActionParams) error {
	mouse := c.page.Mouse()
	keyboard := c.page.Keyboard()

	switch action {
	case ActionClick:
		return wrapAction(mouse.Click(params.X, params.Y))
	case ActionDoubleClick:
		return wrapAction(mouse.Dblclick(params.X, params.Y))
	case ActionMouseDown:
		opts := playwright.MouseDownOptions{}
		if btn := mouseButton(params.Button); btn != nil {
			opts.Button = btn
		}
		return wrapAction(mouse.Down(opts))
	case ActionMouseUp:
		opts := playwright.MouseUpOptions{}
		if btn := mouseButton(params.Button); btn != nil {
			opts.Button = btn
		}
		return wrapAction(mouse.Up(opts))
	case ActionMouseMove:
		return wrapAction(mouse.Move(params.X, params.Y))
	case ActionTypeText:
		return wrapAction(keyboard.Type(params.Text))
	case ActionKey:
		return wrapAction(keyboard.Press(params.Key))
	case ActionKeyDown:
		return wrapAction(keyboard.Down(params.Key))
	case ActionKeyUp:
		return wrapAction(keyboard.Up(params.Key))
	case ActionScroll:
		_, err := c.page.Evaluate("([x, y]) => window.scrollTo(x, y)", []float64{params.X, params.Y})
		return wrapAction(err)
	case ActionScrollBy:
		return wrapAction(mouse.Wheel(params.X, params.Y))
	case ActionHover:
		locator := c.page.GetByText(params.Text)
		return wrapAction(locator.Hover())
	case ActionReload:
		_, err := c.page.Reload()
		return wrapAction(err)
	case ActionGoBack:
		_, err := c.page.GoBack()
		return wrapAction(err)
	case ActionGoForward:
		_, err := c.page.GoForward()
		return wrapAction(err)
	default:
		return apperr.New(apperr.Validation, "browser.Execute", fmt.Sprintf("unknown action %q", action))
	}
}

func wrapAction(err error) error {
	if err == nil {
		return nil
	}
	return apperr.Wrap(apperr.Unknown, "browser.Execute", err)
}

func mouseButton(button string) *playwright.MouseButton {
	switch button {
	case "right":
		return playwright.MouseButtonRight
	case "middle":
		return playwright.MouseButtonMiddle
	case "left":
		return playwright.MouseButtonLeft
	default:
		return nil
	}
}

func (c *playwrightController) Close() error {
	var err error
	if e := c.page.Close(); e != nil {
		err = e
	}
	if e := c.bctx.Close(); e != nil {
		err = e
	}
	if e := c.browser.Close(); e != nil {
		err = e
	}
	if err != nil {
		return apperr.Wrap(apperr.Unknown, "browser.Close", err)
	}
	return nil
}
