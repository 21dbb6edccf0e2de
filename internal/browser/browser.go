// Package browser drives a Chromium instance for the UI suite.
//
// Steps depend on the Driver interface only; Chrome is the chromedp backed
// implementation and browsertest.Fake the scripted one used in unit tests.
package browser

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/chromedp"

	"todoe2e/internal/config"
	"todoe2e/pkg/logging"
)

// Driver is what UI steps need from a browser. Every call blocks at most
// until ctx is done.
type Driver interface {
	Navigate(ctx context.Context, url string) error
	WaitVisible(ctx context.Context, selector string) error
	// Type clears the input matched by selector and types text into it.
	Type(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	Location(ctx context.Context) (string, error)
	// LocalStorage returns the value stored under key and whether it exists.
	LocalStorage(ctx context.Context, key string) (string, bool, error)
	// Text returns the visible text of the first element matching selector.
	Text(ctx context.Context, selector string) (string, error)
	BodyText(ctx context.Context) (string, error)
	// Reset forgets everything the previous scenario left in the tab:
	// storage and cookies are cleared and the tab is parked on about:blank.
	Reset(ctx context.Context) error
	Close() error
}

// Chrome is a Driver backed by a local Chrome or Chromium via chromedp.
type Chrome struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

var _ Driver = (*Chrome)(nil)

// allocatorOptions maps BrowserConfig to Chrome command line flags.
func allocatorOptions(cfg config.BrowserConfig) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.Flag("headless", cfg.Headless),
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(cfg.WindowWidth, cfg.WindowHeight),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	return opts
}

// NewChrome launches a browser and opens one tab. The browser lives until
// Close, independent of ctx, which only bounds the launch.
func NewChrome(ctx context.Context, cfg config.BrowserConfig) (*Chrome, error) {
	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocatorOptions(cfg)...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...interface{}) {
		logging.Debug("Browser", format, args...)
	}))

	c := &Chrome{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}

	// An empty Run starts the browser.
	if err := c.run(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("launch browser: %w", err)
	}
	logging.Info("Browser", "chrome started (headless=%t, %dx%d)", cfg.Headless, cfg.WindowWidth, cfg.WindowHeight)
	return c, nil
}

// run executes actions on the tab, bounded by ctx's deadline and
// cancellation.
func (c *Chrome) run(ctx context.Context, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(c.ctx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(c.ctx)
	}
	defer cancel()

	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) WaitVisible(ctx context.Context, selector string) error {
	if err := c.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait for %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Type(ctx context.Context, selector, text string) error {
	err := c.run(ctx,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Click(ctx context.Context, selector string) error {
	if err := c.run(ctx, chromedp.Click(selector, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) Location(ctx context.Context) (string, error) {
	var url string
	if err := c.run(ctx, chromedp.Location(&url)); err != nil {
		return "", fmt.Errorf("read location: %w", err)
	}
	return url, nil
}

func (c *Chrome) LocalStorage(ctx context.Context, key string) (string, bool, error) {
	quoted, err := json.Marshal(key)
	if err != nil {
		return "", false, err
	}

	var value *string
	expr := fmt.Sprintf("window.localStorage.getItem(%s)", quoted)
	if err := c.run(ctx, chromedp.Evaluate(expr, &value)); err != nil {
		return "", false, fmt.Errorf("read localStorage %s: %w", key, err)
	}
	if value == nil {
		return "", false, nil
	}
	return *value, true, nil
}

func (c *Chrome) Text(ctx context.Context, selector string) (string, error) {
	var text string
	if err := c.run(ctx, chromedp.Text(selector, &text, chromedp.ByQuery, chromedp.NodeVisible)); err != nil {
		return "", fmt.Errorf("read text of %s: %w", selector, err)
	}
	return text, nil
}

func (c *Chrome) BodyText(ctx context.Context) (string, error) {
	var text string
	if err := c.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &text)); err != nil {
		return "", fmt.Errorf("read page text: %w", err)
	}
	return text, nil
}

// clearStateJS empties web storage and expires the cookies visible to the
// current page. Pages without an origin (about:blank) throw on storage
// access, which is fine: they have nothing stored.
const clearStateJS = `(() => {
	try { window.localStorage.clear(); } catch (e) {}
	try { window.sessionStorage.clear(); } catch (e) {}
	try {
		for (const c of document.cookie.split(";")) {
			const name = c.split("=")[0].trim();
			if (name) {
				document.cookie = name + "=; expires=Thu, 01 Jan 1970 00:00:00 GMT; path=/";
			}
		}
	} catch (e) {}
	return true;
})()`

func (c *Chrome) Reset(ctx context.Context) error {
	var cleared bool
	err := c.run(ctx,
		chromedp.Evaluate(clearStateJS, &cleared),
		chromedp.Navigate("about:blank"),
	)
	if err != nil {
		return fmt.Errorf("reset tab: %w", err)
	}
	return nil
}

// Close shuts the tab and the browser process down.
func (c *Chrome) Close() error {
	c.cancelTab()
	c.cancelAlloc()
	return nil
}
