package browser

import (
	"context"
	"log/slog"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/adlibrary-sync/internal/ratelimit"
)

// Browser owns the playwright driver and a single browser context. With a
// UserDataDir the context is persistent, so a manual login survives
// restarts.
type Browser struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	context playwright.BrowserContext
	opts    *Options
	logger  *slog.Logger
}

type Options struct {
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	UserDataDir    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Headless:       false,
		Timeout:        60 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		ViewportWidth:  1280,
		ViewportHeight: 900,
		AcceptLanguage: "en-US,en;q=0.9",
		TimezoneID:     "UTC",
		Locale:         "en-US",
		ExtraHeaders: map[string]string{
			"Accept-Language": "en-US,en;q=0.9",
			"DNT":             "1",
		},
	}
}

func launchArgs(opts *Options) []string {
	return []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--no-sandbox",
		"--disable-setuid-sandbox",
		"--user-agent=" + opts.UserAgent,
	}
}

func New(opts *Options, logger *slog.Logger) (*Browser, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	pw, err := playwright.Run()
	if err != nil {
		return nil, errors.Wrap(err, "failed to start playwright")
	}

	b := &Browser{
		pw:     pw,
		opts:   opts,
		logger: logger.With("component", "browser"),
	}

	if opts.UserDataDir != "" {
		err = b.launchPersistent()
	} else {
		err = b.launch()
	}
	if err != nil {
		_ = pw.Stop()
		return nil, err
	}

	if err := b.context.AddInitScript(playwright.Script{
		Content: playwright.String(`Object.defineProperty(navigator, 'webdriver', { get: () => undefined })`),
	}); err != nil {
		_ = b.Close()
		return nil, errors.Wrap(err, "failed to install init script")
	}

	return b, nil
}

func (b *Browser) launch() error {
	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: &b.opts.Headless,
		Args:     launchArgs(b.opts),
	}
	if b.opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{Server: b.opts.ProxyServer}
	}

	browser, err := b.pw.Chromium.Launch(launchOpts)
	if err != nil {
		return errors.Wrap(err, "failed to launch browser")
	}

	bctx, err := browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         &b.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &b.opts.Locale,
		TimezoneId:        &b.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: b.opts.ExtraHeaders,
	})
	if err != nil {
		_ = browser.Close()
		return errors.Wrap(err, "failed to create browser context")
	}

	b.browser = browser
	b.context = bctx
	return nil
}

func (b *Browser) launchPersistent() error {
	persistentOpts := playwright.BrowserTypeLaunchPersistentContextOptions{
		Headless:          &b.opts.Headless,
		Args:              launchArgs(b.opts),
		UserAgent:         &b.opts.UserAgent,
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            &b.opts.Locale,
		TimezoneId:        &b.opts.TimezoneID,
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: b.opts.ExtraHeaders,
	}
	if b.opts.ProxyServer != "" {
		persistentOpts.Proxy = &playwright.Proxy{Server: b.opts.ProxyServer}
	}

	bctx, err := b.pw.Chromium.LaunchPersistentContext(b.opts.UserDataDir, persistentOpts)
	if err != nil {
		return errors.Wrapf(err, "failed to launch persistent context in %s", b.opts.UserDataDir)
	}

	b.context = bctx
	return nil
}

func (b *Browser) NewPage() (playwright.Page, error) {
	page, err := b.context.NewPage()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create new page")
	}

	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	return page, nil
}

func (b *Browser) Context() playwright.BrowserContext {
	return b.context
}

func (b *Browser) Close() error {
	var errs error

	if b.context != nil {
		if err := b.context.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to close context"))
		}
	}

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to close browser"))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = errors.CombineErrors(errs, errors.Wrap(err, "failed to stop playwright"))
		}
	}

	return errs
}

// NavigateWithRetry backs off between attempts using the adaptive limiter.
func (b *Browser) NavigateWithRetry(ctx context.Context, page playwright.Page, url string, maxRetries int, backoff *ratelimit.AdaptiveRateLimiter) error {
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		if i > 0 {
			b.logger.Info("retrying navigation", "attempt", i+1, "url", url)
			if err := backoff.Pause(ctx); err != nil {
				return err
			}
		}

		_, err := page.Goto(url, playwright.PageGotoOptions{
			WaitUntil: playwright.WaitUntilStateDomcontentloaded,
			Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
		})
		if err == nil {
			backoff.RecordSuccess()
			return nil
		}

		lastErr = err
		backoff.RecordError()
		b.logger.Error("navigation failed", "error", err, "attempt", i+1)
	}

	return errors.Wrapf(lastErr, "failed after %d retries", maxRetries)
}

// HumanizeInteraction nudges the mouse and scrolls a little.
func (b *Browser) HumanizeInteraction(page playwright.Page) error {
	for i := 0; i < 3; i++ {
		x := float64(100 + i*200)
		y := float64(100 + i*150)
		if err := page.Mouse().Move(x, y); err != nil {
			return errors.Wrap(err, "failed to move mouse")
		}
		time.Sleep(time.Millisecond * time.Duration(200+i*100))
	}

	if _, err := page.Evaluate(`window.scrollBy(0, Math.random() * 300)`); err != nil {
		return errors.Wrap(err, "failed to scroll")
	}

	return nil
}
