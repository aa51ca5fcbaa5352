package browser

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/adlibrary-sync/internal/extract"
	"github.com/maltedev/adlibrary-sync/internal/gate"
	"github.com/maltedev/adlibrary-sync/internal/models"
	"github.com/maltedev/adlibrary-sync/internal/queue"
	"github.com/maltedev/adlibrary-sync/internal/ratelimit"
)

const (
	DefaultHomeURL         = "https://www.facebook.com/"
	DefaultUISelector      = "div.x78zum5"
	DefaultConsentSelector = `div[role="dialog"] div[role="button"]`
)

var defaultBlockedResources = []string{"image", "media", "font"}

// scrollScript scrolls in small steps until the document stops growing and
// reports whether it grew at all.
const scrollScript = `async ({ step, pause }) => {
	const sleep = (ms) => new Promise((r) => setTimeout(r, ms));
	const start = document.body.scrollHeight;
	for (;;) {
		const before = document.body.scrollHeight;
		window.scrollBy(0, step);
		await sleep(pause);
		if (document.body.scrollHeight <= before) break;
	}
	return document.body.scrollHeight > start;
}`

type SessionOptions struct {
	EndpointPath     string
	HomeURL          string
	UISelector       string
	ConsentSelector  string
	EndSelector      string
	ScrollStep       int
	ScrollPause      time.Duration
	SettleMin        time.Duration
	SettleMax        time.Duration
	NavigateRetries  int
	BlockedResources []string
}

func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		EndpointPath:     "/graphql",
		HomeURL:          DefaultHomeURL,
		UISelector:       DefaultUISelector,
		ConsentSelector:  DefaultConsentSelector,
		ScrollStep:       250,
		ScrollPause:      150 * time.Millisecond,
		SettleMin:        2500 * time.Millisecond,
		SettleMax:        3500 * time.Millisecond,
		NavigateRetries:  3,
		BlockedResources: defaultBlockedResources,
	}
}

func (o SessionOptions) withDefaults() SessionOptions {
	d := DefaultSessionOptions()
	if o.EndpointPath == "" {
		o.EndpointPath = d.EndpointPath
	}
	if o.HomeURL == "" {
		o.HomeURL = d.HomeURL
	}
	if o.UISelector == "" {
		o.UISelector = d.UISelector
	}
	if o.ConsentSelector == "" {
		o.ConsentSelector = d.ConsentSelector
	}
	if o.ScrollStep <= 0 {
		o.ScrollStep = d.ScrollStep
	}
	if o.ScrollPause <= 0 {
		o.ScrollPause = d.ScrollPause
	}
	if o.SettleMin <= 0 {
		o.SettleMin = d.SettleMin
	}
	if o.SettleMax <= 0 {
		o.SettleMax = d.SettleMax
	}
	if o.SettleMax < o.SettleMin {
		o.SettleMax = o.SettleMin
	}
	if o.NavigateRetries <= 0 {
		o.NavigateRetries = d.NavigateRetries
	}
	if o.BlockedResources == nil {
		o.BlockedResources = d.BlockedResources
	}
	return o
}

// pending is either an intercepted response whose body is still to be read
// or a payload that is ready to deliver.
type pending struct {
	response playwright.Response
	payload  *models.Payload
}

// Session drives one listing page. It implements ingest.Automation.
type Session struct {
	browser  *Browser
	page     playwright.Page
	opts     SessionOptions
	inbox    *queue.FIFO[pending]
	payloads chan models.Payload
	settle   *ratelimit.SimpleRateLimiter
	backoff  *ratelimit.AdaptiveRateLimiter
	done     chan struct{}
	wg       sync.WaitGroup
	once     sync.Once
	logger   *slog.Logger
}

func NewSession(b *Browser, opts SessionOptions, logger *slog.Logger) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	page, err := b.NewPage()
	if err != nil {
		return nil, err
	}

	s := &Session{
		browser:  b,
		page:     page,
		opts:     opts,
		inbox:    queue.NewFIFO[pending](),
		payloads: make(chan models.Payload),
		settle:   ratelimit.NewSimpleRateLimiter(opts.SettleMin, opts.SettleMax),
		backoff:  ratelimit.NewAdaptiveRateLimiter(time.Second, 2*time.Second),
		done:     make(chan struct{}),
		logger:   logger.With("component", "session"),
	}

	if err := page.Route("**/*", s.route); err != nil {
		_ = page.Close()
		return nil, errors.Wrap(err, "failed to install request filter")
	}
	page.OnResponse(s.intercept)

	s.wg.Add(1)
	go s.pump()

	return s, nil
}

func (s *Session) route(route playwright.Route) {
	if isBlockedResource(route.Request().ResourceType(), s.opts.BlockedResources) {
		if err := route.Abort(); err != nil {
			s.logger.Debug("failed to abort request", "error", err)
		}
		return
	}
	if err := route.Continue(); err != nil {
		s.logger.Debug("failed to continue request", "error", err)
	}
}

// intercept runs on the driver's event goroutine, so it only enqueues.
func (s *Session) intercept(response playwright.Response) {
	if !strings.Contains(response.URL(), s.opts.EndpointPath) {
		return
	}
	if err := s.inbox.Push(pending{response: response}); err != nil {
		s.logger.Debug("dropping response after close", "url", response.URL())
	}
}

func (s *Session) pump() {
	defer s.wg.Done()
	defer close(s.payloads)

	for {
		item, err := s.inbox.Pop(context.Background())
		if err != nil {
			return
		}

		select {
		case <-s.done:
			return
		default:
		}

		payload := item.payload
		if payload == nil {
			payload = s.readResponse(item.response)
			if payload == nil {
				continue
			}
		}

		select {
		case s.payloads <- *payload:
		case <-s.done:
			return
		}
	}
}

func (s *Session) readResponse(response playwright.Response) *models.Payload {
	body, err := response.Body()
	if err != nil {
		s.logger.Debug("failed to read response body", "url", response.URL(), "error", err)
		return nil
	}
	return &models.Payload{
		URL:        response.URL(),
		Status:     response.Status(),
		Body:       body,
		ReceivedAt: time.Now(),
	}
}

func (s *Session) Payloads() <-chan models.Payload {
	return s.payloads
}

// Authenticate opens the home page and blocks on g until the operator has
// logged in.
func (s *Session) Authenticate(ctx context.Context, g gate.Gate) error {
	if err := s.browser.NavigateWithRetry(ctx, s.page, s.opts.HomeURL, s.opts.NavigateRetries, s.backoff); err != nil {
		return errors.Wrap(err, "failed to open login page")
	}

	s.logger.Info("waiting for manual login")
	if err := g.Wait(ctx); err != nil {
		return errors.Wrap(err, "login gate")
	}
	return nil
}

// Open navigates to the listing, dismisses the consent dialog when present
// and waits for the UI to render. Records embedded in the initial HTML are
// queued ahead of any later response.
func (s *Session) Open(ctx context.Context, url string) error {
	s.logger.Info("opening listing", "url", url)

	if err := s.browser.NavigateWithRetry(ctx, s.page, url, s.opts.NavigateRetries, s.backoff); err != nil {
		return errors.Wrap(err, "failed to open listing")
	}

	s.dismissConsent()

	if _, err := s.page.WaitForSelector(s.opts.UISelector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(60000),
	}); err != nil {
		return errors.Wrapf(err, "listing did not render %s", s.opts.UISelector)
	}

	if err := s.browser.HumanizeInteraction(s.page); err != nil {
		s.logger.Debug("humanize failed", "error", err)
	}

	return s.queueEmbedded(url)
}

func (s *Session) dismissConsent() {
	button := s.page.Locator(s.opts.ConsentSelector).First()
	if err := button.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(5000)}); err != nil {
		s.logger.Debug("no consent dialog", "selector", s.opts.ConsentSelector)
		return
	}
	s.logger.Info("dismissed consent dialog")
}

func (s *Session) queueEmbedded(url string) error {
	html, err := s.page.Content()
	if err != nil {
		return errors.Wrap(err, "failed to read page content")
	}

	bodies, err := extract.EmbeddedPayloads(html)
	if err != nil {
		s.logger.Warn("failed to parse embedded data", "error", err)
		return nil
	}

	now := time.Now()
	for _, body := range bodies {
		p := models.Payload{
			URL:        url,
			Status:     200,
			Body:       body,
			ReceivedAt: now,
			Embedded:   true,
		}
		if err := s.inbox.Push(pending{payload: &p}); err != nil {
			return errors.Wrap(err, "failed to queue embedded payload")
		}
	}

	s.logger.Debug("queued embedded payloads", "count", len(bodies))
	return nil
}

// Advance scrolls to the bottom and waits for the next batch to settle. It
// reports false only when the configured end marker is on the page.
func (s *Session) Advance(ctx context.Context) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	grew, err := s.page.Evaluate(scrollScript, map[string]any{
		"step":  s.opts.ScrollStep,
		"pause": s.opts.ScrollPause.Milliseconds(),
	})
	if err != nil {
		return false, errors.Wrap(err, "failed to scroll listing")
	}
	s.logger.Debug("scrolled", "grew", grew)

	if err := s.settle.Pause(ctx); err != nil {
		return false, err
	}

	if s.opts.EndSelector != "" {
		count, err := s.page.Locator(s.opts.EndSelector).Count()
		if err != nil {
			return false, errors.Wrap(err, "failed to query end marker")
		}
		if count > 0 {
			s.logger.Info("end of listing reached")
			return false, nil
		}
	}

	return true, nil
}

// Close stops delivery and closes the page. The Payloads channel is closed
// once the pump has exited.
func (s *Session) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		_ = s.inbox.Close()
		s.wg.Wait()
		if cerr := s.page.Close(); cerr != nil {
			err = errors.Wrap(cerr, "failed to close page")
		}
	})
	return err
}

func isBlockedResource(resourceType string, blocked []string) bool {
	for _, b := range blocked {
		if resourceType == b {
			return true
		}
	}
	return false
}
