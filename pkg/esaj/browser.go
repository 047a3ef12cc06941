package esaj

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	launchTimeout = 120 * time.Second
	navTimeout    = 60 * time.Second
	stepTimeout   = 30 * time.Second
)

// Browser is the headless-browser capability the pipeline drives. The e-SAJ
// portal renders results with javascript, so a plain HTTP client is not
// enough.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	SelectOption(ctx context.Context, selector, value string) error
	WaitEnabled(ctx context.Context, selector string) error
	TypeInto(ctx context.Context, selector, text string) error
	Click(ctx context.Context, selector string) error
	HasElement(ctx context.Context, selector string) (bool, error)
	Content(ctx context.Context) (string, error)
	WaitIdle(ctx context.Context) error
	Close() error
}

// BrowserFactory allocates a fresh browser per run; tests inject fakes here.
type BrowserFactory func(ctx context.Context) (Browser, error)

type chromeBrowser struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
}

// NewChromeBrowser launches a headless Chrome with the fixed viewport and
// user agent the portal expects from a desktop visitor.
func NewChromeBrowser(ctx context.Context) (Browser, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(userAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	b := &chromeBrowser{ctx: tabCtx, cancelTab: cancelTab, cancelAlloc: cancelAlloc}

	// First Run starts the browser process.
	launchCtx, cancel := context.WithTimeout(tabCtx, launchTimeout)
	defer cancel()
	if err := chromedp.Run(launchCtx); err != nil {
		b.Close()
		return nil, fmt.Errorf("chrome launch: %w", err)
	}
	return b, nil
}

func (b *chromeBrowser) run(timeout time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(b.ctx, timeout)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (b *chromeBrowser) Navigate(ctx context.Context, url string) error {
	return b.run(navTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// SelectOption picks a <select> option and fires the change event the portal
// listens on to enable the matching input.
func (b *chromeBrowser) SelectOption(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(
		`(() => { const el = document.querySelector(%q); el.value = %q; el.dispatchEvent(new Event('change', {bubbles: true})); })()`,
		selector, value)
	return b.run(stepTimeout, chromedp.Evaluate(script, nil))
}

func (b *chromeBrowser) WaitEnabled(ctx context.Context, selector string) error {
	return b.run(stepTimeout, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (b *chromeBrowser) TypeInto(ctx context.Context, selector, text string) error {
	return b.run(stepTimeout,
		chromedp.SetValue(selector, "", chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
}

func (b *chromeBrowser) Click(ctx context.Context, selector string) error {
	return b.run(stepTimeout, chromedp.Click(selector, chromedp.ByQuery))
}

// HasElement reports whether the selector matches anything right now, without
// waiting for it to appear.
func (b *chromeBrowser) HasElement(ctx context.Context, selector string) (bool, error) {
	var n int
	script := fmt.Sprintf(`document.querySelectorAll(%q).length`, selector)
	if err := b.run(stepTimeout, chromedp.Evaluate(script, &n)); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (b *chromeBrowser) Content(ctx context.Context) (string, error) {
	var html string
	if err := b.run(stepTimeout, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

// WaitIdle approximates the "network idle" wait after a page turn. Timeouts
// here are expected and non-fatal for callers.
func (b *chromeBrowser) WaitIdle(ctx context.Context) error {
	return b.run(stepTimeout, chromedp.WaitReady("body", chromedp.ByQuery))
}

func (b *chromeBrowser) Close() error {
	b.cancelTab()
	b.cancelAlloc()
	return nil
}
