package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/api/schemas"
	"github.com/FellipeGiulianoDuarte/ai-exploratory-agent-sub001/internal/config"
)

// actionRetries is how many attempts a single browser action gets before its
// failure is surfaced. Failures here are non-fatal to the session either way.
const actionRetries = 3

// Adapter drives one headless Chrome tab via chromedp. It owns the browser
// lifecycle and the console/network error listeners; all exploration actions
// and observations go through it.
type Adapter struct {
	cfg    config.BrowserConfig
	logger *zap.Logger

	allocCancel context.CancelFunc
	tabCtx      context.Context
	tabCancel   context.CancelFunc

	mu            sync.Mutex
	consoleErrors []schemas.ConsoleError
	networkErrors []schemas.NetworkError
}

// New launches a browser instance and wires the CDP event listeners. The
// returned adapter must be Closed by the caller.
func New(ctx context.Context, cfg config.BrowserConfig, logger *zap.Logger) (*Adapter, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
	)
	if cfg.IgnoreTLSErrors {
		opts = append(opts, chromedp.Flag("ignore-certificate-errors", true))
	}
	if cfg.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(cfg.UserAgent))
	}
	for _, arg := range cfg.Args {
		parts := strings.SplitN(strings.TrimPrefix(arg, "--"), "=", 2)
		if len(parts) == 2 {
			opts = append(opts, chromedp.Flag(parts[0], parts[1]))
		} else {
			opts = append(opts, chromedp.Flag(parts[0], true))
		}
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)

	a := &Adapter{
		cfg:         cfg,
		logger:      logger.Named("Browser"),
		allocCancel: allocCancel,
		tabCtx:      tabCtx,
		tabCancel:   tabCancel,
	}
	a.listen()

	// Start the browser eagerly so launch failures surface here, not on
	// the first navigation.
	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to start browser: %w", err)
	}
	return a, nil
}

// listen captures console errors and failed/error-status network requests
// into bounded in-memory buffers drained by Observe.
func (a *Adapter) listen() {
	chromedp.ListenTarget(a.tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *runtime.EventConsoleAPICalled:
			if e.Type != runtime.APITypeError {
				return
			}
			var parts []string
			for _, arg := range e.Args {
				if len(arg.Value) > 0 {
					parts = append(parts, string(arg.Value))
				}
			}
			a.mu.Lock()
			a.consoleErrors = append(a.consoleErrors, schemas.ConsoleError{
				Message:   strings.Join(parts, " "),
				Source:    "console",
				Timestamp: time.Now(),
			})
			a.mu.Unlock()
		case *runtime.EventExceptionThrown:
			a.mu.Lock()
			a.consoleErrors = append(a.consoleErrors, schemas.ConsoleError{
				Message:   e.ExceptionDetails.Error(),
				Source:    "exception",
				Timestamp: time.Now(),
			})
			a.mu.Unlock()
		case *network.EventLoadingFailed:
			a.mu.Lock()
			a.networkErrors = append(a.networkErrors, schemas.NetworkError{
				URL:       "",
				Failure:   e.ErrorText,
				Timestamp: time.Now(),
			})
			a.mu.Unlock()
		case *network.EventResponseReceived:
			if e.Response.Status < 400 {
				return
			}
			a.mu.Lock()
			a.networkErrors = append(a.networkErrors, schemas.NetworkError{
				URL:        e.Response.URL,
				StatusCode: int(e.Response.Status),
				Timestamp:  time.Now(),
			})
			a.mu.Unlock()
		}
	})
}

// Navigate loads a URL and waits for the document to become ready.
func (a *Adapter) Navigate(ctx context.Context, url string) (time.Duration, error) {
	return a.run(ctx, a.cfg.NavigationTimeout,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Click clicks the first element matching the selector.
func (a *Adapter) Click(ctx context.Context, selector string) (time.Duration, error) {
	return a.run(ctx, a.cfg.ActionTimeout,
		chromedp.Click(selector, chromedp.ByQuery),
	)
}

// Fill clears and types into the first element matching the selector.
func (a *Adapter) Fill(ctx context.Context, selector, value string) (time.Duration, error) {
	return a.run(ctx, a.cfg.ActionTimeout,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery),
	)
}

// Select chooses an option by value in a select element.
func (a *Adapter) Select(ctx context.Context, selector, value string) (time.Duration, error) {
	return a.run(ctx, a.cfg.ActionTimeout,
		chromedp.SetValue(selector, value, chromedp.ByQuery),
	)
}

// Hover moves the pointer over the first element matching the selector.
func (a *Adapter) Hover(ctx context.Context, selector string) (time.Duration, error) {
	js := fmt.Sprintf(
		`document.querySelector(%q)?.dispatchEvent(new MouseEvent("mouseover", {bubbles: true}))`,
		selector)
	return a.run(ctx, a.cfg.ActionTimeout,
		chromedp.Evaluate(js, nil),
	)
}

// Scroll scrolls the viewport up or down by one screen.
func (a *Adapter) Scroll(ctx context.Context, direction string) (time.Duration, error) {
	delta := "window.innerHeight"
	if direction == "up" {
		delta = "-window.innerHeight"
	}
	return a.run(ctx, a.cfg.ActionTimeout,
		chromedp.Evaluate(fmt.Sprintf("window.scrollBy(0, %s)", delta), nil),
	)
}

// GoBack navigates one entry back in tab history.
func (a *Adapter) GoBack(ctx context.Context) (time.Duration, error) {
	return a.run(ctx, a.cfg.NavigationTimeout, chromedp.NavigateBack())
}

// Refresh reloads the current page.
func (a *Adapter) Refresh(ctx context.Context) (time.Duration, error) {
	return a.run(ctx, a.cfg.NavigationTimeout, chromedp.Reload())
}

// Evaluate runs a JS expression in the page and unmarshals its result into
// out. Used by the tool registry.
func (a *Adapter) Evaluate(ctx context.Context, expression string, out any) error {
	timeoutCtx, cancel := a.withTimeout(ctx, a.cfg.ActionTimeout)
	defer cancel()
	return chromedp.Run(timeoutCtx, chromedp.Evaluate(expression, out))
}

// Observe snapshots the current page: URL, title, trimmed visible text, the
// interactive elements, and the console/network errors accumulated since the
// previous observation (the buffers are drained).
func (a *Adapter) Observe(ctx context.Context) (schemas.PageObservation, error) {
	timeoutCtx, cancel := a.withTimeout(ctx, a.cfg.ActionTimeout)
	defer cancel()

	var (
		url, title  string
		visibleText string
		elements    []schemas.PageElement
	)
	err := chromedp.Run(timeoutCtx,
		chromedp.Location(&url),
		chromedp.Title(&title),
		chromedp.Evaluate(visibleTextJS, &visibleText),
		chromedp.Evaluate(extractElementsJS, &elements),
	)
	if err != nil {
		return schemas.PageObservation{}, fmt.Errorf("failed to extract observation: %w", err)
	}

	if a.cfg.MaxVisibleText > 0 && len(visibleText) > a.cfg.MaxVisibleText {
		visibleText = visibleText[:a.cfg.MaxVisibleText]
	}
	if a.cfg.MaxElements > 0 && len(elements) > a.cfg.MaxElements {
		elements = elements[:a.cfg.MaxElements]
	}

	a.mu.Lock()
	consoleErrs := a.consoleErrors
	networkErrs := a.networkErrors
	a.consoleErrors = nil
	a.networkErrors = nil
	a.mu.Unlock()

	return schemas.PageObservation{
		URL:           url,
		Title:         title,
		VisibleText:   visibleText,
		Elements:      elements,
		ConsoleErrors: consoleErrs,
		NetworkErrors: networkErrs,
		CapturedAt:    time.Now(),
	}, nil
}

// Close tears down the tab and the browser process.
func (a *Adapter) Close() {
	a.tabCancel()
	a.allocCancel()
}

// run executes a chromedp action list with a timeout and a short transient
// retry. Retrying here keeps flaky-render failures away from the control
// loop, which never retries execution itself.
func (a *Adapter) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) (time.Duration, error) {
	start := time.Now()

	operation := func() error {
		timeoutCtx, cancel := a.withTimeout(ctx, timeout)
		defer cancel()
		if err := chromedp.Run(timeoutCtx, actions...); err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		return nil
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), actionRetries-1), ctx))
	if err != nil {
		a.logger.Warn("Browser action failed after retries", zap.Error(err))
	}
	return time.Since(start), err
}

func (a *Adapter) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	// chromedp actions must run on the tab context; the caller's ctx only
	// contributes cancellation via the deadline below.
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	return context.WithTimeout(a.tabCtx, timeout)
}
