package browser

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/raysh454/hashi/internal/logging"
)

const (
	defaultNetworkIdleAfter = 2 * time.Second

	// maxSettleWait caps the post-navigation idle wait so pages that
	// poll forever don't stall a run.
	maxSettleWait = 15 * time.Second
)

// ChromedpDriver drives a real headless Chrome instance through the
// DevTools protocol. One driver owns one browser process.
type ChromedpDriver struct {
	browserCtx context.Context
	cancels    []context.CancelFunc
	idleAfter  time.Duration
	logger     logging.Logger
}

// NewChromedpDriver launches the browser. Construction fails fast when
// no Chrome binary is available, so callers can fall back or report.
func NewChromedpDriver(cfg Config, logger logging.Logger) (*ChromedpDriver, error) {
	log := logger.With(logging.Field{Key: "component", Value: "chromedp"})

	if cfg.Browser != "" && cfg.Browser != "chrome" {
		log.Warn("chromedp only drives chrome, ignoring requested browser",
			logging.Field{Key: "browser", Value: cfg.Browser})
	}

	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	if !cfg.Headless {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)

	idleAfter := cfg.NetworkIdleAfter
	if idleAfter <= 0 {
		idleAfter = defaultNetworkIdleAfter
	}

	d := &ChromedpDriver{
		browserCtx: browserCtx,
		cancels:    []context.CancelFunc{cancelBrowser, cancelAlloc},
		idleAfter:  idleAfter,
		logger:     log,
	}

	if err := chromedp.Run(browserCtx); err != nil {
		d.Close()
		return nil, fmt.Errorf("start browser: %w", err)
	}

	log.Debug("browser started", logging.Field{Key: "headless", Value: cfg.Headless})
	return d, nil
}

// waitNetworkIdle returns a channel that is closed once no network
// request has been in flight for idleAfter.
func waitNetworkIdle(ctx context.Context, idleAfter time.Duration) <-chan struct{} {
	idleChan := make(chan struct{})
	var activeReqs int32
	var timer *time.Timer
	var timerMu sync.Mutex
	var once sync.Once

	startTimer := func() {
		timerMu.Lock()
		defer timerMu.Unlock()

		if timer != nil {
			timer.Stop()
		}

		timer = time.AfterFunc(idleAfter, func() {
			if atomic.LoadInt32(&activeReqs) == 0 {
				once.Do(func() { close(idleChan) })
			}
		})
	}

	// Pages with no subresources still go idle.
	startTimer()

	chromedp.ListenTarget(ctx, func(ev any) {
		switch ev.(type) {
		case *network.EventRequestWillBeSent:
			atomic.AddInt32(&activeReqs, 1)
		case *network.EventLoadingFinished, *network.EventLoadingFailed:
			if atomic.AddInt32(&activeReqs, -1) <= 0 {
				startTimer()
			}
		}
	})

	return idleChan
}

// run executes actions against the browser, honoring the caller context
// and an optional per-call timeout.
func (d *ChromedpDriver) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	var runCtx context.Context
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(d.browserCtx, timeout)
	} else {
		runCtx, cancel = context.WithCancel(d.browserCtx)
	}
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- chromedp.Run(runCtx, actions...) }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		cancel()
		<-done
		return ctx.Err()
	}
}

func (d *ChromedpDriver) Navigate(ctx context.Context, url string) error {
	// Scope the network listener to this navigation so listeners don't
	// accumulate across steps.
	listenCtx, stopListen := context.WithCancel(d.browserCtx)
	defer stopListen()
	idle := waitNetworkIdle(listenCtx, d.idleAfter)

	if err := d.run(ctx, 0, network.Enable(), chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	select {
	case <-idle:
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(maxSettleWait):
		d.logger.Warn("page did not reach network idle", logging.Field{Key: "url", Value: url})
	}
	return nil
}

func (d *ChromedpDriver) Click(ctx context.Context, selector string, timeout time.Duration) error {
	err := d.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Click(selector, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("click %s: %w", selector, err)
	}
	return nil
}

func (d *ChromedpDriver) TypeText(ctx context.Context, selector, text string, timeout time.Duration) error {
	err := d.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, text, chromedp.ByQuery),
	)
	if err != nil {
		return fmt.Errorf("type into %s: %w", selector, err)
	}
	return nil
}

func (d *ChromedpDriver) ElementText(ctx context.Context, selector string, timeout time.Duration) (string, error) {
	var out string
	err := d.run(ctx, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery),
		chromedp.Text(selector, &out, chromedp.ByQuery),
	)
	if err != nil {
		return "", fmt.Errorf("read text of %s: %w", selector, err)
	}
	return out, nil
}

func (d *ChromedpDriver) Screenshot(ctx context.Context) ([]byte, string, error) {
	var buf []byte
	if err := d.run(ctx, 30*time.Second, chromedp.FullScreenshot(&buf, 90)); err != nil {
		return nil, "", fmt.Errorf("capture screenshot: %w", err)
	}
	return buf, "png", nil
}

func (d *ChromedpDriver) Close() error {
	for _, cancel := range d.cancels {
		cancel()
	}
	return nil
}
