// Package browser abstracts the automation driver a test run executes
// against. Backends register themselves with the factory; the default
// set is a real chromedp-driven browser and a browserless HTML
// simulator for environments without Chrome.
package browser

import (
	"context"
	"time"
)

// Driver is the set of atomic operations the step executor needs.
// Element-addressed operations wait for visibility up to timeout.
type Driver interface {
	// Navigate opens url and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// Click clicks the element matched by the CSS selector.
	Click(ctx context.Context, selector string, timeout time.Duration) error

	// TypeText types text into the element matched by the CSS selector.
	TypeText(ctx context.Context, selector, text string, timeout time.Duration) error

	// ElementText returns the visible text of the matched element.
	ElementText(ctx context.Context, selector string, timeout time.Duration) (string, error)

	// Screenshot captures the current page. It returns the image bytes
	// and a file extension ("png" for real browsers, "html" for the
	// simulator's DOM snapshots).
	Screenshot(ctx context.Context) ([]byte, string, error)

	Close() error
}

// Backend names a registered driver implementation.
type Backend string

const (
	BackendChromedp Backend = "chromedp"
	BackendHTMLSim  Backend = "htmlsim"
)

// Config carries everything a backend constructor may need.
type Config struct {
	Backend Backend

	// Browser is the requested browser family (chrome, firefox, edge).
	// chromedp only drives Chrome; other values are logged and ignored.
	Browser string

	Headless bool

	// NetworkIdleAfter is how long the network must be quiet after a
	// navigation before the page counts as settled.
	NetworkIdleAfter time.Duration

	// HTTPTimeout bounds individual requests made by the simulator.
	HTTPTimeout time.Duration
}
