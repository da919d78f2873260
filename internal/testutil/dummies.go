// Package testutil provides shared test doubles for use across package
// tests. All dummies implement the corresponding interfaces from the
// production code, allowing injection into components under test
// without real I/O or side effects.
package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/raysh454/hashi/internal/logging"
)

// ─── Logger ────────────────────────────────────────────────────────────

// DummyLogger implements logging.Logger with in-memory recording.
type DummyLogger struct {
	mu     sync.Mutex
	Errors []string
	Infos  []string
	Debugs []string
	Warns  []string
}

func (l *DummyLogger) Debug(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Debugs = append(l.Debugs, msg)
}

func (l *DummyLogger) Info(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Infos = append(l.Infos, msg)
}

func (l *DummyLogger) Warn(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Warns = append(l.Warns, msg)
}

func (l *DummyLogger) Error(msg string, fields ...logging.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Errors = append(l.Errors, msg)
}

func (l *DummyLogger) With(_ ...logging.Field) logging.Logger { return l }

// ─── Browser driver ────────────────────────────────────────────────────

// RecordedCall is one driver invocation captured by FakeDriver.
type RecordedCall struct {
	Op       string
	Selector string
	Value    string
}

// FakeDriver implements browser.Driver with scriptable behavior.
// FailSelectors maps a selector to how many times operations on it
// should fail before succeeding; a negative count fails forever.
type FakeDriver struct {
	mu sync.Mutex

	NavigateErr    error
	FailSelectors  map[string]int
	Texts          map[string]string
	ScreenshotData []byte
	ScreenshotExt  string
	ScreenshotErr  error

	Calls  []RecordedCall
	Closed bool
}

func NewFakeDriver() *FakeDriver {
	return &FakeDriver{
		FailSelectors:  map[string]int{},
		Texts:          map[string]string{},
		ScreenshotData: []byte("fake-image"),
		ScreenshotExt:  "png",
	}
}

func (d *FakeDriver) record(op, selector, value string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls = append(d.Calls, RecordedCall{Op: op, Selector: selector, Value: value})
}

// shouldFail consumes one scripted failure for the selector.
func (d *FakeDriver) shouldFail(selector string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	n, ok := d.FailSelectors[selector]
	if !ok || n == 0 {
		return false
	}
	if n > 0 {
		d.FailSelectors[selector] = n - 1
	}
	return true
}

func (d *FakeDriver) Navigate(_ context.Context, url string) error {
	d.record("navigate", "", url)
	return d.NavigateErr
}

func (d *FakeDriver) Click(_ context.Context, selector string, _ time.Duration) error {
	d.record("click", selector, "")
	if d.shouldFail(selector) {
		return &errString{"element not found: " + selector}
	}
	return nil
}

func (d *FakeDriver) TypeText(_ context.Context, selector, text string, _ time.Duration) error {
	d.record("type", selector, text)
	if d.shouldFail(selector) {
		return &errString{"element not found: " + selector}
	}
	return nil
}

func (d *FakeDriver) ElementText(_ context.Context, selector string, _ time.Duration) (string, error) {
	d.record("text", selector, "")
	if d.shouldFail(selector) {
		return "", &errString{"element not found: " + selector}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.Texts[selector], nil
}

func (d *FakeDriver) Screenshot(_ context.Context) ([]byte, string, error) {
	d.record("screenshot", "", "")
	if d.ScreenshotErr != nil {
		return nil, "", d.ScreenshotErr
	}
	return d.ScreenshotData, d.ScreenshotExt, nil
}

func (d *FakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Closed = true
	return nil
}

// CallOps returns the operation names in invocation order.
func (d *FakeDriver) CallOps() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]string, len(d.Calls))
	for i, c := range d.Calls {
		out[i] = c.Op
	}
	return out
}

// ─── Screenshot store ──────────────────────────────────────────────────

// DummyShots implements executor.ScreenshotStore in memory.
type DummyShots struct {
	mu    sync.Mutex
	Saved []string
	Err   error
}

func (s *DummyShots) SaveScreenshot(testID string, stepNumber int, failed bool, _ []byte, ext string) (string, error) {
	if s.Err != nil {
		return "", s.Err
	}
	name := fmt.Sprintf("%s_step_%d", testID, stepNumber)
	if failed {
		name += "_FAILED"
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Saved = append(s.Saved, name)
	return name + "." + ext, nil
}

// ─── helpers ───────────────────────────────────────────────────────────

type errString struct{ s string }

func (e *errString) Error() string { return e.s }
