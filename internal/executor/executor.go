// Package executor replays test steps against a browser driver, one at
// a time, with the documented retry and failure-screenshot policy.
package executor

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/raysh454/hashi/internal/browser"
	"github.com/raysh454/hashi/internal/logging"
	"github.com/raysh454/hashi/internal/model"
)

// ScreenshotStore persists captured screenshots and returns the stored
// file name.
type ScreenshotStore interface {
	SaveScreenshot(testID string, stepNumber int, failed bool, data []byte, ext string) (string, error)
}

// StepCallback is invoked after every executed step, in order.
type StepCallback func(model.StepResult)

// Executor runs the steps of one test against one driver.
type Executor struct {
	cfg    Config
	testID string
	driver browser.Driver
	shots  ScreenshotStore
	logger logging.Logger
}

func New(cfg Config, testID string, drv browser.Driver, shots ScreenshotStore, logger logging.Logger) *Executor {
	return &Executor{
		cfg:    cfg,
		testID: testID,
		driver: drv,
		shots:  shots,
		logger: logger.With(logging.Field{Key: "component", Value: "executor"}),
	}
}

// Run executes all steps in order. A failed step does not stop the run;
// a canceled context does.
func (e *Executor) Run(ctx context.Context, steps []model.Step, onStep StepCallback) []model.StepResult {
	results := make([]model.StepResult, 0, len(steps))
	for i := range steps {
		if ctx.Err() != nil {
			break
		}
		e.logger.Info("executing step",
			logging.Field{Key: "test_id", Value: e.testID},
			logging.Field{Key: "step", Value: i + 1},
			logging.Field{Key: "total", Value: len(steps)},
			logging.Field{Key: "action", Value: steps[i].Action})

		res := e.executeStep(ctx, steps[i], i+1)
		results = append(results, res)
		if onStep != nil {
			onStep(res)
		}
	}
	return results
}

// executeStep runs one step with retries. After the final failed
// attempt it captures a failure screenshot.
func (e *Executor) executeStep(ctx context.Context, step model.Step, stepNumber int) model.StepResult {
	var lastErr error
	attempts := 0

	for attempt := 1; attempt <= e.cfg.MaxRetries+1; attempt++ {
		attempts = attempt
		res, err := e.performAction(ctx, step, stepNumber)
		if err == nil {
			res.Status = model.StepPassed
			res.Attempt = attempt
			e.logger.Info("step passed",
				logging.Field{Key: "step", Value: stepNumber},
				logging.Field{Key: "action", Value: step.Action},
				logging.Field{Key: "attempt", Value: attempt})
			return res
		}

		lastErr = err
		if attempt <= e.cfg.MaxRetries && ctx.Err() == nil {
			e.logger.Warn("step failed, retrying",
				logging.Field{Key: "step", Value: stepNumber},
				logging.Field{Key: "action", Value: step.Action},
				logging.Field{Key: "attempt", Value: attempt},
				logging.Field{Key: "max_attempts", Value: e.cfg.MaxRetries + 1},
				logging.Field{Key: "error", Value: err.Error()})
			if !sleepCtx(ctx, e.cfg.RetryDelay) {
				break
			}
			continue
		}
		break
	}

	e.logger.Error("step failed after all attempts",
		logging.Field{Key: "step", Value: stepNumber},
		logging.Field{Key: "action", Value: step.Action},
		logging.Field{Key: "error", Value: lastErr.Error()})

	return model.StepResult{
		StepNumber: stepNumber,
		Action:     step.Action,
		Status:     model.StepFailed,
		Selector:   step.Selector,
		Value:      step.Value,
		Error:      lastErr.Error(),
		Screenshot: e.captureFailureScreenshot(ctx, stepNumber),
		Attempt:    attempts,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}
}

// performAction dispatches one attempt of the step's action.
func (e *Executor) performAction(ctx context.Context, step model.Step, stepNumber int) (model.StepResult, error) {
	start := time.Now()
	res := model.StepResult{
		StepNumber: stepNumber,
		Action:     step.Action,
		Selector:   step.Selector,
		Value:      step.Value,
	}

	var err error
	switch step.Action {
	case model.ActionOpenURL:
		target := step.Value
		if target == "" {
			target = step.Selector
		}
		err = e.driver.Navigate(ctx, model.EnsureScheme(target, "https"))

	case model.ActionClick:
		err = e.driver.Click(ctx, step.Selector, step.Timeout())

	case model.ActionTypeText:
		err = e.driver.TypeText(ctx, step.Selector, step.Value, step.Timeout())

	case model.ActionVerify:
		err = e.verify(ctx, step)

	case model.ActionWait:
		err = e.wait(ctx, step)

	case model.ActionScreenshot:
		var data []byte
		var ext string
		data, ext, err = e.driver.Screenshot(ctx)
		if err == nil && e.shots != nil {
			res.Screenshot, err = e.shots.SaveScreenshot(e.testID, stepNumber, false, data, ext)
		}

	default:
		err = fmt.Errorf("unknown action: %s", step.Action)
	}

	res.Duration = time.Since(start).Seconds()
	res.Timestamp = time.Now().UTC().Format(time.RFC3339)
	return res, err
}

// verify waits for the element and, when the step carries a value,
// requires it as a substring of the element text.
func (e *Executor) verify(ctx context.Context, step model.Step) error {
	text, err := e.driver.ElementText(ctx, step.Selector, step.Timeout())
	if err != nil {
		return err
	}
	if step.Value == "" {
		return nil
	}
	if strings.Contains(text, step.Value) {
		return nil
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(step.Value, text, false)
	return fmt.Errorf("expected %q not found in element text %q (diff: %s)",
		step.Value, text, dmp.DiffPrettyText(diffs))
}

// wait sleeps for the step's value in seconds, falling back to the step
// timeout when no value is given.
func (e *Executor) wait(ctx context.Context, step model.Step) error {
	d := step.Timeout()
	if step.Value != "" {
		secs, err := strconv.Atoi(strings.TrimSpace(step.Value))
		if err != nil {
			return fmt.Errorf("invalid wait value %q: %w", step.Value, err)
		}
		d = time.Duration(secs) * time.Second
	}
	if !sleepCtx(ctx, d) {
		return ctx.Err()
	}
	return nil
}

// captureFailureScreenshot is best-effort; a run must not degrade
// further because the screenshot could not be taken.
func (e *Executor) captureFailureScreenshot(ctx context.Context, stepNumber int) string {
	if e.shots == nil {
		return ""
	}
	data, ext, err := e.driver.Screenshot(ctx)
	if err != nil {
		e.logger.Error("failed to capture failure screenshot",
			logging.Field{Key: "step", Value: stepNumber},
			logging.Field{Key: "error", Value: err.Error()})
		return ""
	}
	name, err := e.shots.SaveScreenshot(e.testID, stepNumber, true, data, ext)
	if err != nil {
		e.logger.Error("failed to save failure screenshot",
			logging.Field{Key: "step", Value: stepNumber},
			logging.Field{Key: "error", Value: err.Error()})
		return ""
	}
	e.logger.Info("failure screenshot saved", logging.Field{Key: "screenshot", Value: name})
	return name
}

// sleepCtx sleeps for d unless ctx is canceled first; it reports
// whether the full sleep happened.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	select {
	case <-time.After(d):
		return true
	case <-ctx.Done():
		return false
	}
}
