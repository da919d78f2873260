// Package model holds the wire types for test requests, steps and results.
package model

import (
	"fmt"
	"strings"
	"time"
)

// Action names one browser operation in a test sequence.
type Action string

const (
	ActionOpenURL    Action = "open_url"
	ActionClick      Action = "click"
	ActionTypeText   Action = "type_text"
	ActionVerify     Action = "verify"
	ActionWait       Action = "wait"
	ActionScreenshot Action = "screenshot"
)

// DefaultStepTimeout applies when a step does not carry its own timeout.
const DefaultStepTimeout = 10 * time.Second

// KnownAction reports whether a is one of the supported step actions.
func KnownAction(a Action) bool {
	switch a {
	case ActionOpenURL, ActionClick, ActionTypeText, ActionVerify, ActionWait, ActionScreenshot:
		return true
	}
	return false
}

// Step is one atomic browser action plus its parameters.
type Step struct {
	Action      Action `json:"action"`
	Selector    string `json:"selector,omitempty"`
	Value       string `json:"value,omitempty"`
	TimeoutSecs int    `json:"timeout,omitempty"`
	Description string `json:"description,omitempty"`
}

// Timeout returns the step's element-wait timeout, falling back to the default.
func (s *Step) Timeout() time.Duration {
	if s.TimeoutSecs > 0 {
		return time.Duration(s.TimeoutSecs) * time.Second
	}
	return DefaultStepTimeout
}

// Validate checks that the step carries the parameters its action requires.
func (s *Step) Validate() error {
	if !KnownAction(s.Action) {
		return fmt.Errorf("unknown action: %s", s.Action)
	}
	switch s.Action {
	case ActionClick, ActionVerify:
		if s.Selector == "" {
			return fmt.Errorf("selector is required for %s action", s.Action)
		}
	case ActionTypeText:
		if s.Selector == "" || s.Value == "" {
			return fmt.Errorf("selector and value are required for %s action", s.Action)
		}
	case ActionOpenURL:
		if s.Value == "" && s.Selector == "" {
			return fmt.Errorf("url is required for %s action", s.Action)
		}
	}
	return nil
}

// TestRequest describes one test run submitted over the API.
type TestRequest struct {
	TestID     string `json:"test_id"`
	URL        string `json:"url"`
	Steps      []Step `json:"steps"`
	Browser    string `json:"browser,omitempty"`
	Headless   *bool  `json:"headless,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

// IsHeadless resolves the headless flag; absent means headless.
func (r *TestRequest) IsHeadless() bool {
	if r.Headless == nil {
		return true
	}
	return *r.Headless
}

// Validate checks that the request is complete enough to run.
func (r *TestRequest) Validate() error {
	if strings.TrimSpace(r.TestID) == "" {
		return fmt.Errorf("test_id is required")
	}
	if strings.TrimSpace(r.URL) == "" {
		return fmt.Errorf("url is required")
	}
	if len(r.Steps) == 0 {
		return fmt.Errorf("steps must not be empty")
	}
	for i := range r.Steps {
		if err := r.Steps[i].Validate(); err != nil {
			return fmt.Errorf("step %d: %w", i+1, err)
		}
	}
	return nil
}

// StepStatus is the outcome of one executed step.
type StepStatus string

const (
	StepPassed StepStatus = "passed"
	StepFailed StepStatus = "failed"
)

// StepResult records what happened to one step, including the attempt
// count after retries and any failure screenshot.
type StepResult struct {
	StepNumber int        `json:"step_number"`
	Action     Action     `json:"action"`
	Status     StepStatus `json:"status"`
	Selector   string     `json:"selector,omitempty"`
	Value      string     `json:"value,omitempty"`
	Error      string     `json:"error,omitempty"`
	Screenshot string     `json:"screenshot,omitempty"`
	Attempt    int        `json:"attempt"`
	Duration   float64    `json:"duration"`
	Timestamp  string     `json:"timestamp"`
}

// RunStatus is the aggregate outcome of a test run.
type RunStatus string

const (
	// StatusPass means every step passed.
	StatusPass RunStatus = "PASS"
	// StatusFail means at least one step failed after retries.
	StatusFail RunStatus = "FAIL"
	// StatusError means the run broke outside step execution
	// (driver startup or the initial navigation).
	StatusError RunStatus = "ERROR"
)

// TestResult is the aggregate report for one run.
type TestResult struct {
	TestID          string       `json:"test_id"`
	Status          RunStatus    `json:"status"`
	Duration        float64      `json:"duration"`
	StepsExecuted   int          `json:"steps_executed"`
	StepsPassed     int          `json:"steps_passed"`
	StepsFailed     int          `json:"steps_failed"`
	ErrorMessage    string       `json:"error_message,omitempty"`
	ScreenshotURL   string       `json:"screenshot_url,omitempty"`
	Timestamp       string       `json:"timestamp"`
	DetailedResults []StepResult `json:"detailed_results"`
}

// EnsureScheme prepends defaultScheme to raw when it carries none.
func EnsureScheme(raw, defaultScheme string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return raw
	}
	if strings.Contains(raw, "://") {
		return raw
	}
	return defaultScheme + "://" + raw
}
