package app

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/hashi/internal/browser"
	"github.com/raysh454/hashi/internal/executor"
	"github.com/raysh454/hashi/internal/logging"
	"github.com/raysh454/hashi/internal/model"
	"github.com/raysh454/hashi/internal/reporter"
	"github.com/raysh454/hashi/internal/store"
)

type RunEventType string

const (
	RunEventStatus RunEventType = "status"
	RunEventStep   RunEventType = "step"
	RunEventResult RunEventType = "result"
)

type RunState string

const (
	RunRunning RunState = "running"
	RunDone    RunState = "done"
)

// RunEvent is one progress update streamed to websocket clients.
type RunEvent struct {
	SessionID string            `json:"session_id"`
	TestID    string            `json:"test_id"`
	Type      RunEventType      `json:"type"`
	Status    RunState          `json:"status,omitempty"`
	Step      *model.StepResult `json:"step,omitempty"`
	Result    *model.TestResult `json:"result,omitempty"`
}

// Session is one in-flight test run with an open browser.
type Session struct {
	ID        string        `json:"id"`
	TestID    string        `json:"test_id"`
	StartedAt time.Time     `json:"started_at"`
	Events    chan RunEvent `json:"-"`
}

// DriverFactory builds the browser driver for one run. Swappable so
// tests can inject fakes without a registry round-trip.
type DriverFactory func(cfg browser.Config, logger logging.Logger) (browser.Driver, error)

// Orchestrator owns run sessions: it builds the driver, runs the
// executor, assembles the TestResult, persists it, and fires webhooks.
type Orchestrator struct {
	cfg       *Config
	store     *store.Store
	reporter  *reporter.Reporter
	logger    logging.Logger
	newDriver DriverFactory

	mu       sync.Mutex
	sessions map[string]*Session
	cancels  map[string]context.CancelFunc
}

// NewOrchestrator ties together config, store, reporter and logger.
func NewOrchestrator(cfg *Config, st *store.Store, rep *reporter.Reporter, logger logging.Logger) *Orchestrator {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		reporter:  rep,
		logger:    logger,
		newDriver: browser.NewDriver,
		sessions:  make(map[string]*Session),
		cancels:   make(map[string]context.CancelFunc),
	}
}

// SetDriverFactory overrides driver construction (tests).
func (o *Orchestrator) SetDriverFactory(f DriverFactory) {
	if f != nil {
		o.newDriver = f
	}
}

// ActiveSessions reports how many runs currently hold an open browser.
func (o *Orchestrator) ActiveSessions() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.sessions)
}

// ExecuteTest runs the request synchronously and always produces a
// result; failures outside step execution come back as status ERROR.
func (o *Orchestrator) ExecuteTest(ctx context.Context, req *model.TestRequest) *model.TestResult {
	sess := o.beginSession(req.TestID)
	defer o.endSession(sess)
	return o.run(ctx, req, sess)
}

// StartRun launches the request in the background and returns the
// session whose Events channel streams progress. The channel is closed
// when the run finishes.
func (o *Orchestrator) StartRun(req *model.TestRequest) *Session {
	sess := o.beginSession(req.TestID)

	ctx, cancel := context.WithCancel(context.Background())
	o.mu.Lock()
	o.cancels[sess.ID] = cancel
	o.mu.Unlock()

	go func() {
		defer o.endSession(sess)
		defer cancel()
		o.run(ctx, req, sess)
	}()

	return sess
}

// CancelRun aborts an in-flight background run.
func (o *Orchestrator) CancelRun(sessionID string) {
	o.mu.Lock()
	cancel := o.cancels[sessionID]
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Close cancels every in-flight run.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	cancels := make([]context.CancelFunc, 0, len(o.cancels))
	for _, c := range o.cancels {
		cancels = append(cancels, c)
	}
	o.mu.Unlock()
	for _, c := range cancels {
		c()
	}
}

func (o *Orchestrator) beginSession(testID string) *Session {
	sess := &Session{
		ID:        uuid.New().String(),
		TestID:    testID,
		StartedAt: time.Now().UTC(),
		Events:    make(chan RunEvent, o.cfg.EventBuffer),
	}
	o.mu.Lock()
	o.sessions[sess.ID] = sess
	o.mu.Unlock()
	return sess
}

func (o *Orchestrator) endSession(sess *Session) {
	o.mu.Lock()
	delete(o.sessions, sess.ID)
	delete(o.cancels, sess.ID)
	o.mu.Unlock()
	close(sess.Events)
}

// emit is a non-blocking send; events are dropped when the buffer is
// full rather than stalling the run.
func (o *Orchestrator) emit(sess *Session, ev RunEvent) {
	ev.SessionID = sess.ID
	ev.TestID = sess.TestID
	select {
	case sess.Events <- ev:
	default:
	}
}

func (o *Orchestrator) run(ctx context.Context, req *model.TestRequest, sess *Session) *model.TestResult {
	start := time.Now()
	o.logger.Info("starting test execution",
		logging.Field{Key: "test_id", Value: req.TestID},
		logging.Field{Key: "session_id", Value: sess.ID},
		logging.Field{Key: "steps", Value: len(req.Steps)})
	o.emit(sess, RunEvent{Type: RunEventStatus, Status: RunRunning})

	bcfg := o.cfg.BrowserCfg
	if req.Browser != "" {
		bcfg.Browser = req.Browser
	}
	bcfg.Headless = req.IsHeadless()

	drv, err := o.newDriver(bcfg, o.logger)
	if err != nil {
		return o.finish(ctx, req, sess, o.errorResult(req, start, "driver init: "+err.Error(), ""))
	}
	defer drv.Close()

	targetURL := model.EnsureScheme(req.URL, "https")
	o.logger.Info("opening url", logging.Field{Key: "url", Value: targetURL})
	if err := drv.Navigate(ctx, targetURL); err != nil {
		shot := o.errorScreenshot(ctx, drv, req.TestID)
		return o.finish(ctx, req, sess, o.errorResult(req, start, err.Error(), shot))
	}

	var shots executor.ScreenshotStore
	if o.store != nil {
		shots = o.store
	}
	exec := executor.New(o.cfg.ExecutorCfg, req.TestID, drv, shots, o.logger)
	results := exec.Run(ctx, req.Steps, func(sr model.StepResult) {
		step := sr
		o.emit(sess, RunEvent{Type: RunEventStep, Step: &step})
	})

	passed, failed := 0, 0
	for i := range results {
		if results[i].Status == model.StepPassed {
			passed++
		} else {
			failed++
		}
	}

	status := model.StatusPass
	if failed > 0 {
		status = model.StatusFail
	}

	res := &model.TestResult{
		TestID:          req.TestID,
		Status:          status,
		Duration:        roundSeconds(time.Since(start)),
		StepsExecuted:   len(results),
		StepsPassed:     passed,
		StepsFailed:     failed,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		DetailedResults: results,
	}
	return o.finish(ctx, req, sess, res)
}

// finish persists the result, fires the webhook, and emits the final
// events.
func (o *Orchestrator) finish(ctx context.Context, req *model.TestRequest, sess *Session, res *model.TestResult) *model.TestResult {
	o.logger.Info("test completed",
		logging.Field{Key: "test_id", Value: res.TestID},
		logging.Field{Key: "status", Value: res.Status},
		logging.Field{Key: "passed", Value: res.StepsPassed},
		logging.Field{Key: "failed", Value: res.StepsFailed})

	if o.store != nil {
		if err := o.store.SaveResult(ctx, res); err != nil {
			o.logger.Error("saving result", logging.Field{Key: "error", Value: err.Error()})
		}
	}

	if req.WebhookURL != "" && o.reporter != nil {
		url := req.WebhookURL
		result := *res
		go func() {
			wctx, cancel := context.WithTimeout(context.Background(), o.cfg.WebhookTimeout)
			defer cancel()
			// Delivery errors are already logged by the reporter.
			_ = o.reporter.Send(wctx, url, &result)
		}()
	}

	o.emit(sess, RunEvent{Type: RunEventResult, Status: RunDone, Result: res})
	return res
}

func (o *Orchestrator) errorResult(req *model.TestRequest, start time.Time, msg, screenshot string) *model.TestResult {
	o.logger.Error("test execution failed",
		logging.Field{Key: "test_id", Value: req.TestID},
		logging.Field{Key: "error", Value: msg})
	return &model.TestResult{
		TestID:          req.TestID,
		Status:          model.StatusError,
		Duration:        roundSeconds(time.Since(start)),
		ErrorMessage:    msg,
		ScreenshotURL:   screenshot,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		DetailedResults: []model.StepResult{},
	}
}

// errorScreenshot is best effort; the run is already broken.
func (o *Orchestrator) errorScreenshot(ctx context.Context, drv browser.Driver, testID string) string {
	if o.store == nil {
		return ""
	}
	data, ext, err := drv.Screenshot(ctx)
	if err != nil {
		return ""
	}
	name, err := o.store.SaveErrorScreenshot(testID, data, ext)
	if err != nil {
		o.logger.Error("saving error screenshot", logging.Field{Key: "error", Value: err.Error()})
		return ""
	}
	return name
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*100) / 100
}
