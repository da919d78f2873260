package app_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/raysh454/hashi/internal/app"
	"github.com/raysh454/hashi/internal/browser"
	"github.com/raysh454/hashi/internal/executor"
	"github.com/raysh454/hashi/internal/logging"
	"github.com/raysh454/hashi/internal/model"
	"github.com/raysh454/hashi/internal/reporter"
	"github.com/raysh454/hashi/internal/store"
	"github.com/raysh454/hashi/internal/testutil"

	_ "modernc.org/sqlite"
)

func newTestOrchestrator(t *testing.T, drv *testutil.FakeDriver) (*app.Orchestrator, *store.Store) {
	t.Helper()

	dir := t.TempDir()
	db, err := sql.Open("sqlite", filepath.Join(dir, "hashi.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st, err := store.New(db, dir, &testutil.DummyLogger{})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}

	cfg := app.DefaultConfig()
	cfg.StorageRoot = dir
	cfg.ExecutorCfg = executor.Config{MaxRetries: 2, RetryDelay: 0}

	o := app.NewOrchestrator(cfg, st, reporter.New(time.Second, &testutil.DummyLogger{}), &testutil.DummyLogger{})
	o.SetDriverFactory(func(_ browser.Config, _ logging.Logger) (browser.Driver, error) {
		return drv, nil
	})
	return o, st
}

func passingRequest(testID string) *model.TestRequest {
	return &model.TestRequest{
		TestID: testID,
		URL:    "http://target.example",
		Steps: []model.Step{
			{Action: model.ActionClick, Selector: "#submit"},
			{Action: model.ActionScreenshot},
		},
	}
}

func TestExecuteTest_Pass(t *testing.T) {
	t.Parallel()

	drv := testutil.NewFakeDriver()
	o, st := newTestOrchestrator(t, drv)

	res := o.ExecuteTest(context.Background(), passingRequest("t-pass"))

	if res.Status != model.StatusPass {
		t.Fatalf("status: got %s (%s)", res.Status, res.ErrorMessage)
	}
	if res.StepsExecuted != 2 || res.StepsPassed != 2 || res.StepsFailed != 0 {
		t.Errorf("counts: %+v", res)
	}
	if !drv.Closed {
		t.Error("driver should be closed after the run")
	}
	if drv.Calls[0].Op != "navigate" {
		t.Errorf("initial navigation missing, calls: %v", drv.CallOps())
	}

	stored, err := st.ResultsByTestID(context.Background(), "t-pass")
	if err != nil {
		t.Fatalf("result not persisted: %v", err)
	}
	if stored[0].Status != model.StatusPass {
		t.Errorf("persisted status: %s", stored[0].Status)
	}

	if o.ActiveSessions() != 0 {
		t.Errorf("active sessions after run: %d", o.ActiveSessions())
	}
}

func TestExecuteTest_FailedStepYieldsFAIL(t *testing.T) {
	t.Parallel()

	drv := testutil.NewFakeDriver()
	drv.FailSelectors["#gone"] = -1
	o, _ := newTestOrchestrator(t, drv)

	req := passingRequest("t-fail")
	req.Steps = []model.Step{
		{Action: model.ActionClick, Selector: "#gone"},
		{Action: model.ActionScreenshot},
	}

	res := o.ExecuteTest(context.Background(), req)

	if res.Status != model.StatusFail {
		t.Fatalf("status: got %s", res.Status)
	}
	if res.StepsExecuted != 2 || res.StepsPassed != 1 || res.StepsFailed != 1 {
		t.Errorf("counts: executed=%d passed=%d failed=%d", res.StepsExecuted, res.StepsPassed, res.StepsFailed)
	}
	if res.DetailedResults[0].Attempt != 3 {
		t.Errorf("failed step attempts: got %d, want 3", res.DetailedResults[0].Attempt)
	}
}

func TestExecuteTest_NavigationErrorYieldsERROR(t *testing.T) {
	t.Parallel()

	drv := testutil.NewFakeDriver()
	drv.NavigateErr = context.DeadlineExceeded
	o, _ := newTestOrchestrator(t, drv)

	res := o.ExecuteTest(context.Background(), passingRequest("t-err"))

	if res.Status != model.StatusError {
		t.Fatalf("status: got %s", res.Status)
	}
	if res.StepsExecuted != 0 {
		t.Errorf("no steps should count, got %d", res.StepsExecuted)
	}
	if res.ErrorMessage == "" {
		t.Error("error message missing")
	}
	if !strings.Contains(res.ScreenshotURL, "_ERROR") {
		t.Errorf("error screenshot: got %q", res.ScreenshotURL)
	}
	if !drv.Closed {
		t.Error("driver should be closed even on error")
	}
}

func TestExecuteTest_DriverInitErrorYieldsERROR(t *testing.T) {
	t.Parallel()

	drv := testutil.NewFakeDriver()
	o, _ := newTestOrchestrator(t, drv)
	o.SetDriverFactory(func(_ browser.Config, _ logging.Logger) (browser.Driver, error) {
		return nil, errors.New("chrome not found")
	})

	res := o.ExecuteTest(context.Background(), passingRequest("t-init"))
	if res.Status != model.StatusError {
		t.Fatalf("status: got %s", res.Status)
	}
	if !strings.Contains(res.ErrorMessage, "driver init") {
		t.Errorf("error message: %q", res.ErrorMessage)
	}
}

func TestExecuteTest_WebhookDelivery(t *testing.T) {
	t.Parallel()

	delivered := make(chan model.TestResult, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var res model.TestResult
		if err := jsonDecode(r, &res); err == nil {
			select {
			case delivered <- res:
			default:
			}
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	drv := testutil.NewFakeDriver()
	o, _ := newTestOrchestrator(t, drv)

	req := passingRequest("t-hook")
	req.WebhookURL = ts.URL

	o.ExecuteTest(context.Background(), req)

	select {
	case res := <-delivered:
		if res.TestID != "t-hook" || res.Status != model.StatusPass {
			t.Errorf("webhook payload: %+v", res)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("webhook never delivered")
	}
}

func TestStartRun_StreamsEvents(t *testing.T) {
	t.Parallel()

	drv := testutil.NewFakeDriver()
	o, _ := newTestOrchestrator(t, drv)

	sess := o.StartRun(passingRequest("t-stream"))

	var events []app.RunEvent
	deadline := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-sess.Events:
			if !ok {
				goto done
			}
			events = append(events, ev)
		case <-deadline:
			t.Fatal("event stream never closed")
		}
	}
done:
	if len(events) < 3 {
		t.Fatalf("expected status + steps + result, got %d events", len(events))
	}
	if events[0].Type != app.RunEventStatus || events[0].Status != app.RunRunning {
		t.Errorf("first event: %+v", events[0])
	}

	last := events[len(events)-1]
	if last.Type != app.RunEventResult || last.Result == nil {
		t.Fatalf("last event: %+v", last)
	}
	if last.Result.Status != model.StatusPass {
		t.Errorf("final result status: %s", last.Result.Status)
	}

	stepEvents := 0
	for _, ev := range events {
		if ev.Type == app.RunEventStep {
			stepEvents++
		}
	}
	if stepEvents != 2 {
		t.Errorf("step events: got %d, want 2", stepEvents)
	}
}

func jsonDecode(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
