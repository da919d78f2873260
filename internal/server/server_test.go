package server_test

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raysh454/hashi/internal/app"
	"github.com/raysh454/hashi/internal/browser"
	"github.com/raysh454/hashi/internal/executor"
	"github.com/raysh454/hashi/internal/logging"
	"github.com/raysh454/hashi/internal/model"
	"github.com/raysh454/hashi/internal/server"
	"github.com/raysh454/hashi/internal/testutil"
)

func newTestServer(t *testing.T, drv *testutil.FakeDriver) *httptest.Server {
	t.Helper()

	cfg := app.DefaultConfig()
	cfg.StorageRoot = t.TempDir()
	cfg.ExecutorCfg = executor.Config{MaxRetries: 2, RetryDelay: 0}

	s, err := server.NewServer(server.Config{
		AppConfig: cfg,
		Logger:    &testutil.DummyLogger{},
	})
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	t.Cleanup(s.Close)

	if drv != nil {
		s.Orchestrator().SetDriverFactory(func(_ browser.Config, _ logging.Logger) (browser.Driver, error) {
			return drv, nil
		})
	}

	ts := httptest.NewServer(s)
	t.Cleanup(ts.Close)
	return ts
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()

	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		rdr = bytes.NewReader(b)
	}

	req, err := http.NewRequest(method, url, rdr)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
}

func loginRequest(testID string) model.TestRequest {
	return model.TestRequest{
		TestID: testID,
		URL:    "http://demo.example/login",
		Steps: []model.Step{
			{Action: model.ActionTypeText, Selector: "#username", Value: "admin"},
			{Action: model.ActionClick, Selector: "#submit"},
			{Action: model.ActionVerify, Selector: "#greeting", Value: "Welcome"},
		},
	}
}

func TestHealth(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	resp := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}

	var health server.HealthResponse
	decodeJSON(t, resp, &health)
	if health.Status != "healthy" {
		t.Errorf("status field: %q", health.Status)
	}
	if health.Timestamp == "" {
		t.Error("timestamp missing")
	}
	if health.ActiveSessions != 0 {
		t.Errorf("active_sessions: %d", health.ActiveSessions)
	}
}

func TestRootBanner(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	resp := doJSON(t, http.MethodGet, ts.URL+"/", nil)
	var banner server.BannerResponse
	decodeJSON(t, resp, &banner)

	if banner.Service != "Hashi" || banner.Status != "running" {
		t.Errorf("banner: %+v", banner)
	}
	if banner.Docs != "/docs" {
		t.Errorf("docs link: %q", banner.Docs)
	}
}

func TestCORSHeaders(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	resp := doJSON(t, http.MethodGet, ts.URL+"/health", nil)
	if got := resp.Header.Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Access-Control-Allow-Origin: %q", got)
	}

	req, _ := http.NewRequest(http.MethodOptions, ts.URL+"/execute-test", nil)
	pre, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	defer pre.Body.Close()
	if pre.StatusCode != http.StatusNoContent {
		t.Errorf("preflight status: %d", pre.StatusCode)
	}
	if got := pre.Header.Get("Access-Control-Allow-Methods"); got != "POST" {
		t.Errorf("Access-Control-Allow-Methods: %q", got)
	}
}

func TestSwaggerDoc(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	resp := doJSON(t, http.MethodGet, ts.URL+"/docs/doc.json", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}

	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), `"swagger"`) {
		t.Error("doc.json does not look like a swagger document")
	}
	if !strings.Contains(string(body), "/execute-test") {
		t.Error("doc.json missing /execute-test path")
	}
}

func TestExecuteTest_Pass(t *testing.T) {
	t.Parallel()

	drv := testutil.NewFakeDriver()
	drv.Texts["#greeting"] = "Welcome back, admin"
	ts := newTestServer(t, drv)

	resp := doJSON(t, http.MethodPost, ts.URL+"/execute-test", loginRequest("srv-pass"))
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status: %d", resp.StatusCode)
	}

	var res model.TestResult
	decodeJSON(t, resp, &res)
	if res.Status != model.StatusPass {
		t.Fatalf("result status: %s (%s)", res.Status, res.ErrorMessage)
	}
	if res.StepsExecuted != 3 || res.StepsPassed != 3 {
		t.Errorf("counts: executed=%d passed=%d", res.StepsExecuted, res.StepsPassed)
	}
	if len(res.DetailedResults) != 3 {
		t.Errorf("detailed results: %d", len(res.DetailedResults))
	}
}

func TestExecuteTest_FailAfterRetries(t *testing.T) {
	t.Parallel()

	drv := testutil.NewFakeDriver()
	drv.Texts["#greeting"] = "Welcome back, admin"
	drv.FailSelectors["#submit"] = -1
	ts := newTestServer(t, drv)

	resp := doJSON(t, http.MethodPost, ts.URL+"/execute-test", loginRequest("srv-fail"))

	var res model.TestResult
	decodeJSON(t, resp, &res)
	if res.Status != model.StatusFail {
		t.Fatalf("result status: %s", res.Status)
	}
	if res.StepsFailed != 1 {
		t.Errorf("steps_failed: %d", res.StepsFailed)
	}
	if res.DetailedResults[1].Attempt != 3 {
		t.Errorf("failed step attempts: %d", res.DetailedResults[1].Attempt)
	}
}

func TestExecuteTest_InvalidJSON(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	resp, err := http.Post(ts.URL+"/execute-test", "application/json", strings.NewReader("{nope"))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status: %d", resp.StatusCode)
	}
}

func TestExecuteTest_ValidationError(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	req := loginRequest("srv-bad")
	req.URL = ""
	resp := doJSON(t, http.MethodPost, ts.URL+"/execute-test", req)

	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status: %d", resp.StatusCode)
	}
	var e server.ErrorResponse
	decodeJSON(t, resp, &e)
	if e.Error == "" {
		t.Error("error body missing")
	}
}

func TestResultsEndpoints(t *testing.T) {
	t.Parallel()

	drv := testutil.NewFakeDriver()
	drv.Texts["#greeting"] = "Welcome back, admin"
	ts := newTestServer(t, drv)

	doJSON(t, http.MethodPost, ts.URL+"/execute-test", loginRequest("srv-hist"))

	resp := doJSON(t, http.MethodGet, ts.URL+"/results?limit=5", nil)
	var recent []model.TestResult
	decodeJSON(t, resp, &recent)
	if len(recent) != 1 || recent[0].TestID != "srv-hist" {
		t.Errorf("recent results: %+v", recent)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/results/srv-hist", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("results by test id: %d", resp.StatusCode)
	}

	resp = doJSON(t, http.MethodGet, ts.URL+"/results/never-ran", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown test id: %d", resp.StatusCode)
	}
}

func TestScreenshotNotFound(t *testing.T) {
	t.Parallel()
	ts := newTestServer(t, nil)

	resp := doJSON(t, http.MethodGet, ts.URL+"/screenshots/nope.png", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status: %d", resp.StatusCode)
	}
}

func TestExecuteTestWS_StreamsRun(t *testing.T) {
	t.Parallel()

	drv := testutil.NewFakeDriver()
	drv.Texts["#greeting"] = "Welcome back, admin"
	ts := newTestServer(t, drv)

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws/execute-test"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(loginRequest("srv-ws")); err != nil {
		t.Fatalf("send request: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var sess app.Session
	if err := conn.ReadJSON(&sess); err != nil {
		t.Fatalf("read session frame: %v", err)
	}
	if sess.ID == "" || sess.TestID != "srv-ws" {
		t.Fatalf("session frame: %+v", sess)
	}

	var final *model.TestResult
	steps := 0
	for final == nil {
		var ev app.RunEvent
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("read event: %v", err)
		}
		switch ev.Type {
		case app.RunEventStep:
			steps++
		case app.RunEventResult:
			final = ev.Result
		}
	}

	if steps != 3 {
		t.Errorf("step events: %d", steps)
	}
	if final.Status != model.StatusPass {
		t.Errorf("final status: %s (%s)", final.Status, final.ErrorMessage)
	}
}
