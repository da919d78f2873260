// Package reporter pushes completed test results to caller-supplied
// webhooks. Delivery is best effort: failures are logged, never
// surfaced to the test run itself.
package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/raysh454/hashi/internal/logging"
	"github.com/raysh454/hashi/internal/model"
)

const defaultTimeout = 10 * time.Second

type Reporter struct {
	client *http.Client
	logger logging.Logger
}

func New(timeout time.Duration, logger logging.Logger) *Reporter {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Reporter{
		client: &http.Client{Timeout: timeout},
		logger: logger.With(logging.Field{Key: "component", Value: "reporter"}),
	}
}

// Send posts the result JSON to webhookURL. Transport errors get one
// retry; a non-2xx response counts as failure.
func (r *Reporter) Send(ctx context.Context, webhookURL string, res *model.TestResult) error {
	payload, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}

	var lastErr error
	for attempt := 1; attempt <= 2; attempt++ {
		lastErr = r.post(ctx, webhookURL, payload)
		if lastErr == nil {
			r.logger.Info("webhook delivered",
				logging.Field{Key: "url", Value: webhookURL},
				logging.Field{Key: "test_id", Value: res.TestID})
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	r.logger.Error("webhook delivery failed",
		logging.Field{Key: "url", Value: webhookURL},
		logging.Field{Key: "test_id", Value: res.TestID},
		logging.Field{Key: "error", Value: lastErr.Error()})
	return lastErr
}

func (r *Reporter) post(ctx context.Context, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
