package app

import (
	"time"

	"github.com/raysh454/hashi/internal/browser"
	"github.com/raysh454/hashi/internal/executor"
)

// Config contains the runtime configuration shared by internal modules.
type Config struct {
	// StorageRoot is the base path for the run database and screenshots.
	StorageRoot string

	// Version is reported on the banner endpoint.
	Version string

	// BrowserCfg configures the driver backend; per-request browser and
	// headless choices override it.
	BrowserCfg browser.Config

	// ExecutorCfg is the retry policy for step execution.
	ExecutorCfg executor.Config

	// WebhookTimeout bounds result delivery to caller webhooks.
	WebhookTimeout time.Duration

	// EventBuffer is the per-run event channel capacity.
	EventBuffer int
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		StorageRoot: "~/.config/hashi",
		Version:     "0.1.0",
		BrowserCfg: browser.Config{
			Backend:          browser.BackendChromedp,
			Browser:          "chrome",
			Headless:         true,
			NetworkIdleAfter: 2 * time.Second,
			HTTPTimeout:      30 * time.Second,
		},
		ExecutorCfg:    executor.DefaultConfig(),
		WebhookTimeout: 10 * time.Second,
		EventBuffer:    64,
	}
}
