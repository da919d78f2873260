package browser

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/raysh454/hashi/internal/logging"
)

// Constructor builds a Driver from the config and logger.
type Constructor func(cfg Config, logger logging.Logger) (Driver, error)

var (
	mu       sync.RWMutex
	registry = map[string]Constructor{}
)

// RegisterBackend registers a named backend constructor. Name is
// lower-cased internally. Registering the same name again overwrites the
// previous constructor.
func RegisterBackend(name Backend, ctor Constructor) {
	if name == "" || ctor == nil {
		return
	}
	mu.Lock()
	defer mu.Unlock()
	registry[strings.ToLower(string(name))] = ctor
}

// NewDriver constructs the configured Driver backend. It returns an
// error if the named backend has not been registered.
func NewDriver(cfg Config, logger logging.Logger) (Driver, error) {
	backend := strings.ToLower(strings.TrimSpace(string(cfg.Backend)))
	if backend == "" {
		backend = string(BackendChromedp)
	}

	mu.RLock()
	ctor, ok := registry[backend]
	mu.RUnlock()
	if !ok || ctor == nil {
		return nil, fmt.Errorf("browser backend %q not registered: available backends=%v", backend, ListBackends())
	}

	d, err := ctor(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to construct browser backend %q: %w", backend, err)
	}
	if d == nil {
		return nil, errors.New("browser constructor returned nil")
	}
	return d, nil
}

// ListBackends returns the list of registered backend names.
func ListBackends() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	return out
}

// RegisterDefaultBackends registers the chromedp and htmlsim backends.
// Call early in main() (or from test setup) to make them available to
// NewDriver. Safe to call more than once.
func RegisterDefaultBackends() {
	RegisterBackend(BackendChromedp, func(cfg Config, logger logging.Logger) (Driver, error) {
		d, err := NewChromedpDriver(cfg, logger)
		if err != nil {
			return nil, fmt.Errorf("create chromedp driver: %w", err)
		}
		return d, nil
	})

	RegisterBackend(BackendHTMLSim, func(cfg Config, logger logging.Logger) (Driver, error) {
		return NewHTMLSimDriver(cfg, logger), nil
	})
}
