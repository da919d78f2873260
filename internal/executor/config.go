package executor

import "time"

type Config struct {
	// MaxRetries is how many extra attempts a failing step gets.
	MaxRetries int

	// RetryDelay is the fixed pause between attempts.
	RetryDelay time.Duration
}

// DefaultConfig matches the documented policy: two retries, two-second
// fixed delay.
func DefaultConfig() Config {
	return Config{
		MaxRetries: 2,
		RetryDelay: 2 * time.Second,
	}
}
