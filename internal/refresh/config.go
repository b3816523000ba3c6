package refresh

import (
	"fmt"
	"time"
)

// Config tunes the check run synchronization passes.
type Config struct {
	// MaxConcurrent is the maximum number of in-flight check run updates.
	// Open pull requests are processed in chunks of this size.
	MaxConcurrent int

	// BatchDelay is the pause between chunks, and between repositories
	// during a global sweep, to stay under API rate budgets.
	BatchDelay time.Duration

	// MaxRetries is the number of additional attempts after a failed check
	// run update.
	MaxRetries int

	// BaseRetryDelay is the backoff base; attempt n sleeps
	// BaseRetryDelay * 2^(n-1) before retrying.
	BaseRetryDelay time.Duration
}

const (
	// DefaultMaxConcurrent is the default chunk size for batch updates.
	DefaultMaxConcurrent = 10
	// DefaultBatchDelay is the default delay between chunks.
	DefaultBatchDelay = 100 * time.Millisecond
	// DefaultMaxRetries is the default number of retries per update.
	DefaultMaxRetries = 3
	// DefaultBaseRetryDelay is the default exponential backoff base.
	DefaultBaseRetryDelay = 1 * time.Second
)

// NewDefaultConfig returns a Config with the default tuning.
func NewDefaultConfig() Config {
	return Config{
		MaxConcurrent:  DefaultMaxConcurrent,
		BatchDelay:     DefaultBatchDelay,
		MaxRetries:     DefaultMaxRetries,
		BaseRetryDelay: DefaultBaseRetryDelay,
	}
}

// Validate checks if the refresh configuration is valid.
func (c Config) Validate() error {
	if c.MaxConcurrent < 1 {
		return fmt.Errorf("max concurrent must be at least 1, got: %d", c.MaxConcurrent)
	}
	if c.BatchDelay < 0 {
		return fmt.Errorf("batch delay cannot be negative, got: %v", c.BatchDelay)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative, got: %d", c.MaxRetries)
	}
	if c.BaseRetryDelay <= 0 {
		return fmt.Errorf("base retry delay must be positive, got: %v", c.BaseRetryDelay)
	}
	return nil
}
