package license

import (
	"time"

	"github.com/licensehub/internal/retry"
)

// ClientConfig points the activation client at a licensehub server
type ClientConfig struct {
	BaseURL string
	Timeout time.Duration
	// Retry applies to validation only. The zero value never retries.
	Retry retry.RetryConfig
}

// EffectiveTimeout never goes below 5s
func (c ClientConfig) EffectiveTimeout() time.Duration {
	if c.Timeout < 5*time.Second {
		return 5 * time.Second
	}
	return c.Timeout
}
