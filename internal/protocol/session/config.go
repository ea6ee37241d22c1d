package session

import (
	"errors"
	"fmt"
	"time"
)

const (
	DefaultResponseTimeout = 2000 * time.Millisecond
	DefaultCookieAttempts  = 3
	DefaultReceiveAttempts = 2
)

var ErrInvalidConfig = errors.New("session: invalid config")

// BackoffConfig defines retry backoff behavior.
type BackoffConfig struct {
	InitialDelay time.Duration
	Multiplier   float64
	MaxDelay     time.Duration
	Jitter       bool
}

// Config defines CP exchange timing and retry budgets.
type Config struct {
	// ResponseTimeout bounds each blocking receive.
	ResponseTimeout time.Duration
	CookieAttempts  int
	ReceiveAttempts int
	// Backoff delays cookie request resends; zero resends immediately.
	Backoff BackoffConfig
}

func DefaultConfig() Config {
	return Config{
		ResponseTimeout: DefaultResponseTimeout,
		CookieAttempts:  DefaultCookieAttempts,
		ReceiveAttempts: DefaultReceiveAttempts,
		Backoff: BackoffConfig{
			Multiplier: 2.0,
			MaxDelay:   time.Second,
		},
	}
}

// WithDefaults fills zero-valued fields from DefaultConfig.
func (c Config) WithDefaults() Config {
	def := DefaultConfig()
	if c.ResponseTimeout <= 0 {
		c.ResponseTimeout = def.ResponseTimeout
	}
	if c.CookieAttempts <= 0 {
		c.CookieAttempts = def.CookieAttempts
	}
	if c.ReceiveAttempts <= 0 {
		c.ReceiveAttempts = def.ReceiveAttempts
	}
	if c.Backoff.Multiplier == 0 {
		c.Backoff.Multiplier = def.Backoff.Multiplier
	}
	return c
}

func (c Config) Validate() error {
	if c.ResponseTimeout <= 0 {
		return fmt.Errorf("%w: response_timeout must be positive", ErrInvalidConfig)
	}
	if c.CookieAttempts <= 0 {
		return fmt.Errorf("%w: cookie_attempts must be positive", ErrInvalidConfig)
	}
	if c.ReceiveAttempts <= 0 {
		return fmt.Errorf("%w: receive_attempts must be positive", ErrInvalidConfig)
	}
	if c.Backoff.InitialDelay < 0 || c.Backoff.MaxDelay < 0 {
		return fmt.Errorf("%w: backoff delays must not be negative", ErrInvalidConfig)
	}
	return nil
}
