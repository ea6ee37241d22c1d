package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/danmuck/cpnet/internal/protocol/session"
)

type fileConfig struct {
	Session sessionTable `toml:"session"`
}

type sessionTable struct {
	ResponseTimeout   string  `toml:"response_timeout"`
	ResponseTimeoutMS int64   `toml:"response_timeout_ms"`
	CookieAttempts    int     `toml:"cookie_attempts"`
	ReceiveAttempts   int     `toml:"receive_attempts"`
	BackoffInitial    string  `toml:"backoff_initial"`
	BackoffMax        string  `toml:"backoff_max"`
	BackoffMultiplier float64 `toml:"backoff_multiplier"`
	BackoffJitter     bool    `toml:"backoff_jitter"`
}

// loadSessionConfig overlays the optional [session] table onto the defaults.
func loadSessionConfig(path string) (session.Config, error) {
	cfg := session.DefaultConfig()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return session.Config{}, fmt.Errorf("load session config: %w", err)
	}

	if meta.IsDefined("session", "response_timeout") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Session.ResponseTimeout))
		if err != nil {
			return session.Config{}, fmt.Errorf("parse response_timeout: %w", err)
		}
		cfg.ResponseTimeout = d
	}

	if meta.IsDefined("session", "response_timeout_ms") {
		cfg.ResponseTimeout = time.Duration(raw.Session.ResponseTimeoutMS) * time.Millisecond
	}

	if meta.IsDefined("session", "cookie_attempts") {
		cfg.CookieAttempts = raw.Session.CookieAttempts
	}

	if meta.IsDefined("session", "receive_attempts") {
		cfg.ReceiveAttempts = raw.Session.ReceiveAttempts
	}

	if meta.IsDefined("session", "backoff_initial") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Session.BackoffInitial))
		if err != nil {
			return session.Config{}, fmt.Errorf("parse backoff_initial: %w", err)
		}
		cfg.Backoff.InitialDelay = d
	}

	if meta.IsDefined("session", "backoff_max") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Session.BackoffMax))
		if err != nil {
			return session.Config{}, fmt.Errorf("parse backoff_max: %w", err)
		}
		cfg.Backoff.MaxDelay = d
	}

	if meta.IsDefined("session", "backoff_multiplier") {
		cfg.Backoff.Multiplier = raw.Session.BackoffMultiplier
	}

	if meta.IsDefined("session", "backoff_jitter") {
		cfg.Backoff.Jitter = raw.Session.BackoffJitter
	}

	if err := cfg.Validate(); err != nil {
		return session.Config{}, err
	}
	return cfg, nil
}
