// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package config holds the agent service configuration.
//
// Every policy value the engine waits on (settle delays, poll interval,
// retry budgets) is a configuration field rather than a literal so tests
// can shrink them to near-zero. Production values come from environment
// variables with the defaults below.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config is the full agent service configuration.
type Config struct {
	// Port is the HTTP listen port.
	Port string

	// SharedSecret is checked against the secret field of every inbound
	// build request before any processing begins.
	SharedSecret string

	// Workers is the size of the background worker pool (>= 1).
	Workers int

	// QueueSize is the task queue capacity; enqueue fails when full.
	QueueSize int

	// OTelEndpoint is the OTLP collector target for traces.
	OTelEndpoint string

	Loop   LoopConfig
	Build  BuildConfig
	GitHub GitHubConfig
	LLM    LLMConfig
}

// LoopConfig bounds the attempt/review/retry loop.
type LoopConfig struct {
	// MaxAttempts is the generate→publish→review budget per task.
	MaxAttempts int

	// SettleDelay is waited before every attempt after the first, giving
	// the reviewer time to react to the previous publish.
	SettleDelay time.Duration

	// PropagationDelay is waited once after the first publish before
	// polling begins, because review automation is itself asynchronous.
	PropagationDelay time.Duration

	// PollInterval is the fixed wait between verdict polls.
	PollInterval time.Duration

	// MaxPolls bounds verdict polling within one attempt. A PENDING
	// verdict after MaxPolls polls advances the attempt instead of
	// waiting forever.
	MaxPolls int
}

// BuildConfig bounds the single-shot build pipeline.
type BuildConfig struct {
	// HostingSettle is waited after enabling hosting before notifying,
	// a deploy heuristic rather than a readiness guarantee.
	HostingSettle time.Duration

	// NotifyMaxAttempts is the notification retry ceiling.
	NotifyMaxAttempts int

	// NotifyBackoff is the first retry delay; it doubles per attempt.
	NotifyBackoff time.Duration

	// NotifyTimeout is the per-request timeout for notification POSTs.
	NotifyTimeout time.Duration
}

// GitHubConfig configures the repository publisher.
type GitHubConfig struct {
	// Token is the personal access token used for all API calls.
	Token string

	// Owner is the account owning the published repositories.
	Owner string

	// BaseURL is the API root, overridable for tests.
	BaseURL string

	// Timeout is the per-request timeout for API calls.
	Timeout time.Duration
}

// LLMConfig configures the artifact generator.
type LLMConfig struct {
	// Backend selects the generation backend: "gemini" or "openai".
	Backend string

	// Model is the backend-specific model name.
	Model string

	// APIKey is the vendor API key.
	APIKey string

	// BaseURL overrides the OpenAI-compatible endpoint (e.g. DeepSeek).
	BaseURL string

	// Timeout is the per-call generation timeout.
	Timeout time.Duration
}

// FromEnv loads the configuration from environment variables, applying
// defaults for anything unset. It never fails; callers that require a
// credential (shared secret, tokens) must check for it explicitly.
func FromEnv() Config {
	return Config{
		Port:         envStr("AGENT_PORT", "7860"),
		SharedSecret: os.Getenv("AGENT_SECRET"),
		Workers:      envInt("AGENT_WORKERS", 4),
		QueueSize:    envInt("AGENT_QUEUE_SIZE", 64),
		OTelEndpoint: os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
		Loop: LoopConfig{
			MaxAttempts:      envInt("LOOP_MAX_ATTEMPTS", 3),
			SettleDelay:      envDuration("LOOP_SETTLE_DELAY", 10*time.Second),
			PropagationDelay: envDuration("LOOP_PROPAGATION_DELAY", 30*time.Second),
			PollInterval:     envDuration("LOOP_POLL_INTERVAL", 20*time.Second),
			MaxPolls:         envInt("LOOP_MAX_POLLS", 9),
		},
		Build: BuildConfig{
			HostingSettle:     envDuration("BUILD_HOSTING_SETTLE", 20*time.Second),
			NotifyMaxAttempts: envInt("NOTIFY_MAX_ATTEMPTS", 5),
			NotifyBackoff:     envDuration("NOTIFY_BACKOFF", 1*time.Second),
			NotifyTimeout:     envDuration("NOTIFY_TIMEOUT", 15*time.Second),
		},
		GitHub: GitHubConfig{
			Token:   os.Getenv("GITHUB_PAT"),
			Owner:   os.Getenv("GITHUB_OWNER"),
			BaseURL: envStr("GITHUB_API_URL", "https://api.github.com"),
			Timeout: envDuration("GITHUB_TIMEOUT", 30*time.Second),
		},
		LLM: LLMConfig{
			Backend: envStr("LLM_BACKEND", "gemini"),
			Model:   os.Getenv("LLM_MODEL"),
			APIKey:  firstEnv("GEMINI_API_KEY", "DEEPSEEK_API_KEY", "OPENAI_API_KEY"),
			BaseURL: os.Getenv("LLM_BASE_URL"),
			Timeout: envDuration("LLM_TIMEOUT", 120*time.Second),
		},
	}
}

// Validate checks the loaded configuration for values the service cannot
// run with.
func (c Config) Validate() error {
	if c.SharedSecret == "" {
		return fmt.Errorf("AGENT_SECRET is not set")
	}
	if c.Workers < 1 {
		return fmt.Errorf("AGENT_WORKERS must be >= 1, got %d", c.Workers)
	}
	if c.Loop.MaxAttempts < 1 {
		return fmt.Errorf("LOOP_MAX_ATTEMPTS must be >= 1, got %d", c.Loop.MaxAttempts)
	}
	if c.Loop.MaxPolls < 1 {
		return fmt.Errorf("LOOP_MAX_POLLS must be >= 1, got %d", c.Loop.MaxPolls)
	}
	if c.Build.NotifyMaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be >= 1, got %d", c.Build.NotifyMaxAttempts)
	}
	return nil
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default",
			"key", key, "value", v, "default", fallback)
		return fallback
	}
	return d
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
