// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv_Defaults(t *testing.T) {
	cfg := FromEnv()

	assert.Equal(t, "7860", cfg.Port)
	assert.Equal(t, 3, cfg.Loop.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Loop.SettleDelay)
	assert.Equal(t, 30*time.Second, cfg.Loop.PropagationDelay)
	assert.Equal(t, 20*time.Second, cfg.Loop.PollInterval)
	assert.Equal(t, 20*time.Second, cfg.Build.HostingSettle)
	assert.Equal(t, 5, cfg.Build.NotifyMaxAttempts)
	assert.Equal(t, 1*time.Second, cfg.Build.NotifyBackoff)
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("LOOP_MAX_ATTEMPTS", "7")
	t.Setenv("LOOP_POLL_INTERVAL", "50ms")
	t.Setenv("AGENT_WORKERS", "2")

	cfg := FromEnv()

	assert.Equal(t, 7, cfg.Loop.MaxAttempts)
	assert.Equal(t, 50*time.Millisecond, cfg.Loop.PollInterval)
	assert.Equal(t, 2, cfg.Workers)
}

func TestFromEnv_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("LOOP_MAX_ATTEMPTS", "banana")
	t.Setenv("LOOP_SETTLE_DELAY", "soon")

	cfg := FromEnv()

	assert.Equal(t, 3, cfg.Loop.MaxAttempts)
	assert.Equal(t, 10*time.Second, cfg.Loop.SettleDelay)
}

func TestValidate(t *testing.T) {
	cfg := FromEnv()
	cfg.SharedSecret = "s3cret"
	require.NoError(t, cfg.Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"missing secret", func(c *Config) { c.SharedSecret = "" }},
		{"zero workers", func(c *Config) { c.Workers = 0 }},
		{"zero attempts", func(c *Config) { c.Loop.MaxAttempts = 0 }},
		{"zero polls", func(c *Config) { c.Loop.MaxPolls = 0 }},
		{"zero notify attempts", func(c *Config) { c.Build.NotifyMaxAttempts = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bad := cfg
			tt.mutate(&bad)
			assert.Error(t, bad.Validate())
		})
	}
}
