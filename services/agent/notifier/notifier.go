// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package notifier delivers the final build result to the evaluation
// endpoint with at-least-once semantics: bounded exponential-backoff
// retry, success on the first HTTP 200.
package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/ForgelineAI/forgeline/pkg/retry"
	"github.com/ForgelineAI/forgeline/services/agent/config"
	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
	"github.com/ForgelineAI/forgeline/services/agent/observability"
)

// Client posts notification payloads.
type Client struct {
	http  *http.Client
	retry retry.Config
}

// New builds a notifier from the pipeline configuration.
func New(cfg config.BuildConfig) *Client {
	timeout := cfg.NotifyTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		http: &http.Client{Timeout: timeout},
		retry: retry.Config{
			MaxAttempts:    cfg.NotifyMaxAttempts,
			InitialBackoff: cfg.NotifyBackoff,
			MaxBackoff:     cfg.NotifyBackoff * 16,
			BackoffFactor:  2.0,
			JitterFactor:   0,
		},
	}
}

// Notify POSTs the payload to url until a 200 lands or the retry budget
// is exhausted. An exhausted budget is the caller's fatal error; nothing
// below it retries further.
func (c *Client) Notify(ctx context.Context, url string, payload datatypes.NotificationPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encoding notification: %w", err)
	}

	result, err := retry.Do(ctx, c.retry, func(ctx context.Context, attempt int) error {
		slog.Info("notifying evaluation endpoint", "attempt", attempt, "task", payload.Task)

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return retry.Permanent(fmt.Errorf("building notification request: %w", err))
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			observability.RecordNotifyAttempt("retry")
			return fmt.Errorf("posting notification: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode != http.StatusOK {
			observability.RecordNotifyAttempt("retry")
			return fmt.Errorf("notification rejected with status %d", resp.StatusCode)
		}
		observability.RecordNotifyAttempt("success")
		return nil
	})
	if err != nil {
		observability.RecordNotifyAttempt("exhausted")
		return fmt.Errorf("notifying %s after %d attempts: %w", url, result.Attempts, err)
	}

	slog.Info("notification delivered", "task", payload.Task, "attempts", result.Attempts)
	return nil
}
