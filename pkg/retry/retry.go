// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package retry provides bounded retry with exponential backoff.
//
// It is shared by the outbound clients (evaluation notifier, repository
// publisher) that must tolerate transient network failures without ever
// retrying forever. Every retry sequence has a hard attempt ceiling and
// every wait is cancellable through the context.
package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

// ErrInvalidConfig is returned by Config.Validate for unusable settings.
var ErrInvalidConfig = errors.New("retry: invalid config")

// Config configures retry behavior with exponential backoff.
type Config struct {
	// MaxAttempts is the maximum number of attempts (including initial).
	// Default: 5
	MaxAttempts int

	// InitialBackoff is the wait duration after the first failed attempt.
	// Default: 1s
	InitialBackoff time.Duration

	// MaxBackoff is the maximum wait duration between attempts.
	// Default: 30s
	MaxBackoff time.Duration

	// BackoffFactor is the multiplier applied to the backoff after each
	// failed attempt. Default: 2.0
	BackoffFactor float64

	// JitterFactor is the maximum jitter as a fraction of the backoff (0-1).
	// Zero disables jitter, which keeps the delay sequence deterministic.
	JitterFactor float64
}

// DefaultConfig returns the backoff policy used for outbound notifications:
// five attempts with delays of 1s, 2s, 4s and 8s between them.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    5,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		BackoffFactor:  2.0,
		JitterFactor:   0,
	}
}

// Validate checks if the retry configuration is valid.
func (c Config) Validate() error {
	if c.MaxAttempts < 1 {
		return ErrInvalidConfig
	}
	if c.InitialBackoff <= 0 {
		return ErrInvalidConfig
	}
	if c.MaxBackoff < c.InitialBackoff {
		return ErrInvalidConfig
	}
	if c.BackoffFactor < 1.0 {
		return ErrInvalidConfig
	}
	return nil
}

// Result contains the outcome of a retry operation.
type Result struct {
	// Attempts is the number of attempts made.
	Attempts int

	// TotalDuration is the total time spent including waits.
	TotalDuration time.Duration

	// LastError is the error from the last attempt (nil if successful).
	LastError error
}

// Func is a function that can be retried. It should return nil on success.
// Wrap the returned error with Permanent to stop retrying early.
type Func func(ctx context.Context, attempt int) error

// permanentError marks an error that must not be retried.
type permanentError struct {
	err error
}

func (p *permanentError) Error() string { return p.err.Error() }
func (p *permanentError) Unwrap() error { return p.err }

// Permanent wraps err so that Do returns immediately instead of retrying.
// Returns nil if err is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// Do executes fn with exponential backoff until it succeeds, returns a
// permanent error, the context is cancelled, or MaxAttempts is reached.
//
// Inputs:
//   - ctx: Context for cancellation. Must not be nil.
//   - config: Retry configuration.
//   - fn: The function to execute and potentially retry.
//
// Outputs:
//   - Result: Statistics about the retry operation.
//   - error: The last error if all attempts failed, nil on success.
//
// There is no wait after the final attempt: a five-attempt sequence with a
// 1s initial backoff and factor 2 observes delays of exactly 1s, 2s, 4s, 8s
// between the calls (plus jitter if configured).
func Do(ctx context.Context, config Config, fn Func) (Result, error) {
	start := time.Now()
	result := Result{}

	backoff := config.InitialBackoff

	for attempt := 1; attempt <= config.MaxAttempts; attempt++ {
		result.Attempts = attempt

		// Check context before attempting
		if err := ctx.Err(); err != nil {
			result.LastError = err
			result.TotalDuration = time.Since(start)
			return result, err
		}

		err := fn(ctx, attempt)
		if err == nil {
			result.TotalDuration = time.Since(start)
			return result, nil
		}

		var perm *permanentError
		if errors.As(err, &perm) {
			result.LastError = perm.err
			result.TotalDuration = time.Since(start)
			return result, perm.err
		}

		result.LastError = err

		// Don't wait after the last attempt
		if attempt == config.MaxAttempts {
			break
		}

		waitTime := withJitter(backoff, config.JitterFactor)

		select {
		case <-ctx.Done():
			result.LastError = ctx.Err()
			result.TotalDuration = time.Since(start)
			return result, ctx.Err()
		case <-time.After(waitTime):
		}

		backoff = nextBackoff(backoff, config.BackoffFactor, config.MaxBackoff)
	}

	result.TotalDuration = time.Since(start)
	return result, result.LastError
}

// withJitter applies random jitter to the base backoff.
// The result falls in [base * (1-jitter), base * (1+jitter)].
func withJitter(base time.Duration, jitterFactor float64) time.Duration {
	if jitterFactor <= 0 {
		return base
	}

	jitter := (rand.Float64()*2 - 1) * jitterFactor
	return time.Duration(float64(base) * (1.0 + jitter))
}

// nextBackoff calculates the next backoff value.
func nextBackoff(current time.Duration, factor float64, max time.Duration) time.Duration {
	next := time.Duration(float64(current) * factor)
	if next > max {
		return max
	}
	return next
}
