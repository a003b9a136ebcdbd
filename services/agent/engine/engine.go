// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package engine contains the two orchestration cores of the agent:
// the single-shot build pipeline (generate → publish → expose → notify)
// and the bounded attempt loop that drives repeated generate/publish
// cycles against one review request until approval or exhaustion.
//
// Collaborators are injected as interfaces so tests substitute fakes;
// every wait is a configuration value and every outbound call carries
// the caller's context.
package engine

import (
	"context"
	"time"

	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
	"github.com/ForgelineAI/forgeline/services/agent/generator"
	"github.com/ForgelineAI/forgeline/services/agent/publisher"
)

// Generator produces artifacts. It is total: implementations never fail,
// they substitute a fallback artifact instead.
type Generator interface {
	Generate(ctx context.Context, req generator.Request) *datatypes.Artifact
}

// Publisher is the repository surface the engine writes to. Publish-style
// calls are idempotent: republishing identical content must not error.
type Publisher interface {
	Publish(ctx context.Context, repo string, artifact *datatypes.Artifact, message string) (*datatypes.PublishResult, error)
	PublishToBranch(ctx context.Context, repo, branch string, artifact *datatypes.Artifact, message string) (*datatypes.PublishResult, error)
	EnsureBranch(ctx context.Context, repo, branch string) error
	CreatePullRequest(ctx context.Context, repo, branch, title, body string) (*publisher.PullRequest, error)
	EnablePages(ctx context.Context, repo string) error
	GetFile(ctx context.Context, repo, path, ref string) (string, error)
	CreateIssueComment(ctx context.Context, repo string, number int, body string) error
	PagesURL(repo string) string
}

// VerdictSource reports the current judgment of a review request,
// non-blocking, PENDING when no terminal signal exists yet. The second
// return value is reviewer feedback usable as context for the next
// attempt (may be empty).
type VerdictSource interface {
	Poll(ctx context.Context, repo string, prNumber int) (datatypes.Verdict, string)
}

// Notifier delivers the final result payload at least once.
type Notifier interface {
	Notify(ctx context.Context, url string, payload datatypes.NotificationPayload) error
}

// sleep waits for d or until the context is cancelled. A zero or
// negative duration returns immediately so tests can shrink every delay.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
