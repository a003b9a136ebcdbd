// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ForgelineAI/forgeline/services/agent/config"
	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
	"github.com/ForgelineAI/forgeline/services/agent/generator"
	"github.com/ForgelineAI/forgeline/services/agent/observability"
	"github.com/ForgelineAI/forgeline/services/agent/publisher"
)

// ReviewTask is an issue-driven unit of work for the attempt loop.
type ReviewTask struct {
	// Repo is the repository (collection) holding the issue.
	Repo string

	// Issue is the number of the originating issue record.
	Issue int

	// Title is the issue title, used for commit and PR titles.
	Title string

	// Brief is the issue body driving generation.
	Brief string
}

// Loop drives up to MaxAttempts generate→publish→review cycles for one
// task. All attempts share one branch and at most one pull request; that
// cross-attempt identity is what distinguishes the loop from a stateless
// retry.
type Loop struct {
	gen      Generator
	pub      Publisher
	verdicts VerdictSource
	cfg      config.LoopConfig
}

// NewLoop wires an attempt loop from its collaborators.
func NewLoop(gen Generator, pub Publisher, verdicts VerdictSource, cfg config.LoopConfig) *Loop {
	return &Loop{gen: gen, pub: pub, verdicts: verdicts, cfg: cfg}
}

// Run executes the loop to a terminal outcome: Success on approval,
// Exhausted when the attempt budget runs out, Fatal when no progress is
// possible. It never blocks indefinitely — every wait inside is bounded.
func (l *Loop) Run(ctx context.Context, task ReviewTask) datatypes.TerminalOutcome {
	// Branch identity is derived once from the task and reused by every
	// attempt, so retries land on the same branch and the same PR.
	branch := datatypes.BranchName(task.Issue)

	var (
		attempts    []datatypes.Attempt
		pr          *publisher.PullRequest
		lastPublish *datatypes.PublishResult
		feedback    string
	)

	fatal := func(err error) datatypes.TerminalOutcome {
		observability.RecordLoopOutcome(datatypes.OutcomeFatal.String())
		slog.Error("attempt loop failed", "repo", task.Repo, "issue", task.Issue, "error", err)
		out := datatypes.TerminalOutcome{Status: datatypes.OutcomeFatal, Attempts: attempts, FinalPublish: lastPublish, Err: err}
		if pr != nil {
			out.ReviewURL = pr.HTMLURL
		}
		return out
	}

	for ordinal := 1; ordinal <= l.cfg.MaxAttempts; ordinal++ {
		slog.Info("starting attempt", "repo", task.Repo, "issue", task.Issue,
			"attempt", ordinal, "max", l.cfg.MaxAttempts)
		observability.RecordAttempt()

		// Give the reviewer time to react to the previous publish before
		// generating against its feedback.
		if ordinal > 1 {
			if err := sleep(ctx, l.cfg.SettleDelay); err != nil {
				return fatal(err)
			}
		}

		// Generate with the previous attempt's feedback; with none, the
		// prompt falls back to the original brief alone.
		artifact := l.gen.Generate(ctx, generator.Request{
			Brief:    task.Brief,
			Feedback: feedback,
		})

		attempt := datatypes.Attempt{
			Ordinal:   ordinal,
			Artifact:  artifact,
			Verdict:   datatypes.VerdictPending,
			StartedAt: time.Now(),
		}

		if ordinal == 1 {
			if err := l.pub.EnsureBranch(ctx, task.Repo, branch); err != nil {
				return fatal(fmt.Errorf("preparing branch %s: %w", branch, err))
			}
		}

		message := fmt.Sprintf("Fix Issue #%d (attempt %d): %s", task.Issue, ordinal, truncate(task.Title, 30))
		result, err := l.pub.PublishToBranch(ctx, task.Repo, branch, artifact, message)
		if result == nil {
			return fatal(fmt.Errorf("attempt %d publish: %w", ordinal, err))
		}
		if err != nil {
			slog.Warn("attempt published with per-file errors", "attempt", ordinal, "error", err)
		}
		attempt.Publish = result
		lastPublish = result

		// The review request is created exactly once and reused by every
		// later attempt.
		if pr == nil {
			title := fmt.Sprintf("Fix Issue #%d: %s", task.Issue, truncate(task.Title, 50))
			body := fmt.Sprintf("Automated change for issue #%d, branch `%s`.", task.Issue, branch)
			pr, err = l.pub.CreatePullRequest(ctx, task.Repo, branch, title, body)
			if err != nil {
				return fatal(fmt.Errorf("creating review request: %w", err))
			}

			// Review automation is itself asynchronous; give it a head
			// start before the first poll.
			if err := sleep(ctx, l.cfg.PropagationDelay); err != nil {
				return fatal(err)
			}
		}

		verdict, fb := l.pollVerdict(ctx, task.Repo, pr.Number)
		attempt.Verdict = verdict
		attempts = append(attempts, attempt)
		observability.RecordVerdict(string(verdict))

		switch verdict {
		case datatypes.VerdictApproved:
			slog.Info("change approved", "repo", task.Repo, "issue", task.Issue,
				"attempt", ordinal, "pr", pr.HTMLURL)
			observability.RecordLoopOutcome(datatypes.OutcomeSuccess.String())
			return datatypes.TerminalOutcome{
				Status:       datatypes.OutcomeSuccess,
				Attempts:     attempts,
				FinalPublish: result,
				ReviewURL:    pr.HTMLURL,
			}
		case datatypes.VerdictChangesRequested:
			feedback = fb
		case datatypes.VerdictError:
			slog.Warn("verdict source errored, advancing attempt", "attempt", ordinal)
			feedback = ""
		default:
			// Poll budget exhausted while PENDING: stagnation. Advance the
			// attempt rather than waiting forever.
			slog.Warn("verdict still pending after poll budget, advancing attempt", "attempt", ordinal)
			feedback = ""
		}

		if ctx.Err() != nil {
			return fatal(ctx.Err())
		}
	}

	slog.Warn("attempt budget exhausted without approval",
		"repo", task.Repo, "issue", task.Issue, "attempts", l.cfg.MaxAttempts)
	observability.RecordLoopOutcome(datatypes.OutcomeExhausted.String())

	l.leaveExhaustionNote(ctx, task, pr)

	out := datatypes.TerminalOutcome{
		Status:       datatypes.OutcomeExhausted,
		Attempts:     attempts,
		FinalPublish: lastPublish,
	}
	if pr != nil {
		out.ReviewURL = pr.HTMLURL
	}
	return out
}

// pollVerdict polls until a terminal verdict or the poll budget runs out,
// returning the last observed verdict and any reviewer feedback.
func (l *Loop) pollVerdict(ctx context.Context, repo string, prNumber int) (datatypes.Verdict, string) {
	verdict, feedback := datatypes.VerdictPending, ""

	for poll := 0; poll < l.cfg.MaxPolls; poll++ {
		if poll > 0 {
			if err := sleep(ctx, l.cfg.PollInterval); err != nil {
				return verdict, feedback
			}
		}

		verdict, feedback = l.verdicts.Poll(ctx, repo, prNumber)
		slog.Debug("polled verdict", "repo", repo, "pr", prNumber, "poll", poll, "verdict", verdict)
		if verdict.Terminal() {
			return verdict, feedback
		}
	}
	return verdict, feedback
}

// leaveExhaustionNote records the give-up reason on the originating
// issue. Best effort: failure to leave the note is logged, never fatal.
func (l *Loop) leaveExhaustionNote(ctx context.Context, task ReviewTask, pr *publisher.PullRequest) {
	note := fmt.Sprintf("## Agent stopped\nReached the limit of %d attempts without approval.", l.cfg.MaxAttempts)
	if pr != nil {
		note += fmt.Sprintf(" Last pull request: %s", pr.HTMLURL)
	}
	if err := l.pub.CreateIssueComment(ctx, task.Repo, task.Issue, note); err != nil {
		slog.Warn("could not leave exhaustion note", "repo", task.Repo, "issue", task.Issue, "error", err)
	}
}

// truncate shortens s to at most n runes so multi-byte titles stay
// valid UTF-8 in commit messages.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
