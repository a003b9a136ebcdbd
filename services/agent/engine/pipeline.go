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

	"github.com/ForgelineAI/forgeline/services/agent/config"
	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
	"github.com/ForgelineAI/forgeline/services/agent/generator"
	"github.com/ForgelineAI/forgeline/services/agent/observability"
)

// Pipeline executes one build task end to end, off the request path:
// fetch prior context, generate, publish, expose, settle, notify.
type Pipeline struct {
	gen    Generator
	pub    Publisher
	notify Notifier
	cfg    config.BuildConfig
}

// NewPipeline wires a pipeline from its collaborators.
func NewPipeline(gen Generator, pub Publisher, notify Notifier, cfg config.BuildConfig) *Pipeline {
	return &Pipeline{gen: gen, pub: pub, notify: notify, cfg: cfg}
}

// Execute runs the pipeline for one task. Steps are strict sequence
// points; recoverable failures are translated into data along the way
// (fallback artifact, skipped prior context) and only truly unrecoverable
// conditions surface as the returned error. The caller logs it — by the
// time Execute runs, the original HTTP request has long been answered.
//
// Execute never panics outward: a panic in any step is recovered and
// reported as the pipeline error so one bad task cannot take down the
// worker that is hosting it.
func (p *Pipeline) Execute(ctx context.Context, task *datatypes.Task) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pipeline panic: %v", r)
		}
		if err != nil {
			observability.RecordPipeline("error")
			slog.Error("build pipeline failed", "task", task.ID, "round", task.Round, "error", err)
		} else {
			observability.RecordPipeline("success")
		}
	}()

	slog.Info("processing build task", "task", task.ID, "round", task.Round, "trace_id", task.TraceID)

	// Step 1: for revision rounds, try to read the previously published
	// primary file. Any failure means generating from scratch, not aborting.
	prior := ""
	if task.Round > 1 {
		content, ferr := p.pub.GetFile(ctx, task.ID, datatypes.PrimaryFile, "")
		if ferr != nil {
			slog.Warn("could not fetch prior artifact, generating from scratch",
				"task", task.ID, "error", ferr)
		} else {
			prior = content
			slog.Info("found prior artifact to revise", "task", task.ID)
		}
	}

	// Step 2: generate. Total — generator failures yield a fallback artifact.
	artifact := p.gen.Generate(ctx, generator.Request{
		Brief:        task.Brief,
		Attachments:  task.Attachments,
		PriorPrimary: prior,
	})

	// Step 3: publish. The publisher initializes a brand-new repository
	// with the first file before any update-style write.
	message := fmt.Sprintf("feat: Round %d update", task.Round)
	result, perr := p.pub.Publish(ctx, task.ID, artifact, message)
	if result == nil {
		return fmt.Errorf("publishing artifact: %w", perr)
	}
	if perr != nil {
		// Partial publish: some files landed, the rest are in this batch
		// report. The published subset is still observable, keep going.
		slog.Warn("publish completed with per-file errors", "task", task.ID, "error", perr)
	}

	// Step 4: expose. Already-enabled hosting is success.
	if err := p.pub.EnablePages(ctx, task.ID); err != nil {
		return fmt.Errorf("enabling hosting: %w", err)
	}

	// Step 5: settle. A deploy heuristic, not a readiness probe.
	slog.Info("waiting for hosting deploy", "task", task.ID, "settle", p.cfg.HostingSettle)
	if err := sleep(ctx, p.cfg.HostingSettle); err != nil {
		return fmt.Errorf("interrupted during hosting settle: %w", err)
	}

	// Step 6: notify with bounded backoff. Exhausting the budget is the
	// pipeline's fatal error; the task is not retried automatically.
	payload := datatypes.NotificationPayload{
		Email:     task.Email,
		Task:      task.ID,
		Round:     task.Round,
		Nonce:     task.Nonce,
		RepoURL:   result.RepoURL,
		CommitSHA: result.CommitSHA,
		PagesURL:  p.pub.PagesURL(task.ID),
	}
	if err := p.notify.Notify(ctx, task.EvaluationURL, payload); err != nil {
		return err
	}

	slog.Info("build task completed", "task", task.ID, "round", task.Round,
		"repo_url", result.RepoURL, "commit", result.CommitSHA)
	return nil
}
