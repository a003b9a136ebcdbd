// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package review reads reviewer reports from a pull request and turns
// them into verdicts.
//
// The reviewer automation posts a comment containing the report marker
// and an explicit verdict line. Classification is deliberately strict:
// anything that is not an exact recognized verdict marker counts as
// PENDING, never as approval.
package review

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
	"github.com/ForgelineAI/forgeline/services/agent/publisher"
)

const (
	// ReportMarker identifies reviewer report comments among all PR chatter.
	ReportMarker = "AI Reviewer Agent Report"

	markerApprove        = "Verdict: APPROVE"
	markerRequestChanges = "Verdict: REQUEST_CHANGES"
)

// Classify scans comments from newest to oldest for a reviewer report and
// returns its verdict plus the report body as feedback for the next
// attempt. No report, or a report without a recognized verdict line,
// classifies as PENDING.
func Classify(comments []publisher.Comment) (datatypes.Verdict, string) {
	for i := len(comments) - 1; i >= 0; i-- {
		body := comments[i].Body
		if !strings.Contains(body, ReportMarker) {
			continue
		}
		switch {
		case strings.Contains(body, markerApprove):
			return datatypes.VerdictApproved, body
		case strings.Contains(body, markerRequestChanges):
			return datatypes.VerdictChangesRequested, body
		default:
			// A report we cannot parse is not a terminal signal.
			return datatypes.VerdictPending, body
		}
	}
	return datatypes.VerdictPending, ""
}

// PRPoller sources verdicts from pull request comments.
type PRPoller struct {
	Client *publisher.Client
}

// Poll returns the current verdict for the review request, non-blocking.
// Comment-listing failures are reported as ERROR so the loop can decide
// to advance rather than treat the attempt as judged.
func (p *PRPoller) Poll(ctx context.Context, repo string, prNumber int) (datatypes.Verdict, string) {
	comments, err := p.Client.ListIssueComments(ctx, repo, prNumber)
	if err != nil {
		slog.Warn("verdict poll failed", "repo", repo, "pr", prNumber, "error", err)
		return datatypes.VerdictError, ""
	}
	return Classify(comments)
}
