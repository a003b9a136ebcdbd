// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package review

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
	"github.com/ForgelineAI/forgeline/services/agent/publisher"
)

func report(verdict string) string {
	return "## AI Reviewer Agent Report\n\nFindings: ...\n\nVerdict: " + verdict
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		comments []publisher.Comment
		want     datatypes.Verdict
	}{
		{
			name:     "no comments is pending",
			comments: nil,
			want:     datatypes.VerdictPending,
		},
		{
			name: "chatter without a report is pending",
			comments: []publisher.Comment{
				{Body: "looks interesting"},
				{Body: "CI passed"},
			},
			want: datatypes.VerdictPending,
		},
		{
			name:     "approve",
			comments: []publisher.Comment{{Body: report("APPROVE")}},
			want:     datatypes.VerdictApproved,
		},
		{
			name:     "request changes",
			comments: []publisher.Comment{{Body: report("REQUEST_CHANGES")}},
			want:     datatypes.VerdictChangesRequested,
		},
		{
			// Verdict classification invariant: malformed verdict text
			// must never classify as APPROVED.
			name:     "report with unknown verdict is pending",
			comments: []publisher.Comment{{Body: report("SHIP_IT")}},
			want:     datatypes.VerdictPending,
		},
		{
			name:     "report with no verdict line is pending",
			comments: []publisher.Comment{{Body: "## AI Reviewer Agent Report\n\nstill analyzing"}},
			want:     datatypes.VerdictPending,
		},
		{
			name: "latest report wins",
			comments: []publisher.Comment{
				{Body: report("REQUEST_CHANGES")},
				{Body: "pushed a fix"},
				{Body: report("APPROVE")},
			},
			want: datatypes.VerdictApproved,
		},
		{
			name: "lowercase verdict is not approval",
			comments: []publisher.Comment{
				{Body: "## AI Reviewer Agent Report\n\nverdict: approve"},
			},
			want: datatypes.VerdictPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, _ := Classify(tt.comments)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestClassify_ReturnsReportAsFeedback(t *testing.T) {
	comments := []publisher.Comment{{Body: report("REQUEST_CHANGES")}}

	verdict, feedback := Classify(comments)

	assert.Equal(t, datatypes.VerdictChangesRequested, verdict)
	assert.Contains(t, feedback, "Findings")
}

func TestClassify_NoReportHasNoFeedback(t *testing.T) {
	_, feedback := Classify([]publisher.Comment{{Body: "nice"}})
	assert.Empty(t, feedback)
}
