// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package datatypes

import "time"

// Verdict is the external judgment of a review request. The loop treats
// it as authoritative and never infers it from artifact content.
type Verdict string

const (
	VerdictPending          Verdict = "PENDING"
	VerdictApproved         Verdict = "APPROVED"
	VerdictChangesRequested Verdict = "CHANGES_REQUESTED"
	VerdictError            Verdict = "ERROR"
)

// Terminal reports whether the verdict ends polling for an attempt.
func (v Verdict) Terminal() bool {
	return v == VerdictApproved || v == VerdictChangesRequested || v == VerdictError
}

// Attempt records one generate→publish→review cycle. Attempts are
// append-only: created once per loop iteration and never mutated.
type Attempt struct {
	// Ordinal is 1-based within the loop's retry budget.
	Ordinal int

	// Artifact is the artifact published in this attempt.
	Artifact *Artifact

	// Publish identifies what was pushed, nil if publishing failed.
	Publish *PublishResult

	// Verdict is the last verdict observed before the attempt ended.
	Verdict Verdict

	// StartedAt is when the attempt began.
	StartedAt time.Time
}

// OutcomeStatus classifies how an attempt loop terminated.
type OutcomeStatus int

const (
	// OutcomeSuccess means a published attempt was approved.
	OutcomeSuccess OutcomeStatus = iota

	// OutcomeExhausted means the attempt budget ran out without approval.
	OutcomeExhausted

	// OutcomeFatal means the loop could not make progress at all.
	OutcomeFatal
)

// String returns the log-friendly name of the status.
func (s OutcomeStatus) String() string {
	switch s {
	case OutcomeSuccess:
		return "success"
	case OutcomeExhausted:
		return "exhausted"
	case OutcomeFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// TerminalOutcome is the result of a whole attempt loop run.
type TerminalOutcome struct {
	Status OutcomeStatus

	// Attempts is the ordered, append-only attempt history of this run.
	Attempts []Attempt

	// FinalPublish is the identifier of the last successful publish:
	// the approved change on success, the last pushed attempt on
	// exhaustion. Nil on fatal outcomes that never published.
	FinalPublish *PublishResult

	// ReviewURL is the review request gating the change, if one was made.
	ReviewURL string

	// Err carries the cause for fatal outcomes.
	Err error
}
