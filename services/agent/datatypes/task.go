// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes provides data structures for the agent service.
//
// This file contains the inbound build request and the immutable Task
// record derived from it. Artifact and publish types live in artifact.go,
// attempt bookkeeping in attempt.go.
package datatypes

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// MaxBriefBytes is the maximum size of a task brief.
	// Oversized briefs are rejected at ingress rather than truncated.
	MaxBriefBytes = 64 * 1024 // 64KB

	// MaxAttachments is the maximum number of attachments per request.
	MaxAttachments = 16
)

// =============================================================================
// Inbound Request
// =============================================================================

// Attachment is a named data-URI blob supplied with a build request.
// The URL field holds a "data:<mime>[;base64],<payload>" value which may
// encode text or binary content.
type Attachment struct {
	Name string `json:"name" binding:"required"`
	URL  string `json:"url" binding:"required"`
}

// BuildRequest is the JSON body accepted by POST /api-endpoint.
//
// The secret field is checked by the auth middleware against the
// server-held expectation before the handler ever sees the request.
// Round is 1 for the initial build and >1 for revision rounds.
type BuildRequest struct {
	Email         string       `json:"email" binding:"required,email"`
	Secret        string       `json:"secret" binding:"required"`
	Task          string       `json:"task" binding:"required,taskid"`
	Round         int          `json:"round" binding:"required,gte=1"`
	Nonce         string       `json:"nonce" binding:"required"`
	Brief         string       `json:"brief" binding:"required"`
	EvaluationURL string       `json:"evaluation_url" binding:"required,url"`
	Attachments   []Attachment `json:"attachments" binding:"omitempty,dive"`
}

// Validate applies checks that gin binding tags cannot express. The
// task identifier charset is already enforced by the taskid binding
// rule in binding.go.
func (r *BuildRequest) Validate() error {
	if len(r.Brief) > MaxBriefBytes {
		return fmt.Errorf("brief exceeds %d bytes", MaxBriefBytes)
	}
	if len(r.Attachments) > MaxAttachments {
		return fmt.Errorf("too many attachments: %d exceeds the limit of %d", len(r.Attachments), MaxAttachments)
	}
	return nil
}

// =============================================================================
// Task
// =============================================================================

// Task is the immutable unit of work dispatched to the worker pool.
// One Task triggers exactly one build pipeline execution; it is discarded
// once the pipeline terminates.
type Task struct {
	// ID is the task identifier, also used as the target collection
	// (repository) name. Derived identity such as branch names must be
	// computed from ID so every attempt for this task shares them.
	ID string

	// Email identifies the requester and is echoed in the notification.
	Email string

	// Round is the build round, >= 1. Rounds above 1 revise the
	// previously published artifact.
	Round int

	// Nonce is the correlation nonce echoed back to the evaluation server.
	Nonce string

	// Brief is the free-text build instruction.
	Brief string

	// EvaluationURL is the notification target for the final result.
	EvaluationURL string

	// Attachments are optional reference blobs for the generator.
	Attachments []Attachment

	// TraceID correlates every log line of this task's background
	// processing. Assigned at acceptance, never from the client.
	TraceID string

	// AcceptedAt records when the request passed validation.
	AcceptedAt time.Time
}

// NewTask builds the immutable Task record from a validated request.
func NewTask(r *BuildRequest) *Task {
	return &Task{
		ID:            r.Task,
		Email:         r.Email,
		Round:         r.Round,
		Nonce:         r.Nonce,
		Brief:         r.Brief,
		EvaluationURL: r.EvaluationURL,
		Attachments:   r.Attachments,
		TraceID:       uuid.NewString(),
		AcceptedAt:    time.Now(),
	}
}

// BranchName derives the deterministic work branch for an issue-driven
// attempt loop. All attempts for the same issue reuse this branch.
func BranchName(issueNumber int) string {
	return fmt.Sprintf("agent/issue-%d", issueNumber)
}
