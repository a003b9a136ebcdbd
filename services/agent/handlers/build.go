// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers implements the HTTP surface of the agent service.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
	"github.com/ForgelineAI/forgeline/services/agent/observability"
	"github.com/ForgelineAI/forgeline/services/agent/worker"
)

// Submitter enqueues a task for background processing.
type Submitter interface {
	Submit(task *datatypes.Task) error
}

// HandleBuildRequest accepts a build request, validates it, and queues it
// for the pipeline. The response returns immediately; all slow work
// happens on the worker pool. Authentication (the shared secret) is done
// by middleware before this handler runs.
func HandleBuildRequest(pool Submitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req datatypes.BuildRequest
		if err := c.BindJSON(&req); err != nil {
			observability.RecordTaskRejected("validation")
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "detail": err.Error()})
			return
		}
		if err := req.Validate(); err != nil {
			observability.RecordTaskRejected("validation")
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		task := datatypes.NewTask(&req)
		if err := pool.Submit(task); err != nil {
			if errors.Is(err, worker.ErrQueueFull) {
				observability.RecordTaskRejected("queue_full")
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Server is busy, try again later."})
				return
			}
			slog.Error("could not queue build task", "task", task.ID, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to start processing."})
			return
		}

		observability.RecordTaskAccepted()
		slog.Info("build task queued", "task", task.ID, "round", task.Round, "email", task.Email)
		c.JSON(http.StatusOK, gin.H{"message": "Request received and is being processed."})
	}
}

// HandleStatus reports service liveness and usage on the same path the
// build requests use, so a plain GET doubles as a smoke test.
func HandleStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":   "ok",
			"message":  "LLM Code Deployment API is live and ready.",
			"endpoint": "/api-endpoint",
			"usage":    "Send a POST request with JSON payload containing: email, secret, task, round, nonce, brief, evaluation_url",
		})
	}
}

// HealthCheck is the readiness probe target.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}
