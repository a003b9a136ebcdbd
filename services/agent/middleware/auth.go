// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package middleware provides HTTP middleware for the agent service.
//
// # Authentication Flow
//
// Build requests authenticate with a shared secret carried in the JSON
// body rather than a header, so the middleware peeks at the body,
// verifies the secret in constant time, and restores the body for the
// handler's own binding.
//
//	Request
//	   │
//	   ▼
//	SharedSecret
//	   │
//	   ├─► Read body (bounded)
//	   │
//	   ├─► Compare "secret" field, constant time
//	   │
//	   └─► Restore body, continue to handler
package middleware

import (
	"bytes"
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ForgelineAI/forgeline/services/agent/observability"
)

// maxAuthBodyBytes bounds how much of a request the middleware will
// buffer while looking for the secret. Large enough for the biggest
// legitimate build request.
const maxAuthBodyBytes = 10 << 20 // 10 MiB

// secretEnvelope is the minimal shape needed to authenticate; the full
// request is bound later by the handler.
type secretEnvelope struct {
	Secret string `json:"secret"`
}

// SharedSecret rejects requests whose body-carried secret does not match
// the configured one. The comparison is constant time. The body is
// replaced after reading so downstream binding sees the original bytes.
func SharedSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxAuthBodyBytes))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "could not read request body"})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))

		var env secretEnvelope
		if err := json.Unmarshal(body, &env); err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "request body is not valid JSON"})
			return
		}

		if subtle.ConstantTimeCompare([]byte(env.Secret), []byte(secret)) != 1 {
			slog.Warn("rejected request with bad secret", "path", c.Request.URL.Path, "remote", c.ClientIP())
			observability.RecordTaskRejected("auth")
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Invalid secret"})
			return
		}

		c.Next()
	}
}
