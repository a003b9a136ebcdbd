// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ForgelineAI/forgeline/services/agent/handlers"
	"github.com/ForgelineAI/forgeline/services/agent/middleware"
)

// SetupRoutes registers the agent's HTTP surface. POST on the build
// endpoint is secret-gated; the GET alias and probes are open.
func SetupRoutes(router *gin.Engine, pool handlers.Submitter, sharedSecret string) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/api-endpoint", handlers.HandleStatus())
	router.POST("/api-endpoint", middleware.SharedSecret(sharedSecret), handlers.HandleBuildRequest(pool))
}
