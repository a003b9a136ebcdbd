// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package agent assembles the build agent service: HTTP ingress, the
// worker pool, and the build pipeline with its generator, publisher,
// and notifier collaborators.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/ForgelineAI/forgeline/services/agent/config"
	"github.com/ForgelineAI/forgeline/services/agent/engine"
	"github.com/ForgelineAI/forgeline/services/agent/generator"
	"github.com/ForgelineAI/forgeline/services/agent/notifier"
	"github.com/ForgelineAI/forgeline/services/agent/publisher"
	"github.com/ForgelineAI/forgeline/services/agent/review"
	"github.com/ForgelineAI/forgeline/services/agent/routes"
	"github.com/ForgelineAI/forgeline/services/agent/worker"
)

// Service is the running agent: an HTTP server backed by the worker pool.
type Service interface {
	// Run starts the HTTP server and blocks until it stops.
	Run() error

	// Router exposes the configured Gin engine for integration tests.
	Router() *gin.Engine

	// Loop returns the attempt loop wired with the service's
	// collaborators, for issue-driven one-shot runs.
	Loop() *engine.Loop

	// Shutdown stops the worker pool and flushes telemetry.
	Shutdown(ctx context.Context)
}

type service struct {
	cfg           config.Config
	router        *gin.Engine
	pool          *worker.Pool
	loop          *engine.Loop
	tracerCleanup func(context.Context)
}

// New constructs a fully wired service from configuration. The LLM
// backend, publisher, notifier, pipeline, worker pool, and routes are
// all assembled here; nothing else mutates the wiring afterwards.
func New(cfg config.Config) (Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	s := &service{cfg: cfg}

	cleanup, err := initTracer(cfg)
	if err != nil {
		// Telemetry is optional: a missing collector must not keep the
		// agent from serving.
		slog.Warn("tracer unavailable, continuing without telemetry", "error", err)
	} else {
		s.tracerCleanup = cleanup
	}

	llm, err := newLLM(cfg.LLM)
	if err != nil {
		return nil, fmt.Errorf("initializing LLM backend: %w", err)
	}

	gen := generator.New(llm, cfg.LLM.Timeout)
	pub := publisher.NewClient(cfg.GitHub)
	notify := notifier.New(cfg.Build)
	pipeline := engine.NewPipeline(gen, pub, notify, cfg.Build)
	s.loop = engine.NewLoop(gen, pub, &review.PRPoller{Client: pub}, cfg.Loop)

	s.pool = worker.NewPool(pipeline, cfg.Workers, cfg.QueueSize)
	s.pool.Start(context.Background())

	s.router = gin.Default()
	s.router.Use(otelgin.Middleware("forgeline-agent"))
	routes.SetupRoutes(s.router, s.pool, cfg.SharedSecret)

	return s, nil
}

func (s *service) Run() error {
	slog.Info("starting agent server", "port", s.cfg.Port,
		"workers", s.cfg.Workers, "llm_backend", s.cfg.LLM.Backend)
	return s.router.Run(":" + s.cfg.Port)
}

func (s *service) Router() *gin.Engine {
	return s.router
}

func (s *service) Loop() *engine.Loop {
	return s.loop
}

func (s *service) Shutdown(ctx context.Context) {
	s.pool.Stop()
	if s.tracerCleanup != nil {
		s.tracerCleanup(ctx)
	}
}

// newLLM selects the generation backend. Gemini is the default;
// "openai" covers any chat-completions compatible endpoint (DeepSeek,
// vLLM) via the base URL override.
func newLLM(cfg config.LLMConfig) (generator.LLM, error) {
	switch cfg.Backend {
	case "gemini", "":
		slog.Info("Using Gemini LLM backend", "model", cfg.Model)
		return generator.NewGeminiLLM(context.Background(), cfg.APIKey, cfg.Model)
	case "openai", "deepseek":
		slog.Info("Using OpenAI-compatible LLM backend", "model", cfg.Model, "base_url", cfg.BaseURL)
		return generator.NewOpenAILLM(cfg.APIKey, cfg.Model, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown LLM backend %q", cfg.Backend)
	}
}

// initTracer wires the OTLP trace exporter and registers the global
// tracer provider. The returned function flushes and shuts it down.
func initTracer(cfg config.Config) (func(context.Context), error) {
	ctx := context.Background()

	endpoint := cfg.OTelEndpoint
	if endpoint == "" {
		endpoint = "forgeline-otel-collector:4317"
	}
	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("forgeline-agent")))
	if err != nil {
		return nil, err
	}
	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := exporter.Shutdown(ctx); err != nil {
			slog.Error("failed to shutdown OTLP exporter", "error", err)
		}
	}, nil
}
