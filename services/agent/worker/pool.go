// Copyright (C) 2025 Forgeline AI (dev@forgeline.dev)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package worker runs queued build tasks on a fixed pool of goroutines,
// decoupling HTTP ingress from pipeline execution. The queue is bounded;
// a full queue rejects new work instead of blocking the request path.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ForgelineAI/forgeline/services/agent/datatypes"
	"github.com/ForgelineAI/forgeline/services/agent/observability"
)

// ErrQueueFull is returned by Submit when the queue has no capacity.
var ErrQueueFull = errors.New("worker queue is full")

// ErrStopped is returned by Submit after the pool has shut down.
var ErrStopped = errors.New("worker pool is stopped")

// Executor processes one task to completion. Implementations own their
// error handling; the pool only logs what comes back.
type Executor interface {
	Execute(ctx context.Context, task *datatypes.Task) error
}

// Pool is a bounded task queue drained by a fixed number of workers.
type Pool struct {
	exec    Executor
	workers int
	queue   chan *datatypes.Task

	mu      sync.Mutex
	stopped bool

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewPool creates a pool with the given worker count and queue capacity.
// Counts below one are clamped to one.
func NewPool(exec Executor, workers, queueSize int) *Pool {
	if workers < 1 {
		workers = 1
	}
	if queueSize < 1 {
		queueSize = 1
	}
	return &Pool{
		exec:    exec,
		workers: workers,
		queue:   make(chan *datatypes.Task, queueSize),
	}
}

// Start launches the workers. Tasks submitted before Start sit in the
// queue until a worker picks them up.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.run(ctx, i)
	}
	slog.Info("worker pool started", "workers", p.workers, "queue_capacity", cap(p.queue))
}

// Submit enqueues a task without blocking. Returns ErrQueueFull when the
// queue is at capacity and ErrStopped after shutdown.
func (p *Pool) Submit(task *datatypes.Task) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return ErrStopped
	}
	select {
	case p.queue <- task:
		observability.SetQueueDepth(len(p.queue))
		return nil
	default:
		return ErrQueueFull
	}
}

// Depth reports the number of queued, not-yet-started tasks.
func (p *Pool) Depth() int {
	return len(p.queue)
}

// Stop prevents new submissions, cancels in-flight work, and waits for
// the workers to exit.
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.queue)
	p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	slog.Info("worker pool stopped")
}

func (p *Pool) run(ctx context.Context, id int) {
	defer p.wg.Done()
	for task := range p.queue {
		observability.SetQueueDepth(len(p.queue))
		if ctx.Err() != nil {
			slog.Warn("dropping queued task on shutdown", "worker", id, "task", task.ID)
			continue
		}
		if err := p.exec.Execute(ctx, task); err != nil {
			// The executor already classified and recorded the failure;
			// the pool just notes which worker carried it.
			slog.Error("task execution failed", "worker", id, "task", task.ID, "error", err)
		}
	}
}
