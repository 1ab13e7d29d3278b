// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package pool provides the bounded worker pool used for parallel frontier
// expansion
package pool

import (
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jontk/npsched/pkg/logging"
)

// ExpansionPool manages a fixed set of worker goroutines that expand
// frontier states. Work is submitted in per-depth batches: RunBatch blocks
// until every task of the batch has completed, giving the engine its
// cross-depth barrier.
type ExpansionPool struct {
	config  *PoolConfig
	logger  logging.Logger
	tasks   chan task
	workers sync.WaitGroup

	started   atomic.Bool
	closed    atomic.Bool
	submitted int64
	completed int64
	batches   int64
	createdAt time.Time
}

type task struct {
	fn    func()
	batch *sync.WaitGroup
}

// PoolConfig holds configuration for the expansion pool
type PoolConfig struct {
	// Workers is the number of worker goroutines
	Workers int

	// QueueSize is the buffered capacity of the task queue
	QueueSize int
}

// DefaultPoolConfig returns a pool configuration sized for the local machine
func DefaultPoolConfig() *PoolConfig {
	return &PoolConfig{
		Workers:   runtime.NumCPU(),
		QueueSize: 1024,
	}
}

// NewExpansionPool creates a new expansion pool
func NewExpansionPool(config *PoolConfig, logger logging.Logger) *ExpansionPool {
	if config == nil {
		config = DefaultPoolConfig()
	}
	if config.Workers < 1 {
		config.Workers = 1
	}
	if config.QueueSize < 1 {
		config.QueueSize = 1
	}
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	return &ExpansionPool{
		config:    config,
		logger:    logger,
		tasks:     make(chan task, config.QueueSize),
		createdAt: time.Now(),
	}
}

// Start launches the worker goroutines. Calling Start more than once is a
// no-op.
func (p *ExpansionPool) Start() {
	if !p.started.CompareAndSwap(false, true) {
		return
	}

	for i := 0; i < p.config.Workers; i++ {
		p.workers.Add(1)
		go p.worker()
	}

	p.logger.Debug("expansion pool started", "workers", p.config.Workers)
}

// worker drains the task queue until the pool is closed
func (p *ExpansionPool) worker() {
	defer p.workers.Done()

	for t := range p.tasks {
		t.fn()
		atomic.AddInt64(&p.completed, 1)
		t.batch.Done()
	}
}

// RunBatch submits one depth's expansion tasks and blocks until all of
// them have completed. Tasks submitted by a batch must not themselves call
// RunBatch.
func (p *ExpansionPool) RunBatch(tasks []func()) {
	if len(tasks) == 0 {
		return
	}
	p.Start()

	var batch sync.WaitGroup
	batch.Add(len(tasks))
	atomic.AddInt64(&p.submitted, int64(len(tasks)))
	atomic.AddInt64(&p.batches, 1)

	for _, fn := range tasks {
		p.tasks <- task{fn: fn, batch: &batch}
	}
	batch.Wait()
}

// Close stops the workers after the queue drains. The pool cannot be
// reused afterwards.
func (p *ExpansionPool) Close() {
	if !p.closed.CompareAndSwap(false, true) {
		return
	}
	if p.started.Load() {
		close(p.tasks)
		p.workers.Wait()
	}
	p.logger.Debug("expansion pool closed",
		"completed", atomic.LoadInt64(&p.completed),
		"uptime", time.Since(p.createdAt).String(),
	)
}

// Workers returns the configured worker count.
func (p *ExpansionPool) Workers() int {
	return p.config.Workers
}

// Stats returns statistics about the pool
func (p *ExpansionPool) Stats() PoolStats {
	return PoolStats{
		Workers:        p.config.Workers,
		TasksSubmitted: atomic.LoadInt64(&p.submitted),
		TasksCompleted: atomic.LoadInt64(&p.completed),
		Batches:        atomic.LoadInt64(&p.batches),
		CreatedAt:      p.createdAt,
	}
}

// PoolStats contains statistics about the expansion pool
type PoolStats struct {
	Workers        int
	TasksSubmitted int64
	TasksCompleted int64
	Batches        int64
	CreatedAt      time.Time
}
