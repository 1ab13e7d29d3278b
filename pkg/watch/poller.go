// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package watch provides polling-based progress monitoring for
// long-running explorations.
package watch

import (
	"context"
	"time"

	"github.com/jontk/npsched/pkg/metrics"
)

// DefaultPollInterval is the default polling interval for progress watches
const DefaultPollInterval = 1 * time.Second

// ProgressEvent is one observation of the engine's statistics
type ProgressEvent struct {
	// Stats is the snapshot taken at Timestamp
	Stats *metrics.Stats

	// StatesDelta is the number of states created since the previous event
	StatesDelta int64

	// Initial marks the baseline event emitted before the first interval
	Initial bool

	Timestamp time.Time
}

// ProgressPoller periodically samples a metrics collector and emits an
// event whenever the exploration has made progress
type ProgressPoller struct {
	statsFunc    func() *metrics.Stats
	pollInterval time.Duration
	bufferSize   int
	lastStates   int64
}

// NewProgressPoller creates a new progress poller over a stats source
func NewProgressPoller(statsFunc func() *metrics.Stats) *ProgressPoller {
	return &ProgressPoller{
		statsFunc:    statsFunc,
		pollInterval: DefaultPollInterval,
		bufferSize:   100,
	}
}

// WithPollInterval sets a custom poll interval
func (p *ProgressPoller) WithPollInterval(interval time.Duration) *ProgressPoller {
	p.pollInterval = interval
	return p
}

// WithBufferSize sets a custom buffer size for the event channel
func (p *ProgressPoller) WithBufferSize(size int) *ProgressPoller {
	p.bufferSize = size
	return p
}

// Watch starts watching for exploration progress
func (p *ProgressPoller) Watch(ctx context.Context) (<-chan ProgressEvent, error) {
	eventChan := make(chan ProgressEvent, p.bufferSize)

	go p.pollLoop(ctx, eventChan)

	return eventChan, nil
}

// pollLoop is the main polling loop
func (p *ProgressPoller) pollLoop(ctx context.Context, eventChan chan<- ProgressEvent) {
	defer close(eventChan)

	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	// Perform initial poll to establish baseline
	p.performPoll(ctx, eventChan, true)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.performPoll(ctx, eventChan, false)
		}
	}
}

// performPoll executes a single poll operation
func (p *ProgressPoller) performPoll(ctx context.Context, eventChan chan<- ProgressEvent, isInitial bool) {
	stats := p.statsFunc()
	if stats == nil {
		return
	}

	delta := stats.TotalStatesCreated - p.lastStates
	p.lastStates = stats.TotalStatesCreated

	// Emit the baseline unconditionally, later events only on progress
	if !isInitial && delta == 0 {
		return
	}

	event := ProgressEvent{
		Stats:       stats,
		StatesDelta: delta,
		Initial:     isInitial,
		Timestamp:   time.Now(),
	}

	select {
	case eventChan <- event:
	case <-ctx.Done():
	default:
		// Drop the event rather than stall the poll loop on a full buffer
	}
}
