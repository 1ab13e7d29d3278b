// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package response accumulates per-job response-time intervals across every
// state the exploration reaches.
package response

import (
	"sync/atomic"

	"github.com/jontk/npsched/internal/interval"
	"github.com/jontk/npsched/internal/timemodel"
)

// Collector maintains one [BCRT, WCRT] interval per job, widened by
// interval-union on every successful dispatch. Updates are lock-free: each
// slot is an atomic pointer swapped via a compare-and-swap retry loop, so
// concurrent expansion workers never serialize on a mutex here.
type Collector[T timemodel.Num] struct {
	slots []atomic.Pointer[interval.Interval[T]]
}

// NewCollector returns a Collector sized for numJobs jobs, all slots empty.
func NewCollector[T timemodel.Num](numJobs int) *Collector[T] {
	return &Collector[T]{slots: make([]atomic.Pointer[interval.Interval[T]], numJobs)}
}

// Update widens job jobIndex's response-time interval to include rt.
func (c *Collector[T]) Update(jobIndex int, rt interval.Interval[T]) {
	slot := &c.slots[jobIndex]
	for {
		old := slot.Load()
		next := rt
		if old != nil {
			next = old.Union(rt)
			if next.Equal(*old) {
				return
			}
		}
		if slot.CompareAndSwap(old, &next) {
			return
		}
	}
}

// Get returns the accumulated response-time interval for jobIndex, and false
// if the job was never dispatched in any reached state.
func (c *Collector[T]) Get(jobIndex int) (interval.Interval[T], bool) {
	p := c.slots[jobIndex].Load()
	if p == nil {
		return interval.Interval[T]{}, false
	}
	return *p, true
}

// Len returns the number of job slots.
func (c *Collector[T]) Len() int { return len(c.slots) }
