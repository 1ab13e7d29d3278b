// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package job defines the immutable job record that is the unit of
// dispatch throughout the rest of the engine.
package job

import (
	"errors"
	"fmt"

	"github.com/jontk/npsched/internal/indexset"
	"github.com/jontk/npsched/internal/interval"
	"github.com/jontk/npsched/internal/timemodel"
)

// ID identifies a job independently of its position in the workload
// vector; (Task, Job) pairs are expected to be unique within a workload.
type ID struct {
	Task uint64
	Job  uint64
}

func (id ID) String() string {
	return fmt.Sprintf("T%dJ%d", id.Task, id.Job)
}

// Errors returned by New when a job's fields violate the data-model
// invariants. Callers at the workload-parsing boundary wrap
// these into pkg/errors.AnalysisError values with the appropriate
// input-category error code.
var (
	ErrInvalidParallelism = errors.New("job: s_max must be >= s_min >= 1")
	ErrCostLengthMismatch = errors.New("job: len(costs) must equal s_max - s_min + 1")
	ErrNegativeCost       = errors.New("job: cost intervals must be non-negative")
)

// Job is an immutable real-time job: a release window, one cost interval
// per parallelism level, a deadline, a priority, and an identity. The
// hash key is precomputed at construction time.
type Job[T timemodel.Num] struct {
	id           ID
	arrival      interval.Interval[T]
	costs        []interval.Interval[T]
	sMin, sMax   int
	deadline     T
	priority     T
	predecessors indexset.Set
	hashKey      uint64
}

// New validates and constructs a Job. predecessors holds the indices (into
// the workload's job vector, not job IDs) of this job's precedence
// predecessors.
func New[T timemodel.Num](id ID, arrival interval.Interval[T], costs []interval.Interval[T], deadline, priority T, sMin, sMax int, predecessors indexset.Set) (Job[T], error) {
	if sMin < 1 || sMax < sMin {
		return Job[T]{}, ErrInvalidParallelism
	}
	if len(costs) != sMax-sMin+1 {
		return Job[T]{}, ErrCostLengthMismatch
	}
	var zero T
	for _, c := range costs {
		if c.From < zero {
			return Job[T]{}, ErrNegativeCost
		}
	}

	j := Job[T]{
		id:           id,
		arrival:      arrival,
		costs:        append([]interval.Interval[T](nil), costs...),
		sMin:         sMin,
		sMax:         sMax,
		deadline:     deadline,
		priority:     priority,
		predecessors: predecessors,
	}
	j.hashKey = computeHash(j)
	return j, nil
}

// NonMonotoneCosts reports whether the cost bounds fail to weakly decrease
// as parallelism grows. Parsers warn about this rather than reject it.
func (j Job[T]) NonMonotoneCosts() bool {
	for i := 1; i < len(j.costs); i++ {
		if j.costs[i-1].From < j.costs[i].From || j.costs[i-1].Until < j.costs[i].Until {
			return true
		}
	}
	return false
}

func (j Job[T]) ID() ID                           { return j.id }
func (j Job[T]) ArrivalWindow() interval.Interval[T] { return j.arrival }
func (j Job[T]) EarliestArrival() T               { return j.arrival.From }
func (j Job[T]) LatestArrival() T                 { return j.arrival.Until }
func (j Job[T]) Deadline() T                      { return j.deadline }
func (j Job[T]) Priority() T                      { return j.priority }
func (j Job[T]) SMin() int                        { return j.sMin }
func (j Job[T]) SMax() int                        { return j.sMax }
func (j Job[T]) Predecessors() indexset.Set       { return j.predecessors }
func (j Job[T]) HashKey() uint64                  { return j.hashKey }

// Cost returns the cost interval for p assigned processors.
func (j Job[T]) Cost(p int) interval.Interval[T] {
	return j.costs[p-j.sMin]
}

// LeastCost returns the best-case execution time for p processors.
func (j Job[T]) LeastCost(p int) T { return j.Cost(p).From }

// MaximalCost returns the worst-case execution time for p processors.
func (j Job[T]) MaximalCost(p int) T { return j.Cost(p).Until }

// HigherPriorityThan orders jobs by urgency: lower numeric
// priority wins, ties broken first by task id then by job id.
func (j Job[T]) HigherPriorityThan(other Job[T]) bool {
	if j.priority != other.priority {
		return j.priority < other.priority
	}
	if j.id.Task != other.id.Task {
		return j.id.Task < other.id.Task
	}
	return j.id.Job < other.id.Job
}

// PriorityAtLeastThatOf reports j.priority <= other.priority (j is at
// least as urgent).
func (j Job[T]) PriorityAtLeastThatOf(other Job[T]) bool {
	return j.priority <= other.priority
}

// PriorityExceeds reports whether j is strictly higher priority than the
// given numeric level.
func (j Job[T]) PriorityExceeds(level T) bool {
	return j.priority < level
}

// PriorityAtLeast reports whether j is at least as high priority as the
// given numeric level.
func (j Job[T]) PriorityAtLeast(level T) bool {
	return j.priority <= level
}

// ExceedsDeadline reports whether finishing at t is a genuine deadline
// miss under clk's tolerance.
func (j Job[T]) ExceedsDeadline(t T, clk timemodel.Clock[T]) bool {
	return clk.ExceedsDeadline(t, j.deadline)
}

// SchedulingWindow returns [earliest_arrival, deadline - epsilon], the
// inclusive window in which the job may legally start.
func (j Job[T]) SchedulingWindow(clk timemodel.Clock[T]) interval.Interval[T] {
	return interval.New(j.EarliestArrival(), j.deadline-clk.Epsilon)
}

func computeHash[T timemodel.Num](j Job[T]) uint64 {
	var costMin, costMax T
	for _, c := range j.costs {
		costMin += c.From
		costMax += c.Until
	}

	key := mix(uint64(int64(j.arrival.From)))
	key = (key << 4) ^ mixU(j.id.Task)
	key = (key << 4) ^ mix(uint64(int64(j.arrival.Until)))
	key = (key << 4) ^ mix(uint64(int64(costMin)))
	key = (key << 4) ^ mix(uint64(int64(j.deadline)))
	key = (key << 4) ^ mix(uint64(int64(costMax)))
	key = (key << 4) ^ mixU(j.id.Job)
	key = (key << 4) ^ mix(uint64(int64(j.priority)))
	key = (key << 4) ^ mixU(uint64(j.sMin))
	key = (key << 4) ^ mixU(uint64(j.sMax))
	return key
}

func mixU(x uint64) uint64 { return mix(x) }

// mix is the splitmix64 finalizer, used to turn an arbitrary field value
// into a well-distributed 64-bit hash contribution.
func mix(x uint64) uint64 {
	x ^= x >> 33
	x *= 0xff51afd7ed558ccd
	x ^= x >> 33
	x *= 0xc4ceb9fe1a85ec53
	x ^= x >> 33
	return x
}
