// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package eligibility implements the dispatch-candidate oracle: given a
// schedule state and a workload, it enumerates the (job, parallelism)
// pairs that could legally be dispatched next under the non-preemptive
// priority rule.
//
// Candidate selection is a two-stage pipeline. PreCandidates computes, for
// every ready job and feasible parallelism level, the start and finish
// windows implied by the state. ApplyCeiling then keeps the pairs that can
// actually be next: a candidate must start no later than the point some
// job in the set is certainly forced to start (the work-conserving bound
// t_wc), and strictly before any higher-priority job in the set is
// certainly released. An idle-insertion policy slots between the two
// stages; dropping a job there both removes it from contention and
// excludes it from the bounds, which is exactly what permits the policy's
// non-work-conserving idle time.
package eligibility

import (
	"github.com/jontk/npsched/internal/interval"
	"github.com/jontk/npsched/internal/job"
	"github.com/jontk/npsched/internal/state"
	"github.com/jontk/npsched/internal/timemodel"
)

// Candidate is one (job, parallelism) pairing, along with the start and
// finish intervals the oracle computed for it.
type Candidate[T timemodel.Num] struct {
	JobIndex     int
	Parallelism  int
	Start        interval.Interval[T]
	Finish       interval.Interval[T]
	DeadlineMiss bool
}

// Oracle enumerates dispatch candidates over a fixed workload.
type Oracle[T timemodel.Num] struct {
	jobs []job.Job[T]
	clk  timemodel.Clock[T]
}

// New builds an Oracle over the given job vector (indices into this slice
// are the job indices used throughout the engine).
func New[T timemodel.Num](jobs []job.Job[T], clk timemodel.Clock[T]) Oracle[T] {
	return Oracle[T]{jobs: jobs, clk: clk}
}

// ready returns the indices of not-yet-scheduled jobs whose predecessors
// have all been scheduled in s.
func (o Oracle[T]) ready(s state.State[T]) []int {
	var out []int
	for i, j := range o.jobs {
		if !s.JobIncomplete(i) {
			continue
		}
		if !s.JobReady(j.Predecessors()) {
			continue
		}
		out = append(out, i)
	}
	return out
}

// readyWindow computes [ready_min, ready_max] for job i: the release
// window widened by the finish bounds of any already-scheduled
// predecessors.
func (o Oracle[T]) readyWindow(s state.State[T], i int) interval.Interval[T] {
	j := o.jobs[i]
	readyMin, readyMax := j.EarliestArrival(), j.LatestArrival()
	for _, p := range j.Predecessors().Members() {
		if fin, ok := s.PrecedenceFinish(p); ok {
			readyMin = timemodel.Max(readyMin, fin.From)
			readyMax = timemodel.Max(readyMax, fin.Until)
		}
	}
	return interval.New(readyMin, readyMax)
}

// PreCandidates computes, for every ready job and feasible parallelism
// level, the earliest/latest start and finish windows against the current
// core availability, before any eligibility cut. A pair whose latest start
// leaves too little room before the job's deadline carries the
// potential-deadline-miss flag.
func (o Oracle[T]) PreCandidates(s state.State[T]) []Candidate[T] {
	var out []Candidate[T]
	for _, i := range o.ready(s) {
		j := o.jobs[i]
		rw := o.readyWindow(s, i)
		for p := j.SMin(); p <= j.SMax(); p++ {
			avail := s.CoreAvailability(p, o.clk)
			if avail.From >= o.clk.Infinity {
				continue
			}
			est := timemodel.Max(rw.From, avail.From)
			lst := timemodel.Max(rw.Until, avail.Until)
			cost := j.Cost(p)
			out = append(out, Candidate[T]{
				JobIndex:     i,
				Parallelism:  p,
				Start:        interval.New(est, lst),
				Finish:       interval.New(est+cost.From, lst+cost.Until),
				DeadlineMiss: lst > j.Deadline()-j.LeastCost(p),
			})
		}
	}
	return out
}

// ApplyCeiling keeps the candidates that can be dispatched next under the
// non-preemptive priority rule, evaluated over the candidate set itself:
//
//   - est must not exceed t_wc, the smallest latest-start among the
//     candidates (no scheduler in the set idles past the point where some
//     job is certainly forced to start), and
//   - est must lie strictly before the earliest point a strictly
//     higher-priority candidate is certainly ready (at equality the
//     higher-priority job wins the contest).
func (o Oracle[T]) ApplyCeiling(s state.State[T], candidates []Candidate[T]) []Candidate[T] {
	if len(candidates) == 0 {
		return nil
	}

	// effLST per job: the earliest point at which that job could be
	// forced to start under some dispatch, across its parallelism levels.
	effLST := make(map[int]T, len(candidates))
	for _, c := range candidates {
		if cur, ok := effLST[c.JobIndex]; !ok || c.Start.Until < cur {
			effLST[c.JobIndex] = c.Start.Until
		}
	}

	twc := o.clk.Infinity
	for _, lst := range effLST {
		if lst < twc {
			twc = lst
		}
	}

	// readyMax per job: the point from which the job is certainly ready
	// to run (released and predecessors certainly finished).
	readyMax := make(map[int]T, len(candidates))
	for _, c := range candidates {
		if _, ok := readyMax[c.JobIndex]; !ok {
			readyMax[c.JobIndex] = o.readyWindow(s, c.JobIndex).Until
		}
	}

	var out []Candidate[T]
	for _, c := range candidates {
		if c.Start.From > twc {
			continue
		}

		// tHigh: earliest certain ready time among strictly
		// higher-priority candidate jobs.
		j := o.jobs[c.JobIndex]
		tHigh := o.clk.Infinity
		for k := range readyMax {
			if k == c.JobIndex {
				continue
			}
			if !o.jobs[k].HigherPriorityThan(j) {
				continue
			}
			if readyMax[k] < tHigh {
				tHigh = readyMax[k]
			}
		}
		if c.Start.From >= tHigh {
			continue
		}

		out = append(out, c)
	}
	return out
}

// Candidates runs the full pipeline with no idle-insertion policy: every
// pre-candidate surviving the eligibility cut.
func (o Oracle[T]) Candidates(s state.State[T]) []Candidate[T] {
	return o.ApplyCeiling(s, o.PreCandidates(s))
}
