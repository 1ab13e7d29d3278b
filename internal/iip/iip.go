// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package iip implements Idle-Insertion Policies: pluggable filters over
// the eligibility oracle's candidate set that reserve processor time for
// not-yet-released, higher-priority jobs at the cost of work-conservation.
package iip

import (
	"github.com/jontk/npsched/internal/eligibility"
	"github.com/jontk/npsched/internal/job"
	"github.com/jontk/npsched/internal/state"
	"github.com/jontk/npsched/internal/timemodel"
)

// Policy is the strategy interface every IIP implements: a filter over a
// state and the oracle's raw candidate set, returning the subset of
// candidates the policy still permits.
type Policy[T timemodel.Num] interface {
	Filter(s state.State[T], jobs []job.Job[T], candidates []eligibility.Candidate[T]) []eligibility.Candidate[T]
	Name() string
}

// Null is the identity policy: every oracle-produced candidate is
// permitted, recovering plain work-conserving scheduling.
type Null[T timemodel.Num] struct{}

func (Null[T]) Name() string { return "null" }

func (Null[T]) Filter(_ state.State[T], _ []job.Job[T], candidates []eligibility.Candidate[T]) []eligibility.Candidate[T] {
	return candidates
}

// notYetReleased returns the indices of unscheduled jobs whose release is
// certainly in the future relative to the state's earliest processor
// availability: the jobs an idle-insertion policy may reserve time for.
func notYetReleased[T timemodel.Num](s state.State[T], jobs []job.Job[T]) []int {
	now := s.CoreAvailability(1, timemodel.Clock[T]{}).From
	var out []int
	for i, j := range jobs {
		if s.JobIncomplete(i) && j.EarliestArrival() > now {
			out = append(out, i)
		}
	}
	return out
}

// PrecautiousRM protects every not-yet-released higher-priority job h: a
// candidate is dropped when its latest finish would push h past the
// latest point h can still start and meet its deadline (deadline minus
// worst-case cost), provided a safer alternative exists among the other
// candidates.
type PrecautiousRM[T timemodel.Num] struct{}

func (PrecautiousRM[T]) Name() string { return "precautious-rm" }

func (PrecautiousRM[T]) Filter(s state.State[T], jobs []job.Job[T], candidates []eligibility.Candidate[T]) []eligibility.Candidate[T] {
	if len(candidates) <= 1 {
		return candidates
	}

	pending := notYetReleased(s, jobs)

	safe := func(c eligibility.Candidate[T]) bool {
		for _, h := range pending {
			if h == c.JobIndex {
				continue
			}
			hi := jobs[h]
			if !hi.HigherPriorityThan(jobs[c.JobIndex]) {
				continue
			}
			if c.Finish.Until > hi.Deadline()-hi.MaximalCost(hi.SMin()) {
				return false
			}
		}
		return true
	}

	var safeCandidates []eligibility.Candidate[T]
	for _, c := range candidates {
		if safe(c) {
			safeCandidates = append(safeCandidates, c)
		}
	}
	if len(safeCandidates) > 0 {
		return safeCandidates
	}
	// No safer alternative exists for any candidate: fall back to the
	// unfiltered set rather than deadlocking the exploration.
	return candidates
}

// CriticalWindowEDF protects every not-yet-released job h, whose critical
// window opens at release_max(h): a candidate is permitted only if its
// latest finish time does not run into any such window. When no candidate
// can avoid every window, ties are broken by nearest deadline.
type CriticalWindowEDF[T timemodel.Num] struct{}

func (CriticalWindowEDF[T]) Name() string { return "critical-window-edf" }

func (CriticalWindowEDF[T]) Filter(s state.State[T], jobs []job.Job[T], candidates []eligibility.Candidate[T]) []eligibility.Candidate[T] {
	if len(candidates) <= 1 {
		return candidates
	}

	pending := notYetReleased(s, jobs)

	violates := func(c eligibility.Candidate[T]) bool {
		for _, h := range pending {
			if h == c.JobIndex {
				continue
			}
			if c.Finish.Until > jobs[h].LatestArrival() {
				return true
			}
		}
		return false
	}

	var safe []eligibility.Candidate[T]
	for _, c := range candidates {
		if !violates(c) {
			safe = append(safe, c)
		}
	}
	if len(safe) > 0 {
		return safe
	}

	// No candidate avoids every critical window: break ties by nearest
	// deadline among the original candidates.
	best := candidates[0]
	for _, c := range candidates[1:] {
		if jobs[c.JobIndex].Deadline() < jobs[best.JobIndex].Deadline() {
			best = c
		}
	}
	return []eligibility.Candidate[T]{best}
}
