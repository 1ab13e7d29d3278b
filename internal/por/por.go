// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package por implements partial-order reduction: it builds, validates and
// summarizes closed reduction sets, groups of pending jobs whose internal
// dispatch order is irrelevant to every future state, so the engine can
// replace their permutations with a single atomic super-transition.
package por

import (
	"sort"

	"github.com/jontk/npsched/internal/indexset"
	"github.com/jontk/npsched/internal/interval"
	"github.com/jontk/npsched/internal/job"
	"github.com/jontk/npsched/internal/timemodel"
)

// Set is a candidate reduction set over a fixed workload. It caches the
// derived quantities (latest busy time, latest idle time, per-job latest
// start times) that both the closure test and the atomic dispatch need,
// recomputing them whenever an interfering job is absorbed.
type Set[T timemodel.Num] struct {
	clk      timemodel.Clock[T]
	workload []job.Job[T]
	avail    interval.Interval[T]

	members []int // job indices, insertion order
	inSet   indexset.Set

	byLatestArrival   []int
	byEarliestArrival []int
	byMaxCost         []int

	latestBusyTime T
	latestIdleTime T
	hasIdleTime    bool
	latestStart    map[int]T
	maxPriority    T
	key            uint64

	interferingAdded int
}

// NewSet seeds a reduction set with the given job indices, starting from
// the processor availability interval avail of the state being reduced.
func NewSet[T timemodel.Num](clk timemodel.Clock[T], workload []job.Job[T], avail interval.Interval[T], seed []int) *Set[T] {
	s := &Set[T]{
		clk:      clk,
		workload: workload,
		avail:    avail,
	}
	for _, idx := range seed {
		s.members = append(s.members, idx)
		s.inSet = s.inSet.Add(idx)
		s.key ^= workload[idx].HashKey()
	}
	s.recompute()
	return s
}

// Members returns the job indices currently in the set, in insertion order.
func (s *Set[T]) Members() []int { return s.members }

// Contains reports whether job index idx is in the set.
func (s *Set[T]) Contains(idx int) bool { return s.inSet.Contains(idx) }

// Key returns the XOR of the members' hash keys.
func (s *Set[T]) Key() uint64 { return s.key }

// LatestBusyTime returns the latest point by which every member has
// certainly finished.
func (s *Set[T]) LatestBusyTime() T { return s.latestBusyTime }

// NumInterferingAdded returns how many jobs were absorbed beyond the seed.
func (s *Set[T]) NumInterferingAdded() int { return s.interferingAdded }

// LatestStartTime returns the latest time member idx could be forced to
// start, accounting for higher-priority interference within the set.
func (s *Set[T]) LatestStartTime(idx int) T { return s.latestStart[idx] }

// EarliestFinishTime returns the earliest time member idx could complete.
func (s *Set[T]) EarliestFinishTime(idx int) T {
	j := s.workload[idx]
	return timemodel.Max(s.avail.From, j.EarliestArrival()) + j.LeastCost(j.SMin())
}

// LatestFinishTime returns the latest time member idx could complete.
func (s *Set[T]) LatestFinishTime(idx int) T {
	j := s.workload[idx]
	return s.latestStart[idx] + j.MaximalCost(j.SMin())
}

// HasPotentialDeadlineMiss reports whether some member's latest finish time
// exceeds its deadline, in which case the reduction must be abandoned and
// the miss rediscovered by ordinary single-step dispatch.
func (s *Set[T]) HasPotentialDeadlineMiss() bool {
	for _, idx := range s.members {
		j := s.workload[idx]
		if j.ExceedsDeadline(s.LatestFinishTime(idx), s.clk) {
			return true
		}
	}
	return false
}

// Add absorbs an interfering job into the set and recomputes the derived
// quantities.
func (s *Set[T]) Add(idx int) {
	s.interferingAdded++
	s.members = append(s.members, idx)
	s.inSet = s.inSet.Add(idx)
	s.key ^= s.workload[idx].HashKey()
	s.recompute()
}

// CanInterfere reports whether the pending job idx, not in the set, could
// interleave with some member under a feasible timeline: it may arrive
// during a potential idle instant, or win the priority contest against a
// member before that member's latest start. Jobs whose precedence
// constraints cannot be satisfied inside scheduled ∪ set, and jobs whose
// predecessors cover the whole set, are excluded.
func (s *Set[T]) CanInterfere(idx int, scheduled indexset.Set) bool {
	if s.inSet.Contains(idx) {
		return false
	}
	if !s.satisfiesPrecedence(idx, scheduled) {
		return false
	}

	j := s.workload[idx]

	if j.EarliestArrival() <= s.latestIdleTime && s.hasIdleTime {
		return true
	}

	maxArrival := s.workload[s.byLatestArrival[len(s.byLatestArrival)-1]].LatestArrival()
	if !j.PriorityExceeds(s.maxPriority) && j.EarliestArrival() >= maxArrival {
		return false
	}

	for _, mi := range s.members {
		m := s.workload[mi]
		if j.EarliestArrival() <= s.latestStart[mi] && j.HigherPriorityThan(m) {
			return true
		}
	}
	return false
}

// satisfiesPrecedence checks that idx's predecessors are all contained in
// scheduled ∪ set, and that they do not cover the entire set (a job forced
// to run after every member cannot interfere with their ordering).
func (s *Set[T]) satisfiesPrecedence(idx int, scheduled indexset.Set) bool {
	preds := s.workload[idx].Predecessors()
	if preds.Len() == 0 {
		return true
	}
	return scheduled.Union(s.inSet).Includes(preds) && !preds.Includes(s.inSet)
}

func (s *Set[T]) recompute() {
	s.byLatestArrival = s.sortedMembers(func(a, b job.Job[T]) bool {
		return a.LatestArrival() < b.LatestArrival()
	})
	s.byEarliestArrival = s.sortedMembers(func(a, b job.Job[T]) bool {
		return a.EarliestArrival() < b.EarliestArrival()
	})
	s.byMaxCost = s.sortedMembers(func(a, b job.Job[T]) bool {
		return a.MaximalCost(a.SMin()) < b.MaximalCost(b.SMin())
	})

	s.latestBusyTime = s.computeLatestBusyTime()
	s.latestIdleTime, s.hasIdleTime = s.computeLatestIdleTime()
	s.latestStart = s.computeLatestStartTimes()
	s.maxPriority = s.computeMaxPriority()
}

func (s *Set[T]) sortedMembers(less func(a, b job.Job[T]) bool) []int {
	out := append([]int(nil), s.members...)
	sort.SliceStable(out, func(i, j int) bool {
		return less(s.workload[out[i]], s.workload[out[j]])
	})
	return out
}

// computeLatestBusyTime chains the members in latest-arrival order: each
// starts no later than max(chain, r_max) and runs for its worst case.
func (s *Set[T]) computeLatestBusyTime() T {
	t := s.avail.Until
	for _, idx := range s.byLatestArrival {
		j := s.workload[idx]
		t = timemodel.Max(t, j.LatestArrival()) + j.MaximalCost(j.SMin())
	}
	return t
}

// computeLatestIdleTime finds the latest instant strictly before some
// member's latest arrival at which every member arriving earlier could
// already have completed, i.e. the latest potential idle instant inside
// the set's busy window. The second return value is false when no idle
// instant can occur.
func (s *Set[T]) computeLatestIdleTime() (T, bool) {
	var zero T

	anyAfter := false
	for _, idx := range s.byLatestArrival {
		if s.workload[idx].LatestArrival() > s.avail.From {
			anyAfter = true
			break
		}
	}
	if !anyAfter {
		return zero, false
	}

	idleJob := -1
	for _, ii := range s.byLatestArrival {
		i := s.workload[ii]

		// Earliest time the set of all members with r_max < r_i_max can
		// complete.
		t := s.avail.From
		for _, ji := range s.byEarliestArrival {
			j := s.workload[ji]
			if j.LatestArrival() < i.LatestArrival() {
				t = timemodel.Max(t, j.EarliestArrival()) + j.LeastCost(j.SMin())
			}
			if t >= i.LatestArrival() {
				break
			}
		}

		if t < i.LatestArrival() {
			if idleJob < 0 || i.LatestArrival() > s.workload[idleJob].LatestArrival() {
				idleJob = ii
			}
		}
	}

	if idleJob < 0 {
		return zero, false
	}
	first := s.workload[s.byLatestArrival[0]]
	if s.workload[idleJob].LatestArrival() == first.LatestArrival() {
		return zero, false
	}
	return s.workload[idleJob].LatestArrival() - s.clk.Epsilon, true
}

func (s *Set[T]) computeLatestStartTimes() map[int]T {
	prio := s.effectivePriorities()
	out := make(map[int]T, len(s.members))
	for _, idx := range s.members {
		si := s.computeChainBound(idx, prio)
		desc := s.descendantCostBound(idx)
		out[idx] = timemodel.Min(si, desc)
	}
	return out
}

// effectivePriorities propagates priority across precedence within the
// set: a member's effective priority is the numeric maximum (i.e. lowest
// urgency) of its own and its in-set predecessors', so a high-priority
// successor cannot be assumed to preempt the chain feeding it.
func (s *Set[T]) effectivePriorities() map[int]T {
	out := make(map[int]T, len(s.members))
	for _, idx := range s.members {
		p := s.workload[idx].Priority()
		for _, pred := range s.workload[idx].Predecessors().Members() {
			if !s.inSet.Contains(pred) {
				continue
			}
			p = timemodel.Max(p, s.workload[pred].Priority())
		}
		out[idx] = p
	}
	return out
}

// computeChainBound derives member i's latest start by first charging the
// largest lower-priority blocking cost, then walking the earliest-arrival
// order and accumulating every effectively higher-or-equal-priority member
// that could arrive before i gets to start.
func (s *Set[T]) computeChainBound(i int, prio map[int]T) T {
	ji := s.workload[i]

	var zero T
	blocking := zero
	for _, k := range s.members {
		if k == i {
			continue
		}
		jk := s.workload[k]
		if ji.PriorityExceeds(prio[k]) {
			c := jk.MaximalCost(jk.SMin())
			if c > blocking {
				blocking = c
			}
		}
	}
	if blocking > zero {
		blocking -= s.clk.Epsilon
	}

	lst := timemodel.Max(s.avail.Until, ji.LatestArrival()+blocking)
	for _, k := range s.byEarliestArrival {
		if k == i {
			continue
		}
		jk := s.workload[k]
		if jk.EarliestArrival() <= lst && !ji.PriorityExceeds(prio[k]) {
			lst += jk.MaximalCost(jk.SMin())
		} else if jk.EarliestArrival() > lst {
			break
		}
	}
	return lst
}

// descendantCostBound is the second latest-start bound: the latest busy
// time minus i's own worst case and the worst cases of all of i's in-set
// descendants, which must all fit after i.
func (s *Set[T]) descendantCostBound(i int) T {
	ji := s.workload[i]
	bound := s.latestBusyTime - ji.MaximalCost(ji.SMin())

	visited := indexset.Of(i)
	queue := []int{i}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, k := range s.members {
			if visited.Contains(k) {
				continue
			}
			if s.workload[k].Predecessors().Contains(cur) {
				visited = visited.Add(k)
				queue = append(queue, k)
				jk := s.workload[k]
				bound -= jk.MaximalCost(jk.SMin())
			}
		}
	}
	return bound
}

func (s *Set[T]) computeMaxPriority() T {
	max := s.workload[s.members[0]].Priority()
	for _, idx := range s.members[1:] {
		if p := s.workload[idx].Priority(); p > max {
			max = p
		}
	}
	return max
}

// Build grows a reduction set from the eligible seed until closure: as
// long as some pending job outside the set can interfere, it is absorbed
// and the derived times recomputed. It returns ok=false when the closed
// set would contain a potential deadline miss, in which case the caller
// falls back to single-step dispatch. pending lists the not-yet-scheduled
// job indices of the state being reduced.
func Build[T timemodel.Num](clk timemodel.Clock[T], workload []job.Job[T], avail interval.Interval[T], seed, pending []int, scheduled indexset.Set) (*Set[T], bool) {
	set := NewSet(clk, workload, avail, seed)
	for {
		grew := false
		for _, idx := range pending {
			if set.CanInterfere(idx, scheduled) {
				set.Add(idx)
				grew = true
			}
		}
		if !grew {
			break
		}
	}
	if set.HasPotentialDeadlineMiss() {
		return set, false
	}
	return set, true
}
