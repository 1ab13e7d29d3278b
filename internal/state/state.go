// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package state implements the immutable, over-approximate schedule state
// that is the vertex payload of the exploration graph, along with the
// dispatch transition and merge operation defined over it.
package state

import (
	"sort"

	"github.com/jontk/npsched/internal/indexset"
	"github.com/jontk/npsched/internal/interval"
	"github.com/jontk/npsched/internal/timemodel"
)

// CertainJob records a job known to still be running at a state's latest
// dispatch point: its finish-time interval and the parallelism it was
// dispatched with.
type CertainJob[T timemodel.Num] struct {
	Index       int
	Finish      interval.Interval[T]
	Parallelism int
}

// State is the immutable over-approximation of the multiprocessor
// timeline after some prefix of jobs has been dispatched.
type State[T timemodel.Num] struct {
	scheduled    indexset.Set
	numScheduled int
	coreAvail    []interval.Interval[T]
	certainJobs  []CertainJob[T] // sorted by Index
	finishLog    []CertainJob[T] // every dispatched job's finish interval, sorted by Index, never pruned
	lookupKey    uint64
}

// Initial returns the empty state for a system with the given number of
// processors: nothing dispatched, every processor available at time zero.
func Initial[T timemodel.Num](numProcessors int) State[T] {
	avail := make([]interval.Interval[T], numProcessors)
	for i := range avail {
		avail[i] = interval.Degenerate[T](0)
	}
	return State[T]{coreAvail: avail}
}

func (s State[T]) Scheduled() indexset.Set        { return s.scheduled }
func (s State[T]) NumScheduled() int              { return s.numScheduled }
func (s State[T]) LookupKey() uint64              { return s.lookupKey }
func (s State[T]) CertainJobs() []CertainJob[T]   { return s.certainJobs }
func (s State[T]) NumProcessors() int             { return len(s.coreAvail) }

// CoreAvailability returns the availability interval of the p-th earliest
// available processor (1-indexed). If p exceeds the number of processors
// it returns infinity: a job asking for more processors than exist can
// never start.
func (s State[T]) CoreAvailability(p int, clk timemodel.Clock[T]) interval.Interval[T] {
	if p < 1 || p > len(s.coreAvail) {
		return interval.Degenerate(clk.Infinity)
	}
	return s.coreAvail[p-1]
}

// FinishTimes looks up the finish-time interval of a job known to be
// certainly running, if any.
func (s State[T]) FinishTimes(jobIndex int) (interval.Interval[T], bool) {
	for _, cj := range s.certainJobs {
		if cj.Index == jobIndex {
			return cj.Finish, true
		}
	}
	return interval.Interval[T]{}, false
}

// PrecedenceFinish looks up the finish-time interval recorded for a
// dispatched job, for use by the eligibility oracle's ready-time
// computation: unlike FinishTimes/certain_jobs, this log is never pruned,
// so a predecessor's finish bound remains available long after it has
// stopped being "certainly running".
func (s State[T]) PrecedenceFinish(jobIndex int) (interval.Interval[T], bool) {
	i := sort.Search(len(s.finishLog), func(i int) bool { return s.finishLog[i].Index >= jobIndex })
	if i < len(s.finishLog) && s.finishLog[i].Index == jobIndex {
		return s.finishLog[i].Finish, true
	}
	return interval.Interval[T]{}, false
}

// JobIncomplete reports whether jobIndex has not yet been dispatched in
// this state.
func (s State[T]) JobIncomplete(jobIndex int) bool {
	return !s.scheduled.Contains(jobIndex)
}

// JobReady reports whether every predecessor in the set has already been
// scheduled in this state.
func (s State[T]) JobReady(predecessors indexset.Set) bool {
	return s.scheduled.Includes(predecessors)
}

// Dispatch constructs the successor state produced by dispatching the job
// at jobIndex (hash hashKey, predecessor set predecessors) onto p
// processors, with observed [start.From, start.Until] as the start
// interval and [finish.From, finish.Until] as the finish interval. The
// gang formulation is the general case; non-gang dispatch is the
// s_min=s_max=1 specialization. Only certain_jobs entries whose
// finish-interval minimum is strictly greater than j's latest start time
// survive.
func (s State[T]) Dispatch(jobIndex int, hashKey uint64, predecessors indexset.Set, p int, start, finish interval.Interval[T]) State[T] {
	est, lst := start.From, start.Until
	eft, lft := finish.From, finish.Until

	newCertain := make([]CertainJob[T], 0, len(s.certainJobs)+1)
	addedJ := false
	sumPx := 0
	for _, cj := range s.certainJobs {
		if predecessors.Contains(cj.Index) {
			sumPx += cj.Parallelism
			continue
		}
		if cj.Finish.From > lst {
			if !addedJ && cj.Index > jobIndex {
				newCertain = append(newCertain, CertainJob[T]{Index: jobIndex, Finish: finish, Parallelism: p})
				addedJ = true
			}
			newCertain = append(newCertain, cj)
		}
	}
	if !addedJ {
		newCertain = append(newCertain, CertainJob[T]{Index: jobIndex, Finish: finish, Parallelism: p})
	}

	mPred := p
	if sumPx > mPred {
		mPred = sumPx
	}
	clampCount := mPred - p

	M := len(s.coreAvail)
	newAvail := make([]interval.Interval[T], 0, M)
	for i := 0; i < p; i++ {
		newAvail = append(newAvail, interval.New(eft, lft))
	}
	for i, old := range s.coreAvail[p:] {
		from := timemodel.Max(est, old.From)
		var until T
		if i < clampCount {
			until = timemodel.Min(lst, timemodel.Max(est, old.Until))
		} else {
			until = timemodel.Max(est, old.Until)
		}
		newAvail = append(newAvail, interval.New(from, until))
	}
	sort.Slice(newAvail, func(i, j int) bool {
		if newAvail[i].From != newAvail[j].From {
			return newAvail[i].From < newAvail[j].From
		}
		return newAvail[i].Until < newAvail[j].Until
	})

	newLog := make([]CertainJob[T], len(s.finishLog), len(s.finishLog)+1)
	copy(newLog, s.finishLog)
	at := sort.Search(len(newLog), func(i int) bool { return newLog[i].Index >= jobIndex })
	newLog = append(newLog, CertainJob[T]{})
	copy(newLog[at+1:], newLog[at:len(newLog)-1])
	newLog[at] = CertainJob[T]{Index: jobIndex, Finish: finish, Parallelism: p}

	return State[T]{
		scheduled:    s.scheduled.Add(jobIndex),
		numScheduled: s.numScheduled + 1,
		coreAvail:    newAvail,
		certainJobs:  newCertain,
		finishLog:    newLog,
		lookupKey:    s.lookupKey ^ hashKey,
	}
}

// DispatchReduction constructs the successor produced by atomically
// dispatching a closed reduction set: every entry's job joins the scheduled
// set, every processor becomes available exactly at the set's latest busy
// time, and nothing is left certainly running. entries must be sorted by
// job index; keyXor is the XOR of the members' hash keys.
func (s State[T]) DispatchReduction(entries []CertainJob[T], keyXor uint64, latestBusyTime T) State[T] {
	scheduled := s.scheduled
	for _, e := range entries {
		scheduled = scheduled.Add(e.Index)
	}

	avail := make([]interval.Interval[T], len(s.coreAvail))
	for i := range avail {
		avail[i] = interval.Degenerate(latestBusyTime)
	}

	newLog := make([]CertainJob[T], 0, len(s.finishLog)+len(entries))
	i, j := 0, 0
	for i < len(s.finishLog) || j < len(entries) {
		switch {
		case j >= len(entries) || (i < len(s.finishLog) && s.finishLog[i].Index < entries[j].Index):
			newLog = append(newLog, s.finishLog[i])
			i++
		default:
			newLog = append(newLog, entries[j])
			j++
		}
	}

	return State[T]{
		scheduled:    scheduled,
		numScheduled: s.numScheduled + len(entries),
		coreAvail:    avail,
		certainJobs:  nil,
		finishLog:    newLog,
		lookupKey:    s.lookupKey ^ keyXor,
	}
}

// CanMergeWith reports whether s and other share the same equivalence
// identity (scheduled set + lookup key) and have, for every processor,
// intersecting availability intervals.
func (s State[T]) CanMergeWith(other State[T]) bool {
	if s.lookupKey != other.lookupKey {
		return false
	}
	if !s.scheduled.Equal(other.scheduled) {
		return false
	}
	if len(s.coreAvail) != len(other.coreAvail) {
		panic("state: internal invariant violation: core_avail length mismatch across merge candidates")
	}
	for i := range s.coreAvail {
		if !s.coreAvail[i].Intersects(other.coreAvail[i]) {
			return false
		}
	}
	return true
}

// Merge fuses s and other: interval-wise union on core_avail, and a keyed
// outer-intersection on certain_jobs (jobs present on both sides survive
// with unioned finish times and the minimum of the two parallelism
// assignments; jobs present on only one side are dropped, since they are
// no longer certainly running in the merged over-approximation).
func (s State[T]) Merge(other State[T]) State[T] {
	avail := make([]interval.Interval[T], len(s.coreAvail))
	for i := range avail {
		avail[i] = s.coreAvail[i].Union(other.coreAvail[i])
	}

	var merged []CertainJob[T]
	i, j := 0, 0
	for i < len(s.certainJobs) && j < len(other.certainJobs) {
		a, b := s.certainJobs[i], other.certainJobs[j]
		switch {
		case a.Index == b.Index:
			merged = append(merged, CertainJob[T]{
				Index:       a.Index,
				Finish:      a.Finish.Union(b.Finish),
				Parallelism: minInt(a.Parallelism, b.Parallelism),
			})
			i++
			j++
		case a.Index < b.Index:
			i++
		default:
			j++
		}
	}

	// s and other have equal Scheduled sets (enforced by CanMergeWith), so
	// finishLog carries identical index keys on both sides in the same
	// order; only the finish intervals themselves may differ.
	mergedLog := make([]CertainJob[T], len(s.finishLog))
	for i := range mergedLog {
		mergedLog[i] = CertainJob[T]{
			Index:       s.finishLog[i].Index,
			Finish:      s.finishLog[i].Finish.Union(other.finishLog[i].Finish),
			Parallelism: minInt(s.finishLog[i].Parallelism, other.finishLog[i].Parallelism),
		}
	}

	return State[T]{
		scheduled:    s.scheduled,
		numScheduled: s.numScheduled,
		coreAvail:    avail,
		certainJobs:  merged,
		finishLog:    mergedLog,
		lookupKey:    s.lookupKey,
	}
}

// TryMerge attempts to merge other into s, returning the merged state and
// true on success, or the zero State and false if the two are not
// mergeable.
func (s State[T]) TryMerge(other State[T]) (State[T], bool) {
	if !s.CanMergeWith(other) {
		return State[T]{}, false
	}
	return s.Merge(other), true
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
