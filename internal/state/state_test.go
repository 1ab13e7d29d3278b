// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package state_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jontk/npsched/internal/indexset"
	"github.com/jontk/npsched/internal/interval"
	"github.com/jontk/npsched/internal/state"
	"github.com/jontk/npsched/internal/timemodel"
)

func TestInitialState(t *testing.T) {
	s := state.Initial[int64](2)
	assert.Equal(t, 0, s.NumScheduled())
	assert.Equal(t, 2, s.NumProcessors())
	assert.True(t, s.JobIncomplete(0))
}

func TestDispatchAdvancesOtherProcessors(t *testing.T) {
	s := state.Initial[int64](2)
	s2 := s.Dispatch(0, 0xABCD, indexset.Set{}, 1,
		interval.New[int64](0, 0), interval.New[int64](3, 5))

	assert.True(t, s2.Scheduled().Contains(0))
	assert.Equal(t, 1, s2.NumScheduled())
	assert.Equal(t, uint64(0xABCD), s2.LookupKey())

	avail := make([]interval.Interval[int64], 0)
	for p := 1; p <= 2; p++ {
		avail = append(avail, s2.CoreAvailability(p, timemodel.DefaultClock[int64]()))
	}
	// the dispatched job's own slot becomes [3,5]; the other processor
	// (previously [0,0]) advances its "from" to est=0 (unchanged here)
	// and keeps its "until" at max(est, old.until).
	assert.Contains(t, avail, interval.New[int64](3, 5))
}

func TestMergeUnionsCoreAvailAndIntersectsCertainJobs(t *testing.T) {
	base := state.Initial[int64](1)
	a := base.Dispatch(0, 1, indexset.Set{}, 1, interval.New[int64](0, 0), interval.New[int64](2, 4))
	b := base.Dispatch(0, 1, indexset.Set{}, 1, interval.New[int64](0, 0), interval.New[int64](3, 6))

	merged, ok := a.TryMerge(b)
	assert.True(t, ok)
	assert.Equal(t, interval.New[int64](2, 6), merged.CoreAvailability(1, timemodel.DefaultClock[int64]()))

	fin, found := merged.FinishTimes(0)
	assert.True(t, found)
	assert.Equal(t, interval.New[int64](2, 6), fin)
}

func TestMergeFailsOnDisjointAvailability(t *testing.T) {
	base := state.Initial[int64](1)
	a := base.Dispatch(0, 1, indexset.Set{}, 1, interval.New[int64](0, 0), interval.New[int64](2, 3))
	b := base.Dispatch(0, 1, indexset.Set{}, 1, interval.New[int64](0, 0), interval.New[int64](10, 12))

	_, ok := a.TryMerge(b)
	assert.False(t, ok)
}

func TestPrecedenceFinishSurvivesPruning(t *testing.T) {
	s := state.Initial[int64](1)
	s = s.Dispatch(0, 1, indexset.Set{}, 1, interval.New[int64](0, 0), interval.New[int64](1, 2))
	// dispatch a second job whose predecessor set does not include job 0,
	// with a latest-start well past job 0's finish, so job 0 is pruned
	// from certain_jobs but must remain in the precedence log.
	s = s.Dispatch(1, 2, indexset.Set{}, 1, interval.New[int64](5, 5), interval.New[int64](6, 7))

	_, stillCertain := s.FinishTimes(0)
	assert.False(t, stillCertain)

	fin, ok := s.PrecedenceFinish(0)
	assert.True(t, ok)
	assert.Equal(t, interval.New[int64](1, 2), fin)
}
