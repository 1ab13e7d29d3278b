// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package analytics derives efficiency reports from the raw counters the
// engine collects: how much of the state space merging and partial-order
// reduction eliminated, and where the exploration spent its states.
package analytics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/jontk/npsched/pkg/metrics"
)

// RunReport summarizes the efficiency of one exploration run
type RunReport struct {
	// StatesCreated is the number of distinct maximally merged states
	StatesCreated int64

	// StatesAbsorbed is the number of successor states folded away by merging
	StatesAbsorbed int64

	// MergeEfficiency is StatesAbsorbed / (StatesCreated + StatesAbsorbed),
	// the fraction of generated successors that never became new states
	MergeEfficiency float64

	// PORReductions is the number of atomic reduction dispatches taken
	PORReductions int64

	// PORJobsReduced is the total number of jobs dispatched atomically
	PORJobsReduced int64

	// PORJobsAbsorbed is the number of interfering jobs pulled into
	// reduction sets beyond their seeds
	PORJobsAbsorbed int64

	// DepthProfile lists per-depth state counts, sorted by depth
	DepthProfile []DepthStats

	// PeakDepth is the depth with the most states
	PeakDepth int

	// PeakStates is the state count at PeakDepth
	PeakStates int64
}

// DepthStats is the per-depth slice of the profile
type DepthStats struct {
	Depth  int
	States int64
	Merges int64
}

// Analyze derives a RunReport from a metrics snapshot
func Analyze(stats *metrics.Stats) *RunReport {
	report := &RunReport{
		StatesCreated:   stats.TotalStatesCreated,
		StatesAbsorbed:  stats.TotalMerges,
		PORReductions:   stats.PORReductions,
		PORJobsReduced:  stats.PORJobsReduced,
		PORJobsAbsorbed: stats.PORJobsAbsorbed,
	}

	generated := stats.TotalStatesCreated + stats.TotalMerges
	if generated > 0 {
		report.MergeEfficiency = float64(stats.TotalMerges) / float64(generated)
	}

	depths := make([]int, 0, len(stats.StatesByDepth))
	for d := range stats.StatesByDepth {
		depths = append(depths, d)
	}
	sort.Ints(depths)

	for _, d := range depths {
		states := stats.StatesByDepth[d]
		report.DepthProfile = append(report.DepthProfile, DepthStats{
			Depth:  d,
			States: states,
			Merges: stats.MergesByDepth[d],
		})
		if states > report.PeakStates {
			report.PeakStates = states
			report.PeakDepth = d
		}
	}

	return report
}

// String renders the report for CLI output
func (r *RunReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "states: %d distinct, %d absorbed by merging (%.1f%% merge efficiency)\n",
		r.StatesCreated, r.StatesAbsorbed, 100*r.MergeEfficiency)
	if r.PORReductions > 0 {
		fmt.Fprintf(&b, "partial-order reduction: %d sets covering %d jobs (%d interfering absorbed)\n",
			r.PORReductions, r.PORJobsReduced, r.PORJobsAbsorbed)
	}
	if len(r.DepthProfile) > 0 {
		fmt.Fprintf(&b, "peak frontier: %d states at depth %d\n", r.PeakStates, r.PeakDepth)
	}
	return b.String()
}
