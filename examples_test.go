// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package npsched_test

import (
	"context"
	"fmt"
	"log"

	"github.com/jontk/npsched"
)

// Example_analyze demonstrates the basic schedulability question: two
// jobs with certain releases on a single processor.
func Example_analyze() {
	ctx := context.Background()

	jobs := []npsched.Job[int64]{
		{
			ID:         npsched.JobID{Task: 1, Job: 1},
			ArrivalMin: 0, ArrivalMax: 0,
			CostsMin: []int64{1}, CostsMax: []int64{2},
			Deadline: 10, Priority: 1,
		},
		{
			ID:         npsched.JobID{Task: 2, Job: 1},
			ArrivalMin: 0, ArrivalMax: 0,
			CostsMin: []int64{2}, CostsMax: []int64{3},
			Deadline: 20, Priority: 2,
		},
	}

	verdict, err := npsched.Analyze(ctx, jobs)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(verdict.Result)
	// Output: SCHEDULABLE
}

// Example_analyzeWithIIP demonstrates selecting an idle-insertion policy
// and enabling partial-order reduction.
func Example_analyzeWithIIP() {
	ctx := context.Background()

	jobs := []npsched.Job[int64]{
		{
			ID:         npsched.JobID{Task: 1, Job: 1},
			ArrivalMin: 0, ArrivalMax: 0,
			CostsMin: []int64{3}, CostsMax: []int64{3},
			Deadline: 10, Priority: 10,
		},
		{
			ID:         npsched.JobID{Task: 2, Job: 1},
			ArrivalMin: 1, ArrivalMax: 1,
			CostsMin: []int64{1}, CostsMax: []int64{1},
			Deadline: 3, Priority: 3,
		},
	}

	verdict, err := npsched.Analyze(ctx, jobs,
		npsched.WithIIP(npsched.CriticalWindowEDF),
		npsched.WithPartialOrderReduction(true),
	)
	if err != nil {
		log.Fatal(err)
	}

	fmt.Println(verdict.Result)
	// Output: SCHEDULABLE
}

// Example_analyzeGang demonstrates a gang job occupying two processors
// at once.
func Example_analyzeGang() {
	ctx := context.Background()

	jobs := []npsched.Job[int64]{
		{
			ID:         npsched.JobID{Task: 1, Job: 1},
			ArrivalMin: 0, ArrivalMax: 0,
			CostsMin: []int64{4}, CostsMax: []int64{6},
			Deadline: 10, Priority: 1,
			SMin: 2, SMax: 2,
		},
	}

	verdict, err := npsched.Analyze(ctx, jobs, npsched.WithProcessors(2))
	if err != nil {
		log.Fatal(err)
	}

	rt := verdict.ResponseTimes[npsched.JobID{Task: 1, Job: 1}]
	fmt.Printf("%s response time [%d, %d]\n", verdict.Result, rt.BCRT, rt.WCRT)
	// Output: SCHEDULABLE response time [4, 6]
}
