// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package workload_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jontk/npsched/internal/interval"
	"github.com/jontk/npsched/internal/job"
	"github.com/jontk/npsched/internal/workload"
	analysiserrors "github.com/jontk/npsched/pkg/errors"
)

const header = "task_id, job_id, arr_min, arr_max, cost_min, cost_max, deadline, priority\n"

func TestLoadBasicWorkload(t *testing.T) {
	input := header +
		"1, 1, 0, 5, 2, 4, 30, 1\n" +
		"\n" + // blank lines are skipped
		"2, 1, 10, 10, 1, 1, 20, 2\n"

	jobs, err := workload.Load[int64](strings.NewReader(input), nil, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	j := jobs[0]
	assert.Equal(t, job.ID{Task: 1, Job: 1}, j.ID())
	assert.Equal(t, interval.New[int64](0, 5), j.ArrivalWindow())
	assert.Equal(t, interval.New[int64](2, 4), j.Cost(1))
	assert.Equal(t, int64(30), j.Deadline())
	assert.Equal(t, int64(1), j.Priority())
	assert.Equal(t, 1, j.SMin())
	assert.Equal(t, 1, j.SMax())
}

func TestLoadGangJob(t *testing.T) {
	input := "task_id, job_id, arr_min, arr_max, cost_min, cost_max, deadline, priority, s_min, s_max\n" +
		"1, 1, 0, 0, 6:4, 8:6, 30, 1, 1, 2\n"

	jobs, err := workload.Load[int64](strings.NewReader(input), nil, nil)
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	j := jobs[0]
	assert.Equal(t, 1, j.SMin())
	assert.Equal(t, 2, j.SMax())
	assert.Equal(t, interval.New[int64](6, 8), j.Cost(1))
	assert.Equal(t, interval.New[int64](4, 6), j.Cost(2))
}

func TestLoadWithPrecedence(t *testing.T) {
	jobsInput := header +
		"1, 1, 0, 0, 1, 1, 10, 1\n" +
		"1, 2, 0, 0, 1, 1, 20, 2\n"
	precInput := "from_task, from_job, to_task, to_job\n" +
		"1, 1, 1, 2\n"

	jobs, err := workload.Load[int64](strings.NewReader(jobsInput), strings.NewReader(precInput), nil)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, 0, jobs[0].Predecessors().Len())
	assert.True(t, jobs[1].Predecessors().Contains(0))
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		name     string
		jobs     string
		prec     string
		wantCode analysiserrors.ErrorCode
	}{
		{
			name:     "missing field",
			jobs:     header + "1, 1, 0, 0, 1\n",
			wantCode: analysiserrors.ErrorCodeMissingField,
		},
		{
			name:     "malformed arrival",
			jobs:     header + "1, 1, zero, 0, 1, 1, 10, 1\n",
			wantCode: analysiserrors.ErrorCodeMalformedField,
		},
		{
			name:     "negative cost",
			jobs:     header + "1, 1, 0, 0, -1, 1, 10, 1\n",
			wantCode: analysiserrors.ErrorCodeNegativeCost,
		},
		{
			name:     "s_max below s_min",
			jobs:     "h\n1, 1, 0, 0, 1, 1, 10, 1, 2, 1\n",
			wantCode: analysiserrors.ErrorCodeParallelismRange,
		},
		{
			name:     "cost list length mismatch",
			jobs:     "h\n1, 1, 0, 0, 1:1:1, 2:2:2, 10, 1, 1, 2\n",
			wantCode: analysiserrors.ErrorCodeCostListLength,
		},
		{
			name:     "duplicate job id",
			jobs:     header + "1, 1, 0, 0, 1, 1, 10, 1\n1, 1, 0, 0, 1, 1, 10, 1\n",
			wantCode: analysiserrors.ErrorCodeDuplicateJob,
		},
		{
			name:     "unresolved precedence",
			jobs:     header + "1, 1, 0, 0, 1, 1, 10, 1\n",
			prec:     "h\n9, 9, 1, 1\n",
			wantCode: analysiserrors.ErrorCodeUnresolvedPrecedence,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var prec *strings.Reader
			if tt.prec != "" {
				prec = strings.NewReader(tt.prec)
			}

			var err error
			if prec != nil {
				_, err = workload.Load[int64](strings.NewReader(tt.jobs), prec, nil)
			} else {
				_, err = workload.Load[int64](strings.NewReader(tt.jobs), nil, nil)
			}

			require.Error(t, err)
			var ae *analysiserrors.AnalysisError
			require.True(t, errors.As(err, &ae), "expected *AnalysisError, got %T", err)
			assert.Equal(t, tt.wantCode, ae.Code)
			assert.True(t, ae.IsInput())
		})
	}
}

func TestParseEdges(t *testing.T) {
	input := "from_task, from_job, to_task, to_job\n" +
		"1, 1, 2, 1\n" +
		"2, 1, 3, 1\n"

	edges, err := workload.ParseEdges(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, edges, 2)
	assert.Equal(t, job.ID{Task: 1, Job: 1}, edges[0].From)
	assert.Equal(t, job.ID{Task: 2, Job: 1}, edges[0].To)
}

func TestParseAbortActions(t *testing.T) {
	input := "task_id, job_id, trigger_min, trigger_max, cleanup_min, cleanup_max\n" +
		"1, 1, 5, 8, 1, 2\n"

	actions, err := workload.ParseAbortActions[int64](strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, actions, 1)

	a := actions[0]
	assert.Equal(t, job.ID{Task: 1, Job: 1}, a.ID)
	assert.Equal(t, interval.New[int64](5, 8), a.Trigger)
	assert.Equal(t, interval.New[int64](1, 2), a.Cleanup)
}

func TestHeaderOnlyInputsAreEmpty(t *testing.T) {
	jobs, err := workload.Load[int64](strings.NewReader(header), nil, nil)
	require.NoError(t, err)
	assert.Empty(t, jobs)

	edges, err := workload.ParseEdges(strings.NewReader("h\n"))
	require.NoError(t, err)
	assert.Empty(t, edges)
}
