// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package workload parses the line-oriented textual inputs: job sets,
// precedence edges and abort actions. It is the external collaborator
// feeding the engine; any malformed row surfaces an input error and the
// engine is never started.
package workload

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jontk/npsched/internal/indexset"
	"github.com/jontk/npsched/internal/interval"
	"github.com/jontk/npsched/internal/job"
	"github.com/jontk/npsched/internal/timemodel"
	analysiserrors "github.com/jontk/npsched/pkg/errors"
	"github.com/jontk/npsched/pkg/logging"
)

// AbortAction describes when a job may be aborted and how long its cleanup
// takes. Abort actions are parsed for completeness and threaded through to
// the verdict metadata; a non-preemptive analysis does not act on them.
type AbortAction[T timemodel.Num] struct {
	ID      job.ID
	Trigger interval.Interval[T]
	Cleanup interval.Interval[T]
}

// row is one parsed job line before precedence resolution.
type row[T timemodel.Num] struct {
	line     int
	id       job.ID
	arrival  interval.Interval[T]
	costs    []interval.Interval[T]
	deadline T
	priority T
	sMin     int
	sMax     int
}

// Edge is one precedence constraint between two jobs.
type Edge struct {
	From job.ID
	To   job.ID
}

// Load parses the job set and optional precedence edges (precedence may be
// nil) and returns the resolved, validated job vector. Indices into the
// returned slice are the job indices used throughout the engine.
func Load[T timemodel.Num](jobs io.Reader, precedence io.Reader, logger logging.Logger) ([]job.Job[T], error) {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}

	rows, err := parseJobRows[T](jobs)
	if err != nil {
		return nil, err
	}

	indexByID := make(map[job.ID]int, len(rows))
	for i, r := range rows {
		if _, dup := indexByID[r.id]; dup {
			return nil, analysiserrors.NewDuplicateJobError(r.line, r.id.String())
		}
		indexByID[r.id] = i
	}

	predecessors := make([]indexset.Set, len(rows))
	if precedence != nil {
		edges, err := ParseEdges(precedence)
		if err != nil {
			return nil, err
		}
		for _, e := range edges {
			from, ok := indexByID[e.From]
			if !ok {
				return nil, analysiserrors.NewUnresolvedPrecedenceError(0, e.From.String())
			}
			to, ok := indexByID[e.To]
			if !ok {
				return nil, analysiserrors.NewUnresolvedPrecedenceError(0, e.To.String())
			}
			predecessors[to] = predecessors[to].Add(from)
		}
	}

	out := make([]job.Job[T], 0, len(rows))
	for i, r := range rows {
		j, err := job.New(r.id, r.arrival, r.costs, r.deadline, r.priority, r.sMin, r.sMax, predecessors[i])
		if err != nil {
			return nil, wrapJobError(r.line, r.id, err)
		}
		if j.NonMonotoneCosts() {
			logger.Warn("cost bounds do not decrease with added parallelism",
				"job", r.id.String(), "line", r.line)
		}
		out = append(out, j)
	}
	return out, nil
}

func wrapJobError(line int, id job.ID, err error) error {
	switch err {
	case job.ErrInvalidParallelism:
		return analysiserrors.NewParallelismRangeError(line, id.String(), 0, 0)
	case job.ErrCostLengthMismatch:
		return analysiserrors.NewCostListLengthError(line, id.String(), 0, 0)
	case job.ErrNegativeCost:
		return analysiserrors.NewNegativeCostError(line, id.String())
	default:
		return analysiserrors.WrapError(err)
	}
}

// parseJobRows reads the job CSV. The first line is a header and is
// skipped; empty lines are ignored. Fields:
//
//	task_id, job_id, arr_min, arr_max, cost_min[:...], cost_max[:...],
//	deadline, priority [, s_min [, s_max]]
func parseJobRows[T timemodel.Num](r io.Reader) ([]row[T], error) {
	var rows []row[T]

	err := eachDataLine(r, func(line int, fields []string) error {
		if len(fields) < 8 {
			return analysiserrors.NewMissingFieldError(line, jobFieldName(len(fields)))
		}

		taskID, err := parseUint(fields[0])
		if err != nil {
			return analysiserrors.NewMalformedFieldError(line, "task_id", fields[0], err)
		}
		jobID, err := parseUint(fields[1])
		if err != nil {
			return analysiserrors.NewMalformedFieldError(line, "job_id", fields[1], err)
		}
		id := job.ID{Task: taskID, Job: jobID}

		arrMin, err := parseTime[T](fields[2])
		if err != nil {
			return analysiserrors.NewMalformedFieldError(line, "arr_min", fields[2], err)
		}
		arrMax, err := parseTime[T](fields[3])
		if err != nil {
			return analysiserrors.NewMalformedFieldError(line, "arr_max", fields[3], err)
		}

		costsMin, err := parseTimeList[T](fields[4])
		if err != nil {
			return analysiserrors.NewMalformedFieldError(line, "cost_min", fields[4], err)
		}
		costsMax, err := parseTimeList[T](fields[5])
		if err != nil {
			return analysiserrors.NewMalformedFieldError(line, "cost_max", fields[5], err)
		}

		deadline, err := parseTime[T](fields[6])
		if err != nil {
			return analysiserrors.NewMalformedFieldError(line, "deadline", fields[6], err)
		}
		priority, err := parseTime[T](fields[7])
		if err != nil {
			return analysiserrors.NewMalformedFieldError(line, "priority", fields[7], err)
		}

		// s_min and s_max default to 1 when absent.
		sMin, sMax := 1, 1
		if len(fields) > 8 {
			v, err := strconv.Atoi(fields[8])
			if err != nil {
				return analysiserrors.NewMalformedFieldError(line, "s_min", fields[8], err)
			}
			sMin, sMax = v, v
		}
		if len(fields) > 9 {
			v, err := strconv.Atoi(fields[9])
			if err != nil {
				return analysiserrors.NewMalformedFieldError(line, "s_max", fields[9], err)
			}
			sMax = v
		}
		if sMin < 1 || sMax < sMin {
			return analysiserrors.NewParallelismRangeError(line, id.String(), sMin, sMax)
		}

		levels := sMax - sMin + 1
		if len(costsMin) != levels || len(costsMax) != levels {
			got := len(costsMin)
			if len(costsMax) != levels {
				got = len(costsMax)
			}
			return analysiserrors.NewCostListLengthError(line, id.String(), got, levels)
		}

		var zero T
		costs := make([]interval.Interval[T], levels)
		for i := range costs {
			if costsMin[i] < zero || costsMax[i] < zero {
				return analysiserrors.NewNegativeCostError(line, id.String())
			}
			costs[i] = interval.New(costsMin[i], costsMax[i])
		}

		rows = append(rows, row[T]{
			line:     line,
			id:       id,
			arrival:  interval.New(arrMin, arrMax),
			costs:    costs,
			deadline: deadline,
			priority: priority,
			sMin:     sMin,
			sMax:     sMax,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rows, nil
}

// ParseEdges reads the precedence CSV: one edge per row as
// from_task, from_job, to_task, to_job. The first line is a header.
func ParseEdges(r io.Reader) ([]Edge, error) {
	var edges []Edge

	err := eachDataLine(r, func(line int, fields []string) error {
		if len(fields) < 4 {
			return analysiserrors.NewMissingFieldError(line, edgeFieldName(len(fields)))
		}
		ids := make([]uint64, 4)
		names := []string{"from_task", "from_job", "to_task", "to_job"}
		for i := 0; i < 4; i++ {
			v, err := parseUint(fields[i])
			if err != nil {
				return analysiserrors.NewMalformedFieldError(line, names[i], fields[i], err)
			}
			ids[i] = v
		}
		edges = append(edges, Edge{
			From: job.ID{Task: ids[0], Job: ids[1]},
			To:   job.ID{Task: ids[2], Job: ids[3]},
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

// ParseAbortActions reads the abort-action CSV:
// task, job, trigger_min, trigger_max, cleanup_min, cleanup_max.
// The first line is a header.
func ParseAbortActions[T timemodel.Num](r io.Reader) ([]AbortAction[T], error) {
	var actions []AbortAction[T]

	err := eachDataLine(r, func(line int, fields []string) error {
		if len(fields) < 6 {
			return analysiserrors.NewMissingFieldError(line, abortFieldName(len(fields)))
		}
		taskID, err := parseUint(fields[0])
		if err != nil {
			return analysiserrors.NewMalformedFieldError(line, "task_id", fields[0], err)
		}
		jobID, err := parseUint(fields[1])
		if err != nil {
			return analysiserrors.NewMalformedFieldError(line, "job_id", fields[1], err)
		}

		names := []string{"trigger_min", "trigger_max", "cleanup_min", "cleanup_max"}
		vals := make([]T, 4)
		for i := 0; i < 4; i++ {
			v, err := parseTime[T](fields[i+2])
			if err != nil {
				return analysiserrors.NewMalformedFieldError(line, names[i], fields[i+2], err)
			}
			vals[i] = v
		}

		actions = append(actions, AbortAction[T]{
			ID:      job.ID{Task: taskID, Job: jobID},
			Trigger: interval.New(vals[0], vals[1]),
			Cleanup: interval.New(vals[2], vals[3]),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return actions, nil
}

// eachDataLine applies fn to every non-empty line after the header,
// splitting on commas and trimming whitespace. Line numbers are 1-based
// and include the header.
func eachDataLine(r io.Reader, fn func(line int, fields []string) error) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := strings.TrimSpace(scanner.Text())
		if lineNo == 1 {
			// Header line.
			continue
		}
		if text == "" {
			continue
		}
		fields := strings.Split(text, ",")
		for i := range fields {
			fields[i] = strings.TrimSpace(fields[i])
		}
		if err := fn(lineNo, fields); err != nil {
			return err
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("workload: read: %w", err)
	}
	return nil
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 10, 64)
}

func parseTime[T timemodel.Num](s string) (T, error) {
	v, err := strconv.ParseInt(s, 10, 64)
	return T(v), err
}

// parseTimeList splits a colon-separated gang cost list.
func parseTimeList[T timemodel.Num](s string) ([]T, error) {
	parts := strings.Split(s, ":")
	out := make([]T, len(parts))
	for i, p := range parts {
		v, err := parseTime[T](strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func jobFieldName(n int) string {
	names := []string{"task_id", "job_id", "arr_min", "arr_max", "cost_min", "cost_max", "deadline", "priority"}
	if n < len(names) {
		return names[n]
	}
	return "unknown"
}

func edgeFieldName(n int) string {
	names := []string{"from_task", "from_job", "to_task", "to_job"}
	if n < len(names) {
		return names[n]
	}
	return "unknown"
}

func abortFieldName(n int) string {
	names := []string{"task_id", "job_id", "trigger_min", "trigger_max", "cleanup_min", "cleanup_max"}
	if n < len(names) {
		return names[n]
	}
	return "unknown"
}
