// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package errors

import (
	"context"
	stderrors "errors"
	"fmt"
)

// WrapError converts a generic error into a structured AnalysisError
func WrapError(err error) *AnalysisError {
	if err == nil {
		return nil
	}

	// If already an AnalysisError, return as-is
	var analysisErr *AnalysisError
	if stderrors.As(err, &analysisErr) {
		return analysisErr
	}

	if stderrors.Is(err, context.Canceled) {
		return NewAnalysisErrorWithCause(ErrorCodeCanceled, "Analysis was canceled", err)
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return NewAnalysisErrorWithCause(ErrorCodeWallClockBudget, "Analysis wall-clock budget exceeded", err)
	}

	return NewAnalysisErrorWithCause(ErrorCodeUnknown, err.Error(), err)
}

// NewMissingFieldError reports a workload row with too few fields
func NewMissingFieldError(line int, field string) *AnalysisError {
	e := NewAnalysisError(ErrorCodeMissingField, fmt.Sprintf("missing field %q", field))
	e.Line = line
	e.Field = field
	return e
}

// NewMalformedFieldError reports a workload field that failed to parse
func NewMalformedFieldError(line int, field, value string, cause error) *AnalysisError {
	e := NewAnalysisErrorWithCause(ErrorCodeMalformedField, fmt.Sprintf("malformed field %q", field), cause)
	e.Line = line
	e.Field = field
	e.Details = value
	return e
}

// NewNegativeCostError reports a job with a negative execution-time bound
func NewNegativeCostError(line int, jobID string) *AnalysisError {
	e := NewAnalysisError(ErrorCodeNegativeCost, "cost intervals must be non-negative")
	e.Line = line
	e.JobID = jobID
	return e
}

// NewParallelismRangeError reports s_max < s_min or s_min < 1
func NewParallelismRangeError(line int, jobID string, sMin, sMax int) *AnalysisError {
	e := NewAnalysisError(ErrorCodeParallelismRange, fmt.Sprintf("invalid parallelism range [%d, %d]", sMin, sMax))
	e.Line = line
	e.JobID = jobID
	return e
}

// NewCostListLengthError reports a gang cost list whose length does not
// match s_max - s_min + 1
func NewCostListLengthError(line int, jobID string, got, want int) *AnalysisError {
	e := NewAnalysisError(ErrorCodeCostListLength, fmt.Sprintf("cost list has %d entries, want %d", got, want))
	e.Line = line
	e.JobID = jobID
	return e
}

// NewDuplicateJobError reports two workload rows carrying the same job id
func NewDuplicateJobError(line int, jobID string) *AnalysisError {
	e := NewAnalysisError(ErrorCodeDuplicateJob, "duplicate job id")
	e.Line = line
	e.JobID = jobID
	return e
}

// NewUnresolvedPrecedenceError reports a precedence edge referencing a job
// that does not exist in the workload
func NewUnresolvedPrecedenceError(line int, jobID string) *AnalysisError {
	e := NewAnalysisError(ErrorCodeUnresolvedPrecedence, "precedence edge references unknown job")
	e.Line = line
	e.JobID = jobID
	return e
}

// NewStructuralInfeasibilityError reports a job that cannot meet its
// deadline even when dispatched alone at its earliest release
func NewStructuralInfeasibilityError(jobID string) *AnalysisError {
	e := NewAnalysisError(ErrorCodeStructuralInfeasibility, "job cannot meet its deadline even in isolation")
	e.JobID = jobID
	return e
}

// NewWallClockBudgetError reports an exceeded wall-clock budget
func NewWallClockBudgetError() *AnalysisError {
	return NewAnalysisError(ErrorCodeWallClockBudget, "wall-clock budget exceeded")
}

// NewStateBudgetError reports an exceeded per-depth state-count budget
func NewStateBudgetError(depth, count int) *AnalysisError {
	e := NewAnalysisError(ErrorCodeStateBudget, fmt.Sprintf("state budget exceeded at depth %d (%d states)", depth, count))
	return e
}

// Assert panics with an invariant-violation error when cond is false.
// Invariant violations indicate a bug in the engine itself, never a
// property of the workload, so they abort the process rather than being
// surfaced in a verdict.
func Assert(cond bool, message string) {
	if !cond {
		panic(NewAnalysisError(ErrorCodeInvariantViolation, message))
	}
}
