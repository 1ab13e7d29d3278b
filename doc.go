// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

/*
Package npsched decides schedulability of a finite set of non-preemptive
real-time jobs on one or more processors, in the presence of release-time
and execution-time uncertainty, optional precedence constraints, optional
priority-based idle-insertion policies, and optional gang (multi-core
parallel) execution.

# Overview

Given a workload, Analyze either proves that no deadline can be missed
under any feasible dispatch ordering, or exhibits a reachable state in
which some job misses its deadline. The core is a directed graph whose
vertices are system states (over-approximations of the multiprocessor
timeline after some prefix of jobs has been dispatched) and whose edges
are job-dispatch transitions.

# Basic Usage

	import (
	    "context"
	    "log"

	    "github.com/jontk/npsched"
	)

	func main() {
	    jobs := []npsched.Job[int64]{ } // ...

	    verdict, err := npsched.Analyze(context.Background(), jobs,
	        npsched.WithProcessors(2),
	        npsched.WithIIP(npsched.PrecautiousRM),
	        npsched.WithPartialOrderReduction(true),
	    )
	    if err != nil {
	        log.Fatal(err)
	    }

	    log.Printf("verdict: %s", verdict.Result)
	}

# Idle-Insertion Policies

Three policies are built in: NullIIP (identity), PrecautiousRM, and
CriticalWindowEDF, selected with WithIIP.

# Observability

When WithObservability is set, the engine emits the explored graph
(vertices and dispatch edges) and can additionally serve it live over
WebSocket or Server-Sent Events via pkg/streaming. Enabling
observability forces single-threaded exploration so that emitted edges
are never interleaved.

# Error Handling

Analyze distinguishes input errors (malformed workload, surfaced before
exploration starts), structural infeasibility (a job cannot meet its
deadline even alone), and the three possible verdicts produced by
exploration itself: SCHEDULABLE, UNSCHEDULABLE (with a witness path),
and TIMEOUT (when a wall-clock or per-depth state budget is exceeded).

# Environment Variables

The CLI (cmd/npsched) and pkg/config respect:

  - NPSCHED_WORKERS: worker-pool size for parallel frontier expansion
  - NPSCHED_WALL_CLOCK_BUDGET: overall analysis timeout
  - NPSCHED_DEBUG: enable debug logging

# Thread Safety

The exploration engine is safe for concurrent use within a single
Analyze call: nodes are guarded by per-node locks, and response-time
intervals are updated via lock-free CAS. Separate Analyze calls are
fully independent and may run concurrently.

# License

This library is licensed under the Apache License 2.0. See LICENSE for
details.
*/
package npsched
