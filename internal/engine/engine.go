// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

// Package engine implements the depth-stratified BFS over schedule states:
// it expands every reachable state, merges compatible successors, applies
// the optional IIP filter and partial-order reduction, and produces the
// schedulability verdict.
package engine

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jontk/npsched/internal/eligibility"
	"github.com/jontk/npsched/internal/graph"
	"github.com/jontk/npsched/internal/iip"
	"github.com/jontk/npsched/internal/interval"
	"github.com/jontk/npsched/internal/job"
	"github.com/jontk/npsched/internal/node"
	"github.com/jontk/npsched/internal/por"
	"github.com/jontk/npsched/internal/response"
	"github.com/jontk/npsched/internal/state"
	"github.com/jontk/npsched/internal/timemodel"
	analysiserrors "github.com/jontk/npsched/pkg/errors"
	"github.com/jontk/npsched/pkg/logging"
	"github.com/jontk/npsched/pkg/metrics"
	"github.com/jontk/npsched/pkg/pool"
)

// Result is the schedulability verdict of an exploration.
type Result int

const (
	// ResultSchedulable means no reachable state misses a deadline.
	ResultSchedulable Result = iota
	// ResultUnschedulable means some reachable state misses a deadline;
	// the outcome carries a witness path.
	ResultUnschedulable
	// ResultTimeout means a wall-clock or state budget was exhausted
	// before the exploration completed.
	ResultTimeout
)

func (r Result) String() string {
	switch r {
	case ResultSchedulable:
		return "SCHEDULABLE"
	case ResultUnschedulable:
		return "UNSCHEDULABLE"
	case ResultTimeout:
		return "TIMEOUT"
	default:
		return "UNKNOWN"
	}
}

// WitnessStep is one dispatch along a witness path.
type WitnessStep[T timemodel.Num] struct {
	JobIndex    int
	Parallelism int
	Start       interval.Interval[T]
	Finish      interval.Interval[T]
}

// Outcome carries the verdict plus the observability data accumulated
// during exploration.
type Outcome[T timemodel.Num] struct {
	Result        Result
	Witness       []WitnessStep[T]
	ResponseTimes *response.Collector[T]
	Stats         *metrics.Stats
	Graph         *graph.Graph
}

// Engine explores the schedule-state space of one workload. It is not safe
// to run the same Engine concurrently with itself.
type Engine[T timemodel.Num] struct {
	workload   []job.Job[T]
	processors int
	clk        timemodel.Clock[T]
	oracle     eligibility.Oracle[T]
	policy     iip.Policy[T]

	usePOR            bool
	continueAfterMiss bool
	workers           int
	wallClockBudget   time.Duration
	depthStateBudget  int

	logger    logging.Logger
	collector metrics.Collector
	graph     *graph.Graph

	tables []*node.Table[T]
	rt     *response.Collector[T]

	canceled atomic.Bool
	timedOut atomic.Bool

	missMu    sync.Mutex
	missFound bool
	witness   []WitnessStep[T]
}

// Option configures an Engine at construction time.
type Option[T timemodel.Num] func(*Engine[T])

// WithClock overrides the default time-model constants.
func WithClock[T timemodel.Num](clk timemodel.Clock[T]) Option[T] {
	return func(e *Engine[T]) { e.clk = clk }
}

// WithPolicy selects the idle-insertion policy filtering the oracle's
// candidates.
func WithPolicy[T timemodel.Num](p iip.Policy[T]) Option[T] {
	return func(e *Engine[T]) { e.policy = p }
}

// WithPartialOrderReduction enables reduction-set construction.
func WithPartialOrderReduction[T timemodel.Num](on bool) Option[T] {
	return func(e *Engine[T]) { e.usePOR = on }
}

// WithContinueAfterMiss keeps exploring after the first deadline miss
// instead of stopping with the witness immediately.
func WithContinueAfterMiss[T timemodel.Num](on bool) Option[T] {
	return func(e *Engine[T]) { e.continueAfterMiss = on }
}

// WithWorkers sets the expansion worker count; 1 forces single-threaded
// exploration.
func WithWorkers[T timemodel.Num](n int) Option[T] {
	return func(e *Engine[T]) {
		if n > 0 {
			e.workers = n
		}
	}
}

// WithWallClockBudget bounds the total exploration time; 0 means
// unbounded.
func WithWallClockBudget[T timemodel.Num](d time.Duration) Option[T] {
	return func(e *Engine[T]) { e.wallClockBudget = d }
}

// WithDepthStateBudget bounds the number of maximally merged states per
// depth; 0 means unbounded.
func WithDepthStateBudget[T timemodel.Num](n int) Option[T] {
	return func(e *Engine[T]) { e.depthStateBudget = n }
}

// WithObservability attaches a graph arena; this forces single-threaded
// exploration so that emitted vertices and edges are never interleaved.
func WithObservability[T timemodel.Num](g *graph.Graph) Option[T] {
	return func(e *Engine[T]) { e.graph = g }
}

// WithLogger sets the structured logger.
func WithLogger[T timemodel.Num](l logging.Logger) Option[T] {
	return func(e *Engine[T]) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithCollector sets the metrics collector.
func WithCollector[T timemodel.Num](c metrics.Collector) Option[T] {
	return func(e *Engine[T]) {
		if c != nil {
			e.collector = c
		}
	}
}

// New constructs an Engine over the given workload and processor count.
func New[T timemodel.Num](workload []job.Job[T], processors int, opts ...Option[T]) *Engine[T] {
	e := &Engine[T]{
		workload:   workload,
		processors: processors,
		clk:        timemodel.DefaultClock[T](),
		policy:     iip.Null[T]{},
		workers:    1,
		logger:     logging.NoOpLogger{},
		collector:  metrics.NoOpCollector{},
	}
	for _, opt := range opts {
		opt(e)
	}
	// Graph emission requires deterministic, serial expansion.
	if e.graph != nil {
		e.workers = 1
	}
	e.oracle = eligibility.New(e.workload, e.clk)
	return e
}

// stateMeta is the per-member bookkeeping attached to every maximally
// merged state: the dispatch trace used for witness reconstruction and
// the state's graph vertex. Under the merge-tie-break rule the existing
// member's meta survives a merge.
type stateMeta[T timemodel.Num] struct {
	trace  *traceStep[T]
	vertex graph.VertexID
}

type traceStep[T timemodel.Num] struct {
	prev *traceStep[T]
	step WitnessStep[T]
}

func unrollTrace[T timemodel.Num](t *traceStep[T]) []WitnessStep[T] {
	var out []WitnessStep[T]
	for ; t != nil; t = t.prev {
		out = append(out, t.step)
	}
	// Reverse into dispatch order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Explore runs the analysis to completion and returns the outcome. The
// context bounds the run alongside the configured wall-clock budget.
func (e *Engine[T]) Explore(ctx context.Context) *Outcome[T] {
	n := len(e.workload)
	e.rt = response.NewCollector[T](n)

	// Structural infeasibility: a job that cannot meet its deadline even
	// alone produces UNSCHEDULABLE without exploration.
	for i, j := range e.workload {
		p := j.SMax()
		if p > e.processors {
			p = e.processors
		}
		if p < j.SMin() {
			continue
		}
		if j.ExceedsDeadline(j.EarliestArrival()+j.LeastCost(p), e.clk) {
			e.logger.Warn("structurally infeasible job", "job", j.ID().String())
			return &Outcome[T]{
				Result: ResultUnschedulable,
				Witness: []WitnessStep[T]{{
					JobIndex:    i,
					Parallelism: p,
					Start:       interval.Degenerate(j.EarliestArrival()),
					Finish:      interval.Degenerate(j.EarliestArrival() + j.LeastCost(p)),
				}},
				ResponseTimes: e.rt,
				Stats:         e.collector.GetStats(),
				Graph:         e.graph,
			}
		}
	}

	e.tables = make([]*node.Table[T], n+1)
	for d := range e.tables {
		e.tables[d] = node.NewTable[T]()
	}

	initial := state.Initial[T](e.processors)
	meta0 := &stateMeta[T]{}
	if e.graph != nil {
		meta0.vertex = e.graph.AddVertex(graph.StateLabel(initial, e.workload))
	}
	e.tables[0].InsertWithMeta(initial, meta0)

	var deadline time.Time
	if e.wallClockBudget > 0 {
		deadline = time.Now().Add(e.wallClockBudget)
	}

	var workers *pool.ExpansionPool
	if e.workers > 1 {
		workers = pool.NewExpansionPool(&pool.PoolConfig{Workers: e.workers, QueueSize: 4 * e.workers}, e.logger)
		defer workers.Close()
	}

	for d := 0; d < n; d++ {
		if e.canceled.Load() || e.timedOut.Load() {
			break
		}
		if ctx.Err() != nil || (!deadline.IsZero() && time.Now().After(deadline)) {
			e.timedOut.Store(true)
			break
		}

		tbl := e.tables[d]
		if tbl.Len() == 0 {
			continue
		}

		depthStart := time.Now()
		var nodes []*node.Node[T]
		if e.workers == 1 {
			nodes = tbl.SortedNodes()
		} else {
			nodes = tbl.Nodes()
		}

		var tasks []func()
		for _, nd := range nodes {
			for _, entry := range nd.Entries() {
				depth, en := d, entry
				tasks = append(tasks, func() { e.expand(depth, en) })
			}
		}

		if e.workers == 1 {
			for _, t := range tasks {
				t()
			}
		} else {
			workers.RunBatch(tasks)
		}

		e.collector.RecordDepthComplete(d, time.Since(depthStart))
		logging.LogDepthComplete(e.logger, d, tbl.NumStates(), 0)
	}

	outcome := &Outcome[T]{
		ResponseTimes: e.rt,
		Stats:         e.collector.GetStats(),
		Graph:         e.graph,
	}

	e.missMu.Lock()
	missFound, witness := e.missFound, e.witness
	e.missMu.Unlock()

	switch {
	case missFound:
		// A definite miss outranks a concurrently tripped budget.
		outcome.Result = ResultUnschedulable
		outcome.Witness = witness
	case e.timedOut.Load():
		outcome.Result = ResultTimeout
	default:
		outcome.Result = ResultSchedulable
	}
	e.logger.Info("exploration finished", "verdict", outcome.Result.String())
	return outcome
}

// expand generates every successor of one maximally merged state.
func (e *Engine[T]) expand(d int, entry node.Entry[T]) {
	if e.canceled.Load() || e.timedOut.Load() {
		return
	}

	st := entry.State
	meta := entry.Meta.(*stateMeta[T])
	e.collector.RecordStateExpanded(d)

	candidates := e.oracle.PreCandidates(st)
	candidates = e.policy.Filter(st, e.workload, candidates)
	candidates = e.oracle.ApplyCeiling(st, candidates)
	if len(candidates) == 0 {
		return
	}

	if e.usePOR && e.reducible() && len(candidates) > 1 {
		if e.tryReduce(d, st, meta, candidates) {
			return
		}
	}

	for _, c := range candidates {
		e.dispatch(d, st, meta, c)
		if e.canceled.Load() || e.timedOut.Load() {
			return
		}
	}
}

// reducible reports whether partial-order reduction applies to this
// workload: the reduction-set arithmetic covers the single-processor,
// non-gang case, of which everything else falls back to plain dispatch.
func (e *Engine[T]) reducible() bool {
	if e.processors != 1 {
		return false
	}
	for _, j := range e.workload {
		if j.SMin() != 1 || j.SMax() != 1 {
			return false
		}
	}
	return true
}

// dispatch constructs and files the successor for a single candidate.
func (e *Engine[T]) dispatch(d int, st state.State[T], meta *stateMeta[T], c eligibility.Candidate[T]) {
	j := e.workload[c.JobIndex]

	succ := st.Dispatch(c.JobIndex, j.HashKey(), j.Predecessors(), c.Parallelism, c.Start, c.Finish)
	e.rt.Update(c.JobIndex, interval.New(
		c.Finish.From-j.EarliestArrival(),
		c.Finish.Until-j.EarliestArrival(),
	))

	step := WitnessStep[T]{
		JobIndex:    c.JobIndex,
		Parallelism: c.Parallelism,
		Start:       c.Start,
		Finish:      c.Finish,
	}
	newMeta := &stateMeta[T]{trace: &traceStep[T]{prev: meta.trace, step: step}}

	target := e.tables[d+1]
	_, survivor, isNew := target.InsertWithMeta(succ, newMeta)
	e.collector.RecordEdge()
	if isNew {
		e.collector.RecordStateCreated(d + 1)
	} else {
		e.collector.RecordMerge(d + 1)
	}

	if e.graph != nil {
		sm := survivor.(*stateMeta[T])
		if isNew {
			sm.vertex = e.graph.AddVertex(graph.StateLabel(succ, e.workload))
		}
		e.graph.AddEdge(meta.vertex, sm.vertex, graph.DispatchLabel(j, c.Parallelism))
	}

	if c.DeadlineMiss {
		logging.LogDispatch(e.logger, j.ID().String(), d+1).Warn("potential deadline miss",
			"latest_finish", c.Finish.Until,
			"deadline", j.Deadline(),
		)
		e.recordMiss(newMeta.trace)
	}

	if e.depthStateBudget > 0 && target.NumStates() > e.depthStateBudget {
		e.timedOut.Store(true)
	}
}

// tryReduce attempts to replace the candidate permutations with one atomic
// reduction dispatch. It reports whether the reduction was taken.
func (e *Engine[T]) tryReduce(d int, st state.State[T], meta *stateMeta[T], candidates []eligibility.Candidate[T]) bool {
	var seed []int
	seen := make(map[int]bool, len(candidates))
	for _, c := range candidates {
		if !seen[c.JobIndex] {
			seen[c.JobIndex] = true
			seed = append(seed, c.JobIndex)
		}
	}

	var pending []int
	for i := range e.workload {
		if st.JobIncomplete(i) {
			pending = append(pending, i)
		}
	}

	set, ok := por.Build(e.clk, e.workload, st.CoreAvailability(1, e.clk), seed, pending, st.Scheduled())
	if !ok || len(set.Members()) < 2 {
		return false
	}

	members := append([]int(nil), set.Members()...)
	sort.Ints(members)

	entries := make([]state.CertainJob[T], 0, len(members))
	trace := meta.trace
	for _, idx := range members {
		j := e.workload[idx]
		fin := interval.New(set.EarliestFinishTime(idx), set.LatestFinishTime(idx))
		entries = append(entries, state.CertainJob[T]{Index: idx, Finish: fin, Parallelism: 1})
		e.rt.Update(idx, interval.New(fin.From-j.EarliestArrival(), fin.Until-j.EarliestArrival()))
		trace = &traceStep[T]{prev: trace, step: WitnessStep[T]{
			JobIndex:    idx,
			Parallelism: 1,
			Start:       interval.New(timemodel.Max(st.CoreAvailability(1, e.clk).From, j.EarliestArrival()), set.LatestStartTime(idx)),
			Finish:      fin,
		}}
	}

	succ := st.DispatchReduction(entries, set.Key(), set.LatestBusyTime())
	newMeta := &stateMeta[T]{trace: trace}

	target := e.tables[d+len(members)]
	_, survivor, isNew := target.InsertWithMeta(succ, newMeta)
	e.collector.RecordEdge()
	e.collector.RecordPORReduction(len(members), set.NumInterferingAdded())
	if isNew {
		e.collector.RecordStateCreated(d + len(members))
	} else {
		e.collector.RecordMerge(d + len(members))
	}

	if e.graph != nil {
		sm := survivor.(*stateMeta[T])
		if isNew {
			sm.vertex = e.graph.AddVertex(graph.StateLabel(succ, e.workload))
		}
		e.graph.AddEdge(meta.vertex, sm.vertex, graph.ReductionLabel(e.workload, members))
	}

	if e.depthStateBudget > 0 && target.NumStates() > e.depthStateBudget {
		e.timedOut.Store(true)
	}
	return true
}

// recordMiss stores the first witness path and, unless the engine is
// configured to continue, raises the cancellation flag checked between
// states.
func (e *Engine[T]) recordMiss(trace *traceStep[T]) {
	e.missMu.Lock()
	if !e.missFound {
		e.missFound = true
		e.witness = unrollTrace(trace)
	}
	e.missMu.Unlock()

	if !e.continueAfterMiss {
		e.canceled.Store(true)
	}
}

// Workload returns the job vector the engine analyzes.
func (e *Engine[T]) Workload() []job.Job[T] { return e.workload }

// AssertDepthInvariant panics if a table holds a state whose scheduled
// count differs from its depth; exercised by tests.
func (e *Engine[T]) AssertDepthInvariant() {
	for d, tbl := range e.tables {
		if tbl == nil {
			continue
		}
		for _, nd := range tbl.Nodes() {
			for _, st := range nd.States() {
				analysiserrors.Assert(st.NumScheduled() == d, "state filed at wrong depth")
			}
		}
	}
}
