// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package npsched

import (
	"context"
	"io"
	"time"

	"github.com/jontk/npsched/internal/engine"
	"github.com/jontk/npsched/internal/graph"
	"github.com/jontk/npsched/internal/iip"
	"github.com/jontk/npsched/internal/indexset"
	"github.com/jontk/npsched/internal/interval"
	"github.com/jontk/npsched/internal/job"
	"github.com/jontk/npsched/internal/timemodel"
	"github.com/jontk/npsched/pkg/config"
	analysiserrors "github.com/jontk/npsched/pkg/errors"
	"github.com/jontk/npsched/pkg/logging"
	"github.com/jontk/npsched/pkg/metrics"
)

// JobID identifies a job independently of its position in the workload.
type JobID struct {
	Task uint64
	Job  uint64
}

// Job is the public description of one real-time job. CostsMin and
// CostsMax carry one entry per parallelism level; for non-gang jobs they
// have length 1. SMin defaults to 1 when left zero; SMax left zero
// defaults to SMin.
type Job[T timemodel.Num] struct {
	ID           JobID
	ArrivalMin   T
	ArrivalMax   T
	CostsMin     []T
	CostsMax     []T
	Deadline     T
	Priority     T
	SMin         int
	SMax         int
	Predecessors []JobID
}

// IIP selects one of the built-in idle-insertion policies.
type IIP string

const (
	// NullIIP is the identity policy: plain work-conserving scheduling.
	NullIIP IIP = "null"
	// PrecautiousRM reserves processor time for not-yet-released
	// higher-priority jobs under rate-monotonic priorities.
	PrecautiousRM IIP = "precautious-rm"
	// CriticalWindowEDF keeps latest finish times out of the critical
	// windows of not-yet-released jobs under EDF priorities.
	CriticalWindowEDF IIP = "critical-window-edf"
)

// Result is the schedulability verdict.
type Result string

const (
	Schedulable   Result = "SCHEDULABLE"
	Unschedulable Result = "UNSCHEDULABLE"
	Timeout       Result = "TIMEOUT"
)

// ResponseTime is the accumulated [best-case, worst-case] response time
// observed for one job across all reached states.
type ResponseTime[T timemodel.Num] struct {
	BCRT T
	WCRT T
}

// WitnessStep is one dispatch along the path leading to a deadline miss.
type WitnessStep[T timemodel.Num] struct {
	Job         JobID
	Parallelism int
	StartMin    T
	StartMax    T
	FinishMin   T
	FinishMax   T
}

// Verdict is the outcome of one analysis run.
type Verdict[T timemodel.Num] struct {
	Result        Result
	Witness       []WitnessStep[T]
	ResponseTimes map[JobID]ResponseTime[T]
	Stats         *metrics.Stats

	graph *graph.Graph
}

// WriteGraph renders the explored state graph in Graphviz DOT format. It
// returns false without writing when the run was not observable.
func (v *Verdict[T]) WriteGraph(w io.Writer, name string) (bool, error) {
	if v.graph == nil {
		return false, nil
	}
	return true, v.graph.WriteDOT(w, name)
}

// Options configures an analysis run.
type Options struct {
	processors        int
	policy            IIP
	por               bool
	continueAfterMiss bool
	workers           int
	wallClockBudget   time.Duration
	depthStateBudget  int
	observability     bool
	logger            logging.Logger
	collector         metrics.Collector
}

// Option mutates the analysis options.
type Option func(*Options)

// WithProcessors sets the processor count (default 1).
func WithProcessors(n int) Option {
	return func(o *Options) { o.processors = n }
}

// WithIIP selects the idle-insertion policy (default NullIIP).
func WithIIP(p IIP) Option {
	return func(o *Options) { o.policy = p }
}

// WithPartialOrderReduction enables reduction-set construction.
func WithPartialOrderReduction(on bool) Option {
	return func(o *Options) { o.por = on }
}

// WithContinueAfterMiss keeps exploring after the first deadline miss.
func WithContinueAfterMiss(on bool) Option {
	return func(o *Options) { o.continueAfterMiss = on }
}

// WithWorkers sets the expansion worker-pool size; 1 forces
// single-threaded exploration.
func WithWorkers(n int) Option {
	return func(o *Options) { o.workers = n }
}

// WithWallClockBudget bounds the total analysis time; 0 means unbounded.
func WithWallClockBudget(d time.Duration) Option {
	return func(o *Options) { o.wallClockBudget = d }
}

// WithDepthStateBudget bounds the number of states per exploration depth;
// 0 means unbounded.
func WithDepthStateBudget(n int) Option {
	return func(o *Options) { o.depthStateBudget = n }
}

// WithObservability records the explored graph for WriteGraph and the
// streaming server; forces single-threaded exploration.
func WithObservability(on bool) Option {
	return func(o *Options) { o.observability = on }
}

// WithLogger sets the structured logger.
func WithLogger(l logging.Logger) Option {
	return func(o *Options) { o.logger = l }
}

// WithCollector sets the metrics collector.
func WithCollector(c metrics.Collector) Option {
	return func(o *Options) { o.collector = c }
}

// FromConfig maps a pkg/config Config onto the equivalent options.
func FromConfig(cfg *config.Config) Option {
	return func(o *Options) {
		o.processors = cfg.Processors
		o.policy = IIP(cfg.IIP)
		o.por = cfg.PartialOrderReduction
		o.continueAfterMiss = cfg.ContinueAfterMiss
		o.workers = cfg.Workers
		o.wallClockBudget = cfg.WallClockBudget
		o.depthStateBudget = cfg.PerDepthStateBudget
		o.observability = cfg.Observability
	}
}

func defaultOptions() *Options {
	return &Options{
		processors: 1,
		policy:     NullIIP,
		workers:    1,
		logger:     logging.NoOpLogger{},
		collector:  metrics.NewInMemoryCollector(),
	}
}

// Analyze decides schedulability of the workload: it either proves that no
// deadline can be missed under any feasible dispatch ordering, or returns
// an Unschedulable verdict with a witness path. Input errors (duplicate
// job IDs, invalid parallelism ranges, unresolved precedence references)
// are returned before any exploration starts.
func Analyze[T timemodel.Num](ctx context.Context, jobs []Job[T], opts ...Option) (*Verdict[T], error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}
	if o.processors < 1 {
		return nil, analysiserrors.NewAnalysisError(analysiserrors.ErrorCodeInvalidConfiguration, "processors must be greater than 0")
	}

	workload, err := convertJobs(jobs)
	if err != nil {
		return nil, err
	}

	policy, err := policyFor[T](o.policy)
	if err != nil {
		return nil, err
	}

	engineOpts := []engine.Option[T]{
		engine.WithPolicy[T](policy),
		engine.WithPartialOrderReduction[T](o.por),
		engine.WithContinueAfterMiss[T](o.continueAfterMiss),
		engine.WithWorkers[T](o.workers),
		engine.WithWallClockBudget[T](o.wallClockBudget),
		engine.WithDepthStateBudget[T](o.depthStateBudget),
		engine.WithLogger[T](o.logger),
		engine.WithCollector[T](o.collector),
	}

	var g *graph.Graph
	if o.observability {
		g = graph.New(nil)
		engineOpts = append(engineOpts, engine.WithObservability[T](g))
	}

	eng := engine.New(workload, o.processors, engineOpts...)
	outcome := eng.Explore(ctx)

	verdict := &Verdict[T]{
		Result:        resultFor(outcome.Result),
		ResponseTimes: make(map[JobID]ResponseTime[T], len(workload)),
		Stats:         outcome.Stats,
		graph:         g,
	}
	for _, step := range outcome.Witness {
		id := workload[step.JobIndex].ID()
		verdict.Witness = append(verdict.Witness, WitnessStep[T]{
			Job:         JobID{Task: id.Task, Job: id.Job},
			Parallelism: step.Parallelism,
			StartMin:    step.Start.From,
			StartMax:    step.Start.Until,
			FinishMin:   step.Finish.From,
			FinishMax:   step.Finish.Until,
		})
	}
	for i, j := range workload {
		if rt, ok := outcome.ResponseTimes.Get(i); ok {
			id := j.ID()
			verdict.ResponseTimes[JobID{Task: id.Task, Job: id.Job}] = ResponseTime[T]{BCRT: rt.From, WCRT: rt.Until}
		}
	}
	return verdict, nil
}

func resultFor(r engine.Result) Result {
	switch r {
	case engine.ResultSchedulable:
		return Schedulable
	case engine.ResultUnschedulable:
		return Unschedulable
	default:
		return Timeout
	}
}

func policyFor[T timemodel.Num](p IIP) (iip.Policy[T], error) {
	switch p {
	case NullIIP, "":
		return iip.Null[T]{}, nil
	case PrecautiousRM:
		return iip.PrecautiousRM[T]{}, nil
	case CriticalWindowEDF:
		return iip.CriticalWindowEDF[T]{}, nil
	default:
		return nil, analysiserrors.NewAnalysisError(analysiserrors.ErrorCodeInvalidConfiguration, "unknown idle-insertion policy "+string(p))
	}
}

// convertJobs validates the public job descriptions and resolves
// precedence references into the immutable internal job vector.
func convertJobs[T timemodel.Num](jobs []Job[T]) ([]job.Job[T], error) {
	indexByID := make(map[job.ID]int, len(jobs))
	for i, j := range jobs {
		id := job.ID{Task: j.ID.Task, Job: j.ID.Job}
		if _, dup := indexByID[id]; dup {
			return nil, analysiserrors.NewDuplicateJobError(0, id.String())
		}
		indexByID[id] = i
	}

	out := make([]job.Job[T], 0, len(jobs))
	for i, j := range jobs {
		id := job.ID{Task: j.ID.Task, Job: j.ID.Job}

		sMin, sMax := j.SMin, j.SMax
		if sMin == 0 {
			sMin = 1
		}
		if sMax == 0 {
			sMax = sMin
		}

		if len(j.CostsMin) != len(j.CostsMax) {
			return nil, analysiserrors.NewCostListLengthError(0, id.String(), len(j.CostsMax), len(j.CostsMin))
		}
		costs := make([]interval.Interval[T], len(j.CostsMin))
		for k := range costs {
			costs[k] = interval.New(j.CostsMin[k], j.CostsMax[k])
		}

		var preds indexset.Set
		for _, p := range j.Predecessors {
			pid := job.ID{Task: p.Task, Job: p.Job}
			idx, ok := indexByID[pid]
			if !ok {
				return nil, analysiserrors.NewUnresolvedPrecedenceError(0, pid.String())
			}
			if idx == i {
				return nil, analysiserrors.NewUnresolvedPrecedenceError(0, pid.String())
			}
			preds = preds.Add(idx)
		}

		converted, err := job.New(id, interval.New(j.ArrivalMin, j.ArrivalMax), costs, j.Deadline, j.Priority, sMin, sMax, preds)
		if err != nil {
			switch err {
			case job.ErrInvalidParallelism:
				return nil, analysiserrors.NewParallelismRangeError(0, id.String(), sMin, sMax)
			case job.ErrCostLengthMismatch:
				return nil, analysiserrors.NewCostListLengthError(0, id.String(), len(costs), sMax-sMin+1)
			case job.ErrNegativeCost:
				return nil, analysiserrors.NewNegativeCostError(0, id.String())
			default:
				return nil, analysiserrors.WrapError(err)
			}
		}
		out = append(out, converted)
	}
	return out, nil
}
