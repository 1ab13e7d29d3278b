// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jontk/npsched/internal/engine"
	"github.com/jontk/npsched/internal/graph"
	"github.com/jontk/npsched/internal/iip"
	"github.com/jontk/npsched/internal/job"
	"github.com/jontk/npsched/internal/workload"
	"github.com/jontk/npsched/pkg/analytics"
	"github.com/jontk/npsched/pkg/auth"
	"github.com/jontk/npsched/pkg/config"
	analysisctx "github.com/jontk/npsched/pkg/context"
	"github.com/jontk/npsched/pkg/logging"
	"github.com/jontk/npsched/pkg/metrics"
	"github.com/jontk/npsched/pkg/middleware"
	"github.com/jontk/npsched/pkg/streaming"
	"github.com/jontk/npsched/pkg/watch"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = ""
	Commit    = ""

	// Global flags
	debug  bool
	format string

	// Analyze flags
	precedenceFile string
	abortsFile     string
	processors     int
	iipName        string
	usePOR         bool
	workers        int
	wallClock      time.Duration
	stateBudget    int
	continueMiss   bool
	graphFile      string
	serveAddr      string
	authToken      string
	showProgress   bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(3)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "npsched",
		Short: "Schedulability analysis for non-preemptive real-time job sets",
		Long: `npsched decides whether a finite set of non-preemptive real-time jobs
can miss a deadline on one or more processors, under release-time and
execution-time uncertainty, optional precedence constraints, optional
idle-insertion policies, and optional gang execution.

It explores every reachable schedule state, merging compatible states to
keep the search tractable, and reports SCHEDULABLE, UNSCHEDULABLE (with a
witness path), or TIMEOUT.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")
	root.PersistentFlags().StringVar(&format, "format", "text", "output format (text|json)")

	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("npsched %s", Version)
			if Commit != "" {
				fmt.Printf(" (%s)", Commit)
			}
			if BuildTime != "" {
				fmt.Printf(" built %s", BuildTime)
			}
			fmt.Println()
		},
	}
}

func newAnalyzeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "analyze <jobs.csv>",
		Short: "Run the schedulability analysis on a workload file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAnalyze(cmd.Context(), args[0])
		},
	}

	cmd.Flags().StringVarP(&precedenceFile, "precedence", "p", "", "precedence edge CSV file")
	cmd.Flags().StringVar(&abortsFile, "aborts", "", "abort-action CSV file (parsed, reported, not acted on)")
	cmd.Flags().IntVarP(&processors, "processors", "m", 1, "number of processors")
	cmd.Flags().StringVar(&iipName, "iip", "null", "idle-insertion policy (null|precautious-rm|critical-window-edf)")
	cmd.Flags().BoolVar(&usePOR, "por", false, "enable partial-order reduction")
	cmd.Flags().IntVar(&workers, "workers", 0, "expansion workers (0 = config/env default)")
	cmd.Flags().DurationVar(&wallClock, "wall-clock-budget", 0, "abort with TIMEOUT after this duration (0 = unbounded)")
	cmd.Flags().IntVar(&stateBudget, "state-budget", 0, "abort with TIMEOUT past this many states per depth (0 = unbounded)")
	cmd.Flags().BoolVar(&continueMiss, "continue-after-miss", false, "keep exploring after the first deadline miss")
	cmd.Flags().StringVar(&graphFile, "graph", "", "write the explored graph as Graphviz DOT to this file")
	cmd.Flags().StringVar(&serveAddr, "serve", "", "serve the explored graph over WebSocket/SSE on this address")
	cmd.Flags().StringVar(&authToken, "auth-token", "", "bearer token guarding the graph server")
	cmd.Flags().BoolVar(&showProgress, "progress", false, "report exploration progress while running")

	return cmd
}

func runAnalyze(ctx context.Context, jobsFile string) error {
	cfg := config.NewDefault()
	cfg.Load()
	cfg.Processors = processors
	cfg.IIP = iipName
	cfg.PartialOrderReduction = usePOR
	cfg.ContinueAfterMiss = continueMiss
	cfg.Observability = graphFile != "" || serveAddr != ""
	if workers > 0 {
		cfg.Workers = workers
	}
	if wallClock > 0 {
		cfg.WallClockBudget = wallClock
	}
	if stateBudget > 0 {
		cfg.PerDepthStateBudget = stateBudget
	}
	if debug {
		cfg.Debug = true
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg)
	runID := analysisctx.NewRunID()
	ctx = analysisctx.WithRunID(ctx, runID)
	logger = logger.With("run_id", runID)

	jobs, err := loadWorkload(jobsFile, logger)
	if err != nil {
		return err
	}

	var aborts []workload.AbortAction[int64]
	if abortsFile != "" {
		f, err := os.Open(abortsFile)
		if err != nil {
			return err
		}
		aborts, err = workload.ParseAbortActions[int64](f)
		f.Close()
		if err != nil {
			return err
		}
		logger.Info("abort actions parsed but not applied: analysis is non-preemptive",
			"actions", len(aborts))
	}

	collector := metrics.NewInMemoryCollector()

	opts := []engine.Option[int64]{
		engine.WithPolicy[int64](policyFor(cfg.IIP)),
		engine.WithPartialOrderReduction[int64](cfg.PartialOrderReduction),
		engine.WithContinueAfterMiss[int64](cfg.ContinueAfterMiss),
		engine.WithWorkers[int64](cfg.Workers),
		engine.WithWallClockBudget[int64](cfg.WallClockBudget),
		engine.WithDepthStateBudget[int64](cfg.PerDepthStateBudget),
		engine.WithLogger[int64](logger),
		engine.WithCollector[int64](collector),
	}

	var g *graph.Graph
	var broker *streaming.Broker
	if cfg.Observability {
		var sink chan graph.Event
		if serveAddr != "" {
			sink = make(chan graph.Event, 256)
			broker = streaming.NewBroker()
			go broker.Consume(sink)
		}
		g = graph.New(sink)
		opts = append(opts, engine.WithObservability[int64](g))
		defer func() {
			if sink != nil {
				close(sink)
			}
		}()
	}

	if showProgress {
		progressCtx, cancelProgress := context.WithCancel(ctx)
		defer cancelProgress()
		go reportProgress(progressCtx, collector, logger)
	}

	eng := engine.New(jobs, cfg.Processors, opts...)
	outcome := eng.Explore(ctx)

	printVerdict(outcome, jobs, len(aborts))

	if graphFile != "" {
		if err := writeGraph(g, graphFile); err != nil {
			return err
		}
		logger.Info("graph written", "file", graphFile)
	}

	if serveAddr != "" {
		if err := serveGraph(ctx, broker, logger); err != nil {
			return err
		}
	}

	switch outcome.Result {
	case engine.ResultUnschedulable:
		os.Exit(1)
	case engine.ResultTimeout:
		os.Exit(2)
	}
	return nil
}

func newLogger(cfg *config.Config) logging.Logger {
	logCfg := logging.DefaultConfig()
	logCfg.Output = os.Stderr
	logCfg.Version = Version
	if cfg.Debug {
		logCfg.Level = slog.LevelDebug
	}
	if format == "json" {
		logCfg.Format = logging.FormatJSON
	}
	return logging.NewLogger(logCfg)
}

func loadWorkload(jobsFile string, logger logging.Logger) ([]workloadJob, error) {
	jf, err := os.Open(jobsFile)
	if err != nil {
		return nil, err
	}
	defer jf.Close()

	var pf *os.File
	if precedenceFile != "" {
		pf, err = os.Open(precedenceFile)
		if err != nil {
			return nil, err
		}
		defer pf.Close()
	}

	if pf != nil {
		return workload.Load[int64](jf, pf, logger)
	}
	return workload.Load[int64](jf, nil, logger)
}

// workloadJob keeps the instantiated generic type out of the signatures
// above.
type workloadJob = job.Job[int64]

func policyFor(name string) iip.Policy[int64] {
	switch name {
	case "precautious-rm":
		return iip.PrecautiousRM[int64]{}
	case "critical-window-edf":
		return iip.CriticalWindowEDF[int64]{}
	default:
		return iip.Null[int64]{}
	}
}

func reportProgress(ctx context.Context, collector metrics.Collector, logger logging.Logger) {
	poller := watch.NewProgressPoller(collector.GetStats).WithPollInterval(2 * time.Second)
	events, err := poller.Watch(ctx)
	if err != nil {
		return
	}
	for event := range events {
		logger.Info("exploration progress",
			"states", event.Stats.TotalStatesCreated,
			"merges", event.Stats.TotalMerges,
			"new_states", event.StatesDelta,
		)
	}
}

func printVerdict(outcome *engine.Outcome[int64], jobs []workloadJob, numAborts int) {
	if format == "json" {
		printVerdictJSON(outcome, jobs, numAborts)
		return
	}

	fmt.Println(outcome.Result.String())

	if len(outcome.Witness) > 0 {
		fmt.Println("witness path:")
		for _, step := range outcome.Witness {
			j := jobs[step.JobIndex]
			fmt.Printf("  %s p=%d start=[%d,%d] finish=[%d,%d] deadline=%d\n",
				j.ID(), step.Parallelism,
				step.Start.From, step.Start.Until,
				step.Finish.From, step.Finish.Until,
				j.Deadline())
		}
	}

	fmt.Println("response times:")
	for i, j := range jobs {
		if rt, ok := outcome.ResponseTimes.Get(i); ok {
			fmt.Printf("  %s [%d, %d]\n", j.ID(), rt.From, rt.Until)
		} else {
			fmt.Printf("  %s (never dispatched)\n", j.ID())
		}
	}

	fmt.Print(analytics.Analyze(outcome.Stats).String())
	if numAborts > 0 {
		fmt.Printf("abort actions on file: %d (not applied)\n", numAborts)
	}
}

type jsonVerdict struct {
	Verdict       string              `json:"verdict"`
	Witness       []jsonWitnessStep   `json:"witness,omitempty"`
	ResponseTimes map[string][2]int64 `json:"response_times"`
	States        int64               `json:"states"`
	Merges        int64               `json:"merges"`
	PORReductions int64               `json:"por_reductions"`
	AbortActions  int                 `json:"abort_actions,omitempty"`
}

type jsonWitnessStep struct {
	Job         string   `json:"job"`
	Parallelism int      `json:"parallelism"`
	Start       [2]int64 `json:"start"`
	Finish      [2]int64 `json:"finish"`
}

func printVerdictJSON(outcome *engine.Outcome[int64], jobs []workloadJob, numAborts int) {
	out := jsonVerdict{
		Verdict:       outcome.Result.String(),
		ResponseTimes: make(map[string][2]int64, len(jobs)),
		States:        outcome.Stats.TotalStatesCreated,
		Merges:        outcome.Stats.TotalMerges,
		PORReductions: outcome.Stats.PORReductions,
		AbortActions:  numAborts,
	}
	for _, step := range outcome.Witness {
		out.Witness = append(out.Witness, jsonWitnessStep{
			Job:         jobs[step.JobIndex].ID().String(),
			Parallelism: step.Parallelism,
			Start:       [2]int64{step.Start.From, step.Start.Until},
			Finish:      [2]int64{step.Finish.From, step.Finish.Until},
		})
	}
	for i, j := range jobs {
		if rt, ok := outcome.ResponseTimes.Get(i); ok {
			out.ResponseTimes[j.ID().String()] = [2]int64{rt.From, rt.Until}
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(out)
}

func writeGraph(g *graph.Graph, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return g.WriteDOT(f, "npsched")
}

func serveGraph(ctx context.Context, broker *streaming.Broker, logger logging.Logger) error {
	var guard auth.Provider = auth.NewNoAuth()
	if authToken != "" {
		guard = auth.NewTokenAuth(authToken)
	}

	chain := middleware.Chain(
		middleware.WithRecovery(logger),
		middleware.WithLogging(logger),
		middleware.WithAuth(guard),
	)

	mux := http.NewServeMux()
	mux.Handle("/ws", chain(http.HandlerFunc(streaming.NewWebSocketServer(broker, logger).HandleWebSocket)))
	mux.Handle("/events", chain(http.HandlerFunc(streaming.NewSSEServer(broker).HandleSSE)))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{
		Addr:              serveAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case <-ctx.Done():
		case <-stop:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	logger.Info("serving explored graph", "addr", serveAddr, "auth", guard.Type())
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
