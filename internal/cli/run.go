package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/stepc/internal/codecache"
	"github.com/roach88/stepc/internal/engine"
	"github.com/roach88/stepc/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Steps int
	RunID string

	// RunIDGenerator overrides the run id source (for testing). Ignored
	// when RunID is set. Defaults to UUIDv7Generator.
	RunIDGenerator engine.RunIDGenerator
}

// StepSummary is one step of a run.
type StepSummary struct {
	Seq       int64         `json:"seq"`
	Time      float64       `json:"time"`
	Items     []string      `json:"items"`
	Refreshes int           `json:"refreshes"`
	Elapsed   time.Duration `json:"elapsed_ns"`
}

// RunResult is the outcome of the run command.
type RunResult struct {
	Model     string                        `json:"model"`
	RunID     string                        `json:"run_id"`
	Completed int                           `json:"completed"`
	Steps     []StepSummary                 `json:"steps"`
	Final     map[string]harness.VarSummary `json:"final"`
	Cache     codecache.Stats               `json:"cache"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <model-dir>",
		Short: "Run a model for a number of steps",
		Long: `Instantiate a CUE model and run its schedule for --steps steps.

Buffers are created from the model's variables, code objects are fetched
from the cache (or compiled), and the scheduler runs the schedule once per
step, refreshing buffer addresses whenever they changed. Ctrl-C stops the
run after the current step item.

Example:
  stepc run --steps 100 ./models/leaky
  stepc run --steps 10 --cache-dir ~/.cache/stepc --workers 4 ./models/leaky`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModel(opts, args[0], cmd)
		},
	}

	cmd.Flags().IntVarP(&opts.Steps, "steps", "n", 1, "number of steps to run")
	cmd.Flags().StringVar(&opts.RunID, "run-id", "", "run id (default: a new UUIDv7)")

	return cmd
}

func runModel(opts *RunOptions, modelDir string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	if opts.Steps < 1 {
		_ = formatter.Error(ErrCodeGeneric, "--steps must be at least 1", nil)
		return NewExitError(ExitCommandError, "invalid --steps")
	}

	res, err := LoadModel(modelDir)
	if err != nil {
		return outputLoadError(formatter, err)
	}
	if len(res.Errors) > 0 {
		return outputValidationErrors(formatter, res.Model, res.Errors)
	}
	m := res.Model

	runID := opts.RunID
	if runID == "" {
		gen := opts.RunIDGenerator
		if gen == nil {
			gen = engine.UUIDv7Generator{}
		}
		runID = gen.Generate()
	}
	logger := opts.newLogger(formatter.GetErrWriter()).With("model", m.Name)

	st, err := opts.openStore(runID)
	if err != nil {
		return err
	}
	if st != nil {
		defer func() {
			if closeErr := st.Close(); closeErr != nil {
				logger.Error("error closing cache directory", "error", closeErr)
			}
		}()
	}
	cache := opts.newCache(st, logger)

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	inst, err := harness.Instantiate(ctx, m,
		harness.WithCache(cache),
		harness.WithLogger(logger),
		harness.WithRunIDGenerator(engine.NewFixedGenerator(runID)),
	)
	if err != nil {
		_ = formatter.Error(ErrorCode(err), err.Error(), nil)
		return WrapExitError(ExitCommandError, "failed to instantiate model", err)
	}

	reports, runErr := inst.Run(ctx, opts.Steps)
	final, err := inst.Summaries()
	if err != nil {
		return err
	}

	result := RunResult{
		Model:     m.Name,
		RunID:     runID,
		Completed: len(reports),
		Steps:     make([]StepSummary, len(reports)),
		Final:     final,
		Cache:     cache.Stats(),
	}
	for i, r := range reports {
		result.Steps[i] = StepSummary{Seq: r.Seq, Time: r.Time, Items: r.Items, Refreshes: r.Refreshes, Elapsed: r.Elapsed}
	}

	stopped := errors.Is(runErr, context.Canceled)
	if runErr != nil && !stopped {
		return outputRunFailure(formatter, result, runErr)
	}
	return outputRunSuccess(formatter, result, stopped)
}

func outputRunSuccess(formatter *OutputFormatter, result RunResult, stopped bool) error {
	if formatter.Format == "json" {
		return formatter.JSON(CLIResponse{Status: "ok", Data: result, RunID: result.RunID})
	}

	w := formatter.Writer
	if stopped {
		fmt.Fprintf(w, "Stopped after %d step(s) of model %s (run %s)\n", result.Completed, result.Model, result.RunID)
	} else {
		fmt.Fprintf(w, "✓ Ran %d step(s) of model %s (run %s)\n", result.Completed, result.Model, result.RunID)
	}
	if formatter.Verbose {
		for _, s := range result.Steps {
			fmt.Fprintf(w, "  step %d t=%g: %d item(s), %d refresh(es), %s\n", s.Seq, s.Time, len(s.Items), s.Refreshes, s.Elapsed)
		}
	}
	writeSummaries(formatter, result.Final)
	fmt.Fprintf(w, "Cache: %d hit(s), %d miss(es), %d compile(s), %d disk load(s)\n",
		result.Cache.Hits, result.Cache.Misses, result.Cache.Compiles, result.Cache.DiskLoads)
	return nil
}

func outputRunFailure(formatter *OutputFormatter, result RunResult, runErr error) error {
	exitErr := WrapExitError(ExitFailure, fmt.Sprintf("run failed after %d step(s)", result.Completed), runErr)
	details := map[string]any{"completed": result.Completed}
	var stepErr *engine.StepError
	if errors.As(runErr, &stepErr) {
		details["seq"] = stepErr.Seq
		details["step"] = stepErr.StepID
	}
	if engine.IsStaleError(runErr) {
		details["hint"] = "a step item used addresses from before a buffer mutation"
	}

	if formatter.Format == "json" {
		if err := formatter.JSON(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: ErrorCode(runErr), Message: runErr.Error(), Details: details},
			RunID:  result.RunID,
		}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintf(formatter.Writer, "✗ Run %s failed after %d step(s)\n", result.RunID, result.Completed)
	_ = formatter.Error(ErrorCode(runErr), runErr.Error(), details)
	return exitErr
}

// writeSummaries prints final buffer summaries in name order.
func writeSummaries(formatter *OutputFormatter, vars map[string]harness.VarSummary) {
	names := make([]string, 0, len(vars))
	for n := range vars {
		names = append(names, n)
	}
	slices.Sort(names)

	w := formatter.Writer
	for _, n := range names {
		v := vars[n]
		fmt.Fprintf(w, "  %s: len %d, sum %g, min %g, max %g\n", n, v.Len, v.Sum, v.Min, v.Max)
	}
}
