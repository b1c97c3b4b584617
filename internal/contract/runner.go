package contract

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/gztensor/qa-automation/internal/sampler"
)

// Stage names one phase of the contract pipeline.
type Stage string

const (
	StageParameterSelection Stage = "parameter-selection"
	StagePrecondition       Stage = "precondition"
	StageAction             Stage = "action"
	StagePostcondition      Stage = "postcondition"
	StageDone               Stage = "done"
)

// StageError wraps the cause of a pipeline failure with the stage it
// occurred in.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// AsStageError unwraps err into a StageError if one is in its chain.
func AsStageError(err error) (*StageError, bool) {
	var se *StageError
	ok := errors.As(err, &se)
	return se, ok
}

// errPostconditionFalse is the verdict-failed cause. Its text is part of
// the reporting contract: a false verdict must be distinguishable from a
// postcondition that errored.
var errPostconditionFalse = errors.New("Postcondition returned false")

// Run records one contract execution. A Run is created fresh per
// execution and never reused; each stage runs at most once and a failure
// aborts the remaining stages.
type Run struct {
	ID       string
	Contract string
	Params   Params
	Pre      any // precondition snapshot, retained on action failure for diagnostics
	Result   any // action result, nil unless the action completed
	Stage    Stage
	Err      error
	Skipped  bool // no valid instance available; not a test failure
	Started  time.Time
	Finished time.Time
}

// Passed reports whether the run completed with a true verdict.
func (r *Run) Passed() bool {
	return !r.Skipped && r.Err == nil && r.Stage == StageDone
}

// FailedAt returns the stage the run failed in, or StageDone.
func (r *Run) FailedAt() Stage {
	return r.Stage
}

// Recorder receives one journal line per completed run.
type Recorder interface {
	OK(summary string) error
	Error(summary string) error
}

// Runner drives contracts through the pipeline. Each Runner owns its
// sampler; two runners never share random state.
type Runner struct {
	smp     *sampler.Sampler
	log     *slog.Logger
	journal Recorder
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithJournal makes the runner emit one journal line per run.
func WithJournal(j Recorder) RunnerOption {
	return func(r *Runner) { r.journal = j }
}

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) RunnerOption {
	return func(r *Runner) { r.log = log }
}

// NewRunner creates a Runner drawing randomness from smp.
func NewRunner(smp *sampler.Sampler, opts ...RunnerOption) *Runner {
	r := &Runner{smp: smp, log: slog.Default()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run executes one contract instance through the pipeline and records
// the outcome. Stage failures are returned on the Run, not as the error;
// the error return is reserved for the run record being unusable
// (context cancellation during parameter selection, journal write
// failure).
func (r *Runner) Run(ctx context.Context, c Contract) (*Run, error) {
	run := &Run{
		ID:       uuid.NewString(),
		Contract: c.Name(),
		Stage:    StageParameterSelection,
		Started:  time.Now(),
	}
	defer func() { run.Finished = time.Now() }()

	skipped, err := r.selectParams(ctx, c, run)
	if err != nil {
		run.Err = &StageError{Stage: StageParameterSelection, Err: err}
		return run, r.record(run)
	}
	if skipped {
		run.Skipped = true
		r.log.Info("contract skipped, no valid instance",
			"contract", c.Name(), "run", run.ID)
		return run, nil
	}

	run.Stage = StagePrecondition
	pre, err := c.Precondition(ctx, run.Params)
	if err != nil {
		run.Err = &StageError{Stage: StagePrecondition, Err: err}
		return run, r.record(run)
	}
	run.Pre = pre

	run.Stage = StageAction
	result, err := c.Action(ctx, run.Params)
	if err != nil {
		run.Err = &StageError{Stage: StageAction, Err: err}
		return run, r.record(run)
	}
	run.Result = result

	run.Stage = StagePostcondition
	ok, err := c.Postcondition(ctx, run.Params, pre, result)
	if err != nil {
		run.Err = &StageError{
			Stage: StagePostcondition,
			Err:   fmt.Errorf("Postcondition error: %w", err),
		}
		return run, r.record(run)
	}
	if !ok {
		run.Err = &StageError{Stage: StagePostcondition, Err: errPostconditionFalse}
		return run, r.record(run)
	}

	run.Stage = StageDone
	r.log.Info("contract passed",
		"contract", c.Name(), "run", run.ID, "params", run.Params.Map())
	return run, r.record(run)
}

// selectParams walks the descriptor sequence in order, sampling each
// parameter. An empty list or an inverted range signals that no valid
// instance is available right now; the run is skipped, not failed.
func (r *Runner) selectParams(ctx context.Context, c Contract, run *Run) (skipped bool, err error) {
	for idx := 0; idx < c.ParamCount(); idx++ {
		if err := ctx.Err(); err != nil {
			return false, err
		}

		desc, err := c.NextParam(ctx, idx, run.Params)
		if err != nil {
			return false, fmt.Errorf("parameter %d: %w", idx, err)
		}

		switch desc.Kind {
		case KindList:
			if len(desc.Values) == 0 {
				return true, nil
			}
			var value string
			if len(desc.Weights) > 0 {
				alts := make([]sampler.Weighted[string], len(desc.Values))
				for i, v := range desc.Values {
					alts[i] = sampler.Weighted[string]{Weight: desc.Weights[i], Item: v}
				}
				value, err = sampler.WeightedSelect(r.smp, alts)
				if err != nil {
					return false, fmt.Errorf("parameter %s: %w", desc.Name, err)
				}
			} else {
				value = desc.Values[r.smp.IntN(len(desc.Values))]
			}
			run.Params = append(run.Params, Param{Name: desc.Name, Value: value})

		case KindRange:
			if desc.Min.Cmp(desc.Max) > 0 {
				return true, nil
			}
			v, err := r.smp.UniformInclusive(desc.Min, desc.Max)
			if err != nil {
				return false, fmt.Errorf("parameter %s: %w", desc.Name, err)
			}
			run.Params = append(run.Params, Param{Name: desc.Name, Value: v.String()})

		default:
			return false, fmt.Errorf("parameter %s: unknown kind %d", desc.Name, desc.Kind)
		}
	}
	return false, nil
}

// record emits the run's journal line. Journal failures are the only
// errors Run surfaces for an otherwise-recorded run.
func (r *Runner) record(run *Run) error {
	if run.Err != nil {
		r.log.Warn("contract failed",
			"contract", run.Contract,
			"run", run.ID,
			"stage", run.Stage,
			"error", run.Err,
		)
	}
	if r.journal == nil {
		return nil
	}
	summary := r.summarize(run)
	if run.Err != nil {
		return r.journal.Error(summary)
	}
	return r.journal.OK(summary)
}

func (r *Runner) summarize(run *Run) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s run=%s", run.Contract, run.ID)
	for _, p := range run.Params {
		fmt.Fprintf(&b, " %s=%s", p.Name, p.Value)
	}
	if run.Err != nil {
		fmt.Fprintf(&b, " %v", run.Err)
	}
	return b.String()
}
