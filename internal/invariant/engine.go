// Package invariant implements the rule engine that scans ledger storage
// and verifies structural and numeric invariants.
//
// Rules are registered explicitly at startup under unique ids. A rule
// returns every violation it finds — failure is diagnostic, not fail-fast —
// and only infrastructure failures (scan or decode errors) abort a rule.
// Violations are data: the engine logs each one and aggregates them into a
// Report; it never panics or short-circuits the remaining rules.
package invariant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gztensor/qa-automation/internal/chain"
	"github.com/gztensor/qa-automation/internal/scanner"
)

// Violation is one invariant breach: the rule that found it, a human
// message, and the storage keys involved.
type Violation struct {
	Rule    string
	Message string
	Keys    []string
}

// Source bundles the storage access a rule needs: raw point reads and
// paginated scans over the same Querier.
type Source struct {
	Querier chain.Querier
	Scanner *scanner.Scanner
}

// NewSource builds a Source with a scanner over q.
func NewSource(q chain.Querier, opts ...scanner.Option) Source {
	return Source{Querier: q, Scanner: scanner.New(q, opts...)}
}

// Rule is one named invariant check. Check must be stateless across
// invocations; any accumulator maps it builds are discarded on return.
type Rule interface {
	ID() string
	Check(ctx context.Context, src Source) ([]Violation, error)
}

// RuleResult records one rule invocation within a run.
type RuleResult struct {
	RuleID     string
	Violations []Violation
	Err        error // infrastructure failure; nil when the rule ran to completion
	Elapsed    time.Duration
}

// Passed reports whether the rule ran cleanly with zero violations.
func (r RuleResult) Passed() bool {
	return r.Err == nil && len(r.Violations) == 0
}

// Report aggregates one full engine run.
type Report struct {
	Results []RuleResult
}

// Passed reports whether every rule ran cleanly with zero violations.
// Partial successes are never reported as full successes: a rule that
// failed on infrastructure counts as not passed.
func (r *Report) Passed() bool {
	for _, res := range r.Results {
		if !res.Passed() {
			return false
		}
	}
	return true
}

// TotalViolations counts violations across all rules.
func (r *Report) TotalViolations() int {
	n := 0
	for _, res := range r.Results {
		n += len(res.Violations)
	}
	return n
}

// Engine is the registry of invariant rules.
type Engine struct {
	rules []Rule
	src   Source
	log   *slog.Logger
}

// NewEngine creates an engine reading from src.
func NewEngine(src Source, log *slog.Logger) *Engine {
	if log == nil {
		log = slog.Default()
	}
	return &Engine{src: src, log: log}
}

// Register adds a rule. Rule ids must be unique; registration order is
// the run order.
func (e *Engine) Register(r Rule) error {
	for _, existing := range e.rules {
		if existing.ID() == r.ID() {
			return fmt.Errorf("duplicate rule id: %s", r.ID())
		}
	}
	e.rules = append(e.rules, r)
	return nil
}

// Rules returns the registered rule ids in run order.
func (e *Engine) Rules() []string {
	ids := make([]string, len(e.rules))
	for i, r := range e.rules {
		ids[i] = r.ID()
	}
	return ids
}

// RunAll runs every registered rule and aggregates a Report. A rule's
// infrastructure failure is recorded on its result and does not stop the
// remaining rules; ctx cancellation does.
func (e *Engine) RunAll(ctx context.Context) (*Report, error) {
	report := &Report{Results: make([]RuleResult, 0, len(e.rules))}

	for _, rule := range e.rules {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		start := time.Now()
		violations, err := rule.Check(ctx, e.src)
		elapsed := time.Since(start)

		result := RuleResult{
			RuleID:     rule.ID(),
			Violations: violations,
			Err:        err,
			Elapsed:    elapsed,
		}
		report.Results = append(report.Results, result)

		if err != nil {
			e.log.Error("invariant rule failed",
				"rule", rule.ID(),
				"error", err,
				"elapsed", elapsed,
			)
			continue
		}

		// Logging every violation is mandatory, not optional.
		for _, v := range violations {
			e.log.Warn("invariant violation",
				"rule", v.Rule,
				"message", v.Message,
				"keys", v.Keys,
			)
		}

		e.log.Info("invariant rule finished",
			"rule", rule.ID(),
			"violations", len(violations),
			"elapsed", elapsed,
		)
	}

	return report, nil
}

func chainNotFound(err error) bool {
	return errors.Is(err, chain.ErrNotFound)
}

// Partitions enumerates the partition keys (netuids) a rule iterates.
type Partitions func(ctx context.Context, src Source) ([]string, error)

// PartitionsFromMap lists the first key component of every entry in a
// single-keyed membership map (e.g. NetworksAdded: netuid -> "1").
func PartitionsFromMap(mapID string) Partitions {
	return func(ctx context.Context, src Source) ([]string, error) {
		entries, err := src.Scanner.Collect(ctx, mapID, nil)
		if err != nil {
			return nil, fmt.Errorf("list partitions from %s: %w", mapID, err)
		}
		parts := make([]string, 0, len(entries))
		for _, e := range entries {
			if len(e.Key) == 0 {
				continue
			}
			parts = append(parts, e.Key[0])
		}
		return parts, nil
	}
}
