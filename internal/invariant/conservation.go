package invariant

import (
	"context"
	"fmt"

	"github.com/cockroachdb/apd/v3"

	"github.com/gztensor/qa-automation/internal/chain"
	"github.com/gztensor/qa-automation/internal/fixed"
)

// DefaultEpsilonDivisor makes the absolute comparison epsilon proportional
// to the expected magnitude: epsilon = expected / divisor. The 1/1000
// policy tolerates intra-block rounding without masking real drift.
const DefaultEpsilonDivisor = int64(1000)

// ConservationRule verifies that per-entity numeric fields sum to a
// separately stored aggregate: the shares attributed to each owner across
// SharesMap must equal the total recorded in TotalMap, plus any amount
// still parked in PendingMap.
//
// Accumulation uses the exact decoder — never floats — so error cannot
// build up across many additions; only the final comparison is tolerant.
type ConservationRule struct {
	RuleID    string
	SharesMap string // (owner, member, partition) -> share, fixed-point
	TotalMap  string // (owner, partition) -> total, fixed-point
	PendingMap string // optional: (owner, partition) -> not-yet-attributed share
	Format    fixed.Format

	// EpsilonDivisor overrides DefaultEpsilonDivisor when > 0.
	EpsilonDivisor int64
}

// ID implements Rule.
func (r *ConservationRule) ID() string {
	return r.RuleID
}

// Check implements Rule.
func (r *ConservationRule) Check(ctx context.Context, src Source) ([]Violation, error) {
	ctxDec := apd.BaseContext.WithPrecision(50)

	// One pass over the shares map, grouping exact sums by (owner, partition).
	sums := make(map[[2]string]*apd.Decimal)
	var decodeErr error
	err := src.Scanner.Each(ctx, r.SharesMap, nil, func(e chain.Entry) bool {
		if len(e.Key) < 3 {
			decodeErr = fmt.Errorf("%s: key %s has %d components, want 3", r.SharesMap, e.Key, len(e.Key))
			return false
		}
		share, err := r.Format.DecodeExactRaw(e.Value)
		if err != nil {
			decodeErr = fmt.Errorf("%s[%s]: %w", r.SharesMap, e.Key, err)
			return false
		}
		group := [2]string{e.Key[0], e.Key[2]}
		sum, ok := sums[group]
		if !ok {
			sum = apd.New(0, 0)
			sums[group] = sum
		}
		if _, err := ctxDec.Add(sum, sum, share); err != nil {
			decodeErr = fmt.Errorf("%s[%s]: accumulate: %w", r.SharesMap, e.Key, err)
			return false
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}

	divisor := r.EpsilonDivisor
	if divisor <= 0 {
		divisor = DefaultEpsilonDivisor
	}

	var violations []Violation
	checked := make(map[[2]string]bool)

	err = src.Scanner.Each(ctx, r.TotalMap, nil, func(e chain.Entry) bool {
		if len(e.Key) < 2 {
			decodeErr = fmt.Errorf("%s: key %s has %d components, want 2", r.TotalMap, e.Key, len(e.Key))
			return false
		}
		group := [2]string{e.Key[0], e.Key[1]}
		checked[group] = true

		total, err := r.Format.DecodeExactRaw(e.Value)
		if err != nil {
			decodeErr = fmt.Errorf("%s[%s]: %w", r.TotalMap, e.Key, err)
			return false
		}

		sum, ok := sums[group]
		if !ok {
			sum = apd.New(0, 0)
		}

		lhs := new(apd.Decimal).Set(sum)
		if r.PendingMap != "" {
			pending, err := r.readPending(ctx, src, chain.Key{e.Key[0], e.Key[1]})
			if err != nil {
				decodeErr = err
				return false
			}
			if _, err := ctxDec.Add(lhs, lhs, pending); err != nil {
				decodeErr = fmt.Errorf("%s[%s]: add pending: %w", r.TotalMap, e.Key, err)
				return false
			}
		}

		// epsilon = expected / divisor
		eps := new(apd.Decimal)
		if _, err := ctxDec.Quo(eps, total, apd.New(divisor, 0)); err != nil {
			decodeErr = fmt.Errorf("%s[%s]: epsilon: %w", r.TotalMap, e.Key, err)
			return false
		}
		eps.Abs(eps)

		equal, err := fixed.ApproxEqualAbsDecimal(lhs, total, eps)
		if err != nil {
			decodeErr = fmt.Errorf("%s[%s]: compare: %w", r.TotalMap, e.Key, err)
			return false
		}
		if !equal {
			violations = append(violations, Violation{
				Rule: r.RuleID,
				Message: fmt.Sprintf("owner %s subnet %s: shares sum %s != stored total %s",
					e.Key[0], e.Key[1], lhs.Text('f'), total.Text('f')),
				Keys: []string{e.Key[0], e.Key[1]},
			})
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, decodeErr
	}

	// Shares with no recorded aggregate are a conservation failure too.
	for group := range sums {
		if !checked[group] {
			violations = append(violations, Violation{
				Rule: r.RuleID,
				Message: fmt.Sprintf("owner %s subnet %s: shares present but no total in %s",
					group[0], group[1], r.TotalMap),
				Keys: []string{group[0], group[1]},
			})
		}
	}

	return violations, nil
}

func (r *ConservationRule) readPending(ctx context.Context, src Source, key chain.Key) (*apd.Decimal, error) {
	raw, err := src.Querier.ReadField(ctx, r.PendingMap, key)
	if err != nil {
		if chainNotFound(err) {
			return apd.New(0, 0), nil
		}
		return nil, fmt.Errorf("read %s[%s]: %w", r.PendingMap, key, err)
	}
	pending, err := r.Format.DecodeExactRaw(raw)
	if err != nil {
		return nil, fmt.Errorf("%s[%s]: %w", r.PendingMap, key, err)
	}
	return pending, nil
}
