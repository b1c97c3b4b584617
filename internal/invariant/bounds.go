package invariant

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gztensor/qa-automation/internal/chain"
)

// BoundRule verifies that a stored per-partition count never exceeds its
// separately stored configured maximum. All partitions are checked; the
// rule does not stop at the first violation.
type BoundRule struct {
	RuleID    string
	Partition Partitions
	ValueMap  string // (partition) -> current count
	MaxMap    string // (partition) -> configured maximum
}

// ID implements Rule.
func (r *BoundRule) ID() string {
	return r.RuleID
}

// Check implements Rule.
func (r *BoundRule) Check(ctx context.Context, src Source) ([]Violation, error) {
	parts, err := r.Partition(ctx, src)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, part := range parts {
		value, err := r.readUint(ctx, src, r.ValueMap, part)
		if err != nil {
			return nil, err
		}
		max, err := r.readUint(ctx, src, r.MaxMap, part)
		if err != nil {
			return nil, err
		}

		if value > max {
			violations = append(violations, Violation{
				Rule: r.RuleID,
				Message: fmt.Sprintf("subnet %s: %s=%d exceeds %s=%d",
					part, r.ValueMap, value, r.MaxMap, max),
				Keys: []string{part},
			})
		}
	}
	return violations, nil
}

func (r *BoundRule) readUint(ctx context.Context, src Source, mapID, part string) (uint64, error) {
	raw, err := src.Querier.ReadField(ctx, mapID, chain.Key{part})
	if err != nil {
		return 0, fmt.Errorf("read %s[%s]: %w", mapID, part, err)
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse %s[%s]=%q: %w", mapID, part, raw, err)
	}
	return v, nil
}
