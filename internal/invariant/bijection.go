package invariant

import (
	"context"
	"fmt"
	"strconv"

	"github.com/gztensor/qa-automation/internal/chain"
)

// BijectionRule verifies that two per-partition maps are mutual inverses
// over the same cardinality: Forward maps sub-key to value (uid -> hotkey)
// and Reverse maps value back to sub-key (hotkey -> uid), with the entry
// count stored separately in CountMap.
//
// Every mismatch class is reported individually with no short-circuiting:
// cardinality drift against the stored count, value duplication, key/value
// set mismatch, and point-wise inversion failures in both directions.
type BijectionRule struct {
	RuleID     string
	Partition  Partitions
	ForwardMap string // (partition, subKey) -> value
	ReverseMap string // (partition, value) -> subKey
	CountMap   string // (partition) -> expected cardinality
}

// ID implements Rule.
func (r *BijectionRule) ID() string {
	return r.RuleID
}

// Check implements Rule.
func (r *BijectionRule) Check(ctx context.Context, src Source) ([]Violation, error) {
	parts, err := r.Partition(ctx, src)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	for _, part := range parts {
		vs, err := r.checkPartition(ctx, src, part)
		if err != nil {
			return nil, err
		}
		violations = append(violations, vs...)
	}
	return violations, nil
}

func (r *BijectionRule) checkPartition(ctx context.Context, src Source, part string) ([]Violation, error) {
	forward := make(map[string]string) // subKey -> value
	err := src.Scanner.Each(ctx, r.ForwardMap, chain.Key{part}, func(e chain.Entry) bool {
		if len(e.Key) >= 2 {
			forward[e.Key[1]] = e.Value
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	reverse := make(map[string]string) // value -> subKey
	err = src.Scanner.Each(ctx, r.ReverseMap, chain.Key{part}, func(e chain.Entry) bool {
		if len(e.Key) >= 2 {
			reverse[e.Key[1]] = e.Value
		}
		return true
	})
	if err != nil {
		return nil, err
	}

	rawCount, err := src.Querier.ReadField(ctx, r.CountMap, chain.Key{part})
	if err != nil {
		return nil, fmt.Errorf("read %s[%s]: %w", r.CountMap, part, err)
	}
	count, err := strconv.ParseUint(rawCount, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("parse %s[%s]=%q: %w", r.CountMap, part, rawCount, err)
	}

	var violations []Violation
	report := func(msg string, keys ...string) {
		violations = append(violations, Violation{Rule: r.RuleID, Message: msg, Keys: keys})
	}

	if uint64(len(forward)) != count {
		report(fmt.Sprintf("subnet %s: %s has %d entries, stored count is %d",
			part, r.ForwardMap, len(forward), count), part)
	}
	if uint64(len(reverse)) != count {
		report(fmt.Sprintf("subnet %s: %s has %d entries, stored count is %d",
			part, r.ReverseMap, len(reverse), count), part)
	}

	// Duplicate values in the forward map break injectivity on their own.
	seen := make(map[string][]string)
	for subKey, value := range forward {
		seen[value] = append(seen[value], subKey)
	}
	for value, subKeys := range seen {
		if len(subKeys) > 1 {
			report(fmt.Sprintf("subnet %s: value %s mapped by %d forward keys",
				part, value, len(subKeys)), append([]string{part, value}, subKeys...)...)
		}
	}

	// Value-set of forward must equal key-set of reverse, both directions.
	for value := range seen {
		if _, ok := reverse[value]; !ok {
			report(fmt.Sprintf("subnet %s: forward value %s missing from %s",
				part, value, r.ReverseMap), part, value)
		}
	}
	for value := range reverse {
		if _, ok := seen[value]; !ok {
			report(fmt.Sprintf("subnet %s: reverse key %s missing from %s values",
				part, value, r.ForwardMap), part, value)
		}
	}

	// Point-wise inversion, both directions.
	for subKey, value := range forward {
		if back, ok := reverse[value]; ok && back != subKey {
			report(fmt.Sprintf("subnet %s: forward %s->%s but reverse %s->%s",
				part, subKey, value, value, back), part, subKey, value)
		}
	}
	for value, subKey := range reverse {
		if fwd, ok := forward[subKey]; ok && fwd != value {
			report(fmt.Sprintf("subnet %s: reverse %s->%s but forward %s->%s",
				part, value, subKey, subKey, fwd), part, value, subKey)
		}
	}

	return violations, nil
}
