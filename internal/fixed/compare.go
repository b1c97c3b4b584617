package fixed

import (
	"fmt"
	"math/big"

	"github.com/cockroachdb/apd/v3"
)

// Number covers the machine numeric types the comparator accepts.
type Number interface {
	~int | ~int64 | ~uint64 | ~float64
}

// ApproxEqualAbs reports |a-b| <= eps for same-typed machine numerics.
// The difference is computed branch-wise so unsigned operands never wrap.
func ApproxEqualAbs[T Number](a, b, eps T) bool {
	if a >= b {
		return a-b <= eps
	}
	return b-a <= eps
}

// ApproxEqualAbsDecimal reports |a-b| <= eps in exact decimal arithmetic.
func ApproxEqualAbsDecimal(a, b, eps *apd.Decimal) (bool, error) {
	diff := new(apd.Decimal)
	if _, err := decCtx.Sub(diff, a, b); err != nil {
		return false, fmt.Errorf("decimal sub: %w", err)
	}
	diff.Abs(diff)
	return diff.Cmp(eps) <= 0, nil
}

// ApproxEqualAbsValue is the dynamically-typed form for callers holding
// operands as any. Operand types must match exactly; a mismatch returns
// TypeMismatchError. Supported types: int64, uint64, float64, *apd.Decimal.
func ApproxEqualAbsValue(a, b, eps any) (bool, error) {
	switch av := a.(type) {
	case int64:
		bv, ok1 := b.(int64)
		ev, ok2 := eps.(int64)
		if !ok1 || !ok2 {
			return false, mismatch(a, b)
		}
		return ApproxEqualAbs(av, bv, ev), nil
	case uint64:
		bv, ok1 := b.(uint64)
		ev, ok2 := eps.(uint64)
		if !ok1 || !ok2 {
			return false, mismatch(a, b)
		}
		return ApproxEqualAbs(av, bv, ev), nil
	case float64:
		bv, ok1 := b.(float64)
		ev, ok2 := eps.(float64)
		if !ok1 || !ok2 {
			return false, mismatch(a, b)
		}
		return ApproxEqualAbs(av, bv, ev), nil
	case *apd.Decimal:
		bv, ok1 := b.(*apd.Decimal)
		ev, ok2 := eps.(*apd.Decimal)
		if !ok1 || !ok2 {
			return false, mismatch(a, b)
		}
		return ApproxEqualAbsDecimal(av, bv, ev)
	default:
		return false, mismatch(a, b)
	}
}

// ApproxEqualRel reports |a-b| / max(|a|,|b|,1) <= tol for floats.
// The 1 in the denominator keeps the check meaningful near zero.
func ApproxEqualRel(a, b, tol float64) bool {
	diff := a - b
	if diff < 0 {
		diff = -diff
	}
	denom := max(abs(a), abs(b), 1)
	return diff/denom <= tol
}

// ApproxEqualRelDecimal is the exact-decimal form of ApproxEqualRel.
func ApproxEqualRelDecimal(a, b, tol *apd.Decimal) (bool, error) {
	diff := new(apd.Decimal)
	if _, err := decCtx.Sub(diff, a, b); err != nil {
		return false, fmt.Errorf("decimal sub: %w", err)
	}
	diff.Abs(diff)

	absA := new(apd.Decimal).Abs(a)
	absB := new(apd.Decimal).Abs(b)
	denom := absA
	if absB.Cmp(denom) > 0 {
		denom = absB
	}
	one := apd.New(1, 0)
	if one.Cmp(denom) > 0 {
		denom = one
	}

	// |a-b| <= denom * tol, rearranged to avoid a division
	bound := new(apd.Decimal)
	if _, err := decCtx.Mul(bound, denom, tol); err != nil {
		return false, fmt.Errorf("decimal mul: %w", err)
	}
	return diff.Cmp(bound) <= 0, nil
}

// ApproxEqualRelInt is the integer-only relative check with the tolerance
// expressed as a ratio relNum/relDenom. Computed in big.Int so the cross
// multiplication cannot overflow:
//
//	|a-b| * relDenom <= max(|a|,|b|,1) * relNum
func ApproxEqualRelInt(a, b, relNum, relDenom uint64) bool {
	var diff uint64
	if a >= b {
		diff = a - b
	} else {
		diff = b - a
	}
	denom := max(a, b, 1)

	lhs := new(big.Int).Mul(
		new(big.Int).SetUint64(diff),
		new(big.Int).SetUint64(relDenom),
	)
	rhs := new(big.Int).Mul(
		new(big.Int).SetUint64(denom),
		new(big.Int).SetUint64(relNum),
	)
	return lhs.Cmp(rhs) <= 0
}

func abs(x float64) float64 {
	if x < 0 {
		return -x
	}
	return x
}

func mismatch(a, b any) *TypeMismatchError {
	return &TypeMismatchError{A: fmt.Sprintf("%T", a), B: fmt.Sprintf("%T", b)}
}
