// Package fixed decodes wire-format binary fixed-point numbers and compares
// numeric values under absolute or relative tolerance.
//
// The ledger stores balances, shares, and prices as unsigned Qm.n values
// (m integer bits, n fractional bits) serialized as hex or decimal text.
// Two decoders are provided: a lossy float64 form for comparison-grade
// precision, and an exact arbitrary-precision decimal form for conservation
// and ratio checks where float error must not accumulate across many
// additions.
package fixed

import (
	"math"
	"math/big"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

// Format describes a binary fixed-point layout: IntBits integer bits
// followed by FracBits fractional bits. All formats here are unsigned.
type Format struct {
	IntBits  uint
	FracBits uint
}

// Formats used by the ledger's storage maps.
var (
	// U64F64 is the Q64.64 format used for shares, alpha, and prices.
	U64F64 = Format{IntBits: 64, FracBits: 64}

	// U96F32 is the Q96.32 format used for intermediate swap math.
	U96F32 = Format{IntBits: 96, FracBits: 32}

	// U128F0 is a plain 128-bit unsigned integer (no fractional part).
	U128F0 = Format{IntBits: 128, FracBits: 0}
)

// decCtx is the decimal context for exact decoding and accumulation.
// 50 digits comfortably covers Q128.64 magnitudes plus guard digits.
var decCtx = apd.BaseContext.WithPrecision(50)

// ParseBits parses a raw wire value into an unsigned big integer.
// Accepts decimal text ("123456") and hex text with or without a 0x prefix.
// Returns a DecodeError for malformed or negative input.
func ParseBits(raw string) (*big.Int, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return nil, &DecodeError{Input: raw, Reason: "empty value"}
	}

	if rest, ok := strings.CutPrefix(s, "0x"); ok {
		n, ok := new(big.Int).SetString(rest, 16)
		if !ok {
			return nil, &DecodeError{Input: raw, Reason: "invalid hex"}
		}
		return n, nil
	}

	if n, ok := new(big.Int).SetString(s, 10); ok {
		if n.Sign() < 0 {
			return nil, &DecodeError{Input: raw, Reason: "negative value"}
		}
		return n, nil
	}

	// Bare hex without prefix (some RPC layers strip the 0x)
	if n, ok := new(big.Int).SetString(s, 16); ok {
		return n, nil
	}

	return nil, &DecodeError{Input: raw, Reason: "not valid integer or hex text"}
}

// DecodeApprox splits bits into integer and fractional parts per the format
// and returns intPart + fracPart/2^FracBits computed in float64.
// Intentionally lossy; use DecodeExact where sums must not drift.
func (f Format) DecodeApprox(bits *big.Int) (float64, error) {
	if err := f.checkBits(bits); err != nil {
		return 0, err
	}

	if f.FracBits == 0 {
		v, _ := new(big.Float).SetInt(bits).Float64()
		return v, nil
	}

	intPart := new(big.Int).Rsh(bits, f.FracBits)
	fracPart := new(big.Int).And(bits, fracMask(f.FracBits))

	intF, _ := new(big.Float).SetInt(intPart).Float64()
	fracF, _ := new(big.Float).SetInt(fracPart).Float64()
	return intF + fracF/math.Pow(2, float64(f.FracBits)), nil
}

// DecodeExact performs the same split but divides the fractional part in
// arbitrary-precision decimal arithmetic.
func (f Format) DecodeExact(bits *big.Int) (*apd.Decimal, error) {
	if err := f.checkBits(bits); err != nil {
		return nil, err
	}

	if f.FracBits == 0 {
		return decimalFromBig(bits), nil
	}

	intPart := new(big.Int).Rsh(bits, f.FracBits)
	fracPart := new(big.Int).And(bits, fracMask(f.FracBits))
	denom := new(big.Int).Lsh(big.NewInt(1), f.FracBits)

	frac := new(apd.Decimal)
	if _, err := decCtx.Quo(frac, decimalFromBig(fracPart), decimalFromBig(denom)); err != nil {
		return nil, &DecodeError{Input: bits.String(), Reason: err.Error()}
	}

	out := new(apd.Decimal)
	if _, err := decCtx.Add(out, decimalFromBig(intPart), frac); err != nil {
		return nil, &DecodeError{Input: bits.String(), Reason: err.Error()}
	}
	return out, nil
}

// DecodeApproxRaw parses raw text and decodes it in one step.
func (f Format) DecodeApproxRaw(raw string) (float64, error) {
	bits, err := ParseBits(raw)
	if err != nil {
		return 0, err
	}
	return f.DecodeApprox(bits)
}

// DecodeExactRaw parses raw text and decodes it in one step.
func (f Format) DecodeExactRaw(raw string) (*apd.Decimal, error) {
	bits, err := ParseBits(raw)
	if err != nil {
		return nil, err
	}
	return f.DecodeExact(bits)
}

// Width returns the total bit width of the format.
func (f Format) Width() uint {
	return f.IntBits + f.FracBits
}

func (f Format) checkBits(bits *big.Int) error {
	if bits.Sign() < 0 {
		return &DecodeError{Input: bits.String(), Reason: "negative bit pattern"}
	}
	if uint(bits.BitLen()) > f.Width() {
		return &DecodeError{Input: bits.String(), Reason: "value exceeds declared bit width"}
	}
	return nil
}

func fracMask(fracBits uint) *big.Int {
	mask := new(big.Int).Lsh(big.NewInt(1), fracBits)
	return mask.Sub(mask, big.NewInt(1))
}

func decimalFromBig(n *big.Int) *apd.Decimal {
	return apd.NewWithBigInt(new(apd.BigInt).SetMathBigInt(n), 0)
}

// NewDecimal returns an exact decimal for an unsigned integer amount.
// Convenience for building expected values and tolerances in rules.
func NewDecimal(n uint64) *apd.Decimal {
	return apd.NewWithBigInt(new(apd.BigInt).SetUint64(n), 0)
}
