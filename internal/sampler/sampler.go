// Package sampler provides the randomized selection primitives used by the
// fuzzing framework: uniform integer sampling over arbitrarily wide
// inclusive ranges, and cumulative-probability weighted selection.
//
// A Sampler owns its random source and is seeded explicitly so that fuzz
// runs are reproducible from a logged seed. Samplers are not safe for
// concurrent use; give each contract runner its own instance.
package sampler

import (
	"math/big"
	"math/rand/v2"
)

// maxDirectSpan is the largest range span sampled directly from a single
// 64-bit draw. Wider spans use rejection sampling on random bit chunks.
const maxDirectSpan = 1 << 53

// Sampler draws random values from an explicitly seeded source.
type Sampler struct {
	rng *rand.Rand
}

// New creates a Sampler seeded from the given value.
func New(seed uint64) *Sampler {
	return &Sampler{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// UniformInclusive returns a uniformly random integer in [min, max].
// Ranges wider than a double-safe span are handled by rejection sampling:
// random values of span.BitLen() bits are drawn until one falls below the
// span. Returns InvalidRangeError when max < min.
func (s *Sampler) UniformInclusive(min, max *big.Int) (*big.Int, error) {
	if max.Cmp(min) < 0 {
		return nil, &InvalidRangeError{Min: min.String(), Max: max.String()}
	}

	span := new(big.Int).Sub(max, min)
	span.Add(span, big.NewInt(1))

	if span.IsUint64() && span.Uint64() <= maxDirectSpan {
		off := s.rng.Uint64N(span.Uint64())
		out := new(big.Int).SetUint64(off)
		return out.Add(out, min), nil
	}

	// Rejection sampling: draw span.BitLen() random bits until < span.
	// Expected iterations < 2 since span > 2^(bitLen-1).
	bits := span.BitLen()
	words := (bits + 63) / 64
	topBits := uint(bits % 64) // bits in the most significant word; 0 means full

	draw := new(big.Int)
	chunk := new(big.Int)
	for {
		draw.SetUint64(0)
		for w := 0; w < words; w++ {
			v := s.rng.Uint64()
			if w == 0 && topBits != 0 {
				v &= uint64(1)<<topBits - 1
			}
			draw.Lsh(draw, 64)
			draw.Or(draw, chunk.SetUint64(v))
		}
		if draw.Cmp(span) < 0 {
			break
		}
	}
	return draw.Add(draw, min), nil
}

// Uint64Range returns a uniformly random uint64 in [min, max].
func (s *Sampler) Uint64Range(min, max uint64) (uint64, error) {
	if max < min {
		return 0, &InvalidRangeError{Min: formatUint(min), Max: formatUint(max)}
	}
	span := max - min
	if span == ^uint64(0) {
		return s.rng.Uint64(), nil
	}
	return min + s.rng.Uint64N(span+1), nil
}

// Float64 returns a uniform sample in [0, 1).
func (s *Sampler) Float64() float64 {
	return s.rng.Float64()
}

// IntN returns a uniform sample in [0, n). Panics if n <= 0, matching
// math/rand/v2 semantics; callers validate n via their descriptors.
func (s *Sampler) IntN(n int) int {
	return s.rng.IntN(n)
}

// Weighted pairs a selection weight with an item. Weights need not sum
// to 1; the final cumulative value is the effective total.
type Weighted[T any] struct {
	Weight float64
	Item   T
}

// WeightedSelect picks one alternative with probability proportional to its
// weight. The cumulative bounds partition [0, total); the first alternative
// whose bound is >= the drawn sample wins, with the last alternative as a
// fallback for float rounding at the top edge. An empty list returns
// InvalidRangeError.
func WeightedSelect[T any](s *Sampler, alts []Weighted[T]) (T, error) {
	var zero T
	if len(alts) == 0 {
		return zero, &InvalidRangeError{Min: "0", Max: "-1"}
	}

	var total float64
	for _, alt := range alts {
		total += alt.Weight
	}

	target := s.Float64() * total
	var cum float64
	for _, alt := range alts {
		cum += alt.Weight
		if cum >= target {
			return alt.Item, nil
		}
	}
	return alts[len(alts)-1].Item, nil
}

func formatUint(v uint64) string {
	return new(big.Int).SetUint64(v).String()
}
