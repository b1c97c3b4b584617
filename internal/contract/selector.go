package contract

import (
	"fmt"

	"github.com/gztensor/qa-automation/internal/sampler"
)

// Selector holds the weighted contract catalog a fuzz loop draws from.
type Selector struct {
	alts []sampler.Weighted[Contract]
}

// NewSelector creates an empty selector.
func NewSelector() *Selector {
	return &Selector{}
}

// Add registers a contract with its selection weight. Weights need not
// sum to 1. Contract names must be unique.
func (s *Selector) Add(weight float64, c Contract) error {
	if weight <= 0 {
		return fmt.Errorf("contract %s: weight must be positive, got %v", c.Name(), weight)
	}
	for _, alt := range s.alts {
		if alt.Item.Name() == c.Name() {
			return fmt.Errorf("duplicate contract name: %s", c.Name())
		}
	}
	s.alts = append(s.alts, sampler.Weighted[Contract]{Weight: weight, Item: c})
	return nil
}

// Names returns the registered contract names in registration order.
func (s *Selector) Names() []string {
	names := make([]string, len(s.alts))
	for i, alt := range s.alts {
		names[i] = alt.Item.Name()
	}
	return names
}

// Pick draws one contract with probability proportional to its weight.
func (s *Selector) Pick(smp *sampler.Sampler) (Contract, error) {
	return sampler.WeightedSelect(smp, s.alts)
}
