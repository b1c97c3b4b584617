// Package contract models one ledger-mutating operation as a staged
// pipeline: parameter selection, precondition capture, action execution,
// postcondition verification. Contracts are declarative descriptions of
// an operation's legal parameter space and its expected state deltas;
// the Runner drives the stages and records the outcome.
package contract

import (
	"context"
	"math/big"
)

// Kind discriminates how a parameter's legal values are described.
type Kind int

const (
	// KindList enumerates the legal values explicitly.
	KindList Kind = iota
	// KindRange gives an inclusive numeric [Min, Max] interval.
	KindRange
)

// Descriptor describes one parameter of a contract. Descriptors are
// produced lazily and strictly in order because later ones may depend on
// earlier chosen values (a hotkey choice depends on the chosen netuid).
type Descriptor struct {
	Name   string
	Kind   Kind
	Values []string // KindList: the legal values, in order

	// Weights optionally biases list selection; when empty the choice is
	// uniform. Length must match Values when set.
	Weights []float64

	Min *big.Int // KindRange bounds, inclusive
	Max *big.Int
}

// Param is one chosen parameter value.
type Param struct {
	Name  string
	Value string
}

// Params is the finalized parameter set of one run.
type Params []Param

// Get returns the value chosen for name, or "" when absent.
func (ps Params) Get(name string) string {
	for _, p := range ps {
		if p.Name == name {
			return p.Value
		}
	}
	return ""
}

// Map returns the parameters as an argument map for submission.
func (ps Params) Map() map[string]string {
	m := make(map[string]string, len(ps))
	for _, p := range ps {
		m[p.Name] = p.Value
	}
	return m
}

// Contract is one named ledger operation under test. Implementations own
// no mutable ledger state; all access goes through their injected
// querier and submitter.
//
// Precondition captures a snapshot of every field the action is expected
// to mutate and returns it as an opaque value handed unmodified to
// Postcondition. Action performs the mutation and returns an opaque
// result, commonly the confirmed amount. Postcondition re-reads the same
// fields and returns the verdict; false is the normal assertion-failed
// path, an error is a distinct failure mode.
type Contract interface {
	Name() string
	Scope() string
	ParamCount() int
	NextParam(ctx context.Context, idx int, chosen Params) (Descriptor, error)
	Precondition(ctx context.Context, params Params) (any, error)
	Action(ctx context.Context, params Params) (any, error)
	Postcondition(ctx context.Context, params Params, pre, result any) (bool, error)
}
