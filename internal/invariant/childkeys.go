package invariant

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/gztensor/qa-automation/internal/chain"
)

// Edge is one weighted delegation edge to a child account.
type Edge struct {
	Proportion uint64
	Account    string
}

// EdgeParser decodes the raw edge-list value of a delegation map entry.
type EdgeParser func(raw string) ([]Edge, error)

// ChildkeyRule verifies the delegation graph per partition:
//
//   - No cycles. Edges from ForwardMap and PendingMap merge into one
//     adjacency list (pending edges would complete a cycle on activation,
//     so they count); an iterative three-color depth-first traversal
//     reports every back edge — self-loops included — with the full path.
//   - Per-parent proportion sums lie in (0, Scale].
//   - ForwardMap (parent -> children) and ReverseMap (child -> parents)
//     agree, checked as two one-way implications so a violation names the
//     side missing the edge. Pending edges are excluded here: they have
//     no reverse entry until finalized.
type ChildkeyRule struct {
	RuleID     string
	Partition  Partitions
	ForwardMap string // (parent, partition) -> edge list
	PendingMap string // optional: (parent, partition) -> edge list, not yet finalized
	ReverseMap string // (child, partition) -> edge list back to parents
	Scale      *big.Int
	ParseEdges EdgeParser
}

// ID implements Rule.
func (r *ChildkeyRule) ID() string {
	return r.RuleID
}

// Check implements Rule.
func (r *ChildkeyRule) Check(ctx context.Context, src Source) ([]Violation, error) {
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

func (r *ChildkeyRule) checkPartition(ctx context.Context, src Source, part string) ([]Violation, error) {
	finalized, err := r.collectEdges(ctx, src, r.ForwardMap, part)
	if err != nil {
		return nil, err
	}

	pending := map[string][]Edge{}
	if r.PendingMap != "" {
		pending, err = r.collectEdges(ctx, src, r.PendingMap, part)
		if err != nil {
			return nil, err
		}
	}

	reverse, err := r.collectEdges(ctx, src, r.ReverseMap, part)
	if err != nil {
		return nil, err
	}

	var violations []Violation
	report := func(msg string, keys ...string) {
		violations = append(violations, Violation{Rule: r.RuleID, Message: msg, Keys: keys})
	}

	// Proportion sums over finalized edges only; a pending set replaces
	// the current one on activation rather than adding to it.
	for parent, edges := range finalized {
		sum := new(big.Int)
		for _, e := range edges {
			sum.Add(sum, new(big.Int).SetUint64(e.Proportion))
		}
		if sum.Sign() == 0 {
			report(fmt.Sprintf("subnet %s: parent %s has zero total proportion", part, parent), part, parent)
		} else if sum.Cmp(r.Scale) > 0 {
			report(fmt.Sprintf("subnet %s: parent %s proportions sum to %s, exceeding scale %s",
				part, parent, sum, r.Scale), part, parent)
		}
	}

	// Merged adjacency for cycle detection.
	adjacency := make(map[string][]string)
	for parent, edges := range finalized {
		for _, e := range edges {
			adjacency[parent] = append(adjacency[parent], e.Account)
		}
	}
	for parent, edges := range pending {
		for _, e := range edges {
			adjacency[parent] = append(adjacency[parent], e.Account)
		}
	}

	for _, cycle := range findCycles(adjacency) {
		report(fmt.Sprintf("subnet %s: delegation cycle %s", part, strings.Join(cycle, " -> ")),
			append([]string{part}, cycle...)...)
	}

	// Forward => reverse: every finalized child edge must appear on the
	// child's parent list.
	for parent, edges := range finalized {
		for _, e := range edges {
			if !hasEdgeTo(reverse[e.Account], parent) {
				report(fmt.Sprintf("subnet %s: edge %s -> %s missing from %s",
					part, parent, e.Account, r.ReverseMap), part, parent, e.Account)
			}
		}
	}

	// Reverse => forward: every recorded parent must still list the child.
	for child, edges := range reverse {
		for _, e := range edges {
			if !hasEdgeTo(finalized[e.Account], child) {
				report(fmt.Sprintf("subnet %s: edge %s -> %s missing from %s",
					part, e.Account, child, r.ForwardMap), part, e.Account, child)
			}
		}
	}

	return violations, nil
}

// collectEdges gathers (account, partition) -> edges for one partition.
// The partition is the second key component, so this filters a full-map
// scan rather than using a key prefix.
func (r *ChildkeyRule) collectEdges(ctx context.Context, src Source, mapID, part string) (map[string][]Edge, error) {
	out := make(map[string][]Edge)
	var parseErr error
	err := src.Scanner.Each(ctx, mapID, nil, func(e chain.Entry) bool {
		if len(e.Key) < 2 || e.Key[1] != part {
			return true
		}
		edges, err := r.ParseEdges(e.Value)
		if err != nil {
			parseErr = fmt.Errorf("%s[%s]: %w", mapID, e.Key, err)
			return false
		}
		out[e.Key[0]] = edges
		return true
	})
	if err != nil {
		return nil, err
	}
	if parseErr != nil {
		return nil, parseErr
	}
	return out, nil
}

func hasEdgeTo(edges []Edge, account string) bool {
	for _, e := range edges {
		if e.Account == account {
			return true
		}
	}
	return false
}

// findCycles runs an iterative depth-first traversal with three-color
// marking over the adjacency list. A back edge to an in-progress node is
// a cycle; the returned path runs from the revisited node around to the
// node that closed the loop. Nodes already colored done are never
// revisited, so each cycle is reported once.
func findCycles(adjacency map[string][]string) [][]string {
	const (
		white = 0 // unvisited
		gray  = 1 // in progress, on the current path
		black = 2 // done
	)

	color := make(map[string]int)
	var cycles [][]string

	// Deterministic traversal order keeps violation output stable.
	roots := make([]string, 0, len(adjacency))
	for node := range adjacency {
		roots = append(roots, node)
	}
	sort.Strings(roots)

	type frame struct {
		node string
		next int
	}

	for _, root := range roots {
		if color[root] != white {
			continue
		}

		stack := []frame{{node: root}}
		color[root] = gray
		path := []string{root}

		for len(stack) > 0 {
			top := &stack[len(stack)-1]
			children := adjacency[top.node]

			if top.next < len(children) {
				child := children[top.next]
				top.next++

				switch color[child] {
				case white:
					color[child] = gray
					stack = append(stack, frame{node: child})
					path = append(path, child)
				case gray:
					// Back edge: slice the current path from the
					// revisited node and close the loop.
					start := 0
					for i, n := range path {
						if n == child {
							start = i
							break
						}
					}
					cycle := append(append([]string{}, path[start:]...), child)
					cycles = append(cycles, cycle)
				}
				continue
			}

			color[top.node] = black
			stack = stack[:len(stack)-1]
			path = path[:len(path)-1]
		}
	}

	return cycles
}
