package subtensor

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/gztensor/qa-automation/internal/invariant"
)

// Composite values join fields with '/' and list items with '|'. Account
// ids are base58 and tick indices are signed decimals, so neither
// separator can appear inside a field.
const (
	fieldSep = "/"
	listSep  = "|"
)

// ParseAmount decodes a non-negative decimal ledger amount.
func ParseAmount(raw string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("malformed amount %q", raw)
	}
	return v, nil
}

// ParseChildEdges decodes a "proportion/account|proportion/account" edge
// list. An empty value is an empty list.
func ParseChildEdges(raw string) ([]invariant.Edge, error) {
	if raw == "" {
		return nil, nil
	}
	items := strings.Split(raw, listSep)
	edges := make([]invariant.Edge, 0, len(items))
	for _, item := range items {
		prop, acct, ok := strings.Cut(item, fieldSep)
		if !ok {
			return nil, fmt.Errorf("malformed child edge %q", item)
		}
		p, err := strconv.ParseUint(prop, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("malformed proportion in %q: %w", item, err)
		}
		if acct == "" {
			return nil, fmt.Errorf("empty account in %q", item)
		}
		edges = append(edges, invariant.Edge{Proportion: p, Account: acct})
	}
	return edges, nil
}

// FormatChildEdges is the inverse of ParseChildEdges.
func FormatChildEdges(edges []invariant.Edge) string {
	items := make([]string, len(edges))
	for i, e := range edges {
		items[i] = strconv.FormatUint(e.Proportion, 10) + fieldSep + e.Account
	}
	return strings.Join(items, listSep)
}

// ParsePosition decodes a "liquidity/tickLow/tickHigh" position value.
func ParsePosition(raw string) (invariant.Position, error) {
	parts := strings.Split(raw, fieldSep)
	if len(parts) != 3 {
		return invariant.Position{}, fmt.Errorf("malformed position %q", raw)
	}
	liq, err := strconv.ParseFloat(parts[0], 64)
	if err != nil || liq < 0 {
		return invariant.Position{}, fmt.Errorf("malformed liquidity %q", parts[0])
	}
	low, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return invariant.Position{}, fmt.Errorf("malformed tick %q: %w", parts[1], err)
	}
	high, err := strconv.ParseInt(parts[2], 10, 64)
	if err != nil {
		return invariant.Position{}, fmt.Errorf("malformed tick %q: %w", parts[2], err)
	}
	if low > high {
		return invariant.Position{}, fmt.Errorf("inverted tick range [%d, %d]", low, high)
	}
	return invariant.Position{Liquidity: liq, TickLow: low, TickHigh: high}, nil
}

// FormatPosition is the inverse of ParsePosition.
func FormatPosition(p invariant.Position) string {
	return strings.Join([]string{
		strconv.FormatFloat(p.Liquidity, 'f', -1, 64),
		strconv.FormatInt(p.TickLow, 10),
		strconv.FormatInt(p.TickHigh, 10),
	}, fieldSep)
}
