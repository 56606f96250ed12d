// Package policy orders the backends a resolution walks, either from a
// persisted user list or adaptively from recent success statistics.
package policy

import (
	"strings"
)

// Selector returns the backend identifiers to try, in order.
type Selector interface {
	Order() []string
}

// Fixed is a Selector over a constant list.
type Fixed []string

func (f Fixed) Order() []string { return append([]string(nil), f...) }

// LoadPriority merges a persisted priority list with the known backends:
// entries are normalized, unknown and duplicate ids are dropped and known ids
// missing from raw are appended in default order. An empty or fully invalid
// raw list yields the defaults.
func LoadPriority(raw []string, known []string) []string {
	knownSet := make(map[string]struct{}, len(known))
	for _, id := range known {
		knownSet[id] = struct{}{}
	}

	out := make([]string, 0, len(known))
	seen := make(map[string]struct{}, len(known))
	for _, id := range raw {
		normalized := strings.ToLower(strings.TrimSpace(id))
		if normalized == "" {
			continue
		}
		if _, ok := knownSet[normalized]; !ok {
			continue
		}
		if _, dup := seen[normalized]; dup {
			continue
		}
		seen[normalized] = struct{}{}
		out = append(out, normalized)
	}
	for _, id := range known {
		if _, ok := seen[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out
}

// Without drops skipped ids from order, keeping the rest in place.
func Without(order []string, skip []string) []string {
	if len(skip) == 0 {
		return order
	}
	drop := make(map[string]struct{}, len(skip))
	for _, id := range skip {
		drop[strings.ToLower(strings.TrimSpace(id))] = struct{}{}
	}
	out := make([]string, 0, len(order))
	for _, id := range order {
		if _, ok := drop[id]; ok {
			continue
		}
		out = append(out, id)
	}
	return out
}
