package loader

import (
	"sort"
	"strings"

	"github.com/envsync/envsync/internal/schema"
)

// Order returns tables with referenced tables before the tables that
// reference them. Ties keep name order; tables caught in a cycle follow in
// name order. Names compare case-insensitively.
func Order(tables []string, fks []schema.TableConstraint) []string {
	byKey := make(map[string]string, len(tables))
	for _, t := range tables {
		byKey[strings.ToUpper(t)] = t
	}

	// in-degree: how many distinct tables in the set a table references
	inDegree := make(map[string]int, len(byKey))
	dependents := make(map[string][]string) // parent -> children
	seen := make(map[[2]string]bool)
	for k := range byKey {
		inDegree[k] = 0
	}
	for _, fk := range fks {
		child, parent := strings.ToUpper(fk.Table), strings.ToUpper(fk.ReferencedTable)
		if child == parent {
			continue
		}
		if _, ok := byKey[child]; !ok {
			continue
		}
		if _, ok := byKey[parent]; !ok {
			continue
		}
		edge := [2]string{parent, child}
		if seen[edge] {
			continue
		}
		seen[edge] = true
		inDegree[child]++
		dependents[parent] = append(dependents[parent], child)
	}

	// Kahn's algorithm
	var queue []string
	for k, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, k)
		}
	}
	sort.Strings(queue)

	var sorted []string
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		sorted = append(sorted, node)

		var ready []string
		for _, child := range dependents[node] {
			inDegree[child]--
			if inDegree[child] == 0 {
				ready = append(ready, child)
			}
		}
		sort.Strings(ready)
		queue = append(queue, ready...)
	}

	if len(sorted) < len(byKey) {
		var rest []string
		for k, deg := range inDegree {
			if deg > 0 {
				rest = append(rest, k)
			}
		}
		sort.Strings(rest)
		sorted = append(sorted, rest...)
	}

	out := make([]string, len(sorted))
	for i, k := range sorted {
		out[i] = byKey[k]
	}
	return out
}
