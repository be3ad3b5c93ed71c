// Package assemble merges query results into the nested pipeline context.
package assemble

import (
	"strings"

	"github.com/leapstack-labs/querypipe/pkg/backend"
)

// Value returns what a result contributes to the context: the row itself
// when there is exactly one, otherwise the full ordered sequence.
func Value(rows []backend.Row) any {
	if len(rows) == 1 {
		return rows[0]
	}
	if rows == nil {
		return []backend.Row{}
	}
	return rows
}

// Assemble stores rows in data at the dotted path.
//
// Intermediate mappings are created when absent and reused when present, so
// sibling keys survive. An intermediate key holding anything other than a
// mapping is replaced by a fresh mapping. The leaf is always overwritten.
func Assemble(data map[string]any, path string, rows []backend.Row) {
	segments := strings.Split(path, ".")
	value := Value(rows)

	node := data
	for _, seg := range segments[:len(segments)-1] {
		next, ok := node[seg].(map[string]any)
		if !ok {
			next = make(map[string]any)
			node[seg] = next
		}
		node = next
	}
	node[segments[len(segments)-1]] = value
}
