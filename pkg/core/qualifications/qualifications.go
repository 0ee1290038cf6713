// Package qualifications resolves which qualifications a participant
// effectively holds. Qualifications form a directed graph over the "includes"
// relation; holding one qualification implies holding everything it includes,
// transitively.
package qualifications

import (
	"sort"

	"github.com/hackney-volunteers/shift-signup/pkg/core/model"
)

// Universe is the full set of known qualifications with their include edges.
type Universe struct {
	includes map[string][]string
}

// NewUniverse builds a universe from qualification definitions.
func NewUniverse(qualifications []model.Qualification) *Universe {
	includes := make(map[string][]string, len(qualifications))
	for _, q := range qualifications {
		includes[q.ID] = append([]string(nil), q.Includes...)
	}
	return &Universe{includes: includes}
}

// Spread returns the transitive closure of the given qualification IDs over
// the includes relation, sorted for stable output. IDs unknown to the
// universe are kept as-is without expansion.
func (u *Universe) Spread(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	queue := append([]string(nil), ids...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, u.includes[id]...)
	}

	closed := make([]string, 0, len(seen))
	for id := range seen {
		closed = append(closed, id)
	}
	sort.Strings(closed)
	return closed
}
