package coverage

import (
	"sync"
	"sync/atomic"

	"github.com/l3aro/dfcov/pkg/types"
)

// OccurrenceSet is the set of variable occurrences observed at runtime for one
// method. Inserts are lock free and idempotent; it is safe for concurrent use.
type OccurrenceSet struct {
	m sync.Map // types.ProgramVariable -> struct{}
	n atomic.Int64
}

// NewOccurrenceSet creates a set holding the given occurrences.
func NewOccurrenceSet(vs ...types.ProgramVariable) *OccurrenceSet {
	s := &OccurrenceSet{}
	for _, v := range vs {
		s.Add(v)
	}
	return s
}

// Add inserts v and reports whether it was not present before.
func (s *OccurrenceSet) Add(v types.ProgramVariable) bool {
	if _, loaded := s.m.LoadOrStore(v, struct{}{}); loaded {
		return false
	}
	s.n.Add(1)
	return true
}

// Has reports whether v was observed.
func (s *OccurrenceSet) Has(v types.ProgramVariable) bool {
	_, ok := s.m.Load(v)
	return ok
}

// Len returns the number of distinct occurrences.
func (s *OccurrenceSet) Len() int {
	return int(s.n.Load())
}

// Sorted returns a snapshot of the set in variable order.
func (s *OccurrenceSet) Sorted() []types.ProgramVariable {
	out := make([]types.ProgramVariable, 0, s.Len())
	s.m.Range(func(k, _ any) bool {
		out = append(out, k.(types.ProgramVariable))
		return true
	})
	types.SortVariables(out)
	return out
}
