package coverage

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/l3aro/dfcov/internal/log"
)

var (
	// ErrClassExists is returned when a class is registered twice.
	ErrClassExists = errors.New("class already registered")
	// ErrStoreClosed is returned by operations on a closed store.
	ErrStoreClosed = errors.New("coverage store closed")
)

// RootName is the name of the tree root.
const RootName = "project"

// Store owns the coverage data of one run: the class registry used by the
// tracker and the aggregation tree used by reports.
type Store struct {
	mu      sync.RWMutex
	classes map[string]*ClassData
	tree    *Tree
	closed  bool
	logger  log.Logger
}

// NewStore creates an empty store.
func NewStore(logger log.Logger) *Store {
	return &Store{
		classes: make(map[string]*ClassData),
		tree:    NewTree(RootName),
		logger:  log.OrNop(logger),
	}
}

// Register adds a class and its tree leaf.
func (s *Store) Register(c *ClassData) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	if _, ok := s.classes[c.Name]; ok {
		return fmt.Errorf("%s: %w", c.Name, ErrClassExists)
	}
	s.classes[c.Name] = c
	s.tree.AddClass(c)
	s.logger.Debug("registered class", "class", c.Name, "methods", len(c.Methods()))
	return nil
}

// Class returns the class registered under its internal name.
func (s *Store) Class(name string) (*ClassData, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[name]
	return c, ok
}

// Classes returns every registered class sorted by name.
func (s *Store) Classes() []*ClassData {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ClassData, 0, len(s.classes))
	for _, c := range s.classes {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Finalize computes the coverage of every class and aggregates the tree.
// It runs once tracking is complete.
func (s *Store) Finalize() (*Tree, error) {
	classes := s.Classes()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}
	for _, c := range classes {
		c.ComputeCoverage()
	}
	root := s.tree.Aggregate()
	s.logger.Info("coverage computed", "classes", len(classes), "pairs", root.Total, "covered", root.Covered)
	return s.tree, nil
}

// Tree returns the aggregation tree. Counts are current as of the last Finalize.
func (s *Store) Tree() *Tree {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tree
}

// TestedClasses returns the names of classes with at least one recorded occurrence.
func (s *Store) TestedClasses() []string {
	return s.filter(true)
}

// UntestedClasses returns the names of classes nothing was recorded for.
func (s *Store) UntestedClasses() []string {
	return s.filter(false)
}

func (s *Store) filter(tested bool) []string {
	var names []string
	for _, c := range s.Classes() {
		if c.Tested() == tested {
			names = append(names, c.Name)
		}
	}
	return names
}

// Close releases the store. Further registrations fail with ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}
	s.closed = true
	s.classes = nil
	return nil
}
