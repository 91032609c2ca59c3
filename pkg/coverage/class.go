// Package coverage holds the per-class coverage data, the aggregation tree and
// the store that owns both for one analysis run.
package coverage

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/l3aro/dfcov/pkg/cfg"
	"github.com/l3aro/dfcov/pkg/dfg"
	"github.com/l3aro/dfcov/pkg/types"
)

// Counts are the coverage totals of a method, class or tree node.
type Counts struct {
	Total       int `json:"total" msgpack:"total"`
	Covered     int `json:"covered" msgpack:"covered"`
	MethodCount int `json:"method_count" msgpack:"method_count"`
}

// Add returns the field-wise sum of c and o.
func (c Counts) Add(o Counts) Counts {
	return Counts{
		Total:       c.Total + o.Total,
		Covered:     c.Covered + o.Covered,
		MethodCount: c.MethodCount + o.MethodCount,
	}
}

// Rate returns covered/total, or 0 when there is nothing to cover.
func (c Counts) Rate() float64 {
	if c.Total == 0 {
		return 0
	}
	return float64(c.Covered) / float64(c.Total)
}

// MethodData is the coverage state of one analyzed method.
type MethodData struct {
	Key        string
	Name       string
	Descriptor string
	FirstLine  int
	LastLine   int

	// Pairs holds the intra-procedural pairs followed by the cross pairs the
	// matcher added. Covered flags are written by ComputeCoverage.
	Pairs  []dfg.DefUsePair
	Locals types.LocalVariableTable

	// Occurrences are the variables observed at runtime. Entry definitions
	// that take part in a pair are present from the start.
	Occurrences *OccurrenceSet
	Uncovered   types.VarSet
	Counts      Counts

	graph *cfg.CFG
}

// NewMethodData creates the coverage state of a solved and frozen graph.
func NewMethodData(g *cfg.CFG, pairs []dfg.DefUsePair, entryCovered []types.ProgramVariable) *MethodData {
	return &MethodData{
		Key:         g.Key(),
		Name:        g.MethodName,
		Descriptor:  g.Descriptor,
		FirstLine:   g.FirstLine,
		LastLine:    g.LastLine,
		Pairs:       pairs,
		Locals:      g.Locals,
		Occurrences: NewOccurrenceSet(entryCovered...),
		Uncovered:   types.NewVarSet(),
		graph:       g,
	}
}

// CFG returns the method's graph. It is nil for data restored from an artifact.
func (m *MethodData) CFG() *cfg.CFG {
	return m.graph
}

// ClassData is the coverage state of one class: its methods, the matches
// linking them and the aggregated counts.
type ClassData struct {
	Name    string
	Package string
	Source  string
	Policy  dfg.KillPolicy
	Matches []dfg.InterProceduralMatch

	mu      sync.RWMutex
	methods map[string]*MethodData
	counts  Counts
	tested  atomic.Bool
}

// NewClassData creates empty coverage state for a class given by internal name.
func NewClassData(name, source string, policy dfg.KillPolicy) *ClassData {
	return &ClassData{
		Name:    name,
		Package: types.PackageName(name),
		Source:  source,
		Policy:  policy,
		methods: make(map[string]*MethodData),
	}
}

// AddMethod registers a method, replacing any method with the same key.
func (c *ClassData) AddMethod(m *MethodData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.methods[m.Key] = m
}

// Method returns the method with the given name+descriptor key.
func (c *ClassData) Method(key string) (*MethodData, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	m, ok := c.methods[key]
	return m, ok
}

// Methods returns the methods sorted by key.
func (c *ClassData) Methods() []*MethodData {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*MethodData, 0, len(c.methods))
	for _, m := range c.methods {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}

// Record inserts an observed occurrence into a method's set and marks the
// class tested. It reports false when the method is unknown.
func (c *ClassData) Record(methodKey string, v types.ProgramVariable) bool {
	m, ok := c.Method(methodKey)
	if !ok {
		return false
	}
	m.Occurrences.Add(v)
	c.tested.Store(true)
	return true
}

// MarkTested flags the class as exercised by the test run.
func (c *ClassData) MarkTested() {
	c.tested.Store(true)
}

// Tested reports whether any occurrence was recorded for the class.
func (c *ClassData) Tested() bool {
	return c.tested.Load()
}

// Counts returns the totals of the last ComputeCoverage call.
func (c *ClassData) Counts() Counts {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.counts
}

// ComputeCoverage evaluates every pair against the observed occurrences and
// returns the class totals.
//
// A pair is covered when its definition and its use were both observed. A use
// not observed in the method itself may be observed in the callee of a match
// whose caller definition is the pair's definition. A covered pair P1 is then
// invalidated by another covered pair P2 of the same variable when P2's
// definition lies strictly between P1's definition and P1's use, or the call
// site when P1's use lives in a callee.
func (c *ClassData) ComputeCoverage() Counts {
	c.mu.Lock()
	defer c.mu.Unlock()

	var total Counts
	keys := make([]string, 0, len(c.methods))
	for k := range c.methods {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		m := c.methods[key]
		m.Uncovered = types.NewVarSet()
		direct := make([]bool, len(m.Pairs))
		for i, p := range m.Pairs {
			defCovered := m.Occurrences.Has(p.Definition)
			useCovered := m.Occurrences.Has(p.Use)
			if !useCovered {
				useCovered = c.coveredInCallee(key, p)
			}
			direct[i] = defCovered && useCovered
			if !defCovered {
				m.Uncovered.Add(p.Definition)
			}
			if !useCovered && !p.IsCross() {
				m.Uncovered.Add(p.Use)
			}
		}

		m.Counts = Counts{Total: len(m.Pairs)}
		for i := range m.Pairs {
			m.Pairs[i].Covered = direct[i] && !c.invalidated(m.Pairs, direct, i)
			if m.Pairs[i].Covered {
				m.Counts.Covered++
			}
		}
		if len(m.Pairs) > 0 {
			m.Counts.MethodCount = 1
		}
		total = total.Add(m.Counts)
	}

	c.counts = total
	return total
}

// coveredInCallee reports whether a cross pair's use was observed in the
// callee of a match binding the pair's definition.
func (c *ClassData) coveredInCallee(caller string, p dfg.DefUsePair) bool {
	if !p.IsCross() {
		return false
	}
	for _, match := range c.Matches {
		if match.MethodName != caller || match.CallSiteMethodName != p.Callee || match.Definition != p.Definition {
			continue
		}
		if callee, ok := c.methods[p.Callee]; ok && callee.Occurrences.Has(p.Use) {
			return true
		}
	}
	return false
}

func (c *ClassData) invalidated(pairs []dfg.DefUsePair, direct []bool, i int) bool {
	p1 := pairs[i]
	for j, p2 := range pairs {
		if j == i || !direct[j] {
			continue
		}
		if !c.Policy.SameVariable(p1.Definition, p2.Definition) {
			continue
		}
		if p1.Definition.Index < p2.Definition.Index && p2.Definition.Index < p1.UseBound() {
			return true
		}
	}
	return false
}
