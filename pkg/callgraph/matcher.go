package callgraph

import (
	"sort"

	"github.com/l3aro/dfcov/internal/log"
	"github.com/l3aro/dfcov/pkg/cfg"
	"github.com/l3aro/dfcov/pkg/dfg"
	"github.com/l3aro/dfcov/pkg/types"
)

const constructorName = "<init>"

// Matcher links call arguments to callee parameters within one class. It is
// context insensitive: every call site of a method shares the method's single
// pair set.
type Matcher struct {
	className string
	graphs    map[string]*cfg.CFG
	pairs     map[string][]dfg.DefUsePair
	logger    log.Logger
}

// MatchResult holds the matches found and the pairs they add to callers.
type MatchResult struct {
	CallGraph *IntraClassCallGraph       `json:"call_graph"`
	Matches   []dfg.InterProceduralMatch `json:"matches"`
	// CrossPairs maps a caller key to pairs (caller definition, callee use)
	CrossPairs map[string][]dfg.DefUsePair `json:"cross_pairs"`
}

// binding ties one argument use at the call site to a callee parameter.
type binding struct {
	use   types.ProgramVariable
	param types.ProgramVariable
}

// NewMatcher creates a matcher over solved graphs and their intra-procedural
// pairs, both keyed by method name+descriptor.
func NewMatcher(className string, graphs map[string]*cfg.CFG, pairs map[string][]dfg.DefUsePair, logger log.Logger) *Matcher {
	return &Matcher{
		className: className,
		graphs:    graphs,
		pairs:     pairs,
		logger:    log.OrNop(logger),
	}
}

// Match resolves every eligible call site. A call is eligible when it targets
// a method of the class that writes one of the class's fields, or when its
// result is stored into a field.
func (m *Matcher) Match() *MatchResult {
	result := &MatchResult{
		CallGraph:  BuildCallGraph(m.className, m.graphs),
		CrossPairs: make(map[string][]dfg.DefUsePair),
	}

	seenMatch := make(map[dfg.InterProceduralMatch]struct{})
	for _, caller := range result.CallGraph.Callers() {
		sites := result.CallGraph.Calls[caller]
		sort.Slice(sites, func(i, j int) bool { return sites[i].Index < sites[j].Index })

		known := make(map[dfg.PairKey]struct{})
		for _, p := range m.pairs[caller] {
			known[p.Key()] = struct{}{}
		}

		for _, site := range sites {
			if site.Type != LocalCall {
				continue
			}
			callee := m.graphs[site.Target.Key()]
			if !callee.Impure && !site.FeedsField {
				continue
			}

			for _, b := range m.bindings(m.graphs[caller], site, callee) {
				defA, ok := dfg.FindDefinitionByUse(m.pairs[caller], b.use)
				if !ok {
					continue
				}
				match := dfg.InterProceduralMatch{
					Definition:         defA,
					CallSiteDefinition: b.param,
					MethodName:         caller,
					CallSiteMethodName: callee.Key(),
				}
				if _, dup := seenMatch[match]; !dup {
					seenMatch[match] = struct{}{}
					result.Matches = append(result.Matches, match)
				}

				for _, useB := range dfg.FindUsesByDefinition(m.pairs[callee.Key()], b.param) {
					p := dfg.DefUsePair{
						Definition: defA,
						Use:        useB,
						Callee:     callee.Key(),
						CallIndex:  site.Index,
					}
					if _, dup := known[p.Key()]; dup {
						continue
					}
					known[p.Key()] = struct{}{}
					result.CrossPairs[caller] = append(result.CrossPairs[caller], p)
				}
			}
		}
	}

	m.logger.Debug("matched call sites", "class", m.className, "matches", len(result.Matches))
	return result
}

// bindings walks back one predecessor per argument from the call node. The
// closest predecessor pushes the last argument. Arguments map to parameter
// position k-1 for static calls and k for instance calls, where the receiver
// takes position 0. A constructor declaring a single parameter takes every
// value pushed after its NEW/DUP, so `new T(a + b)` binds both a and b.
func (m *Matcher) bindings(caller *cfg.CFG, site CallSite, callee *cfg.CFG) []binding {
	args, err := types.ArgumentDescriptors(site.Target.Descriptor)
	if err != nil {
		m.logger.Debug("skipping call with bad descriptor", "target", site.Target.String(), "error", err)
		return nil
	}

	node, ok := caller.Node(site.Index)
	if !ok {
		return nil
	}

	if params := arguments(callee); site.Target.Name == constructorName && len(params) == 1 {
		return constructorBindings(caller, node, params[0])
	}

	var out []binding
	for k := len(args); k >= 1; k-- {
		prev := previous(caller, node)
		if prev == nil {
			break
		}
		node = prev

		pos := k
		if site.Static {
			pos = k - 1
		}
		if pos >= len(callee.Parameters) {
			continue
		}
		param := callee.Parameters[pos]

		for _, use := range prev.Uses.Sorted() {
			out = append(out, binding{use: use, param: param})
		}
	}
	return out
}

// arguments returns the callee's parameter definitions without the receiver.
func arguments(g *cfg.CFG) []types.ProgramVariable {
	if g.Static || len(g.Parameters) == 0 {
		return g.Parameters
	}
	return g.Parameters[1:]
}

// constructorBindings binds every use between the call and the DUP (or NEW)
// that created the instance to param. The walk also stops at an instruction
// that defines a variable or loads the caller's receiver, which bounds it for
// this(...) delegation without a NEW.
func constructorBindings(caller *cfg.CFG, node *cfg.Node, param types.ProgramVariable) []binding {
	var receiver types.ProgramVariable
	if !caller.Static && len(caller.Parameters) > 0 {
		receiver = caller.Parameters[0]
	}

	var out []binding
	seen := make(map[int]bool)
	for prev := previous(caller, node); prev != nil && !seen[prev.Index]; prev = previous(caller, prev) {
		seen[prev.Index] = true
		if prev.Opcode == types.Dup || prev.Opcode == types.New || prev.Definitions.Len() > 0 {
			break
		}
		uses := prev.Uses.Sorted()
		if receiver.Name != "" && len(uses) == 1 && uses[0].Name == receiver.Name && uses[0].Descriptor == receiver.Descriptor {
			break
		}
		for _, use := range uses {
			out = append(out, binding{use: use, param: param})
		}
	}
	return out
}

// previous returns the instruction preceding n, preferring the one at index
// n.Index-1. It returns nil at the entry node.
func previous(g *cfg.CFG, n *cfg.Node) *cfg.Node {
	var chosen *cfg.Node
	for _, p := range g.Predecessors(n) {
		if p.Type == cfg.NodeTypeEntry {
			continue
		}
		if p.Index == n.Index-1 {
			return p
		}
		if chosen == nil {
			chosen = p
		}
	}
	return chosen
}
