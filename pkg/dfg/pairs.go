package dfg

import (
	"github.com/l3aro/dfcov/pkg/cfg"
	"github.com/l3aro/dfcov/pkg/types"
)

// EnumeratePairs lists every intra-procedural def-use pair of a solved graph:
// for each use at a node, each reaching definition of the same variable.
// Empty methods have no pairs.
func EnumeratePairs(g *cfg.CFG, policy KillPolicy) MethodPairs {
	var result MethodPairs
	if g.IsEmpty() {
		return result
	}

	seen := make(map[PairKey]struct{})
	entry := types.NewVarSet()
	for _, n := range g.Nodes() {
		if n.Uses.Len() == 0 {
			continue
		}
		reach := n.Reach.Sorted()
		for _, use := range n.Uses.Sorted() {
			for _, def := range reach {
				if !policy.SameVariable(def, use) {
					continue
				}
				p := DefUsePair{Definition: def, Use: use}
				if _, dup := seen[p.Key()]; dup {
					continue
				}
				seen[p.Key()] = struct{}{}
				result.Pairs = append(result.Pairs, p)
				if def.IsEntry() {
					entry.Add(def)
				}
			}
		}
	}
	result.EntryCovered = entry.Sorted()
	return result
}

// FindDefinitionByUse returns the definition paired with use, if any.
func FindDefinitionByUse(pairs []DefUsePair, use types.ProgramVariable) (types.ProgramVariable, bool) {
	for _, p := range pairs {
		if p.Use == use {
			return p.Definition, true
		}
	}
	return types.ProgramVariable{}, false
}

// FindUsesByDefinition returns every use paired with def, in pair order.
func FindUsesByDefinition(pairs []DefUsePair, def types.ProgramVariable) []types.ProgramVariable {
	var uses []types.ProgramVariable
	for _, p := range pairs {
		if p.Definition == def {
			uses = append(uses, p.Use)
		}
	}
	return uses
}
