// Package callgraph resolves the call sites of a class's methods and matches
// caller-side definitions to the callee parameters they bind.
package callgraph

import (
	"sort"

	"github.com/l3aro/dfcov/pkg/cfg"
	"github.com/l3aro/dfcov/pkg/types"
)

// CallType represents the type of a call site
type CallType string

const (
	// LocalCall targets a method analyzed in the same class
	LocalCall CallType = "local"
	// ExternalCall targets a method outside the analyzed class, or one the
	// class does not define
	ExternalCall CallType = "external"
)

// CallSite is one invoke instruction within a caller.
type CallSite struct {
	// Caller is the caller's method key (name+descriptor)
	Caller string `json:"caller"`
	// Index and Line locate the invoke instruction
	Index int `json:"index"`
	Line  int `json:"line"`
	// Target is the statically named callee
	Target types.MemberRef `json:"target"`
	// Type tells whether the target resolved inside the class
	Type CallType `json:"type"`
	// Static is set for INVOKESTATIC, where no receiver occupies argument 0
	Static bool `json:"static"`
	// FeedsField is set when the call's result is stored straight into a field
	FeedsField bool `json:"feeds_field,omitempty"`
}

// IntraClassCallGraph maps each caller method to the calls it makes.
type IntraClassCallGraph struct {
	ClassName string                `json:"class_name"`
	Calls     map[string][]CallSite `json:"calls"`
}

// Callers returns the caller keys in sorted order.
func (cg *IntraClassCallGraph) Callers() []string {
	keys := make([]string, 0, len(cg.Calls))
	for k := range cg.Calls {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildCallGraph collects the call sites of every graph. A call is local when
// its owner is the class itself and the class defines a method with the same
// name and descriptor; dispatch is resolved statically.
func BuildCallGraph(className string, graphs map[string]*cfg.CFG) *IntraClassCallGraph {
	cg := &IntraClassCallGraph{
		ClassName: className,
		Calls:     make(map[string][]CallSite),
	}

	for key, g := range graphs {
		for _, n := range g.Nodes() {
			if n.Call == nil {
				continue
			}
			site := CallSite{
				Caller:     key,
				Index:      n.Index,
				Line:       n.Line,
				Target:     *n.Call,
				Type:       ExternalCall,
				Static:     n.Opcode == types.InvokeStatic,
				FeedsField: feedsField(g, n),
			}
			if n.Call.Owner == className {
				if _, ok := graphs[n.Call.Key()]; ok {
					site.Type = LocalCall
				}
			}
			cg.Calls[key] = append(cg.Calls[key], site)
		}
	}
	return cg
}

// feedsField reports whether a successor of the call writes a field.
func feedsField(g *cfg.CFG, n *cfg.Node) bool {
	for _, s := range g.Successors(n) {
		if s.Class == types.OpcodeClassFieldWrite {
			return true
		}
	}
	return false
}
