// Package dfg provides the data flow analysis over method graphs: reaching
// definitions, def-use pair enumeration and the types shared with the
// coverage layer.
package dfg

import (
	"fmt"

	"github.com/l3aro/dfcov/pkg/types"
)

// KillPolicy decides whether a definition redefines another one and whether
// a definition and a use refer to the same variable.
type KillPolicy int

const (
	// KillByName compares variable names only. A local and a field with the
	// same name are treated as one variable.
	KillByName KillPolicy = iota
	// KillByIdentity compares name, owner and descriptor.
	KillByIdentity
)

func (p KillPolicy) String() string {
	switch p {
	case KillByIdentity:
		return "identity"
	default:
		return "name"
	}
}

// ParseKillPolicy converts a config value into a KillPolicy.
func ParseKillPolicy(s string) (KillPolicy, error) {
	switch s {
	case "", "name":
		return KillByName, nil
	case "identity":
		return KillByIdentity, nil
	default:
		return KillByName, fmt.Errorf("unknown kill policy %q", s)
	}
}

// SameVariable reports whether a and b name the same variable under the policy.
func (p KillPolicy) SameVariable(a, b types.ProgramVariable) bool {
	if a.Name != b.Name {
		return false
	}
	if p == KillByIdentity {
		return a.Owner == b.Owner && a.Descriptor == b.Descriptor
	}
	return true
}

// DefUsePair links a definition to a use it reaches. A cross pair carries the
// key of the callee its use lives in and the index of the invoke instruction
// the flow passes through; Use.Index then numbers callee instructions.
type DefUsePair struct {
	Definition types.ProgramVariable `json:"definition" msgpack:"definition"` // Reaching definition
	Use        types.ProgramVariable `json:"use" msgpack:"use"`               // Use the definition reaches
	Covered    bool                  `json:"covered" msgpack:"covered"`       // Set by coverage computation
	Callee     string                `json:"callee,omitempty" msgpack:"callee,omitempty"`
	CallIndex  int                   `json:"call_index,omitempty" msgpack:"call_index,omitempty"`
}

// IsCross reports whether the pair's use lies in a called method.
func (p DefUsePair) IsCross() bool {
	return p.Callee != ""
}

// UseBound returns the caller-side instruction index the definition must
// reach: the use itself, or the call site for a cross pair.
func (p DefUsePair) UseBound() int {
	if p.IsCross() {
		return p.CallIndex
	}
	return p.Use.Index
}

// PairKey identifies a pair independently of its coverage flag.
type PairKey struct {
	Definition types.ProgramVariable
	Use        types.ProgramVariable
}

// Key returns the identity of the pair.
func (p DefUsePair) Key() PairKey {
	return PairKey{Definition: p.Definition, Use: p.Use}
}

func (p DefUsePair) String() string {
	if p.IsCross() {
		return fmt.Sprintf("(%s -> %s in %s)", p.Definition, p.Use, p.Callee)
	}
	return fmt.Sprintf("(%s -> %s)", p.Definition, p.Use)
}

// InterProceduralMatch links a caller-side definition that flows into a call
// to the callee's parameter definition it binds.
type InterProceduralMatch struct {
	Definition         types.ProgramVariable `json:"definition" msgpack:"definition"`                       // Caller definition
	CallSiteDefinition types.ProgramVariable `json:"call_site_definition" msgpack:"call_site_definition"`   // Callee parameter definition
	MethodName         string                `json:"method_name" msgpack:"method_name"`                     // Caller method key
	CallSiteMethodName string                `json:"call_site_method_name" msgpack:"call_site_method_name"` // Callee method key
}

// MethodPairs is the enumeration result for one method.
type MethodPairs struct {
	Pairs []DefUsePair `json:"pairs"`
	// EntryCovered are the entry definitions taking part in a pair. They count
	// as observed from the start; their pairs still need a runtime use.
	EntryCovered []types.ProgramVariable `json:"entry_covered"`
}
