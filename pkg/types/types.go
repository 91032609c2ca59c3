// Package types defines the core data structures shared by the analysis packages.
// It includes the variable identity model, local variable tables and the
// instruction stream produced by the disassembler.
package types

import (
	"fmt"
	"math"
	"sort"
	"strings"
)

const (
	// EntryIndex is the instruction index of the synthetic entry node.
	EntryIndex = math.MinInt32
	// ExitIndex is the instruction index of the synthetic exit node.
	ExitIndex = math.MaxInt32

	// UnknownDescriptor marks a variable whose slot had no local-variable metadata.
	UnknownDescriptor = "UNKNOWN"
)

// ProgramVariable is one concrete occurrence of a variable: a definition or a
// use at a given instruction. Two values are the same occurrence iff every
// field is equal, so a variable redefined at another instruction is distinct.
type ProgramVariable struct {
	Owner        string `json:"owner,omitempty" yaml:"owner,omitempty" msgpack:"owner"`     // Declaring type for fields, empty for locals
	Name         string `json:"name" yaml:"name" msgpack:"name"`                            // Variable or field name
	Descriptor   string `json:"descriptor" yaml:"descriptor" msgpack:"descriptor"`          // Type descriptor
	Index        int    `json:"index" yaml:"index" msgpack:"index"`                         // Instruction index
	Line         int    `json:"line" yaml:"line" msgpack:"line"`                            // Source line
	IsDefinition bool   `json:"is_definition" yaml:"is_definition" msgpack:"is_definition"` // Definition or use
}

// IsField reports whether the variable is a field access.
func (v ProgramVariable) IsField() bool {
	return v.Owner != ""
}

// IsEntry reports whether the variable is defined by the synthetic entry node.
func (v ProgramVariable) IsEntry() bool {
	return v.Index == EntryIndex
}

// AsUse returns the same occurrence flagged as a use.
func (v ProgramVariable) AsUse() ProgramVariable {
	v.IsDefinition = false
	return v
}

// AsDefinition returns the same occurrence flagged as a definition.
func (v ProgramVariable) AsDefinition() ProgramVariable {
	v.IsDefinition = true
	return v
}

func (v ProgramVariable) String() string {
	kind := "use"
	if v.IsDefinition {
		kind = "def"
	}
	name := v.Name
	if v.Owner != "" {
		name = v.Owner + "." + v.Name
	}
	return fmt.Sprintf("%s %s:%s@%s(L%d)", kind, name, v.Descriptor, FormatIndex(v.Index), v.Line)
}

// FormatIndex renders an instruction index, naming the entry and exit sentinels.
func FormatIndex(index int) string {
	switch index {
	case EntryIndex:
		return "entry"
	case ExitIndex:
		return "exit"
	default:
		return fmt.Sprintf("%d", index)
	}
}

// CompareVariables orders variables by line, then instruction index, then
// name, owner and descriptor; definitions sort before uses.
func CompareVariables(a, b ProgramVariable) int {
	switch {
	case a.Line != b.Line:
		return cmpInt(a.Line, b.Line)
	case a.Index != b.Index:
		return cmpInt(a.Index, b.Index)
	case a.Name != b.Name:
		return strings.Compare(a.Name, b.Name)
	case a.Owner != b.Owner:
		return strings.Compare(a.Owner, b.Owner)
	case a.Descriptor != b.Descriptor:
		return strings.Compare(a.Descriptor, b.Descriptor)
	case a.IsDefinition != b.IsDefinition:
		if a.IsDefinition {
			return -1
		}
		return 1
	}
	return 0
}

func cmpInt(a, b int) int {
	if a < b {
		return -1
	}
	if a > b {
		return 1
	}
	return 0
}

// SortVariables sorts vs in place using CompareVariables.
func SortVariables(vs []ProgramVariable) {
	sort.Slice(vs, func(i, j int) bool {
		return CompareVariables(vs[i], vs[j]) < 0
	})
}

// VarSet is a set of variable occurrences.
type VarSet map[ProgramVariable]struct{}

// NewVarSet returns a set holding vs.
func NewVarSet(vs ...ProgramVariable) VarSet {
	s := make(VarSet, len(vs))
	for _, v := range vs {
		s[v] = struct{}{}
	}
	return s
}

// Add inserts v and reports whether it was new.
func (s VarSet) Add(v ProgramVariable) bool {
	if _, ok := s[v]; ok {
		return false
	}
	s[v] = struct{}{}
	return true
}

// Has reports whether v is in the set.
func (s VarSet) Has(v ProgramVariable) bool {
	_, ok := s[v]
	return ok
}

// Len returns the number of elements.
func (s VarSet) Len() int {
	return len(s)
}

// Sorted returns the elements in CompareVariables order.
func (s VarSet) Sorted() []ProgramVariable {
	out := make([]ProgramVariable, 0, len(s))
	for v := range s {
		out = append(out, v)
	}
	SortVariables(out)
	return out
}

// Equal reports whether both sets hold the same elements.
func (s VarSet) Equal(other VarSet) bool {
	if len(s) != len(other) {
		return false
	}
	for v := range s {
		if _, ok := other[v]; !ok {
			return false
		}
	}
	return true
}

// LocalVariable is one entry of a method's local variable table. Start and End
// are the instruction indices (inclusive) where the slot holds this variable.
type LocalVariable struct {
	Slot       int    `json:"slot" yaml:"slot" msgpack:"slot"`
	Name       string `json:"name" yaml:"name" msgpack:"name"`
	Descriptor string `json:"descriptor" yaml:"descriptor" msgpack:"descriptor"`
	Start      int    `json:"start" yaml:"start" msgpack:"start"`
	End        int    `json:"end" yaml:"end" msgpack:"end"`
}

// LocalVariableTable resolves slots to declared variables.
type LocalVariableTable []LocalVariable

// PlaceholderName is the name given to a slot without local-variable metadata.
func PlaceholderName(slot int) string {
	return fmt.Sprintf("slot%d", slot)
}

// Resolve returns the name and descriptor of the variable held in slot at the
// given instruction. A store's target comes into scope at the next
// instruction, so a scope starting at index+1 wins over one covering index.
// When no scope matches, the slot's first declaration is used. A slot with no
// entry resolves to a placeholder name and UnknownDescriptor.
func (t LocalVariableTable) Resolve(slot, index int) (name, descriptor string) {
	var inScope, fallback *LocalVariable
	for i := range t {
		lv := &t[i]
		if lv.Slot != slot {
			continue
		}
		if lv.Start == index+1 {
			return lv.Name, lv.Descriptor
		}
		if inScope == nil && lv.Start <= index && index <= lv.End {
			inScope = lv
		}
		if fallback == nil {
			fallback = lv
		}
	}
	if inScope != nil {
		return inScope.Name, inScope.Descriptor
	}
	if fallback != nil {
		return fallback.Name, fallback.Descriptor
	}
	return PlaceholderName(slot), UnknownDescriptor
}
