package cfg

import (
	"fmt"
	"sort"

	"github.com/l3aro/dfcov/pkg/types"
)

// Builder turns the instruction streams of one class into per-method graphs.
type Builder struct {
	className string
	fields    []types.FieldInput
}

// NewBuilder creates a builder for the methods of the given class.
func NewBuilder(className string, fields []types.FieldInput) *Builder {
	return &Builder{className: className, fields: fields}
}

// Build constructs the graph of one method. Duplicate instruction indices and
// edges naming unknown instructions are errors; a method without instructions
// yields a graph holding only the entry and exit nodes.
func (b *Builder) Build(method types.MethodInput) (*CFG, error) {
	g := &CFG{
		ClassName:  b.className,
		MethodName: method.Name,
		Descriptor: method.Descriptor,
		Static:     method.Static,
		Locals:     method.LocalVariables,
		nodes:      make(map[int]*Node, len(method.Instructions)+2),
	}

	insns := append([]types.Instruction(nil), method.Instructions...)
	sort.SliceStable(insns, func(i, j int) bool { return insns[i].Index < insns[j].Index })

	for _, insn := range insns {
		if insn.Index == types.EntryIndex || insn.Index == types.ExitIndex {
			return nil, fmt.Errorf("%s: instruction index %d is reserved", method.Key(), insn.Index)
		}
		if _, dup := g.nodes[insn.Index]; dup {
			return nil, fmt.Errorf("%s: duplicate instruction index %d", method.Key(), insn.Index)
		}
		n, err := b.instructionNode(g, insn)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", method.Key(), err)
		}
		g.addNode(n)
		b.updateLines(g, insn.Line)
	}

	entry := newNode(types.EntryIndex, g.FirstLine, types.Nop, NodeTypeEntry)
	exit := newNode(types.ExitIndex, g.LastLine, types.Nop, NodeTypeExit)
	g.addNode(entry)
	g.addNode(exit)

	params, err := b.entryDefinitions(g, method)
	if err != nil {
		return nil, err
	}
	g.Parameters = params
	for _, p := range params {
		entry.Definitions.Add(p)
	}
	if !method.Static {
		for _, f := range b.fields {
			if f.Static {
				continue
			}
			entry.Definitions.Add(types.ProgramVariable{
				Owner:        b.className,
				Name:         f.Name,
				Descriptor:   f.Descriptor,
				Index:        types.EntryIndex,
				Line:         g.FirstLine,
				IsDefinition: true,
			})
		}
	}

	if len(insns) == 0 {
		g.addEdge(types.EntryIndex, types.ExitIndex, EdgeTypeEntry)
		g.sortLinks()
		return g, nil
	}

	if err := b.installEdges(g, method, insns); err != nil {
		return nil, err
	}

	g.addEdge(types.EntryIndex, insns[0].Index, EdgeTypeEntry)
	last := insns[len(insns)-1].Index
	g.addEdge(last, types.ExitIndex, EdgeTypeExit)
	for _, insn := range insns {
		if len(g.nodes[insn.Index].Successors) == 0 {
			g.addEdge(insn.Index, types.ExitIndex, EdgeTypeExit)
		}
	}

	g.sortLinks()
	return g, nil
}

func (b *Builder) updateLines(g *CFG, line int) {
	if line <= 0 {
		return
	}
	if g.FirstLine == 0 || line < g.FirstLine {
		g.FirstLine = line
	}
	if line > g.LastLine {
		g.LastLine = line
	}
}

// instructionNode creates the node of one instruction with its definitions and uses.
func (b *Builder) instructionNode(g *CFG, insn types.Instruction) (*Node, error) {
	typ := NodeTypeInstruction
	if insn.Opcode.Class() == types.OpcodeClassInvoke {
		typ = NodeTypeCall
	}
	n := newNode(insn.Index, insn.Line, insn.Opcode, typ)

	switch n.Class {
	case types.OpcodeClassLoad:
		n.Uses.Add(b.local(g, insn, false))
	case types.OpcodeClassStore:
		n.Definitions.Add(b.local(g, insn, true))
	case types.OpcodeClassIncrement:
		n.Uses.Add(b.local(g, insn, false))
		n.Definitions.Add(b.local(g, insn, true))
	case types.OpcodeClassFieldRead, types.OpcodeClassFieldWrite:
		if insn.Field == nil {
			return nil, fmt.Errorf("instruction %d: %s without field operand", insn.Index, insn.Opcode)
		}
		v := FieldVariable(*insn.Field, insn.Index, insn.Line, insn.Opcode)
		if v.IsDefinition {
			n.Definitions.Add(v)
			if insn.Field.Owner == b.className {
				g.Impure = true
			}
		} else {
			n.Uses.Add(v)
		}
	case types.OpcodeClassInvoke:
		if insn.Call == nil {
			return nil, fmt.Errorf("instruction %d: %s without call target", insn.Index, insn.Opcode)
		}
		call := *insn.Call
		n.Call = &call
	}
	return n, nil
}

func (b *Builder) local(g *CFG, insn types.Instruction, def bool) types.ProgramVariable {
	return LocalVariable(g.Locals, insn.Slot, insn.Index, insn.Line, def)
}

// LocalVariable builds the occurrence of a local slot at an instruction. The
// runtime tracker uses the same resolution so that observed occurrences equal
// the ones in the graph.
func LocalVariable(locals types.LocalVariableTable, slot, index, line int, def bool) types.ProgramVariable {
	name, desc := locals.Resolve(slot, index)
	return types.ProgramVariable{
		Name:         name,
		Descriptor:   desc,
		Index:        index,
		Line:         line,
		IsDefinition: def,
	}
}

// FieldVariable builds the occurrence of a field access at an instruction.
func FieldVariable(field types.MemberRef, index, line int, op types.Opcode) types.ProgramVariable {
	return types.ProgramVariable{
		Owner:        field.Owner,
		Name:         field.Name,
		Descriptor:   field.Descriptor,
		Index:        index,
		Line:         line,
		IsDefinition: op.IsDefinition(),
	}
}

// entryDefinitions returns the receiver and argument definitions in slot order.
func (b *Builder) entryDefinitions(g *CFG, method types.MethodInput) ([]types.ProgramVariable, error) {
	args, err := types.ArgumentDescriptors(method.Descriptor)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", method.Key(), err)
	}

	var params []types.ProgramVariable
	slot := 0
	if !method.Static {
		params = append(params, b.parameter(g, 0))
		slot = 1
	}
	for _, arg := range args {
		params = append(params, b.parameter(g, slot))
		slot += types.SlotSize(arg)
	}
	return params, nil
}

func (b *Builder) parameter(g *CFG, slot int) types.ProgramVariable {
	name, desc := g.Locals.Resolve(slot, 0)
	return types.ProgramVariable{
		Name:         name,
		Descriptor:   desc,
		Index:        types.EntryIndex,
		Line:         g.FirstLine,
		IsDefinition: true,
	}
}

// installEdges links the instruction nodes. Without an explicit edge map the
// stream falls through to the next instruction, except after returns, throws
// and unconditional jumps.
func (b *Builder) installEdges(g *CFG, method types.MethodInput, insns []types.Instruction) error {
	if len(method.Edges) == 0 {
		for i := 0; i+1 < len(insns); i++ {
			op := insns[i].Opcode
			if op.Class() == types.OpcodeClassReturn || op == types.Goto {
				continue
			}
			g.addEdge(insns[i].Index, insns[i+1].Index, EdgeTypeFlow)
		}
		return nil
	}

	sources := make([]int, 0, len(method.Edges))
	for src := range method.Edges {
		sources = append(sources, src)
	}
	sort.Ints(sources)

	for _, src := range sources {
		if _, ok := g.nodes[src]; !ok || src == types.EntryIndex || src == types.ExitIndex {
			return fmt.Errorf("%s: edge from unknown instruction %d", method.Key(), src)
		}
		for _, dst := range method.Edges[src] {
			if _, ok := g.nodes[dst]; !ok || dst == types.EntryIndex || dst == types.ExitIndex {
				return fmt.Errorf("%s: edge %d -> %d targets unknown instruction", method.Key(), src, dst)
			}
			g.addEdge(src, dst, EdgeTypeFlow)
		}
	}
	return nil
}
