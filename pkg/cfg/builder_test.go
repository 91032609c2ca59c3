package cfg

import (
	"strings"
	"testing"

	"github.com/l3aro/dfcov/pkg/types"
)

const className = "com/example/Counter"

func insn(index, line int, op types.Opcode, slot int) types.Instruction {
	return types.Instruction{Index: index, Line: line, Opcode: op, Slot: slot}
}

func fieldInsn(index, line int, op types.Opcode, owner, name string) types.Instruction {
	return types.Instruction{Index: index, Line: line, Opcode: op, Field: &types.MemberRef{Owner: owner, Name: name, Descriptor: "I"}}
}

func TestBuildStraightLine(t *testing.T) {
	method := types.MethodInput{
		Name:       "run",
		Descriptor: "()I",
		Static:     true,
		LocalVariables: types.LocalVariableTable{
			{Slot: 0, Name: "x", Descriptor: "I", Start: 1, End: 4},
			{Slot: 1, Name: "y", Descriptor: "I", Start: 3, End: 4},
		},
		Instructions: []types.Instruction{
			insn(0, 3, types.IStore, 0),
			insn(1, 4, types.ILoad, 0),
			insn(2, 4, types.IStore, 1),
			insn(3, 5, types.ILoad, 1),
			insn(4, 5, types.IReturn, 0),
		},
	}

	g, err := NewBuilder(className, nil).Build(method)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	if g.Len() != 7 {
		t.Errorf("Len() = %d, want 7", g.Len())
	}
	if g.FirstLine != 3 || g.LastLine != 5 {
		t.Errorf("lines = %d-%d, want 3-5", g.FirstLine, g.LastLine)
	}
	if got := g.Entry().Successors; len(got) != 1 || got[0] != 0 {
		t.Errorf("entry successors = %v, want [0]", got)
	}
	if got := g.Exit().Predecessors; len(got) != 1 || got[0] != 4 {
		t.Errorf("exit predecessors = %v, want [4]", got)
	}
	if g.First().Index != 0 || g.Last().Index != 4 {
		t.Errorf("First/Last = %d/%d", g.First().Index, g.Last().Index)
	}

	n0, _ := g.Node(0)
	wantDef := types.ProgramVariable{Name: "x", Descriptor: "I", Index: 0, Line: 3, IsDefinition: true}
	if !n0.Definitions.Has(wantDef) || n0.Uses.Len() != 0 {
		t.Errorf("node 0 defs = %v uses = %v", n0.Definitions.Sorted(), n0.Uses.Sorted())
	}
	n1, _ := g.Node(1)
	wantUse := types.ProgramVariable{Name: "x", Descriptor: "I", Index: 1, Line: 4}
	if !n1.Uses.Has(wantUse) {
		t.Errorf("node 1 uses = %v, want %v", n1.Uses.Sorted(), wantUse)
	}
	if g.Entry().Definitions.Len() != 0 {
		t.Errorf("static no-arg method has entry definitions %v", g.Entry().Definitions.Sorted())
	}
	if g.Impure {
		t.Error("Impure = true, want false")
	}
}

func TestBuildEntryDefinitions(t *testing.T) {
	fields := []types.FieldInput{
		{Name: "count", Descriptor: "I"},
		{Name: "INSTANCES", Descriptor: "I", Static: true},
	}
	method := types.MethodInput{
		Name:       "add",
		Descriptor: "(JI)V",
		LocalVariables: types.LocalVariableTable{
			{Slot: 0, Name: "this", Descriptor: "Lcom/example/Counter;", Start: 0, End: 1},
			{Slot: 1, Name: "delta", Descriptor: "J", Start: 0, End: 1},
			{Slot: 3, Name: "times", Descriptor: "I", Start: 0, End: 1},
		},
		Instructions: []types.Instruction{
			insn(0, 10, types.ILoad, 3),
			insn(1, 11, types.Return, 0),
		},
	}

	g, err := NewBuilder(className, fields).Build(method)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	wantParams := []string{"this", "delta", "times"}
	if len(g.Parameters) != len(wantParams) {
		t.Fatalf("Parameters = %v, want %v", g.Parameters, wantParams)
	}
	for i, name := range wantParams {
		p := g.Parameters[i]
		if p.Name != name || p.Index != types.EntryIndex || !p.IsDefinition || p.Line != 10 {
			t.Errorf("Parameters[%d] = %v, want entry definition of %s", i, p, name)
		}
	}

	entry := g.Entry().Definitions
	if entry.Len() != 4 {
		t.Errorf("entry definitions = %v, want 3 params + 1 instance field", entry.Sorted())
	}
	field := types.ProgramVariable{Owner: className, Name: "count", Descriptor: "I", Index: types.EntryIndex, Line: 10, IsDefinition: true}
	if !entry.Has(field) {
		t.Errorf("entry definitions missing instance field %v", field)
	}
}

func TestBuildIncrementAndFields(t *testing.T) {
	method := types.MethodInput{
		Name:       "bump",
		Descriptor: "()V",
		Instructions: []types.Instruction{
			insn(0, 20, types.IInc, 1),
			fieldInsn(1, 21, types.GetField, className, "count"),
			fieldInsn(2, 21, types.PutField, "com/example/Other", "count"),
			insn(3, 22, types.Return, 0),
		},
	}

	g, err := NewBuilder(className, nil).Build(method)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	n0, _ := g.Node(0)
	if n0.Uses.Len() != 1 || n0.Definitions.Len() != 1 {
		t.Fatalf("IINC node uses=%d defs=%d, want 1/1", n0.Uses.Len(), n0.Definitions.Len())
	}
	use, def := n0.Uses.Sorted()[0], n0.Definitions.Sorted()[0]
	if use.Name != "slot1" || use.Descriptor != types.UnknownDescriptor {
		t.Errorf("missing metadata should give placeholder, got %v", use)
	}
	if use.AsDefinition() != def {
		t.Errorf("IINC use %v and definition %v should differ only by kind", use, def)
	}

	n2, _ := g.Node(2)
	if n2.Definitions.Len() != 1 || n2.Definitions.Sorted()[0].Owner != "com/example/Other" {
		t.Errorf("PUTFIELD defs = %v", n2.Definitions.Sorted())
	}
	if g.Impure {
		t.Error("writing another class's field must not make the method impure")
	}

	method.Instructions[2].Field.Owner = className
	g, err = NewBuilder(className, nil).Build(method)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if !g.Impure {
		t.Error("writing an own field should make the method impure")
	}
}

func TestBuildEdges(t *testing.T) {
	// 0: ILOAD 0; 1: IFEQ -> 4; 2: ICONST_1; 3: IRETURN; 4: ICONST_0; 5: IRETURN
	method := types.MethodInput{
		Name:       "sign",
		Descriptor: "(I)I",
		Static:     true,
		Instructions: []types.Instruction{
			insn(0, 1, types.ILoad, 0),
			insn(1, 1, types.IfEq, 0),
			insn(2, 2, types.IConst1, 0),
			insn(3, 2, types.IReturn, 0),
			insn(4, 3, types.IConst0, 0),
			insn(5, 3, types.IReturn, 0),
		},
		Edges: map[int][]int{0: {1}, 1: {2, 4}, 2: {3}, 4: {5}},
	}

	g, err := NewBuilder(className, nil).Build(method)
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}

	n1, _ := g.Node(1)
	if len(n1.Successors) != 2 || n1.Successors[0] != 2 || n1.Successors[1] != 4 {
		t.Errorf("branch successors = %v, want [2 4]", n1.Successors)
	}
	if got := g.Exit().Predecessors; len(got) != 2 || got[0] != 3 || got[1] != 5 {
		t.Errorf("exit predecessors = %v, want [3 5]", got)
	}
	preds := g.Predecessors(g.Exit())
	if len(preds) != 2 || preds[0].Type != NodeTypeInstruction {
		t.Errorf("Predecessors(exit) = %v", preds)
	}
}

func TestBuildEmptyMethod(t *testing.T) {
	g, err := NewBuilder(className, nil).Build(types.MethodInput{Name: "abs", Descriptor: "(I)I"})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if !g.IsEmpty() || g.Len() != 2 {
		t.Fatalf("IsEmpty() = %v Len() = %d, want entry and exit only", g.IsEmpty(), g.Len())
	}
	if got := g.Entry().Successors; len(got) != 1 || got[0] != types.ExitIndex {
		t.Errorf("entry successors = %v, want exit", got)
	}
	if g.First() != nil || g.Last() != nil {
		t.Error("First/Last should be nil for an empty method")
	}
}

func TestBuildErrors(t *testing.T) {
	tests := []struct {
		name        string
		method      types.MethodInput
		errContains string
	}{
		{
			name: "duplicate index",
			method: types.MethodInput{Name: "m", Descriptor: "()V", Static: true, Instructions: []types.Instruction{
				insn(0, 1, types.Nop, 0), insn(0, 1, types.Return, 0),
			}},
			errContains: "duplicate instruction index 0",
		},
		{
			name: "unknown edge target",
			method: types.MethodInput{Name: "m", Descriptor: "()V", Static: true,
				Instructions: []types.Instruction{insn(0, 1, types.Goto, 0)},
				Edges:        map[int][]int{0: {9}},
			},
			errContains: "targets unknown instruction",
		},
		{
			name:        "bad descriptor",
			method:      types.MethodInput{Name: "m", Descriptor: "V"},
			errContains: "malformed method descriptor",
		},
		{
			name: "field without operand",
			method: types.MethodInput{Name: "m", Descriptor: "()V", Instructions: []types.Instruction{
				insn(0, 1, types.GetField, 0),
			}},
			errContains: "without field operand",
		},
		{
			name: "call without target",
			method: types.MethodInput{Name: "m", Descriptor: "()V", Instructions: []types.Instruction{
				insn(0, 1, types.InvokeStatic, 0),
			}},
			errContains: "without call target",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewBuilder(className, nil).Build(tt.method)
			if err == nil || !strings.Contains(err.Error(), tt.errContains) {
				t.Fatalf("Build() error = %v, want error containing %q", err, tt.errContains)
			}
		})
	}
}

func TestFreeze(t *testing.T) {
	g, err := NewBuilder(className, nil).Build(types.MethodInput{Name: "m", Descriptor: "()V", Static: true})
	if err != nil {
		t.Fatalf("Build() error: %v", err)
	}
	if g.Frozen() {
		t.Fatal("new graph should not be frozen")
	}
	g.Freeze()
	if !g.Frozen() {
		t.Fatal("Freeze() had no effect")
	}
}
