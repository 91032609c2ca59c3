package coverage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/dfcov/pkg/callgraph"
	"github.com/l3aro/dfcov/pkg/cfg"
	"github.com/l3aro/dfcov/pkg/dfg"
	"github.com/l3aro/dfcov/pkg/types"
)

const className = "com/example/Acc"

func op(index int, code types.Opcode, slot int) types.Instruction {
	return types.Instruction{Index: index, Line: index + 1, Opcode: code, Slot: slot}
}

func local(name string, index int, def bool) types.ProgramVariable {
	return types.ProgramVariable{Name: name, Descriptor: "I", Index: index, Line: index + 1, IsDefinition: def}
}

func locals(names ...string) types.LocalVariableTable {
	table := make(types.LocalVariableTable, 0, len(names))
	for slot, name := range names {
		table = append(table, types.LocalVariable{Slot: slot, Name: name, Descriptor: "I", Start: 0, End: 100})
	}
	return table
}

// analyzeClass runs the static analysis of the given methods and returns the
// resulting class data, matches included.
func analyzeClass(t *testing.T, fields []types.FieldInput, methods ...types.MethodInput) *ClassData {
	t.Helper()
	builder := cfg.NewBuilder(className, fields)
	solver := dfg.NewReachingDefsAnalyzer(dfg.KillByName)

	graphs := make(map[string]*cfg.CFG)
	pairs := make(map[string]dfg.MethodPairs)
	intra := make(map[string][]dfg.DefUsePair)
	for _, m := range methods {
		g, err := builder.Build(m)
		require.NoError(t, err)
		_, err = solver.Solve(g)
		require.NoError(t, err)
		graphs[m.Key()] = g
		pairs[m.Key()] = dfg.EnumeratePairs(g, dfg.KillByName)
		intra[m.Key()] = pairs[m.Key()].Pairs
	}

	result := callgraph.NewMatcher(className, graphs, intra, nil).Match()
	class := NewClassData(className, "Acc.java", dfg.KillByName)
	class.Matches = result.Matches
	for key, g := range graphs {
		g.Freeze()
		all := append(append([]dfg.DefUsePair(nil), pairs[key].Pairs...), result.CrossPairs[key]...)
		class.AddMethod(NewMethodData(g, all, pairs[key].EntryCovered))
	}
	return class
}

// branch is: x = 1; if (c) { x = 2 } use(x)
var branchMethod = types.MethodInput{
	Name:           "branch",
	Descriptor:     "()V",
	Static:         true,
	LocalVariables: locals("x"),
	Instructions: []types.Instruction{
		op(0, types.IStore, 0),
		op(1, types.IfEq, 0),
		op(2, types.IStore, 0),
		op(3, types.ILoad, 0),
		op(4, types.Return, 0),
	},
	Edges: map[int][]int{0: {1}, 1: {2, 3}, 2: {3}, 3: {4}},
}

func TestComputeCoverageRedefinition(t *testing.T) {
	tests := []struct {
		name        string
		observed    []types.ProgramVariable
		wantCovered map[int]bool // keyed by definition index
		wantCounts  Counts
	}{
		{
			name:        "nothing observed",
			wantCovered: map[int]bool{0: false, 2: false},
			wantCounts:  Counts{Total: 2, Covered: 0, MethodCount: 1},
		},
		{
			name:        "branch not taken",
			observed:    []types.ProgramVariable{local("x", 0, true), local("x", 3, false)},
			wantCovered: map[int]bool{0: true, 2: false},
			wantCounts:  Counts{Total: 2, Covered: 1, MethodCount: 1},
		},
		{
			name:        "redefinition invalidates the earlier definition",
			observed:    []types.ProgramVariable{local("x", 0, true), local("x", 2, true), local("x", 3, false)},
			wantCovered: map[int]bool{0: false, 2: true},
			wantCounts:  Counts{Total: 2, Covered: 1, MethodCount: 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class := analyzeClass(t, nil, branchMethod)
			for _, v := range tt.observed {
				require.True(t, class.Record("branch()V", v))
			}

			got := class.ComputeCoverage()
			assert.Equal(t, tt.wantCounts, got)
			assert.Equal(t, got, class.Counts())

			m, ok := class.Method("branch()V")
			require.True(t, ok)
			require.Len(t, m.Pairs, 2)
			for _, p := range m.Pairs {
				assert.Equal(t, tt.wantCovered[p.Definition.Index], p.Covered, "pair %s", p)
			}
			assert.Equal(t, len(tt.observed) > 0, class.Tested())
		})
	}
}

func TestComputeCoverageUncoveredVariables(t *testing.T) {
	class := analyzeClass(t, nil, branchMethod)
	require.True(t, class.Record("branch()V", local("x", 0, true)))
	class.ComputeCoverage()

	m, _ := class.Method("branch()V")
	assert.True(t, m.Uncovered.Has(local("x", 2, true)))
	assert.True(t, m.Uncovered.Has(local("x", 3, false)))
	assert.False(t, m.Uncovered.Has(local("x", 0, true)))
}

func TestComputeCoverageInterProcedural(t *testing.T) {
	total := []types.FieldInput{{Name: "total", Descriptor: "I", Static: true}}
	// static void bar(int p) { total = p; }
	bar := types.MethodInput{
		Name:           "bar",
		Descriptor:     "(I)V",
		Static:         true,
		LocalVariables: locals("p"),
		Instructions: []types.Instruction{
			op(0, types.ILoad, 0),
			{Index: 1, Line: 2, Opcode: types.PutStatic, Field: &types.MemberRef{Owner: className, Name: "total", Descriptor: "I"}},
			op(2, types.Return, 0),
		},
	}
	// static void foo() { int a = 5; bar(a); }
	foo := types.MethodInput{
		Name:           "foo",
		Descriptor:     "()V",
		Static:         true,
		LocalVariables: locals("a"),
		Instructions: []types.Instruction{
			op(0, types.IConst5, 0),
			op(1, types.IStore, 0),
			op(2, types.ILoad, 0),
			{Index: 3, Line: 4, Opcode: types.InvokeStatic, Call: &types.MemberRef{Owner: className, Name: "bar", Descriptor: "(I)V"}},
			op(4, types.Return, 0),
		},
	}

	tests := []struct {
		name        string
		calleeUse   bool
		wantCovered int
	}{
		{name: "callee use observed", calleeUse: true, wantCovered: 3},
		{name: "callee never ran", calleeUse: false, wantCovered: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			class := analyzeClass(t, total, bar, foo)
			require.Len(t, class.Matches, 1)

			class.Record("foo()V", local("a", 1, true))
			class.Record("foo()V", local("a", 2, false))
			if tt.calleeUse {
				class.Record("bar(I)V", local("p", 0, false))
			}

			got := class.ComputeCoverage()
			assert.Equal(t, 3, got.Total)
			assert.Equal(t, tt.wantCovered, got.Covered)
			assert.Equal(t, 2, got.MethodCount)

			caller, _ := class.Method("foo()V")
			cross := caller.Pairs[len(caller.Pairs)-1]
			assert.Equal(t, local("p", 0, false), cross.Use)
			assert.Equal(t, tt.calleeUse, cross.Covered)
		})
	}
}

func TestComputeCoverageRedefinitionAfterCall(t *testing.T) {
	total := []types.FieldInput{{Name: "total", Descriptor: "I", Static: true}}
	// static void bar(int p) { total = p; }, numbered after foo
	bar := types.MethodInput{
		Name:           "bar",
		Descriptor:     "(I)V",
		Static:         true,
		LocalVariables: locals("p"),
		Instructions: []types.Instruction{
			op(8, types.ILoad, 0),
			{Index: 9, Line: 10, Opcode: types.PutStatic, Field: &types.MemberRef{Owner: className, Name: "total", Descriptor: "I"}},
			op(10, types.Return, 0),
		},
	}
	// static void foo() { int a = 5; bar(a); a = 2; use(a); }
	foo := types.MethodInput{
		Name:           "foo",
		Descriptor:     "()V",
		Static:         true,
		LocalVariables: locals("a"),
		Instructions: []types.Instruction{
			op(0, types.IConst5, 0),
			op(1, types.IStore, 0),
			op(2, types.ILoad, 0),
			{Index: 3, Line: 4, Opcode: types.InvokeStatic, Call: &types.MemberRef{Owner: className, Name: "bar", Descriptor: "(I)V"}},
			op(4, types.IConst2, 0),
			op(5, types.IStore, 0),
			op(6, types.ILoad, 0),
			op(7, types.Return, 0),
		},
	}

	t.Run("later redefinition keeps the call flow covered", func(t *testing.T) {
		class := analyzeClass(t, total, bar, foo)
		for _, v := range []types.ProgramVariable{
			local("a", 1, true),
			local("a", 2, false),
			local("a", 5, true),
			local("a", 6, false),
		} {
			require.True(t, class.Record("foo()V", v))
		}
		require.True(t, class.Record("bar(I)V", local("p", 8, false)))

		got := class.ComputeCoverage()
		assert.Equal(t, Counts{Total: 4, Covered: 4, MethodCount: 2}, got)

		caller, _ := class.Method("foo()V")
		var cross []dfg.DefUsePair
		for _, p := range caller.Pairs {
			if p.IsCross() {
				cross = append(cross, p)
			}
		}
		require.Len(t, cross, 1)
		assert.Equal(t, local("a", 1, true), cross[0].Definition)
		assert.Equal(t, local("p", 8, false), cross[0].Use)
		assert.Equal(t, 3, cross[0].CallIndex)
		assert.True(t, cross[0].Covered)
	})

	t.Run("unobserved callee use stays out of the caller", func(t *testing.T) {
		class := analyzeClass(t, total, bar, foo)
		require.True(t, class.Record("foo()V", local("a", 1, true)))
		require.True(t, class.Record("foo()V", local("a", 2, false)))

		got := class.ComputeCoverage()
		assert.Equal(t, 1, got.Covered)

		caller, _ := class.Method("foo()V")
		for _, v := range caller.Uncovered.Sorted() {
			assert.NotEqual(t, "p", v.Name, "callee variable listed under the caller")
		}
		callee, _ := class.Method("bar(I)V")
		assert.True(t, callee.Uncovered.Has(local("p", 8, false)))
	})
}

func TestComputeCoverageEmptyMethod(t *testing.T) {
	class := analyzeClass(t, nil, types.MethodInput{Name: "run", Descriptor: "()V"})
	assert.Equal(t, Counts{}, class.ComputeCoverage())
	assert.False(t, class.Record("missing()V", local("x", 0, true)))
}

func TestCountsRate(t *testing.T) {
	tests := []struct {
		counts Counts
		want   float64
	}{
		{Counts{}, 0},
		{Counts{Total: 4, Covered: 1}, 0.25},
		{Counts{Total: 3, Covered: 3}, 1},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, tt.counts.Rate(), 1e-9)
	}
}
