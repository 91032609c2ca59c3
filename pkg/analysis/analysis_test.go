package analysis

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/dfcov/pkg/coverage"
	"github.com/l3aro/dfcov/pkg/dfg"
	"github.com/l3aro/dfcov/pkg/tracker"
	"github.com/l3aro/dfcov/pkg/types"
)

const accountClass = "com/example/bank/Account"

func classesDir() string {
	return filepath.Join("..", "..", "testdata", "classes")
}

func loadFixtures(t *testing.T) []*types.ClassInput {
	t.Helper()
	var inputs []*types.ClassInput
	for _, name := range []string{"Account.yaml", "MathUtil.json"} {
		in, err := LoadClassInput(filepath.Join(classesDir(), name))
		require.NoError(t, err, name)
		inputs = append(inputs, in)
	}
	return inputs
}

func TestLoadClassInput(t *testing.T) {
	inputs := loadFixtures(t)

	account := inputs[0]
	assert.Equal(t, accountClass, account.Name)
	require.Len(t, account.Methods, 3)
	assert.Equal(t, "<init>()V", account.Methods[0].Key())
	assert.Equal(t, types.InvokeSpecial, account.Methods[0].Instructions[1].Opcode)

	maxMethod := inputs[1].Methods[0]
	assert.True(t, maxMethod.Static)
	assert.Equal(t, types.IfICmpLe, maxMethod.Instructions[4].Opcode, "numeric opcode")
	assert.Equal(t, []int{5, 7}, maxMethod.Edges[4])
}

func TestLoadClassInputErrors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{"no name", "a.yaml", "methods: []\n"},
		{"bad opcode", "b.yaml", "name: A\nmethods:\n  - {name: m, descriptor: ()V, instructions: [{index: 0, opcode: FROB}]}\n"},
		{"bad json", "c.json", `{"name": "A", "methods": [`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(dir, tt.file)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0644))
			_, err := LoadClassInput(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadClassInput(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}

func TestAnalyzeClass(t *testing.T) {
	res, err := New(Options{Policy: dfg.KillByName}).AnalyzeClass(loadFixtures(t)[0])
	require.NoError(t, err)

	assert.True(t, res.Graphs["deposit(I)V"].Impure)
	assert.False(t, res.Graphs["topUp(I)V"].Impure)
	for key, g := range res.Graphs {
		assert.True(t, g.Frozen(), key)
	}

	assert.Len(t, res.Pairs["deposit(I)V"].Pairs, 4)
	assert.Len(t, res.Pairs["topUp(I)V"].Pairs, 3)
	assert.Len(t, res.Pairs["<init>()V"].Pairs, 2)

	require.Len(t, res.Match.Matches, 1)
	match := res.Match.Matches[0]
	assert.Equal(t, "bonus", match.Definition.Name)
	assert.Equal(t, 1, match.Definition.Index)
	assert.Equal(t, "amount", match.CallSiteDefinition.Name)
	assert.Equal(t, "topUp(I)V", match.MethodName)
	assert.Equal(t, "deposit(I)V", match.CallSiteMethodName)

	topUp, ok := res.Class.Method("topUp(I)V")
	require.True(t, ok)
	assert.Len(t, topUp.Pairs, 4, "intra pairs plus one cross pair")
	assert.NotNil(t, topUp.CFG())
}

func TestAnalyzeClassErrors(t *testing.T) {
	tests := []struct {
		name string
		in   *types.ClassInput
	}{
		{
			name: "duplicate method",
			in: &types.ClassInput{Name: "A", Methods: []types.MethodInput{
				{Name: "m", Descriptor: "()V"},
				{Name: "m", Descriptor: "()V"},
			}},
		},
		{
			name: "bad descriptor",
			in:   &types.ClassInput{Name: "A", Methods: []types.MethodInput{{Name: "m", Descriptor: "(Q"}}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(Options{}).AnalyzeClass(tt.in)
			assert.Error(t, err)
		})
	}
}

func TestAnalyzeAllAndTrack(t *testing.T) {
	store := coverage.NewStore(nil)
	results, err := New(Options{Parallel: 2}).AnalyzeAll(context.Background(), loadFixtures(t), store)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, accountClass, results[0].Class.Name)

	f, err := os.Open(filepath.Join("..", "..", "testdata", "traces", "topup.jsonl"))
	require.NoError(t, err)
	defer f.Close()

	tr := tracker.New(store, nil)
	n, err := tr.Replay(f)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Zero(t, tr.Dropped())
	require.NoError(t, tr.Close())

	tree, err := store.Finalize()
	require.NoError(t, err)

	// Account: deposit 4/4, topUp 4/4 through the match, <init> 0/2.
	// MathUtil: max 0/6.
	assert.Equal(t, coverage.Counts{Total: 16, Covered: 8, MethodCount: 4}, tree.Node(tree.Root()).Counts)

	account, ok := store.Class(accountClass)
	require.True(t, ok)
	topUp, _ := account.Method("topUp(I)V")
	assert.Equal(t, coverage.Counts{Total: 4, Covered: 4, MethodCount: 1}, topUp.Counts)

	assert.Equal(t, []string{accountClass}, store.TestedClasses())
	assert.Equal(t, []string{"com/example/bank/MathUtil"}, store.UntestedClasses())
}

func TestAnalyzeAllDuplicateClass(t *testing.T) {
	inputs := loadFixtures(t)
	store := coverage.NewStore(nil)
	_, err := New(Options{Parallel: 1}).AnalyzeAll(context.Background(), append(inputs, inputs[0]), store)
	assert.ErrorIs(t, err, coverage.ErrClassExists)
}
