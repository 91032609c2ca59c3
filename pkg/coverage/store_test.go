package coverage

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/l3aro/dfcov/pkg/dfg"
	"github.com/l3aro/dfcov/pkg/types"
)

// syntheticClass builds a class whose methods have the given pair counts,
// with the first covered[i] pairs of method i fully observed.
func syntheticClass(name string, total, covered []int) *ClassData {
	c := NewClassData(name, "", dfg.KillByName)
	for i := range total {
		m := &MethodData{
			Key:         fmt.Sprintf("m%d()V", i),
			Name:        fmt.Sprintf("m%d", i),
			Descriptor:  "()V",
			Occurrences: NewOccurrenceSet(),
			Uncovered:   types.NewVarSet(),
		}
		for p := 0; p < total[i]; p++ {
			v := fmt.Sprintf("v%d", p)
			def := types.ProgramVariable{Name: v, Descriptor: "I", Index: 0, IsDefinition: true}
			use := types.ProgramVariable{Name: v, Descriptor: "I", Index: 1}
			m.Pairs = append(m.Pairs, dfg.DefUsePair{Definition: def, Use: use})
			if p < covered[i] {
				m.Occurrences.Add(def)
				m.Occurrences.Add(use)
			}
		}
		c.AddMethod(m)
	}
	return c
}

func TestStoreFinalizeAggregates(t *testing.T) {
	store := NewStore(nil)
	classes := []*ClassData{
		syntheticClass("com/example/A", []int{3, 2}, []int{1, 2}),
		syntheticClass("com/example/B", []int{4, 0}, []int{4, 0}),
		syntheticClass("org/other/C", []int{5}, []int{0}),
		syntheticClass("Main", []int{1}, []int{1}),
	}
	for _, c := range classes {
		require.NoError(t, store.Register(c))
	}

	tree, err := store.Finalize()
	require.NoError(t, err)

	root := tree.Node(tree.Root())
	assert.Equal(t, Counts{Total: 15, Covered: 8, MethodCount: 5}, root.Counts)
	assert.True(t, tree.IsRoot(tree.Root()))

	pkg, ok := tree.Lookup("com.example")
	require.True(t, ok)
	assert.Equal(t, Counts{Total: 9, Covered: 7, MethodCount: 3}, tree.Node(pkg).Counts)

	leaf, ok := tree.Lookup("com.example", "B")
	require.True(t, ok)
	assert.True(t, tree.IsLeaf(leaf))
	assert.Equal(t, pkg, tree.Node(leaf).Parent)
	assert.Same(t, classes[1], tree.Node(leaf).Class)

	_, ok = tree.Lookup(DefaultPackage, "Main")
	assert.True(t, ok)

	// Every inner node sums its children.
	err = tree.Walk(func(id NodeID, _ int) error {
		if tree.IsLeaf(id) {
			return nil
		}
		var sum Counts
		for _, child := range tree.Children(id) {
			sum = sum.Add(tree.Node(child).Counts)
		}
		if sum != tree.Node(id).Counts {
			return fmt.Errorf("node %s: %+v != children sum %+v", tree.Node(id).Name, tree.Node(id).Counts, sum)
		}
		return nil
	})
	assert.NoError(t, err)

	// Root equals the sum over all methods.
	var methods Counts
	for _, c := range store.Classes() {
		for _, m := range c.Methods() {
			methods = methods.Add(m.Counts)
		}
	}
	assert.Equal(t, root.Counts, methods)
}

func TestStoreRegister(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.Register(NewClassData("com/example/A", "", dfg.KillByName)))

	err := store.Register(NewClassData("com/example/A", "", dfg.KillByName))
	assert.True(t, errors.Is(err, ErrClassExists))

	c, ok := store.Class("com/example/A")
	require.True(t, ok)
	assert.Equal(t, "com.example", c.Package)

	_, ok = store.Class("com/example/Z")
	assert.False(t, ok)
}

func TestStoreTestedClasses(t *testing.T) {
	store := NewStore(nil)
	a := syntheticClass("com/example/A", []int{1}, []int{0})
	b := syntheticClass("com/example/B", []int{1}, []int{0})
	require.NoError(t, store.Register(a))
	require.NoError(t, store.Register(b))

	require.True(t, b.Record("m0()V", types.ProgramVariable{Name: "v0", Descriptor: "I", IsDefinition: true}))

	assert.Equal(t, []string{"com/example/B"}, store.TestedClasses())
	assert.Equal(t, []string{"com/example/A"}, store.UntestedClasses())
}

func TestStoreClose(t *testing.T) {
	store := NewStore(nil)
	require.NoError(t, store.Close())

	assert.ErrorIs(t, store.Register(NewClassData("A", "", dfg.KillByName)), ErrStoreClosed)
	_, err := store.Finalize()
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, store.Close(), ErrStoreClosed)
}

func TestOccurrenceSetConcurrent(t *testing.T) {
	set := NewOccurrenceSet()
	var wg sync.WaitGroup
	for w := 0; w < 16; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				set.Add(types.ProgramVariable{Name: "x", Index: i})
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 100, set.Len())
	sorted := set.Sorted()
	require.Len(t, sorted, 100)
	assert.True(t, set.Has(types.ProgramVariable{Name: "x", Index: 42}))
	assert.False(t, set.Add(types.ProgramVariable{Name: "x", Index: 42}))
}
