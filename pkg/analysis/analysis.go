// Package analysis runs the static side of def-use coverage: it builds and
// solves the graph of every method of a class, enumerates pairs, matches
// calls within the class and registers the result in a coverage store.
package analysis

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/l3aro/dfcov/internal/log"
	"github.com/l3aro/dfcov/pkg/callgraph"
	"github.com/l3aro/dfcov/pkg/cfg"
	"github.com/l3aro/dfcov/pkg/coverage"
	"github.com/l3aro/dfcov/pkg/dfg"
	"github.com/l3aro/dfcov/pkg/types"
)

// Options configures an Analyzer.
type Options struct {
	Policy   dfg.KillPolicy
	Parallel int // Classes analyzed concurrently; NumCPU when zero
	Logger   log.Logger
}

// Analyzer turns class documents into coverage data.
type Analyzer struct {
	policy   dfg.KillPolicy
	parallel int
	logger   log.Logger
}

// ClassResult is everything the analysis of one class produced.
type ClassResult struct {
	Class  *coverage.ClassData
	Graphs map[string]*cfg.CFG
	Pairs  map[string]dfg.MethodPairs
	Match  *callgraph.MatchResult
	Stats  map[string]dfg.SolveStats
}

// New creates an analyzer.
func New(opts Options) *Analyzer {
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = runtime.NumCPU()
	}
	return &Analyzer{
		policy:   opts.Policy,
		parallel: parallel,
		logger:   log.OrNop(opts.Logger),
	}
}

// AnalyzeClass analyzes one class. Graphs in the result are frozen.
func (a *Analyzer) AnalyzeClass(in *types.ClassInput) (*ClassResult, error) {
	builder := cfg.NewBuilder(in.Name, in.Fields)
	solver := dfg.NewReachingDefsAnalyzer(a.policy)

	res := &ClassResult{
		Graphs: make(map[string]*cfg.CFG, len(in.Methods)),
		Pairs:  make(map[string]dfg.MethodPairs, len(in.Methods)),
		Stats:  make(map[string]dfg.SolveStats, len(in.Methods)),
	}
	intra := make(map[string][]dfg.DefUsePair, len(in.Methods))

	for _, m := range in.Methods {
		key := m.Key()
		if _, dup := res.Graphs[key]; dup {
			return nil, fmt.Errorf("class %s: duplicate method %s", in.Name, key)
		}
		g, err := builder.Build(m)
		if err != nil {
			return nil, fmt.Errorf("class %s: building graph: %w", in.Name, err)
		}
		stats, err := solver.Solve(g)
		if err != nil {
			return nil, fmt.Errorf("class %s: solving %s: %w", in.Name, key, err)
		}
		pairs := dfg.EnumeratePairs(g, a.policy)

		res.Graphs[key] = g
		res.Pairs[key] = pairs
		res.Stats[key] = stats
		intra[key] = pairs.Pairs
	}

	res.Match = callgraph.NewMatcher(in.Name, res.Graphs, intra, a.logger).Match()

	class := coverage.NewClassData(in.Name, in.Source, a.policy)
	class.Matches = res.Match.Matches
	for key, g := range res.Graphs {
		g.Freeze()
		pairs := append(append([]dfg.DefUsePair(nil), res.Pairs[key].Pairs...), res.Match.CrossPairs[key]...)
		class.AddMethod(coverage.NewMethodData(g, pairs, res.Pairs[key].EntryCovered))
	}
	res.Class = class

	a.logger.Debug("analyzed class", "class", in.Name, "methods", len(in.Methods), "matches", len(res.Match.Matches))
	return res, nil
}

// AnalyzeAll analyzes the classes concurrently and registers each one in
// store. The first error cancels the remaining work.
func (a *Analyzer) AnalyzeAll(ctx context.Context, inputs []*types.ClassInput, store *coverage.Store) ([]*ClassResult, error) {
	var (
		mu      sync.Mutex
		results []*ClassResult
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(a.parallel)
	for _, in := range inputs {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := a.AnalyzeClass(in)
			if err != nil {
				return err
			}
			if err := store.Register(res.Class); err != nil {
				return fmt.Errorf("registering class: %w", err)
			}
			mu.Lock()
			results = append(results, res)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Class.Name < results[j].Class.Name })
	a.logger.Info("analysis complete", "classes", len(results))
	return results, nil
}
