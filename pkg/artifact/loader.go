package artifact

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/l3aro/dfcov/internal/log"
	"github.com/l3aro/dfcov/pkg/coverage"
)

// Loader imports class artifacts. Concurrent loads of the same path share one
// read.
type Loader struct {
	group  singleflight.Group
	logger log.Logger
}

// NewLoader creates a loader.
func NewLoader(logger log.Logger) *Loader {
	return &Loader{logger: log.OrNop(logger)}
}

// Load reads and restores the class artifact at path. Failures are *ImportError.
func (l *Loader) Load(path string) (*coverage.ClassData, error) {
	v, err, shared := l.group.Do(path, func() (interface{}, error) {
		s, err := ReadClass(path)
		if err != nil {
			return nil, err
		}
		return s, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		l.logger.Debug("shared artifact load", "path", path)
	}

	// Each caller restores its own copy; snapshots are never mutated.
	c, err := v.(*ClassSnapshot).Restore()
	if err != nil {
		return nil, &ImportError{Path: path, Err: err}
	}
	return c, nil
}

// LoadResult is the outcome of loading a directory of artifacts.
type LoadResult struct {
	Classes []*coverage.ClassData
	// Failed holds one *ImportError per artifact that was skipped.
	Failed []error
}

// LoadDir loads every artifact in dir with at most parallel concurrent reads.
// A corrupt artifact is recorded in Failed and skipped; only a failure to list
// the directory or a cancelled context is returned as an error.
func (l *Loader) LoadDir(ctx context.Context, dir string, parallel int) (*LoadResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading artifact dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, err := FormatFromPath(e.Name()); err == nil {
			paths = append(paths, filepath.Join(dir, e.Name()))
		}
	}

	var (
		mu     sync.Mutex
		result LoadResult
	)
	g, gctx := errgroup.WithContext(ctx)
	if parallel > 0 {
		g.SetLimit(parallel)
	}
	for _, path := range paths {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			c, err := l.Load(path)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				var ie *ImportError
				if !errors.As(err, &ie) {
					err = &ImportError{Path: path, Err: err}
				}
				l.logger.Warn("skipping artifact", "path", path, "error", err)
				result.Failed = append(result.Failed, err)
				return nil
			}
			result.Classes = append(result.Classes, c)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(result.Classes, func(i, j int) bool { return result.Classes[i].Name < result.Classes[j].Name })
	return &result, nil
}
