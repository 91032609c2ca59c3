// Package tracker records the variable occurrences observed while instrumented
// code runs. Instrumentation calls the package-level entry points, which
// forward to the installed Tracker.
package tracker

import (
	"errors"
	"sync/atomic"

	"github.com/l3aro/dfcov/internal/log"
	"github.com/l3aro/dfcov/pkg/cfg"
	"github.com/l3aro/dfcov/pkg/coverage"
	"github.com/l3aro/dfcov/pkg/types"
)

// ErrClosed is returned by Close on a tracker that was already closed.
var ErrClosed = errors.New("tracker closed")

// Drop diagnostics are limited to this many messages per second.
const (
	dropLogRate  = 5
	dropLogBurst = 20
)

// Tracker inserts observed occurrences into the method sets of a coverage
// store. It is safe for concurrent use by any number of goroutines.
type Tracker struct {
	store    *coverage.Store
	logger   *log.RateLimited
	recorded atomic.Int64
	dropped  atomic.Int64
	closed   atomic.Bool
}

// New creates a tracker writing into store.
func New(store *coverage.Store, logger log.Logger) *Tracker {
	return &Tracker{
		store:  store,
		logger: log.NewRateLimited(logger, dropLogRate, dropLogBurst),
	}
}

// RecordLocalVariableOccurrence records the load, store or increment of a
// local slot. The slot resolves through the method's local variable table the
// same way the graph builder resolved it. An increment records both its use
// and its definition.
func (t *Tracker) RecordLocalVariableOccurrence(class, method string, slot, index, line int, op types.Opcode) {
	c, m, ok := t.lookup(class, method)
	if !ok {
		return
	}
	if op.Class() == types.OpcodeClassIncrement {
		t.insert(c, m, cfg.LocalVariable(m.Locals, slot, index, line, false))
	}
	t.insert(c, m, cfg.LocalVariable(m.Locals, slot, index, line, op.IsDefinition()))
}

// RecordFieldOccurrence records a read or write of owner.field.
func (t *Tracker) RecordFieldOccurrence(class, owner, method, field, descriptor string, index, line int, op types.Opcode) {
	c, m, ok := t.lookup(class, method)
	if !ok {
		return
	}
	ref := types.MemberRef{Owner: owner, Name: field, Descriptor: descriptor}
	t.insert(c, m, cfg.FieldVariable(ref, index, line, op))
}

func (t *Tracker) lookup(class, method string) (*coverage.ClassData, *coverage.MethodData, bool) {
	if t.closed.Load() {
		t.drop("tracker closed", class, method)
		return nil, nil, false
	}
	c, ok := t.store.Class(class)
	if !ok {
		t.drop("class not analyzed", class, method)
		return nil, nil, false
	}
	m, ok := c.Method(method)
	if !ok {
		t.drop("method not analyzed", class, method)
		return nil, nil, false
	}
	return c, m, true
}

func (t *Tracker) insert(c *coverage.ClassData, m *coverage.MethodData, v types.ProgramVariable) {
	if m.Occurrences.Add(v) {
		t.recorded.Add(1)
	}
	c.MarkTested()
}

func (t *Tracker) drop(reason, class, method string) {
	t.dropped.Add(1)
	t.logger.Debug("dropping occurrence", "reason", reason, "class", class, "method", method)
}

// Recorded returns the number of distinct occurrences inserted.
func (t *Tracker) Recorded() int64 {
	return t.recorded.Load()
}

// Dropped returns the number of occurrences that could not be attributed.
func (t *Tracker) Dropped() int64 {
	return t.dropped.Load()
}

// Close stops recording. Later occurrences are dropped.
func (t *Tracker) Close() error {
	if t.closed.Swap(true) {
		return ErrClosed
	}
	if n := t.logger.Suppressed(); n > 0 {
		t.logger.Info("suppressed drop diagnostics", "count", n)
	}
	return nil
}
