package tracker

import (
	"sync/atomic"

	"github.com/l3aro/dfcov/pkg/types"
)

var installed atomic.Pointer[Tracker]

// Install makes t the target of the package-level entry points and returns
// the tracker it replaces.
func Install(t *Tracker) *Tracker {
	return installed.Swap(t)
}

// Uninstall detaches the installed tracker and returns it.
func Uninstall() *Tracker {
	return installed.Swap(nil)
}

// Installed returns the current tracker, or nil.
func Installed() *Tracker {
	return installed.Load()
}

// RecordLocalVariableOccurrence is the fixed call target injected for local
// variable instructions. It never panics into the caller.
func RecordLocalVariableOccurrence(class, method string, slot, index, line int, op types.Opcode) {
	t := installed.Load()
	if t == nil {
		return
	}
	defer t.recoverHook(class, method)
	t.RecordLocalVariableOccurrence(class, method, slot, index, line, op)
}

// RecordFieldOccurrence is the fixed call target injected for field
// instructions. It never panics into the caller.
func RecordFieldOccurrence(class, owner, method, field, descriptor string, index, line int, op types.Opcode) {
	t := installed.Load()
	if t == nil {
		return
	}
	defer t.recoverHook(class, method)
	t.RecordFieldOccurrence(class, owner, method, field, descriptor, index, line, op)
}

func (t *Tracker) recoverHook(class, method string) {
	if r := recover(); r != nil {
		t.dropped.Add(1)
		t.logger.Error("recovered from tracking panic", "class", class, "method", method, "panic", r)
	}
}
