package tracker

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/l3aro/dfcov/pkg/types"
)

// OccurrenceKind tells which entry point produced an occurrence.
type OccurrenceKind string

const (
	KindLocal OccurrenceKind = "local"
	KindField OccurrenceKind = "field"
)

// Occurrence is one line of a runtime trace: the arguments of one entry point
// call, written by an out-of-process agent and replayed by the CLI.
type Occurrence struct {
	Kind       OccurrenceKind `json:"kind"`
	Class      string         `json:"class"`
	Method     string         `json:"method"`
	Slot       int            `json:"slot,omitempty"`
	Owner      string         `json:"owner,omitempty"`
	Field      string         `json:"field,omitempty"`
	Descriptor string         `json:"descriptor,omitempty"`
	Index      int            `json:"index"`
	Line       int            `json:"line"`
	Opcode     types.Opcode   `json:"opcode"`
}

// Apply forwards the occurrence to the matching entry point of t.
func (o Occurrence) Apply(t *Tracker) error {
	switch o.Kind {
	case KindLocal:
		t.RecordLocalVariableOccurrence(o.Class, o.Method, o.Slot, o.Index, o.Line, o.Opcode)
	case KindField:
		t.RecordFieldOccurrence(o.Class, o.Owner, o.Method, o.Field, o.Descriptor, o.Index, o.Line, o.Opcode)
	default:
		return fmt.Errorf("unknown occurrence kind %q", o.Kind)
	}
	return nil
}

// Replay reads JSON lines of occurrences from r and applies them in order.
// Blank lines are skipped. It returns the number of lines applied.
func (t *Tracker) Replay(r io.Reader) (int, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	applied := 0
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		var o Occurrence
		if err := json.Unmarshal([]byte(line), &o); err != nil {
			return applied, fmt.Errorf("trace line %d: %w", lineNo, err)
		}
		if err := o.Apply(t); err != nil {
			return applied, fmt.Errorf("trace line %d: %w", lineNo, err)
		}
		applied++
	}
	if err := scanner.Err(); err != nil {
		return applied, fmt.Errorf("reading trace: %w", err)
	}
	return applied, nil
}
