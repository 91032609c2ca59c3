// Package artifact persists per-class coverage data so that reports can be
// produced after the test process has exited.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/l3aro/dfcov/pkg/coverage"
	"github.com/l3aro/dfcov/pkg/dfg"
	"github.com/l3aro/dfcov/pkg/types"
)

// SchemaVersion is written into every snapshot.
const SchemaVersion = 2

// ErrUnsupportedFormat is returned for an unknown artifact format or extension.
var ErrUnsupportedFormat = errors.New("unsupported artifact format")

// Format is the encoding of an artifact file.
type Format string

const (
	FormatMsgpack Format = "msgpack"
	FormatJSON    Format = "json"
)

// ParseFormat converts a config value into a Format.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatMsgpack:
		return FormatMsgpack, nil
	case FormatJSON:
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%q: %w", s, ErrUnsupportedFormat)
}

// Ext returns the file extension of the format, dot included.
func (f Format) Ext() string {
	return "." + string(f)
}

// FormatFromPath derives the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch filepath.Ext(path) {
	case ".msgpack":
		return FormatMsgpack, nil
	case ".json":
		return FormatJSON, nil
	}
	return "", fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
}

// ImportError reports an artifact that could not be read or decoded. Only
// the class in Path is affected.
type ImportError struct {
	Path string
	Err  error
}

func (e *ImportError) Error() string {
	return fmt.Sprintf("importing %s: %v", e.Path, e.Err)
}

func (e *ImportError) Unwrap() error {
	return e.Err
}

// MethodSnapshot is the persisted state of one method.
type MethodSnapshot struct {
	Key            string                   `json:"key" msgpack:"key"`
	Name           string                   `json:"name" msgpack:"name"`
	Descriptor     string                   `json:"descriptor" msgpack:"descriptor"`
	FirstLine      int                      `json:"first_line" msgpack:"first_line"`
	LastLine       int                      `json:"last_line" msgpack:"last_line"`
	Pairs          []dfg.DefUsePair         `json:"pairs" msgpack:"pairs"`
	Covered        []types.ProgramVariable  `json:"covered" msgpack:"covered"`
	Uncovered      []types.ProgramVariable  `json:"uncovered" msgpack:"uncovered"`
	LocalVariables types.LocalVariableTable `json:"local_variables" msgpack:"local_variables"`
	Counts         coverage.Counts          `json:"counts" msgpack:"counts"`
}

// ClassSnapshot is the persisted state of one class.
type ClassSnapshot struct {
	Version int                        `json:"version" msgpack:"version"`
	Name    string                     `json:"name" msgpack:"name"`
	Source  string                     `json:"source,omitempty" msgpack:"source"`
	Policy  string                     `json:"kill_policy" msgpack:"kill_policy"`
	Tested  bool                       `json:"tested" msgpack:"tested"`
	Methods []MethodSnapshot           `json:"methods" msgpack:"methods"`
	Matches []dfg.InterProceduralMatch `json:"matches,omitempty" msgpack:"matches"`
	Counts  coverage.Counts            `json:"counts" msgpack:"counts"`
}

// Snapshot captures the current state of a class. Call ComputeCoverage first
// so that pair flags and counts are current.
func Snapshot(c *coverage.ClassData) *ClassSnapshot {
	s := &ClassSnapshot{
		Version: SchemaVersion,
		Name:    c.Name,
		Source:  c.Source,
		Policy:  c.Policy.String(),
		Tested:  c.Tested(),
		Matches: append([]dfg.InterProceduralMatch(nil), c.Matches...),
		Counts:  c.Counts(),
	}
	for _, m := range c.Methods() {
		s.Methods = append(s.Methods, MethodSnapshot{
			Key:            m.Key,
			Name:           m.Name,
			Descriptor:     m.Descriptor,
			FirstLine:      m.FirstLine,
			LastLine:       m.LastLine,
			Pairs:          append([]dfg.DefUsePair(nil), m.Pairs...),
			Covered:        m.Occurrences.Sorted(),
			Uncovered:      m.Uncovered.Sorted(),
			LocalVariables: m.Locals,
			Counts:         m.Counts,
		})
	}
	return s
}

// Restore rebuilds class data from a snapshot. Restored methods have no graph.
func (s *ClassSnapshot) Restore() (*coverage.ClassData, error) {
	if s.Version != SchemaVersion {
		return nil, fmt.Errorf("class %s: schema version %d, want %d", s.Name, s.Version, SchemaVersion)
	}
	policy, err := dfg.ParseKillPolicy(s.Policy)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", s.Name, err)
	}

	c := coverage.NewClassData(s.Name, s.Source, policy)
	c.Matches = append([]dfg.InterProceduralMatch(nil), s.Matches...)
	if s.Tested {
		c.MarkTested()
	}
	for _, ms := range s.Methods {
		c.AddMethod(&coverage.MethodData{
			Key:         ms.Key,
			Name:        ms.Name,
			Descriptor:  ms.Descriptor,
			FirstLine:   ms.FirstLine,
			LastLine:    ms.LastLine,
			Pairs:       append([]dfg.DefUsePair(nil), ms.Pairs...),
			Locals:      ms.LocalVariables,
			Occurrences: coverage.NewOccurrenceSet(ms.Covered...),
			Uncovered:   types.NewVarSet(ms.Uncovered...),
			Counts:      ms.Counts,
		})
	}
	return c, nil
}

// Encode writes a snapshot in the given format.
func Encode(w io.Writer, s *ClassSnapshot, format Format) error {
	switch format {
	case FormatMsgpack:
		return msgpack.NewEncoder(w).Encode(s)
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}
	return fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
}

// Decode reads a snapshot in the given format.
func Decode(r io.Reader, format Format) (*ClassSnapshot, error) {
	var s ClassSnapshot
	switch format {
	case FormatMsgpack:
		if err := msgpack.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("decoding msgpack: %w", err)
		}
	case FormatJSON:
		if err := json.NewDecoder(r).Decode(&s); err != nil {
			return nil, fmt.Errorf("decoding json: %w", err)
		}
	default:
		return nil, fmt.Errorf("%q: %w", format, ErrUnsupportedFormat)
	}
	return &s, nil
}

// FileName returns the artifact file name of a class.
func FileName(className string, format Format) string {
	return strings.ReplaceAll(className, "/", ".") + format.Ext()
}

// WriteClass snapshots a class into dir and returns the file path. The file is
// written under a temporary name and renamed, so readers never see a partial
// artifact.
func WriteClass(dir string, c *coverage.ClassData, format Format) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("creating artifact dir: %w", err)
	}

	path := filepath.Join(dir, FileName(c.Name, format))
	tmp, err := os.CreateTemp(dir, ".dfcov-*")
	if err != nil {
		return "", fmt.Errorf("creating temp artifact: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := Encode(tmp, Snapshot(c), format); err != nil {
		tmp.Close()
		return "", fmt.Errorf("encoding %s: %w", c.Name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing temp artifact: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("renaming artifact: %w", err)
	}
	return path, nil
}

// ReadClass decodes the artifact at path. Every failure is an *ImportError.
func ReadClass(path string) (*ClassSnapshot, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, &ImportError{Path: path, Err: ErrUnsupportedFormat}
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &ImportError{Path: path, Err: err}
	}
	defer f.Close()

	s, err := Decode(f, format)
	if err != nil {
		return nil, &ImportError{Path: path, Err: err}
	}
	return s, nil
}
