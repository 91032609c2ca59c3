// Package source locates method declarations in Java source files so that
// reports can show declared line ranges next to the ranges observed in the
// instruction stream.
package source

import (
	"context"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/java"
)

// ConstructorName is the instruction-level name of constructors.
const ConstructorName = "<init>"

// Span is the declared line range of one method or constructor.
type Span struct {
	Class       string `json:"class"` // Simple name, nested classes joined with '$'
	Name        string `json:"name"`  // ConstructorName for constructors
	StartLine   int    `json:"start_line"`
	EndLine     int    `json:"end_line"`
	Constructor bool   `json:"constructor,omitempty"`
}

// Contains reports whether line falls inside the span.
func (s Span) Contains(line int) bool {
	return line >= s.StartLine && line <= s.EndLine
}

// Locator parses Java sources with tree-sitter. A parser is not safe for
// concurrent use, so calls are serialized.
type Locator struct {
	mu     sync.Mutex
	parser *sitter.Parser
}

// NewLocator creates a locator for Java sources.
func NewLocator() *Locator {
	parser := sitter.NewParser()
	parser.SetLanguage(java.GetLanguage())
	return &Locator{parser: parser}
}

// File returns the method spans declared in a source file.
func (l *Locator) File(path string) ([]Span, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading file %s: %w", path, err)
	}
	return l.Methods(content)
}

// Methods returns the method spans declared in content, ordered by start line.
func (l *Locator) Methods(content []byte) ([]Span, error) {
	l.mu.Lock()
	tree, err := l.parser.ParseCtx(context.Background(), nil, content)
	l.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("parsing java source: %w", err)
	}
	defer tree.Close()

	var spans []Span
	walk(tree.RootNode(), content, "", &spans)
	sort.SliceStable(spans, func(i, j int) bool { return spans[i].StartLine < spans[j].StartLine })
	return spans, nil
}

func walk(node *sitter.Node, content []byte, class string, spans *[]Span) {
	if node == nil {
		return
	}

	switch node.Type() {
	case "class_declaration", "enum_declaration", "interface_declaration", "record_declaration":
		if name := node.ChildByFieldName("name"); name != nil {
			if class == "" {
				class = name.Content(content)
			} else {
				class = class + "$" + name.Content(content)
			}
		}
	case "method_declaration", "constructor_declaration":
		span := Span{
			Class:     class,
			StartLine: int(node.StartPoint().Row) + 1,
			EndLine:   int(node.EndPoint().Row) + 1,
		}
		if node.Type() == "constructor_declaration" {
			span.Name = ConstructorName
			span.Constructor = true
		} else if name := node.ChildByFieldName("name"); name != nil {
			span.Name = name.Content(content)
		}
		*spans = append(*spans, span)
	}

	for i := 0; i < int(node.NamedChildCount()); i++ {
		walk(node.NamedChild(i), content, class, spans)
	}
}

// Find returns the span of the named method in class that contains line, or
// the first one with that name when no span contains it. Overloads are told
// apart by line only.
func Find(spans []Span, class, name string, line int) (Span, bool) {
	var first *Span
	for i := range spans {
		s := &spans[i]
		if s.Class != class || s.Name != name {
			continue
		}
		if line > 0 && s.Contains(line) {
			return *s, true
		}
		if first == nil {
			first = s
		}
	}
	if first == nil {
		return Span{}, false
	}
	return *first, true
}

// SourcePath returns the slash-separated path of a class's source file
// relative to a source root: the package directory of the internal class
// name joined with the recorded source file name.
func SourcePath(className, sourceFile string) string {
	if sourceFile == "" {
		return ""
	}
	dir := path.Dir(className)
	if dir == "." {
		return sourceFile
	}
	return dir + "/" + sourceFile
}

// MatchesSourcePath reports whether relPath, relative to some scan root, is
// the source file sourcePath. Roots above the package directories, such as
// src/main/java, are allowed.
func MatchesSourcePath(relPath, sourcePath string) bool {
	if sourcePath == "" {
		return false
	}
	return relPath == sourcePath || strings.HasSuffix(relPath, "/"+sourcePath)
}
